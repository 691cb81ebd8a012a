// Package matcher resolves harvested contact records against the master
// identity store using an ordered waterfall of match strategies.
package matcher

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// StrategyConfig configures one waterfall strategy: the confidence its
// matches carry and the floor below which the strategy is rejected.
type StrategyConfig struct {
	Method     model.MatchMethod `yaml:"method"`
	Confidence float64           `yaml:"confidence"`
	Floor      float64           `yaml:"floor"`
}

// Policy is the ordered strategy list, most precise first. Order is the
// tie-break: the first strategy clearing its floor wins and the waterfall
// stops.
type Policy struct {
	Strategies []StrategyConfig `yaml:"strategies"`
}

// DefaultPolicy returns the built-in waterfall ordering and floors.
func DefaultPolicy() Policy {
	return Policy{
		Strategies: []StrategyConfig{
			{Method: model.MatchEmailExact, Confidence: 0.97, Floor: 0.95},
			{Method: model.MatchPhoneExact, Confidence: 0.93, Floor: 0.90},
			{Method: model.MatchSocialHandle, Confidence: 0.88, Floor: 0.85},
			{Method: model.MatchNamePostal, Confidence: 0.72, Floor: 0.70},
			{Method: model.MatchNamePhone4, Confidence: 0.65, Floor: 0.60},
		},
	}
}

// LoadPolicy reads a matcher policy from a YAML file. The file has a
// top-level "matcher" key; strategies omitted from the file keep their
// default confidence and floor, and the default ordering always applies.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "matcher: read policy %s", path)
	}

	var wrapper struct {
		Matcher struct {
			Strategies []StrategyConfig `yaml:"strategies"`
		} `yaml:"matcher"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Policy{}, eris.Wrap(err, "matcher: parse policy")
	}

	overrides := make(map[model.MatchMethod]StrategyConfig, len(wrapper.Matcher.Strategies))
	for _, sc := range wrapper.Matcher.Strategies {
		overrides[sc.Method] = sc
	}

	policy := DefaultPolicy()
	for i, sc := range policy.Strategies {
		ov, ok := overrides[sc.Method]
		if !ok {
			continue
		}
		if ov.Confidence > 0 {
			policy.Strategies[i].Confidence = ov.Confidence
		}
		if ov.Floor > 0 {
			policy.Strategies[i].Floor = ov.Floor
		}
	}

	return policy, policy.Validate()
}

// Validate checks policy consistency: confidences and floors in (0,1], and
// each strategy's nominal confidence at or above its own floor (a strategy
// that can never clear its floor is a configuration mistake).
func (p Policy) Validate() error {
	if len(p.Strategies) == 0 {
		return eris.New("matcher: policy has no strategies")
	}
	for _, sc := range p.Strategies {
		if sc.Confidence <= 0 || sc.Confidence > 1 {
			return eris.Errorf("matcher: strategy %s confidence %.2f out of (0,1]", sc.Method, sc.Confidence)
		}
		if sc.Floor <= 0 || sc.Floor > 1 {
			return eris.Errorf("matcher: strategy %s floor %.2f out of (0,1]", sc.Method, sc.Floor)
		}
		if sc.Confidence < sc.Floor {
			return eris.Errorf("matcher: strategy %s confidence %.2f below its floor %.2f", sc.Method, sc.Confidence, sc.Floor)
		}
	}
	return nil
}
