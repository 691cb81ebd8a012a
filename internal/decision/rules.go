// Package decision admits, rejects, defers, or escalates outreach action
// requests. Every evaluation ends in a durable Decision with a reason code;
// constraint violations are decisions, never faults.
package decision

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// Rule constrains how one trigger type is evaluated. Zero-valued fields fall
// back to the global decision configuration.
type Rule struct {
	Trigger      model.TriggerType `yaml:"trigger"`
	Channels     []model.Channel   `yaml:"channels,omitempty"` // empty = any
	Sensitive    bool              `yaml:"sensitive,omitempty"`
	MinComposite float64           `yaml:"min_composite,omitempty"`
	CooldownHrs  int               `yaml:"cooldown_hours,omitempty"`
}

// AllowsChannel reports whether the rule permits the channel.
func (r Rule) AllowsChannel(ch model.Channel) bool {
	if len(r.Channels) == 0 {
		return true
	}
	for _, allowed := range r.Channels {
		if allowed == ch {
			return true
		}
	}
	return false
}

// RuleTable maps trigger types to their rules. Unknown triggers get the
// zero rule, i.e. global defaults and no sensitivity flag.
type RuleTable struct {
	rules map[model.TriggerType]Rule
}

// DefaultRules covers the trigger types the engine raises out of the box.
func DefaultRules() *RuleTable {
	return NewRuleTable([]Rule{
		{Trigger: "donation_anniversary"},
		{Trigger: "lapsed_donor", CooldownHrs: 168},
		{Trigger: "event_followup", Channels: []model.Channel{model.ChannelEmail, model.ChannelSMS}},
		{Trigger: "major_gift_ask", Sensitive: true, MinComposite: 75},
		{Trigger: "volunteer_recruitment"},
	})
}

// NewRuleTable builds a table from an explicit rule list.
func NewRuleTable(rules []Rule) *RuleTable {
	t := &RuleTable{rules: make(map[model.TriggerType]Rule, len(rules))}
	for _, r := range rules {
		t.rules[r.Trigger] = r
	}
	return t
}

// LoadRules reads a rule table from a YAML file with a top-level "rules" key.
// The file replaces the defaults wholesale.
func LoadRules(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "decision: read rules %s", path)
	}
	var wrapper struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "decision: parse rules")
	}
	if len(wrapper.Rules) == 0 {
		return nil, eris.Errorf("decision: rules file %s has no rules", path)
	}
	for _, r := range wrapper.Rules {
		if r.Trigger == "" {
			return nil, eris.New("decision: rule with empty trigger")
		}
	}
	return NewRuleTable(wrapper.Rules), nil
}

// For returns the rule for a trigger; unknown triggers get the zero rule.
func (t *RuleTable) For(trigger model.TriggerType) Rule {
	if t == nil {
		return Rule{}
	}
	return t.rules[trigger]
}
