// Package scorer derives the composite outreach score from a gathered signal
// set. Scoring is pure: the same inputs always produce the same composite,
// with no I/O and no clock.
package scorer

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/groundgame-labs/outreach-engine/internal/config"
	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// Scorer computes composite scores under a fixed weight configuration.
type Scorer struct {
	cfg config.ScorerConfig
}

// New validates the weight configuration and returns a Scorer. The five
// component weights must sum to 100.
func New(cfg config.ScorerConfig) (*Scorer, error) {
	sum := cfg.ExpectedReturnWeight + cfg.SuccessProbWeight + cfg.RelevanceWeight +
		cfg.CostEfficiencyWeight + cfg.PersonaFitWeight
	if math.Abs(sum-100) > 1e-6 {
		return nil, eris.Errorf("scorer: weights sum to %.2f, want 100", sum)
	}
	if cfg.ReturnCap <= 0 {
		return nil, eris.New("scorer: return_cap must be positive")
	}
	if cfg.CostReference <= 0 {
		return nil, eris.New("scorer: cost_reference must be positive")
	}
	if cfg.MissingSignalPenalty <= 0 || cfg.MissingSignalPenalty > 1 {
		return nil, eris.Errorf("scorer: missing_signal_penalty %.2f out of (0,1]", cfg.MissingSignalPenalty)
	}
	return &Scorer{cfg: cfg}, nil
}

// Score fills in the derived fields of a gathered signal set: Confidence is
// degraded once per missing signal, then Composite is computed.
//
// The composite is the weight-averaged sum of the five normalized components
// (each 0..100), scaled by effective confidence as a fraction. The
// budget-plausible veto short-circuits everything: an implausible ask scores
// zero no matter how attractive the other signals are.
func (s *Scorer) Score(set model.ModelScoreSet) model.ModelScoreSet {
	for range set.MissingSignals {
		set.Confidence *= s.cfg.MissingSignalPenalty
	}
	set.Confidence = clamp(set.Confidence, 0, 100)

	if !set.BudgetPlausible {
		set.Composite = 0
		return set
	}

	returnScore := clamp(set.ExpectedReturn/s.cfg.ReturnCap, 0, 1) * 100
	successScore := clamp(set.SuccessProb, 0, 1) * 100
	relevanceScore := clamp(set.Relevance, 0, 100)
	costScore := (1 - clamp(set.ExpectedCost/s.cfg.CostReference, 0, 1)) * 100
	personaScore := clamp(set.PersonaFit, 0, 100)

	weighted := (returnScore*s.cfg.ExpectedReturnWeight +
		successScore*s.cfg.SuccessProbWeight +
		relevanceScore*s.cfg.RelevanceWeight +
		costScore*s.cfg.CostEfficiencyWeight +
		personaScore*s.cfg.PersonaFitWeight) / 100

	set.Composite = weighted * set.Confidence / 100
	return set
}

// NeedsReview reports whether the scored set's confidence is below the
// manual-review floor.
func (s *Scorer) NeedsReview(set model.ModelScoreSet) bool {
	return set.Confidence < s.cfg.ConfidenceFloor
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
