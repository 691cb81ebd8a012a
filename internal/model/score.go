package model

// Signal names for the seven independent models feeding the composite score.
const (
	SignalExpectedReturn  = "expected_return"
	SignalSuccessProb     = "success_prob"
	SignalRelevance       = "relevance"
	SignalExpectedCost    = "expected_cost"
	SignalPersonaFit      = "persona_fit"
	SignalBudgetPlausible = "budget_plausible"
	SignalConfidence      = "confidence"
)

// ModelScoreSet holds the seven signal model outputs for one ActionRequest
// plus the derived composite. Composite is a pure function of the seven
// inputs: recomputing from the same inputs always yields the same value.
type ModelScoreSet struct {
	ExpectedReturn  float64 `json:"expected_return"`  // expected return as a multiple of cost
	SuccessProb     float64 `json:"success_prob"`     // 0..1
	Relevance       float64 `json:"relevance"`        // 0..100
	ExpectedCost    float64 `json:"expected_cost"`    // USD, >= 0
	PersonaFit      float64 `json:"persona_fit"`      // 0..100
	BudgetPlausible bool    `json:"budget_plausible"` // veto, not a weighted input
	Confidence      float64 `json:"confidence"`       // 0..100

	Composite float64 `json:"composite"`

	// MissingSignals lists signals whose providers failed or timed out;
	// each missing signal degraded Confidence instead of aborting scoring.
	MissingSignals []string `json:"missing_signals,omitempty"`
}
