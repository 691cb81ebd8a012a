package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundgame-labs/outreach-engine/internal/config"
	"github.com/groundgame-labs/outreach-engine/internal/model"
)

func testConfig() config.ScorerConfig {
	return config.ScorerConfig{
		ExpectedReturnWeight: 25,
		SuccessProbWeight:    25,
		RelevanceWeight:      20,
		CostEfficiencyWeight: 15,
		PersonaFitWeight:     15,
		ReturnCap:            5.0,
		CostReference:        50.0,
		ConfidenceFloor:      40,
		MissingSignalPenalty: 0.75,
	}
}

func TestNewRejectsBadWeights(t *testing.T) {
	cfg := testConfig()
	cfg.RelevanceWeight = 30 // sum 110
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum")
}

func TestScoreIsPure(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	set := model.ModelScoreSet{
		ExpectedReturn:  3.2,
		SuccessProb:     0.4,
		Relevance:       70,
		ExpectedCost:    12,
		PersonaFit:      80,
		BudgetPlausible: true,
		Confidence:      90,
	}
	first := s.Score(set)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.Score(set))
	}
	assert.Greater(t, first.Composite, 0.0)
}

func TestScoreBudgetVeto(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	set := model.ModelScoreSet{
		ExpectedReturn:  10, // maxed out everywhere
		SuccessProb:     1,
		Relevance:       100,
		ExpectedCost:    0,
		PersonaFit:      100,
		BudgetPlausible: false,
		Confidence:      100,
	}
	scored := s.Score(set)
	assert.Zero(t, scored.Composite)
	assert.Equal(t, 100.0, scored.Confidence)
}

func TestScoreComponents(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	// All components at maximum with full confidence: composite is 100.
	scored := s.Score(model.ModelScoreSet{
		ExpectedReturn:  5.0, // at the cap
		SuccessProb:     1.0,
		Relevance:       100,
		ExpectedCost:    0,
		PersonaFit:      100,
		BudgetPlausible: true,
		Confidence:      100,
	})
	assert.InDelta(t, 100, scored.Composite, 1e-9)

	// Halved confidence halves the composite.
	scored.Confidence = 0
	half := s.Score(model.ModelScoreSet{
		ExpectedReturn:  5.0,
		SuccessProb:     1.0,
		Relevance:       100,
		ExpectedCost:    0,
		PersonaFit:      100,
		BudgetPlausible: true,
		Confidence:      50,
	})
	assert.InDelta(t, 50, half.Composite, 1e-9)
}

func TestScoreCapsOutOfRangeInputs(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	scored := s.Score(model.ModelScoreSet{
		ExpectedReturn:  50,   // way past the cap
		SuccessProb:     3,    // invalid, clamped to 1
		Relevance:       400,  // clamped to 100
		ExpectedCost:    5000, // past the reference, cost score 0
		PersonaFit:      -20,  // clamped to 0
		BudgetPlausible: true,
		Confidence:      100,
	})
	// 25 + 25 + 20 + 0 + 0 of the weighted total.
	assert.InDelta(t, 70, scored.Composite, 1e-9)
}

func TestScoreMissingSignalsDegradeConfidence(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	set := model.ModelScoreSet{
		ExpectedReturn:  5.0,
		SuccessProb:     1.0,
		Relevance:       100,
		ExpectedCost:    0,
		PersonaFit:      100,
		BudgetPlausible: true,
		Confidence:      80,
		MissingSignals:  []string{model.SignalRelevance, model.SignalPersonaFit},
	}
	scored := s.Score(set)
	assert.InDelta(t, 80*0.75*0.75, scored.Confidence, 1e-9)
	assert.InDelta(t, scored.Confidence, scored.Composite, 1e-9)
}

func TestNeedsReview(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	assert.False(t, s.NeedsReview(model.ModelScoreSet{Confidence: 40}))
	assert.True(t, s.NeedsReview(model.ModelScoreSet{Confidence: 39.9}))

	// Two missing signals can push an otherwise acceptable set under the
	// floor: 60 * 0.75 * 0.75 = 33.75.
	scored := s.Score(model.ModelScoreSet{
		BudgetPlausible: true,
		Confidence:      60,
		MissingSignals:  []string{model.SignalSuccessProb, model.SignalRelevance},
	})
	assert.True(t, s.NeedsReview(scored))
}
