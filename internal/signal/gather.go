package signal

import (
	"context"

	"go.uber.org/zap"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// Neutral fallbacks substituted when a signal's provider is missing or
// exhausted. The substitution is recorded in MissingSignals so the scorer can
// degrade confidence; it never silently stands in for a real value.
var fallback = map[string]float64{
	model.SignalExpectedReturn:  1.0,
	model.SignalSuccessProb:     0.05,
	model.SignalRelevance:       50,
	model.SignalPersonaFit:      50,
	model.SignalBudgetPlausible: 1, // a missing veto model must not veto
	model.SignalConfidence:      50,
}

// Gather evaluates all seven signals for a request and assembles the raw
// score set. Provider failures mark the signal missing; only context
// cancellation aborts the gather.
func Gather(ctx context.Context, reg *Registry, req model.ActionRequest, identity model.MasterIdentity) (model.ModelScoreSet, error) {
	values := make(map[string]float64, 7)
	var missing []string

	for _, name := range []string{
		model.SignalExpectedReturn,
		model.SignalSuccessProb,
		model.SignalRelevance,
		model.SignalExpectedCost,
		model.SignalPersonaFit,
		model.SignalBudgetPlausible,
		model.SignalConfidence,
	} {
		provider := reg.Get(name)
		if provider == nil {
			missing = append(missing, name)
			continue
		}
		v, err := provider.Evaluate(ctx, req, identity)
		if err != nil {
			if ctx.Err() != nil {
				return model.ModelScoreSet{}, ctx.Err()
			}
			zap.L().Warn("signal unavailable",
				zap.String("signal", name),
				zap.String("request_id", req.ID),
				zap.Error(err))
			missing = append(missing, name)
			continue
		}
		values[name] = v.Numeric
	}

	get := func(name string) float64 {
		if v, ok := values[name]; ok {
			return v
		}
		return fallback[name]
	}

	set := model.ModelScoreSet{
		ExpectedReturn:  get(model.SignalExpectedReturn),
		SuccessProb:     get(model.SignalSuccessProb),
		Relevance:       get(model.SignalRelevance),
		PersonaFit:      get(model.SignalPersonaFit),
		BudgetPlausible: get(model.SignalBudgetPlausible) >= 0.5,
		Confidence:      get(model.SignalConfidence),
		MissingSignals:  missing,
	}

	// Expected cost has no safe neutral value: without it neither the ledger
	// check nor plausibility means anything, so fall back to the channel
	// prior and still mark it missing.
	if v, ok := values[model.SignalExpectedCost]; ok {
		set.ExpectedCost = v
	} else {
		set.ExpectedCost = channelCost[req.Channel]
	}

	return set, nil
}
