package signal

import (
	"context"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// Per-channel fallbacks used when the identity carries no history for a
// signal. Costs are USD per attempted action.
var (
	channelCost = map[model.Channel]float64{
		model.ChannelEmail: 0.10,
		model.ChannelSMS:   0.05,
		model.ChannelVoice: 2.50,
		model.ChannelVideo: 40.00,
	}
	channelResponseRate = map[model.Channel]float64{
		model.ChannelEmail: 0.04,
		model.ChannelSMS:   0.08,
		model.ChannelVoice: 0.12,
		model.ChannelVideo: 0.10,
	}
)

// funcProvider adapts a plain function to the Provider interface.
type funcProvider struct {
	name string
	fn   func(ctx context.Context, req model.ActionRequest, identity model.MasterIdentity) (float64, error)
}

func (p funcProvider) Signal() string { return p.name }

func (p funcProvider) Evaluate(ctx context.Context, req model.ActionRequest, identity model.MasterIdentity) (Value, error) {
	n, err := p.fn(ctx, req, identity)
	if err != nil {
		return Value{}, err
	}
	return Value{Signal: p.name, Numeric: n}, nil
}

// NewBuiltinRegistry registers rule and lookup providers for all seven
// signals. They read identity attributes written by enrichment jobs and fall
// back to per-channel priors; external model services replace individual
// entries via Register.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()

	r.Register(funcProvider{model.SignalExpectedReturn, func(_ context.Context, req model.ActionRequest, id model.MasterIdentity) (float64, error) {
		if m, ok := floatAttr(id, "expected_return_multiple"); ok {
			return m, nil
		}
		// Derive a multiple from giving history against the channel cost.
		if gift, ok := floatAttr(id, "avg_gift"); ok {
			cost := expectedCost(req, id)
			rate := responseRate(req, id)
			if cost > 0 {
				return gift * rate / cost, nil
			}
		}
		return 1.0, nil
	}})

	r.Register(funcProvider{model.SignalSuccessProb, func(_ context.Context, req model.ActionRequest, id model.MasterIdentity) (float64, error) {
		return responseRate(req, id), nil
	}})

	r.Register(funcProvider{model.SignalRelevance, func(_ context.Context, req model.ActionRequest, id model.MasterIdentity) (float64, error) {
		if affinities, ok := id.Attributes["trigger_affinity"].(map[string]any); ok {
			if v, ok := toFloat(affinities[string(req.Trigger)]); ok {
				return clamp(v, 0, 100), nil
			}
		}
		if v, ok := floatAttr(id, "engagement_score"); ok {
			return clamp(v, 0, 100), nil
		}
		return 50, nil
	}})

	r.Register(funcProvider{model.SignalExpectedCost, func(_ context.Context, req model.ActionRequest, id model.MasterIdentity) (float64, error) {
		return expectedCost(req, id), nil
	}})

	r.Register(funcProvider{model.SignalPersonaFit, func(_ context.Context, _ model.ActionRequest, id model.MasterIdentity) (float64, error) {
		if v, ok := floatAttr(id, "persona_fit"); ok {
			return clamp(v, 0, 100), nil
		}
		return 50, nil
	}})

	r.Register(funcProvider{model.SignalBudgetPlausible, func(_ context.Context, req model.ActionRequest, id model.MasterIdentity) (float64, error) {
		// An ask is implausible when its cost exceeds what this identity
		// could plausibly return. Unknown capacity never vetoes.
		capacity, ok := floatAttr(id, "ask_capacity")
		if ok && expectedCost(req, id) > capacity {
			return 0, nil
		}
		return 1, nil
	}})

	r.Register(funcProvider{model.SignalConfidence, func(_ context.Context, _ model.ActionRequest, id model.MasterIdentity) (float64, error) {
		return completeness(id), nil
	}})

	return r
}

func expectedCost(req model.ActionRequest, id model.MasterIdentity) float64 {
	if overrides, ok := id.Attributes["channel_cost"].(map[string]any); ok {
		if v, ok := toFloat(overrides[string(req.Channel)]); ok {
			return v
		}
	}
	return channelCost[req.Channel]
}

func responseRate(req model.ActionRequest, id model.MasterIdentity) float64 {
	if v, ok := floatAttr(id, "response_rate"); ok {
		return clamp(v, 0, 1)
	}
	if v, ok := channelResponseRate[req.Channel]; ok {
		return v
	}
	return 0.05
}

// completeness scores how much of the identity is actually known, 0..100.
// Each filled block of fields contributes a fixed share.
func completeness(id model.MasterIdentity) float64 {
	var score float64
	if len(id.Emails) > 0 {
		score += 25
	}
	if len(id.Phones) > 0 {
		score += 20
	}
	if id.PostalCode != "" {
		score += 15
	}
	if len(id.SocialHandles) > 0 {
		score += 10
	}
	if len(id.Attributes) > 0 {
		score += 30
	}
	return score
}

func floatAttr(id model.MasterIdentity, key string) (float64, bool) {
	return toFloat(id.Attributes[key])
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
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
