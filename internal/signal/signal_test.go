package signal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

func request(ch model.Channel) model.ActionRequest {
	return model.ActionRequest{
		ID:         "req-1",
		IdentityID: "id-1",
		CampaignID: "camp-1",
		Channel:    ch,
		Trigger:    "donation_anniversary",
	}
}

func enrichedIdentity() model.MasterIdentity {
	return model.MasterIdentity{
		ID:         "id-1",
		Emails:     []model.VerifiedValue{{Value: "ada@example.org", Verified: true}},
		Phones:     []model.VerifiedValue{{Value: "5558675309", Verified: true}},
		PostalCode: "20001",
		Attributes: map[string]any{
			"avg_gift":      250.0,
			"response_rate": 0.30,
			"persona_fit":   85.0,
			"ask_capacity":  500.0,
		},
	}
}

func TestBuiltinCoversAllSevenSignals(t *testing.T) {
	reg := NewBuiltinRegistry()
	want := []string{
		model.SignalBudgetPlausible,
		model.SignalConfidence,
		model.SignalExpectedCost,
		model.SignalExpectedReturn,
		model.SignalPersonaFit,
		model.SignalRelevance,
		model.SignalSuccessProb,
	}
	assert.Equal(t, want, reg.List())
}

func TestBuiltinExpectedCostByChannel(t *testing.T) {
	reg := NewBuiltinRegistry()
	p := reg.Get(model.SignalExpectedCost)
	require.NotNil(t, p)

	v, err := p.Evaluate(context.Background(), request(model.ChannelVideo), model.MasterIdentity{})
	require.NoError(t, err)
	assert.InDelta(t, 40.0, v.Numeric, 1e-9)

	v, err = p.Evaluate(context.Background(), request(model.ChannelEmail), model.MasterIdentity{})
	require.NoError(t, err)
	assert.InDelta(t, 0.10, v.Numeric, 1e-9)

	// Identity-level cost override wins over the channel prior.
	id := model.MasterIdentity{Attributes: map[string]any{
		"channel_cost": map[string]any{"video": 25.0},
	}}
	v, err = p.Evaluate(context.Background(), request(model.ChannelVideo), id)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, v.Numeric, 1e-9)
}

func TestBuiltinBudgetPlausibleVeto(t *testing.T) {
	reg := NewBuiltinRegistry()
	p := reg.Get(model.SignalBudgetPlausible)
	require.NotNil(t, p)

	// Video at $40 against a $10 capacity is implausible.
	id := model.MasterIdentity{Attributes: map[string]any{"ask_capacity": 10.0}}
	v, err := p.Evaluate(context.Background(), request(model.ChannelVideo), id)
	require.NoError(t, err)
	assert.Zero(t, v.Numeric)

	// Unknown capacity never vetoes.
	v, err = p.Evaluate(context.Background(), request(model.ChannelVideo), model.MasterIdentity{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Numeric)
}

func TestBuiltinExpectedReturnFromGivingHistory(t *testing.T) {
	reg := NewBuiltinRegistry()
	p := reg.Get(model.SignalExpectedReturn)
	require.NotNil(t, p)

	// avg_gift 250 * response_rate 0.30 / email cost 0.10 = 750x.
	v, err := p.Evaluate(context.Background(), request(model.ChannelEmail), enrichedIdentity())
	require.NoError(t, err)
	assert.InDelta(t, 750.0, v.Numeric, 1e-6)

	// No history at all: neutral 1x.
	v, err = p.Evaluate(context.Background(), request(model.ChannelEmail), model.MasterIdentity{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Numeric)
}

func TestBuiltinConfidenceCompleteness(t *testing.T) {
	reg := NewBuiltinRegistry()
	p := reg.Get(model.SignalConfidence)
	require.NotNil(t, p)

	v, err := p.Evaluate(context.Background(), request(model.ChannelEmail), model.MasterIdentity{})
	require.NoError(t, err)
	assert.Zero(t, v.Numeric)

	v, err = p.Evaluate(context.Background(), request(model.ChannelEmail), enrichedIdentity())
	require.NoError(t, err)
	assert.InDelta(t, 90, v.Numeric, 1e-9) // all but social handles
}

func TestGatherAssemblesScoreSet(t *testing.T) {
	reg := NewBuiltinRegistry()
	set, err := Gather(context.Background(), reg, request(model.ChannelEmail), enrichedIdentity())
	require.NoError(t, err)

	assert.Empty(t, set.MissingSignals)
	assert.True(t, set.BudgetPlausible)
	assert.InDelta(t, 0.30, set.SuccessProb, 1e-9)
	assert.InDelta(t, 0.10, set.ExpectedCost, 1e-9)
	assert.InDelta(t, 85, set.PersonaFit, 1e-9)
}

type failingProvider struct{ name string }

func (f failingProvider) Signal() string { return f.name }
func (f failingProvider) Evaluate(context.Context, model.ActionRequest, model.MasterIdentity) (Value, error) {
	return Value{}, errors.New("model service unavailable")
}

func TestGatherMarksFailedSignalsMissing(t *testing.T) {
	reg := NewBuiltinRegistry()
	reg.Register(failingProvider{model.SignalRelevance})
	reg.Register(failingProvider{model.SignalExpectedCost})

	set, err := Gather(context.Background(), reg, request(model.ChannelVideo), enrichedIdentity())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{model.SignalRelevance, model.SignalExpectedCost}, set.MissingSignals)
	assert.InDelta(t, 50, set.Relevance, 1e-9)
	// Cost falls back to the channel prior, not zero.
	assert.InDelta(t, 40.0, set.ExpectedCost, 1e-9)
}

func TestGatherMissingVetoDoesNotVeto(t *testing.T) {
	reg := NewBuiltinRegistry()
	reg.Register(failingProvider{model.SignalBudgetPlausible})

	set, err := Gather(context.Background(), reg, request(model.ChannelEmail), enrichedIdentity())
	require.NoError(t, err)
	assert.True(t, set.BudgetPlausible)
	assert.Contains(t, set.MissingSignals, model.SignalBudgetPlausible)
}

func TestGatherCancelledContext(t *testing.T) {
	reg := NewRegistry()
	reg.Register(funcProvider{model.SignalExpectedReturn, func(ctx context.Context, _ model.ActionRequest, _ model.MasterIdentity) (float64, error) {
		return 0, ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Gather(ctx, reg, request(model.ChannelEmail), model.MasterIdentity{})
	require.ErrorIs(t, err, context.Canceled)
}
