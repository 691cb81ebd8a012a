package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundgame-labs/outreach-engine/internal/ledger"
	"github.com/groundgame-labs/outreach-engine/internal/model"
)

func TestConnectEmptyURLDisablesPublishing(t *testing.T) {
	p, err := Connect("", "outreach")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	ctx := context.Background()

	assert.NoError(t, p.ContactsIngested(ctx, "csv", "batch-1", 10, 2))
	assert.NoError(t, p.DecisionRecorded(ctx, model.Decision{}))
	assert.NoError(t, p.DispatchAcked(ctx, "dec-1", 12.5, true))
	assert.NoError(t, p.AllocationPublished(ctx, model.AllocationRun{}))
	assert.NoError(t, p.ReservationExpired(ctx, ledger.Reservation{}))
	p.Close()
}

func TestNilPublisherRefusesDispatch(t *testing.T) {
	// Dispatch is the one event with delivery semantics: without a broker
	// the request cannot reach a dispatcher, so it must fail loudly.
	var p *Publisher
	err := p.RequestDispatch(context.Background(), model.Decision{ID: "dec-1"})
	require.Error(t, err)
}
