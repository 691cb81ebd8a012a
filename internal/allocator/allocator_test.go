package allocator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundgame-labs/outreach-engine/internal/config"
	"github.com/groundgame-labs/outreach-engine/internal/model"
)

type fakeRunStore struct {
	mu   sync.Mutex
	runs []model.AllocationRun
}

func (f *fakeRunStore) CreateAllocationRun(_ context.Context, run model.AllocationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRunStore) LatestAllocationRun(context.Context) (*model.AllocationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return nil, nil
	}
	run := f.runs[len(f.runs)-1]
	return &run, nil
}

func allocatorConfig() config.AllocatorConfig {
	return config.AllocatorConfig{
		CadenceHours:      24,
		SolverTimeoutSecs: 5,
		MinScore:          60,
	}
}

func TestRunOptimal(t *testing.T) {
	st := &fakeRunStore{}
	a := New(allocatorConfig(), st)

	var published []model.AllocationRun
	a.OnRun = func(run model.AllocationRun) { published = append(published, run) }

	run, err := a.Run(context.Background(), 1000, []model.CampaignDemand{
		demand("org/camp-a", 3.0, 600),
		demand("org/camp-b", 1.0, 600),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.SolverOptimal, run.Status)
	assert.InDelta(t, 600, run.Allocations["org/camp-a"], 1e-6)
	assert.InDelta(t, 400, run.Allocations["org/camp-b"], 1e-6)
	assert.False(t, run.CompletedAt.Before(run.StartedAt))
	require.Len(t, st.runs, 1)
	require.Len(t, published, 1)
	assert.Equal(t, run.ID, published[0].ID)
}

func TestRunInfeasibleRetainsPrior(t *testing.T) {
	st := &fakeRunStore{}
	a := New(allocatorConfig(), st)

	good, err := a.Run(context.Background(), 1000, []model.CampaignDemand{
		demand("org/camp-a", 2.0, 800),
	}, nil)
	require.NoError(t, err)
	require.Equal(t, model.SolverOptimal, good.Status)

	// A $500 hard floor against a $300 pool cannot be satisfied.
	bad, err := a.Run(context.Background(), 300, []model.CampaignDemand{
		demand("org/camp-a", 2.0, 800),
	}, []model.AllocationConstraint{
		{Name: "camp-a-floor", Type: model.ConstraintBudget, Scope: scopePath("org/camp-a"), Min: 500, Hard: true},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SolverInfeasible, bad.Status)
	assert.Empty(t, bad.Allocations)
	assert.Contains(t, bad.Note, "exceed pool")

	// Both runs are recorded, but the prior one stays active.
	require.Len(t, st.runs, 2)
	active, err := a.Active(context.Background())
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, good.ID, active.ID)
}

func TestActiveFromStoreAtStartup(t *testing.T) {
	st := &fakeRunStore{}
	st.runs = append(st.runs, model.AllocationRun{
		ID:          "persisted",
		Status:      model.SolverOptimal,
		Allocations: map[string]float64{"org/camp-a": 100},
	})

	a := New(allocatorConfig(), st)
	active, err := a.Active(context.Background())
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "persisted", active.ID)
}

func TestActiveIgnoresInfeasibleLatest(t *testing.T) {
	st := &fakeRunStore{}
	st.runs = append(st.runs, model.AllocationRun{ID: "bad", Status: model.SolverInfeasible})

	a := New(allocatorConfig(), st)
	active, err := a.Active(context.Background())
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestDemandsFromDecisions(t *testing.T) {
	now := time.Now()
	mk := func(scope string, value model.DecisionValue, composite, cost float64) model.Decision {
		return model.Decision{
			Scope:     scopePath(scope),
			Value:     value,
			Scores:    model.ModelScoreSet{Composite: composite, ExpectedCost: cost},
			DecidedAt: now,
		}
	}

	demands := DemandsFromDecisions([]model.Decision{
		mk("org/camp-a", model.DecisionDefer, 80, 40),
		mk("org/camp-a", model.DecisionDefer, 70, 10),
		mk("org/camp-a", model.DecisionDefer, 30, 10), // below min score
		mk("org/camp-b", model.DecisionDefer, 90, 25),
		mk("org/camp-b", model.DecisionNoGo, 95, 25), // not deferred
	}, 60)

	require.Len(t, demands, 2)

	a := demands[0]
	assert.Equal(t, "org/camp-a", a.Scope.String())
	assert.Equal(t, 2, a.PendingRequests)
	assert.InDelta(t, 50, a.ExpectedCost, 1e-9)
	assert.InDelta(t, 1.5/50, a.ExpectedValue, 1e-9) // (80+70)/100 per $50

	b := demands[1]
	assert.Equal(t, "org/camp-b", b.Scope.String())
	assert.Equal(t, 1, b.PendingRequests)
}
