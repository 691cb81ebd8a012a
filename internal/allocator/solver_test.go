package allocator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

func scopePath(s string) model.ScopePath {
	p, err := model.ParseScopePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func demand(scope string, value, cost float64) model.CampaignDemand {
	return model.CampaignDemand{
		Scope:         scopePath(scope),
		ExpectedValue: value,
		ExpectedCost:  cost,
	}
}

func TestSolveLPPrefersHigherValue(t *testing.T) {
	bds, err := foldConstraints([]model.CampaignDemand{
		demand("org/camp-a", 3.0, 600),
		demand("org/camp-b", 1.0, 600),
	}, nil, 0)
	require.NoError(t, err)

	sol, err := solveLP(bds, 1000)
	require.NoError(t, err)

	// camp-a saturates its demand; camp-b gets the rest.
	assert.InDelta(t, 600, sol.allocations["org/camp-a"], 1e-6)
	assert.InDelta(t, 400, sol.allocations["org/camp-b"], 1e-6)
	assert.InDelta(t, 0, sol.slack["pool"], 1e-6)
	// One more pool dollar would go to camp-b.
	assert.InDelta(t, 1.0, sol.shadowPrice["pool"], 1e-6)
}

func TestSolveLPHonorsHardBounds(t *testing.T) {
	constraints := []model.AllocationConstraint{
		{Name: "camp-b-floor", Type: model.ConstraintBudget, Scope: scopePath("org/camp-b"), Min: 200, Hard: true},
		{Name: "camp-a-cap", Type: model.ConstraintBudget, Scope: scopePath("org/camp-a"), Max: 500, Hard: true},
	}
	bds, err := foldConstraints([]model.CampaignDemand{
		demand("org/camp-a", 3.0, 10000),
		demand("org/camp-b", 1.0, 10000),
	}, constraints, 0)
	require.NoError(t, err)

	sol, err := solveLP(bds, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 500, sol.allocations["org/camp-a"], 1e-6)
	assert.InDelta(t, 500, sol.allocations["org/camp-b"], 1e-6)
	assert.InDelta(t, 0, sol.slack["org/camp-a"], 1e-6)
}

func TestSolveLPSoftConstraintViolatedAtPenalty(t *testing.T) {
	// The soft floor asks for more than is worth giving: violating it costs
	// 0.1/dollar while camp-a earns 3/dollar, so the floor loses.
	constraints := []model.AllocationConstraint{
		{Name: "camp-b-soft-floor", Type: model.ConstraintQuality, Scope: scopePath("org/camp-b"), Min: 800, Hard: false, Penalty: 0.1},
	}
	bds, err := foldConstraints([]model.CampaignDemand{
		demand("org/camp-a", 3.0, 1000),
		demand("org/camp-b", 1.0, 1000),
	}, constraints, 0)
	require.NoError(t, err)

	sol, err := solveLP(bds, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 1000, sol.allocations["org/camp-a"], 1e-6)
	assert.InDelta(t, 0, sol.allocations["org/camp-b"], 1e-6)
	assert.InDelta(t, 800, sol.slack["violation:camp-b-soft-floor"], 1e-6)
	assert.InDelta(t, 80, sol.penaltyCost, 1e-6)
}

func TestFoldConstraintsInfeasibleInterval(t *testing.T) {
	constraints := []model.AllocationConstraint{
		{Name: "impossible", Scope: scopePath("org/camp-a"), Min: 500, Max: 100, Hard: true},
	}
	_, err := foldConstraints([]model.CampaignDemand{demand("org/camp-a", 1.0, 1000)}, constraints, 0)
	require.ErrorIs(t, err, ErrInfeasible)
}

func TestSolveLPInfeasiblePool(t *testing.T) {
	constraints := []model.AllocationConstraint{
		{Name: "camp-a-floor", Scope: scopePath("org/camp-a"), Min: 500, Hard: true},
	}
	bds, err := foldConstraints([]model.CampaignDemand{demand("org/camp-a", 1.0, 1000)}, constraints, 0)
	require.NoError(t, err)

	_, err = solveLP(bds, 300)
	require.ErrorIs(t, err, ErrInfeasible)
}

func TestFairnessFloorActsAsHardMin(t *testing.T) {
	bds, err := foldConstraints([]model.CampaignDemand{
		demand("org/camp-a", 5.0, 1000),
		demand("org/camp-b", 0.1, 1000),
	}, nil, 50)
	require.NoError(t, err)

	sol, err := solveLP(bds, 500)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sol.allocations["org/camp-b"], 50.0)
}

func TestSolveGreedyDeterministic(t *testing.T) {
	demands := []model.CampaignDemand{
		demand("org/camp-b", 2.0, 300),
		demand("org/camp-a", 2.0, 300), // tie broken by path
		demand("org/camp-c", 5.0, 200),
	}
	bds, err := foldConstraints(demands, nil, 0)
	require.NoError(t, err)

	first, err := solveGreedy(bds, 600)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := solveGreedy(bds, 600)
		require.NoError(t, err)
		assert.Equal(t, first.allocations, again.allocations)
	}

	// Highest value first, then the alphabetical tie-break.
	assert.InDelta(t, 200, first.allocations["org/camp-c"], 1e-9)
	assert.InDelta(t, 300, first.allocations["org/camp-a"], 1e-9)
	assert.InDelta(t, 100, first.allocations["org/camp-b"], 1e-9)
}

func TestSolveGreedyHonorsFloors(t *testing.T) {
	constraints := []model.AllocationConstraint{
		{Name: "camp-b-floor", Scope: scopePath("org/camp-b"), Min: 100, Hard: true},
	}
	bds, err := foldConstraints([]model.CampaignDemand{
		demand("org/camp-a", 5.0, 1000),
		demand("org/camp-b", 0.5, 1000),
	}, constraints, 0)
	require.NoError(t, err)

	sol, err := solveGreedy(bds, 400)
	require.NoError(t, err)
	assert.InDelta(t, 100, sol.allocations["org/camp-b"], 1e-9)
	assert.InDelta(t, 300, sol.allocations["org/camp-a"], 1e-9)
}

func TestUnboundedDemandCap(t *testing.T) {
	bds, err := foldConstraints([]model.CampaignDemand{demand("org/camp-a", 1.0, 0)}, nil, 0)
	require.NoError(t, err)
	assert.True(t, math.IsInf(bds[0].hardMax, 1))

	sol, err := solveGreedy(bds, 250)
	require.NoError(t, err)
	assert.InDelta(t, 250, sol.allocations["org/camp-a"], 1e-9)
}
