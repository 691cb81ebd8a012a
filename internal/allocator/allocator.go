package allocator

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/groundgame-labs/outreach-engine/internal/config"
	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// Store is the persistence slice the allocator needs.
type Store interface {
	CreateAllocationRun(ctx context.Context, run model.AllocationRun) error
	LatestAllocationRun(ctx context.Context) (*model.AllocationRun, error)
}

// Allocator runs the optimization and records every run, including the
// infeasible ones.
type Allocator struct {
	cfg   config.AllocatorConfig
	store Store
	now   func() time.Time

	// lastGood caches the most recent publishable run so an infeasible run
	// never displaces a working allocation.
	lastGood atomic.Pointer[model.AllocationRun]

	// OnRun is an optional hook invoked after each recorded run, used for
	// metrics and event publication.
	OnRun func(run model.AllocationRun)
}

// New creates an Allocator.
func New(cfg config.AllocatorConfig, store Store) *Allocator {
	return &Allocator{cfg: cfg, store: store, now: time.Now}
}

// WithNow fixes the clock for testing.
func (a *Allocator) WithNow(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// Run solves the allocation problem and records the result. The LP solver
// gets a bounded slice of time; on failure or timeout the deterministic
// greedy fallback produces a SUBOPTIMAL run. INFEASIBLE runs are recorded
// with empty allocations; the caller keeps the prior run active.
func (a *Allocator) Run(ctx context.Context, pool float64, demands []model.CampaignDemand, constraints []model.AllocationConstraint) (*model.AllocationRun, error) {
	run := model.AllocationRun{
		ID:          uuid.NewString(),
		StartedAt:   a.now(),
		TotalPool:   pool,
		Demands:     demands,
		Constraints: constraints,
	}

	bds, err := foldConstraints(demands, constraints, a.cfg.FairnessFloor)
	if err == nil {
		var sol *solution
		sol, err = a.solveWithTimeout(ctx, bds, pool)
		if err == nil {
			run.Status = model.SolverOptimal
			run.Allocations = sol.allocations
			run.Slack = sol.slack
			run.ShadowPrice = sol.shadowPrice
			run.PenaltyCost = sol.penaltyCost
		} else if !eris.Is(err, ErrInfeasible) {
			zap.L().Warn("LP solve failed, using greedy fallback", zap.Error(err))
			sol, err = solveGreedy(bds, pool)
			if err == nil {
				run.Status = model.SolverSuboptimal
				run.Allocations = sol.allocations
				run.Slack = sol.slack
				run.Note = "greedy fallback after solver failure"
			}
		}
	}
	if eris.Is(err, ErrInfeasible) {
		run.Status = model.SolverInfeasible
		run.Allocations = map[string]float64{}
		run.Note = err.Error()
	} else if err != nil {
		return nil, err
	}

	run.CompletedAt = a.now()
	if err := a.store.CreateAllocationRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "allocator: persist run")
	}
	if run.Status != model.SolverInfeasible {
		a.lastGood.Store(&run)
	}

	zap.L().Info("allocation run complete",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Float64("pool", pool),
		zap.Int("demands", len(demands)))
	if a.OnRun != nil {
		a.OnRun(run)
	}
	return &run, nil
}

func (a *Allocator) solveWithTimeout(ctx context.Context, bds []bounds, pool float64) (*solution, error) {
	timeout := time.Duration(a.cfg.SolverTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	type result struct {
		sol *solution
		err error
	}
	ch := make(chan result, 1)
	go func() {
		sol, err := solveLP(bds, pool)
		ch <- result{sol, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.sol, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, eris.New("allocator: solver timeout")
	}
}

// Active returns the allocation run decision evaluation should honor: the
// most recent publishable run this process has produced, or the persisted
// latest run at startup. An infeasible latest run yields nothing new; the
// prior allocations stay in force at the decision core.
func (a *Allocator) Active(ctx context.Context) (*model.AllocationRun, error) {
	if run := a.lastGood.Load(); run != nil {
		return run, nil
	}
	run, err := a.store.LatestAllocationRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "allocator: load latest run")
	}
	if run == nil || run.Status == model.SolverInfeasible {
		return nil, nil
	}
	a.lastGood.Store(run)
	return run, nil
}

// DemandsFromDecisions aggregates deferred decisions into per-scope demand
// signals. Only decisions at or above minScore count; ExpectedValue is the
// aggregate composite per dollar of expected cost.
func DemandsFromDecisions(decisions []model.Decision, minScore float64) []model.CampaignDemand {
	type agg struct {
		scope     model.ScopePath
		count     int
		cost      float64
		composite float64
	}
	byScope := make(map[string]*agg)
	for _, d := range decisions {
		if d.Value != model.DecisionDefer || d.Scores.Composite < minScore {
			continue
		}
		key := d.Scope.String()
		entry, ok := byScope[key]
		if !ok {
			entry = &agg{scope: d.Scope}
			byScope[key] = entry
		}
		entry.count++
		entry.cost += d.Scores.ExpectedCost
		entry.composite += d.Scores.Composite
	}

	out := make([]model.CampaignDemand, 0, len(byScope))
	for _, entry := range byScope {
		value := 0.0
		if entry.cost > 0 {
			value = entry.composite / 100 / entry.cost
		}
		out = append(out, model.CampaignDemand{
			Scope:           entry.scope,
			PendingRequests: entry.count,
			ExpectedValue:   value,
			ExpectedCost:    entry.cost,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Scope.String() < out[j].Scope.String()
	})
	return out
}
