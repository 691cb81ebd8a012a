package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/groundgame-labs/outreach-engine/internal/allocator"
	"github.com/groundgame-labs/outreach-engine/internal/decision"
	"github.com/groundgame-labs/outreach-engine/internal/events"
	"github.com/groundgame-labs/outreach-engine/internal/ledger"
	"github.com/groundgame-labs/outreach-engine/internal/matcher"
	"github.com/groundgame-labs/outreach-engine/internal/model"
	"github.com/groundgame-labs/outreach-engine/internal/monitoring"
	"github.com/groundgame-labs/outreach-engine/internal/report"
	"github.com/groundgame-labs/outreach-engine/internal/scorer"
	"github.com/groundgame-labs/outreach-engine/internal/signal"
	"github.com/groundgame-labs/outreach-engine/internal/store"
)

// engineEnv holds the initialized store, ledger, engine, and supporting
// components shared by the serve/ingest/decide/allocate commands.
type engineEnv struct {
	Store     store.Store
	Ledger    *ledger.Ledger
	Engine    *decision.Engine
	Runner    *matcher.Runner
	Allocator *allocator.Allocator
	Reporter  *report.Builder
	Events    *events.Publisher
	Metrics   *monitoring.Metrics
}

// Close releases resources held by the environment.
func (env *engineEnv) Close() {
	if env.Events != nil {
		env.Events.Close()
	}
	if env.Store != nil {
		_ = env.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine sets up the store, budget ledger, matcher, decision engine, and
// allocator, and wires metrics and event publishing into their hooks. Callers
// should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	led := ledger.New(st, time.Duration(cfg.Ledger.ReservationTTLSecs)*time.Second)
	if err := led.Load(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load budget scopes")
	}

	policy := matcher.DefaultPolicy()
	if cfg.Matcher.PolicyPath != "" {
		policy, err = matcher.LoadPolicy(cfg.Matcher.PolicyPath)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load matcher policy")
		}
	}
	runner := matcher.NewRunner(matcher.New(st, policy), st, cfg.Decision.Workers)

	var rules *decision.RuleTable
	if cfg.Decision.RulesPath != "" {
		rules, err = decision.LoadRules(cfg.Decision.RulesPath)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load trigger rules")
		}
	}

	sc, err := scorer.New(cfg.Scorer)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	// Providers are local today, but every evaluation still runs behind the
	// timeout/retry/breaker guard so a misbehaving model cannot stall a batch.
	metrics := monitoring.New()

	builtin := signal.NewBuiltinRegistry()
	signals := signal.NewRegistry()
	for _, name := range builtin.List() {
		guard := signal.NewGuard(builtin.Get(name), cfg.Signals)
		guard.OnEvaluate = metrics.ObserveSignal
		signals.Register(guard)
	}

	pub, err := events.Connect(cfg.Events.URL, cfg.Events.SubjectPrefix)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "connect event bus")
	}
	if pub != nil {
		zap.L().Info("event publishing enabled", zap.String("url", cfg.Events.URL))
	} else {
		zap.L().Debug("OUTREACH_EVENTS_URL not set, event publishing disabled")
	}

	led.OnReserveConflict = func(model.ScopePath) { metrics.ReserveConflict() }
	led.OnReservationExpired = func(res ledger.Reservation) {
		metrics.ReservationExpired()
		_ = pub.ReservationExpired(context.Background(), res)
	}

	var dispatcher decision.Dispatcher
	if pub != nil {
		dispatcher = pub
	}

	eng := decision.NewEngine(cfg.Decision, sc, signals, led, st, rules, dispatcher)
	eng.OnDecision = func(d model.Decision) {
		metrics.ObserveDecision(d)
		_ = pub.DecisionRecorded(context.Background(), d)
	}

	alloc := allocator.New(cfg.Allocator, st)
	alloc.OnRun = func(run model.AllocationRun) { metrics.ObserveAllocationRun(run.Status) }

	// Resume the last good allocation so a restart does not reopen the
	// allowance gates.
	if run, err := alloc.Active(ctx); err != nil {
		zap.L().Warn("active allocation lookup failed", zap.Error(err))
	} else if run != nil {
		eng.SetAllocation(run)
		zap.L().Info("allocation restored", zap.String("run_id", run.ID))
	}

	return &engineEnv{
		Store:     st,
		Ledger:    led,
		Engine:    eng,
		Runner:    runner,
		Allocator: alloc,
		Reporter:  report.New(cfg.Report),
		Events:    pub,
		Metrics:   metrics,
	}, nil
}
