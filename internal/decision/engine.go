package decision

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/groundgame-labs/outreach-engine/internal/config"
	"github.com/groundgame-labs/outreach-engine/internal/ledger"
	"github.com/groundgame-labs/outreach-engine/internal/model"
	"github.com/groundgame-labs/outreach-engine/internal/scorer"
	"github.com/groundgame-labs/outreach-engine/internal/signal"
	"github.com/groundgame-labs/outreach-engine/internal/store"
)

// ErrLedgerUnavailable means the engine refused to evaluate because the
// budget ledger cannot be trusted. The request is not decided; fail closed.
var ErrLedgerUnavailable = eris.New("decision: budget ledger unavailable")

// Store is the persistence slice the engine needs.
type Store interface {
	CreateDecision(ctx context.Context, d model.Decision) error
	GetDecision(ctx context.Context, id string) (*model.Decision, error)
	AppendExecutionOutcome(ctx context.Context, id string, status model.ExecutionStatus, actualCost float64, succeeded bool) error
	LastGoContact(ctx context.Context, identityID string, channel model.Channel) (*time.Time, error)
	GetIdentity(ctx context.Context, id string) (*model.MasterIdentity, error)
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
}

// BudgetLedger is the ledger slice the engine admits spend through.
type BudgetLedger interface {
	Healthy() bool
	Reserve(ctx context.Context, scope model.ScopePath, decisionID string, amount float64) (ledger.Reservation, error)
	Commit(ctx context.Context, reservationID string, actual float64) error
	Release(ctx context.Context, reservationID string) error
	Credit(ctx context.Context, scope model.ScopePath, decisionID string, amount float64, note string) error
}

// Dispatcher hands an admitted decision to the delivery side. Publishing the
// request is the engine's last step; delivery itself is external.
type Dispatcher interface {
	RequestDispatch(ctx context.Context, d model.Decision) error
}

// Engine evaluates action requests through the gate sequence and records
// durable decisions.
type Engine struct {
	cfg      config.DecisionConfig
	scorer   *scorer.Scorer
	signals  *signal.Registry
	ledger   BudgetLedger
	store    Store
	rules    *RuleTable
	dispatch Dispatcher

	// allocation holds the campaign allowances published by the most recent
	// allocation run. Swapped whole; readers never see a partial run.
	allocation atomic.Pointer[model.AllocationRun]

	allowMu      sync.Mutex
	allowanceUse map[string]float64 // scope path -> USD consumed from current run

	now func() time.Time

	// OnDecision is an optional hook invoked after each recorded decision,
	// used for metrics and event publication.
	OnDecision func(d model.Decision)
}

// NewEngine wires the decision core. dispatch may be nil when running
// decide-only workloads; GO decisions then stay execution-pending.
func NewEngine(cfg config.DecisionConfig, sc *scorer.Scorer, signals *signal.Registry, lg BudgetLedger, st Store, rules *RuleTable, dispatch Dispatcher) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Engine{
		cfg:          cfg,
		scorer:       sc,
		signals:      signals,
		ledger:       lg,
		store:        st,
		rules:        rules,
		dispatch:     dispatch,
		allowanceUse: make(map[string]float64),
		now:          time.Now,
	}
}

// WithNow fixes the clock for testing.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// SetAllocation atomically swaps in a freshly published allocation run and
// resets allowance consumption.
func (e *Engine) SetAllocation(run *model.AllocationRun) {
	e.allocation.Store(run)
	e.allowMu.Lock()
	e.allowanceUse = make(map[string]float64)
	e.allowMu.Unlock()
}

// Allocation returns the active allocation run, or nil.
func (e *Engine) Allocation() *model.AllocationRun {
	return e.allocation.Load()
}

// Evaluate runs one request through the gate sequence and records the
// decision. The error path is reserved for infrastructure failures; every
// constraint violation returns a recorded decision instead.
func (e *Engine) Evaluate(ctx context.Context, req model.ActionRequest) (*model.Decision, error) {
	return e.evaluate(ctx, req, false)
}

func (e *Engine) evaluate(ctx context.Context, req model.ActionRequest, reviewApproved bool) (*model.Decision, error) {
	if !e.ledger.Healthy() {
		return nil, ErrLedgerUnavailable
	}
	now := e.now()

	if req.Expired(now) {
		d := e.newDecision(req, model.DecisionDefer, model.ReasonDeferHorizonExpired, model.ModelScoreSet{})
		d.Execution = model.ExecutionExpired
		return e.record(ctx, d)
	}

	identity, err := e.store.GetIdentity(ctx, req.IdentityID)
	if eris.Is(err, store.ErrNotFound) {
		// A request without a resolvable identity is a data-quality problem,
		// which escalates instead of dropping.
		zap.L().Warn("identity not found, escalating to review",
			zap.String("request_id", req.ID),
			zap.String("identity_id", req.IdentityID))
		return e.record(ctx, e.newDecision(req, model.DecisionManualReview, model.ReasonLowConfidence, model.ModelScoreSet{}))
	}
	if err != nil {
		// Anything else is an infrastructure failure: leave the request
		// undecided so a later pass can retry it.
		return nil, eris.Wrap(err, "decision: identity lookup")
	}

	raw, err := signal.Gather(ctx, e.signals, req, *identity)
	if err != nil {
		return nil, eris.Wrap(err, "decision: gather signals")
	}
	scores := e.scorer.Score(raw)
	rule := e.rules.For(req.Trigger)

	if !reviewApproved {
		if rule.Sensitive || e.sensitiveTrigger(req.Trigger) {
			return e.record(ctx, e.newDecision(req, model.DecisionManualReview, model.ReasonSensitiveCategory, scores))
		}
		if e.scorer.NeedsReview(scores) {
			reason := model.ReasonLowConfidence
			if len(scores.MissingSignals) > 0 {
				reason = model.ReasonSignalExhausted
			}
			return e.record(ctx, e.newDecision(req, model.DecisionManualReview, reason, scores))
		}
	}

	if !scores.BudgetPlausible {
		return e.record(ctx, e.newDecision(req, model.DecisionNoGo, model.ReasonBudgetImplausible, scores))
	}

	threshold := e.cfg.Threshold
	if rule.MinComposite > 0 {
		threshold = rule.MinComposite
	}
	if scores.Composite < threshold || !rule.AllowsChannel(req.Channel) {
		return e.record(ctx, e.newDecision(req, model.DecisionNoGo, model.ReasonBelowThreshold, scores))
	}

	cooldown := time.Duration(e.cfg.CooldownHours) * time.Hour
	if rule.CooldownHrs > 0 {
		cooldown = time.Duration(rule.CooldownHrs) * time.Hour
	}
	last, err := e.store.LastGoContact(ctx, req.IdentityID, req.Channel)
	if err != nil {
		return nil, eris.Wrap(err, "decision: cooldown lookup")
	}
	if last != nil && now.Sub(*last) < cooldown {
		return e.record(ctx, e.newDecision(req, model.DecisionNoGo, model.ReasonCooldownActive, scores))
	}

	if !e.inSendWindow(now) {
		d := e.newDecision(req, model.DecisionDefer, model.ReasonOutsideSendWindow, scores)
		return e.record(ctx, d)
	}

	if !e.consumeAllowance(req.Scope, scores.ExpectedCost) {
		return e.record(ctx, e.newDecision(req, model.DecisionNoGo, model.ReasonAllowanceExhausted, scores))
	}

	return e.admit(ctx, req, scores)
}

// admit runs the GO leg: reserve, persist pending, debit, dispatch.
func (e *Engine) admit(ctx context.Context, req model.ActionRequest, scores model.ModelScoreSet) (*model.Decision, error) {
	d := e.newDecision(req, model.DecisionGo, model.ReasonAdmitted, scores)

	res, err := e.ledger.Reserve(ctx, req.Scope, d.ID, scores.ExpectedCost)
	if err != nil {
		e.refundAllowance(req.Scope, scores.ExpectedCost)
		if eris.Is(err, ledger.ErrInsufficient) || eris.Is(err, ledger.ErrUnbudgeted) {
			return e.record(ctx, e.newDecision(req, model.DecisionNoGo, model.ReasonInsufficientBudget, scores))
		}
		return nil, err
	}

	d.Execution = model.ExecutionPending
	if err := e.store.CreateDecision(ctx, d); err != nil {
		if relErr := e.ledger.Release(ctx, res.ID); relErr != nil {
			zap.L().Error("reservation release failed after persist failure",
				zap.String("reservation_id", res.ID),
				zap.Error(relErr))
		}
		e.refundAllowance(req.Scope, scores.ExpectedCost)
		return nil, eris.Wrap(err, "decision: persist")
	}
	if err := e.ledger.Commit(ctx, res.ID, scores.ExpectedCost); err != nil {
		return nil, eris.Wrap(err, "decision: commit reservation")
	}

	if e.dispatch != nil {
		if err := e.dispatch.RequestDispatch(ctx, d); err != nil {
			// The debit stands; the correction is a compensating credit.
			zap.L().Warn("dispatch request failed, crediting back",
				zap.String("decision_id", d.ID),
				zap.Error(err))
			if credErr := e.ledger.Credit(ctx, req.Scope, d.ID, scores.ExpectedCost, "dispatch failed"); credErr != nil {
				zap.L().Error("compensating credit failed",
					zap.String("decision_id", d.ID),
					zap.Error(credErr))
			}
			if outErr := e.store.AppendExecutionOutcome(ctx, d.ID, model.ExecutionFailed, 0, false); outErr != nil {
				zap.L().Error("execution outcome write failed",
					zap.String("decision_id", d.ID),
					zap.Error(outErr))
			}
			d.Execution = model.ExecutionFailed
		}
	}

	e.observe(d)
	return &d, nil
}

// RecordOutcome appends the dispatch acknowledgement to a GO decision and
// settles the ledger at the actual cost.
func (e *Engine) RecordOutcome(ctx context.Context, decisionID string, actual float64, succeeded bool) error {
	d, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return eris.Wrap(err, "decision: load for outcome")
	}
	if d.Value != model.DecisionGo {
		return eris.Errorf("decision: %s is %s, not go", decisionID, d.Value)
	}

	if err := e.store.AppendExecutionOutcome(ctx, decisionID, model.ExecutionExecuted, actual, succeeded); err != nil {
		return eris.Wrap(err, "decision: append outcome")
	}

	// Settlement: the original debit was the expected cost.
	diff := d.Scores.ExpectedCost - actual
	if diff > 0 {
		if err := e.ledger.Credit(ctx, d.Scope, d.ID, diff, "settled below estimate"); err != nil {
			return eris.Wrap(err, "decision: settlement credit")
		}
	} else if diff < 0 {
		res, err := e.ledger.Reserve(ctx, d.Scope, d.ID, -diff)
		if err != nil {
			return eris.Wrap(err, "decision: settlement overage")
		}
		if err := e.ledger.Commit(ctx, res.ID, -diff); err != nil {
			return eris.Wrap(err, "decision: settlement overage commit")
		}
	}
	return nil
}

// EvaluateBatch runs requests through a bounded worker pool. Individual
// infrastructure failures are logged and skipped; the batch keeps going.
func (e *Engine) EvaluateBatch(ctx context.Context, reqs []model.ActionRequest) ([]model.Decision, error) {
	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	results := make([]*model.Decision, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			d, err := e.Evaluate(gctx, req)
			if err != nil {
				if eris.Is(err, ErrLedgerUnavailable) {
					return err // fail the batch closed
				}
				zap.L().Warn("request evaluation failed",
					zap.String("request_id", req.ID),
					zap.Error(err))
				return nil
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]model.Decision, 0, len(results))
	for _, d := range results {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (e *Engine) newDecision(req model.ActionRequest, value model.DecisionValue, reason model.ReasonCode, scores model.ModelScoreSet) model.Decision {
	return model.Decision{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		IdentityID: req.IdentityID,
		CampaignID: req.CampaignID,
		Scope:      req.Scope,
		Channel:    req.Channel,
		Trigger:    req.Trigger,
		ContentRef: req.ContentRef,
		Value:      value,
		Reason:     reason,
		Scores:     scores,
		Execution:  model.ExecutionNone,
		DecidedAt:  e.now(),
	}
}

func (e *Engine) record(ctx context.Context, d model.Decision) (*model.Decision, error) {
	if err := e.store.CreateDecision(ctx, d); err != nil {
		return nil, eris.Wrap(err, "decision: persist")
	}
	e.observe(d)
	return &d, nil
}

func (e *Engine) observe(d model.Decision) {
	zap.L().Info("decision recorded",
		zap.String("decision_id", d.ID),
		zap.String("identity_id", d.IdentityID),
		zap.String("value", string(d.Value)),
		zap.String("reason", string(d.Reason)),
		zap.Float64("composite", d.Scores.Composite))
	if e.OnDecision != nil {
		e.OnDecision(d)
	}
}

func (e *Engine) sensitiveTrigger(trigger model.TriggerType) bool {
	for _, t := range e.cfg.SensitiveTriggers {
		if model.TriggerType(t) == trigger {
			return true
		}
	}
	return false
}

// inSendWindow reports whether the hour falls in [start, end). A zero-width
// window never admits; start=0,end=24 always does.
func (e *Engine) inSendWindow(now time.Time) bool {
	h := now.Hour()
	return h >= e.cfg.SendWindowStart && h < e.cfg.SendWindowEnd
}

// consumeAllowance draws expected cost from the active run's allowance for
// the scope. No active run means no allowance gating.
func (e *Engine) consumeAllowance(scope model.ScopePath, cost float64) bool {
	run := e.allocation.Load()
	if run == nil {
		return true
	}
	allowance := run.AllowanceFor(scope)
	key := scope.String()

	e.allowMu.Lock()
	defer e.allowMu.Unlock()
	if e.allowanceUse[key]+cost > allowance {
		return false
	}
	e.allowanceUse[key] += cost
	return true
}

func (e *Engine) refundAllowance(scope model.ScopePath, cost float64) {
	if e.allocation.Load() == nil {
		return
	}
	e.allowMu.Lock()
	defer e.allowMu.Unlock()
	e.allowanceUse[scope.String()] -= cost
}
