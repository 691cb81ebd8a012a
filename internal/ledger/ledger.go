// Package ledger is the serialization point for budget mutations. All spend
// flows through Reserve/Commit/Release against an in-memory scope tree;
// every mutation is mirrored to the append-only transaction log.
package ledger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

var (
	// ErrInsufficient means a scope or one of its ancestors lacks remaining
	// budget for the requested amount.
	ErrInsufficient = eris.New("ledger: insufficient budget")
	// ErrUnbudgeted means no scope along the path carries an allocation.
	ErrUnbudgeted = eris.New("ledger: scope has no budget")
	// ErrUnknownReservation means the reservation was already settled,
	// expired, or never existed.
	ErrUnknownReservation = eris.New("ledger: unknown reservation")
)

// TxnLog is the persistence slice the ledger writes through to.
// ListTransactions must return the scope's own rows plus those of every
// descendant scope, oldest first.
type TxnLog interface {
	AppendTransaction(ctx context.Context, txn model.CostTransaction) error
	ListTransactions(ctx context.Context, scope model.ScopePath, since time.Time) ([]model.CostTransaction, error)
	UpsertScope(ctx context.Context, scope model.BudgetScope) error
	ListScopes(ctx context.Context) ([]model.BudgetScope, error)
}

// Reservation is a provisional hold against a scope's budget. It either
// settles via Commit/Release or expires at ExpiresAt.
type Reservation struct {
	ID         string
	Scope      model.ScopePath
	DecisionID string
	Amount     float64
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

type node struct {
	mu    sync.Mutex
	scope model.BudgetScope
}

// Ledger tracks budget scopes and live reservations. Chain updates lock
// nodes root-first, so concurrent reservations against overlapping scopes
// serialize without deadlocking.
type Ledger struct {
	log TxnLog
	ttl time.Duration
	now func() time.Time

	mu           sync.RWMutex
	nodes        map[string]*node
	reservations map[string]*Reservation

	healthy atomic.Bool

	// OnReserveConflict and OnReservationExpired are optional hooks for
	// metrics and event publication. Set before first use.
	OnReserveConflict    func(scope model.ScopePath)
	OnReservationExpired func(res Reservation)
}

// New creates a ledger persisting through log with the given reservation TTL.
func New(log TxnLog, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	l := &Ledger{
		log:          log,
		ttl:          ttl,
		now:          time.Now,
		nodes:        make(map[string]*node),
		reservations: make(map[string]*Reservation),
	}
	l.healthy.Store(true)
	return l
}

// WithNow fixes the clock for testing.
func (l *Ledger) WithNow(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Load replaces the in-memory tree with the persisted scopes and rebuilds
// each scope's spent total by replaying the settled transactions of its
// subtree since the scope's period start. Holds do not survive a restart:
// nothing can settle a reservation whose in-memory record is gone, so
// committed resets to zero rather than leaking budget forever.
func (l *Ledger) Load(ctx context.Context) error {
	scopes, err := l.log.ListScopes(ctx)
	if err != nil {
		l.healthy.Store(false)
		return eris.Wrap(err, "ledger: load scopes")
	}
	nodes := make(map[string]*node, len(scopes))
	for _, s := range scopes {
		spent, err := l.replaySpent(ctx, s)
		if err != nil {
			l.healthy.Store(false)
			return err
		}
		s.Spent = spent
		s.Committed = 0
		nodes[s.Path.String()] = &node{scope: s}
	}
	l.mu.Lock()
	l.nodes = nodes
	l.mu.Unlock()
	l.healthy.Store(true)
	return nil
}

// replaySpent folds the scope's settled entries back into a spent total.
// Commits carry a positive total and credits a negative one; reserves and
// releases only move holds, which are not reconstructed.
func (l *Ledger) replaySpent(ctx context.Context, s model.BudgetScope) (float64, error) {
	txns, err := l.log.ListTransactions(ctx, s.Path, s.PeriodStart)
	if err != nil {
		return 0, eris.Wrapf(err, "ledger: replay transactions for %s", s.Path)
	}
	spent := 0.0
	for _, txn := range txns {
		switch txn.Kind {
		case model.TxnCommit, model.TxnCredit:
			spent += txn.Total
		}
	}
	return spent, nil
}

// SetScope creates or replaces a budget scope and persists it.
func (l *Ledger) SetScope(ctx context.Context, scope model.BudgetScope) error {
	if scope.PeriodStart.IsZero() {
		scope.PeriodStart = periodStart(scope.Period, l.now())
	}
	if err := l.log.UpsertScope(ctx, scope); err != nil {
		l.healthy.Store(false)
		return eris.Wrap(err, "ledger: persist scope")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := scope.Path.String()
	if n, ok := l.nodes[key]; ok {
		n.mu.Lock()
		n.scope = scope
		n.mu.Unlock()
	} else {
		l.nodes[key] = &node{scope: scope}
	}
	return nil
}

// Healthy reports whether the last interaction with the transaction log
// succeeded. Decision evaluation refuses to admit spend while unhealthy.
func (l *Ledger) Healthy() bool { return l.healthy.Load() }

// chain returns the configured nodes along the path, root first.
func (l *Ledger) chain(scope model.ScopePath) []*node {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*node
	seen := make(map[string]bool, 5)
	p := scope
	for {
		key := p.String()
		if seen[key] {
			break
		}
		seen[key] = true
		if n, ok := l.nodes[key]; ok {
			out = append(out, n)
		}
		parent := p.Parent()
		if parent == p {
			break
		}
		p = parent
	}
	// Collected leaf-first; flip to root-first for lock ordering.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].scope.Path.Depth() < out[j].scope.Path.Depth()
	})
	return out
}

// Reserve places a provisional hold of amount against scope. Every budgeted
// ancestor must have the headroom (unless flagged AllowOverride); the hold
// expires after the ledger TTL if never settled.
func (l *Ledger) Reserve(ctx context.Context, scope model.ScopePath, decisionID string, amount float64) (Reservation, error) {
	if amount <= 0 {
		return Reservation{}, eris.Errorf("ledger: reserve amount %.2f must be positive", amount)
	}
	chain := l.chain(scope)
	if len(chain) == 0 {
		return Reservation{}, eris.Wrapf(ErrUnbudgeted, "%s", scope)
	}

	now := l.now()
	lockChain(chain)
	defer unlockChain(chain)

	for _, n := range chain {
		l.rollover(&n.scope, now)
		if n.scope.AllowOverride {
			continue
		}
		if n.scope.Remaining() < amount {
			if l.OnReserveConflict != nil {
				l.OnReserveConflict(n.scope.Path)
			}
			return Reservation{}, eris.Wrapf(ErrInsufficient, "%s: remaining %.2f, need %.2f",
				n.scope.Path, n.scope.Remaining(), amount)
		}
	}
	for _, n := range chain {
		n.scope.Committed += amount
	}

	res := Reservation{
		ID:         uuid.NewString(),
		Scope:      scope,
		DecisionID: decisionID,
		Amount:     amount,
		CreatedAt:  now,
		ExpiresAt:  now.Add(l.ttl),
	}

	if err := l.append(ctx, model.CostTransaction{
		ID:         res.ID,
		Scope:      scope,
		DecisionID: decisionID,
		Kind:       model.TxnReserve,
		Quantity:   1,
		UnitCost:   amount,
		Total:      amount,
		CreatedAt:  now,
	}); err != nil {
		for _, n := range chain {
			n.scope.Committed -= amount
		}
		return Reservation{}, err
	}

	l.mu.Lock()
	l.reservations[res.ID] = &res
	l.mu.Unlock()
	return res, nil
}

// Commit settles a reservation at its actual cost: the hold is released and
// the actual amount moves to spent.
func (l *Ledger) Commit(ctx context.Context, reservationID string, actual float64) error {
	res, err := l.take(reservationID)
	if err != nil {
		return err
	}

	chain := l.chain(res.Scope)
	lockChain(chain)
	for _, n := range chain {
		n.scope.Committed -= res.Amount
		n.scope.Spent += actual
	}
	unlockChain(chain)

	return l.append(ctx, model.CostTransaction{
		ID:         uuid.NewString(),
		Scope:      res.Scope,
		DecisionID: res.DecisionID,
		Kind:       model.TxnCommit,
		Quantity:   1,
		UnitCost:   actual,
		Total:      actual,
		Note:       "reservation " + res.ID,
		CreatedAt:  l.now(),
	})
}

// Release drops a reservation without spending.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	res, err := l.take(reservationID)
	if err != nil {
		return err
	}
	l.releaseHold(*res)

	return l.append(ctx, model.CostTransaction{
		ID:         uuid.NewString(),
		Scope:      res.Scope,
		DecisionID: res.DecisionID,
		Kind:       model.TxnRelease,
		Quantity:   1,
		UnitCost:   res.Amount,
		Total:      -res.Amount,
		Note:       "reservation " + res.ID,
		CreatedAt:  l.now(),
	})
}

// Credit posts a compensating entry reducing spent at scope. Debits are never
// edited; a failed dispatch after commit is corrected by credit alone.
func (l *Ledger) Credit(ctx context.Context, scope model.ScopePath, decisionID string, amount float64, note string) error {
	if amount <= 0 {
		return eris.Errorf("ledger: credit amount %.2f must be positive", amount)
	}
	chain := l.chain(scope)
	lockChain(chain)
	for _, n := range chain {
		n.scope.Spent -= amount
	}
	unlockChain(chain)

	return l.append(ctx, model.CostTransaction{
		ID:         uuid.NewString(),
		Scope:      scope,
		DecisionID: decisionID,
		Kind:       model.TxnCredit,
		Quantity:   1,
		UnitCost:   amount,
		Total:      -amount,
		Note:       note,
		CreatedAt:  l.now(),
	})
}

// Remaining reports the budget still available to scope: its own headroom if
// budgeted, otherwise the tightest budgeted ancestor's.
func (l *Ledger) Remaining(scope model.ScopePath) (float64, error) {
	chain := l.chain(scope)
	if len(chain) == 0 {
		return 0, eris.Wrapf(ErrUnbudgeted, "%s", scope)
	}
	now := l.now()
	lockChain(chain)
	defer unlockChain(chain)

	remaining := 0.0
	for i, n := range chain {
		l.rollover(&n.scope, now)
		r := n.scope.Remaining()
		if i == 0 || r < remaining {
			remaining = r
		}
	}
	return remaining, nil
}

// Scopes returns a snapshot of every budgeted scope, rolled over to now and
// sorted by path.
func (l *Ledger) Scopes() []model.BudgetScope {
	l.mu.RLock()
	nodes := make([]*node, 0, len(l.nodes))
	for _, n := range l.nodes {
		nodes = append(nodes, n)
	}
	l.mu.RUnlock()

	now := l.now()
	out := make([]model.BudgetScope, 0, len(nodes))
	for _, n := range nodes {
		n.mu.Lock()
		l.rollover(&n.scope, now)
		out = append(out, n.scope)
		n.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path.String() < out[j].Path.String()
	})
	return out
}

func (l *Ledger) take(reservationID string) (*Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[reservationID]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownReservation, "%s", reservationID)
	}
	delete(l.reservations, reservationID)
	return res, nil
}

func (l *Ledger) releaseHold(res Reservation) {
	chain := l.chain(res.Scope)
	lockChain(chain)
	for _, n := range chain {
		n.scope.Committed -= res.Amount
	}
	unlockChain(chain)
}

func (l *Ledger) append(ctx context.Context, txn model.CostTransaction) error {
	if err := l.log.AppendTransaction(ctx, txn); err != nil {
		l.healthy.Store(false)
		return eris.Wrap(err, "ledger: append transaction")
	}
	l.healthy.Store(true)
	return nil
}

// rollover resets period totals once the scope's period has elapsed. Surplus
// is added to the next period's allocation only for carry-over scopes. Caller
// holds the node lock.
func (l *Ledger) rollover(s *model.BudgetScope, now time.Time) {
	start := periodStart(s.Period, now)
	if !start.After(s.PeriodStart) {
		return
	}
	if s.CarryOver {
		if surplus := s.Allocation - s.Spent; surplus > 0 {
			s.Allocation += surplus
		}
	}
	// Committed survives rollover: live reservations still settle.
	s.Spent = 0
	s.PeriodStart = start
}

func periodStart(p model.Period, now time.Time) time.Time {
	now = now.UTC()
	if p == model.PeriodMonthly {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func lockChain(chain []*node) {
	for _, n := range chain {
		n.mu.Lock()
	}
}

func unlockChain(chain []*node) {
	for i := len(chain) - 1; i >= 0; i-- {
		chain[i].mu.Unlock()
	}
}

// Sweep releases expired reservations, posting release transactions and
// logging each as an anomaly. Returns the number released.
func (l *Ledger) Sweep(ctx context.Context) int {
	now := l.now()

	l.mu.Lock()
	var expired []*Reservation
	for id, res := range l.reservations {
		if now.After(res.ExpiresAt) {
			expired = append(expired, res)
			delete(l.reservations, id)
		}
	}
	l.mu.Unlock()

	for _, res := range expired {
		l.releaseHold(*res)
		zap.L().Warn("reservation expired without settlement",
			zap.String("reservation_id", res.ID),
			zap.String("scope", res.Scope.String()),
			zap.String("decision_id", res.DecisionID),
			zap.Float64("amount", res.Amount))
		if l.OnReservationExpired != nil {
			l.OnReservationExpired(*res)
		}
		if err := l.append(ctx, model.CostTransaction{
			ID:         uuid.NewString(),
			Scope:      res.Scope,
			DecisionID: res.DecisionID,
			Kind:       model.TxnRelease,
			Quantity:   1,
			UnitCost:   res.Amount,
			Total:      -res.Amount,
			Note:       "expired reservation " + res.ID,
			CreatedAt:  now,
		}); err != nil {
			zap.L().Error("expired reservation release not persisted",
				zap.String("reservation_id", res.ID),
				zap.Error(err))
		}
	}
	return len(expired)
}

// Run sweeps expired reservations on the given interval until ctx ends.
func (l *Ledger) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(ctx)
		}
	}
}
