// Package store defines the persistence interface for the outreach engine
// and its SQLite and Postgres implementations.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = eris.New("store: not found")

// IdentityQuery specifies lookup criteria for matcher strategies. Exactly
// the populated fields are applied, ANDed together.
type IdentityQuery struct {
	Email        string // matched against identity emails
	PhoneDigits  string // full normalized digits
	PhoneLast4   string // last four digits
	Platform     string // social platform, used with Handle
	Handle       string
	NameKey      string // normalized "first|last"
	PostalCode   string
	VerifiedOnly bool // restrict email/phone matches to verified entries
	Limit        int
}

// DecisionFilter specifies criteria for listing decisions.
type DecisionFilter struct {
	Value      model.DecisionValue   `json:"value,omitempty"`
	Execution  model.ExecutionStatus `json:"execution,omitempty"`
	CampaignID string                `json:"campaign_id,omitempty"`
	Since      time.Time             `json:"since,omitempty"`
	Limit      int                   `json:"limit,omitempty"`
}

// Store defines the persistence interface for the decision engine.
type Store interface {
	// Contacts. IngestContacts is idempotent on record fingerprint and
	// returns the number of genuinely new records.
	IngestContacts(ctx context.Context, records []model.ContactRecord) (int, error)
	ListContacts(ctx context.Context, state model.EnrichmentState, limit int) ([]model.ContactRecord, error)
	GetContact(ctx context.Context, id string) (*model.ContactRecord, error)
	UpdateContactEnrichment(ctx context.Context, id string, state model.EnrichmentState) error
	SetMatchOutcome(ctx context.Context, id string, outcome model.MatchOutcome, state model.EnrichmentState) error

	// Identities
	CreateIdentity(ctx context.Context, identity model.MasterIdentity) error
	GetIdentity(ctx context.Context, id string) (*model.MasterIdentity, error)
	FindIdentities(ctx context.Context, q IdentityQuery) ([]model.MasterIdentity, error)

	// Decisions. Decisions are immutable; AppendExecutionOutcome writes
	// only the execution fields, never the decision itself.
	CreateDecision(ctx context.Context, d model.Decision) error
	GetDecision(ctx context.Context, id string) (*model.Decision, error)
	ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error)
	AppendExecutionOutcome(ctx context.Context, id string, status model.ExecutionStatus, actualCost float64, succeeded bool) error
	LastGoContact(ctx context.Context, identityID string, channel model.Channel) (*time.Time, error)

	// Ledger. Transactions are append-only.
	AppendTransaction(ctx context.Context, txn model.CostTransaction) error
	ListTransactions(ctx context.Context, scope model.ScopePath, since time.Time) ([]model.CostTransaction, error)
	UpsertScope(ctx context.Context, scope model.BudgetScope) error
	ListScopes(ctx context.Context) ([]model.BudgetScope, error)

	// Allocation runs
	CreateAllocationRun(ctx context.Context, run model.AllocationRun) error
	LatestAllocationRun(ctx context.Context) (*model.AllocationRun, error)

	// Audit log, append-only.
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
