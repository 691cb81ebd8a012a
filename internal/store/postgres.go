package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/groundgame-labs/outreach-engine/internal/db"
	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// preparedStatements lists queries to prepare on each new connection for
// the hottest store operations on the decision path.
var preparedStatements = map[string]string{
	"insert_decision":   `INSERT INTO decisions (id, request_id, identity_id, campaign_id, scope, channel, value, reason, execution, record, decided_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"insert_txn":        `INSERT INTO transactions (id, scope, decision_id, kind, quantity, unit_cost, total, note, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"last_go_contact":   `SELECT MAX(decided_at) FROM decisions WHERE identity_id = $1 AND channel = $2 AND value = $3`,
	"get_decision":      `SELECT record FROM decisions WHERE id = $1`,
	"append_execution":  `UPDATE decisions SET execution = $1, record = $2 WHERE id = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL UNIQUE,
	enrichment  TEXT NOT NULL DEFAULT 'pending',
	record      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS identities (
	id          TEXT PRIMARY KEY,
	name_key    TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	record      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS identity_emails (
	identity_id TEXT NOT NULL REFERENCES identities(id),
	value       TEXT NOT NULL,
	verified    INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS identity_phones (
	identity_id TEXT NOT NULL REFERENCES identities(id),
	digits      TEXT NOT NULL,
	last4       TEXT NOT NULL,
	verified    INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS identity_handles (
	identity_id TEXT NOT NULL REFERENCES identities(id),
	platform    TEXT NOT NULL,
	handle      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id          TEXT PRIMARY KEY,
	request_id  TEXT NOT NULL,
	identity_id TEXT NOT NULL,
	campaign_id TEXT NOT NULL,
	scope       TEXT NOT NULL,
	channel     TEXT NOT NULL,
	value       TEXT NOT NULL,
	reason      TEXT NOT NULL,
	execution   TEXT NOT NULL,
	record      JSONB NOT NULL,
	decided_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id          TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	decision_id TEXT,
	kind        TEXT NOT NULL,
	quantity    DOUBLE PRECISION NOT NULL,
	unit_cost   DOUBLE PRECISION NOT NULL,
	total       DOUBLE PRECISION NOT NULL,
	note        TEXT,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scopes (
	path           TEXT PRIMARY KEY,
	period         TEXT NOT NULL,
	allocation     DOUBLE PRECISION NOT NULL,
	committed      DOUBLE PRECISION NOT NULL DEFAULT 0,
	spent          DOUBLE PRECISION NOT NULL DEFAULT 0,
	allow_override INT NOT NULL DEFAULT 0,
	carry_over     INT NOT NULL DEFAULT 0,
	period_start   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS allocation_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	record       JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id      TEXT PRIMARY KEY,
	actor   TEXT NOT NULL,
	action  TEXT NOT NULL,
	subject TEXT NOT NULL,
	detail  JSONB,
	at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_enrichment ON contacts(enrichment);
CREATE INDEX IF NOT EXISTS idx_identity_emails_value ON identity_emails(value);
CREATE INDEX IF NOT EXISTS idx_identity_phones_digits ON identity_phones(digits);
CREATE INDEX IF NOT EXISTS idx_identity_phones_last4 ON identity_phones(last4);
CREATE INDEX IF NOT EXISTS idx_identity_handles ON identity_handles(platform, handle);
CREATE INDEX IF NOT EXISTS idx_identities_name_key ON identities(name_key);
CREATE INDEX IF NOT EXISTS idx_decisions_identity_channel ON decisions(identity_id, channel, decided_at);
CREATE INDEX IF NOT EXISTS idx_decisions_value ON decisions(value);
CREATE INDEX IF NOT EXISTS idx_transactions_scope ON transactions(scope);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);
CREATE INDEX IF NOT EXISTS idx_allocation_runs_completed ON allocation_runs(completed_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) IngestContacts(ctx context.Context, records []model.ContactRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.Enrichment == "" {
			rec.Enrichment = model.EnrichmentPending
		}
		rec.CreatedAt = now
		rec.UpdatedAt = now

		recordJSON, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal contact")
		}
		rows = append(rows, []any{rec.ID, rec.Fingerprint(), string(rec.Enrichment), recordJSON, now, now})
	}

	n, err := db.BulkInsert(ctx, s.pool, db.BatchConfig{
		Table:         "contacts",
		Columns:       []string{"id", "fingerprint", "enrichment", "record", "created_at", "updated_at"},
		ConflictKeys:  []string{"fingerprint"},
		SkipConflicts: true,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: ingest contacts")
	}
	return int(n), nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, state model.EnrichmentState, limit int) ([]model.ContactRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM contacts WHERE enrichment = $1 ORDER BY created_at LIMIT $2`,
		string(state), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	var out []model.ContactRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		var rec model.ContactRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal contact")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list contacts rows")
}

func (s *PostgresStore) GetContact(ctx context.Context, id string) (*model.ContactRecord, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM contacts WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get contact %s", id)
	}
	var rec model.ContactRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal contact")
	}
	return &rec, nil
}

func (s *PostgresStore) UpdateContactEnrichment(ctx context.Context, id string, state model.EnrichmentState) error {
	rec, err := s.GetContact(ctx, id)
	if err != nil {
		return err
	}
	rec.Enrichment = state
	rec.UpdatedAt = time.Now().UTC()
	return s.writeContact(ctx, rec)
}

func (s *PostgresStore) SetMatchOutcome(ctx context.Context, id string, outcome model.MatchOutcome, state model.EnrichmentState) error {
	rec, err := s.GetContact(ctx, id)
	if err != nil {
		return err
	}
	rec.Match = &outcome
	rec.Enrichment = state
	rec.UpdatedAt = time.Now().UTC()
	return s.writeContact(ctx, rec)
}

func (s *PostgresStore) writeContact(ctx context.Context, rec *model.ContactRecord) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal contact")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET enrichment = $1, record = $2, updated_at = $3 WHERE id = $4`,
		string(rec.Enrichment), recordJSON, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update contact %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateIdentity(ctx context.Context, identity model.MasterIdentity) error {
	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}

	recordJSON, err := json.Marshal(identity)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal identity")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: create identity begin")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO identities (id, name_key, postal_code, record, created_at) VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.NameKey(), identity.PostalCode, recordJSON, identity.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert identity")
	}

	for _, e := range identity.Emails {
		if _, err := tx.Exec(ctx,
			`INSERT INTO identity_emails (identity_id, value, verified) VALUES ($1, $2, $3)`,
			identity.ID, normalizeEmail(e.Value), boolToInt(e.Verified),
		); err != nil {
			return eris.Wrap(err, "postgres: insert identity email")
		}
	}
	for _, p := range identity.Phones {
		digits := normalizeDigits(p.Value)
		if _, err := tx.Exec(ctx,
			`INSERT INTO identity_phones (identity_id, digits, last4, verified) VALUES ($1, $2, $3, $4)`,
			identity.ID, digits, lastN(digits, 4), boolToInt(p.Verified),
		); err != nil {
			return eris.Wrap(err, "postgres: insert identity phone")
		}
	}
	for platform, handle := range identity.SocialHandles {
		if _, err := tx.Exec(ctx,
			`INSERT INTO identity_handles (identity_id, platform, handle) VALUES ($1, $2, $3)`,
			identity.ID, platform, normalizeHandle(handle),
		); err != nil {
			return eris.Wrap(err, "postgres: insert identity handle")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: create identity commit")
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id string) (*model.MasterIdentity, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM identities WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get identity %s", id)
	}
	var ident model.MasterIdentity
	if err := json.Unmarshal(raw, &ident); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal identity")
	}
	return &ident, nil
}

func (s *PostgresStore) FindIdentities(ctx context.Context, q IdentityQuery) ([]model.MasterIdentity, error) {
	query, args := buildIdentityQuery(q, postgresPlaceholders{})
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find identities")
	}
	defer rows.Close()

	var out []model.MasterIdentity
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan identity")
		}
		var ident model.MasterIdentity
		if err := json.Unmarshal(raw, &ident); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal identity")
		}
		out = append(out, ident)
	}
	return out, eris.Wrap(rows.Err(), "postgres: find identities rows")
}

func (s *PostgresStore) CreateDecision(ctx context.Context, d model.Decision) error {
	recordJSON, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (id, request_id, identity_id, campaign_id, scope, channel, value, reason, execution, record, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.RequestID, d.IdentityID, d.CampaignID, d.Scope.String(), string(d.Channel),
		string(d.Value), string(d.Reason), string(d.Execution), recordJSON, d.DecidedAt,
	)
	return eris.Wrap(err, "postgres: insert decision")
}

func (s *PostgresStore) GetDecision(ctx context.Context, id string) (*model.Decision, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM decisions WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get decision %s", id)
	}
	var d model.Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal decision")
	}
	return &d, nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error) {
	query := `SELECT record FROM decisions WHERE 1=1`
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return postgresPlaceholders{}.placeholder(len(args))
	}
	if filter.Value != "" {
		query += ` AND value = ` + next(string(filter.Value))
	}
	if filter.Execution != "" {
		query += ` AND execution = ` + next(string(filter.Execution))
	}
	if filter.CampaignID != "" {
		query += ` AND campaign_id = ` + next(filter.CampaignID)
	}
	if !filter.Since.IsZero() {
		query += ` AND decided_at >= ` + next(filter.Since)
	}
	query += ` ORDER BY decided_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + next(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		var d model.Decision
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal decision")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decisions rows")
}

func (s *PostgresStore) AppendExecutionOutcome(ctx context.Context, id string, status model.ExecutionStatus, actualCost float64, succeeded bool) error {
	d, err := s.GetDecision(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	d.Execution = status
	d.ActualCost = &actualCost
	d.Succeeded = &succeeded
	d.ExecutedAt = &now

	recordJSON, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE decisions SET execution = $1, record = $2 WHERE id = $3`,
		string(status), recordJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: append execution outcome %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) LastGoContact(ctx context.Context, identityID string, channel model.Channel) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(decided_at) FROM decisions WHERE identity_id = $1 AND channel = $2 AND value = $3`,
		identityID, string(channel), string(model.DecisionGo),
	).Scan(&t)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: last go contact")
	}
	return t, nil
}

func (s *PostgresStore) AppendTransaction(ctx context.Context, txn model.CostTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, scope, decision_id, kind, quantity, unit_cost, total, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txn.ID, txn.Scope.String(), txn.DecisionID, string(txn.Kind),
		txn.Quantity, txn.UnitCost, txn.Total, txn.Note, txn.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append transaction")
}

func (s *PostgresStore) ListTransactions(ctx context.Context, scope model.ScopePath, since time.Time) ([]model.CostTransaction, error) {
	prefix := scope.String()
	rows, err := s.pool.Query(ctx,
		`SELECT id, scope, decision_id, kind, quantity, unit_cost, total, note, created_at
		 FROM transactions
		 WHERE (scope = $1 OR scope LIKE $2) AND created_at >= $3
		 ORDER BY created_at`,
		prefix, prefix+"/%", since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transactions")
	}
	defer rows.Close()

	var out []model.CostTransaction
	for rows.Next() {
		var txn model.CostTransaction
		var scopeStr, kind string
		var decisionID, note *string
		if err := rows.Scan(&txn.ID, &scopeStr, &decisionID, &kind, &txn.Quantity, &txn.UnitCost, &txn.Total, &note, &txn.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transaction")
		}
		p, err := model.ParseScopePath(scopeStr)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: parse transaction scope")
		}
		txn.Scope = p
		txn.Kind = model.TransactionKind(kind)
		if decisionID != nil {
			txn.DecisionID = *decisionID
		}
		if note != nil {
			txn.Note = *note
		}
		out = append(out, txn)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list transactions rows")
}

func (s *PostgresStore) UpsertScope(ctx context.Context, scope model.BudgetScope) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scopes (path, period, allocation, committed, spent, allow_override, carry_over, period_start)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (path) DO UPDATE SET
			period = EXCLUDED.period,
			allocation = EXCLUDED.allocation,
			committed = EXCLUDED.committed,
			spent = EXCLUDED.spent,
			allow_override = EXCLUDED.allow_override,
			carry_over = EXCLUDED.carry_over,
			period_start = EXCLUDED.period_start`,
		scope.Path.String(), string(scope.Period), scope.Allocation, scope.Committed, scope.Spent,
		boolToInt(scope.AllowOverride), boolToInt(scope.CarryOver), scope.PeriodStart,
	)
	return eris.Wrap(err, "postgres: upsert scope")
}

func (s *PostgresStore) ListScopes(ctx context.Context) ([]model.BudgetScope, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT path, period, allocation, committed, spent, allow_override, carry_over, period_start FROM scopes ORDER BY path`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scopes")
	}
	defer rows.Close()

	var out []model.BudgetScope
	for rows.Next() {
		var b model.BudgetScope
		var pathStr, period string
		var override, carry int
		if err := rows.Scan(&pathStr, &period, &b.Allocation, &b.Committed, &b.Spent, &override, &carry, &b.PeriodStart); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scope")
		}
		p, err := model.ParseScopePath(pathStr)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: parse scope path")
		}
		b.Path = p
		b.Period = model.Period(period)
		b.AllowOverride = override != 0
		b.CarryOver = carry != 0
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list scopes rows")
}

func (s *PostgresStore) CreateAllocationRun(ctx context.Context, run model.AllocationRun) error {
	recordJSON, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal allocation run")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO allocation_runs (id, status, started_at, completed_at, record) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Status), run.StartedAt, run.CompletedAt, recordJSON,
	)
	return eris.Wrap(err, "postgres: insert allocation run")
}

func (s *PostgresStore) LatestAllocationRun(ctx context.Context) (*model.AllocationRun, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM allocation_runs ORDER BY completed_at DESC LIMIT 1`,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest allocation run")
	}
	var run model.AllocationRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal allocation run")
	}
	return &run, nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit detail")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, actor, action, subject, detail, at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Actor, entry.Action, entry.Subject, detailJSON, entry.At,
	)
	return eris.Wrap(err, "postgres: append audit")
}

func (s *PostgresStore) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, actor, action, subject, detail, at FROM audit_log ORDER BY at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var entry model.AuditEntry
		var detail []byte
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.Subject, &detail, &entry.At); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		if len(detail) > 0 && string(detail) != "null" {
			if err := json.Unmarshal(detail, &entry.Detail); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal audit detail")
			}
		}
		out = append(out, entry)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list audit rows")
}
