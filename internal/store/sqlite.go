package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL UNIQUE,
	enrichment  TEXT NOT NULL DEFAULT 'pending',
	record      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS identities (
	id          TEXT PRIMARY KEY,
	name_key    TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	record      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS identity_emails (
	identity_id TEXT NOT NULL REFERENCES identities(id),
	value       TEXT NOT NULL,
	verified    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS identity_phones (
	identity_id TEXT NOT NULL REFERENCES identities(id),
	digits      TEXT NOT NULL,
	last4       TEXT NOT NULL,
	verified    INTEGER NOT NULL DEFAULT 0
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
	record      TEXT NOT NULL,
	decided_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id          TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	decision_id TEXT,
	kind        TEXT NOT NULL,
	quantity    REAL NOT NULL,
	unit_cost   REAL NOT NULL,
	total       REAL NOT NULL,
	note        TEXT,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scopes (
	path           TEXT PRIMARY KEY,
	period         TEXT NOT NULL,
	allocation     REAL NOT NULL,
	committed      REAL NOT NULL DEFAULT 0,
	spent          REAL NOT NULL DEFAULT 0,
	allow_override INTEGER NOT NULL DEFAULT 0,
	carry_over     INTEGER NOT NULL DEFAULT 0,
	period_start   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS allocation_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME NOT NULL,
	record       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id      TEXT PRIMARY KEY,
	actor   TEXT NOT NULL,
	action  TEXT NOT NULL,
	subject TEXT NOT NULL,
	detail  TEXT,
	at      DATETIME NOT NULL
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) IngestContacts(ctx context.Context, records []model.ContactRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: ingest begin")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	inserted := 0
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
			return 0, eris.Wrap(err, "sqlite: marshal contact")
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO contacts (id, fingerprint, enrichment, record, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(fingerprint) DO NOTHING`,
			rec.ID, rec.Fingerprint(), string(rec.Enrichment), string(recordJSON), now, now,
		)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: insert contact")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: ingest commit")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListContacts(ctx context.Context, state model.EnrichmentState, limit int) ([]model.ContactRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM contacts WHERE enrichment = ? ORDER BY created_at LIMIT ?`,
		string(state), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contacts")
	}
	defer rows.Close()

	var out []model.ContactRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		var rec model.ContactRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal contact")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list contacts rows")
}

func (s *SQLiteStore) GetContact(ctx context.Context, id string) (*model.ContactRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM contacts WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get contact %s", id)
	}
	var rec model.ContactRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal contact")
	}
	return &rec, nil
}

func (s *SQLiteStore) UpdateContactEnrichment(ctx context.Context, id string, state model.EnrichmentState) error {
	rec, err := s.GetContact(ctx, id)
	if err != nil {
		return err
	}
	rec.Enrichment = state
	rec.UpdatedAt = time.Now().UTC()
	return s.writeContact(ctx, rec)
}

func (s *SQLiteStore) SetMatchOutcome(ctx context.Context, id string, outcome model.MatchOutcome, state model.EnrichmentState) error {
	rec, err := s.GetContact(ctx, id)
	if err != nil {
		return err
	}
	rec.Match = &outcome
	rec.Enrichment = state
	rec.UpdatedAt = time.Now().UTC()
	return s.writeContact(ctx, rec)
}

func (s *SQLiteStore) writeContact(ctx context.Context, rec *model.ContactRecord) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal contact")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET enrichment = ?, record = ?, updated_at = ? WHERE id = ?`,
		string(rec.Enrichment), string(recordJSON), rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update contact %s", rec.ID)
	}
	return checkRowsAffected(res, "contact", rec.ID)
}

func (s *SQLiteStore) CreateIdentity(ctx context.Context, identity model.MasterIdentity) error {
	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}

	recordJSON, err := json.Marshal(identity)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal identity")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: create identity begin")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, name_key, postal_code, record, created_at) VALUES (?, ?, ?, ?, ?)`,
		identity.ID, identity.NameKey(), identity.PostalCode, string(recordJSON), identity.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert identity")
	}

	for _, e := range identity.Emails {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO identity_emails (identity_id, value, verified) VALUES (?, ?, ?)`,
			identity.ID, normalizeEmail(e.Value), boolToInt(e.Verified),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert identity email")
		}
	}
	for _, p := range identity.Phones {
		digits := normalizeDigits(p.Value)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO identity_phones (identity_id, digits, last4, verified) VALUES (?, ?, ?, ?)`,
			identity.ID, digits, lastN(digits, 4), boolToInt(p.Verified),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert identity phone")
		}
	}
	for platform, handle := range identity.SocialHandles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO identity_handles (identity_id, platform, handle) VALUES (?, ?, ?)`,
			identity.ID, platform, normalizeHandle(handle),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert identity handle")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: create identity commit")
}

func (s *SQLiteStore) GetIdentity(ctx context.Context, id string) (*model.MasterIdentity, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM identities WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get identity %s", id)
	}
	var ident model.MasterIdentity
	if err := json.Unmarshal([]byte(raw), &ident); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal identity")
	}
	return &ident, nil
}

func (s *SQLiteStore) FindIdentities(ctx context.Context, q IdentityQuery) ([]model.MasterIdentity, error) {
	query, args := buildIdentityQuery(q, sqlitePlaceholders{})
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find identities")
	}
	defer rows.Close()

	var out []model.MasterIdentity
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan identity")
		}
		var ident model.MasterIdentity
		if err := json.Unmarshal([]byte(raw), &ident); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal identity")
		}
		out = append(out, ident)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: find identities rows")
}

func (s *SQLiteStore) CreateDecision(ctx context.Context, d model.Decision) error {
	recordJSON, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal decision")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, request_id, identity_id, campaign_id, scope, channel, value, reason, execution, record, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RequestID, d.IdentityID, d.CampaignID, d.Scope.String(), string(d.Channel),
		string(d.Value), string(d.Reason), string(d.Execution), string(recordJSON), d.DecidedAt,
	)
	return eris.Wrap(err, "sqlite: insert decision")
}

func (s *SQLiteStore) GetDecision(ctx context.Context, id string) (*model.Decision, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM decisions WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get decision %s", id)
	}
	var d model.Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal decision")
	}
	return &d, nil
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error) {
	query := `SELECT record FROM decisions WHERE 1=1`
	var args []any
	if filter.Value != "" {
		query += ` AND value = ?`
		args = append(args, string(filter.Value))
	}
	if filter.Execution != "" {
		query += ` AND execution = ?`
		args = append(args, string(filter.Execution))
	}
	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	if !filter.Since.IsZero() {
		query += ` AND decided_at >= ?`
		args = append(args, filter.Since)
	}
	query += ` ORDER BY decided_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		var d model.Decision
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal decision")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list decisions rows")
}

func (s *SQLiteStore) AppendExecutionOutcome(ctx context.Context, id string, status model.ExecutionStatus, actualCost float64, succeeded bool) error {
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
		return eris.Wrap(err, "sqlite: marshal decision")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE decisions SET execution = ?, record = ? WHERE id = ?`,
		string(status), string(recordJSON), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: append execution outcome %s", id)
	}
	return checkRowsAffected(res, "decision", id)
}

func (s *SQLiteStore) LastGoContact(ctx context.Context, identityID string, channel model.Channel) (*time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(decided_at) FROM decisions WHERE identity_id = ? AND channel = ? AND value = ?`,
		identityID, string(channel), string(model.DecisionGo),
	).Scan(&raw)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last go contact")
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	t, err := parseSQLiteTime(raw.String)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse last go contact")
	}
	return &t, nil
}

func (s *SQLiteStore) AppendTransaction(ctx context.Context, txn model.CostTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, scope, decision_id, kind, quantity, unit_cost, total, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.Scope.String(), txn.DecisionID, string(txn.Kind),
		txn.Quantity, txn.UnitCost, txn.Total, txn.Note, txn.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append transaction")
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, scope model.ScopePath, since time.Time) ([]model.CostTransaction, error) {
	prefix := scope.String()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, decision_id, kind, quantity, unit_cost, total, note, created_at
		 FROM transactions
		 WHERE (scope = ? OR scope LIKE ?) AND created_at >= ?
		 ORDER BY created_at`,
		prefix, prefix+"/%", since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transactions")
	}
	defer rows.Close()

	var out []model.CostTransaction
	for rows.Next() {
		var txn model.CostTransaction
		var scopeStr, kind string
		var decisionID, note sql.NullString
		if err := rows.Scan(&txn.ID, &scopeStr, &decisionID, &kind, &txn.Quantity, &txn.UnitCost, &txn.Total, &note, &txn.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transaction")
		}
		p, err := model.ParseScopePath(scopeStr)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse transaction scope")
		}
		txn.Scope = p
		txn.Kind = model.TransactionKind(kind)
		txn.DecisionID = decisionID.String
		txn.Note = note.String
		out = append(out, txn)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list transactions rows")
}

func (s *SQLiteStore) UpsertScope(ctx context.Context, scope model.BudgetScope) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scopes (path, period, allocation, committed, spent, allow_override, carry_over, period_start)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			period = excluded.period,
			allocation = excluded.allocation,
			committed = excluded.committed,
			spent = excluded.spent,
			allow_override = excluded.allow_override,
			carry_over = excluded.carry_over,
			period_start = excluded.period_start`,
		scope.Path.String(), string(scope.Period), scope.Allocation, scope.Committed, scope.Spent,
		boolToInt(scope.AllowOverride), boolToInt(scope.CarryOver), scope.PeriodStart,
	)
	return eris.Wrap(err, "sqlite: upsert scope")
}

func (s *SQLiteStore) ListScopes(ctx context.Context) ([]model.BudgetScope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, period, allocation, committed, spent, allow_override, carry_over, period_start FROM scopes ORDER BY path`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scopes")
	}
	defer rows.Close()

	var out []model.BudgetScope
	for rows.Next() {
		var b model.BudgetScope
		var pathStr, period string
		var override, carry int
		if err := rows.Scan(&pathStr, &period, &b.Allocation, &b.Committed, &b.Spent, &override, &carry, &b.PeriodStart); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scope")
		}
		p, err := model.ParseScopePath(pathStr)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse scope path")
		}
		b.Path = p
		b.Period = model.Period(period)
		b.AllowOverride = override != 0
		b.CarryOver = carry != 0
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list scopes rows")
}

func (s *SQLiteStore) CreateAllocationRun(ctx context.Context, run model.AllocationRun) error {
	recordJSON, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal allocation run")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO allocation_runs (id, status, started_at, completed_at, record) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.StartedAt, run.CompletedAt, string(recordJSON),
	)
	return eris.Wrap(err, "sqlite: insert allocation run")
}

func (s *SQLiteStore) LatestAllocationRun(ctx context.Context) (*model.AllocationRun, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM allocation_runs ORDER BY completed_at DESC LIMIT 1`,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest allocation run")
	}
	var run model.AllocationRun
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal allocation run")
	}
	return &run, nil
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit detail")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, actor, action, subject, detail, at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Actor, entry.Action, entry.Subject, string(detailJSON), entry.At,
	)
	return eris.Wrap(err, "sqlite: append audit")
}

func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor, action, subject, detail, at FROM audit_log ORDER BY at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var entry model.AuditEntry
		var detail sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.Subject, &detail, &entry.At); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		if detail.Valid && detail.String != "" && detail.String != "null" {
			if err := json.Unmarshal([]byte(detail.String), &entry.Detail); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal audit detail")
			}
		}
		out = append(out, entry)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list audit rows")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized time %q", s)
}
