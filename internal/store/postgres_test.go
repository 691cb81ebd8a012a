package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetDecision_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT record FROM decisions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetDecision(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateDecision(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	scope, _ := model.ParseScopePath("org/camp")
	d := model.Decision{
		ID: "dec-1", RequestID: "req-1", IdentityID: "ident-1", CampaignID: "camp",
		Scope: scope, Channel: model.ChannelEmail, Value: model.DecisionNoGo,
		Reason: model.ReasonInsufficientBudget, Execution: model.ExecutionNone,
		DecidedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO decisions`).
		WithArgs(d.ID, d.RequestID, d.IdentityID, d.CampaignID, "org/camp", "email",
			"no_go", "insufficient_budget", "none", pgxmock.AnyArg(), d.DecidedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateDecision(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastGoContact_Null(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT MAX\(decided_at\) FROM decisions`).
		WithArgs("ident-1", "sms", "go").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow((*time.Time)(nil)))

	got, err := s.LastGoContact(context.Background(), "ident-1", model.ChannelSMS)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendTransaction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	scope, _ := model.ParseScopePath("org/camp/cand")
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(pgxmock.AnyArg(), "org/camp/cand", "dec-1", "reserve",
			1.0, 25.0, 25.0, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendTransaction(context.Background(), model.CostTransaction{
		Scope: scope, DecisionID: "dec-1", Kind: model.TxnReserve,
		Quantity: 1, UnitCost: 25, Total: 25,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestAllocationRun_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT record FROM allocation_runs`).
		WillReturnError(pgx.ErrNoRows)

	run, err := s.LatestAllocationRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}
