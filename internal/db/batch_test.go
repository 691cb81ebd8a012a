package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkInsertEmptyRows(t *testing.T) {
	n, err := BulkInsert(context.Background(), nil, BatchConfig{Table: "contacts"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkInsertValidation(t *testing.T) {
	rows := [][]any{{"a"}}

	_, err := BulkInsert(context.Background(), nil, BatchConfig{Table: "contacts", ConflictKeys: []string{"id"}}, rows)
	assert.Error(t, err)

	_, err = BulkInsert(context.Background(), nil, BatchConfig{Table: "contacts", Columns: []string{"id"}}, rows)
	assert.Error(t, err)
}

func TestBulkInsertSkipConflicts(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_ingest_contacts"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_ingest_contacts"}, []string{"id", "fingerprint"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "contacts" .* ON CONFLICT \("fingerprint"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := BulkInsert(context.Background(), mock, BatchConfig{
		Table:         "contacts",
		Columns:       []string{"id", "fingerprint"},
		ConflictKeys:  []string{"fingerprint"},
		SkipConflicts: true,
	}, [][]any{{"1", "fp1"}, {"2", "fp2"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_ingest_scopes"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_ingest_scopes"}, []string{"path", "allocation"}).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "scopes" .* DO UPDATE SET "allocation" = EXCLUDED\."allocation"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := BulkInsert(context.Background(), mock, BatchConfig{
		Table:        "scopes",
		Columns:      []string{"path", "allocation"},
		ConflictKeys: []string{"path"},
	}, [][]any{{"org/camp", 100.0}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
