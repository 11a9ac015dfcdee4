package database

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
)

func newMockDriver(t *testing.T) (*SQLDriver, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	drv, err := NewSQLDriver(context.Background(), db)
	require.NoError(t, err)
	return drv, mock
}

func TestReturnsRows(t *testing.T) {
	tests := map[string]bool{
		"SELECT * FROM foo":                              true,
		"  select 1 from rdb$database":                   true,
		"with data as (select 1 from rdb$database)":      true,
		"(SELECT 1 FROM RDB$DATABASE)":                   true,
		"/* hint */ SELECT 1 FROM RDB$DATABASE":          true,
		"INSERT INTO t (a) VALUES (?) RETURNING id":      true,
		"update foo set a = 1":                           false,
		"delete from foo":                                false,
		"CREATE TABLE returning_things (id INTEGER)":     false,
		"EXECUTE BLOCK RETURNS (n INTEGER) AS BEGIN END": true,
	}

	for query, expected := range tests {
		assert.Equal(t, expected, returnsRows(query), query)
	}
}

func TestExecuteQueryAndExec(t *testing.T) {
	drv, mock := newMockDriver(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT ID, NAME FROM USERS WHERE ID = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"ID", "NAME"}).AddRow(1, "ada"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE USERS SET NAME = ?")).
		WithArgs("bob").
		WillReturnResult(sqlmock.NewResult(0, 3))

	payload, err := drv.Execute(ctx, "SELECT ID, NAME FROM USERS WHERE ID = ?", []any{1})
	require.NoError(t, err)
	rs, err := NewNormalizer("UTF8").Normalize(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	require.Len(t, rs.Rows, 1)
	assert.Equal(t, "ada", rs.Rows[0][1].Str())

	payload, err = drv.Execute(ctx, "UPDATE USERS SET NAME = ?", []any{"bob"})
	require.NoError(t, err)
	rs, err = NewNormalizer("UTF8").Normalize(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rs.RowsAffected)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginTransactionVerifiesIsolation(t *testing.T) {
	drv, mock := newMockDriver(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(dialect.IsolationLevelQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"RDB$GET_CONTEXT"}).AddRow("SNAPSHOT"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM USERS")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, drv.BeginTransaction(ctx, dialect.RepeatableRead, dialect.CapabilitiesForVersion(40002)))
	assert.True(t, drv.InTransaction())

	_, err := drv.Execute(ctx, "DELETE FROM USERS", nil)
	require.NoError(t, err)

	require.NoError(t, drv.Commit(ctx))
	assert.False(t, drv.InTransaction())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginTransactionRollsBackOnIsolationMismatch(t *testing.T) {
	drv, mock := newMockDriver(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(dialect.IsolationLevelQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"RDB$GET_CONTEXT"}).AddRow("READ COMMITTED"))
	mock.ExpectRollback()

	err := drv.BeginTransaction(ctx, dialect.Serializable, dialect.CapabilitiesForVersion(30010))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READ COMMITTED")
	assert.False(t, drv.InTransaction())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginTransactionRollsBackWhenLevelCheckFails(t *testing.T) {
	drv, mock := newMockDriver(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(dialect.IsolationLevelQuery)).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := drv.BeginTransaction(ctx, dialect.ReadCommitted, dialect.CapabilitiesForVersion(30010))
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, drv.InTransaction())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitWithoutTransaction(t *testing.T) {
	drv, _ := newMockDriver(t)

	err := drv.Commit(context.Background())
	require.ErrorIs(t, err, dialect.ErrInvalidOperation)
	require.NoError(t, drv.Rollback(context.Background()))
}

func TestLostConnectionMarksDriverClosed(t *testing.T) {
	drv, mock := newMockDriver(t)

	mock.ExpectExec("DELETE").WillReturnError(sql.ErrConnDone)

	_, err := drv.Execute(context.Background(), "DELETE FROM USERS", nil)
	require.Error(t, err)
	assert.False(t, drv.IsOpen())

	require.NoError(t, drv.Reconnect(context.Background()))
	assert.True(t, drv.IsOpen())
}

func TestBeginTransactionConfirmsReadConsistency(t *testing.T) {
	drv, mock := newMockDriver(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(dialect.IsolationLevelQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"RDB$GET_CONTEXT"}).AddRow("READ COMMITTED"))
	mock.ExpectQuery(regexp.QuoteMeta(dialect.TransactionModeQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"MON$ISOLATION_MODE"}).AddRow(dialect.ReadConsistencyMode))

	require.NoError(t, drv.BeginTransaction(ctx, dialect.ReadCommitted, dialect.CapabilitiesForVersion(40002)))
	assert.True(t, drv.InTransaction())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginTransactionRejectsPlainReadCommittedOnV4(t *testing.T) {
	drv, mock := newMockDriver(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(dialect.IsolationLevelQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"RDB$GET_CONTEXT"}).AddRow("READ COMMITTED"))
	mock.ExpectQuery(regexp.QuoteMeta(dialect.TransactionModeQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"MON$ISOLATION_MODE"}).AddRow(2))
	mock.ExpectRollback()

	err := drv.BeginTransaction(ctx, dialect.ReadCommitted, dialect.CapabilitiesForVersion(50001))
	require.ErrorIs(t, err, dialect.ErrUnsupported)
	assert.Contains(t, err.Error(), "READ COMMITTED READ CONSISTENCY")
	assert.False(t, drv.InTransaction())
	require.NoError(t, mock.ExpectationsWereMet())
}
