package adapter

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
)

func (f *fixture) expectStatement(query string) {
	f.mock.ExpectExec("^" + regexp.QuoteMeta(query) + "$").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestSavepointScope(t *testing.T) {
	f := newFixture(t, "3.0.10")
	tx := f.adapter.Tx()
	ctx := context.Background()

	f.expectBegin("READ COMMITTED")
	f.expectStatement("SAVEPOINT A")
	f.expectStatement("SAVEPOINT X")
	f.expectStatement("SAVEPOINT Y")
	f.expectStatement("ROLLBACK TO SAVEPOINT A")
	f.expectStatement("RELEASE SAVEPOINT A")
	f.mock.ExpectCommit()

	require.NoError(t, tx.Begin(ctx, dialect.ReadCommitted))
	for _, name := range []string{"A", "X", "Y"} {
		_, err := tx.CreateSavepoint(ctx, name)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"A", "X", "Y"}, tx.Savepoints())

	require.NoError(t, tx.RollbackToSavepoint(ctx, "A"))
	assert.Equal(t, []string{"A"}, tx.Savepoints())

	assert.ErrorIs(t, tx.RollbackToSavepoint(ctx, "X"), dialect.ErrInvalidOperation)
	assert.ErrorIs(t, tx.ReleaseSavepoint(ctx, "Y"), dialect.ErrInvalidOperation)

	require.NoError(t, tx.ReleaseSavepoint(ctx, "A"))
	assert.Empty(t, tx.Savepoints())

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, Idle, tx.State())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRollbackToSavepointDiscardsLaterInserts(t *testing.T) {
	f := newFixture(t, "3.0.10")
	tx := f.adapter.Tx()
	ctx := context.Background()
	insert := "^" + regexp.QuoteMeta("INSERT INTO items (name) VALUES (?)") + "$"

	f.expectBegin("READ COMMITTED")
	f.expectStatement("SAVEPOINT A")
	f.mock.ExpectExec(insert).WithArgs("X").WillReturnResult(sqlmock.NewResult(0, 1))
	f.expectStatement("SAVEPOINT B")
	f.mock.ExpectExec(insert).WithArgs("Y").WillReturnResult(sqlmock.NewResult(0, 1))
	f.expectStatement("ROLLBACK TO SAVEPOINT A")
	f.mock.ExpectCommit()
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM items WHERE name IN (?, ?)")).
		WithArgs("X", "Y").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT"}).AddRow(int64(0)))

	require.NoError(t, tx.Begin(ctx, dialect.ReadCommitted))
	_, err := tx.CreateSavepoint(ctx, "A")
	require.NoError(t, err)
	_, err = f.adapter.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "X")
	require.NoError(t, err)
	_, err = tx.CreateSavepoint(ctx, "B")
	require.NoError(t, err)
	_, err = f.adapter.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "Y")
	require.NoError(t, err)

	require.NoError(t, tx.RollbackToSavepoint(ctx, "A"))
	assert.Equal(t, []string{"A"}, tx.Savepoints())
	require.NoError(t, tx.Commit(ctx))

	rs, err := f.adapter.Exec(ctx, "SELECT COUNT(*) FROM items WHERE name IN (?, ?)", "X", "Y")
	require.NoError(t, err)
	count, ok := rs.Scalar()
	require.True(t, ok)
	assert.Equal(t, dialect.Int(0), count)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReleaseDropsLaterSavepoints(t *testing.T) {
	f := newFixture(t, "4.0.2")
	tx := f.adapter.Tx()
	ctx := context.Background()

	f.expectBegin("READ COMMITTED")
	f.expectStatement("SAVEPOINT SAVEPOINT_1")
	f.expectStatement("SAVEPOINT SAVEPOINT_2")
	f.expectStatement("RELEASE SAVEPOINT SAVEPOINT_1")
	f.mock.ExpectRollback()

	require.NoError(t, tx.Begin(ctx, dialect.ReadUncommitted))
	first, err := tx.CreateSavepoint(ctx, "")
	require.NoError(t, err)
	second, err := tx.CreateSavepoint(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "SAVEPOINT_1", first)
	assert.Equal(t, "SAVEPOINT_2", second)

	require.NoError(t, tx.ReleaseSavepoint(ctx, first))
	assert.Empty(t, tx.Savepoints())

	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSavepointWithoutTransaction(t *testing.T) {
	f := newFixture(t, "3.0.10")
	tx := f.adapter.Tx()
	ctx := context.Background()

	_, err := tx.CreateSavepoint(ctx, "A")
	assert.ErrorIs(t, err, dialect.ErrInvalidOperation)

	assert.NoError(t, tx.RollbackToSavepoint(ctx, "A"))
	assert.NoError(t, tx.ReleaseSavepoint(ctx, "A"))
	assert.NoError(t, tx.Rollback(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), dialect.ErrInvalidOperation)
	assert.Equal(t, Idle, tx.State())

	// nothing reached the database
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBeginTwiceFails(t *testing.T) {
	f := newFixture(t, "3.0.10")
	tx := f.adapter.Tx()
	ctx := context.Background()

	f.expectBegin("SNAPSHOT")
	f.mock.ExpectRollback()

	require.NoError(t, tx.Begin(ctx, dialect.RepeatableRead))
	assert.ErrorIs(t, tx.Begin(ctx, dialect.RepeatableRead), dialect.ErrInvalidOperation)
	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestIsolationMismatchRollsBack(t *testing.T) {
	f := newFixture(t, "3.0.10")
	tx := f.adapter.Tx()

	f.expectBegin("SNAPSHOT")
	f.mock.ExpectRollback()

	err := tx.Begin(context.Background(), dialect.Serializable)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SNAPSHOT")
	assert.Equal(t, Idle, tx.State())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFailedCommitAborts(t *testing.T) {
	f := newFixture(t, "3.0.10")
	tx := f.adapter.Tx()
	ctx := context.Background()

	f.expectBegin("CONSISTENCY")
	f.mock.ExpectCommit().WillReturnError(errors.New("lock conflict on no wait transaction"))

	require.NoError(t, tx.Begin(ctx, dialect.Serializable))
	require.Error(t, tx.Commit(ctx))
	assert.Equal(t, Aborted, tx.State())

	_, err := tx.CreateSavepoint(ctx, "A")
	assert.ErrorIs(t, err, dialect.ErrInvalidOperation)
	assert.ErrorIs(t, tx.Begin(ctx, dialect.ReadCommitted), dialect.ErrInvalidOperation)

	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, Idle, tx.State())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLostConnectionAborts(t *testing.T) {
	f := newFixture(t, "3.0.10")
	tx := f.adapter.Tx()
	ctx := context.Background()

	f.expectBegin("READ COMMITTED")
	f.mock.ExpectExec("UPDATE accounts").WillReturnError(sql.ErrConnDone)
	f.mock.ExpectRollback()

	require.NoError(t, tx.Begin(ctx, dialect.ReadCommitted))
	_, err := f.adapter.Run(ctx, "UPDATE accounts SET balance = 0")
	assert.ErrorIs(t, err, dialect.ErrConnectionLost)
	assert.Equal(t, Aborted, tx.State())
	assert.False(t, f.adapter.IsOpen())

	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, Idle, tx.State())
}

func TestTxStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "aborted", Aborted.String())
}

func TestReadCommittedRunsWithReadConsistencyOnV4(t *testing.T) {
	f := newFixture(t, "4.0.2")
	ctx := context.Background()

	f.expectBegin("READ COMMITTED")
	require.NoError(t, f.adapter.Tx().Begin(ctx, dialect.ReadCommitted))

	assert.Equal(t, Active, f.adapter.Tx().State())
	assert.Contains(t, f.logs.String(), "SET TRANSACTION ISOLATION LEVEL READ COMMITTED READ CONSISTENCY")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReadCommittedWithoutReadConsistencyFailsOnV4(t *testing.T) {
	f := newFixture(t, "4.0.2")
	ctx := context.Background()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(regexp.QuoteMeta(dialect.IsolationLevelQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"LEVEL"}).AddRow("READ COMMITTED"))
	f.mock.ExpectQuery(regexp.QuoteMeta(dialect.TransactionModeQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"MODE"}).AddRow(2))
	f.mock.ExpectRollback()

	err := f.adapter.Tx().Begin(ctx, dialect.ReadCommitted)
	require.ErrorIs(t, err, dialect.ErrUnsupported)
	assert.Equal(t, Idle, f.adapter.Tx().State())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReadCommittedOnV3HasNoReadConsistency(t *testing.T) {
	f := newFixture(t, "3.0.10")
	ctx := context.Background()

	f.expectBegin("READ COMMITTED")
	require.NoError(t, f.adapter.Tx().Begin(ctx, dialect.ReadCommitted))

	assert.Contains(t, f.logs.String(), "SET TRANSACTION ISOLATION LEVEL READ COMMITTED")
	assert.NotContains(t, f.logs.String(), "READ CONSISTENCY")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
