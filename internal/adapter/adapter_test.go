package adapter

import (
	"bytes"
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/fbadapter/internal/database"
	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
	"github.com/kadirbelkuyu/fbadapter/pkg/logger"
)

type fixture struct {
	adapter *Adapter
	mock    sqlmock.Sqlmock
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, version string) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	drv, err := database.NewSQLDriver(context.Background(), db)
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	a := New(drv, Options{Charset: "UTF8"}, logger.New(logs, true))

	mock.ExpectQuery(regexp.QuoteMeta(dialect.VersionQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION"}).AddRow(version))
	a.Capabilities(context.Background())

	return &fixture{adapter: a, mock: mock, logs: logs}
}

// expectBegin scripts a begin that reports level. Read committed on engines
// with read consistency also confirms the monitoring mode.
func (f *fixture) expectBegin(level string) {
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(regexp.QuoteMeta(dialect.IsolationLevelQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"LEVEL"}).AddRow(level))
	if level == "READ COMMITTED" && f.adapter.Capabilities(context.Background()).ReadConsistency {
		f.mock.ExpectQuery(regexp.QuoteMeta(dialect.TransactionModeQuery)).
			WillReturnRows(sqlmock.NewRows([]string{"MODE"}).AddRow(dialect.ReadConsistencyMode))
	}
}

func TestCapabilitiesAreCached(t *testing.T) {
	f := newFixture(t, "WI-V5.0.1.1469 Firebird 5.0")

	caps := f.adapter.Capabilities(context.Background())
	assert.Equal(t, 50001, caps.Version)
	assert.True(t, caps.PartialIndexes)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCapabilitiesFallBackWhenVersionQueryFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv, err := database.NewSQLDriver(context.Background(), db)
	require.NoError(t, err)
	a := New(drv, Options{}, logger.New(&bytes.Buffer{}, false))

	mock.ExpectQuery(regexp.QuoteMeta(dialect.VersionQuery)).WillReturnError(sql.ErrNoRows)

	caps := a.Capabilities(context.Background())
	assert.Equal(t, dialect.DefaultVersion, caps.Version)
	assert.True(t, caps.IdentityColumns)
	assert.False(t, caps.TimeZones)
}

func TestExecRewritesPagination(t *testing.T) {
	f := newFixture(t, "4.0.2")

	f.mock.ExpectQuery(regexp.QuoteMeta(`SELECT FIRST 10 SKIP 20 * FROM users WHERE active = ?`)).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"ID"}).AddRow(21))

	rs, err := f.adapter.Exec(context.Background(), "SELECT * FROM users WHERE active = ? LIMIT ? OFFSET ?", true, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, rs.Columns)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSelectWithExplicitPage(t *testing.T) {
	f := newFixture(t, "3.0.10")
	limit, offset := int64(5), int64(0)

	f.mock.ExpectQuery(regexp.QuoteMeta(`SELECT FIRST 5 ID FROM users ORDER BY ID`)).
		WillReturnRows(sqlmock.NewRows([]string{"ID"}).AddRow(1))

	_, err := f.adapter.Select(context.Background(), "SELECT ID FROM users ORDER BY ID", &limit, &offset)
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSelectExplicitPageReplacesPlaceholderClause(t *testing.T) {
	f := newFixture(t, "3.0.10")
	limit, offset := int64(10), int64(30)

	f.mock.ExpectQuery("^" + regexp.QuoteMeta(`SELECT FIRST 10 SKIP 30 ID FROM users WHERE active = ?`) + "$").
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"ID"}).AddRow(int64(31)))

	rs, err := f.adapter.Select(context.Background(), "SELECT ID FROM users WHERE active = ? LIMIT ?", &limit, &offset, true, int64(100))
	require.NoError(t, err)
	assert.Len(t, rs.Rows, 1)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExecReportsUnresolvedPlaceholder(t *testing.T) {
	f := newFixture(t, "3.0.10")

	_, err := f.adapter.Exec(context.Background(), "SELECT * FROM users LIMIT ?")
	assert.ErrorIs(t, err, dialect.ErrUnresolvedPlaceholder)
}

func TestRunClassifiesErrors(t *testing.T) {
	f := newFixture(t, "3.0.10")

	f.mock.ExpectExec("INSERT INTO").
		WillReturnError(assert.AnError)
	f.mock.ExpectExec("INSERT INTO").
		WillReturnError(errorString(`violation of PRIMARY or UNIQUE KEY constraint "PK_USERS" on table "USERS"`))

	_, err := f.adapter.Run(context.Background(), "INSERT INTO users (id) VALUES (1)")
	assert.ErrorIs(t, err, dialect.ErrStatementInvalid)

	_, err = f.adapter.Run(context.Background(), "INSERT INTO users (id) VALUES (1)")
	assert.ErrorIs(t, err, dialect.ErrUniqueViolation)

	var stmtErr *dialect.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, "INSERT INTO users (id) VALUES (1)", stmtErr.SQL)
}

func TestStatementsAreLoggedAtDebug(t *testing.T) {
	f := newFixture(t, "3.0.10")

	f.mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 2))

	rs, err := f.adapter.Run(context.Background(), "UPDATE users SET active = ?", false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rs.RowsAffected)
	assert.Contains(t, f.logs.String(), `sql="UPDATE users SET active = ?"`)
}

func TestDDLInsideTransactionWarns(t *testing.T) {
	f := newFixture(t, "3.0.10")
	ctx := context.Background()

	f.expectBegin("READ COMMITTED")
	f.mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX")).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()

	require.NoError(t, f.adapter.Tx().Begin(ctx, dialect.ReadCommitted))
	_, err := f.adapter.Run(ctx, `CREATE INDEX IDX_A ON "USERS" (A)`)
	require.NoError(t, err)
	require.NoError(t, f.adapter.Tx().Rollback(ctx))

	assert.Contains(t, f.logs.String(), "level=warning")
	assert.Contains(t, f.logs.String(), "DDL inside an open transaction")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTransactionHelper(t *testing.T) {
	f := newFixture(t, "3.0.10")
	ctx := context.Background()

	f.expectBegin("READ COMMITTED")
	f.mock.ExpectExec("DELETE FROM sessions").WillReturnResult(sqlmock.NewResult(0, 4))
	f.mock.ExpectCommit()

	f.expectBegin("READ COMMITTED")
	f.mock.ExpectRollback()

	err := f.adapter.Transaction(ctx, func(ctx context.Context) error {
		_, err := f.adapter.Run(ctx, "DELETE FROM sessions")
		return err
	})
	require.NoError(t, err)

	err = f.adapter.Transaction(ctx, func(ctx context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, Idle, f.adapter.Tx().State())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSyncAutoIncrementRestartsIdentity(t *testing.T) {
	f := newFixture(t, "4.0.2")
	ctx := context.Background()

	f.mock.ExpectQuery(`FROM RDB\$RELATIONS`).WithArgs("ITEMS").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT"}).AddRow(1))
	f.mock.ExpectQuery(`'PRIMARY KEY'`).WithArgs("ITEMS").
		WillReturnRows(sqlmock.NewRows([]string{"FIELD"}).AddRow("ID"))
	f.mock.ExpectQuery(`FROM RDB\$RELATION_FIELDS`).WithArgs("ITEMS").
		WillReturnRows(sqlmock.NewRows([]string{
			"NAME", "NULL_FLAG", "DEFAULT", "TYPE", "LENGTH", "SCALE", "SUB_TYPE", "CHARSET", "COLLATION",
			"COMPUTED", "PRECISION", "CHAR_LENGTH", "IDENTITY",
		}).AddRow("ID", 1, nil, 16, 8, 0, 0, nil, nil, nil, 0, nil, 1))
	f.mock.ExpectQuery(`FROM RDB\$GENERATORS`).WithArgs("ITEMS_G01").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT"}).AddRow(0))
	f.mock.ExpectQuery(`FROM RDB\$INDICES`).WithArgs("ITEMS").
		WillReturnRows(sqlmock.NewRows([]string{"A", "B", "C", "D", "E"}))
	f.mock.ExpectQuery(`'FOREIGN KEY'`).WithArgs("ITEMS").
		WillReturnRows(sqlmock.NewRows([]string{"A", "B", "C", "D", "E", "F"}))
	f.mock.ExpectQuery(`'CHECK'`).WithArgs("ITEMS").
		WillReturnRows(sqlmock.NewRows([]string{"A", "B"}))
	f.mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX("ID") FROM "ITEMS"`)).
		WillReturnRows(sqlmock.NewRows([]string{"MAX"}).AddRow(int64(41)))
	f.mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "ITEMS" ALTER COLUMN "ID" RESTART WITH 42`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, f.adapter.SyncAutoIncrement(ctx, "items", "id"))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReconnectRequiresReconnector(t *testing.T) {
	a := New(stubDriver{}, Options{}, logger.New(&bytes.Buffer{}, false))
	assert.ErrorIs(t, a.Reconnect(context.Background()), dialect.ErrUnsupported)
}

type errorString string

func (e errorString) Error() string { return string(e) }

type stubDriver struct{}

func (stubDriver) Execute(ctx context.Context, query string, args []any) (any, error) {
	return int64(0), nil
}
func (stubDriver) BeginTransaction(ctx context.Context, isolation dialect.Isolation, caps dialect.Capabilities) error {
	return nil
}
func (stubDriver) Commit(ctx context.Context) error   { return nil }
func (stubDriver) Rollback(ctx context.Context) error { return nil }
func (stubDriver) IsOpen() bool                       { return true }
