package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
)

// Driver is the primitive surface the adapter needs from a connection.
// Execute returns a cursor for statements that produce rows and an affected
// count (sql.Result) for everything else.
type Driver interface {
	Execute(ctx context.Context, query string, args []any) (any, error)
	BeginTransaction(ctx context.Context, isolation dialect.Isolation, caps dialect.Capabilities) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	IsOpen() bool
}

// Reconnector is implemented by drivers that can replace a lost connection.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

var (
	leadingNoise  = regexp.MustCompile(`^(\s+|--[^\n]*\n?|/\*(?s:.*?)\*/|\()+`)
	rowsKeyword   = regexp.MustCompile(`(?i)^(SELECT|WITH|EXECUTE\s+BLOCK)\b`)
	returningWord = regexp.MustCompile(`(?i)\bRETURNING\b`)
)

func returnsRows(query string) bool {
	q := leadingNoise.ReplaceAllString(query, "")
	return rowsKeyword.MatchString(q) || returningWord.MatchString(q)
}

// SQLDriver runs every statement on one pinned *sql.Conn so transaction
// and savepoint state stay on the same attachment.
type SQLDriver struct {
	db     *sql.DB
	conn   *sql.Conn
	tx     *sql.Tx
	broken bool
}

func NewSQLDriver(ctx context.Context, db *sql.DB) (*SQLDriver, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &SQLDriver{db: db, conn: conn}, nil
}

func (d *SQLDriver) Execute(ctx context.Context, query string, args []any) (any, error) {
	if d.conn == nil {
		return nil, dialect.ErrConnectionLost
	}

	var (
		payload any
		err     error
	)
	switch {
	case returnsRows(query) && d.tx != nil:
		payload, err = d.tx.QueryContext(ctx, query, args...)
	case returnsRows(query):
		payload, err = d.conn.QueryContext(ctx, query, args...)
	case d.tx != nil:
		payload, err = d.tx.ExecContext(ctx, query, args...)
	default:
		payload, err = d.conn.ExecContext(ctx, query, args...)
	}
	if err != nil {
		d.markBroken(err)
		return nil, err
	}
	return payload, nil
}

// BeginTransaction opens a transaction and confirms the engine runs it in
// the requested mode. A transaction whose isolation cannot be confirmed is
// rolled back.
//
// The wire driver has no transaction parameter for READ CONSISTENCY, so on
// engines that require it the mode is verified through MON$TRANSACTIONS and
// the transaction fails with dialect.ErrUnsupported when the server runs
// plain read committed.
func (d *SQLDriver) BeginTransaction(ctx context.Context, isolation dialect.Isolation, caps dialect.Capabilities) error {
	if d.conn == nil {
		return dialect.ErrConnectionLost
	}
	if d.tx != nil {
		return fmt.Errorf("%w: transaction already open", dialect.ErrInvalidOperation)
	}

	tx, err := d.conn.BeginTx(ctx, &sql.TxOptions{Isolation: isolation.SQLLevel()})
	if err != nil {
		d.markBroken(err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var actual sql.NullString
	if err := tx.QueryRowContext(ctx, dialect.IsolationLevelQuery).Scan(&actual); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to set isolation level %s: %w", isolation, err)
	}
	if got := strings.TrimSpace(actual.String); !strings.EqualFold(got, isolation.Expected()) {
		_ = tx.Rollback()
		return fmt.Errorf("failed to set isolation level %s: engine reports %q", isolation, got)
	}

	if isolation.ReadConsistent(caps) {
		if err := confirmReadConsistency(ctx, tx, isolation, caps); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	d.tx = tx
	return nil
}

func confirmReadConsistency(ctx context.Context, tx *sql.Tx, isolation dialect.Isolation, caps dialect.Capabilities) error {
	var mode sql.NullInt64
	if err := tx.QueryRowContext(ctx, dialect.TransactionModeQuery).Scan(&mode); err != nil {
		return fmt.Errorf("failed to confirm %s: %w", isolation.Clause(caps), err)
	}
	if mode.Int64 != dialect.ReadConsistencyMode {
		return fmt.Errorf("%w: %s requires %s but the engine runs isolation mode %d; set ReadConsistency = 1 in firebird.conf",
			dialect.ErrUnsupported, isolation, isolation.Clause(caps), mode.Int64)
	}
	return nil
}

func (d *SQLDriver) Commit(ctx context.Context) error {
	if d.tx == nil {
		return fmt.Errorf("%w: no transaction to commit", dialect.ErrInvalidOperation)
	}
	tx := d.tx
	d.tx = nil
	if err := tx.Commit(); err != nil {
		d.markBroken(err)
		return err
	}
	return nil
}

func (d *SQLDriver) Rollback(ctx context.Context) error {
	if d.tx == nil {
		return nil
	}
	tx := d.tx
	d.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		d.markBroken(err)
		return err
	}
	return nil
}

func (d *SQLDriver) IsOpen() bool {
	return d.conn != nil && !d.broken
}

// InTransaction reports whether a transaction is open on the pinned connection.
func (d *SQLDriver) InTransaction() bool {
	return d.tx != nil
}

// Reconnect drops the pinned connection, and any transaction on it, and
// takes a fresh one from the pool.
func (d *SQLDriver) Reconnect(ctx context.Context) error {
	if d.tx != nil {
		_ = d.tx.Rollback()
		d.tx = nil
	}
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconnect: %w", err)
	}
	d.conn = conn
	d.broken = false
	return nil
}

// Close returns the pinned connection to the pool.
func (d *SQLDriver) Close() error {
	if d.tx != nil {
		_ = d.tx.Rollback()
		d.tx = nil
	}
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *SQLDriver) markBroken(err error) {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		d.broken = true
	}
}
