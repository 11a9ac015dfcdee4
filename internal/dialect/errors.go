package dialect

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRelationNotFound is returned when no variant of a table or view name exists.
	ErrRelationNotFound = errors.New("relation not found")
	// ErrInvalidOperation marks a caller logic error such as a savepoint with
	// no open transaction. It is never the result of a database round-trip.
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")
	ErrCheckViolation      = errors.New("check constraint violation")
	ErrLockConflict        = errors.New("lock conflict")
	ErrConnectionLost      = errors.New("connection lost")
	ErrStatementInvalid    = errors.New("statement invalid")
	ErrUnsupported         = errors.New("operation not supported by this engine")
)

// StatementError is a classified failure of one statement, carrying the
// statement text and its binds for diagnostics.
type StatementError struct {
	Kind error
	SQL  string
	Args []any
	Err  error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%v: %v (sql: %s, args: %v)", e.Kind, e.Err, e.SQL, e.Args)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// Is matches the error kind as well as anything in the wrapped chain.
func (e *StatementError) Is(target error) bool {
	return e.Kind == target
}

// Classify maps a driver error to the adapter's taxonomy. The driver exposes
// no structured error codes, so the kind is derived from the message text.
// Errors that are already classified, and context errors, pass through.
func Classify(err error, query string, args []any) error {
	if err == nil {
		return nil
	}
	var se *StatementError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StatementError{Kind: kindOf(err), SQL: query, Args: args, Err: err}
}

func kindOf(err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, ErrConnectionLost) {
		return ErrConnectionLost
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "violation of PRIMARY or UNIQUE KEY", "violation of PRIMARY", "attempt to store duplicate value"):
		return ErrUniqueViolation
	case containsAny(msg, "violation of FOREIGN KEY"):
		return ErrForeignKeyViolation
	case containsAny(msg, "CHECK constraint"):
		return ErrCheckViolation
	case containsAny(msg, "lock conflict", "deadlock", "update conflicts with concurrent update"):
		return ErrLockConflict
	case containsAny(msg, "connection is closed", "connection shutdown", "Error writing data to the connection",
		"Error reading data from the connection", "Unable to complete network request", "broken pipe"):
		return ErrConnectionLost
	case containsAny(msg, "Table unknown", "View unknown"):
		return ErrRelationNotFound
	default:
		return ErrStatementInvalid
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func IsUniqueViolation(err error) bool     { return errors.Is(err, ErrUniqueViolation) }
func IsForeignKeyViolation(err error) bool { return errors.Is(err, ErrForeignKeyViolation) }
func IsCheckViolation(err error) bool      { return errors.Is(err, ErrCheckViolation) }

// IsConstraintError reports any of the constraint violation kinds.
func IsConstraintError(err error) bool {
	return IsUniqueViolation(err) || IsForeignKeyViolation(err) || IsCheckViolation(err)
}
