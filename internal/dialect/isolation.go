package dialect

import (
	"database/sql"
	"fmt"
	"strings"
)

// Isolation is a generic isolation level name as used by the calling layer.
type Isolation string

const (
	ReadUncommitted Isolation = "read_uncommitted"
	ReadCommitted   Isolation = "read_committed"
	RepeatableRead  Isolation = "repeatable_read"
	Serializable    Isolation = "serializable"
)

// IsolationLevelQuery reports the isolation of the current transaction.
const IsolationLevelQuery = `SELECT RDB$GET_CONTEXT('SYSTEM', 'ISOLATION_LEVEL') FROM RDB$DATABASE`

// TransactionModeQuery reports the monitoring isolation mode of the current
// transaction. It tells the read committed variants apart.
const TransactionModeQuery = `SELECT MON$ISOLATION_MODE FROM MON$TRANSACTIONS WHERE MON$TRANSACTION_ID = CURRENT_TRANSACTION`

// ReadConsistencyMode is MON$ISOLATION_MODE for READ COMMITTED READ CONSISTENCY.
const ReadConsistencyMode = 4

// ParseIsolation accepts the generic names case-insensitively, with spaces
// or underscores. The empty string is read committed.
func ParseIsolation(s string) (Isolation, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	switch Isolation(norm) {
	case "":
		return ReadCommitted, nil
	case ReadUncommitted, ReadCommitted, RepeatableRead, Serializable:
		return Isolation(norm), nil
	case "snapshot":
		return RepeatableRead, nil
	default:
		return "", fmt.Errorf("%w: unknown isolation level %q", ErrInvalidOperation, s)
	}
}

// Clause renders the engine's isolation clause. The engine has no true
// read uncommitted mode; it runs as read committed.
func (i Isolation) Clause(caps Capabilities) string {
	switch i {
	case RepeatableRead:
		return "SNAPSHOT"
	case Serializable:
		return "SNAPSHOT TABLE STABILITY"
	default:
		if caps.ReadConsistency {
			return "READ COMMITTED READ CONSISTENCY"
		}
		return "READ COMMITTED"
	}
}

// ReadConsistent reports whether i must run as READ COMMITTED READ
// CONSISTENCY on an engine with caps.
func (i Isolation) ReadConsistent(caps Capabilities) bool {
	return caps.ReadConsistency && i != RepeatableRead && i != Serializable
}

// SetTransaction renders the full statement that opens a transaction with i.
func (i Isolation) SetTransaction(caps Capabilities) string {
	return "SET TRANSACTION ISOLATION LEVEL " + i.Clause(caps)
}

// Expected is what RDB$GET_CONTEXT('SYSTEM','ISOLATION_LEVEL') reports once
// a transaction with i is running.
func (i Isolation) Expected() string {
	switch i {
	case RepeatableRead:
		return "SNAPSHOT"
	case Serializable:
		return "CONSISTENCY"
	default:
		return "READ COMMITTED"
	}
}

// SQLLevel is the database/sql level the driver maps onto the same mode.
func (i Isolation) SQLLevel() sql.IsolationLevel {
	switch i {
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelReadCommitted
	}
}
