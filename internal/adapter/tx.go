package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirbelkuyu/fbadapter/internal/database"
	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
	"github.com/kadirbelkuyu/fbadapter/internal/schema"
	"github.com/kadirbelkuyu/fbadapter/pkg/logger"
)

type TxState int

const (
	Idle TxState = iota
	Active
	// Aborted follows a failed commit or rollback, or a connection lost
	// mid-transaction. Only Rollback leaves it.
	Aborted
)

func (s TxState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TxManager tracks the transaction and savepoint stack of one connection.
type TxManager struct {
	driver database.Driver
	runner schema.Runner
	caps   func(context.Context) dialect.Capabilities
	logger *logger.Logger

	state      TxState
	savepoints []string
	counter    int
}

func newTxManager(driver database.Driver, runner schema.Runner, caps func(context.Context) dialect.Capabilities, logger *logger.Logger) *TxManager {
	return &TxManager{
		driver: driver,
		runner: runner,
		caps:   caps,
		logger: logger,
	}
}

func (m *TxManager) State() TxState {
	return m.state
}

// Savepoints returns the open savepoints, oldest first.
func (m *TxManager) Savepoints() []string {
	return append([]string(nil), m.savepoints...)
}

func (m *TxManager) Begin(ctx context.Context, isolation dialect.Isolation) error {
	switch m.state {
	case Active:
		return fmt.Errorf("%w: transaction already active", dialect.ErrInvalidOperation)
	case Aborted:
		return fmt.Errorf("%w: aborted transaction must be rolled back first", dialect.ErrInvalidOperation)
	}

	caps := m.caps(ctx)
	started := time.Now()
	err := m.driver.BeginTransaction(ctx, isolation, caps)
	m.logger.Statement("BEGIN", isolation.SetTransaction(caps), nil, time.Since(started), err)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	m.state = Active
	m.savepoints = nil
	return nil
}

func (m *TxManager) Commit(ctx context.Context) error {
	if m.state != Active {
		return fmt.Errorf("%w: no active transaction to commit (%s)", dialect.ErrInvalidOperation, m.state)
	}
	if err := m.driver.Commit(ctx); err != nil {
		m.abort()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	m.reset()
	return nil
}

// Rollback ends the transaction. It is a no-op when idle and always returns
// an aborted transaction to idle.
func (m *TxManager) Rollback(ctx context.Context) error {
	switch m.state {
	case Idle:
		return nil
	case Aborted:
		if err := m.driver.Rollback(ctx); err != nil {
			m.logger.Debugf("Ignoring rollback error on aborted transaction: %v", err)
		}
		m.reset()
		return nil
	}

	if err := m.driver.Rollback(ctx); err != nil {
		m.abort()
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	m.reset()
	return nil
}

// CreateSavepoint opens a savepoint. An empty name gets SAVEPOINT_<n>.
func (m *TxManager) CreateSavepoint(ctx context.Context, name string) (string, error) {
	if m.state != Active {
		return "", fmt.Errorf("%w: savepoint requires an active transaction", dialect.ErrInvalidOperation)
	}
	if name == "" {
		m.counter++
		name = fmt.Sprintf("SAVEPOINT_%d", m.counter)
	}
	if _, err := m.runner.Run(ctx, "SAVEPOINT "+dialect.QuoteIdentifier(name)); err != nil {
		return "", err
	}
	m.savepoints = append(m.savepoints, name)
	return name, nil
}

// RollbackToSavepoint undoes work done after name. name stays open and every
// savepoint created after it is discarded.
func (m *TxManager) RollbackToSavepoint(ctx context.Context, name string) error {
	if m.state != Active {
		return nil
	}
	i, err := m.find(name)
	if err != nil {
		return err
	}
	if _, err := m.runner.Run(ctx, "ROLLBACK TO SAVEPOINT "+dialect.QuoteIdentifier(name)); err != nil {
		return err
	}
	m.savepoints = m.savepoints[:i+1]
	return nil
}

// ReleaseSavepoint forgets name and every savepoint created after it.
func (m *TxManager) ReleaseSavepoint(ctx context.Context, name string) error {
	if m.state != Active {
		return nil
	}
	i, err := m.find(name)
	if err != nil {
		return err
	}
	if _, err := m.runner.Run(ctx, "RELEASE SAVEPOINT "+dialect.QuoteIdentifier(name)); err != nil {
		return err
	}
	m.savepoints = m.savepoints[:i]
	return nil
}

func (m *TxManager) find(name string) (int, error) {
	quoted := dialect.QuoteIdentifier(name)
	for i := len(m.savepoints) - 1; i >= 0; i-- {
		if dialect.QuoteIdentifier(m.savepoints[i]) == quoted {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: unknown savepoint %s", dialect.ErrInvalidOperation, name)
}

func (m *TxManager) abort() {
	if m.state == Active {
		m.logger.Warn("Transaction aborted")
		m.state = Aborted
		m.savepoints = nil
	}
}

func (m *TxManager) reset() {
	m.state = Idle
	m.savepoints = nil
}
