package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/kadirbelkuyu/fbadapter/internal/database"
	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
	"github.com/kadirbelkuyu/fbadapter/internal/schema"
	"github.com/kadirbelkuyu/fbadapter/pkg/logger"
)

type Options struct {
	// ExactTableNames disables the singular/plural table name fallback.
	ExactTableNames bool
	// Charset is the connection charset, used to decode text the driver
	// hands back undecoded.
	Charset   string
	Isolation dialect.Isolation
}

// Adapter runs generic SQL against one Firebird attachment. It is not safe
// for concurrent use; give each worker its own Adapter.
type Adapter struct {
	driver  database.Driver
	session *database.Session
	logger  *logger.Logger
	options Options

	caps *dialect.Capabilities
	tx   *TxManager
}

func New(driver database.Driver, options Options, logger *logger.Logger) *Adapter {
	if options.Isolation == "" {
		options.Isolation = dialect.ReadCommitted
	}
	a := &Adapter{
		driver:  driver,
		session: database.NewSession(driver, database.NewNormalizer(options.Charset)),
		logger:  logger,
		options: options,
	}
	a.tx = newTxManager(driver, a, a.Capabilities, logger)
	return a
}

// Connect pins a connection from conn's pool and wraps it in an Adapter
// configured from conn's settings.
func Connect(ctx context.Context, conn *database.Connection, logger *logger.Logger) (*Adapter, error) {
	drv, err := conn.Driver(ctx)
	if err != nil {
		return nil, err
	}

	isolation, err := dialect.ParseIsolation(conn.Config.Adapter.Isolation)
	if err != nil {
		drv.Close()
		return nil, err
	}

	return New(drv, Options{
		ExactTableNames: conn.Config.Adapter.ExactTableNames,
		Charset:         conn.Config.Database.Charset,
		Isolation:       isolation,
	}, logger), nil
}

var ddlStatement = regexp.MustCompile(`(?i)^\s*(CREATE|RECREATE|ALTER|DROP|COMMENT|GRANT|REVOKE)\b`)

// Run executes query exactly as given. Catalog and DDL statements go
// through here.
func (a *Adapter) Run(ctx context.Context, query string, args ...any) (*database.ResultSet, error) {
	if a.tx.State() == Active && ddlStatement.MatchString(query) {
		a.logger.Warnf("DDL inside an open transaction commits with it and cannot be rolled back on its own: %s", firstLine(query))
	}

	start := time.Now()
	rs, err := a.session.Run(ctx, query, args...)
	a.logger.Statement("SQL", query, args, time.Since(start), err)

	if err != nil && errors.Is(err, dialect.ErrConnectionLost) {
		a.tx.abort()
	}
	return rs, err
}

// Exec translates LIMIT/OFFSET pagination into FIRST/SKIP and runs the
// result.
func (a *Adapter) Exec(ctx context.Context, query string, args ...any) (*database.ResultSet, error) {
	rewritten, err := dialect.RewriteWithArgs(query, args)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, rewritten.SQL, rewritten.Args...)
}

// Select runs query with the given page. Nil limit and offset leave any
// pagination in the text to Exec.
func (a *Adapter) Select(ctx context.Context, query string, limit, offset *int64, args ...any) (*database.ResultSet, error) {
	if limit == nil && offset == nil {
		return a.Exec(ctx, query, args...)
	}
	rewritten, err := dialect.RewritePage(query, args, limit, offset)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, rewritten.SQL, rewritten.Args...)
}

// Capabilities reads the engine version on first use and caches the result
// until Reconnect. A failed version query assumes the 3.0 baseline.
func (a *Adapter) Capabilities(ctx context.Context) dialect.Capabilities {
	if a.caps != nil {
		return *a.caps
	}

	caps := dialect.CapabilitiesForVersion(dialect.DefaultVersion)
	rs, err := a.Run(ctx, dialect.VersionQuery)
	if err != nil {
		a.logger.Warnf("Could not read engine version, assuming %s: %v", caps.VersionString, err)
	} else if v, ok := rs.Scalar(); ok && !v.IsNull() {
		caps = dialect.CapabilitiesFor(strings.TrimSpace(v.String()))
	}

	a.caps = &caps
	a.logger.Debugf("Engine version %s", caps.VersionString)
	return caps
}

// Extractor reads the catalog over this adapter's connection.
func (a *Adapter) Extractor(ctx context.Context) *schema.Extractor {
	e := schema.NewExtractor(a, a.Capabilities(ctx), a.logger)
	e.ExactTableNames = a.options.ExactTableNames
	return e
}

// Creator runs DDL over this adapter's connection.
func (a *Adapter) Creator(ctx context.Context) *schema.Creator {
	return schema.NewCreator(a, a.Capabilities(ctx), a.logger)
}

func (a *Adapter) Tables(ctx context.Context) ([]string, error) {
	return a.Extractor(ctx).Tables(ctx)
}

func (a *Adapter) Columns(ctx context.Context, table string) ([]schema.ColumnDescriptor, error) {
	return a.Extractor(ctx).Columns(ctx, table)
}

func (a *Adapter) Table(ctx context.Context, table string) (*schema.TableDescriptor, error) {
	return a.Extractor(ctx).Table(ctx, table)
}

// Tx is the transaction state machine bound to this adapter.
func (a *Adapter) Tx() *TxManager {
	return a.tx
}

// Transaction runs fn inside a transaction with the configured isolation,
// committing when fn succeeds and rolling back otherwise.
func (a *Adapter) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := a.tx.Begin(ctx, a.options.Isolation); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if rbErr := a.tx.Rollback(ctx); rbErr != nil {
			a.logger.Warnf("Rollback failed: %v", rbErr)
		}
		return err
	}
	return a.tx.Commit(ctx)
}

func (a *Adapter) IsOpen() bool {
	return a.driver.IsOpen()
}

// Reconnect replaces a lost connection when the driver supports it. Cached
// capabilities and transaction state are discarded.
func (a *Adapter) Reconnect(ctx context.Context) error {
	r, ok := a.driver.(database.Reconnector)
	if !ok {
		return fmt.Errorf("%w: driver cannot reconnect", dialect.ErrUnsupported)
	}
	if err := r.Reconnect(ctx); err != nil {
		return err
	}
	a.caps = nil
	a.tx.reset()
	return nil
}

// Close releases the underlying connection when the driver holds one.
func (a *Adapter) Close() error {
	if c, ok := a.driver.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SyncAutoIncrement moves the key generator of table past the largest value
// stored in column, so rows copied with explicit keys do not collide with
// generated ones.
func (a *Adapter) SyncAutoIncrement(ctx context.Context, table, column string) error {
	caps := a.Capabilities(ctx)
	extractor := a.Extractor(ctx)

	td, err := extractor.Table(ctx, table)
	if err != nil {
		return err
	}
	col, ok := td.Column(schema.CatalogName(column))
	if !ok {
		return fmt.Errorf("%w: column %s.%s does not exist", dialect.ErrRelationNotFound, table, column)
	}

	tableName, columnName := schema.Delimited(td.Name), schema.Delimited(col.Name)
	highest, err := a.maxValue(ctx, tableName, columnName)
	if err != nil {
		return err
	}

	// Engines before 4.0 hand out RESTART WITH n plus one as the next value.
	restart := highest
	if caps.Version >= 40000 {
		restart = highest + 1
	}

	creator := a.Creator(ctx)
	if col.IsIdentity {
		return creator.RestartIdentity(ctx, tableName, columnName, restart)
	}

	exists, err := extractor.SequenceExists(ctx, td.Sequence)
	if err != nil {
		return err
	}
	if !exists {
		a.logger.Debugf("Table %s has no sequence to sync", td.Name)
		return nil
	}
	return creator.RestartSequence(ctx, td.Sequence, restart)
}

func (a *Adapter) maxValue(ctx context.Context, table, column string) (int64, error) {
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", dialect.QuoteIdentifier(column), dialect.QuoteTableIdentifier(table))
	rs, err := a.Run(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to read max %s.%s: %w", table, column, err)
	}
	v, _ := rs.Scalar()
	n, _ := v.AsInt64()
	return n, nil
}

func firstLine(query string) string {
	query = strings.TrimSpace(query)
	if i := strings.IndexByte(query, '\n'); i >= 0 {
		return query[:i] + " ..."
	}
	return query
}
