package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
	"github.com/kadirbelkuyu/fbadapter/pkg/logger"
)

// Creator renders and runs DDL. DDL commits implicitly on this engine, so
// callers should not expect it to be undone by a transaction rollback.
type Creator struct {
	db     Runner
	caps   dialect.Capabilities
	logger *logger.Logger
}

func NewCreator(db Runner, caps dialect.Capabilities, logger *logger.Logger) *Creator {
	return &Creator{
		db:     db,
		caps:   caps,
		logger: logger,
	}
}

func (c *Creator) exec(ctx context.Context, what, ddl string) error {
	c.logger.Debugf("%s: %s", what, ddl)
	if _, err := c.db.Run(ctx, ddl); err != nil {
		return err
	}
	return nil
}

// CreateTables creates the tables first, then their indexes, then their
// foreign keys, so references between the tables resolve.
func (c *Creator) CreateTables(ctx context.Context, tables []TableDefinition) error {
	c.logger.Info("Creating tables...")

	for _, table := range tables {
		if err := c.CreateTable(ctx, table); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.Name, err)
		}
	}

	for _, table := range tables {
		c.createIndexes(ctx, table)
		for _, check := range table.Checks {
			if err := c.AddCheckConstraint(ctx, table.Name, check.Expression, check.Name); err != nil {
				c.logger.Warnf("Failed to create check constraint %s: %v", check.Name, err)
			}
		}
	}

	for _, table := range tables {
		for _, fk := range table.ForeignKeys {
			if err := c.AddForeignKey(ctx, table.Name, fk); err != nil {
				c.logger.Warnf("Failed to create foreign key %s: %v", fk.Name, err)
			}
		}
	}

	c.logger.Infof("%d tables created successfully", len(tables))
	return nil
}

func (c *Creator) createIndexes(ctx context.Context, table TableDefinition) {
	for _, idx := range table.Indexes {
		if idx.Constraint != "" {
			continue
		}
		idx.TableName = table.Name
		if err := c.CreateIndex(ctx, idx); err != nil {
			c.logger.Warnf("Failed to create index %s: %v", idx.Name, err)
		}
	}
}

// RenderCreateTable renders CREATE [GLOBAL TEMPORARY] TABLE. An
// auto-increment column becomes a native identity column on engines that
// have them and a plain BIGINT otherwise.
func (c *Creator) RenderCreateTable(table TableDefinition) string {
	defs := make([]string, 0, len(table.Columns)+1)
	for _, col := range table.Columns {
		defs = append(defs, c.renderColumn(col))
	}
	if len(table.PrimaryKeys) > 0 {
		pkCols := make([]string, len(table.PrimaryKeys))
		for i, pk := range table.PrimaryKeys {
			pkCols[i] = dialect.QuoteIdentifier(pk)
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pkCols, ", ")))
	}

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if table.Temporary {
		sb.WriteString("GLOBAL TEMPORARY ")
	}
	sb.WriteString("TABLE ")
	sb.WriteString(dialect.QuoteTableIdentifier(table.Name))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(defs, ", "))
	sb.WriteString(")")
	if table.Temporary {
		sb.WriteString(" ON COMMIT DELETE ROWS")
	}
	return sb.String()
}

func (c *Creator) renderColumn(col ColumnDefinition) string {
	name := dialect.QuoteIdentifier(col.Name)
	if col.ComputedBy != "" {
		return fmt.Sprintf("%s COMPUTED BY %s", name, parenthesize(col.ComputedBy))
	}

	colType := col.Type
	if col.AutoIncrement {
		if strategy := PlanAutoIncrement("", col.Name, c.caps); strategy.Kind == NativeIdentity {
			colType = dialect.IdentityType
		} else if colType == "" || strings.Contains(colType, dialect.IdentityMarker) {
			colType = "BIGINT"
		}
	}

	def := name + " " + colType
	if col.Default != nil && !col.AutoIncrement {
		def += " DEFAULT " + dialect.QuoteDefaultExpression(*col.Default, c.caps)
	}
	if col.NotNull {
		def += " NOT NULL"
	}
	if col.Collation != "" {
		def += " COLLATE " + col.Collation
	}
	return def
}

// CreateTable runs CREATE TABLE and, on engines without identity columns,
// provisions the sequence and trigger for auto-increment columns.
func (c *Creator) CreateTable(ctx context.Context, table TableDefinition) error {
	if table.Force {
		if err := c.DropTable(ctx, table.Name, true); err != nil {
			return err
		}
	}

	if err := c.exec(ctx, "Creating table", c.RenderCreateTable(table)); err != nil {
		return err
	}

	for _, col := range table.Columns {
		if !col.AutoIncrement {
			continue
		}
		if PlanAutoIncrement(table.Name, col.Name, c.caps).Kind != SequenceAndTrigger {
			continue
		}
		if err := c.ProvisionAutoIncrement(ctx, table.Name, col.Name); err != nil {
			c.logger.Warnf("Table %s has no working auto-increment for %s: %v", table.Name, col.Name, err)
		}
	}
	return nil
}

// DropTable drops a table. With ifExists, failures are ignored.
func (c *Creator) DropTable(ctx context.Context, name string, ifExists bool) error {
	err := c.exec(ctx, "Dropping table", "DROP TABLE "+dialect.QuoteTableIdentifier(name))
	if err != nil && ifExists {
		c.logger.Debugf("Ignoring drop of table %s: %v", name, err)
		return nil
	}
	return err
}

// RenameTable is not available; the engine has no RENAME TABLE.
func (c *Creator) RenameTable(ctx context.Context, from, to string) error {
	return fmt.Errorf("%w: rename table %s to %s, recreate the table instead", dialect.ErrUnsupported, from, to)
}

func (c *Creator) AddColumn(ctx context.Context, table string, col ColumnDefinition) error {
	ddl := fmt.Sprintf("ALTER TABLE %s ADD %s", dialect.QuoteTableIdentifier(table), c.renderColumn(col))
	if err := c.exec(ctx, "Adding column", ddl); err != nil {
		return err
	}
	if col.AutoIncrement && PlanAutoIncrement(table, col.Name, c.caps).Kind == SequenceAndTrigger {
		if err := c.ProvisionAutoIncrement(ctx, table, col.Name); err != nil {
			c.logger.Warnf("Column %s.%s has no working auto-increment: %v", table, col.Name, err)
		}
	}
	return nil
}

func (c *Creator) alterColumn(ctx context.Context, what, table, column, action string) error {
	ddl := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s",
		dialect.QuoteTableIdentifier(table), dialect.QuoteIdentifier(column), action)
	return c.exec(ctx, what, ddl)
}

func (c *Creator) ChangeColumnType(ctx context.Context, table, column, sqlType string) error {
	return c.alterColumn(ctx, "Changing column type", table, column, "TYPE "+sqlType)
}

// ChangeColumnNull toggles NOT NULL. When making a column NOT NULL, a
// non-nil fill is first written into the rows that hold NULL.
func (c *Creator) ChangeColumnNull(ctx context.Context, table, column string, nullable bool, fill *dialect.Value) error {
	if nullable {
		return c.alterColumn(ctx, "Changing column null", table, column, "DROP NOT NULL")
	}
	if fill != nil {
		quoted := dialect.QuoteIdentifier(column)
		update := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL",
			dialect.QuoteTableIdentifier(table), quoted, dialect.QuoteLiteral(*fill, c.caps), quoted)
		if err := c.exec(ctx, "Filling nulls", update); err != nil {
			return err
		}
	}
	return c.alterColumn(ctx, "Changing column null", table, column, "SET NOT NULL")
}

// ChangeColumnDefault sets the default, or drops it when def is nil.
func (c *Creator) ChangeColumnDefault(ctx context.Context, table, column string, def *dialect.Value) error {
	if def == nil || def.IsNull() {
		return c.alterColumn(ctx, "Dropping column default", table, column, "DROP DEFAULT")
	}
	return c.alterColumn(ctx, "Changing column default", table, column,
		"SET DEFAULT "+dialect.QuoteDefaultExpression(*def, c.caps))
}

func (c *Creator) RenameColumn(ctx context.Context, table, from, to string) error {
	return c.alterColumn(ctx, "Renaming column", table, from, "TO "+dialect.QuoteIdentifier(to))
}

func (c *Creator) DropColumn(ctx context.Context, table, column string) error {
	ddl := fmt.Sprintf("ALTER TABLE %s DROP %s", dialect.QuoteTableIdentifier(table), dialect.QuoteIdentifier(column))
	return c.exec(ctx, "Dropping column", ddl)
}

// IndexName is the conventional name for an index over columns of table.
func IndexName(table string, columns []string) string {
	return fmt.Sprintf("index_%s_on_%s", unquote(table), strings.Join(columns, "_and_"))
}

// CreateIndex renders CREATE [UNIQUE] INDEX. A partial index condition is
// dropped with a warning on engines that cannot store it.
func (c *Creator) CreateIndex(ctx context.Context, idx Index) error {
	name := idx.Name
	if name == "" {
		name = IndexName(idx.TableName, idx.Columns)
	}
	cols := make([]string, len(idx.Columns))
	for i, col := range idx.Columns {
		cols[i] = dialect.QuoteIdentifier(col)
	}

	unique := ""
	if idx.IsUnique {
		unique = "UNIQUE "
	}
	ddl := fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, dialect.QuoteIdentifier(name), dialect.QuoteTableIdentifier(idx.TableName), strings.Join(cols, ", "))

	if idx.Where != "" {
		if c.caps.PartialIndexes {
			ddl += " WHERE " + idx.Where
		} else {
			c.logger.Warnf("Engine %s has no partial indexes, creating %s without its condition", c.caps.VersionString, name)
		}
	}
	return c.exec(ctx, "Creating index", ddl)
}

func (c *Creator) DropIndex(ctx context.Context, name string) error {
	return c.exec(ctx, "Dropping index", "DROP INDEX "+dialect.QuoteIdentifier(name))
}

func (c *Creator) CreateSequence(ctx context.Context, name string, start int64) error {
	quoted := dialect.QuoteTableIdentifier(name)
	if err := c.exec(ctx, "Creating sequence", "CREATE SEQUENCE "+quoted); err != nil {
		return err
	}
	return c.RestartSequence(ctx, name, start)
}

func (c *Creator) RestartSequence(ctx context.Context, name string, value int64) error {
	ddl := fmt.Sprintf("ALTER SEQUENCE %s RESTART WITH %d", dialect.QuoteTableIdentifier(name), value)
	return c.exec(ctx, "Restarting sequence", ddl)
}

func (c *Creator) DropSequence(ctx context.Context, name string, ifExists bool) error {
	err := c.exec(ctx, "Dropping sequence", "DROP SEQUENCE "+dialect.QuoteTableIdentifier(name))
	if err != nil && ifExists {
		c.logger.Debugf("Ignoring drop of sequence %s: %v", name, err)
		return nil
	}
	return err
}

// RestartIdentity moves a native identity column's counter.
func (c *Creator) RestartIdentity(ctx context.Context, table, column string, value int64) error {
	return c.alterColumn(ctx, "Restarting identity", table, column, fmt.Sprintf("RESTART WITH %d", value))
}

// RenderAutoIncrementTrigger renders the BEFORE INSERT trigger that fills
// column from the table's sequence when no value is given.
func RenderAutoIncrementTrigger(table, column string) string {
	col := dialect.QuoteIdentifier(column)
	return fmt.Sprintf(`CREATE TRIGGER %s FOR %s
ACTIVE BEFORE INSERT POSITION 0
AS
BEGIN
  IF (NEW.%s IS NULL) THEN
    NEW.%s = NEXT VALUE FOR %s;
END`,
		dialect.QuoteIdentifier(TriggerName(table, column)),
		dialect.QuoteTableIdentifier(table),
		col, col,
		dialect.QuoteTableIdentifier(SequenceName(table)))
}

// ProvisionAutoIncrement creates the sequence and trigger behind an emulated
// identity column. Sequence creation is best effort so that provisioning an
// already provisioned database succeeds.
func (c *Creator) ProvisionAutoIncrement(ctx context.Context, table, column string) error {
	sequence := SequenceName(table)
	if err := c.CreateSequence(ctx, sequence, 1); err != nil {
		c.logger.Warnf("Skipping sequence %s: %v", sequence, err)
	}
	if err := c.exec(ctx, "Creating trigger", RenderAutoIncrementTrigger(table, column)); err != nil {
		return fmt.Errorf("failed to create trigger %s: %w", TriggerName(table, column), err)
	}
	return nil
}

// CheckConstraintName derives chk_<table>_<hash> from the expression.
func CheckConstraintName(table, expression string) string {
	sum := sha256.Sum256([]byte(expression))
	return fmt.Sprintf("chk_%s_%s", unquote(table), hex.EncodeToString(sum[:])[:10])
}

func (c *Creator) AddCheckConstraint(ctx context.Context, table, expression, name string) error {
	if name == "" {
		name = CheckConstraintName(table, expression)
	}
	ddl := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)",
		dialect.QuoteTableIdentifier(table), dialect.QuoteIdentifier(name), expression)
	return c.exec(ctx, "Adding check constraint", ddl)
}

func (c *Creator) DropCheckConstraint(ctx context.Context, table, name string) error {
	if name == "" {
		return fmt.Errorf("%w: check constraint name is required", dialect.ErrInvalidOperation)
	}
	ddl := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", dialect.QuoteTableIdentifier(table), dialect.QuoteIdentifier(name))
	return c.exec(ctx, "Dropping check constraint", ddl)
}

func (c *Creator) AddForeignKey(ctx context.Context, table string, fk ForeignKey) error {
	if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.ReferencedColumns) {
		return errors.New("foreign key needs matching column lists")
	}
	quoteAll := func(names []string) string {
		out := make([]string, len(names))
		for i, n := range names {
			out[i] = dialect.QuoteIdentifier(n)
		}
		return strings.Join(out, ", ")
	}

	ddl := fmt.Sprintf("ALTER TABLE %s ADD", dialect.QuoteTableIdentifier(table))
	if fk.Name != "" {
		ddl += " CONSTRAINT " + dialect.QuoteIdentifier(fk.Name)
	}
	ddl += fmt.Sprintf(" FOREIGN KEY (%s) REFERENCES %s (%s)",
		quoteAll(fk.Columns), dialect.QuoteTableIdentifier(fk.ReferencedTable), quoteAll(fk.ReferencedColumns))

	if fk.OnDelete != "" && fk.OnDelete != "NO ACTION" {
		ddl += " ON DELETE " + fk.OnDelete
	}
	if fk.OnUpdate != "" && fk.OnUpdate != "NO ACTION" {
		ddl += " ON UPDATE " + fk.OnUpdate
	}
	return c.exec(ctx, "Creating foreign key", ddl)
}

// CommentOnTable is a no-op for a blank comment.
func (c *Creator) CommentOnTable(ctx context.Context, table, comment string) error {
	if strings.TrimSpace(comment) == "" {
		return nil
	}
	ddl := fmt.Sprintf("COMMENT ON TABLE %s IS '%s'", dialect.QuoteTableIdentifier(table), dialect.QuoteString(comment))
	return c.exec(ctx, "Commenting table", ddl)
}

// CommentOnColumn is a no-op for a blank comment.
func (c *Creator) CommentOnColumn(ctx context.Context, table, column, comment string) error {
	if strings.TrimSpace(comment) == "" {
		return nil
	}
	ddl := fmt.Sprintf("COMMENT ON COLUMN %s.%s IS '%s'",
		dialect.QuoteTableIdentifier(table), dialect.QuoteIdentifier(column), dialect.QuoteString(comment))
	return c.exec(ctx, "Commenting column", ddl)
}

// DefinitionFromDescriptor turns an introspected table into a definition
// that recreates it, including its indexes and constraints.
func DefinitionFromDescriptor(td TableDescriptor) TableDefinition {
	def := TableDefinition{
		Name:        td.Name,
		PrimaryKeys: td.PrimaryKeys,
		Indexes:     td.Indexes,
		ForeignKeys: td.ForeignKeys,
		Checks:      td.Checks,
	}
	for _, col := range td.Columns {
		cd := ColumnDefinition{
			Name:          col.Name,
			Type:          col.SQLType,
			NotNull:       !col.Nullable,
			Collation:     col.Collation,
			AutoIncrement: DetectAutoIncrement(col, len(td.PrimaryKeys)),
		}
		if col.IsComputed && col.ComputedExpr != nil {
			cd.ComputedBy = *col.ComputedExpr
		}
		if col.HasDefault() {
			v := col.Default
			cd.Default = &v
		}
		def.Columns = append(def.Columns, cd)
	}
	return def
}

// parenthesize wraps expr unless one pair of parentheses already encloses
// all of it.
func parenthesize(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") {
		depth := 0
		for i, c := range expr {
			switch c {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 && i < len(expr)-1 {
				return "(" + expr + ")"
			}
		}
		return expr
	}
	return "(" + expr + ")"
}
