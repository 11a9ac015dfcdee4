package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/kadirbelkuyu/fbadapter/internal/database"
	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
	"github.com/kadirbelkuyu/fbadapter/pkg/logger"
)

// Runner executes one statement and returns its normalized result.
type Runner interface {
	Run(ctx context.Context, query string, args ...any) (*database.ResultSet, error)
}

const (
	tablesQuery = `
		SELECT TRIM(RDB$RELATION_NAME)
		FROM RDB$RELATIONS
		WHERE RDB$SYSTEM_FLAG = 0
		AND RDB$VIEW_BLR IS NULL
		ORDER BY RDB$RELATION_NAME`

	viewsQuery = `
		SELECT TRIM(RDB$RELATION_NAME)
		FROM RDB$RELATIONS
		WHERE RDB$SYSTEM_FLAG = 0
		AND RDB$VIEW_BLR IS NOT NULL
		ORDER BY RDB$RELATION_NAME`

	tableExistsQuery = `
		SELECT COUNT(*)
		FROM RDB$RELATIONS
		WHERE RDB$RELATION_NAME = ?
		AND RDB$SYSTEM_FLAG = 0
		AND RDB$VIEW_BLR IS NULL`

	viewExistsQuery = `
		SELECT COUNT(*)
		FROM RDB$RELATIONS
		WHERE RDB$RELATION_NAME = ?
		AND RDB$VIEW_BLR IS NOT NULL`

	columnsQuery = `
		SELECT
			TRIM(r.RDB$FIELD_NAME),
			COALESCE(r.RDB$NULL_FLAG, f.RDB$NULL_FLAG),
			COALESCE(r.RDB$DEFAULT_SOURCE, f.RDB$DEFAULT_SOURCE),
			f.RDB$FIELD_TYPE,
			f.RDB$FIELD_LENGTH,
			f.RDB$FIELD_SCALE,
			f.RDB$FIELD_SUB_TYPE,
			f.RDB$CHARACTER_SET_ID,
			TRIM(c.RDB$COLLATION_NAME),
			f.RDB$COMPUTED_SOURCE,
			f.RDB$FIELD_PRECISION,
			f.RDB$CHARACTER_LENGTH,
			%s
		FROM RDB$RELATION_FIELDS r
		JOIN RDB$FIELDS f ON r.RDB$FIELD_SOURCE = f.RDB$FIELD_NAME
		LEFT JOIN RDB$COLLATIONS c ON f.RDB$COLLATION_ID = c.RDB$COLLATION_ID
			AND f.RDB$CHARACTER_SET_ID = c.RDB$CHARACTER_SET_ID
		WHERE r.RDB$RELATION_NAME = ?
		ORDER BY r.RDB$FIELD_POSITION`

	primaryKeysQuery = `
		SELECT TRIM(seg.RDB$FIELD_NAME)
		FROM RDB$RELATION_CONSTRAINTS rc
		JOIN RDB$INDEX_SEGMENTS seg ON rc.RDB$INDEX_NAME = seg.RDB$INDEX_NAME
		WHERE rc.RDB$RELATION_NAME = ?
		AND rc.RDB$CONSTRAINT_TYPE = 'PRIMARY KEY'
		ORDER BY seg.RDB$FIELD_POSITION`

	foreignKeysQuery = `
		SELECT
			TRIM(rc.RDB$CONSTRAINT_NAME),
			TRIM(cse.RDB$FIELD_NAME),
			TRIM(ref_rel_const.RDB$RELATION_NAME),
			TRIM(ref_seg.RDB$FIELD_NAME),
			TRIM(ref_const.RDB$UPDATE_RULE),
			TRIM(ref_const.RDB$DELETE_RULE)
		FROM RDB$RELATION_CONSTRAINTS rc
		JOIN RDB$REF_CONSTRAINTS ref_const
			ON rc.RDB$CONSTRAINT_NAME = ref_const.RDB$CONSTRAINT_NAME
		JOIN RDB$RELATION_CONSTRAINTS ref_rel_const
			ON ref_const.RDB$CONST_NAME_UQ = ref_rel_const.RDB$CONSTRAINT_NAME
		JOIN RDB$INDEX_SEGMENTS cse
			ON rc.RDB$INDEX_NAME = cse.RDB$INDEX_NAME
		JOIN RDB$INDEX_SEGMENTS ref_seg
			ON ref_rel_const.RDB$INDEX_NAME = ref_seg.RDB$INDEX_NAME
			AND cse.RDB$FIELD_POSITION = ref_seg.RDB$FIELD_POSITION
		WHERE rc.RDB$RELATION_NAME = ?
		AND rc.RDB$CONSTRAINT_TYPE = 'FOREIGN KEY'
		ORDER BY rc.RDB$CONSTRAINT_NAME, cse.RDB$FIELD_POSITION`

	indexesQuery = `
		SELECT
			TRIM(i.RDB$INDEX_NAME),
			i.RDB$UNIQUE_FLAG,
			TRIM(seg.RDB$FIELD_NAME),
			TRIM(rc.RDB$CONSTRAINT_TYPE),
			%s
		FROM RDB$INDICES i
		JOIN RDB$INDEX_SEGMENTS seg ON i.RDB$INDEX_NAME = seg.RDB$INDEX_NAME
		LEFT JOIN RDB$RELATION_CONSTRAINTS rc ON rc.RDB$INDEX_NAME = i.RDB$INDEX_NAME
		WHERE i.RDB$RELATION_NAME = ?
		AND COALESCE(i.RDB$SYSTEM_FLAG, 0) = 0
		ORDER BY i.RDB$INDEX_NAME, seg.RDB$FIELD_POSITION`

	checksQuery = `
		SELECT DISTINCT TRIM(con.RDB$CONSTRAINT_NAME), trg.RDB$TRIGGER_SOURCE
		FROM RDB$RELATION_CONSTRAINTS con
		JOIN RDB$CHECK_CONSTRAINTS chk ON chk.RDB$CONSTRAINT_NAME = con.RDB$CONSTRAINT_NAME
		JOIN RDB$TRIGGERS trg ON trg.RDB$TRIGGER_NAME = chk.RDB$TRIGGER_NAME
		WHERE con.RDB$RELATION_NAME = ?
		AND con.RDB$CONSTRAINT_TYPE = 'CHECK'`

	sequenceExistsQuery = `
		SELECT COUNT(*)
		FROM RDB$GENERATORS
		WHERE RDB$GENERATOR_NAME = ?
		AND COALESCE(RDB$SYSTEM_FLAG, 0) = 0`

	sequencesQuery = `
		SELECT TRIM(RDB$GENERATOR_NAME)
		FROM RDB$GENERATORS
		WHERE COALESCE(RDB$SYSTEM_FLAG, 0) = 0
		ORDER BY RDB$GENERATOR_NAME`

	currentUserQuery = `SELECT CURRENT_USER FROM RDB$DATABASE`
)

// Extractor reads table metadata from the RDB$ system catalog.
type Extractor struct {
	db     Runner
	caps   dialect.Capabilities
	logger *logger.Logger

	// ExactTableNames turns off the singular/plural fallback in ResolveTableName.
	ExactTableNames bool
}

func NewExtractor(db Runner, caps dialect.Capabilities, logger *logger.Logger) *Extractor {
	return &Extractor{
		db:     db,
		caps:   caps,
		logger: logger,
	}
}

// CatalogName is the name a table is stored under: delimited names keep
// their case, anything else is upper-cased.
func CatalogName(name string) string {
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		return unquote(name)
	}
	return strings.ToUpper(strings.TrimSpace(name))
}

// Delimited renders a catalog name as a delimited identifier, keeping the
// case it is stored with.
func Delimited(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (e *Extractor) Tables(ctx context.Context) ([]string, error) {
	return e.names(ctx, "tables", tablesQuery)
}

func (e *Extractor) Views(ctx context.Context) ([]string, error) {
	return e.names(ctx, "views", viewsQuery)
}

func (e *Extractor) Sequences(ctx context.Context) ([]string, error) {
	return e.names(ctx, "sequences", sequencesQuery)
}

func (e *Extractor) TableExists(ctx context.Context, name string) (bool, error) {
	return e.exists(ctx, "table", tableExistsQuery, CatalogName(name))
}

func (e *Extractor) ViewExists(ctx context.Context, name string) (bool, error) {
	return e.exists(ctx, "view", viewExistsQuery, CatalogName(name))
}

func (e *Extractor) SequenceExists(ctx context.Context, name string) (bool, error) {
	return e.exists(ctx, "sequence", sequenceExistsQuery, CatalogName(name))
}

// ResolveTableName finds the stored name of a table. Unless ExactTableNames
// is set it also tries the pluralized name and the name with a trailing "s"
// removed or added, so singular and plural model names both resolve.
func (e *Extractor) ResolveTableName(ctx context.Context, name string) (string, error) {
	candidates := []string{name}
	if !e.ExactTableNames {
		candidates = append(candidates, inflect.Pluralize(name))
		if strings.HasSuffix(strings.ToLower(name), "s") {
			candidates = append(candidates, name[:len(name)-1])
		} else {
			candidates = append(candidates, name+"s")
		}
	}

	tried := make(map[string]bool, len(candidates))
	for _, candidate := range candidates {
		if tried[CatalogName(candidate)] {
			continue
		}
		tried[CatalogName(candidate)] = true

		ok, err := e.TableExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if ok {
			if candidate != name {
				e.logger.Debugf("Resolved table %s as %s", name, CatalogName(candidate))
			}
			return CatalogName(candidate), nil
		}
	}
	return "", fmt.Errorf("%w: table %s does not exist", dialect.ErrRelationNotFound, name)
}

// Columns returns the columns of table in field position order. A table
// with no columns yields an empty slice.
func (e *Extractor) Columns(ctx context.Context, table string) ([]ColumnDescriptor, error) {
	name, err := e.ResolveTableName(ctx, table)
	if err != nil {
		return nil, err
	}

	pks, err := e.PrimaryKeys(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.columns(ctx, name, pks)
}

func (e *Extractor) columns(ctx context.Context, name string, pks []string) ([]ColumnDescriptor, error) {
	identity := "NULL"
	if e.caps.IdentityColumns {
		identity = "r.RDB$IDENTITY_TYPE"
	}

	rs, err := e.db.Run(ctx, fmt.Sprintf(columnsQuery, identity), name)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}

	pkSet := make(map[string]bool, len(pks))
	for _, pk := range pks {
		pkSet[pk] = true
	}

	columns := make([]ColumnDescriptor, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		if len(row) < 10 {
			return nil, fmt.Errorf("failed to read column metadata: expected at least 10 fields, got %d", len(row))
		}
		columns = append(columns, columnFromRow(row, pkSet))
	}
	return columns, nil
}

func columnFromRow(row []dialect.Value, pks map[string]bool) ColumnDescriptor {
	col := ColumnDescriptor{
		Name:      strings.TrimSpace(textOf(row[0])),
		Nullable:  intOf(row[1]) == 0,
		FieldType: intOf(row[3]),
		Length:    intOf(row[4]),
		Scale:     intOf(row[5]),
		SubType:   intOf(row[6]),
		CharsetID: intOf(row[7]),
		Collation: strings.TrimSpace(textOf(row[8])),
	}
	if len(row) > 10 {
		col.Precision = intOf(row[10])
	}
	length := col.Length
	if len(row) > 11 && !row[11].IsNull() && (col.FieldType == fieldChar || col.FieldType == fieldVarchar) {
		length = intOf(row[11])
	}

	computed := optionalText(row[9])
	identityFlag := len(row) > 12 && !row[12].IsNull()
	if computed != nil && strings.Contains(strings.ToUpper(*computed), dialect.IdentityMarker) {
		identityFlag = true
		computed = nil
	}

	col.SQLType = MapFieldType(col.FieldType, col.SubType, length, col.Precision, col.Scale)
	if (col.FieldType == fieldChar || col.FieldType == fieldVarchar) && col.CharsetID == charsetOctets {
		col.SQLType += " CHARACTER SET OCTETS"
	}

	switch {
	case identityFlag:
		col.IsIdentity = true
		generated := "BY DEFAULT"
		if len(row) > 12 && intOf(row[12]) == 0 && !row[12].IsNull() {
			generated = "ALWAYS"
		}
		col.SQLType = fmt.Sprintf("%s GENERATED %s AS IDENTITY", col.SQLType, generated)
	case computed != nil:
		col.IsComputed = true
		col.ComputedExpr = computed
	default:
		col.DefaultExpr = optionalText(row[2])
		col.Default, col.DefaultFunction = ParseDefault(col.DefaultExpr)
	}

	col.IsPrimaryKey = pks[col.Name]
	return col
}

func (e *Extractor) PrimaryKeys(ctx context.Context, table string) ([]string, error) {
	rs, err := e.db.Run(ctx, primaryKeysQuery, CatalogName(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key metadata: %w", err)
	}
	return firstColumn(rs), nil
}

func (e *Extractor) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rs, err := e.db.Run(ctx, foreignKeysQuery, CatalogName(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign key metadata: %w", err)
	}

	var fks []ForeignKey
	for _, row := range rs.Rows {
		if len(row) < 6 {
			continue
		}
		name := textOf(row[0])
		if len(fks) == 0 || fks[len(fks)-1].Name != name {
			fks = append(fks, ForeignKey{
				Name:            name,
				ReferencedTable: textOf(row[2]),
				OnUpdate:        referentialAction(textOf(row[4])),
				OnDelete:        referentialAction(textOf(row[5])),
			})
		}
		fk := &fks[len(fks)-1]
		fk.Columns = append(fk.Columns, textOf(row[1]))
		fk.ReferencedColumns = append(fk.ReferencedColumns, textOf(row[3]))
	}
	return fks, nil
}

func referentialAction(rule string) string {
	switch strings.ToUpper(strings.TrimSpace(rule)) {
	case "CASCADE":
		return "CASCADE"
	case "SET NULL":
		return "SET NULL"
	case "SET DEFAULT":
		return "SET DEFAULT"
	default:
		return "NO ACTION"
	}
}

// Indexes lists the user indexes of table. The partial index condition is
// only read on engines that support partial indexes.
func (e *Extractor) Indexes(ctx context.Context, table string) ([]Index, error) {
	condition := "NULL"
	if e.caps.PartialIndexes {
		condition = "i.RDB$CONDITION_SOURCE"
	}
	name := CatalogName(table)

	rs, err := e.db.Run(ctx, fmt.Sprintf(indexesQuery, condition), name)
	if err != nil {
		return nil, fmt.Errorf("failed to query index metadata: %w", err)
	}

	var indexes []Index
	for _, row := range rs.Rows {
		if len(row) < 5 {
			continue
		}
		idxName := textOf(row[0])
		if len(indexes) == 0 || indexes[len(indexes)-1].Name != idxName {
			where := strings.TrimSpace(textOf(row[4]))
			where = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(where, "WHERE"), "where"))
			indexes = append(indexes, Index{
				Name:       idxName,
				TableName:  name,
				IsUnique:   intOf(row[1]) == 1,
				Constraint: textOf(row[3]),
				Where:      where,
			})
		}
		idx := &indexes[len(indexes)-1]
		idx.Columns = append(idx.Columns, textOf(row[2]))
	}
	return indexes, nil
}

func (e *Extractor) CheckConstraints(ctx context.Context, table string) ([]CheckConstraint, error) {
	rs, err := e.db.Run(ctx, checksQuery, CatalogName(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query check constraint metadata: %w", err)
	}

	var checks []CheckConstraint
	for _, row := range rs.Rows {
		if len(row) < 2 {
			continue
		}
		expr := strings.TrimSpace(textOf(row[1]))
		if len(expr) >= 5 && strings.EqualFold(expr[:5], "CHECK") {
			expr = strings.TrimSpace(expr[5:])
		}
		checks = append(checks, CheckConstraint{Name: textOf(row[0]), Expression: expr})
	}
	return checks, nil
}

// SequenceValue reads the current value of a sequence without advancing it.
func (e *Extractor) SequenceValue(ctx context.Context, name string) (int64, error) {
	query := fmt.Sprintf("SELECT GEN_ID(%s, 0) FROM RDB$DATABASE", dialect.QuoteTableIdentifier(name))
	rs, err := e.db.Run(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence %s: %w", name, err)
	}
	v, ok := rs.Scalar()
	if !ok {
		return 0, fmt.Errorf("failed to read sequence %s: no value", name)
	}
	n, ok := v.AsInt64()
	if !ok {
		return 0, fmt.Errorf("failed to read sequence %s: unexpected value %v", name, v)
	}
	return n, nil
}

func (e *Extractor) CurrentUser(ctx context.Context) (string, error) {
	rs, err := e.db.Run(ctx, currentUserQuery)
	if err != nil {
		return "", fmt.Errorf("failed to query current user: %w", err)
	}
	v, _ := rs.Scalar()
	return strings.TrimSpace(textOf(v)), nil
}

// TableSequence returns the sequence a table uses by convention: the legacy
// <table>_G01 generator when it exists, <table>_SEQ otherwise.
func (e *Extractor) TableSequence(ctx context.Context, table string) (string, error) {
	legacy := LegacySequenceName(table)
	ok, err := e.SequenceExists(ctx, legacy)
	if err != nil {
		return "", err
	}
	if ok {
		return legacy, nil
	}
	return SequenceName(table), nil
}

// Table assembles the full descriptor of one table.
func (e *Extractor) Table(ctx context.Context, table string) (*TableDescriptor, error) {
	name, err := e.ResolveTableName(ctx, table)
	if err != nil {
		return nil, err
	}

	td := &TableDescriptor{Name: name}
	if td.PrimaryKeys, err = e.PrimaryKeys(ctx, name); err != nil {
		return nil, err
	}
	if td.Columns, err = e.columns(ctx, name, td.PrimaryKeys); err != nil {
		return nil, err
	}
	if td.Sequence, err = e.TableSequence(ctx, name); err != nil {
		return nil, err
	}
	if td.Indexes, err = e.Indexes(ctx, name); err != nil {
		return nil, err
	}
	if td.ForeignKeys, err = e.ForeignKeys(ctx, name); err != nil {
		return nil, err
	}
	if td.Checks, err = e.CheckConstraints(ctx, name); err != nil {
		return nil, err
	}
	return td, nil
}

func (e *Extractor) names(ctx context.Context, what, query string) ([]string, error) {
	rs, err := e.db.Run(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	return firstColumn(rs), nil
}

func (e *Extractor) exists(ctx context.Context, what, query, name string) (bool, error) {
	rs, err := e.db.Run(ctx, query, name)
	if err != nil {
		return false, fmt.Errorf("failed to check %s %s: %w", what, name, err)
	}
	v, ok := rs.Scalar()
	if !ok {
		return false, nil
	}
	n, _ := v.AsInt64()
	return n > 0, nil
}

func firstColumn(rs *database.ResultSet) []string {
	out := make([]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		if len(row) == 0 {
			continue
		}
		out = append(out, strings.TrimSpace(textOf(row[0])))
	}
	return out
}

// textOf reads catalog text. BLOB SUB_TYPE TEXT columns may arrive as bytes.
func textOf(v dialect.Value) string {
	switch v.Kind() {
	case dialect.KindNull:
		return ""
	case dialect.KindBinary:
		return string(v.Bytes())
	default:
		return v.String()
	}
}

func optionalText(v dialect.Value) *string {
	if v.IsNull() {
		return nil
	}
	s := strings.TrimSpace(textOf(v))
	if s == "" {
		return nil
	}
	return &s
}

func intOf(v dialect.Value) int {
	n, _ := v.AsInt64()
	return int(n)
}
