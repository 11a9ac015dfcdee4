package schema

import "github.com/kadirbelkuyu/fbadapter/internal/dialect"

// ColumnDescriptor is one column as read from the catalog. Descriptors are
// built fresh on every introspection call.
type ColumnDescriptor struct {
	Name            string
	SQLType         string
	Nullable        bool
	DefaultExpr     *string
	Default         dialect.Value
	DefaultFunction *string
	IsComputed      bool
	ComputedExpr    *string
	IsPrimaryKey    bool
	IsIdentity      bool

	FieldType int
	Length    int
	Precision int
	Scale     int
	SubType   int
	CharsetID int
	Collation string
}

// HasDefault is false for computed columns whatever the catalog holds.
func (c ColumnDescriptor) HasDefault() bool {
	return !c.IsComputed && c.DefaultExpr != nil
}

type TableDescriptor struct {
	Name        string
	Columns     []ColumnDescriptor
	PrimaryKeys []string
	Sequence    string
	Indexes     []Index
	ForeignKeys []ForeignKey
	Checks      []CheckConstraint
}

func (t TableDescriptor) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          string
	OnUpdate          string
}

type Index struct {
	Name      string
	TableName string
	Columns   []string
	IsUnique  bool
	// Constraint is the type of the constraint the index backs, if any.
	Constraint string
	Where      string
}

type CheckConstraint struct {
	Name       string
	Expression string
}

type Sequence struct {
	Name  string
	Value int64
}

// ColumnDefinition describes a column to create.
type ColumnDefinition struct {
	Name          string
	Type          string
	NotNull       bool
	Default       *dialect.Value
	ComputedBy    string
	Collation     string
	AutoIncrement bool
}

// TableDefinition describes a table to create.
type TableDefinition struct {
	Name        string
	Columns     []ColumnDefinition
	PrimaryKeys []string
	Temporary   bool
	// Force drops an existing table of the same name first.
	Force       bool
	Indexes     []Index
	ForeignKeys []ForeignKey
	Checks      []CheckConstraint
}
