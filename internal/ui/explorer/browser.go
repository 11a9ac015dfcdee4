package explorer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kadirbelkuyu/fbadapter/internal/adapter"
	"github.com/kadirbelkuyu/fbadapter/internal/database"
	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
	"github.com/kadirbelkuyu/fbadapter/internal/schema"
)

const previewRows int64 = 200

// snapshot is one grid worth of rows, already formatted for display.
type snapshot struct {
	Columns []string
	Rows    [][]string
	Total   int64
}

// browser serializes the explorer's background loads onto one adapter.
type browser struct {
	mu      sync.Mutex
	db      *adapter.Adapter
	timeout time.Duration
}

func newBrowser(db *adapter.Adapter) *browser {
	return &browser{db: db, timeout: 10 * time.Second}
}

func (b *browser) tables(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.db.Tables(ctx)
}

// preview reads the first rows of table through FIRST and counts the rest.
func (b *browser) preview(ctx context.Context, table string) (snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	limit := previewRows
	rs, err := b.db.Select(ctx, "SELECT * FROM "+schema.Delimited(table), &limit, nil)
	if err != nil {
		return snapshot{}, err
	}
	snap := toSnapshot(rs, previewRows)

	count, err := b.db.Run(ctx, "SELECT COUNT(*) FROM "+schema.Delimited(table))
	if err != nil {
		return snapshot{}, err
	}
	if v, ok := count.Scalar(); ok {
		snap.Total, _ = v.AsInt64()
	}
	return snap, nil
}

func (b *browser) details(ctx context.Context, table string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	td, err := b.db.Table(ctx, table)
	if err != nil {
		return "", err
	}
	return describe(td), nil
}

// execute runs sqlText through the pagination rewrite. Result sets are cut
// to the preview size; other statements report the rows they touched.
func (b *browser) execute(ctx context.Context, sqlText string) (snapshot, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	rs, err := b.db.Exec(ctx, sqlText)
	if err != nil {
		return snapshot{}, false, err
	}
	if !isSelectStatement(sqlText) {
		return snapshot{Total: rs.RowsAffected}, false, nil
	}
	return toSnapshot(rs, previewRows), true, nil
}

func toSnapshot(rs *database.ResultSet, limit int64) snapshot {
	snap := snapshot{Columns: rs.Columns, Total: int64(len(rs.Rows))}
	for _, row := range rs.Rows {
		if limit > 0 && int64(len(snap.Rows)) >= limit {
			break
		}
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		snap.Rows = append(snap.Rows, cells)
	}
	return snap
}

func describe(td *schema.TableDescriptor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[::b]%s[-:-:-]\n", td.Name)
	if len(td.PrimaryKeys) > 0 {
		fmt.Fprintf(&sb, "Primary key: %s\n", strings.Join(td.PrimaryKeys, ", "))
	}
	if td.Sequence != "" {
		fmt.Fprintf(&sb, "Generator: %s\n", td.Sequence)
	}

	cols := make([]string, 0, len(td.Columns))
	for _, c := range td.Columns {
		col := c.Name + " " + c.SQLType
		if !c.Nullable {
			col += " NOT NULL"
		}
		if c.IsIdentity {
			col += " IDENTITY"
		}
		cols = append(cols, col)
	}
	fmt.Fprintf(&sb, "Columns: %s\n", strings.Join(cols, ", "))

	if len(td.Indexes) > 0 {
		idx := make([]string, 0, len(td.Indexes))
		for _, i := range td.Indexes {
			name := i.Name + "(" + strings.Join(i.Columns, ", ") + ")"
			if i.IsUnique {
				name = "UNIQUE " + name
			}
			idx = append(idx, name)
		}
		fmt.Fprintf(&sb, "Indexes: %s\n", strings.Join(idx, "; "))
	}
	for _, fk := range td.ForeignKeys {
		fmt.Fprintf(&sb, "FK %s -> %s(%s)\n", strings.Join(fk.Columns, ", "), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "))
	}
	return sb.String()
}

func formatCell(v dialect.Value) string {
	switch v.Kind() {
	case dialect.KindTimestamp:
		return v.Time().Format(time.RFC3339)
	case dialect.KindBinary:
		if raw := v.Bytes(); utf8.Valid(raw) {
			return string(raw)
		}
		return v.String()
	default:
		return v.String()
	}
}

func isSelectStatement(sqlText string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(sqlText))
	return strings.HasPrefix(trimmed, "select") || strings.HasPrefix(trimmed, "with")
}
