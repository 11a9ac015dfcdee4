package database

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
)

// ColumnScanner is the cursor shape returned by Execute; *sql.Rows satisfies it.
type ColumnScanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// ResultSet is a driver payload in uniform shape. Column names are lower-case.
type ResultSet struct {
	Columns      []string
	Rows         [][]dialect.Value
	RowsAffected int64
}

// Scalar returns the first column of the first row.
func (r *ResultSet) Scalar() (dialect.Value, bool) {
	if r == nil || len(r.Rows) == 0 || len(r.Rows[0]) == 0 {
		return dialect.Null(), false
	}
	return r.Rows[0][0], true
}

// Column returns the index of a column by case-insensitive name, or -1.
func (r *ResultSet) Column(name string) int {
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Records returns each row keyed by column name.
func (r *ResultSet) Records() []map[string]dialect.Value {
	records := make([]map[string]dialect.Value, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(map[string]dialect.Value, len(row))
		for i, v := range row {
			if i < len(r.Columns) {
				rec[r.Columns[i]] = v
			}
		}
		records = append(records, rec)
	}
	return records
}

// Normalizer shapes raw driver payloads. Strings that are not valid UTF-8
// are decoded from the connection charset when it is a single-byte one.
type Normalizer struct {
	decoder *encoding.Decoder
}

var charsets = map[string]*charmap.Charmap{
	"WIN1250":    charmap.Windows1250,
	"WIN1251":    charmap.Windows1251,
	"WIN1252":    charmap.Windows1252,
	"WIN1253":    charmap.Windows1253,
	"WIN1254":    charmap.Windows1254,
	"WIN1255":    charmap.Windows1255,
	"WIN1256":    charmap.Windows1256,
	"WIN1257":    charmap.Windows1257,
	"WIN1258":    charmap.Windows1258,
	"ISO8859_1":  charmap.ISO8859_1,
	"ISO8859_2":  charmap.ISO8859_2,
	"ISO8859_3":  charmap.ISO8859_3,
	"ISO8859_4":  charmap.ISO8859_4,
	"ISO8859_5":  charmap.ISO8859_5,
	"ISO8859_6":  charmap.ISO8859_6,
	"ISO8859_7":  charmap.ISO8859_7,
	"ISO8859_8":  charmap.ISO8859_8,
	"ISO8859_9":  charmap.ISO8859_9,
	"ISO8859_13": charmap.ISO8859_13,
	"DOS437":     charmap.CodePage437,
	"DOS850":     charmap.CodePage850,
	"DOS852":     charmap.CodePage852,
	"DOS866":     charmap.CodePage866,
	"KOI8R":      charmap.KOI8R,
	"KOI8U":      charmap.KOI8U,
}

func NewNormalizer(charset string) *Normalizer {
	n := &Normalizer{}
	if cm, ok := charsets[strings.ToUpper(strings.TrimSpace(charset))]; ok {
		n.decoder = cm.NewDecoder()
	}
	return n
}

// Normalize accepts a cursor (closed once drained), a sql.Result, an
// affected-row count, positional rows ([][]any, where single-element
// wrappers around a cell are unwrapped) or keyed records ([]map[string]any).
func (n *Normalizer) Normalize(payload any) (*ResultSet, error) {
	switch p := payload.(type) {
	case nil:
		return &ResultSet{}, nil
	case *ResultSet:
		return p, nil
	case ColumnScanner:
		return n.fromScanner(p)
	case sql.Result:
		affected, err := p.RowsAffected()
		if err != nil {
			return &ResultSet{}, nil
		}
		return &ResultSet{RowsAffected: affected}, nil
	case int:
		return &ResultSet{RowsAffected: int64(p)}, nil
	case int64:
		return &ResultSet{RowsAffected: p}, nil
	case [][]any:
		return n.fromPositional(p)
	case []any:
		rows := make([][]any, 0, len(p))
		for _, r := range p {
			if row, ok := r.([]any); ok {
				rows = append(rows, row)
				continue
			}
			rows = append(rows, []any{r})
		}
		return n.fromPositional(rows)
	case []map[string]any:
		return n.fromRecords(p)
	default:
		return nil, fmt.Errorf("unsupported result payload %T", payload)
	}
}

func (n *Normalizer) fromScanner(rows ColumnScanner) (*ResultSet, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}
	rs := &ResultSet{Columns: lowerAll(columns)}

	for rows.Next() {
		raw := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row, err := n.row(raw)
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return rs, nil
}

func (n *Normalizer) fromPositional(raw [][]any) (*ResultSet, error) {
	rs := &ResultSet{}
	for _, r := range raw {
		row, err := n.row(r)
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

func (n *Normalizer) fromRecords(records []map[string]any) (*ResultSet, error) {
	rs := &ResultSet{}
	if len(records) == 0 {
		return rs, nil
	}

	keys := make([]string, 0, len(records[0]))
	for k := range records[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rs.Columns = lowerAll(keys)

	for _, rec := range records {
		raw := make([]any, len(keys))
		for i, k := range keys {
			raw[i] = rec[k]
		}
		row, err := n.row(raw)
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

func (n *Normalizer) row(raw []any) ([]dialect.Value, error) {
	row := make([]dialect.Value, len(raw))
	for i, cell := range raw {
		v, err := dialect.ValueOf(n.cell(unwrap(cell)))
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		row[i] = v
	}
	return row, nil
}

func (n *Normalizer) cell(v any) any {
	s, ok := v.(string)
	if !ok || n.decoder == nil || utf8.ValidString(s) {
		return v
	}
	decoded, _, err := transform.String(n.decoder, s)
	if err != nil {
		return v
	}
	return decoded
}

// unwrap strips single-element slices some drivers put around scalar cells.
func unwrap(v any) any {
	for {
		wrapped, ok := v.([]any)
		if !ok || len(wrapped) != 1 {
			return v
		}
		v = wrapped[0]
	}
}

func lowerAll(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = strings.ToLower(strings.TrimSpace(name))
	}
	return out
}
