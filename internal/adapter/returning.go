package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
	"github.com/kadirbelkuyu/fbadapter/internal/schema"
)

// Field is one column value of an INSERT.
type Field struct {
	Column string
	Value  any
}

const generatorLookupQuery = `
	SELECT TRIM(RDB$GENERATOR_NAME)
	FROM RDB$GENERATORS
	WHERE RDB$GENERATOR_NAME CONTAINING ?
	AND COALESCE(RDB$SYSTEM_FLAG, 0) = 0
	ORDER BY RDB$GENERATOR_NAME`

// Insert adds one row to table and returns its primary key. A key field
// that is missing or null is left out so the engine generates it. Without
// pk the statement is run as is and Null is returned.
//
// When RETURNING yields nothing the key is read back from the table's
// generator, then from MAX(pk). Both fallbacks can observe rows inserted by
// other connections in the meantime.
func (a *Adapter) Insert(ctx context.Context, table string, fields []Field, pk string) (dialect.Value, error) {
	var (
		columns []string
		args    []any
		given   *dialect.Value
	)
	for _, f := range fields {
		if pk != "" && strings.EqualFold(f.Column, pk) {
			v, err := dialect.ValueOf(f.Value)
			if err != nil {
				return dialect.Null(), fmt.Errorf("failed to read key value: %w", err)
			}
			if v.IsNull() {
				continue
			}
			given = &v
		}
		columns = append(columns, dialect.QuoteIdentifier(f.Column))
		args = append(args, f.Value)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(dialect.QuoteTableIdentifier(table))
	if len(columns) == 0 {
		sb.WriteString(" DEFAULT VALUES")
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
		fmt.Fprintf(&sb, " (%s) VALUES (%s)", strings.Join(columns, ", "), placeholders)
	}
	if pk != "" {
		sb.WriteString(" RETURNING ")
		sb.WriteString(dialect.QuoteIdentifier(pk))
	}

	rs, err := a.Run(ctx, sb.String(), args...)
	if err != nil {
		return dialect.Null(), err
	}
	if pk == "" {
		return dialect.Null(), nil
	}
	if v, ok := rs.Scalar(); ok && !v.IsNull() {
		return v, nil
	}
	if given != nil {
		return *given, nil
	}

	a.logger.Debugf("Insert into %s returned no key, reading it back", table)
	return a.recoverKey(ctx, table, pk)
}

func (a *Adapter) recoverKey(ctx context.Context, table, pk string) (dialect.Value, error) {
	name := schema.CatalogName(table)

	rs, err := a.Run(ctx, generatorLookupQuery, name)
	if err != nil {
		return dialect.Null(), fmt.Errorf("failed to look up generator for %s: %w", table, err)
	}

	var candidates []string
	for _, row := range rs.Rows {
		if len(row) > 0 {
			candidates = append(candidates, strings.TrimSpace(row[0].String()))
		}
	}
	generator := pickGenerator(name, candidates)

	if generator != "" {
		id, err := a.Extractor(ctx).SequenceValue(ctx, generator)
		if err != nil {
			return dialect.Null(), err
		}
		return dialect.Int(id), nil
	}

	id, err := a.maxValue(ctx, table, pk)
	if err != nil {
		return dialect.Null(), err
	}
	return dialect.Int(id), nil
}

// pickGenerator chooses the table's own generator among names containing the
// table name: the legacy <table>_G01 first, as TableSequence does, then
// <table>_SEQ, then any <table>_ prefixed name. A name that merely contains
// the table name, like another table's generator, is the last resort.
func pickGenerator(table string, candidates []string) string {
	rank := func(name string) int {
		switch {
		case name == schema.LegacySequenceName(table):
			return 0
		case name == schema.SequenceName(table):
			return 1
		case strings.HasPrefix(name, strings.ToUpper(table)+"_"):
			return 2
		default:
			return 3
		}
	}

	best, bestRank := "", 4
	for _, c := range candidates {
		if r := rank(c); r < bestRank {
			best, bestRank = c, r
		}
	}
	return best
}
