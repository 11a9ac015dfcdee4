package dialect_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
)

func ptr(v int64) *int64 { return &v }

func TestRewriteLimitOffsetGrid(t *testing.T) {
	for limit := int64(0); limit <= 3; limit++ {
		for offset := int64(0); offset <= 3; offset++ {
			query := fmt.Sprintf("SELECT * FROM t LIMIT %d OFFSET %d", limit, offset)

			got, err := dialect.Rewrite(query, nil, nil)
			require.NoError(t, err, query)

			assert.Contains(t, got, fmt.Sprintf("FIRST %d", limit), query)
			if offset > 0 {
				assert.Contains(t, got, fmt.Sprintf("SKIP %d", offset), query)
			} else {
				assert.NotContains(t, got, "SKIP", query)
			}
			assert.NotContains(t, got, "LIMIT", query)
			assert.NotContains(t, got, "OFFSET", query)
		}
	}
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		limit    *int64
		offset   *int64
		expected string
	}{
		{"limit and offset", "SELECT * FROM t LIMIT 10 OFFSET 20", nil, nil, "SELECT FIRST 10 SKIP 20 * FROM t"},
		{"limit only", "SELECT id FROM t ORDER BY id LIMIT 5", nil, nil, "SELECT FIRST 5 id FROM t ORDER BY id"},
		{"limit zero", "SELECT * FROM t LIMIT 0", nil, nil, "SELECT FIRST 0 * FROM t"},
		{"offset only", "SELECT * FROM t OFFSET 5", nil, nil, "SELECT SKIP 5 * FROM t"},
		{"offset rows", "SELECT * FROM t OFFSET 5 ROWS", nil, nil, "SELECT SKIP 5 * FROM t"},
		{"offset before limit", "SELECT * FROM t OFFSET 2 LIMIT 3", nil, nil, "SELECT FIRST 3 SKIP 2 * FROM t"},
		{"lower case", "select * from t limit 2 offset 1", nil, nil, "select FIRST 2 SKIP 1 * from t"},
		{"before distinct", "SELECT DISTINCT name FROM t LIMIT 5", nil, nil, "SELECT FIRST 5 DISTINCT name FROM t"},
		{"trailing semicolon", "SELECT * FROM t LIMIT 5;", nil, nil, "SELECT FIRST 5 * FROM t;"},
		{"explicit values", "SELECT * FROM t", ptr(5), ptr(0), "SELECT FIRST 5 * FROM t"},
		{"explicit offset", "SELECT * FROM t", nil, ptr(7), "SELECT SKIP 7 * FROM t"},
		{"explicit overrides clause", "SELECT * FROM t LIMIT 10", ptr(3), nil, "SELECT FIRST 3 * FROM t"},
		{"cte", "WITH c AS (SELECT 1 AS n FROM RDB$DATABASE) SELECT n FROM c LIMIT 1", nil, nil,
			"WITH c AS (SELECT 1 AS n FROM RDB$DATABASE) SELECT FIRST 1 n FROM c"},
		{"no pagination", "SELECT * FROM t WHERE id = ?", nil, nil, "SELECT * FROM t WHERE id = ?"},
		{"limit in string", "SELECT * FROM t WHERE note = 'LIMIT 5'", nil, nil, "SELECT * FROM t WHERE note = 'LIMIT 5'"},
		{"limit in identifier", `SELECT "LIMIT" FROM t`, nil, nil, `SELECT "LIMIT" FROM t`},
		{"limit in comment", "SELECT * FROM t -- LIMIT 5", nil, nil, "SELECT * FROM t -- LIMIT 5"},
		{"nested limit untouched", "SELECT * FROM (SELECT * FROM u LIMIT 3) x", nil, nil, "SELECT * FROM (SELECT * FROM u LIMIT 3) x"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := dialect.Rewrite(tc.query, tc.limit, tc.offset)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestRewriteIsIdempotent(t *testing.T) {
	once, err := dialect.Rewrite("SELECT * FROM t LIMIT 10 OFFSET 20", nil, nil)
	require.NoError(t, err)

	twice, err := dialect.Rewrite(once, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestRewriteErrors(t *testing.T) {
	_, err := dialect.Rewrite("SELECT * FROM t LIMIT ?", nil, nil)
	require.ErrorIs(t, err, dialect.ErrUnresolvedPlaceholder)

	_, err = dialect.Rewrite("SELECT * FROM t LIMIT abc", nil, nil)
	require.ErrorIs(t, err, dialect.ErrUnsupportedClause)

	_, err = dialect.Rewrite("UPDATE t SET a = 1 LIMIT 1", nil, nil)
	require.ErrorIs(t, err, dialect.ErrUnsupportedClause)

	_, err = dialect.Rewrite("SELECT FIRST 1 * FROM t", ptr(2), nil)
	require.ErrorIs(t, err, dialect.ErrUnsupportedClause)

	_, err = dialect.Rewrite("SELECT * FROM t", ptr(-1), nil)
	require.ErrorIs(t, err, dialect.ErrUnsupportedClause)
}

func TestRewriteRejectsUnrecognisedPagination(t *testing.T) {
	for _, query := range []string{
		"SELECT * FROM t LIMIT -1",
		"SELECT * FROM t LIMIT 10, 20",
		"SELECT * FROM t LIMIT 10 OFFSET -5",
	} {
		_, err := dialect.Rewrite(query, nil, nil)
		assert.ErrorIs(t, err, dialect.ErrUnsupportedClause, query)

		_, err = dialect.RewriteWithArgs(query, nil)
		assert.ErrorIs(t, err, dialect.ErrUnsupportedClause, query)
	}

	native := "SELECT * FROM t OFFSET 5 ROWS FETCH NEXT 10 ROWS ONLY"
	out, err := dialect.Rewrite(native, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, native, out)

	out, err = dialect.Rewrite(`SELECT "LIMIT", offset FROM t WHERE note = 'LIMIT 1, 2'`, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "LIMIT", offset FROM t WHERE note = 'LIMIT 1, 2'`, out)
}

func TestRewriteWithArgs(t *testing.T) {
	res, err := dialect.RewriteWithArgs("SELECT * FROM t WHERE a = ? LIMIT ? OFFSET ?", []any{"x", 10, int64(20)})
	require.NoError(t, err)
	assert.Equal(t, "SELECT FIRST 10 SKIP 20 * FROM t WHERE a = ?", res.SQL)
	assert.Equal(t, []any{"x"}, res.Args)
	assert.Equal(t, 2, res.ConsumedBinds)

	res, err = dialect.RewriteWithArgs("SELECT * FROM t LIMIT 5 OFFSET ?", []any{int64(0)})
	require.NoError(t, err)
	assert.Equal(t, "SELECT FIRST 5 * FROM t", res.SQL)
	assert.Empty(t, res.Args)
	assert.Equal(t, 1, res.ConsumedBinds)

	res, err = dialect.RewriteWithArgs("SELECT * FROM t WHERE a = ?", []any{1})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = ?", res.SQL)
	assert.Equal(t, []any{1}, res.Args)
	assert.Zero(t, res.ConsumedBinds)
}

func TestRewritePageDropsReplacedBinds(t *testing.T) {
	res, err := dialect.RewritePage("SELECT * FROM t WHERE a = ? LIMIT ?", []any{"x", int64(50)}, ptr(10), ptr(20))
	require.NoError(t, err)
	assert.Equal(t, "SELECT FIRST 10 SKIP 20 * FROM t WHERE a = ?", res.SQL)
	assert.Equal(t, []any{"x"}, res.Args)
	assert.Equal(t, 1, res.ConsumedBinds)

	res, err = dialect.RewritePage("SELECT * FROM t LIMIT ? OFFSET ?", []any{int64(5), int64(15)}, nil, ptr(0))
	require.NoError(t, err)
	assert.Equal(t, "SELECT FIRST 5 * FROM t", res.SQL)
	assert.Empty(t, res.Args)

	res, err = dialect.RewritePage("SELECT * FROM t WHERE a = ?", []any{1}, ptr(3), nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT FIRST 3 * FROM t WHERE a = ?", res.SQL)
	assert.Equal(t, []any{1}, res.Args)
}

func TestRewriteWithArgsErrors(t *testing.T) {
	_, err := dialect.RewriteWithArgs("SELECT * FROM t LIMIT ?", nil)
	require.ErrorIs(t, err, dialect.ErrUnresolvedPlaceholder)

	_, err = dialect.RewriteWithArgs("SELECT * FROM t LIMIT ?", []any{"ten"})
	require.ErrorIs(t, err, dialect.ErrUnresolvedPlaceholder)
}
