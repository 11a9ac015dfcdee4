package dialect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
)

func TestParseVersion(t *testing.T) {
	v, ok := dialect.ParseVersion("5.0.1")
	require.True(t, ok)
	assert.Equal(t, 50001, v)

	v, ok = dialect.ParseVersion("WI-V3.0.10.33601 Firebird 3.0")
	require.True(t, ok)
	assert.Equal(t, 30010, v)

	_, ok = dialect.ParseVersion("unknown")
	assert.False(t, ok)
}

func TestCapabilitiesFallback(t *testing.T) {
	caps := dialect.CapabilitiesFor("")

	assert.Equal(t, dialect.DefaultVersion, caps.Version)
	assert.Equal(t, "3.0.0", caps.VersionString)
	assert.True(t, caps.IdentityColumns)
	assert.False(t, caps.TimeZones)
}

func TestCapabilitiesByGeneration(t *testing.T) {
	v3 := dialect.CapabilitiesFor("3.0.12")
	v4 := dialect.CapabilitiesFor("4.0.5")
	v5 := dialect.CapabilitiesFor("5.0.1")

	assert.Equal(t, 3, v3.Major())
	assert.True(t, v3.IdentityColumns)
	assert.True(t, v3.BooleanType)
	assert.False(t, v3.Int128)
	assert.False(t, v3.ReadConsistency)

	assert.True(t, v4.TimeZones)
	assert.True(t, v4.Int128)
	assert.True(t, v4.ReadConsistency)
	assert.False(t, v4.PartialIndexes)

	assert.True(t, v5.PartialIndexes)
	assert.True(t, v5.SkipLocked)
	assert.True(t, v5.Profiler)
	assert.Equal(t, "5.0.1", v5.VersionString)
}

func TestTypeToSQL(t *testing.T) {
	v3 := dialect.CapabilitiesForVersion(30000)
	v2 := dialect.CapabilitiesForVersion(20500)
	v4 := dialect.CapabilitiesForVersion(40000)

	tests := []struct {
		caps      dialect.Capabilities
		abstract  string
		limit     int
		precision int
		scale     int
		expected  string
	}{
		{v3, "primary_key", 0, 0, 0, dialect.IdentityType},
		{v2, "primary_key", 0, 0, 0, "BIGINT"},
		{v3, "integer", 2, 0, 0, "SMALLINT"},
		{v3, "integer", 0, 0, 0, "INTEGER"},
		{v3, "integer", 8, 0, 0, "BIGINT"},
		{v3, "string", 0, 0, 0, "VARCHAR(255)"},
		{v3, "string", 40, 0, 0, "VARCHAR(40)"},
		{v3, "text", 0, 0, 0, "BLOB SUB_TYPE TEXT"},
		{v3, "decimal", 0, 10, 2, "NUMERIC(10,2)"},
		{v3, "timestamptz", 0, 0, 0, "TIMESTAMP"},
		{v4, "timestamptz", 0, 0, 0, "TIMESTAMP WITH TIME ZONE"},
		{v3, "int128", 0, 0, 0, "BIGINT"},
		{v4, "int128", 0, 0, 0, "INT128"},
		{v2, "boolean", 0, 0, 0, "SMALLINT"},
		{v3, "boolean", 0, 0, 0, "BOOLEAN"},
		{v3, "uuid", 0, 0, 0, "CHAR(16) CHARACTER SET OCTETS"},
	}
	for _, tc := range tests {
		got, err := tc.caps.TypeToSQL(tc.abstract, tc.limit, tc.precision, tc.scale)
		require.NoError(t, err, tc.abstract)
		assert.Equal(t, tc.expected, got, "%s on %d", tc.abstract, tc.caps.Version)
	}

	_, err := v3.TypeToSQL("integer", 16, 0, 0)
	require.Error(t, err)
	_, err = v3.TypeToSQL("geometry", 0, 0, 0)
	require.Error(t, err)
}
