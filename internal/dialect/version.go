package dialect

import (
	"fmt"
	"regexp"
	"strconv"
)

// VersionQuery asks the engine for its version string, e.g. "5.0.1".
const VersionQuery = `SELECT RDB$GET_CONTEXT('SYSTEM', 'ENGINE_VERSION') FROM RDB$DATABASE`

// IdentityMarker appears in the rendered type of natively generated columns.
const IdentityMarker = "IDENTITY"

// IdentityType is the column type of a native identity primary key.
const IdentityType = "BIGINT GENERATED BY DEFAULT AS IDENTITY"

// DefaultVersion is assumed when the engine version cannot be determined.
const DefaultVersion = 30000

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// Capabilities is the feature set of one engine version. It is derived once
// per connection and never mutated.
type Capabilities struct {
	Version       int
	VersionString string

	IdentityColumns bool
	BooleanType     bool

	TimeZones         bool
	Int128            bool
	DecFloat          bool
	ReadConsistency   bool
	DatetimePrecision bool
	InsertOnConflict  bool

	PartialIndexes  bool
	SkipLocked      bool
	Profiler        bool
	ParallelWorkers bool
}

// ParseVersion turns "major.minor.patch" into major*10000 + minor*100 + patch.
func ParseVersion(s string) (int, bool) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return major*10000 + minor*100 + patch, true
}

// CapabilitiesFor derives the feature flags from a version string. Unparsable
// strings fall back to the 3.0.0 baseline.
func CapabilitiesFor(versionString string) Capabilities {
	v, ok := ParseVersion(versionString)
	if !ok {
		return CapabilitiesForVersion(DefaultVersion)
	}
	caps := CapabilitiesForVersion(v)
	caps.VersionString = versionPattern.FindString(versionString)
	return caps
}

// CapabilitiesForVersion derives the feature flags from a numeric version.
func CapabilitiesForVersion(v int) Capabilities {
	return Capabilities{
		Version:       v,
		VersionString: fmt.Sprintf("%d.%d.%d", v/10000, v/100%100, v%100),

		IdentityColumns: v >= 30000,
		BooleanType:     v >= 30000,

		TimeZones:         v >= 40000,
		Int128:            v >= 40000,
		DecFloat:          v >= 40000,
		ReadConsistency:   v >= 40000,
		DatetimePrecision: v >= 40000,
		InsertOnConflict:  v >= 40000,

		PartialIndexes:  v >= 50000,
		SkipLocked:      v >= 50000,
		Profiler:        v >= 50000,
		ParallelWorkers: v >= 50000,
	}
}

// Major returns the engine major version.
func (c Capabilities) Major() int {
	return c.Version / 10000
}

// TypeToSQL renders an abstract column type for this engine. It mirrors the
// generic layer's vocabulary (integer, string, text, ...).
func (c Capabilities) TypeToSQL(abstract string, limit, precision, scale int) (string, error) {
	switch abstract {
	case "integer":
		switch {
		case limit == 1 || limit == 2:
			return "SMALLINT", nil
		case limit == 0 || limit == 3 || limit == 4:
			return "INTEGER", nil
		case limit >= 5 && limit <= 8:
			return "BIGINT", nil
		default:
			return "", fmt.Errorf("no integer type has byte size %d", limit)
		}
	case "bigint":
		return "BIGINT", nil
	case "primary_key":
		if c.IdentityColumns {
			return IdentityType, nil
		}
		return "BIGINT", nil
	case "string":
		if limit <= 0 {
			limit = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", limit), nil
	case "text", "json":
		return "BLOB SUB_TYPE TEXT", nil
	case "binary":
		return "BLOB SUB_TYPE BINARY", nil
	case "boolean":
		if c.BooleanType {
			return "BOOLEAN", nil
		}
		return "SMALLINT", nil
	case "decfloat":
		if c.DecFloat {
			return "DECFLOAT", nil
		}
		return "DOUBLE PRECISION", nil
	case "date":
		return "DATE", nil
	case "time":
		return "TIME", nil
	case "datetime", "timestamp":
		return "TIMESTAMP", nil
	case "time_with_timezone", "timetz":
		if c.TimeZones {
			return "TIME WITH TIME ZONE", nil
		}
		return "TIME", nil
	case "timestamp_with_timezone", "timestamptz":
		if c.TimeZones {
			return "TIMESTAMP WITH TIME ZONE", nil
		}
		return "TIMESTAMP", nil
	case "float":
		return "FLOAT", nil
	case "double":
		return "DOUBLE PRECISION", nil
	case "decimal", "numeric":
		switch {
		case precision > 0 && scale > 0:
			return fmt.Sprintf("NUMERIC(%d,%d)", precision, scale), nil
		case precision > 0:
			return fmt.Sprintf("NUMERIC(%d)", precision), nil
		default:
			return "NUMERIC", nil
		}
	case "int128":
		if c.Int128 {
			return "INT128", nil
		}
		return "BIGINT", nil
	case "uuid":
		return "CHAR(16) CHARACTER SET OCTETS", nil
	default:
		return "", fmt.Errorf("unknown column type %q", abstract)
	}
}
