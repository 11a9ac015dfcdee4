package dialect

import (
	"encoding/hex"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DateLayout is the engine's DATE literal format.
	DateLayout = "2006-01-02"
	// TimestampLayout is the engine's TIMESTAMP literal format (microseconds).
	TimestampLayout = "2006-01-02 15:04:05.000000"

	zoneLayout = "-07:00"
)

var (
	plainIdentifier = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	hasLower        = regexp.MustCompile(`[a-z]`)
	hasUpper        = regexp.MustCompile(`[A-Z]`)

	functionCall    = regexp.MustCompile(`^\w+\(.*\)$`)
	contextVariable = regexp.MustCompile(`(?i)^(CURRENT_(DATE|TIME|TIMESTAMP|USER|ROLE|CONNECTION|TRANSACTION)|LOCALTIME|LOCALTIMESTAMP|NOW|TODAY|TOMORROW|YESTERDAY)$`)
)

func isDelimited(name string) bool {
	return len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`)
}

func delimit(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdentifier renders a column-level identifier. Names the engine would
// read back unchanged after its implicit upper-casing are returned upper-cased
// and undelimited; anything else is delimited with its case preserved.
func QuoteIdentifier(name string) string {
	if isDelimited(name) {
		return name
	}
	if plainIdentifier.MatchString(name) && !(hasLower.MatchString(name) && hasUpper.MatchString(name)) {
		return strings.ToUpper(name)
	}
	return delimit(name)
}

// QuoteTableIdentifier renders a table-level identifier. Tables are always
// upper-cased and delimited so they round-trip through the catalog.
func QuoteTableIdentifier(name string) string {
	if isDelimited(name) {
		return name
	}
	return delimit(strings.ToUpper(name))
}

// QuoteString escapes s for use inside a single-quoted literal.
func QuoteString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// QuoteLiteral renders v as a SQL literal for an engine with the given capabilities.
func QuoteLiteral(v Value, caps Capabilities) string {
	switch v.Kind() {
	case KindNull:
		return "NULL"
	case KindBool:
		if v.Bool() {
			return "TRUE"
		}
		return "FALSE"
	case KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case KindDecimal:
		return v.DecimalValue().String()
	case KindFloat:
		f := v.Float()
		switch {
		case math.IsNaN(f):
			return "'NaN'"
		case math.IsInf(f, 1):
			return "'Infinity'"
		case math.IsInf(f, -1):
			return "'-Infinity'"
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case KindString:
		return "'" + QuoteString(v.Str()) + "'"
	case KindBinary:
		return "x'" + hex.EncodeToString(v.Bytes()) + "'"
	case KindDate:
		return "'" + v.Time().Format(DateLayout) + "'"
	case KindTimestamp:
		return "'" + FormatTimestamp(v, caps) + "'"
	default:
		return "'" + QuoteString(v.String()) + "'"
	}
}

// FormatTimestamp renders the timestamp text without surrounding quotes.
// The zone offset is appended only on engines with time zone support.
func FormatTimestamp(v Value, caps Capabilities) string {
	t := v.Time()
	if caps.TimeZones {
		return t.Format(TimestampLayout) + " " + t.Format(zoneLayout)
	}
	return t.Format(TimestampLayout)
}

// QuoteDefaultExpression renders a DEFAULT clause value. Function calls and
// context variables pass through unquoted.
func QuoteDefaultExpression(v Value, caps Capabilities) string {
	if v.Kind() == KindString {
		s := strings.TrimSpace(v.Str())
		if functionCall.MatchString(s) || contextVariable.MatchString(s) {
			return s
		}
	}
	return QuoteLiteral(v, caps)
}
