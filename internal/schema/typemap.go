package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
)

// RDB$FIELDS.RDB$FIELD_TYPE codes.
const (
	fieldSmallint    = 7
	fieldInteger     = 8
	fieldFloat       = 10
	fieldDate        = 12
	fieldTime        = 13
	fieldChar        = 14
	fieldBigint      = 16
	fieldBoolean     = 23
	fieldDecfloat16  = 24
	fieldDecfloat34  = 25
	fieldInt128      = 26
	fieldDouble      = 27
	fieldTimeTZ      = 28
	fieldTimestampTZ = 29
	fieldTimestamp   = 35
	fieldVarchar     = 37
	fieldCstring     = 40
	fieldBlob        = 261
)

const (
	subTypeNumeric = 1
	subTypeDecimal = 2

	blobSubTypeText = 1

	charsetOctets = 1
)

// MapFieldType renders the dialect type for a catalog field. Exact numerics
// stored in integer slots are told apart by subtype or a negative scale.
func MapFieldType(code, subType, length, precision, scale int) string {
	switch code {
	case fieldBlob:
		if subType == blobSubTypeText {
			return "BLOB SUB_TYPE TEXT"
		}
		return "BLOB SUB_TYPE BINARY"
	case fieldChar:
		return fmt.Sprintf("CHAR(%d)", length)
	case fieldVarchar, fieldCstring:
		return fmt.Sprintf("VARCHAR(%d)", length)
	case fieldSmallint, fieldInteger, fieldBigint, fieldInt128:
		if exact := exactNumeric(code, subType, precision, scale); exact != "" {
			return exact
		}
		switch code {
		case fieldSmallint:
			return "SMALLINT"
		case fieldInteger:
			return "INTEGER"
		case fieldInt128:
			return "INT128"
		default:
			return "BIGINT"
		}
	case fieldBoolean:
		return "BOOLEAN"
	case fieldDate:
		return "DATE"
	case fieldTime:
		return "TIME"
	case fieldTimestamp:
		return "TIMESTAMP"
	case fieldTimeTZ:
		return "TIME WITH TIME ZONE"
	case fieldTimestampTZ:
		return "TIMESTAMP WITH TIME ZONE"
	case fieldFloat:
		return "FLOAT"
	case fieldDouble:
		if scale < 0 {
			return fmt.Sprintf("NUMERIC(15,%d)", -scale)
		}
		return "DOUBLE PRECISION"
	case fieldDecfloat16:
		return "DECFLOAT(16)"
	case fieldDecfloat34:
		return "DECFLOAT(34)"
	default:
		if length <= 0 {
			length = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", length)
	}
}

func exactNumeric(code, subType, precision, scale int) string {
	if subType != subTypeNumeric && subType != subTypeDecimal && scale >= 0 {
		return ""
	}
	if precision <= 0 {
		switch code {
		case fieldSmallint:
			precision = 4
		case fieldInteger:
			precision = 9
		case fieldInt128:
			precision = 38
		default:
			precision = 18
		}
	}
	name := "NUMERIC"
	if subType == subTypeDecimal {
		name = "DECIMAL"
	}
	return fmt.Sprintf("%s(%d,%d)", name, precision, -scale)
}

var (
	defaultKeyword = regexp.MustCompile(`(?is)^DEFAULT\s+`)
	quotedLiteral  = regexp.MustCompile(`(?s)^'(.*)'$`)
	numericLiteral = regexp.MustCompile(`^[-+]?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?$`)
)

// ParseDefault extracts the default from RDB$DEFAULT_SOURCE text such as
// "DEFAULT 'x'". Boolean words become Bool and NULL becomes Null; other
// literals stay text. A bare expression (CURRENT_TIMESTAMP, GEN_ID(...))
// is also returned as the default function.
func ParseDefault(source *string) (dialect.Value, *string) {
	if source == nil {
		return dialect.Null(), nil
	}
	text := strings.TrimSpace(defaultKeyword.ReplaceAllString(strings.TrimSpace(*source), ""))
	if text == "" {
		return dialect.Null(), nil
	}

	if m := quotedLiteral.FindStringSubmatch(text); m != nil {
		value := strings.ReplaceAll(m[1], "''", "'")
		if b, ok := booleanWord(value); ok {
			return dialect.Bool(b), nil
		}
		return dialect.String(value), nil
	}

	if b, ok := booleanWord(text); ok {
		return dialect.Bool(b), nil
	}
	if strings.EqualFold(text, "NULL") {
		return dialect.Null(), nil
	}
	if numericLiteral.MatchString(text) {
		return dialect.String(text), nil
	}

	fn := text
	return dialect.String(text), &fn
}

func booleanWord(s string) (bool, bool) {
	switch strings.ToUpper(s) {
	case "TRUE":
		return true, true
	case "FALSE":
		return false, true
	default:
		return false, false
	}
}
