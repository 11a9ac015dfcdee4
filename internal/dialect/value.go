package dialect

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDecimal
	KindFloat
	KindString
	KindBinary
	KindDate
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a SQL value as the adapter sees it. The zero Value is NULL.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	d    decimal.Decimal
	s    string
	raw  []byte
	t    time.Time
}

func Null() Value                 { return Value{} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Int(i int64) Value           { return Value{kind: KindInt, i: i} }
func Float(f float64) Value       { return Value{kind: KindFloat, f: f} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Date(t time.Time) Value      { return Value{kind: KindDate, t: t} }
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t} }

// Binary copies b so later writes by the caller do not leak into the value.
func Binary(b []byte) Value {
	return Value{kind: KindBinary, raw: append([]byte(nil), b...)}
}

// UUID stores u in the engine's CHAR(16) CHARACTER SET OCTETS form.
func UUID(u uuid.UUID) Value {
	return Binary(u[:])
}

// Decimal wraps an exact numeric.
func Decimal(d decimal.Decimal) Value {
	return Value{kind: KindDecimal, d: d}
}

// ParseDecimal parses s as an exact numeric literal.
func ParseDecimal(s string) (Value, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Value{}, fmt.Errorf("invalid decimal literal %q", s)
	}
	return Decimal(d), nil
}

// ValueOf converts a driver-native Go value into a Value.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case *big.Float:
		if x == nil {
			return Null(), nil
		}
		return ParseDecimal(x.Text('f', -1))
	case *big.Int:
		if x == nil {
			return Null(), nil
		}
		return Decimal(decimal.NewFromBigInt(x, 0)), nil
	case *big.Rat:
		if x == nil {
			return Null(), nil
		}
		return ParseDecimal(x.FloatString(18))
	case decimal.Decimal:
		return Decimal(x), nil
	case decimal.NullDecimal:
		if !x.Valid {
			return Null(), nil
		}
		return Decimal(x.Decimal), nil
	case string:
		return String(x), nil
	case []byte:
		return Binary(x), nil
	case uuid.UUID:
		return UUID(x), nil
	case time.Time:
		return Timestamp(x), nil
	case *string:
		if x == nil {
			return Null(), nil
		}
		return String(*x), nil
	case *int64:
		if x == nil {
			return Null(), nil
		}
		return Int(*x), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return Value{}, err
		}
		return ValueOf(dv)
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) Bool() bool      { return v.b }
func (v Value) Int() int64      { return v.i }
func (v Value) Float() float64  { return v.f }
func (v Value) Str() string     { return v.s }
func (v Value) Bytes() []byte   { return v.raw }
func (v Value) Time() time.Time { return v.t }

func (v Value) DecimalValue() decimal.Decimal { return v.d }

// Interface returns the value in the form handed to the database/sql driver.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindDecimal:
		return v.d.String()
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBinary:
		return v.raw
	case KindDate, KindTimestamp:
		return v.t
	default:
		return nil
	}
}

// Value implements driver.Valuer.
func (v Value) Value() (driver.Value, error) {
	return v.Interface(), nil
}

// AsInt64 reports the value as an integer when it holds one, including
// integral decimals and numeric strings returned by some catalog reads.
func (v Value) AsInt64() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindDecimal:
		return decimalInt64(v.d)
	case KindFloat:
		if v.f != float64(int64(v.f)) {
			return 0, false
		}
		return int64(v.f), true
	case KindString:
		d, err := decimal.NewFromString(strings.TrimSpace(v.s))
		if err != nil {
			return 0, false
		}
		return decimalInt64(d)
	default:
		return 0, false
	}
}

func decimalInt64(d decimal.Decimal) (int64, bool) {
	if !d.IsInteger() || !d.BigInt().IsInt64() {
		return 0, false
	}
	return d.IntPart(), true
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindString:
		return v.s
	case KindBinary:
		return fmt.Sprintf("%x", v.raw)
	case KindDate:
		return v.t.Format(DateLayout)
	case KindTimestamp:
		return v.t.Format(TimestampLayout)
	default:
		return fmt.Sprint(v.Interface())
	}
}
