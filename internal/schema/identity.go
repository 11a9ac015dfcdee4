package schema

import (
	"regexp"
	"strings"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
)

type StrategyKind int

const (
	StrategyNone StrategyKind = iota
	// NativeIdentity leaves key generation to the engine. The column is
	// rendered as an identity column and omitted from INSERT statements.
	NativeIdentity
	// SequenceAndTrigger emulates identity with a sequence and a BEFORE
	// INSERT trigger that fills the column when it is null.
	SequenceAndTrigger
)

func (k StrategyKind) String() string {
	switch k {
	case NativeIdentity:
		return "native identity"
	case SequenceAndTrigger:
		return "sequence and trigger"
	default:
		return "none"
	}
}

// Strategy is how a column obtains generated key values.
type Strategy struct {
	Kind     StrategyKind
	Sequence string
	Trigger  string
}

// PlanAutoIncrement picks the key generation mechanism for table.column.
func PlanAutoIncrement(table, column string, caps dialect.Capabilities) Strategy {
	if caps.IdentityColumns {
		return Strategy{Kind: NativeIdentity}
	}
	return Strategy{
		Kind:     SequenceAndTrigger,
		Sequence: SequenceName(table),
		Trigger:  TriggerName(table, column),
	}
}

// SequenceName is the per-table sequence, <table>_SEQ.
func SequenceName(table string) string {
	return strings.ToUpper(unquote(table)) + "_SEQ"
}

// LegacySequenceName is the generator name older schemas used, <table>_G01.
func LegacySequenceName(table string) string {
	return strings.ToUpper(unquote(table)) + "_G01"
}

// TriggerName is the identity emulation trigger, <table>_<column>_TRIG.
func TriggerName(table, column string) string {
	return strings.ToUpper(unquote(table) + "_" + unquote(column) + "_TRIG")
}

var generatorCall = regexp.MustCompile(`(?i)GEN_ID\s*\(|NEXT\s+VALUE\s+FOR`)

// DetectAutoIncrement reports whether col gets generated values. The engine
// generations expose this through different catalog signals, so any of
// these counts: an identity type, a sole BIGINT primary key, or a default
// that calls a generator.
//
// The BIGINT rule also matches a manually assigned key with no generator.
func DetectAutoIncrement(col ColumnDescriptor, pkSegments int) bool {
	if col.IsIdentity || strings.Contains(col.SQLType, dialect.IdentityMarker) {
		return true
	}
	if col.IsPrimaryKey && pkSegments == 1 && strings.HasPrefix(col.SQLType, "BIGINT") {
		return true
	}
	if col.DefaultFunction != nil && generatorCall.MatchString(*col.DefaultFunction) {
		return true
	}
	return false
}

func unquote(name string) string {
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		return strings.ReplaceAll(name[1:len(name)-1], `""`, `"`)
	}
	return name
}
