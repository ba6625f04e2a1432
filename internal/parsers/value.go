// Package parsers decodes landed CSV/JSON/JSONL/XML objects into row maps
// and defines the tagged Value variant those rows carry: a statically typed
// stand-in for the dynamic, reflective row dictionaries a scripting-language
// implementation would use.
package parsers

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies which field of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindStr
	KindInt
	KindFloat
	KindDec
	KindBool
	KindTs
	KindDate
)

// String renders the kind's name, used in error messages and logging.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindStr:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDec:
		return "decimal"
	case KindBool:
		return "bool"
	case KindTs:
		return "timestamp"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Value is a tagged variant over the runtime types a validated row field can
// hold: {Null, Str, Int, Float, Dec, Bool, Ts, Date}.
// Dec (NUMERIC) is kept as its original decimal string to avoid float
// rounding; arithmetic on it is out of scope (validation only compares and
// stores it).
type Value struct {
	Kind Kind
	str  string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

func Null() Value                 { return Value{Kind: KindNull} }
func Str(s string) Value          { return Value{Kind: KindStr, str: s} }
func Int(i int64) Value           { return Value{Kind: KindInt, i: i} }
func Float(f float64) Value       { return Value{Kind: KindFloat, f: f} }
func Dec(s string) Value          { return Value{Kind: KindDec, str: s} }
func Bool(b bool) Value           { return Value{Kind: KindBool, b: b} }
func Timestamp(t time.Time) Value { return Value{Kind: KindTs, t: t} }
func Date(t time.Time) Value      { return Value{Kind: KindDate, t: t} }

// IsNull reports whether the value is NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsString returns the value's string representation regardless of kind,
// used for quarantine records, the JSON artifact encoder, and rule matching
// against string literals.
func (v Value) AsString() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindStr, KindDec:
		return v.str
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindTs:
		return v.t.UTC().Format(time.RFC3339Nano)
	case KindDate:
		return v.t.Format("2006-01-02")
	default:
		return ""
	}
}

// AsFloat returns the value coerced to float64 for numeric comparisons.
// Returns (0, false) if the kind has no numeric interpretation.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindDec:
		var f float64
		if _, err := fmt.Sscanf(v.str, "%g", &f); err != nil {
			return 0, false
		}

		return f, true
	default:
		return 0, false
	}
}

// AsTime returns the value as a time.Time for TIMESTAMP/DATE kinds.
func (v Value) AsTime() (time.Time, bool) {
	if v.Kind == KindTs || v.Kind == KindDate {
		return v.t, true
	}

	return time.Time{}, false
}

// AsBool returns the value as a bool.
func (v Value) AsBool() (bool, bool) {
	if v.Kind == KindBool {
		return v.b, true
	}

	return false, false
}

// Native converts Value to a Go-native type suitable for warehouse.Row /
// JSON encoding: string, int64, float64, bool, time.Time, or nil.
func (v Value) Native() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindStr, KindDec:
		return v.str
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTs, KindDate:
		return v.t
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler so Value rows encode directly into
// the staging artifact and quarantine JSONL without an intermediate map.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindStr, KindDec:
		return json.Marshal(v.str)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindTs:
		return json.Marshal(v.t.UTC().Format(time.RFC3339Nano))
	case KindDate:
		return json.Marshal(v.t.Format("2006-01-02"))
	default:
		return []byte("null"), nil
	}
}

// Row is a single record with canonical, per-field-typed values.
type Row map[string]Value
