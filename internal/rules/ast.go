// Package rules implements the row_level rule grammar as a deterministic
// recursive-descent parser producing a Rule AST, rather than dispatching on
// the rule text with a set of ad hoc regexes.
package rules

// Kind identifies which grammar form a parsed Rule represents.
type Kind int

const (
	// KindUnrecognized marks a rule expression that didn't match any known
	// grammar form. Such a rule always passes (it is effectively a no-op,
	// logged as a warning by the caller).
	KindUnrecognized Kind = iota
	KindIsNull
	KindIn
	KindMatches
	KindCompare
)

// CompareOp enumerates the comparison operators in the "field op literal"
// and "field op current_timestamp()" grammar forms.
type CompareOp string

const (
	OpLE CompareOp = "<="
	OpLT CompareOp = "<"
	OpGE CompareOp = ">="
	OpGT CompareOp = ">"
	OpEQ CompareOp = "="
	OpNE CompareOp = "!="
)

// Literal is a parsed grammar literal: either a quoted string or a numeric
// value. Field-typed interpretation happens at evaluation time, since the
// AST itself has no access to the source spec's declared field types.
type Literal struct {
	IsString bool
	Str      string
	Num      float64
}

// Rule is the parsed form of one row_level rule expression. Severity is
// attached by the caller (internal/specs.RowRule), not by the parser.
type Rule struct {
	Kind  Kind
	Field string

	// KindIsNull / KindIn: Negate means "is not null" / "not in".
	Negate bool

	// KindIn.
	Values []Literal

	// KindMatches.
	Pattern string

	// KindCompare.
	Op                 CompareOp
	Literal            Literal
	IsCurrentTimestamp bool

	// Raw is the original, unparsed expression text, used for
	// KindUnrecognized and for error/log messages.
	Raw string
}
