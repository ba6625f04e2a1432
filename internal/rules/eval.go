package rules

import (
	"fmt"
	"regexp"
	"time"

	"github.com/meridian-markets/surveillance-platform/internal/parsers"
)

// Result is the outcome of evaluating one Rule against one row.
type Result struct {
	Pass   bool
	Reason string
}

func passResult() Result { return Result{Pass: true} }

func failResult(reason string) Result { return Result{Pass: false, Reason: reason} }

// Eval evaluates rule against row. now is the wall-clock time substituted
// for current_timestamp() comparisons, passed in rather than read from a
// clock so evaluation stays deterministic and testable.
//
// An unrecognized rule always passes: malformed row_level syntax is a
// warning at spec-load time, not a per-row failure.
func Eval(rule Rule, row parsers.Row, now time.Time) Result {
	switch rule.Kind {
	case KindIsNull:
		return evalIsNull(rule, row)
	case KindIn:
		return evalIn(rule, row)
	case KindMatches:
		return evalMatches(rule, row)
	case KindCompare:
		return evalCompare(rule, row, now)
	case KindUnrecognized:
		return passResult()
	default:
		return passResult()
	}
}

func evalIsNull(rule Rule, row parsers.Row) Result {
	v, ok := row[rule.Field]

	isNull := !ok || v.IsNull()
	if isNull != rule.Negate {
		return passResult()
	}

	if rule.Negate {
		return failResult(fmt.Sprintf("%s: expected non-null value", rule.Field))
	}

	return failResult(fmt.Sprintf("%s: expected null value, got %q", rule.Field, v.AsString()))
}

func evalIn(rule Rule, row parsers.Row) Result {
	v, ok := row[rule.Field]
	if !ok || v.IsNull() {
		// Membership rules say nothing about null handling; a missing or
		// null field can neither be "in" nor "not in" a concrete list, so
		// it is left to the field-level nullable/required checks.
		return passResult()
	}

	member := false

	for _, lit := range rule.Values {
		if literalMatchesValue(lit, v) {
			member = true

			break
		}
	}

	if member != rule.Negate {
		return passResult()
	}

	if rule.Negate {
		return failResult(fmt.Sprintf("%s: value %q is in the disallowed list", rule.Field, v.AsString()))
	}

	return failResult(fmt.Sprintf("%s: value %q is not in the allowed list", rule.Field, v.AsString()))
}

func evalMatches(rule Rule, row parsers.Row) Result {
	v, ok := row[rule.Field]
	if !ok || v.IsNull() {
		return passResult()
	}

	re, err := regexp.Compile("^(?:" + rule.Pattern + ")$")
	if err != nil {
		// An uncompilable pattern passes, like unrecognized syntax. Spec
		// lint does not compile matches patterns, so it is not reported
		// before evaluation.
		return passResult()
	}

	if re.MatchString(v.AsString()) {
		return passResult()
	}

	return failResult(fmt.Sprintf("%s: value %q does not match %q", rule.Field, v.AsString(), rule.Pattern))
}

func evalCompare(rule Rule, row parsers.Row, now time.Time) Result {
	v, ok := row[rule.Field]
	if !ok || v.IsNull() {
		return passResult()
	}

	if rule.IsCurrentTimestamp {
		t, ok := v.AsTime()
		if !ok {
			return passResult()
		}

		return compareOrdered(rule, t.Compare(now), v.AsString(), now.Format(time.RFC3339Nano))
	}

	if rule.Literal.IsString {
		return compareOrdered(rule, stringCompare(v.AsString(), rule.Literal.Str), v.AsString(), rule.Literal.Str)
	}

	f, ok := v.AsFloat()
	if !ok {
		return passResult()
	}

	cmp := 0

	switch {
	case f < rule.Literal.Num:
		cmp = -1
	case f > rule.Literal.Num:
		cmp = 1
	}

	return compareOrdered(rule, cmp, v.AsString(), fmt.Sprintf("%g", rule.Literal.Num))
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareOrdered applies rule.Op to a three-way comparison result (-1, 0, 1)
// between the row's value and the rule's literal/timestamp operand.
func compareOrdered(rule Rule, cmp int, actual, want string) Result {
	var ok bool

	switch rule.Op {
	case OpLE:
		ok = cmp <= 0
	case OpLT:
		ok = cmp < 0
	case OpGE:
		ok = cmp >= 0
	case OpGT:
		ok = cmp > 0
	case OpEQ:
		ok = cmp == 0
	case OpNE:
		ok = cmp != 0
	}

	if ok {
		return passResult()
	}

	return failResult(fmt.Sprintf("%s: %q %s %q failed", rule.Field, actual, rule.Op, want))
}

func literalMatchesValue(lit Literal, v parsers.Value) bool {
	if lit.IsString {
		return lit.Str == v.AsString()
	}

	f, ok := v.AsFloat()

	return ok && f == lit.Num
}
