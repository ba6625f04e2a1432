package rules_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-markets/surveillance-platform/internal/parsers"
	"github.com/meridian-markets/surveillance-platform/internal/rules"
)

func TestParseIsNull(t *testing.T) {
	t.Parallel()

	r := rules.Parse("notes is null")
	require.Equal(t, rules.KindIsNull, r.Kind)
	assert.Equal(t, "notes", r.Field)
	assert.False(t, r.Negate)

	r2 := rules.Parse("notes is not null")
	require.Equal(t, rules.KindIsNull, r2.Kind)
	assert.True(t, r2.Negate)
}

func TestParseIn(t *testing.T) {
	t.Parallel()

	r := rules.Parse("side in ('BUY', 'SELL')")
	require.Equal(t, rules.KindIn, r.Kind)
	assert.False(t, r.Negate)
	require.Len(t, r.Values, 2)
	assert.Equal(t, "BUY", r.Values[0].Str)

	r2 := rules.Parse("side not in ('CANCEL')")
	require.Equal(t, rules.KindIn, r2.Kind)
	assert.True(t, r2.Negate)
}

func TestParseMatches(t *testing.T) {
	t.Parallel()

	r := rules.Parse(`symbol matches '[A-Z]{1,5}'`)
	require.Equal(t, rules.KindMatches, r.Kind)
	assert.Equal(t, "[A-Z]{1,5}", r.Pattern)
}

func TestParseCompareLiteral(t *testing.T) {
	t.Parallel()

	r := rules.Parse("quantity > 0")
	require.Equal(t, rules.KindCompare, r.Kind)
	assert.Equal(t, rules.OpGT, r.Op)
	assert.InDelta(t, 0, r.Literal.Num, 0)
	assert.False(t, r.IsCurrentTimestamp)
}

func TestParseCompareCurrentTimestamp(t *testing.T) {
	t.Parallel()

	r := rules.Parse("trade_time <= current_timestamp()")
	require.Equal(t, rules.KindCompare, r.Kind)
	assert.True(t, r.IsCurrentTimestamp)
	assert.Equal(t, rules.OpLE, r.Op)
}

func TestParseUnrecognizedSyntaxNeverErrors(t *testing.T) {
	t.Parallel()

	r := rules.Parse("this is ### not a valid rule @@@")
	assert.Equal(t, rules.KindUnrecognized, r.Kind)
	assert.Equal(t, "this is ### not a valid rule @@@", r.Raw)
}

func TestEvalIsNull(t *testing.T) {
	t.Parallel()

	rule := rules.Parse("notes is null")

	row := parsers.Row{"notes": parsers.Null()}
	assert.True(t, rules.Eval(rule, row, time.Now()).Pass)

	row2 := parsers.Row{"notes": parsers.Str("hi")}
	res := rules.Eval(rule, row2, time.Now())
	assert.False(t, res.Pass)
	assert.NotEmpty(t, res.Reason)
}

func TestEvalIn(t *testing.T) {
	t.Parallel()

	rule := rules.Parse("side in ('BUY', 'SELL')")

	assert.True(t, rules.Eval(rule, parsers.Row{"side": parsers.Str("BUY")}, time.Now()).Pass)
	assert.False(t, rules.Eval(rule, parsers.Row{"side": parsers.Str("CANCEL")}, time.Now()).Pass)

	// A missing/null field is left to field-level nullability checks.
	assert.True(t, rules.Eval(rule, parsers.Row{}, time.Now()).Pass)
}

func TestEvalMatchesIsAnchored(t *testing.T) {
	t.Parallel()

	rule := rules.Parse(`symbol matches '[A-Z]{1,5}'`)

	assert.True(t, rules.Eval(rule, parsers.Row{"symbol": parsers.Str("AAPL")}, time.Now()).Pass)
	assert.False(t, rules.Eval(rule, parsers.Row{"symbol": parsers.Str("AAPL123")}, time.Now()).Pass)
}

func TestEvalCompareNumeric(t *testing.T) {
	t.Parallel()

	rule := rules.Parse("quantity > 0")

	assert.True(t, rules.Eval(rule, parsers.Row{"quantity": parsers.Int(10)}, time.Now()).Pass)
	assert.False(t, rules.Eval(rule, parsers.Row{"quantity": parsers.Int(0)}, time.Now()).Pass)
	assert.False(t, rules.Eval(rule, parsers.Row{"quantity": parsers.Int(-5)}, time.Now()).Pass)
}

func TestEvalCompareCurrentTimestamp(t *testing.T) {
	t.Parallel()

	rule := rules.Parse("trade_time <= current_timestamp()")
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	past := parsers.Row{"trade_time": parsers.Timestamp(now.Add(-time.Hour))}
	assert.True(t, rules.Eval(rule, past, now).Pass)

	future := parsers.Row{"trade_time": parsers.Timestamp(now.Add(time.Hour))}
	assert.False(t, rules.Eval(rule, future, now).Pass)
}

func TestEvalUnrecognizedAlwaysPasses(t *testing.T) {
	t.Parallel()

	rule := rules.Parse("### garbage ###")
	assert.True(t, rules.Eval(rule, parsers.Row{}, time.Now()).Pass)
}
