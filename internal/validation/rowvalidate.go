package validation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-markets/surveillance-platform/internal/parsers"
	"github.com/meridian-markets/surveillance-platform/internal/rules"
	"github.com/meridian-markets/surveillance-platform/internal/specs"
)

// validateRow runs the per-row validation pipeline: field-level
// nullability/type/allowed_values/min-max checks, then row_level rule
// evaluation. It returns the converted row (always, even on failure, so
// callers can still log field values) and a non-empty failure reason if the
// row should be quarantined.
func validateRow(src specs.Source, raw parsers.RawRow, now time.Time, logger *slog.Logger) (parsers.Row, string) {
	row := make(parsers.Row, len(src.Schema))

	var reasons []string

	for _, field := range src.Schema {
		val, reason := convertField(field, raw.Fields[field.Name])
		if reason != "" {
			reasons = append(reasons, reason)
		}

		row[field.Name] = val
	}

	for _, rr := range src.Validation.RowLevel {
		rule := rules.Parse(rr.Expr)
		if rule.Kind == rules.KindUnrecognized {
			logger.Warn("unrecognized row_level rule, treated as pass",
				slog.String("source", src.Name), slog.String("expr", rr.Expr))

			continue
		}

		result := rules.Eval(rule, row, now)
		if result.Pass {
			continue
		}

		switch rr.Severity {
		case specs.SeverityWarning:
			logger.Warn("row_level rule warning",
				slog.String("source", src.Name), slog.Int("row", raw.Number), slog.String("reason", result.Reason))
		default:
			reasons = append(reasons, result.Reason)
		}
	}

	if len(reasons) == 0 {
		return row, ""
	}

	return row, joinReasons(reasons)
}

func convertField(field specs.Field, raw any) (parsers.Value, string) {
	val, err := parsers.Convert(field.Type, raw)
	if err != nil {
		return parsers.Null(), fmt.Sprintf("%s: %v", field.Name, err)
	}

	if val.IsNull() {
		if !field.Nullable() {
			return val, fmt.Sprintf("%s: null value not allowed", field.Name)
		}

		return val, ""
	}

	if len(field.AllowedValues) > 0 && !containsString(field.AllowedValues, val.AsString()) {
		return val, fmt.Sprintf("%s: value %q not in allowed_values", field.Name, val.AsString())
	}

	if field.MinValue != nil || field.MaxValue != nil {
		if f, ok := val.AsFloat(); ok {
			if field.MinValue != nil && f < *field.MinValue {
				return val, fmt.Sprintf("%s: value %g below min_value %g", field.Name, f, *field.MinValue)
			}

			if field.MaxValue != nil && f > *field.MaxValue {
				return val, fmt.Sprintf("%s: value %g above max_value %g", field.Name, f, *field.MaxValue)
			}
		}
	}

	return val, ""
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}

	return false
}

func joinReasons(reasons []string) string {
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}

	return out
}
