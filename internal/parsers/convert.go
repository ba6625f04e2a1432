package parsers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrTypeConversion is wrapped with a field-specific message whenever a raw
// value cannot be converted to its declared type.
var ErrTypeConversion = errors.New("parsers: type conversion failed")

// Convert converts a raw decoded field value (string for CSV/XML, or a
// JSON-native type) into its canonical Value for fieldType, type-converting
// strings using each type's canonical parse: ISO-8601 with optional
// Z->+00:00 for TIMESTAMP, calendar-date parsing for DATE.
func Convert(fieldType string, raw any) (Value, error) {
	if raw == nil {
		return Null(), nil
	}

	switch strings.ToUpper(fieldType) {
	case "STRING", "BYTES":
		return Str(stringify(raw)), nil
	case "INT64":
		return convertInt(raw)
	case "FLOAT64":
		return convertFloat(raw)
	case "NUMERIC":
		return Dec(stringify(raw)), nil
	case "BOOL":
		return convertBool(raw)
	case "TIMESTAMP":
		return convertTimestamp(raw)
	case "DATE":
		return convertDate(raw)
	case "TIME", "DATETIME":
		return Str(stringify(raw)), nil
	case "JSON":
		return Str(stringify(raw)), nil
	default:
		return Str(stringify(raw)), nil
	}
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func convertInt(raw any) (Value, error) {
	switch v := raw.(type) {
	case float64:
		return Int(int64(v)), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: INT64 %q: %w", ErrTypeConversion, v, err)
		}

		return Int(i), nil
	default:
		return Value{}, fmt.Errorf("%w: INT64: unsupported raw type %T", ErrTypeConversion, raw)
	}
}

func convertFloat(raw any) (Value, error) {
	switch v := raw.(type) {
	case float64:
		return Float(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: FLOAT64 %q: %w", ErrTypeConversion, v, err)
		}

		return Float(f), nil
	default:
		return Value{}, fmt.Errorf("%w: FLOAT64: unsupported raw type %T", ErrTypeConversion, raw)
	}
}

func convertBool(raw any) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return Bool(v), nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Value{}, fmt.Errorf("%w: BOOL %q: %w", ErrTypeConversion, v, err)
		}

		return Bool(b), nil
	default:
		return Value{}, fmt.Errorf("%w: BOOL: unsupported raw type %T", ErrTypeConversion, raw)
	}
}

// convertTimestamp parses ISO-8601, mapping a trailing "Z" to "+00:00"
// before falling back to RFC3339.
func convertTimestamp(raw any) (Value, error) {
	s := strings.TrimSpace(stringify(raw))
	normalized := s

	if strings.HasSuffix(normalized, "Z") {
		normalized = strings.TrimSuffix(normalized, "Z") + "+00:00"
	}

	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04:05-07:00",
		"2006-01-02 15:04:05-07:00",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, normalized); err == nil {
			return Timestamp(t.UTC()), nil
		}
	}

	return Value{}, fmt.Errorf("%w: TIMESTAMP %q", ErrTypeConversion, s)
}

// convertDate parses an ISO-8601 date (Python's fromisoformat equivalent).
func convertDate(raw any) (Value, error) {
	s := strings.TrimSpace(stringify(raw))

	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Value{}, fmt.Errorf("%w: DATE %q: %w", ErrTypeConversion, s, err)
	}

	return Date(t), nil
}
