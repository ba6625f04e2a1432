package parsers

import "errors"

// ErrUnsupportedFormat is returned when a source spec names a format no
// parser in this package implements.
var ErrUnsupportedFormat = errors.New("parsers: unsupported format")

// RawRow is a single decoded record before per-field type conversion.
// Fields holds whatever native type the format naturally produces: string
// for CSV and XML text nodes, and string/float64/bool/nil/map/slice for
// JSON — internal/validation does the canonical conversion into Row using
// the source spec's declared field types.
type RawRow struct {
	// Number is the 1-based row number (CSV rows are numbered from 2, the
	// header being row 1; JSON/XML rows are numbered from 1).
	Number int
	// Raw is the original encoded bytes of this row, preserved for
	// quarantine records.
	Raw []byte
	// Fields maps declared field name to its decoded value.
	Fields map[string]any
}

// Parser decodes a landed object's bytes into an ordered list of RawRow.
type Parser interface {
	Parse(data []byte) ([]RawRow, error)
}
