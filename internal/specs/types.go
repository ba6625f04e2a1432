// Package specs loads and matches the declarative per-source specifications
// that drive the file validation engine: one YAML document per source,
// walked off disk and matched against landed object paths.
package specs

// Field describes one schema column of a Source.
type Field struct {
	Name          string   `yaml:"name"`
	Type          string   `yaml:"type"`
	NullableRaw   *bool    `yaml:"nullable,omitempty"`
	AllowedValues []string `yaml:"allowed_values,omitempty"`
	MinValue      *float64 `yaml:"min_value,omitempty"`
	MaxValue      *float64 `yaml:"max_value,omitempty"`
	// XPath is only meaningful when the owning Source's format is xml.
	XPath string `yaml:"xpath,omitempty"`
}

// Nullable reports whether the field accepts NULL. Defaults to true when
// unspecified.
func (f Field) Nullable() bool {
	return f.NullableRaw == nil || *f.NullableRaw
}

// RowRule is one row_level validation rule expression.
type RowRule struct {
	Expr     string `yaml:"expr"`
	Severity string `yaml:"severity"` // "error" | "warning"
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ControlFile describes the optional sidecar/trailer row-count check.
type ControlFile struct {
	// Variant is one of "sidecar_xml", "sidecar_csv", "trailer".
	Variant string `yaml:"variant"`
	// Pattern is the sidecar object's glob pattern (sidecar_xml, sidecar_csv).
	Pattern string `yaml:"pattern,omitempty"`
	// XPathRowCount is the sidecar_xml row-count xpath.
	XPathRowCount string `yaml:"xpath_row_count,omitempty"`
	// RowCountField is the sidecar_csv row-count field name.
	RowCountField string `yaml:"row_count_field,omitempty"`
	// RowCountColumn is the trailer's zero-based row-count column index.
	RowCountColumn int `yaml:"row_count_column,omitempty"`
}

const (
	ControlFileSidecarXML = "sidecar_xml"
	ControlFileSidecarCSV = "sidecar_csv"
	ControlFileTrailer    = "trailer"
)

// SourceFormat describes how to locate and parse a source's objects.
type SourceFormat struct {
	PathPattern string `yaml:"path_pattern"`
	Format      string `yaml:"format"` // csv | json | jsonl | xml | parquet

	// CSV options.
	Delimiter string `yaml:"delimiter,omitempty"`
	Encoding  string `yaml:"encoding,omitempty"`

	// XML options.
	RowElement string            `yaml:"row_element,omitempty"`
	Namespaces map[string]string `yaml:"namespaces,omitempty"`
}

const (
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatJSONL   = "jsonl"
	FormatXML     = "xml"
	FormatParquet = "parquet"
)

// Source is one declarative source specification: matching glob, parse
// options, schema, row-level rules, and optional control-file row count.
type Source struct {
	Name   string       `yaml:"name"`
	Source SourceFormat `yaml:"source"`
	Schema []Field      `yaml:"schema"`

	Validation struct {
		RowLevel []RowRule `yaml:"row_level"`
	} `yaml:"validation"`

	ControlFile *ControlFile `yaml:"control_file,omitempty"`
}

// FieldByName returns the schema field named n, if declared.
func (s Source) FieldByName(n string) (Field, bool) {
	for _, f := range s.Schema {
		if f.Name == n {
			return f, true
		}
	}

	return Field{}, false
}
