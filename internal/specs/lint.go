package specs

import (
	"fmt"
	"path/filepath"

	"github.com/meridian-markets/surveillance-platform/internal/rules"
)

// Problem is one lint finding against a source spec document.
type Problem struct {
	Source  string
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Source, p.Message)
}

var validTypes = map[string]bool{
	"STRING": true, "INT64": true, "FLOAT64": true, "NUMERIC": true,
	"BOOL": true, "TIMESTAMP": true, "DATE": true, "TIME": true,
	"DATETIME": true, "BYTES": true, "JSON": true,
}

var validFormats = map[string]bool{
	FormatCSV: true, FormatJSON: true, FormatJSONL: true,
	FormatXML: true, FormatParquet: true,
}

// Lint statically validates one source spec: required identifiers, a
// well-formed glob, a recognized format with its per-format options,
// schema field sanity, parseable row-level rules, and a coherent
// control-file variant. It returns every finding rather than stopping at
// the first.
func Lint(src Source) []Problem {
	name := src.Name
	if name == "" {
		name = "(unnamed)"
	}

	var problems []Problem

	add := func(format string, args ...any) {
		problems = append(problems, Problem{Source: name, Message: fmt.Sprintf(format, args...)})
	}

	if src.Name == "" {
		add("name is required")
	}

	lintFormat(src, add)
	lintSchema(src, add)
	lintRules(src, add)
	lintControlFile(src, add)

	return problems
}

// LintAll lints every registered source and flags duplicate source names
// across the registry.
func LintAll(r *Registry) []Problem {
	var problems []Problem

	seen := make(map[string]bool)

	for _, src := range r.All() {
		if src.Name != "" && seen[src.Name] {
			problems = append(problems, Problem{Source: src.Name, Message: "duplicate source name"})
		}

		seen[src.Name] = true

		problems = append(problems, Lint(src)...)
	}

	return problems
}

func lintFormat(src Source, add func(string, ...any)) {
	if src.Source.PathPattern == "" {
		add("source.path_pattern is required")
	} else if _, err := filepath.Match(src.Source.PathPattern, "probe"); err != nil {
		add("source.path_pattern %q is not a valid glob", src.Source.PathPattern)
	}

	switch {
	case src.Source.Format == "":
		add("source.format is required")
	case !validFormats[src.Source.Format]:
		add("source.format %q is not recognized", src.Source.Format)
	}

	if src.Source.Format == FormatXML && src.Source.RowElement == "" {
		add("xml sources require source.row_element")
	}

	if src.Source.Format != FormatXML && src.Source.RowElement != "" {
		add("source.row_element is only meaningful for xml sources")
	}

	if src.Source.Format != FormatCSV && src.Source.Delimiter != "" {
		add("source.delimiter is only meaningful for csv sources")
	}

	if len(src.Source.Delimiter) > 1 {
		add("source.delimiter %q must be a single character", src.Source.Delimiter)
	}
}

func lintSchema(src Source, add func(string, ...any)) {
	if len(src.Schema) == 0 {
		add("schema must declare at least one field")
	}

	names := make(map[string]bool, len(src.Schema))

	for _, f := range src.Schema {
		if f.Name == "" {
			add("schema field with empty name")

			continue
		}

		if names[f.Name] {
			add("schema field %q declared more than once", f.Name)
		}

		names[f.Name] = true

		if !validTypes[f.Type] {
			add("field %q has unrecognized type %q", f.Name, f.Type)
		}

		if f.XPath != "" && src.Source.Format != FormatXML {
			add("field %q sets xpath on a non-xml source", f.Name)
		}

		if f.MinValue != nil && f.MaxValue != nil && *f.MinValue > *f.MaxValue {
			add("field %q has min_value %v greater than max_value %v", f.Name, *f.MinValue, *f.MaxValue)
		}
	}
}

// lintRules flags rules the engine would silently treat as always-passing
// warnings at runtime, plus rules referencing undeclared fields.
func lintRules(src Source, add func(string, ...any)) {
	for _, rule := range src.Validation.RowLevel {
		if rule.Severity != SeverityError && rule.Severity != SeverityWarning {
			add("rule %q has invalid severity %q", rule.Expr, rule.Severity)
		}

		parsed := rules.Parse(rule.Expr)
		if parsed.Kind == rules.KindUnrecognized {
			add("rule %q does not match any recognized grammar form", rule.Expr)

			continue
		}

		if _, ok := src.FieldByName(parsed.Field); !ok {
			add("rule %q references undeclared field %q", rule.Expr, parsed.Field)
		}
	}
}

func lintControlFile(src Source, add func(string, ...any)) {
	cf := src.ControlFile
	if cf == nil {
		return
	}

	switch cf.Variant {
	case ControlFileSidecarXML:
		if cf.Pattern == "" {
			add("sidecar_xml control file requires pattern")
		}

		if cf.XPathRowCount == "" {
			add("sidecar_xml control file requires xpath_row_count")
		}
	case ControlFileSidecarCSV:
		if cf.Pattern == "" {
			add("sidecar_csv control file requires pattern")
		}

		if cf.RowCountField == "" {
			add("sidecar_csv control file requires row_count_field")
		}
	case ControlFileTrailer:
		if cf.RowCountColumn < 0 {
			add("trailer control file row_count_column must not be negative")
		}
	default:
		add("control_file variant %q is not recognized", cf.Variant)
	}
}
