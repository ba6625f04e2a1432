package specs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validSource() Source {
	src := Source{
		Name: "trades",
		Source: SourceFormat{
			PathPattern: "trades/*.csv",
			Format:      FormatCSV,
		},
		Schema: []Field{
			{Name: "trade_id", Type: "STRING"},
			{Name: "quantity", Type: "INT64"},
		},
	}
	src.Validation.RowLevel = []RowRule{
		{Expr: "quantity > 0", Severity: SeverityError},
	}

	return src
}

func TestLintAcceptsValidSource(t *testing.T) {
	require.Empty(t, Lint(validSource()))
}

func TestLintFlagsMissingIdentifiers(t *testing.T) {
	var src Source

	problems := Lint(src)

	messages := make([]string, 0, len(problems))
	for _, p := range problems {
		messages = append(messages, p.Message)
	}

	require.Contains(t, messages, "name is required")
	require.Contains(t, messages, "source.path_pattern is required")
	require.Contains(t, messages, "source.format is required")
	require.Contains(t, messages, "schema must declare at least one field")
}

func TestLintFlagsSchemaProblems(t *testing.T) {
	src := validSource()
	src.Schema = append(src.Schema,
		Field{Name: "quantity", Type: "INT64"},
		Field{Name: "price", Type: "MONEY"},
		Field{Name: "venue", Type: "STRING", XPath: "/Trade/Venue"},
	)

	minVal, maxVal := 10.0, 1.0
	src.Schema = append(src.Schema, Field{Name: "lots", Type: "INT64", MinValue: &minVal, MaxValue: &maxVal})

	problems := Lint(src)
	require.Len(t, problems, 4)
	require.Contains(t, problems[0].Message, `"quantity" declared more than once`)
	require.Contains(t, problems[1].Message, `unrecognized type "MONEY"`)
	require.Contains(t, problems[2].Message, "xpath on a non-xml source")
	require.Contains(t, problems[3].Message, "min_value 10 greater than max_value 1")
}

func TestLintFlagsUnparseableAndDanglingRules(t *testing.T) {
	src := validSource()
	src.Validation.RowLevel = []RowRule{
		{Expr: "quantity betwixt 1 and 9", Severity: SeverityError},
		{Expr: "notional > 0", Severity: SeverityError},
		{Expr: "quantity > 0", Severity: "fatal"},
	}

	problems := Lint(src)
	require.Len(t, problems, 3)
	require.Contains(t, problems[0].Message, "does not match any recognized grammar form")
	require.Contains(t, problems[1].Message, `undeclared field "notional"`)
	require.Contains(t, problems[2].Message, `invalid severity "fatal"`)
}

func TestLintFlagsControlFileVariants(t *testing.T) {
	src := validSource()
	src.ControlFile = &ControlFile{Variant: ControlFileSidecarXML}

	problems := Lint(src)
	require.Len(t, problems, 2)
	require.Contains(t, problems[0].Message, "requires pattern")
	require.Contains(t, problems[1].Message, "requires xpath_row_count")

	src.ControlFile = &ControlFile{Variant: "checksum"}
	problems = Lint(src)
	require.Len(t, problems, 1)
	require.Contains(t, problems[0].Message, `variant "checksum" is not recognized`)

	// A zero row_count_column is a valid trailer column index.
	src.ControlFile = &ControlFile{Variant: ControlFileTrailer, RowCountColumn: 0}
	require.Empty(t, Lint(src))
}

func TestLintXMLRowElementRequirements(t *testing.T) {
	src := validSource()
	src.Source.Format = FormatXML
	src.Source.PathPattern = "trades/*.xml"

	problems := Lint(src)
	require.Len(t, problems, 1)
	require.Contains(t, problems[0].Message, "require source.row_element")
}

func TestLintAllFlagsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	r.Add(validSource())
	r.Add(validSource())

	problems := LintAll(r)
	require.Len(t, problems, 1)
	require.Equal(t, "duplicate source name", problems[0].Message)
}
