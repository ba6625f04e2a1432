package validation

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"sort"

	"github.com/meridian-markets/surveillance-platform/internal/parsers"
)

// artifactHeader is the first line of every staging artifact, recording the
// first accepted row's column names in sorted order. Values are written by
// parsers.Value's JSON encoding: integers, floats and booleans as JSON
// numbers and booleans, decimals, timestamps and dates as strings, and
// nulls as null.
type artifactHeader struct {
	Columns []string `json:"columns"`
}

// EncodeArtifact encodes accepted rows as gzip-compressed JSON Lines: one
// header line naming the column order, followed by one JSON object per row.
func EncodeArtifact(rows []parsers.Row) ([]byte, error) {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)

	if err := enc.Encode(artifactHeader{Columns: columnOrder(rows)}); err != nil {
		_ = gz.Close()

		return nil, err
	}

	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			_ = gz.Close()

			return nil, err
		}
	}

	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func columnOrder(rows []parsers.Row) []string {
	if len(rows) == 0 {
		return nil
	}

	columns := make([]string, 0, len(rows[0]))
	for name := range rows[0] {
		columns = append(columns, name)
	}

	sort.Strings(columns)

	return columns
}

// encodeQuarantineJSONL encodes quarantined row records as one JSON object
// per line, written to quarantined/<name>_<ts>.jsonl.
func encodeQuarantineJSONL(rows []QuarantinedRow) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// DecodeArtifact reverses EncodeArtifact, used by tests and by operator
// tooling inspecting a staged artifact. The header line is skipped; rows are
// decoded as raw JSON maps since the typed Value variant's exact Kind is
// not recoverable from its JSON encoding alone.
func DecodeArtifact(data []byte) ([]map[string]any, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	dec := json.NewDecoder(gz)

	var header artifactHeader
	if err := dec.Decode(&header); err != nil {
		return nil, err
	}

	var rows []map[string]any

	for {
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			break
		}

		rows = append(rows, row)
	}

	return rows, nil
}
