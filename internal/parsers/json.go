package parsers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON parses either a top-level JSON array of objects or newline-delimited
// JSON objects, autodetecting via the first non-whitespace byte: '[' means
// array, anything else means NDJSON.
type JSON struct{}

func (p JSON) Parse(data []byte) ([]RawRow, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		return parseJSONArray(trimmed)
	}

	return parseJSONLines(data)
}

func parseJSONArray(data []byte) ([]RawRow, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsers: json: decode array: %w", err)
	}

	rows := make([]RawRow, 0, len(raw))

	for i, item := range raw {
		fields, err := decodeJSONObject(item)
		if err != nil {
			return nil, fmt.Errorf("parsers: json: row %d: %w", i+1, err)
		}

		rows = append(rows, RawRow{Number: i + 1, Raw: item, Fields: fields})
	}

	return rows, nil
}

func parseJSONLines(data []byte) ([]RawRow, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var rows []RawRow

	lineNum := 0

	for scanner.Scan() {
		lineNum++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		fields, err := decodeJSONObject(line)
		if err != nil {
			return nil, fmt.Errorf("parsers: jsonl: row %d: %w", lineNum, err)
		}

		rows = append(rows, RawRow{Number: lineNum, Raw: append([]byte(nil), line...), Fields: fields})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parsers: jsonl: %w", err)
	}

	return rows, nil
}

func decodeJSONObject(raw json.RawMessage) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}

	return obj, nil
}
