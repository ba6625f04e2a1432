package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// CSV parses delimited text with a required header row; data rows are
// numbered from 2, and an empty field is treated as NULL. This is a
// deliberate standard-library choice, not an oversight — see DESIGN.md.
type CSV struct {
	// Delimiter defaults to ',' when zero.
	Delimiter rune
}

const csvHeaderRowNumber = 1

func (p CSV) Parse(data []byte) ([]RawRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	if p.Delimiter != 0 {
		reader.Comma = p.Delimiter
	}

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("parsers: csv: read header: %w", err)
	}

	var rows []RawRow

	rowNum := csvHeaderRowNumber

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		rowNum++

		if err != nil {
			return nil, fmt.Errorf("parsers: csv: row %d: %w", rowNum, err)
		}

		fields := make(map[string]any, len(header))

		for i, col := range header {
			if i >= len(record) || record[i] == "" {
				fields[col] = nil

				continue
			}

			fields[col] = record[i]
		}

		rows = append(rows, RawRow{
			Number: rowNum,
			Raw:    []byte(encodeCSVRow(record)),
			Fields: fields,
		})
	}

	return rows, nil
}

func encodeCSVRow(record []string) string {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)
	_ = w.Write(record)
	w.Flush()

	return buf.String()
}
