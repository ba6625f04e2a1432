package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-markets/surveillance-platform/internal/parsers"
	"github.com/meridian-markets/surveillance-platform/internal/specs"
)

// minBytesPerRow is the heuristic staging-artifact sanity check: observed
// bytes-per-row below this warns, but never rejects, the written artifact.
const minBytesPerRow = 10

// selectParser returns the Parser for a source's declared format. Parquet
// is a recognized format with no available Go library (see DESIGN.md); it
// surfaces as ErrUnsupportedFormat rather than being silently skipped.
func selectParser(src specs.Source) (parsers.Parser, error) {
	switch src.Source.Format {
	case specs.FormatCSV:
		delim := rune(0)
		if len(src.Source.Delimiter) > 0 {
			delim = rune(src.Source.Delimiter[0])
		}

		return parsers.CSV{Delimiter: delim}, nil
	case specs.FormatJSON, specs.FormatJSONL:
		return parsers.JSON{}, nil
	case specs.FormatXML:
		fieldXPaths := make(map[string]string, len(src.Schema))
		for _, f := range src.Schema {
			if f.XPath != "" {
				fieldXPaths[f.Name] = f.XPath
			}
		}

		return parsers.XML{
			RowElement:  src.Source.RowElement,
			Namespaces:  src.Source.Namespaces,
			FieldXPaths: fieldXPaths,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", parsers.ErrUnsupportedFormat, src.Source.Format)
	}
}

// validateAndStage runs a matched source's object through parse, per-row
// validation, the optional control-file row count check, and staging
// write-then-verify. objectPath is the full landing-bucket path; relPath
// has the landing/ prefix stripped.
func (e *Engine) validateAndStage(ctx context.Context, src specs.Source, objectPath, relPath string) FileResult {
	data, err := e.store.Read(ctx, objectPath)
	if err != nil {
		return FileResult{State: StateFailed, FailureReason: fmt.Sprintf("read source: %v", err)}
	}

	parser, err := selectParser(src)
	if err != nil {
		return FileResult{State: StateFailed, FailureReason: err.Error()}
	}

	rawRows, err := parser.Parse(data)
	if err != nil {
		return FileResult{State: StateParseError, FailureReason: fmt.Sprintf("parse error: %v", err)}
	}

	expected := -1

	if src.ControlFile != nil {
		n, remaining, err := controlFileCount(ctx, e.store, src, relPath, rawRows)
		if err != nil {
			return FileResult{State: StateFailed, FailureReason: fmt.Sprintf("control file: %v", err)}
		}

		rawRows = remaining
		expected = n
	}

	now := e.clk.Now()
	accepted, quarantined := e.runRows(src, rawRows, now)

	if expected >= 0 && len(accepted) != expected {
		return FileResult{
			State:            StateRowCountMismatch,
			ExpectedRowCount: expected,
			RowCount:         len(accepted),
			QuarantinedRows:  len(quarantined),
			FailureReason:    fmt.Sprintf("Row count mismatch: expected %d, got %d", expected, len(accepted)),
		}
	}

	if expected < 0 {
		expected = len(accepted)
	}

	return e.stage(ctx, relPath, accepted, quarantined, expected, now)
}

// runRows validates every raw row, splitting accepted field-typed rows from
// quarantined row records.
func (e *Engine) runRows(src specs.Source, rawRows []parsers.RawRow, now time.Time) ([]parsers.Row, []QuarantinedRow) {
	accepted := make([]parsers.Row, 0, len(rawRows))

	var quarantined []QuarantinedRow

	for _, raw := range rawRows {
		row, reason := validateRow(src, raw, now, e.logger)
		if reason != "" {
			quarantined = append(quarantined, QuarantinedRow{
				RowNumber:     raw.Number,
				RawContent:    string(raw.Raw),
				FailureReason: reason,
			})

			continue
		}

		accepted = append(accepted, row)
	}

	return accepted, quarantined
}

// stage encodes and uploads the staging artifact, verifies it, deletes the
// source object, and writes any quarantine JSONL.
func (e *Engine) stage(
	ctx context.Context,
	relPath string,
	accepted []parsers.Row,
	quarantined []QuarantinedRow,
	expected int,
	now time.Time,
) FileResult {
	artifact, err := EncodeArtifact(accepted)
	if err != nil {
		return FileResult{
			State:            StateStagingWriteFailed,
			RowCount:         len(accepted),
			ExpectedRowCount: expected,
			QuarantinedRows:  len(quarantined),
			FailureReason:    fmt.Sprintf("encode artifact: %v", err),
		}
	}

	outputPath := stagingPath(relPath, now)

	if err := e.store.Write(ctx, outputPath, artifact); err != nil {
		return FileResult{
			State:            StateStagingWriteFailed,
			RowCount:         len(accepted),
			ExpectedRowCount: expected,
			QuarantinedRows:  len(quarantined),
			FailureReason:    fmt.Sprintf("write staging artifact: %v", err),
		}
	}

	info, err := e.store.Stat(ctx, outputPath)
	if err != nil || info.Size == 0 {
		return FileResult{
			State:            StateStagingWriteFailed,
			RowCount:         len(accepted),
			ExpectedRowCount: expected,
			QuarantinedRows:  len(quarantined),
			OutputPath:       outputPath,
			FailureReason:    "staging artifact verification failed: object missing or empty",
		}
	}

	if len(accepted) > 0 && info.Size/int64(len(accepted)) < minBytesPerRow {
		e.logger.Warn("staging artifact bytes-per-row below heuristic threshold",
			slog.String("path", outputPath), slog.Int64("bytes", info.Size), slog.Int("rows", len(accepted)))
	}

	if err := e.store.Delete(ctx, landingPrefix+relPath); err != nil {
		e.logger.Error("failed to delete source object after staging", slog.String("path", relPath), slog.Any("error", err))
	}

	if len(quarantined) > 0 {
		e.writeQuarantine(ctx, relPath, quarantined)
	}

	return FileResult{
		State:            StateStaged,
		RowCount:         len(accepted),
		ExpectedRowCount: expected,
		QuarantinedRows:  len(quarantined),
		OutputPath:       outputPath,
	}
}

func (e *Engine) writeQuarantine(ctx context.Context, relPath string, rows []QuarantinedRow) {
	data, err := encodeQuarantineJSONL(rows)
	if err != nil {
		e.logger.Error("failed to encode quarantine jsonl", slog.String("path", relPath), slog.Any("error", err))

		return
	}

	if err := e.store.Write(ctx, quarantinePath(relPath, e.clk.Now()), data); err != nil {
		e.logger.Error("failed to write quarantine jsonl", slog.String("path", relPath), slog.Any("error", err))
	}
}
