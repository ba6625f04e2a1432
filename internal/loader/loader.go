package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/warehouse"
)

const loadMetadataTable = "load_metadata"

const (
	reservedLoadID = "_load_id"
	reservedExtra  = "_extra"
)

// Loader applies columnar batches to warehouse tables: describing the
// target table's existing columns, diffing them against the batch's
// declared schema, and recording one load_metadata row per call.
type Loader struct {
	wh     warehouse.Warehouse
	clk    clock.Clock
	logger *slog.Logger
}

// New builds a Loader backed by wh.
func New(wh warehouse.Warehouse, clk clock.Clock, logger *slog.Logger) *Loader {
	return &Loader{wh: wh, clk: clk, logger: logger}
}

// Load applies rows (keyed by column name, Go-native values) to table.
// schema declares every column this batch may carry and its warehouse
// type. On first load it creates the table alongside the reserved
// _load_id/_extra columns; on later loads it is compared with the table's
// columns to find new columns (moved into _extra) and missing ones
// (NULL-filled). Every row is tagged with a single
// load_id; exactly one load_metadata row is recorded per call.
func (l *Loader) Load(
	ctx context.Context,
	table, filename string,
	schema []warehouse.Column,
	rows []warehouse.Row,
) (LoadResult, error) {
	loadID := uuid.NewString()
	startedAt := l.clk.Now()

	batchCols := make([]string, len(schema))
	for i, c := range schema {
		batchCols[i] = c.Name
	}

	existing, err := l.wh.DescribeTable(ctx, table)

	var prepared []warehouse.Row

	switch {
	case errors.Is(err, warehouse.ErrTableNotFound):
		full := append(append([]warehouse.Column(nil), schema...), reservedColumns()...)
		if err := l.wh.CreateTable(ctx, table, full); err != nil {
			return LoadResult{}, fmt.Errorf("loader: create table %q: %w", table, err)
		}

		prepared, err = l.project(rows, batchCols, nil, nil, loadID)
	case err != nil:
		return LoadResult{}, fmt.Errorf("loader: describe table %q: %w", table, err)
	default:
		_, newCols, missing := columnSets(schema, existing)
		prepared, err = l.project(rows, batchCols, newCols, missing, loadID)
	}

	if err != nil {
		return LoadResult{}, fmt.Errorf("loader: project rows: %w", err)
	}

	if err := l.wh.BulkAppend(ctx, table, prepared); err != nil {
		return LoadResult{}, fmt.Errorf("loader: bulk append %q: %w", table, err)
	}

	result := LoadResult{
		LoadID:      loadID,
		Filename:    filename,
		TableName:   table,
		RowCount:    len(prepared),
		StartedAt:   startedAt,
		CompletedAt: l.clk.Now(),
	}

	l.recordMetadata(ctx, result)

	return result, nil
}

// columnSets partitions a batch's declared columns against a table's
// existing (user) columns: known = batch ∩ existing, new = batch \
// existing, missing = existing \ batch.
func columnSets(schema []warehouse.Column, existing []warehouse.Column) (known, newCols, missing map[string]bool) {
	batch := make(map[string]bool, len(schema))
	for _, c := range schema {
		batch[c.Name] = true
	}

	existingSet := make(map[string]bool, len(existing))
	for _, c := range existing {
		existingSet[c.Name] = true
	}

	known = make(map[string]bool)
	newCols = make(map[string]bool)

	for name := range batch {
		if existingSet[name] {
			known[name] = true
		} else {
			newCols[name] = true
		}
	}

	missing = make(map[string]bool)

	for name := range existingSet {
		if !batch[name] {
			missing[name] = true
		}
	}

	return known, newCols, missing
}

// project builds the columnar rows actually sent to BulkAppend: new-column
// values are pulled into a single _extra JSON object per row and dropped
// from the projection; missing-column values are NULL-filled (the table
// already has the column; only this batch lacks it); every row is tagged
// with loadID.
func (l *Loader) project(
	rows []warehouse.Row,
	batchCols []string,
	newCols, missingCols map[string]bool,
	loadID string,
) ([]warehouse.Row, error) {
	prepared := make([]warehouse.Row, 0, len(rows))

	for _, row := range rows {
		out := make(warehouse.Row, len(batchCols)+2)
		extra := make(map[string]any)

		for _, col := range batchCols {
			val := row[col]

			if newCols[col] {
				if val != nil {
					extra[col] = val
				}

				continue
			}

			out[col] = val
		}

		for col := range missingCols {
			out[col] = nil
		}

		out[reservedLoadID] = loadID

		if len(extra) == 0 {
			out[reservedExtra] = nil
		} else {
			data, err := json.Marshal(extra)
			if err != nil {
				return nil, fmt.Errorf("loader: marshal _extra: %w", err)
			}

			out[reservedExtra] = string(data)
		}

		prepared = append(prepared, out)
	}

	return prepared, nil
}

func reservedColumns() []warehouse.Column {
	return []warehouse.Column{
		{Name: reservedLoadID, Type: "STRING"},
		{Name: reservedExtra, Type: "STRING"},
	}
}

func (l *Loader) recordMetadata(ctx context.Context, r LoadResult) {
	row := warehouse.Row{
		"load_id":      r.LoadID,
		"filename":     r.Filename,
		"table_name":   r.TableName,
		"row_count":    r.RowCount,
		"started_at":   r.StartedAt,
		"completed_at": r.CompletedAt,
	}

	if err := l.wh.InsertAudit(ctx, loadMetadataTable, row); err != nil {
		l.logger.Error("failed to record load metadata",
			slog.String("table", r.TableName), slog.Any("error", err))
	}
}
