package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/objectstore"
	"github.com/meridian-markets/surveillance-platform/internal/specs"
	"github.com/meridian-markets/surveillance-platform/internal/warehouse"
)

// validationRunsTable is the control audit table the engine appends one row
// to per processed file.
const validationRunsTable = "control.validation_runs"

// Engine is the file validation engine. Files are processed by a bounded
// worker pool: each worker owns one file end-to-end and appends its result
// (and, if staged, its output path) to the shared Run under a mutex.
type Engine struct {
	store    objectstore.ObjectStore
	wh       warehouse.Warehouse
	registry *specs.Registry
	clk      clock.Clock
	logger   *slog.Logger
	workers  int
}

// NewEngine constructs a validation engine. workers bounds the parallel
// file worker pool (default 1).
func NewEngine(store objectstore.ObjectStore, wh warehouse.Warehouse, registry *specs.Registry, clk clock.Clock, logger *slog.Logger, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}

	return &Engine{store: store, wh: wh, registry: registry, clk: clk, logger: logger, workers: workers}
}

// Run lists every object under the landing bucket and validates each one,
// returning a Run describing every file's outcome and the set of
// successfully staged artifact paths.
func (e *Engine) Run(ctx context.Context) (*Run, error) {
	run := &Run{RunID: uuid.NewString(), StartedAt: e.clk.Now()}

	objects, err := e.store.List(ctx, landingPrefix)
	if err != nil {
		return nil, fmt.Errorf("validation: list landing: %w", err)
	}

	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.workers)

	for _, obj := range objects {
		obj := obj

		group.Go(func() error {
			result := e.processFile(gctx, obj)

			mu.Lock()
			run.Results = append(run.Results, result)

			if result.Passed() {
				run.ValidatedOutputPaths = append(run.ValidatedOutputPaths, result.OutputPath)
			}
			mu.Unlock()

			e.recordAudit(ctx, run.RunID, result)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return run, err
	}

	return run, nil
}

// recordAudit appends a control.validation_runs row. Errors here are
// logged and swallowed; they must never fail the run.
func (e *Engine) recordAudit(ctx context.Context, runID string, r FileResult) {
	row := warehouse.Row{
		"run_id":             runID,
		"run_timestamp":      e.clk.Now(),
		"source_name":        r.SourceName,
		"file_path":          r.ObjectPath,
		"file_size_bytes":    r.FileSizeBytes,
		"row_count":          r.RowCount,
		"expected_row_count": r.ExpectedRowCount,
		"passed":             r.Passed(),
		"failure_reason":     r.FailureReason,
		"quarantined_rows":   r.QuarantinedRows,
		"output_path":        r.OutputPath,
		"duration_seconds":   r.Duration.Seconds(),
	}

	if err := e.wh.InsertAudit(ctx, validationRunsTable, row); err != nil {
		e.logger.Error("failed to record validation run audit row",
			slog.String("run_id", runID), slog.String("file_path", r.ObjectPath), slog.Any("error", err))
	}
}

// processFile runs one landed object through the full validation pipeline.
// It never returns an error: every failure mode is captured in the returned
// FileResult, and failure handling (copy to failed/ + error note) happens
// inline.
func (e *Engine) processFile(ctx context.Context, obj objectstore.ObjectInfo) FileResult {
	started := e.clk.Now()
	relPath := relativePath(obj.Path)

	result := FileResult{ObjectPath: obj.Path, FileSizeBytes: obj.Size}

	src, err := e.registry.Match(relPath)
	if err != nil {
		result.State = StateUnmatched
		result.FailureReason = "no matching spec"
		e.fail(ctx, obj.Path, relPath, result.FailureReason)
		result.Duration = e.clk.Since(started)

		return result
	}

	result.SourceName = src.Name

	outcome := e.validateAndStage(ctx, src, obj.Path, relPath)
	outcome.SourceName = src.Name
	outcome.ObjectPath = obj.Path
	outcome.FileSizeBytes = obj.Size
	outcome.Duration = e.clk.Since(started)

	if outcome.State != StateStaged {
		e.fail(ctx, obj.Path, relPath, outcome.FailureReason)
	}

	return outcome
}

func (e *Engine) fail(ctx context.Context, objectPath, relPath, reason string) {
	now := e.clk.Now()
	dst := failedPath(relPath, now)

	data, err := e.store.Read(ctx, objectPath)
	if err != nil {
		e.logger.Error("failed to read source object for failure handling",
			slog.String("object", objectPath), slog.Any("error", err))

		return
	}

	if err := e.store.Write(ctx, dst, data); err != nil {
		e.logger.Error("failed to copy source object to failed bucket; retaining source",
			slog.String("object", objectPath), slog.Any("error", err))

		return
	}

	if err := e.store.Write(ctx, errorNotePath(dst), []byte(reason)); err != nil {
		e.logger.Error("failed to write error note", slog.String("object", objectPath), slog.Any("error", err))
	}

	if err := e.store.Delete(ctx, objectPath); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		e.logger.Error("failed to delete source object after copying to failed bucket",
			slog.String("object", objectPath), slog.Any("error", err))
	}
}
