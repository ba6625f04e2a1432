// Package orchestrator implements the batch pipeline coordinator: a
// hermetic per-run sequence of validation, transformation, archival, and an
// optional extract, preserving the invariant that a staging artifact is
// archived only if it was validated in the very same run.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/objectstore"
	"github.com/meridian-markets/surveillance-platform/internal/validation"
	"github.com/meridian-markets/surveillance-platform/internal/warehouse"
)

const dbtRunsTable = "control.dbt_runs"

// Config bundles the tunables that vary a batch run beyond its
// collaborators.
type Config struct {
	Extract ExtractConfig
}

// RunResult is the outcome of a single Orchestrator.Run invocation.
type RunResult struct {
	RunID          string
	Validation     *validation.Run
	Transformation TransformationResult
	Archived       int
	ExtractRan     bool
	Success        bool
}

// Orchestrator sequences file validation, a transformation runner,
// archival, and the optional extract generator, single-threaded per run.
type Orchestrator struct {
	engine   *validation.Engine
	runner   TransformationRunner
	archiver *Archiver
	store    objectstore.ObjectStore
	wh       warehouse.Warehouse
	clk      clock.Clock
	logger   *slog.Logger
	cfg      Config
}

// New builds an Orchestrator from its phase collaborators.
func New(
	engine *validation.Engine,
	runner TransformationRunner,
	store objectstore.ObjectStore,
	wh warehouse.Warehouse,
	clk clock.Clock,
	logger *slog.Logger,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		engine:   engine,
		runner:   runner,
		archiver: NewArchiver(store, clk),
		store:    store,
		wh:       wh,
		clk:      clk,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run executes one full batch cycle: validate, transform, archive, and
// (conditionally) extract, then writes health markers. Overall success
// requires both no file validation failures and no transformation errors;
// a transformation failure never skips archival.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{RunID: uuid.NewString()}

	vr, err := o.engine.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: validation: %w", err)
	}

	result.Validation = vr

	tr, err := o.runner.Run(ctx)
	if err != nil {
		o.logger.Error("transformation runner failed", slog.Any("error", err))

		tr = TransformationResult{InvocationID: uuid.NewString(), Success: false}
	}

	result.Transformation = tr
	o.recordDbtRuns(ctx, tr)

	archived, err := o.archiver.Archive(ctx, archiveItems(vr), o.logger)
	if err != nil {
		o.logger.Error("archival failed", slog.Any("error", err))
	}

	result.Archived = archived

	if o.cfg.Extract.Hour >= 0 && o.clk.Now().Hour() == o.cfg.Extract.Hour {
		if err := o.runExtract(ctx); err != nil {
			o.logger.Error("extract failed", slog.Any("error", err))
		} else {
			result.ExtractRan = true
		}
	}

	result.Success = !vr.Failed() && tr.Success

	o.writeHealth(ctx, result)

	return result, nil
}

// archiveItems pairs each staged artifact produced by this run with the
// landing path of its source object, so the archive destination carries
// the original filename rather than the staging artifact's timestamped
// name.
func archiveItems(vr *validation.Run) []ArchiveItem {
	items := make([]ArchiveItem, 0, len(vr.Results))

	for _, r := range vr.Results {
		if r.Passed() {
			items = append(items, ArchiveItem{StagingPath: r.OutputPath, LandingPath: r.ObjectPath})
		}
	}

	return items
}

func (o *Orchestrator) recordDbtRuns(ctx context.Context, tr TransformationResult) {
	for _, m := range tr.Models {
		row := warehouse.Row{
			"run_id":                 uuid.NewString(),
			"run_timestamp":          o.clk.Now(),
			"invocation_id":          tr.InvocationID,
			"model_name":             m.ModelName,
			"status":                 m.Status,
			"rows_affected":          m.RowsAffected,
			"execution_time_seconds": m.ExecutionTimeSeconds,
			"bytes_processed":        m.BytesProcessed,
			"error_message":          m.ErrorMessage,
		}

		if err := o.wh.InsertAudit(ctx, dbtRunsTable, row); err != nil {
			o.logger.Error("failed to record dbt run audit row",
				slog.String("model", m.ModelName), slog.Any("error", err))
		}
	}
}
