package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// HealthMarker is the JSON document written to _health/latest.json and
// _health/runs/<run_id>.json after every orchestrator run.
type HealthMarker struct {
	RunID                 string    `json:"run_id"`
	Timestamp             time.Time `json:"timestamp"`
	Success               bool      `json:"success"`
	FilesValidated        int       `json:"files_validated"`
	FilesFailed           int       `json:"files_failed"`
	TransformationSuccess bool      `json:"transformation_success"`
	Archived              int       `json:"archived"`
	ExtractRan            bool      `json:"extract_ran"`
}

func buildHealthMarker(result *RunResult, now time.Time) HealthMarker {
	failed := 0

	if result.Validation != nil {
		for _, r := range result.Validation.Results {
			if !r.Passed() {
				failed++
			}
		}
	}

	total := 0
	if result.Validation != nil {
		total = len(result.Validation.Results)
	}

	return HealthMarker{
		RunID:                 result.RunID,
		Timestamp:             now,
		Success:               result.Success,
		FilesValidated:        total - failed,
		FilesFailed:           failed,
		TransformationSuccess: result.Transformation.Success,
		Archived:              result.Archived,
		ExtractRan:            result.ExtractRan,
	}
}

func (o *Orchestrator) writeHealth(ctx context.Context, result *RunResult) {
	marker := buildHealthMarker(result, o.clk.Now())

	data, err := json.Marshal(marker)
	if err != nil {
		o.logger.Error("failed to encode health marker", slog.Any("error", err))

		return
	}

	if err := o.store.Write(ctx, "_health/latest.json", data); err != nil {
		o.logger.Error("failed to write latest health marker", slog.Any("error", err))
	}

	runPath := fmt.Sprintf("_health/runs/%s.json", result.RunID)
	if err := o.store.Write(ctx, runPath, data); err != nil {
		o.logger.Error("failed to write run health marker", slog.Any("error", err))
	}
}
