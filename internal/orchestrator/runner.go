package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ModelResult is one model's outcome from a transformation run.
type ModelResult struct {
	ModelName            string
	Status               string // success | pass | error
	RowsAffected         int
	ExecutionTimeSeconds float64
	BytesProcessed       int64
	ErrorMessage         string
}

// TransformationResult is the outcome of one TransformationRunner.Run call.
type TransformationResult struct {
	InvocationID string
	Models       []ModelResult
	Success      bool
}

// TransformationRunner drives the external transformation tool: a dbt-style
// subprocess this package only needs to invoke and parse the results of.
type TransformationRunner interface {
	Run(ctx context.Context) (TransformationResult, error)
}

// runResultsFile mirrors the subset of dbt's target/run_results.json this
// runner parses.
type runResultsFile struct {
	Results []runResultEntry `json:"results"`
}

type runResultEntry struct {
	UniqueID        string  `json:"unique_id"`
	Status          string  `json:"status"`
	ExecutionTime   float64 `json:"execution_time"`
	Message         string  `json:"message"`
	AdapterResponse struct {
		RowsAffected   int   `json:"rows_affected"`
		BytesProcessed int64 `json:"bytes_processed"`
	} `json:"adapter_response"`
}

const (
	defaultTransformationTimeout = 3600 * time.Second
	maxTailBytes                 = 2000
	defaultRunResultsPath        = "target/run_results.json"
)

// SubprocessTransformationRunner invokes an external command (e.g.
// `dbt build`) and parses its run_results.json, bounded by a hard timeout
// and a bounded tail capture of stdout/stderr.
type SubprocessTransformationRunner struct {
	Command        []string
	WorkDir        string
	Timeout        time.Duration
	RunResultsPath string // relative to WorkDir; defaults to target/run_results.json
}

func (r SubprocessTransformationRunner) Run(ctx context.Context) (TransformationResult, error) {
	invocationID := uuid.NewString()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTransformationTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Command[0], r.Command[1:]...)
	cmd.Dir = r.WorkDir

	stdout := newTailBuffer(maxTailBytes)
	stderr := newTailBuffer(maxTailBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	models, parseErr := r.parseResults()
	if parseErr != nil {
		return TransformationResult{InvocationID: invocationID, Success: false},
			fmt.Errorf("orchestrator: parse run results: %w (stderr tail: %s)", parseErr, stderr.String())
	}

	if runErr != nil && len(models) == 0 {
		return TransformationResult{InvocationID: invocationID, Success: false},
			fmt.Errorf("orchestrator: transformation command failed: %w (stderr tail: %s)", runErr, stderr.String())
	}

	success := runErr == nil
	for _, m := range models {
		if m.Status == "error" {
			success = false
		}
	}

	_ = stdout.String() // captured for future log enrichment, not currently surfaced

	return TransformationResult{InvocationID: invocationID, Models: models, Success: success}, nil
}

func (r SubprocessTransformationRunner) parseResults() ([]ModelResult, error) {
	path := r.RunResultsPath
	if path == "" {
		path = defaultRunResultsPath
	}

	data, err := os.ReadFile(filepath.Join(r.WorkDir, path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var parsed runResultsFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	models := make([]ModelResult, 0, len(parsed.Results))
	for _, entry := range parsed.Results {
		models = append(models, ModelResult{
			ModelName:            entry.UniqueID,
			Status:               entry.Status,
			RowsAffected:         entry.AdapterResponse.RowsAffected,
			ExecutionTimeSeconds: entry.ExecutionTime,
			BytesProcessed:       entry.AdapterResponse.BytesProcessed,
			ErrorMessage:         entry.Message,
		})
	}

	return models, nil
}
