// Package validation implements the file validation engine: it matches
// landed objects against the declarative source spec registry, parses and
// validates rows, writes accepted rows as a columnar staging artifact with
// verified-write-then-delete semantics, and quarantines bad rows without
// failing the whole file.
package validation

import "time"

// FileState is a landed object's position in the per-file state machine.
// This package drives a file from Landed through Staged (or a terminal
// Failed); archival to the Archived state belongs to the batch orchestrator.
type FileState string

const (
	StateMatched            FileState = "matched"
	StateUnmatched          FileState = "unmatched"
	StateParsed             FileState = "parsed"
	StateParseError         FileState = "parse_error"
	StateValidated          FileState = "validated"
	StateRowCountMismatch   FileState = "row_count_mismatch"
	StateStaged             FileState = "staged"
	StateStagingWriteFailed FileState = "staging_write_failed"
	StateFailed             FileState = "failed"
)

// QuarantinedRow is one row rejected by the per-row validation pipeline,
// recorded alongside otherwise-accepted rows from the same file as
// {row_number, raw_content, failure_reason}.
type QuarantinedRow struct {
	RowNumber     int    `json:"row_number"`
	RawContent    string `json:"raw_content"`
	FailureReason string `json:"failure_reason"`
}

// FileResult is the outcome of validating a single landed object.
type FileResult struct {
	SourceName       string
	ObjectPath       string
	State            FileState
	FailureReason    string
	RowCount         int
	ExpectedRowCount int
	QuarantinedRows  int
	OutputPath       string
	FileSizeBytes    int64
	Duration         time.Duration
}

// Passed reports whether the file reached StateStaged.
func (r FileResult) Passed() bool {
	return r.State == StateStaged
}

// Run is the result of one validation engine invocation. Invariant:
// ValidatedOutputPaths contains only staging paths whose artifact existed
// and was non-empty at the moment the source object was deleted.
type Run struct {
	RunID                string
	StartedAt            time.Time
	ValidatedOutputPaths []string
	Results              []FileResult
}

// Failed reports whether any file in the run did not reach StateStaged.
func (r Run) Failed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return true
		}
	}

	return false
}
