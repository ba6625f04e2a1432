// Package loader implements the schema-drift warehouse loader: it applies a
// columnar batch to a target table, creating the table on first sight and,
// on every later load, absorbing columns the table doesn't yet know about
// into a reserved `_extra` JSON sidecar rather than migrating the schema.
package loader

import "time"

// LoadResult is the traceability record for a single Load call, persisted
// to the load_metadata table.
type LoadResult struct {
	LoadID      string
	Filename    string
	TableName   string
	RowCount    int
	StartedAt   time.Time
	CompletedAt time.Time
}
