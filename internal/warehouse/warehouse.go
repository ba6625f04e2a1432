// Package warehouse abstracts the target data-warehouse engine: running a
// parameterized query, bulk-appending rows to a named table, describing a
// table's columns (for schema-drift detection), and inserting audit rows.
// The warehouse engine itself is an external collaborator; this package
// only defines and implements the narrow contract the core subsystems need.
package warehouse

import (
	"context"
	"errors"
)

// ErrTableNotFound is returned by DescribeTable when the table does not exist.
var ErrTableNotFound = errors.New("warehouse: table not found")

// Column describes a single warehouse column by name and logical type.
type Column struct {
	Name string
	Type string
}

// Row is a single warehouse row, keyed by column name. Values are Go-native
// types (string, int64, float64, bool, time.Time, []byte, nil) — callers
// converting from internal/parsers.Value use Value.Native().
type Row map[string]any

// Warehouse is the contract every backend (Postgres/BigQuery-family) and
// every core subsystem depends on: validation audit rows, orchestrator
// control tables and extract, reporting-cache reference lookups and
// submission audit/dead-letter rows, and the schema-drift loader's table
// loads.
type Warehouse interface {
	// Query runs a parameterized read query and returns the result rows.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// BulkAppend appends rows to table, creating no new columns; callers must
	// ensure rows only reference columns table already has.
	BulkAppend(ctx context.Context, table string, rows []Row) error
	// DescribeTable returns the table's user columns (names starting with
	// "_" are reserved internal columns and are excluded), or ErrTableNotFound.
	DescribeTable(ctx context.Context, table string) ([]Column, error)
	// CreateTable creates table with the given columns. Used for C5's first load.
	CreateTable(ctx context.Context, table string, columns []Column) error
	// AddColumns appends new nullable columns to an existing table. The
	// schema-drift loader never calls this directly — new batch columns are
	// absorbed into `_extra` rather than promoted to real columns, and
	// missing columns are row-level NULL-filled, not added — it exists as a
	// general warehouse capability backends must support.
	AddColumns(ctx context.Context, table string, columns []Column) error
	// InsertAudit appends a single row to a control/audit table. Errors here
	// are never fatal to the calling pipeline; callers log and swallow.
	InsertAudit(ctx context.Context, table string, row Row) error
	// Close releases underlying connections.
	Close() error
}
