package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// reservedColumnPrefix marks internal bookkeeping columns (_load_id, _extra)
// that DescribeTable never surfaces to schema-drift callers.
const reservedColumnPrefix = "_"

// logicalToPostgres maps the loader's logical field type vocabulary to
// Postgres column types.
var logicalToPostgres = map[string]string{
	"STRING":    "TEXT",
	"INT64":     "BIGINT",
	"FLOAT64":   "DOUBLE PRECISION",
	"NUMERIC":   "NUMERIC",
	"BOOL":      "BOOLEAN",
	"TIMESTAMP": "TIMESTAMPTZ",
	"DATE":      "DATE",
	"TIME":      "TIME",
	"DATETIME":  "TIMESTAMP",
	"BYTES":     "BYTEA",
	"JSON":      "JSONB",
}

// Postgres is a Warehouse implementation over a Postgres-family database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against dsn.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse: open postgres: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("warehouse: close: %w", err)
	}

	return nil
}

func (p *Postgres) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("warehouse: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("warehouse: columns: %w", err)
	}

	var result []Row

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))

		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("warehouse: scan: %w", err)
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse: rows: %w", err)
	}

	return result, nil
}

func (p *Postgres) BulkAppend(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	cols := sortedColumnNames(rows)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("warehouse: bulk append %q: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, cols...))
	if err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("warehouse: bulk append %q: %w", table, err)
	}

	for _, row := range rows {
		values := make([]any, len(cols))
		for i, c := range cols {
			values[i] = row[c]
		}

		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()

			return fmt.Errorf("warehouse: bulk append %q: %w", table, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		_ = tx.Rollback()

		return fmt.Errorf("warehouse: bulk append %q: %w", table, err)
	}

	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("warehouse: bulk append %q: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("warehouse: bulk append %q: %w", table, err)
	}

	return nil
}

func sortedColumnNames(rows []Row) []string {
	seen := make(map[string]struct{})

	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}

	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}

	sort.Strings(cols)

	return cols
}

func (p *Postgres) DescribeTable(ctx context.Context, table string) ([]Column, error) {
	schema, name := splitTableName(table)

	const q = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := p.db.QueryContext(ctx, q, schema, name)
	if err != nil {
		return nil, fmt.Errorf("warehouse: describe %q: %w", table, err)
	}
	defer rows.Close()

	var cols []Column

	for rows.Next() {
		var colName, dataType string
		if err := rows.Scan(&colName, &dataType); err != nil {
			return nil, fmt.Errorf("warehouse: describe %q: %w", table, err)
		}

		if strings.HasPrefix(colName, reservedColumnPrefix) {
			continue
		}

		cols = append(cols, Column{Name: colName, Type: dataType})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse: describe %q: %w", table, err)
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("warehouse: describe %q: %w", table, ErrTableNotFound)
	}

	return cols, nil
}

func (p *Postgres) CreateTable(ctx context.Context, table string, columns []Column) error {
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		defs = append(defs, fmt.Sprintf("%s %s", pq.QuoteIdentifier(c.Name), pgType(c.Type)))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteTableName(table), strings.Join(defs, ", "))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("warehouse: create table %q: %w", table, err)
	}

	return nil
}

func (p *Postgres) AddColumns(ctx context.Context, table string, columns []Column) error {
	if len(columns) == 0 {
		return nil
	}

	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		defs = append(defs, fmt.Sprintf("ADD COLUMN IF NOT EXISTS %s %s", pq.QuoteIdentifier(c.Name), pgType(c.Type)))
	}

	stmt := fmt.Sprintf("ALTER TABLE %s %s", quoteTableName(table), strings.Join(defs, ", "))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("warehouse: add columns %q: %w", table, err)
	}

	return nil
}

func (p *Postgres) InsertAudit(ctx context.Context, table string, row Row) error {
	cols := sortedColumnNames([]Row{row})

	placeholders := make([]string, len(cols))
	values := make([]any, len(cols))
	quoted := make([]string, len(cols))

	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		values[i] = row[c]
		quoted[i] = pq.QuoteIdentifier(c)
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteTableName(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
	)

	if _, err := p.db.ExecContext(ctx, stmt, values...); err != nil {
		return fmt.Errorf("warehouse: insert audit %q: %w", table, err)
	}

	return nil
}

func pgType(logical string) string {
	if t, ok := logicalToPostgres[strings.ToUpper(logical)]; ok {
		return t
	}

	return "TEXT"
}

func quoteTableName(table string) string {
	schema, name := splitTableName(table)
	if schema == "public" && !strings.Contains(table, ".") {
		return pq.QuoteIdentifier(name)
	}

	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
}

func splitTableName(table string) (schema, name string) {
	if idx := strings.IndexByte(table, '.'); idx >= 0 {
		return table[:idx], table[idx+1:]
	}

	return "public", table
}
