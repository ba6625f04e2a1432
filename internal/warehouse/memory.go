package warehouse

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Memory is an in-process Warehouse fake used by unit tests across C1-C5;
// it never touches a real database. QueryFunc lets tests script read-query
// responses (cache refresh, reference lookups) without a fake SQL parser.
type Memory struct {
	mu        sync.Mutex
	tables    map[string][]Column
	rows      map[string][]Row
	QueryFunc func(ctx context.Context, query string, args ...any) ([]Row, error)
}

// NewMemory returns an empty in-memory Warehouse.
func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string][]Column),
		rows:   make(map[string][]Row),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, query, args...)
	}

	return nil, nil
}

func (m *Memory) BulkAppend(_ context.Context, table string, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows[table] = append(m.rows[table], rows...)

	return nil
}

func (m *Memory) DescribeTable(_ context.Context, table string) ([]Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cols, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("warehouse: describe %q: %w", table, ErrTableNotFound)
	}

	visible := make([]Column, 0, len(cols))

	for _, c := range cols {
		if !strings.HasPrefix(c.Name, reservedColumnPrefix) {
			visible = append(visible, c)
		}
	}

	return visible, nil
}

func (m *Memory) CreateTable(_ context.Context, table string, columns []Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tables[table] = append([]Column(nil), columns...)

	return nil
}

func (m *Memory) AddColumns(_ context.Context, table string, columns []Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tables[table] = append(m.tables[table], columns...)

	return nil
}

func (m *Memory) InsertAudit(_ context.Context, table string, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows[table] = append(m.rows[table], row)

	return nil
}

// Rows returns a copy of every row appended to table, for test assertions.
func (m *Memory) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Row(nil), m.rows[table]...)
}

// Columns returns a copy of table's full column list, including reserved
// ("_"-prefixed) columns — unlike DescribeTable, which filters them out.
func (m *Memory) Columns(table string) []Column {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Column(nil), m.tables[table]...)
}
