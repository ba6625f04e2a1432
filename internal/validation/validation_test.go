package validation_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/objectstore"
	"github.com/meridian-markets/surveillance-platform/internal/specs"
	"github.com/meridian-markets/surveillance-platform/internal/validation"
	"github.com/meridian-markets/surveillance-platform/internal/warehouse"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, reg *specs.Registry) (*validation.Engine, *objectstore.Local, *warehouse.Memory) {
	t.Helper()

	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	wh := warehouse.NewMemory()
	clk := clock.NewFake(time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC))

	return validation.NewEngine(store, wh, reg, clk, testLogger(), 2), store, wh
}

const tradesSpecYAML = `
name: trades
source:
  path_pattern: "trades/*.csv"
  format: csv
schema:
  - name: symbol
    type: STRING
  - name: quantity
    type: INT64
validation:
  row_level:
    - expr: "quantity > 0"
      severity: error
`

func loadRegistry(t *testing.T) *specs.Registry {
	t.Helper()

	dir := t.TempDir()
	writeFile(t, dir+"/trades.yaml", tradesSpecYAML)

	reg, err := specs.Load(dir)
	require.NoError(t, err)

	return reg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestEngineHappyCSVStagesAndRemovesSource(t *testing.T) {
	t.Parallel()

	reg := loadRegistry(t)
	engine, store, _ := newEngine(t, reg)

	csvBody := "symbol,quantity\nAAPL,10\nMSFT,20\nGOOG,30\n"
	require.NoError(t, store.Write(context.Background(), "landing/trades/trades_20240115.csv", []byte(csvBody)))

	run, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, run.Results, 1)

	result := run.Results[0]
	assert.Equal(t, validation.StateStaged, result.State)
	assert.Equal(t, 3, result.RowCount)
	assert.Equal(t, 0, result.QuarantinedRows)
	require.Len(t, run.ValidatedOutputPaths, 1)
	assert.Equal(t, result.OutputPath, run.ValidatedOutputPaths[0])

	// Source object removed from landing.
	_, err = store.Read(context.Background(), "landing/trades/trades_20240115.csv")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)

	// Staging artifact exists and decodes to 3 rows.
	artifact, err := store.Read(context.Background(), result.OutputPath)
	require.NoError(t, err)

	rows, err := validation.DecodeArtifact(artifact)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestEngineQuarantinesFailingRows(t *testing.T) {
	t.Parallel()

	reg := loadRegistry(t)
	engine, store, _ := newEngine(t, reg)

	csvBody := "symbol,quantity\nAAPL,10\nMSFT,0\nGOOG,-5\n"
	require.NoError(t, store.Write(context.Background(), "landing/trades/trades_20240115.csv", []byte(csvBody)))

	run, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, run.Results, 1)

	result := run.Results[0]
	assert.Equal(t, validation.StateStaged, result.State)
	assert.Equal(t, 1, result.RowCount)
	assert.Equal(t, 2, result.QuarantinedRows)
}

const tradesWithTrailerSpecYAML = `
name: trades_trailer
source:
  path_pattern: "trades_trailer/*.csv"
  format: csv
schema:
  - name: symbol
    type: STRING
  - name: quantity
    type: INT64
control_file:
  variant: trailer
  row_count_column: 0
`

func TestEngineControlFileRowCountMismatchFailsBeforeStaging(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir+"/trades_trailer.yaml", tradesWithTrailerSpecYAML)

	reg, err := specs.Load(dir)
	require.NoError(t, err)

	engine, store, _ := newEngine(t, reg)

	// Trailer row declares 5 rows but only 2 data rows follow.
	csvBody := "symbol,quantity\nAAPL,10\nMSFT,20\n5,0\n"
	require.NoError(t, store.Write(context.Background(), "landing/trades_trailer/t.csv", []byte(csvBody)))

	run, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, run.Results, 1)

	result := run.Results[0]
	assert.Equal(t, validation.StateRowCountMismatch, result.State)
	assert.Equal(t, 5, result.ExpectedRowCount)
	assert.Equal(t, 2, result.RowCount)
	assert.Contains(t, result.FailureReason, "Row count mismatch")

	// Source object moved to failed/ with a companion error note.
	infos, err := store.List(context.Background(), "failed/")
	require.NoError(t, err)
	assert.NotEmpty(t, infos)
}

func TestEngineUnmatchedObjectMovesToFailed(t *testing.T) {
	t.Parallel()

	reg := specs.NewRegistry()
	engine, store, _ := newEngine(t, reg)

	require.NoError(t, store.Write(context.Background(), "landing/unknown/data.csv", []byte("a,b\n1,2\n")))

	run, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, run.Results, 1)

	result := run.Results[0]
	assert.Equal(t, validation.StateUnmatched, result.State)
	assert.Equal(t, "no matching spec", result.FailureReason)

	infos, err := store.List(context.Background(), "failed/")
	require.NoError(t, err)
	assert.NotEmpty(t, infos)
}
