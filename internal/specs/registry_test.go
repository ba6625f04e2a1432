package specs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-markets/surveillance-platform/internal/specs"
)

const tradesSpec = `
name: trades
source:
  path_pattern: "trades/*.csv"
  format: csv
schema:
  - name: symbol
    type: STRING
  - name: quantity
    type: INT64
    min_value: 0
validation:
  row_level:
    - expr: "quantity > 0"
      severity: error
`

func TestLoadAndMatchFirstWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trades.yaml"), []byte(tradesSpec), 0o644))

	reg, err := specs.Load(dir)
	require.NoError(t, err)
	require.Len(t, reg.All(), 1)

	src, err := reg.Match("trades/trades_20240115.csv")
	require.NoError(t, err)
	assert.Equal(t, "trades", src.Name)

	field, ok := src.FieldByName("quantity")
	require.True(t, ok)
	assert.True(t, field.Nullable())
	require.NotNil(t, field.MinValue)
	assert.InDelta(t, 0, *field.MinValue, 0)
}

func TestMatchNoSpecReturnsErrNoMatch(t *testing.T) {
	t.Parallel()

	reg := specs.NewRegistry()

	_, err := reg.Match("unknown/file.csv")
	require.ErrorIs(t, err, specs.ErrNoMatch)
}

func TestFieldNullableDefaultsTrue(t *testing.T) {
	t.Parallel()

	f := specs.Field{Name: "x", Type: "STRING"}
	assert.True(t, f.Nullable())

	no := false
	f.NullableRaw = &no
	assert.False(t, f.Nullable())
}
