package objectstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-markets/surveillance-platform/internal/objectstore"
)

func TestLocalWriteReadStatDelete(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, "landing/trades/trades.csv", []byte("a,b\n1,2\n")))

	data, err := store.Read(ctx, "landing/trades/trades.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	info, err := store.Stat(ctx, "landing/trades/trades.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)

	require.NoError(t, store.Delete(ctx, "landing/trades/trades.csv"))

	_, err = store.Read(ctx, "landing/trades/trades.csv")
	assert.True(t, errors.Is(err, objectstore.ErrNotFound))
}

func TestLocalMovePreservesContentAndDeletesSource(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, "staging/trades/t_1.jsonl.gz", []byte("payload")))
	require.NoError(t, store.Move(ctx, "staging/trades/t_1.jsonl.gz", "archive/2026-07-31/0900/trades/t_1.jsonl.gz"))

	_, err = store.Stat(ctx, "staging/trades/t_1.jsonl.gz")
	assert.True(t, errors.Is(err, objectstore.ErrNotFound))

	data, err := store.Read(ctx, "archive/2026-07-31/0900/trades/t_1.jsonl.gz")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestLocalDeleteMissingIsIdempotent(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), "nowhere"))
}

func TestLocalListFiltersByPrefix(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, "landing/trades/a.csv", []byte("x")))
	require.NoError(t, store.Write(ctx, "landing/other/b.csv", []byte("y")))

	infos, err := store.List(ctx, "landing/trades")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "landing/trades/a.csv", infos[0].Path)
}
