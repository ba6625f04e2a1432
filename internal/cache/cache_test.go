package cache

import (
	"context"
	"log/slog"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/warehouse"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefreshPopulatesSnapshot(t *testing.T) {
	wh := warehouse.NewMemory()
	wh.QueryFunc = func(_ context.Context, query string, args ...any) ([]warehouse.Row, error) {
		switch query {
		case "SELECT id, name, desk FROM traders":
			return []warehouse.Row{{"id": "T1", "name": "Alice", "desk": "rates"}}, nil
		case "SELECT id, name, lei FROM counterparties":
			return []warehouse.Row{{"id": "C1", "name": "Acme", "lei": "LEI1"}}, nil
		case "SELECT id, symbol, asset_class FROM instruments":
			return []warehouse.Row{{"id": "I1", "symbol": "AAPL", "asset_class": "equity"}}, nil
		case "SELECT id, name, desk FROM books":
			return []warehouse.Row{{"id": "B1", "name": "Book1", "desk": "rates"}}, nil
		}

		return nil, nil
	}

	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := New(wh, clk, testLogger(), Config{})

	status, err := c.Refresh(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "refreshed", status)

	trader, ok := c.Trader(context.Background(), "T1")
	require.True(t, ok)
	require.Equal(t, "Alice", trader.Name)

	cp, ok := c.CounterpartyByID(context.Background(), "C1")
	require.True(t, ok)
	require.Equal(t, "Acme", cp.Name)

	byName, ok := c.CounterpartyByName(context.Background(), "Acme")
	require.True(t, ok)
	require.Equal(t, "C1", byName.ID)
}

func TestConcurrentNonForcedRefreshSkips(t *testing.T) {
	wh := warehouse.NewMemory()
	release := make(chan struct{})

	wh.QueryFunc = func(_ context.Context, query string, _ ...any) ([]warehouse.Row, error) {
		if query == "SELECT id, name, desk FROM traders" {
			<-release
		}

		return nil, nil
	}

	clk := clock.NewFake(time.Now())
	c := New(wh, clk, testLogger(), Config{})

	done := make(chan string, 1)

	go func() {
		status, _ := c.Refresh(context.Background(), false)
		done <- status
	}()

	// Give the first refresh time to acquire the in-progress flag.
	time.Sleep(20 * time.Millisecond)

	status, err := c.Refresh(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "skipped", status)

	close(release)
	require.Equal(t, "refreshed", <-done)
}

func TestCacheAsideDoesNotCrossPopulate(t *testing.T) {
	wh := warehouse.NewMemory()
	wh.QueryFunc = func(_ context.Context, query string, args ...any) ([]warehouse.Row, error) {
		if query == "SELECT id, name, lei FROM counterparties WHERE id = $1" {
			return []warehouse.Row{{"id": "C2", "name": "Beta", "lei": "LEI2"}}, nil
		}

		return nil, nil
	}

	clk := clock.NewFake(time.Now())
	c := New(wh, clk, testLogger(), Config{})

	cp, ok := c.CounterpartyByID(context.Background(), "C2")
	require.True(t, ok)
	require.Equal(t, "Beta", cp.Name)

	// by-name cache must remain untouched by the by-id lookup.
	_, ok = c.CounterpartyByName(context.Background(), "Beta")
	require.False(t, ok)
}

func TestStatusReportsStaleness(t *testing.T) {
	wh := warehouse.NewMemory()
	clk := clock.NewFake(time.Now())
	c := New(wh, clk, testLogger(), Config{StaleThreshold: time.Minute})

	require.True(t, c.Status().IsStale, "never-refreshed cache is stale")

	_, err := c.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.False(t, c.Status().IsStale)

	clk.Advance(2 * time.Minute)
	require.True(t, c.Status().IsStale)
}
