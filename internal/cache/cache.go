package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/warehouse"
)

const (
	defaultRefreshInterval = 300 * time.Second
	defaultStaleThreshold  = 600 * time.Second
	defaultLookupTimeout   = 5 * time.Second
)

// Config tunes the cache's refresh cadence and cache-aside lookup budget.
type Config struct {
	RefreshInterval time.Duration
	StaleThreshold  time.Duration
	LookupTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = defaultRefreshInterval
	}

	if c.StaleThreshold <= 0 {
		c.StaleThreshold = defaultStaleThreshold
	}

	if c.LookupTimeout <= 0 {
		c.LookupTimeout = defaultLookupTimeout
	}

	return c
}

// Cache is the process-local reference-data cache fronting the warehouse's
// trader/counterparty/instrument/book tables. A single
// background refresh populates a Snapshot; request-handling goroutines
// read it lock-free via an atomic pointer and fall back to cache-aside
// single-key queries on miss.
type Cache struct {
	wh         warehouse.Warehouse
	clk        clock.Clock
	logger     *slog.Logger
	cfg        Config
	snapshot   atomic.Pointer[Snapshot]
	refreshing atomic.Bool
}

// New builds a Cache backed by wh, starting from an empty snapshot. Call
// Refresh (or RunScheduler) before serving traffic.
func New(wh warehouse.Warehouse, clk clock.Clock, logger *slog.Logger, cfg Config) *Cache {
	c := &Cache{wh: wh, clk: clk, logger: logger, cfg: cfg.withDefaults()}
	c.snapshot.Store(emptySnapshot())

	return c
}

// RunScheduler triggers a non-forced Refresh every cfg.RefreshInterval
// until ctx is cancelled.
func (c *Cache) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Refresh(ctx, false); err != nil {
				c.logger.Error("cache refresh failed", slog.Any("error", err))
			}
		}
	}
}

// Refresh rebuilds every reference map from the warehouse and atomically
// replaces the live snapshot. A concurrent non-forced refresh while one is
// already running is a no-op returning "skipped"; force=true always
// proceeds. On query failure the previous snapshot is kept.
func (c *Cache) Refresh(ctx context.Context, force bool) (string, error) {
	if !force {
		if !c.refreshing.CompareAndSwap(false, true) {
			return "skipped", nil
		}
	} else {
		c.refreshing.Store(true)
	}

	defer c.refreshing.Store(false)

	next := emptySnapshot()

	if err := c.loadTraders(ctx, next); err != nil {
		return "error", err
	}

	if err := c.loadCounterparties(ctx, next); err != nil {
		return "error", err
	}

	if err := c.loadInstruments(ctx, next); err != nil {
		return "error", err
	}

	if err := c.loadBooks(ctx, next); err != nil {
		return "error", err
	}

	next.LastRefresh = c.clk.Now()
	c.snapshot.Store(next)

	c.logger.Info("cache refreshed",
		slog.Int("traders", next.Traders.len()),
		slog.Int("counterparties", next.CounterpartiesByID.len()),
		slog.Int("instruments", next.Instruments.len()),
		slog.Int("books", next.Books.len()),
	)

	return "refreshed", nil
}

func (c *Cache) loadTraders(ctx context.Context, next *Snapshot) error {
	rows, err := c.wh.Query(ctx, "SELECT id, name, desk FROM traders")
	if err != nil {
		return fmt.Errorf("cache: refresh traders: %w", err)
	}

	for _, row := range rows {
		t := Trader{ID: str(row["id"]), Name: str(row["name"]), Desk: str(row["desk"])}
		next.Traders.set(t.ID, t)
	}

	return nil
}

func (c *Cache) loadCounterparties(ctx context.Context, next *Snapshot) error {
	rows, err := c.wh.Query(ctx, "SELECT id, name, lei FROM counterparties")
	if err != nil {
		return fmt.Errorf("cache: refresh counterparties: %w", err)
	}

	for _, row := range rows {
		cp := Counterparty{ID: str(row["id"]), Name: str(row["name"]), LEI: str(row["lei"])}
		next.CounterpartiesByID.set(cp.ID, cp)
		// First writer wins on name collision; set() already enforces that
		// within a single keyedMap.
		next.CounterpartiesByName.set(cp.Name, cp)
	}

	return nil
}

func (c *Cache) loadInstruments(ctx context.Context, next *Snapshot) error {
	rows, err := c.wh.Query(ctx, "SELECT id, symbol, asset_class FROM instruments")
	if err != nil {
		return fmt.Errorf("cache: refresh instruments: %w", err)
	}

	for _, row := range rows {
		i := Instrument{ID: str(row["id"]), Symbol: str(row["symbol"]), AssetClass: str(row["asset_class"])}
		next.Instruments.set(i.ID, i)
	}

	return nil
}

func (c *Cache) loadBooks(ctx context.Context, next *Snapshot) error {
	rows, err := c.wh.Query(ctx, "SELECT id, name, desk FROM books")
	if err != nil {
		return fmt.Errorf("cache: refresh books: %w", err)
	}

	for _, row := range rows {
		b := Book{ID: str(row["id"]), Name: str(row["name"]), Desk: str(row["desk"])}
		next.Books.set(b.ID, b)
	}

	return nil
}

// Trader resolves id from the live snapshot, falling back to a single-key
// warehouse query on miss (cache-aside).
func (c *Cache) Trader(ctx context.Context, id string) (Trader, bool) {
	snap := c.snapshot.Load()
	if t, ok := snap.Traders.get(id); ok {
		return t, true
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	rows, err := c.wh.Query(ctx, "SELECT id, name, desk FROM traders WHERE id = $1", id)
	if err != nil || len(rows) == 0 {
		return Trader{}, false
	}

	t := Trader{ID: str(rows[0]["id"]), Name: str(rows[0]["name"]), Desk: str(rows[0]["desk"])}
	snap.Traders.set(t.ID, t)

	return t, true
}

// CounterpartyByID resolves id against the disjoint by-ID counterparty map.
func (c *Cache) CounterpartyByID(ctx context.Context, id string) (Counterparty, bool) {
	snap := c.snapshot.Load()
	if cp, ok := snap.CounterpartiesByID.get(id); ok {
		return cp, true
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	rows, err := c.wh.Query(ctx, "SELECT id, name, lei FROM counterparties WHERE id = $1", id)
	if err != nil || len(rows) == 0 {
		return Counterparty{}, false
	}

	cp := Counterparty{ID: str(rows[0]["id"]), Name: str(rows[0]["name"]), LEI: str(rows[0]["lei"])}
	snap.CounterpartiesByID.set(cp.ID, cp)

	return cp, true
}

// CounterpartyByName resolves name against the disjoint by-name
// counterparty map, never cross-populating the by-ID map.
func (c *Cache) CounterpartyByName(ctx context.Context, name string) (Counterparty, bool) {
	snap := c.snapshot.Load()
	if cp, ok := snap.CounterpartiesByName.get(name); ok {
		return cp, true
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	rows, err := c.wh.Query(ctx, "SELECT id, name, lei FROM counterparties WHERE name = $1", name)
	if err != nil || len(rows) == 0 {
		return Counterparty{}, false
	}

	cp := Counterparty{ID: str(rows[0]["id"]), Name: str(rows[0]["name"]), LEI: str(rows[0]["lei"])}
	snap.CounterpartiesByName.set(cp.Name, cp)

	return cp, true
}

// Instrument resolves id, falling back to cache-aside on miss.
func (c *Cache) Instrument(ctx context.Context, id string) (Instrument, bool) {
	snap := c.snapshot.Load()
	if i, ok := snap.Instruments.get(id); ok {
		return i, true
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	rows, err := c.wh.Query(ctx, "SELECT id, symbol, asset_class FROM instruments WHERE id = $1", id)
	if err != nil || len(rows) == 0 {
		return Instrument{}, false
	}

	i := Instrument{ID: str(rows[0]["id"]), Symbol: str(rows[0]["symbol"]), AssetClass: str(rows[0]["asset_class"])}
	snap.Instruments.set(i.ID, i)

	return i, true
}

// Book resolves id, falling back to cache-aside on miss.
func (c *Cache) Book(ctx context.Context, id string) (Book, bool) {
	snap := c.snapshot.Load()
	if b, ok := snap.Books.get(id); ok {
		return b, true
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	rows, err := c.wh.Query(ctx, "SELECT id, name, desk FROM books WHERE id = $1", id)
	if err != nil || len(rows) == 0 {
		return Book{}, false
	}

	b := Book{ID: str(rows[0]["id"]), Name: str(rows[0]["name"]), Desk: str(rows[0]["desk"])}
	snap.Books.set(b.ID, b)

	return b, true
}

// Status reports current map sizes and staleness for /admin/cache-status.
func (c *Cache) Status() Status {
	snap := c.snapshot.Load()

	lastRefresh := snap.LastRefresh
	isStale := lastRefresh.IsZero() || c.clk.Since(lastRefresh) > c.cfg.StaleThreshold

	return Status{
		Traders:              snap.Traders.len(),
		CounterpartiesByID:   snap.CounterpartiesByID.len(),
		CounterpartiesByName: snap.CounterpartiesByName.len(),
		Instruments:          snap.Instruments.len(),
		Books:                snap.Books.len(),
		LastRefresh:          lastRefresh,
		RefreshInProgress:    c.refreshing.Load(),
		IsStale:              isStale,
	}
}

// Stale reports whether the cache's last successful refresh is older than
// StaleThreshold, gating the Reporter's /health endpoint.
func (c *Cache) Stale() bool {
	return c.Status().IsStale
}

func str(v any) string {
	s, _ := v.(string)

	return s
}
