// Package cache implements the reporting cache: a process-local
// reference-data cache with atomic periodic refresh and cache-aside
// fallback in front of the warehouse's trader, counterparty, instrument,
// and book reference tables.
package cache

import (
	"sync"
	"time"
)

// Trader is a reference-data record looked up by trader ID.
type Trader struct {
	ID   string
	Name string
	Desk string
}

// Counterparty is a reference-data record looked up by either ID or name;
// the two lookup paths are disjoint caches.
type Counterparty struct {
	ID   string
	Name string
	LEI  string
}

// Instrument is a reference-data record looked up by instrument ID.
type Instrument struct {
	ID         string
	Symbol     string
	AssetClass string
}

// Book is a reference-data record looked up by book ID.
type Book struct {
	ID   string
	Name string
	Desk string
}

// keyedMap is a mutex-guarded map of a single reference-data kind. Every
// Snapshot owns its own keyedMap instances; a full refresh builds a brand
// new Snapshot (and therefore brand new keyedMaps) and swaps it in behind
// the Cache's atomic pointer, while cache-aside lookups mutate the maps of
// whichever snapshot they loaded: a single mutex per structure, swap-by-
// pointer for the cache snapshot.
type keyedMap[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

func newKeyedMap[V any](seed map[string]V) *keyedMap[V] {
	if seed == nil {
		seed = make(map[string]V)
	}

	return &keyedMap[V]{m: seed}
}

func (k *keyedMap[V]) get(key string) (V, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	v, ok := k.m[key]

	return v, ok
}

// set stores key→v unless key is already present, implementing "first
// writer wins" for the counterparty-by-name collision case.
func (k *keyedMap[V]) set(key string, v V) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.m[key]; !exists {
		k.m[key] = v
	}
}

func (k *keyedMap[V]) len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return len(k.m)
}

// Snapshot holds the five reference-data maps built by one refresh;
// cache-aside lookups may add entries to it afterwards. Readers obtain a
// Snapshot reference from Cache's atomic pointer and never observe a
// half-built one.
type Snapshot struct {
	Traders              *keyedMap[Trader]
	CounterpartiesByID   *keyedMap[Counterparty]
	CounterpartiesByName *keyedMap[Counterparty]
	Instruments          *keyedMap[Instrument]
	Books                *keyedMap[Book]
	LastRefresh          time.Time
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Traders:              newKeyedMap[Trader](nil),
		CounterpartiesByID:   newKeyedMap[Counterparty](nil),
		CounterpartiesByName: newKeyedMap[Counterparty](nil),
		Instruments:          newKeyedMap[Instrument](nil),
		Books:                newKeyedMap[Book](nil),
	}
}

// Status is the /admin/cache-status projection of a Snapshot plus the
// Cache's own refresh bookkeeping.
type Status struct {
	Traders              int       `json:"traders"`
	CounterpartiesByID   int       `json:"counterparties_by_id"`   //nolint: tagliatelle
	CounterpartiesByName int       `json:"counterparties_by_name"` //nolint: tagliatelle
	Instruments          int       `json:"instruments"`
	Books                int       `json:"books"`
	LastRefresh          time.Time `json:"last_refresh"` //nolint: tagliatelle
	RefreshInProgress    bool      `json:"refresh_in_progress"` //nolint: tagliatelle
	IsStale              bool      `json:"is_stale"`            //nolint: tagliatelle
}
