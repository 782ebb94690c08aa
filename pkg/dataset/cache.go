package dataset

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrCacheClosed is returned when operations are attempted on a closed cache.
var ErrCacheClosed = errors.New("dataset cache is closed")

// LoadFunc materializes a dataset kind from backing storage.
type LoadFunc func(ctx context.Context, kind Kind) (*Table, error)

// CacheConfig bounds a scenario's in-memory dataset cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached datasets per scenario.
	// Default: 16.
	MaxEntries int

	// MaxBytes is the maximum estimated memory for cached datasets.
	// 0 disables the byte bound.
	// Default: 256MB.
	MaxBytes int64

	// EvictionWindow is how many least-recently-used entries are considered
	// when picking an eviction victim; among them the entry with the lowest
	// access count goes first.
	// Default: 4.
	EvictionWindow int
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries:     16,
		MaxBytes:       256 << 20,
		EvictionWindow: 4,
	}
}

// Cache is a bounded per-scenario dataset cache.
//
// Datasets load lazily on first Get; concurrent Gets for the same kind are
// collapsed into one load. Entries are immutable once stored and are evicted
// whole, never mutated. Eviction is LRU with an access-count tie-break: of
// the least recently used entries, the one touched fewest times is dropped
// first, so a briefly-hot dataset outlives a one-shot probe of equal age.
type Cache struct {
	mu      sync.Mutex
	entries map[Kind]*cacheEntry
	lru     *list.List // front = most recently used
	bytes   int64
	closed  bool

	hits      int64
	misses    int64
	evictions int64

	// Counts already handed out via StatsDelta.
	reportedHits      int64
	reportedMisses    int64
	reportedEvictions int64

	config CacheConfig
	load   LoadFunc
	group  singleflight.Group
	logger *slog.Logger
}

type cacheEntry struct {
	kind        Kind
	table       *Table
	bytes       int64
	accessCount int64
	elem        *list.Element
}

// NewCache creates a dataset cache backed by the given loader.
func NewCache(load LoadFunc, config CacheConfig, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	if config.EvictionWindow <= 0 {
		config.EvictionWindow = DefaultCacheConfig().EvictionWindow
	}

	return &Cache{
		entries: make(map[Kind]*cacheEntry),
		lru:     list.New(),
		config:  config,
		load:    load,
		logger:  logger.With("component", "dataset_cache"),
	}
}

// Get returns the table for a dataset kind, loading it on first access.
// The returned table is shared and must not be mutated.
func (c *Cache) Get(ctx context.Context, kind Kind) (*Table, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCacheClosed
	}
	if e, ok := c.entries[kind]; ok {
		e.accessCount++
		c.lru.MoveToFront(e.elem)
		c.hits++
		c.mu.Unlock()
		return e.table, nil
	}
	c.misses++
	c.mu.Unlock()

	// Collapse concurrent loads of the same kind into one.
	v, err, _ := c.group.Do(string(kind), func() (any, error) {
		// Another caller may have populated the entry between the miss
		// and the flight starting.
		c.mu.Lock()
		if e, ok := c.entries[kind]; ok {
			e.accessCount++
			c.lru.MoveToFront(e.elem)
			c.mu.Unlock()
			return e.table, nil
		}
		c.mu.Unlock()

		table, err := c.load(ctx, kind)
		if err != nil {
			return nil, err
		}
		c.store(kind, table)
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

// Peek reports whether a dataset is currently cached, without touching
// its LRU position.
func (c *Cache) Peek(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[kind]
	return ok
}

// store inserts a loaded table and evicts until bounds hold.
func (c *Cache) store(kind Kind, table *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if _, ok := c.entries[kind]; ok {
		return
	}

	e := &cacheEntry{
		kind:        kind,
		table:       table,
		bytes:       table.Footprint(),
		accessCount: 1,
	}
	e.elem = c.lru.PushFront(kind)
	c.entries[kind] = e
	c.bytes += e.bytes

	for c.overLimitLocked() && c.lru.Len() > 1 {
		c.evictOneLocked()
	}
}

func (c *Cache) overLimitLocked() bool {
	if c.lru.Len() > c.config.MaxEntries {
		return true
	}
	if c.config.MaxBytes > 0 && c.bytes > c.config.MaxBytes {
		return true
	}
	return false
}

// evictOneLocked drops one entry: of the EvictionWindow least recently used
// entries, the one with the lowest access count (ties keep LRU order).
// Must be called with the lock held.
func (c *Cache) evictOneLocked() {
	var victim *cacheEntry

	elem := c.lru.Back()
	for i := 0; i < c.config.EvictionWindow && elem != nil; i++ {
		e := c.entries[elem.Value.(Kind)]
		if e != nil && (victim == nil || e.accessCount < victim.accessCount) {
			victim = e
		}
		elem = elem.Prev()
	}
	if victim == nil {
		return
	}

	c.lru.Remove(victim.elem)
	delete(c.entries, victim.kind)
	c.bytes -= victim.bytes
	c.evictions++

	c.logger.Debug("evicted dataset",
		"kind", victim.kind,
		"bytes", victim.bytes,
		"access_count", victim.accessCount,
		"remaining", c.lru.Len())
}

// Purge drops every cached entry. Used when a session is disposed.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Kind]*cacheEntry)
	c.lru.Init()
	c.bytes = 0
}

// Close purges the cache and rejects further loads.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.entries = make(map[Kind]*cacheEntry)
	c.lru.Init()
	c.bytes = 0
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Entries   int
	Bytes     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// Stats returns current cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   c.lru.Len(),
		Bytes:     c.bytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// StatsDelta drains the hit/miss/eviction counts accumulated since the
// previous call. Feed the result into monotonic counters; repeating a
// cumulative total there would overcount.
func (c *Cache) StatsDelta() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := CacheStats{
		Entries:   c.lru.Len(),
		Bytes:     c.bytes,
		Hits:      c.hits - c.reportedHits,
		Misses:    c.misses - c.reportedMisses,
		Evictions: c.evictions - c.reportedEvictions,
	}
	c.reportedHits = c.hits
	c.reportedMisses = c.misses
	c.reportedEvictions = c.evictions
	return d
}
