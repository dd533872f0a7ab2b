// Package cache implements the bounded in-memory cache used for dashboard
// aggregates: per-lookup max-age, dependency-tag invalidation through a
// reverse index, and eviction of the least-used entry at capacity.
package cache

import (
	"sync"
	"time"

	"github.com/pulsedash/dashboard/pkg/metrics"
)

const DefaultCapacity = 1000

type entry struct {
	value       any
	createdAt   time.Time
	version     uint64
	deps        []string
	accessCount uint64
}

// Cache is safe for concurrent use. Entries are removed, never expired in
// place: absence always means "recompute".
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	byDep    map[string]map[string]struct{}
	version  uint64
	capacity int
	now      func() time.Time
}

type Option func(*Cache)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	c := &Cache{
		entries:  make(map[string]*entry),
		byDep:    make(map[string]map[string]struct{}),
		capacity: capacity,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Set stores value under key, stamps it with the next global version and
// registers key under every dependency tag. When the cache is full and key
// is new, the entry with the lowest access count is evicted first.
func (c *Cache) Set(key string, value any, deps []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictLeastUsed()
	}

	if old, exists := c.entries[key]; exists {
		c.unindex(key, old.deps)
	}

	c.version++

	c.entries[key] = &entry{
		value:     value,
		createdAt: c.now(),
		version:   c.version,
		deps:      deps,
	}

	for _, dep := range deps {
		keys, ok := c.byDep[dep]
		if !ok {
			keys = make(map[string]struct{})
			c.byDep[dep] = keys
		}

		keys[key] = struct{}{}
	}
}

// Get returns the cached value when it is younger than maxAge. An entry
// older than maxAge is deleted on the spot (lazy expiry, no sweeper).
func (c *Cache) Get(key string, maxAge time.Duration) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.CacheMisses.Inc()

		return nil, false
	}

	if c.now().Sub(e.createdAt) > maxAge {
		c.remove(key)
		metrics.CacheEvictions.WithLabelValues("expired").Inc()
		metrics.CacheMisses.Inc()

		return nil, false
	}

	e.accessCount++
	metrics.CacheHits.Inc()

	return e.value, true
}

// Invalidate drops every entry tagged with dep and returns how many were
// removed. This is the only proactive path for dropping dependent data,
// e.g. on integration reconnect or disconnect.
func (c *Cache) Invalidate(dep string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.byDep[dep]
	if !ok {
		return 0
	}

	n := 0

	for key := range keys {
		if _, exists := c.entries[key]; exists {
			c.remove(key)
			n++
		}
	}

	delete(c.byDep, dep)

	metrics.CacheInvalidations.Add(float64(n))

	return n
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.byDep = make(map[string]map[string]struct{})
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Version returns the current global write counter.
func (c *Cache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.version
}

// evictLeastUsed removes one entry with the lowest access count. Ties are
// broken arbitrarily by map iteration order. Caller holds the lock.
func (c *Cache) evictLeastUsed() {
	var (
		victim string
		lowest uint64
		found  bool
	)

	for key, e := range c.entries {
		if !found || e.accessCount < lowest {
			victim = key
			lowest = e.accessCount
			found = true
		}
	}

	if found {
		c.remove(victim)
		metrics.CacheEvictions.WithLabelValues("capacity").Inc()
	}
}

// remove deletes the entry and its reverse-index registrations. Caller
// holds the lock.
func (c *Cache) remove(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}

	c.unindex(key, e.deps)
	delete(c.entries, key)
}

func (c *Cache) unindex(key string, deps []string) {
	for _, dep := range deps {
		if keys, ok := c.byDep[dep]; ok {
			delete(keys, key)

			if len(keys) == 0 {
				delete(c.byDep, dep)
			}
		}
	}
}
