// Package cache provides the bounded, TTL-based response cache used by the
// API gateway.
//
// DESIGN: a thin layer over hashicorp's expirable LRU. The library owns TTL
// expiry and least-recently-used eviction under the entry ceiling; this
// package adds prefix invalidation (a mutation evicts every key under its
// declared prefixes) and hit/miss/size accounting. The TTL is fixed per cache
// instance — deployment profiles pick short TTLs for interactive use and long
// ones for batch use.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Stats is a point-in-time snapshot of cache behavior.
type Stats struct {
	Entries   int
	Bytes     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

type entry[V any] struct {
	value    V
	storedAt time.Time
	size     int
}

// Cache maps request fingerprints to prior responses. Safe for concurrent
// use; the stats mutex is separate from the LRU's own locking so unrelated
// reads never serialize behind each other longer than necessary.
type Cache[V any] struct {
	lru   *expirable.LRU[string, entry[V]]
	sizer func(V) int

	mu        sync.Mutex
	bytes     int64
	hits      int64
	misses    int64
	evictions int64
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithSizer supplies the approximate-size function used for byte accounting.
func WithSizer[V any](fn func(V) int) Option[V] {
	return func(c *Cache[V]) {
		c.sizer = fn
	}
}

// New creates a cache holding at most maxEntries values, each valid for ttl
// after insertion. Insertion beyond the ceiling evicts the least-recently-used
// entry regardless of its remaining TTL.
func New[V any](maxEntries int, ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		sizer: func(V) int { return 0 },
	}
	for _, opt := range opts {
		opt(c)
	}

	onEvict := func(_ string, e entry[V]) {
		c.mu.Lock()
		c.bytes -= int64(e.size)
		c.evictions++
		c.mu.Unlock()
	}
	c.lru = expirable.NewLRU[string, entry[V]](maxEntries, onEvict, ttl)
	return c
}

// Get returns the cached value for key. Expired entries are never returned.
// A hit has no observable side effects beyond recency bookkeeping.
func (c *Cache[V]) Get(key string) (V, bool) {
	e, ok := c.lru.Get(key)

	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, overwriting any previous entry.
func (c *Cache[V]) Put(key string, value V) {
	size := c.sizer(value)
	c.mu.Lock()
	c.bytes += int64(size)
	c.mu.Unlock()

	c.lru.Add(key, entry[V]{value: value, storedAt: time.Now(), size: size})
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns the number evicted.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	n := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			if c.lru.Remove(key) {
				n++
			}
		}
	}
	return n
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int { return c.lru.Len() }

// Purge drops everything. Used at teardown.
func (c *Cache[V]) Purge() { c.lru.Purge() }

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.lru.Len(),
		Bytes:     c.bytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
