// file: internal/cache/cache.go
// version: 2.0.0
// guid: a1b2c3d4-e5f6-7a8b-9c0d-1e2f3a4b5c6d

package cache

import (
	"strings"
	"sync"
	"time"
)

type entry[T any] struct {
	value      T
	insertedAt time.Time
	expiresAt  time.Time
	seq        uint64
}

type queued struct {
	key string
	seq uint64
}

// Cache is a generic TTL cache bounded by entry count, safe for concurrent
// use. When full it evicts the single oldest-inserted entry - insertion
// order, not access order. That matches the memoization layer it serves and
// is deliberately not an LRU.
type Cache[T any] struct {
	mu         sync.Mutex
	items      map[string]entry[T]
	order      []queued // insertion order; stale heads skipped on pop
	defaultTTL time.Duration
	maxEntries int
	seq        uint64

	// AlwaysMiss disables hits without disabling writes. Correctness of
	// callers must hold identically with this set; tests flip it to prove
	// the cache is a pure performance layer.
	AlwaysMiss bool

	// Optional observation hooks (hit, miss, eviction).
	OnHit   func()
	OnMiss  func()
	OnEvict func()
}

// New creates a cache with the given default TTL and maximum entry count.
// maxEntries <= 0 means unbounded.
func New[T any](defaultTTL time.Duration, maxEntries int) *Cache[T] {
	return &Cache[T]{
		items:      make(map[string]entry[T]),
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
	}
}

// Get retrieves a value if it exists and hasn't expired. Stale entries are
// dropped on read.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.miss()
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.items, key)
		c.miss()
		return zero, false
	}
	if c.AlwaysMiss {
		c.miss()
		return zero, false
	}
	if c.OnHit != nil {
		c.OnHit()
	}
	return e.value, true
}

// Set stores a value with the default TTL.
func (c *Cache[T]) Set(key string, value T) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with a specific TTL, evicting the oldest-inserted
// entry first if the cache is full.
func (c *Cache[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.evictOldest()
	}
	// Overwrites leave dead heads in the queue; compact before it outgrows
	// the live set by more than 2x.
	if len(c.order) > 2*(len(c.items)+1) {
		c.compactLocked()
	}

	c.seq++
	c.items[key] = entry[T]{
		value:      value,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
		seq:        c.seq,
	}
	c.order = append(c.order, queued{key: key, seq: c.seq})
}

// evictOldest removes the oldest-inserted live entry. Queue heads whose seq
// no longer matches the stored entry were overwritten or invalidated and are
// skipped.
func (c *Cache[T]) evictOldest() {
	for len(c.order) > 0 {
		head := c.order[0]
		c.order = c.order[1:]
		e, ok := c.items[head.key]
		if !ok || e.seq != head.seq {
			continue
		}
		delete(c.items, head.key)
		if c.OnEvict != nil {
			c.OnEvict()
		}
		return
	}
}

// Invalidate removes a single key.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// InvalidatePrefix removes every entry whose key starts with prefix. Called
// after every successful write and every import for the affected collection.
func (c *Cache[T]) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
	c.compactLocked()
	c.mu.Unlock()
}

// compactLocked drops queue entries that no longer reference a live entry, so
// bulk invalidation and overwrites cannot grow the queue without bound.
func (c *Cache[T]) compactLocked() {
	live := c.order[:0]
	for _, q := range c.order {
		if e, ok := c.items[q.key]; ok && e.seq == q.seq {
			live = append(live, q)
		}
	}
	c.order = live
}

// InvalidateAll removes all entries.
func (c *Cache[T]) InvalidateAll() {
	c.mu.Lock()
	c.items = make(map[string]entry[T])
	c.order = nil
	c.mu.Unlock()
}

// Len returns the number of stored entries, counting stale ones not yet
// dropped by a read.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[T]) miss() {
	if c.OnMiss != nil {
		c.OnMiss()
	}
}
