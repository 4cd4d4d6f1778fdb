// ABOUTME: Thread-safe bounded LRU cache with per-entry TTL
// ABOUTME: Primary tier of the cache manager; expired entries are dropped on read

package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Defaults for NewMemory.
const (
	DefaultMaxSize  = 1000
	DefaultEntryTTL = 300 * time.Second
)

type memoryEntry[V any] struct {
	key          string
	value        V
	expiresAt    time.Time
	createdAt    time.Time
	lastAccessed time.Time
	accessCount  uint64
}

// Memory is an LRU cache bounded by entry count. All operations serialize on
// one mutex.
type Memory[V any] struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // least recently used at front
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	started time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// WithMaxSize bounds the number of entries. Values below 1 are ignored.
func WithMaxSize(n int) MemoryOption {
	return func(o *memoryOptions) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// WithDefaultTTL sets the lifetime used for DefaultTTL. NoExpiration is allowed.
func WithDefaultTTL(d time.Duration) MemoryOption {
	return func(o *memoryOptions) { o.ttl = d }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewMemory creates an empty cache.
func NewMemory[V any](opts ...MemoryOption) *Memory[V] {
	o := memoryOptions{maxSize: DefaultMaxSize, ttl: DefaultEntryTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Memory[V]{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: o.maxSize,
		ttl:     o.ttl,
		now:     o.now,
		started: o.now(),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	now := c.now()
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false, nil
	}
	e := elem.Value.(*memoryEntry[V])
	if expired(e.expiresAt, now) {
		c.removeElement(elem)
		c.misses++
		return zero, false, nil
	}

	c.order.MoveToBack(elem)
	e.accessCount++
	e.lastAccessed = now
	c.hits++
	return e.value, true, nil
}

// Set stores value under key. When a new key arrives at capacity the least
// recently used entry is evicted; Set never fails for lack of room.
func (c *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expiresAt := expiryFor(now, ttl, c.ttl)

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*memoryEntry[V])
		e.value = value
		e.expiresAt = expiresAt
		e.createdAt = now
		e.lastAccessed = now
		c.order.MoveToBack(elem)
		return nil
	}

	if len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	c.items[key] = c.order.PushBack(&memoryEntry[V]{
		key:          key,
		value:        value,
		expiresAt:    expiresAt,
		createdAt:    now,
		lastAccessed: now,
	})
	return nil
}

// Delete removes key and reports whether it was present.
func (c *Memory[V]) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return false, nil
	}
	c.removeElement(elem)
	return true, nil
}

// Exists reports whether a live entry exists without touching recency or counters.
func (c *Memory[V]) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return false, nil
	}
	if expired(elem.Value.(*memoryEntry[V]).expiresAt, c.now()) {
		c.removeElement(elem)
		return false, nil
	}
	return true, nil
}

// Clear drops every entry. Counters are kept.
func (c *Memory[V]) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Stats returns a snapshot of the counters.
func (c *Memory[V]) Stats(_ context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.items),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   hitRate(c.hits, c.misses),
		Uptime:    c.now().Sub(c.started),
	}, nil
}

// PurgeExpired removes every expired entry.
func (c *Memory[V]) PurgeExpired(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if expired(elem.Value.(*memoryEntry[V]).expiresAt, now) {
			c.removeElement(elem)
			n++
		}
		elem = next
	}
	return n, nil
}

// evictOldest removes the front of the recency list. Must be called with mu held.
func (c *Memory[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.removeElement(front)
	c.evictions++
}

func (c *Memory[V]) removeElement(elem *list.Element) {
	e := c.order.Remove(elem).(*memoryEntry[V])
	delete(c.items, e.key)
}
