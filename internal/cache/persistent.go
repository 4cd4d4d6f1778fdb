// ABOUTME: Secondary cache tier storing JSON-encoded values through a CacheStore
// ABOUTME: Applies the same TTL rules as Memory and evicts by last access when full

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/tool-gateway/internal/store"
)

// Persistent is a Cache backed by a store.CacheStore, typically SQLite.
type Persistent[V any] struct {
	store   store.CacheStore
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	started time.Time

	// writeMu serializes the count-then-evict sequence in Set.
	writeMu sync.Mutex

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewPersistent wraps s. It accepts the same options as NewMemory.
func NewPersistent[V any](s store.CacheStore, opts ...MemoryOption) *Persistent[V] {
	o := memoryOptions{maxSize: DefaultMaxSize, ttl: DefaultEntryTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Persistent[V]{
		store:   s,
		maxSize: o.maxSize,
		ttl:     o.ttl,
		now:     o.now,
		started: o.now(),
	}
}

// Get returns the decoded value for key. Expired rows are deleted.
func (p *Persistent[V]) Get(ctx context.Context, key string) (V, bool, error) {
	v, _, ok, err := p.GetWithTTL(ctx, key)
	return v, ok, err
}

// GetWithTTL is Get that also reports the entry's remaining lifetime.
func (p *Persistent[V]) GetWithTTL(ctx context.Context, key string) (V, time.Duration, bool, error) {
	var zero V
	now := p.now()

	e, err := p.store.GetCacheEntry(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		p.misses.Add(1)
		return zero, 0, false, nil
	}
	if err != nil {
		return zero, 0, false, err
	}

	if e.ExpiresAt != nil && expired(*e.ExpiresAt, now) {
		if _, err := p.store.DeleteCacheEntry(ctx, key); err != nil {
			return zero, 0, false, err
		}
		p.misses.Add(1)
		return zero, 0, false, nil
	}

	var v V
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return zero, 0, false, fmt.Errorf("decoding cache entry %q: %w", key, err)
	}
	if err := p.store.TouchCacheEntry(ctx, key, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		return zero, 0, false, err
	}
	p.hits.Add(1)

	remaining := NoExpiration
	if e.ExpiresAt != nil {
		remaining = e.ExpiresAt.Sub(now)
	}
	return v, remaining, true, nil
}

// Set encodes value as JSON and stores it, evicting the least recently
// accessed row when a new key arrives at capacity.
func (p *Persistent[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache entry %q: %w", key, err)
	}

	now := p.now()
	entry := &store.CacheEntry{
		Key:          key,
		Value:        data,
		CreatedAt:    now,
		LastAccessed: now,
	}
	if exp := expiryFor(now, ttl, p.ttl); !exp.IsZero() {
		entry.ExpiresAt = &exp
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_, err = p.store.GetCacheEntry(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := p.makeRoom(ctx); err != nil {
			return err
		}
	case err != nil:
		return err
	}
	return p.store.PutCacheEntry(ctx, entry)
}

func (p *Persistent[V]) makeRoom(ctx context.Context) error {
	n, err := p.store.CountCacheEntries(ctx)
	if err != nil {
		return err
	}
	for ; n >= p.maxSize; n-- {
		evicted, err := p.store.EvictLRUCacheEntry(ctx)
		if err != nil {
			return err
		}
		if !evicted {
			break
		}
		p.evictions.Add(1)
	}
	return nil
}

// Delete removes key.
func (p *Persistent[V]) Delete(ctx context.Context, key string) (bool, error) {
	return p.store.DeleteCacheEntry(ctx, key)
}

// Exists reports whether a live row exists without updating access data.
func (p *Persistent[V]) Exists(ctx context.Context, key string) (bool, error) {
	e, err := p.store.GetCacheEntry(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if e.ExpiresAt != nil && expired(*e.ExpiresAt, p.now()) {
		_, err := p.store.DeleteCacheEntry(ctx, key)
		return false, err
	}
	return true, nil
}

// Clear removes every row.
func (p *Persistent[V]) Clear(ctx context.Context) error {
	return p.store.ClearCacheEntries(ctx)
}

// Stats reports the row count and in-process counters.
func (p *Persistent[V]) Stats(ctx context.Context) (Stats, error) {
	n, err := p.store.CountCacheEntries(ctx)
	if err != nil {
		return Stats{}, err
	}
	hits, misses := p.hits.Load(), p.misses.Load()
	return Stats{
		Size:      n,
		MaxSize:   p.maxSize,
		Hits:      hits,
		Misses:    misses,
		Evictions: p.evictions.Load(),
		HitRate:   hitRate(hits, misses),
		Uptime:    p.now().Sub(p.started),
	}, nil
}

// PurgeExpired deletes every expired row.
func (p *Persistent[V]) PurgeExpired(ctx context.Context) (int, error) {
	return p.store.PurgeExpiredCacheEntries(ctx, p.now())
}
