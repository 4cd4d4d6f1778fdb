// ABOUTME: Tests for the in-memory LRU+TTL cache
// ABOUTME: Covers eviction order, recency promotion, TTL sentinels and counters

package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemory_LRUEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[string](WithMaxSize(2))

	require.NoError(t, c.Set(ctx, "a", "1", DefaultTTL))
	require.NoError(t, c.Set(ctx, "b", "2", DefaultTTL))
	require.NoError(t, c.Set(ctx, "c", "3", DefaultTTL))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok, "a should have been evicted")
	v, ok, _ := c.Get(ctx, "b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)

	stats, _ := c.Stats(ctx)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
}

func TestMemory_GetPromotesEntry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[int](WithMaxSize(2))

	c.Set(ctx, "a", 1, DefaultTTL)
	c.Set(ctx, "b", 2, DefaultTTL)
	c.Get(ctx, "a")
	c.Set(ctx, "c", 3, DefaultTTL)

	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
}

func TestMemory_OverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[int](WithMaxSize(2))

	c.Set(ctx, "a", 1, DefaultTTL)
	c.Set(ctx, "b", 2, DefaultTTL)
	c.Set(ctx, "a", 10, DefaultTTL)

	v, ok, _ := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok)

	stats, _ := c.Stats(ctx)
	assert.Zero(t, stats.Evictions)
}

func TestMemory_ExistsDoesNotPromote(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[int](WithMaxSize(2))

	c.Set(ctx, "a", 1, DefaultTTL)
	c.Set(ctx, "b", 2, DefaultTTL)
	ok, _ := c.Exists(ctx, "a")
	assert.True(t, ok)
	c.Set(ctx, "c", 3, DefaultTTL)

	ok, _ = c.Exists(ctx, "a")
	assert.False(t, ok)

	stats, _ := c.Stats(ctx)
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemory[string](WithClock(clock.Now), WithDefaultTTL(time.Minute))

	c.Set(ctx, "zero", "x", 0)
	_, ok, _ := c.Get(ctx, "zero")
	assert.False(t, ok, "ttl 0 is a miss on the next get")

	c.Set(ctx, "short", "x", 10*time.Second)
	c.Set(ctx, "default", "x", DefaultTTL)
	c.Set(ctx, "forever", "x", NoExpiration)

	clock.Advance(9 * time.Second)
	_, ok, _ = c.Get(ctx, "short")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, _ = c.Get(ctx, "short")
	assert.False(t, ok, "expired exactly at its deadline")

	clock.Advance(time.Minute)
	_, ok, _ = c.Get(ctx, "default")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok)

	stats, _ := c.Stats(ctx)
	assert.Equal(t, 1, stats.Size, "expired entries are removed on read")
}

func TestMemory_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemory[int](WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), i, time.Duration(i+1)*time.Second)
	}
	clock.Advance(3 * time.Second)

	n, err := c.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stats, _ := c.Stats(ctx)
	assert.Equal(t, 2, stats.Size)
}

func TestMemory_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[int]()

	c.Set(ctx, "a", 1, DefaultTTL)
	c.Set(ctx, "b", 2, DefaultTTL)

	ok, _ := c.Delete(ctx, "a")
	assert.True(t, ok)
	ok, _ = c.Delete(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, c.Clear(ctx))
	stats, _ := c.Stats(ctx)
	assert.Zero(t, stats.Size)
	assert.Equal(t, DefaultMaxSize, stats.MaxSize)
}

func TestMemory_Stats(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemory[int](WithClock(clock.Now))

	c.Set(ctx, "a", 1, DefaultTTL)
	c.Get(ctx, "a")
	c.Get(ctx, "a")
	c.Get(ctx, "a")
	c.Get(ctx, "missing")
	clock.Advance(time.Minute)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.75, stats.HitRate, 1e-9)
	assert.Equal(t, time.Minute, stats.Uptime)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[int](WithMaxSize(50))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*31+i)%100)
				c.Set(ctx, key, i, DefaultTTL)
				c.Get(ctx, key)
			}
		}(g)
	}
	wg.Wait()

	stats, _ := c.Stats(ctx)
	assert.LessOrEqual(t, stats.Size, 50)
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint("adapter", "pg", map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := Fingerprint("adapter", "pg", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, len("adapter:")+64)

	other, _ := Fingerprint("adapter", "pg", map[string]any{"a": 2})
	assert.NotEqual(t, a, other)

	_, err = Fingerprint("bad", make(chan int))
	assert.Error(t, err)
}
