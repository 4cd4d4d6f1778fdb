// ABOUTME: Cache contract shared by the in-memory and persistent tiers
// ABOUTME: Defines TTL sentinels and the per-tier statistics snapshot

package cache

import (
	"context"
	"time"
)

// TTL sentinels accepted by Set. Zero expires the entry immediately and a
// positive value is its lifetime.
const (
	DefaultTTL   time.Duration = -1
	NoExpiration time.Duration = -2
)

// Stats is a point-in-time view of one cache tier.
type Stats struct {
	Size      int           `json:"size"`
	MaxSize   int           `json:"max_size"`
	Hits      uint64        `json:"hits"`
	Misses    uint64        `json:"misses"`
	Evictions uint64        `json:"evictions"`
	HitRate   float64       `json:"hit_rate"`
	Uptime    time.Duration `json:"uptime_ns"`
}

// Cache is a string-keyed store of V with per-entry expiry.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// TTLGetter is implemented by tiers that can report how long an entry has
// left. The remaining lifetime is NoExpiration for entries that never expire.
type TTLGetter[V any] interface {
	GetWithTTL(ctx context.Context, key string) (V, time.Duration, bool, error)
}

// Purger drops expired entries and reports how many were removed.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// expiryFor resolves ttl against the tier default. The zero time means the
// entry never expires.
func expiryFor(now time.Time, ttl, defaultTTL time.Duration) time.Time {
	if ttl == DefaultTTL {
		ttl = defaultTTL
	}
	if ttl < 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// expired reports whether an entry with the given expiry is dead at now.
func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
