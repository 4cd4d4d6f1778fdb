// ABOUTME: Two-tier cache manager layering a primary cache over an optional secondary
// ABOUTME: Secondary hits are copied back into the primary tier with their remaining lifetime

package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// ManagerStats combines per-tier stats with manager-level counters.
type ManagerStats struct {
	Primary       Stats   `json:"primary"`
	Secondary     *Stats  `json:"secondary,omitempty"`
	TotalRequests uint64  `json:"total_requests"`
	L1Hits        uint64  `json:"l1_hits"`
	L2Hits        uint64  `json:"l2_hits"`
	Misses        uint64  `json:"misses"`
	Writes        uint64  `json:"writes"`
	HitRate       float64 `json:"hit_rate"`
	L1HitRate     float64 `json:"l1_hit_rate"`
	L2HitRate     float64 `json:"l2_hit_rate"`
}

// Manager reads through primary then secondary and writes to both.
type Manager[V any] struct {
	primary   Cache[V]
	secondary Cache[V]
	logger    *slog.Logger

	l1Hits atomic.Uint64
	l2Hits atomic.Uint64
	misses atomic.Uint64
	writes atomic.Uint64
}

// NewManager creates a manager. secondary may be nil.
func NewManager[V any](primary, secondary Cache[V], logger *slog.Logger) *Manager[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager[V]{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With("component", "cache"),
	}
}

// Get looks up key in the primary tier, then the secondary. A secondary
// failure is logged and treated as a miss.
func (m *Manager[V]) Get(ctx context.Context, key string) (V, bool, error) {
	v, ok, err := m.primary.Get(ctx, key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	if ok {
		m.l1Hits.Add(1)
		return v, true, nil
	}

	if m.secondary != nil {
		ttl := DefaultTTL
		if tg, isTTL := m.secondary.(TTLGetter[V]); isTTL {
			v, ttl, ok, err = tg.GetWithTTL(ctx, key)
		} else {
			v, ok, err = m.secondary.Get(ctx, key)
		}
		if err != nil {
			m.logger.Warn("secondary cache read failed", "key", key, "error", err)
		} else if ok {
			m.l2Hits.Add(1)
			if err := m.primary.Set(ctx, key, v, ttl); err != nil {
				m.logger.Warn("primary cache backfill failed", "key", key, "error", err)
			}
			return v, true, nil
		}
	}

	m.misses.Add(1)
	var zero V
	return zero, false, nil
}

// Set writes value to both tiers.
func (m *Manager[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	m.writes.Add(1)
	err := m.primary.Set(ctx, key, value, ttl)
	if m.secondary != nil {
		err = errors.Join(err, m.secondary.Set(ctx, key, value, ttl))
	}
	return err
}

// Delete removes key from both tiers and reports whether either held it.
func (m *Manager[V]) Delete(ctx context.Context, key string) (bool, error) {
	found, err := m.primary.Delete(ctx, key)
	if m.secondary != nil {
		found2, err2 := m.secondary.Delete(ctx, key)
		found = found || found2
		err = errors.Join(err, err2)
	}
	return found, err
}

// Exists reports whether either tier holds a live entry.
func (m *Manager[V]) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := m.primary.Exists(ctx, key)
	if err != nil || ok || m.secondary == nil {
		return ok, err
	}
	return m.secondary.Exists(ctx, key)
}

// Clear empties both tiers.
func (m *Manager[V]) Clear(ctx context.Context) error {
	err := m.primary.Clear(ctx)
	if m.secondary != nil {
		err = errors.Join(err, m.secondary.Clear(ctx))
	}
	return err
}

// Stats combines tier and manager counters.
func (m *Manager[V]) Stats(ctx context.Context) (ManagerStats, error) {
	primary, err := m.primary.Stats(ctx)
	if err != nil {
		return ManagerStats{}, err
	}
	s := ManagerStats{
		Primary: primary,
		L1Hits:  m.l1Hits.Load(),
		L2Hits:  m.l2Hits.Load(),
		Misses:  m.misses.Load(),
		Writes:  m.writes.Load(),
	}
	if m.secondary != nil {
		secondary, err := m.secondary.Stats(ctx)
		if err != nil {
			return ManagerStats{}, err
		}
		s.Secondary = &secondary
	}

	s.TotalRequests = s.L1Hits + s.L2Hits + s.Misses
	if s.TotalRequests > 0 {
		total := float64(s.TotalRequests)
		s.HitRate = float64(s.L1Hits+s.L2Hits) / total
		s.L1HitRate = float64(s.L1Hits) / total
		s.L2HitRate = float64(s.L2Hits) / total
	}
	return s, nil
}

// PurgeExpired purges every tier that supports it.
func (m *Manager[V]) PurgeExpired(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for _, tier := range []Cache[V]{m.primary, m.secondary} {
		p, ok := tier.(Purger)
		if tier == nil || !ok {
			continue
		}
		n, err := p.PurgeExpired(ctx)
		total += n
		errs = append(errs, err)
	}
	return total, errors.Join(errs...)
}
