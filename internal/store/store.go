// ABOUTME: Store interfaces and data types for tool-gateway persistence
// ABOUTME: Defines audit log and cache entry records plus shared sentinel errors

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// tsFormat is a fixed-width UTC timestamp so TEXT columns sort chronologically.
const tsFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(tsFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(tsFormat, s)
}

// AuditStore persists audit events.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// CacheStore persists entries for the secondary cache tier.
type CacheStore interface {
	GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error)
	PutCacheEntry(ctx context.Context, e *CacheEntry) error
	TouchCacheEntry(ctx context.Context, key string, at time.Time) error
	DeleteCacheEntry(ctx context.Context, key string) (bool, error)
	ClearCacheEntries(ctx context.Context) error
	CountCacheEntries(ctx context.Context) (int, error)
	EvictLRUCacheEntry(ctx context.Context) (bool, error)
	PurgeExpiredCacheEntries(ctx context.Context, now time.Time) (int, error)
}

// Store is everything the gateway persists.
type Store interface {
	AuditStore
	CacheStore
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
