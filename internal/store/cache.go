// ABOUTME: Cache entry persistence backing the secondary cache tier
// ABOUTME: Supports upsert, touch-on-read, LRU eviction and expired-entry purges

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheEntry is one row of cache_entries. A nil ExpiresAt never expires.
type CacheEntry struct {
	Key          string
	Value        []byte
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int64
}

func nanos(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := t.UnixNano()
	return &n
}

// GetCacheEntry returns the entry for key. Returns ErrNotFound if absent.
// Expiry is not checked here.
func (s *SQLiteStore) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	query := `
		SELECT key, value, expires_at, created_at, last_accessed, access_count
		FROM cache_entries
		WHERE key = ?
	`

	var e CacheEntry
	var expiresAt sql.NullInt64
	var createdAt, lastAccessed int64

	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&e.Key, &e.Value, &expiresAt, &createdAt, &lastAccessed, &e.AccessCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying cache entry: %w", err)
	}

	if expiresAt.Valid {
		t := time.Unix(0, expiresAt.Int64)
		e.ExpiresAt = &t
	}
	e.CreatedAt = time.Unix(0, createdAt)
	e.LastAccessed = time.Unix(0, lastAccessed)
	return &e, nil
}

// PutCacheEntry inserts or replaces the entry for e.Key.
func (s *SQLiteStore) PutCacheEntry(ctx context.Context, e *CacheEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.LastAccessed.IsZero() {
		e.LastAccessed = e.CreatedAt
	}

	query := `
		INSERT INTO cache_entries (key, value, expires_at, created_at, last_accessed, access_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at,
			last_accessed = excluded.last_accessed,
			access_count = excluded.access_count
	`

	_, err := s.db.ExecContext(ctx, query,
		e.Key,
		e.Value,
		nanos(e.ExpiresAt),
		e.CreatedAt.UnixNano(),
		e.LastAccessed.UnixNano(),
		e.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("upserting cache entry: %w", err)
	}
	return nil
}

// TouchCacheEntry records a read of key at the given time.
// Returns ErrNotFound if the entry doesn't exist.
func (s *SQLiteStore) TouchCacheEntry(ctx context.Context, key string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET last_accessed = ?, access_count = access_count + 1 WHERE key = ?`,
		at.UnixNano(), key,
	)
	if err != nil {
		return fmt.Errorf("touching cache entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCacheEntry removes key and reports whether a row was deleted.
func (s *SQLiteStore) DeleteCacheEntry(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("deleting cache entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rows > 0, nil
}

// ClearCacheEntries removes every cache entry.
func (s *SQLiteStore) ClearCacheEntries(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("clearing cache entries: %w", err)
	}
	return nil
}

// CountCacheEntries returns the number of stored entries, expired or not.
func (s *SQLiteStore) CountCacheEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// EvictLRUCacheEntry removes the least recently accessed entry.
// Reports false when the table is empty.
func (s *SQLiteStore) EvictLRUCacheEntry(ctx context.Context) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries
		WHERE key = (SELECT key FROM cache_entries ORDER BY last_accessed ASC, created_at ASC LIMIT 1)
	`)
	if err != nil {
		return false, fmt.Errorf("evicting cache entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rows > 0, nil
}

// PurgeExpiredCacheEntries deletes entries whose expiry is at or before now.
func (s *SQLiteStore) PurgeExpiredCacheEntries(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		now.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging expired cache entries: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Debug("purged expired cache entries", "count", rows)
	}
	return int(rows), nil
}
