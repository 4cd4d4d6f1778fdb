// Package store provides persistent storage for the gateway using SQLite.
//
// SQLiteStore (modernc.org/sqlite, no cgo) implements two interfaces:
//
//   - AuditStore: the append-only audit_log table written by the audit package
//   - CacheStore: the cache_entries table behind the persistent cache tier
//
// The schema is created on open. Missing rows are reported as ErrNotFound.
package store
