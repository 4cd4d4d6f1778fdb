// Package cache provides the gateway's two-tier result cache.
//
// Memory is a bounded LRU with per-entry TTL. Persistent stores JSON-encoded
// values in SQLite through store.CacheStore. Manager reads the primary tier,
// falls back to the secondary, and copies secondary hits back into the
// primary:
//
//	mem := cache.NewMemory[json.RawMessage](cache.WithMaxSize(1000))
//	disk := cache.NewPersistent[json.RawMessage](sqliteStore)
//	m := cache.NewManager[json.RawMessage](mem, disk, logger)
//
//	key, _ := cache.Fingerprint("adapter", instanceID, request)
//	if v, ok, _ := m.Get(ctx, key); ok {
//		return v
//	}
//
// TTL arguments: DefaultTTL uses the tier default, NoExpiration never
// expires, zero expires at once. An entry is dead once now reaches its expiry.
package cache
