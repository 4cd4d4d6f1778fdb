// Package gateway is the composition root of the tool-gateway server.
//
// # Overview
//
// New opens the SQLite store and builds every component from config:
// auth providers and manager, the authz role table, the two-tier cache,
// the audit sink, the builtin tool packs with their router, the adapter
// manager, and the MCP server. Run serves HTTP until the context is
// canceled and then shuts everything down in reverse order.
//
// # HTTP API
//
// Public:
//
//   - GET /health - liveness
//   - GET /whoami - registered auth providers
//   - GET /metrics - Prometheus exposition (when enabled)
//   - POST /api/auth/login - exchange credentials for a token (rate limited per client IP)
//   - POST /api/auth/refresh - exchange a live token for a new one
//   - /mcp - JSON-RPC tool endpoint; authenticates each request itself
//
// Bearer token required:
//
//   - POST /api/auth/logout - revoke the presented token where revocation is supported
//   - GET /api/protected - echo the caller's principal
//   - GET /api/adapters - list adapter instances the caller may read
//   - POST /api/adapters/{type} - create an adapter instance (adapter:{type}:create)
//   - GET /api/adapters/{id} - instance metadata and health
//   - DELETE /api/adapters/{id} - shut an instance down (adapter:{type}:delete)
//   - POST /api/adapters/{id}/execute - run a request (adapter:{type}:execute)
//   - GET /api/cache/stats - cache counters (system:cache:read)
//   - DELETE /api/cache - clear both cache tiers (system:cache:delete)
//
// Read-only adapter requests (REST GET, row-returning SQL) are cached under a
// fingerprint of the instance and request; responses carry "cached".
//
// # Middleware
//
// Every request gets an X-Request-ID (ULID unless the client sent one),
// security headers, optional CORS, Prometheus instrumentation and an access
// log line. Panics become a 500 JSON response and an error audit event.
package gateway
