// Package mcp implements the Model Context Protocol server for the gateway's tools.
//
// # Protocol
//
// JSON-RPC 2.0 over HTTP POST at /mcp (Streamable HTTP transport, no SSE).
// Request bodies are limited to 1MB.
//
//   - initialize creates a session and returns its id in Mcp-Session-Id
//   - notifications (no id) are accepted with 202 and no body
//   - tools/list returns the tools the caller is allowed to execute
//   - tools/call runs a tool
//   - DELETE /mcp terminates a session; only its creator may do so
//
// Every request after initialize must carry Mcp-Session-Id, and the session
// must belong to the calling principal.
//
// # Authentication
//
//	Authorization: Bearer <token>
//
// Tokens are validated through the auth manager. With RequireAuth unset a
// request without a token runs as an anonymous principal that holds no roles.
//
// # Authorization
//
// A tool is visible and callable when the principal's roles or direct
// permissions grant the tool's action on function:<tool name>. Denied calls
// fail with -32600 "permission denied" and are audited.
//
// # Results
//
// Tool output is returned as a single text content item. Errors returned by
// a tool handler become isError results; unknown tools and schema violations
// are -32602 protocol errors. Results of cacheable tools are stored in the
// shared cache under a fingerprint of the tool name and its arguments.
package mcp
