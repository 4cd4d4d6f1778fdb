// Package packs provides the tool registry and router behind the MCP endpoint.
//
// # Overview
//
// Tools are grouped into builtin packs that execute in the gateway process.
// Each tool carries a ToolDefinition describing its JSON input schema and the
// authz resource type and action a caller needs to run it.
//
// # Architecture
//
//   - Registry: tracks registered packs and their tools, rejecting name collisions
//   - Router: validates input against the tool schema and dispatches to the handler
//   - SchemaValidator: compiles JSON Schemas once and keeps them in an LRU
//
// The builtin packs themselves live in internal/tools.
//
// # Tool Routing
//
// When a caller invokes a tool, the router:
//
//  1. Looks up the tool by name (ErrToolNotFound)
//  2. Validates the input against the tool's schema (ErrInvalidInput)
//  3. Runs the handler under the tool or router timeout
//  4. Returns the JSON result, or ErrToolFailed wrapping the handler error
//
// Tool names are globally unique across packs.
//
// # Usage
//
//	registry := packs.NewRegistry(logger)
//	router, err := packs.NewRouter(packs.RouterConfig{Registry: registry, Logger: logger})
//	if err := registry.RegisterBuiltinPack(tools.FilesystemPack(sandbox)); err != nil { ... }
//	out, err := router.RouteToolCall(ctx, "filesystem_read_file", input, userID)
package packs
