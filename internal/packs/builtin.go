// ABOUTME: Tool definitions and in-process builtin tools grouped into packs.
// ABOUTME: Each definition names the authz resource and action a caller needs to run it.

package packs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2389/tool-gateway/internal/authz"
)

// ToolHandler is a function that executes a built-in tool.
// It receives the calling user's ID and the tool input as JSON.
// Returns the result as JSON or an error.
type ToolHandler func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error)

// ToolDefinition describes a tool to MCP clients and to the authorizer.
type ToolDefinition struct {
	Name            string
	Description     string
	InputSchemaJSON string

	// Resource and Action are checked against the caller with the tool name as resource id.
	Resource authz.ResourceType
	Action   authz.Action

	// Cacheable tools have their results stored under an input fingerprint
	// for CacheTTL, or the cache default when zero.
	Cacheable bool
	CacheTTL  time.Duration

	// Timeout overrides the router default when non-zero.
	Timeout time.Duration
}

// BuiltinTool represents a tool that executes in the gateway process.
type BuiltinTool struct {
	Definition *ToolDefinition
	Handler    ToolHandler
}

// BuiltinPack is a collection of built-in tools with a pack ID.
type BuiltinPack struct {
	ID    string
	Tools []*BuiltinTool
}

// builtinEntry stores a builtin tool with its pack ID for registry lookup.
type builtinEntry struct {
	Tool   *BuiltinTool
	PackID string
}
