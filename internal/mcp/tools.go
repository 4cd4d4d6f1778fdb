// ABOUTME: tools/list and tools/call handlers with per-principal authorization
// ABOUTME: Cacheable tool results are served from the shared cache by argument fingerprint

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2389/tool-gateway/internal/audit"
	"github.com/2389/tool-gateway/internal/auth"
	"github.com/2389/tool-gateway/internal/cache"
	"github.com/2389/tool-gateway/internal/packs"
)

// MCPToolInfo represents an MCP tool definition.
type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Tools []MCPToolInfo `json:"tools"`
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// allowed reports whether p may run the tool.
func (s *Server) allowed(p *auth.Principal, def *packs.ToolDefinition) bool {
	return s.authz.CheckPermission(p.Roles, p.Permissions, def.Resource, def.Name, def.Action)
}

// handleToolsList lists the tools the principal may execute.
func (s *Server) handleToolsList(w http.ResponseWriter, req JSONRPCRequest, p *auth.Principal) {
	tools := s.router.Registry().ToolsFor(func(def *packs.ToolDefinition) bool {
		return s.allowed(p, def)
	})

	result := MCPListToolsResult{Tools: make([]MCPToolInfo, len(tools))}
	for i, tool := range tools {
		schema := tool.InputSchemaJSON
		if schema == "" {
			schema = `{"type":"object"}`
		}
		result.Tools[i] = MCPToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: json.RawMessage(schema),
		}
	}

	s.logger.Debug("tools/list", "count", len(tools), "user_id", p.UserID)
	s.sendJSONRPCResult(w, req.ID, result)
}

// handleToolsCall handles tools/call requests.
func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest, p *auth.Principal) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}
	if params.Name == "" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "tool name is required", nil)
		return
	}

	def := s.router.GetToolDefinition(params.Name)
	if def == nil {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "tool not found", nil)
		return
	}

	if !s.allowed(p, def) {
		s.logger.Warn("tool call denied", "tool_name", def.Name, "user_id", p.UserID)
		s.recordAudit(r.Context(), p, def.Name, false, map[string]any{"reason": "permission denied"})
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "permission denied", nil)
		return
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	cacheKey := s.cacheKey(def, args)
	if cacheKey != "" {
		if out, ok, err := s.cache.Get(r.Context(), cacheKey); err != nil {
			s.logger.Warn("tool cache lookup failed", "tool_name", def.Name, "error", err)
		} else if ok {
			s.logger.Debug("tools/call cache hit", "tool_name", def.Name)
			s.sendJSONRPCResult(w, req.ID, MCPCallToolResult{
				Content: []MCPContent{{Type: "text", Text: string(out)}},
			})
			return
		}
	}

	start := time.Now()
	out, err := s.router.RouteToolCall(r.Context(), def.Name, args, p.UserID)
	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveTool(def.Name, err == nil, elapsed)
	}
	s.recordAudit(r.Context(), p, def.Name, err == nil, map[string]any{"duration_ms": elapsed.Milliseconds()})

	if err != nil {
		var failure *packs.ToolFailure
		if errors.As(err, &failure) {
			// Handler errors are tool-level results, not protocol errors.
			s.logger.Debug("tool returned error", "tool_name", def.Name, "error", failure.Err)
			s.sendJSONRPCResult(w, req.ID, MCPCallToolResult{
				Content: []MCPContent{{Type: "text", Text: failure.Err.Error()}},
				IsError: true,
			})
			return
		}
		s.handleToolError(w, req.ID, def.Name, err)
		return
	}

	if cacheKey != "" {
		if err := s.cache.Set(r.Context(), cacheKey, out, def.CacheTTL); err != nil {
			s.logger.Warn("tool cache store failed", "tool_name", def.Name, "error", err)
		}
	}

	s.logger.Debug("tools/call complete", "tool_name", def.Name, "duration", elapsed)
	s.sendJSONRPCResult(w, req.ID, MCPCallToolResult{
		Content: []MCPContent{{Type: "text", Text: string(out)}},
	})
}

// cacheKey returns "" when the result must not be cached. Arguments are
// decoded first so key order in the request does not matter.
func (s *Server) cacheKey(def *packs.ToolDefinition, args json.RawMessage) string {
	if s.cache == nil || !def.Cacheable {
		return ""
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return ""
	}
	key, err := cache.Fingerprint("tool", def.Name, decoded)
	if err != nil {
		return ""
	}
	return key
}

func (s *Server) recordAudit(ctx context.Context, p *auth.Principal, tool string, ok bool, extra map[string]any) {
	evt := audit.Event{
		Type:    audit.EventToolExecute,
		Actor:   p.UserID,
		Outcome: audit.OutcomeOf(ok),
		Context: map[string]any{"tool": tool},
	}
	for k, v := range extra {
		evt.Context[k] = v
	}
	if err := s.audit.Log(ctx, evt); err != nil {
		s.logger.Warn("failed to write audit event", "error", err)
	}
}

// handleToolError maps routing errors onto JSON-RPC errors.
func (s *Server) handleToolError(w http.ResponseWriter, id json.RawMessage, toolName string, err error) {
	s.logger.Warn("tool execution failed", "tool_name", toolName, "error", err)

	code := JSONRPCInternalError
	message := "tool execution failed"

	switch {
	case errors.Is(err, packs.ErrToolNotFound):
		code = JSONRPCInvalidParams
		message = "tool not found"
	case errors.Is(err, packs.ErrInvalidInput):
		code = JSONRPCInvalidParams
		message = err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		message = "tool execution timed out"
	case errors.Is(err, context.Canceled):
		message = "request cancelled"
	}

	s.sendJSONRPCError(w, id, code, message, nil)
}
