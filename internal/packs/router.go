// ABOUTME: Routes tool calls to builtin handlers after validating input against the tool schema.
// ABOUTME: Applies per-tool or default timeouts and reports handler failures distinctly.

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrInvalidInput indicates the tool input failed schema validation.
var ErrInvalidInput = errors.New("invalid tool input")

// ErrToolFailed matches every ToolFailure.
var ErrToolFailed = errors.New("tool execution failed")

// ToolFailure carries the error a tool handler returned.
type ToolFailure struct {
	Tool string
	Err  error
}

func (e *ToolFailure) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

// Unwrap exposes both ErrToolFailed and the handler error to errors.Is.
func (e *ToolFailure) Unwrap() []error {
	return []error{ErrToolFailed, e.Err}
}

// DefaultTimeout is the default timeout for tool execution.
const DefaultTimeout = 30 * time.Second

// Router validates and dispatches tool calls.
type Router struct {
	registry  *Registry
	validator *SchemaValidator
	logger    *slog.Logger
	timeout   time.Duration
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry        *Registry
	Logger          *slog.Logger
	Timeout         time.Duration
	SchemaCacheSize int
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) (*Router, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	validator, err := NewSchemaValidator(cfg.SchemaCacheSize)
	if err != nil {
		return nil, err
	}

	return &Router{
		registry:  cfg.Registry,
		validator: validator,
		logger:    logger,
		timeout:   timeout,
	}, nil
}

type callResult struct {
	out json.RawMessage
	err error
}

// RouteToolCall validates input and runs the named tool.
// Returns ErrToolNotFound, ErrInvalidInput, ErrToolFailed or the context error on timeout.
func (r *Router) RouteToolCall(ctx context.Context, toolName string, input json.RawMessage, callerID string) (json.RawMessage, error) {
	builtin := r.registry.GetBuiltinTool(toolName)
	if builtin == nil {
		r.logger.Debug("tool not found in registry", "tool_name", toolName)
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, toolName)
	}

	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	if err := r.validator.Validate(builtin.Definition.InputSchemaJSON, input); err != nil {
		r.logger.Debug("tool input rejected", "tool_name", toolName, "error", err)
		return nil, err
	}

	timeout := r.timeout
	if builtin.Definition.Timeout > 0 {
		timeout = builtin.Definition.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.logger.Debug("dispatching to builtin", "tool_name", toolName, "caller_id", callerID)

	done := make(chan callResult, 1)
	go func() {
		out, err := builtin.Handler(ctx, callerID, input)
		done <- callResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			r.logger.Warn("builtin tool error", "tool_name", toolName, "caller_id", callerID, "error", res.err)
			return nil, &ToolFailure{Tool: toolName, Err: res.err}
		}
		return res.out, nil
	case <-ctx.Done():
		r.logger.Warn("tool call timed out or cancelled",
			"tool_name", toolName,
			"caller_id", callerID,
			"timeout", timeout,
			"error", ctx.Err(),
		)
		return nil, ctx.Err()
	}
}

// HasTool checks if a tool with the given name exists.
func (r *Router) HasTool(toolName string) bool {
	return r.registry.IsBuiltin(toolName)
}

// GetToolDefinition returns the tool definition for a given tool name, or nil.
func (r *Router) GetToolDefinition(toolName string) *ToolDefinition {
	if builtin := r.registry.GetBuiltinTool(toolName); builtin != nil {
		return builtin.Definition
	}
	return nil
}

// Registry returns the registry the router dispatches from.
func (r *Router) Registry() *Registry {
	return r.registry
}
