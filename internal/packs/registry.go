// ABOUTME: Thread-safe registry for builtin tool packs.
// ABOUTME: Manages pack registration, collision detection, tool lookup and caller filtering.

package packs

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrPackAlreadyRegistered indicates a pack with the same ID is already registered.
var ErrPackAlreadyRegistered = errors.New("pack already registered")

// ErrToolCollision indicates a tool name already exists in another pack.
var ErrToolCollision = errors.New("tool name collision")

// Registry maintains the registered builtin packs and their tools.
type Registry struct {
	mu       sync.RWMutex
	packs    map[string]int           // pack id -> tool count
	builtins map[string]*builtinEntry // tool name -> entry
	logger   *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		packs:    make(map[string]int),
		builtins: make(map[string]*builtinEntry),
		logger:   logger,
	}
}

// RegisterBuiltinPack registers a pack of built-in tools that execute in-process.
// Nothing is registered if the pack ID is taken or any tool name collides.
func (r *Registry) RegisterBuiltinPack(pack *BuiltinPack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.packs[pack.ID]; exists {
		return fmt.Errorf("%w: %s", ErrPackAlreadyRegistered, pack.ID)
	}

	seen := make(map[string]struct{}, len(pack.Tools))
	for _, tool := range pack.Tools {
		name := tool.Definition.Name
		if existing, exists := r.builtins[name]; exists {
			return fmt.Errorf("%w: tool '%s' already registered by pack '%s'", ErrToolCollision, name, existing.PackID)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: tool '%s' appears twice in pack '%s'", ErrToolCollision, name, pack.ID)
		}
		seen[name] = struct{}{}
	}

	for _, tool := range pack.Tools {
		r.builtins[tool.Definition.Name] = &builtinEntry{
			Tool:   tool,
			PackID: pack.ID,
		}
	}
	r.packs[pack.ID] = len(pack.Tools)

	r.logger.Info("builtin pack registered",
		"pack_id", pack.ID,
		"tool_count", len(pack.Tools),
		"total_tools", len(r.builtins),
	)

	return nil
}

// UnregisterPack removes a pack and all its tools from the registry.
func (r *Registry) UnregisterPack(packID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.packs[packID]; !exists {
		return
	}
	for name, entry := range r.builtins {
		if entry.PackID == packID {
			delete(r.builtins, name)
		}
	}
	delete(r.packs, packID)

	r.logger.Info("builtin pack unregistered", "pack_id", packID, "total_tools", len(r.builtins))
}

// GetBuiltinTool returns a builtin tool by name, or nil if not found.
func (r *Registry) GetBuiltinTool(name string) *BuiltinTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.builtins[name]; ok {
		return entry.Tool
	}
	return nil
}

// IsBuiltin returns true if the tool name is registered.
func (r *Registry) IsBuiltin(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builtins[name]
	return ok
}

// PackInfo contains public information about a registered pack.
type PackInfo struct {
	ID        string
	ToolNames []string
}

// ListPacks returns every registered pack sorted by ID, with sorted tool names.
func (r *Registry) ListPacks() []PackInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byPack := make(map[string][]string, len(r.packs))
	for id := range r.packs {
		byPack[id] = []string{}
	}
	for name, entry := range r.builtins {
		byPack[entry.PackID] = append(byPack[entry.PackID], name)
	}

	result := make([]PackInfo, 0, len(byPack))
	for id, names := range byPack {
		sort.Strings(names)
		result = append(result, PackInfo{ID: id, ToolNames: names})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetAllTools returns every tool definition sorted by name.
func (r *Registry) GetAllTools() []*ToolDefinition {
	return r.ToolsFor(nil)
}

// ToolsFor returns the tool definitions allow accepts, sorted by name.
// A nil allow accepts every tool.
func (r *Registry) ToolsFor(allow func(*ToolDefinition) bool) []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*ToolDefinition, 0, len(r.builtins))
	for _, entry := range r.builtins {
		if allow == nil || allow(entry.Tool.Definition) {
			result = append(result, entry.Tool.Definition)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Close clears the registry.
// This should be called during graceful shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	builtinCount := len(r.builtins)
	r.packs = make(map[string]int)
	r.builtins = make(map[string]*builtinEntry)

	r.logger.Info("registry closed", "builtins_cleared", builtinCount)
}
