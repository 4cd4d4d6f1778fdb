// ABOUTME: Tests for the pack registry including registration, collision detection, and filtering.
// ABOUTME: Validates thread-safe operations and tool lookup functionality.

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/2389/tool-gateway/internal/authz"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler(out string) ToolHandler {
	return func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(out), nil
	}
}

// createTestTool creates a BuiltinTool for testing.
func createTestTool(name string, action authz.Action) *BuiltinTool {
	return &BuiltinTool{
		Definition: &ToolDefinition{
			Name:            name,
			Description:     "test tool " + name,
			InputSchemaJSON: `{"type": "object"}`,
			Resource:        authz.ResourceFunction,
			Action:          action,
		},
		Handler: okHandler(`{"ok": true}`),
	}
}

func TestRegistryRegisterBuiltinPack(t *testing.T) {
	t.Run("registers tools successfully", func(t *testing.T) {
		registry := NewRegistry(quietLogger())

		err := registry.RegisterBuiltinPack(&BuiltinPack{
			ID:    "builtin:test",
			Tools: []*BuiltinTool{createTestTool("tool-a", authz.ActionRead), createTestTool("tool-b", authz.ActionUpdate)},
		})
		if err != nil {
			t.Fatalf("RegisterBuiltinPack: %v", err)
		}

		if !registry.IsBuiltin("tool-a") || !registry.IsBuiltin("tool-b") {
			t.Error("expected both tools to be registered")
		}
		tool := registry.GetBuiltinTool("tool-b")
		if tool == nil {
			t.Fatal("expected to find tool-b")
		}
		if tool.Definition.Action != authz.ActionUpdate {
			t.Errorf("unexpected action: %s", tool.Definition.Action)
		}
	})

	t.Run("rejects collision with another pack", func(t *testing.T) {
		registry := NewRegistry(quietLogger())
		if err := registry.RegisterBuiltinPack(&BuiltinPack{ID: "p1", Tools: []*BuiltinTool{createTestTool("shared", authz.ActionRead)}}); err != nil {
			t.Fatalf("first register: %v", err)
		}

		err := registry.RegisterBuiltinPack(&BuiltinPack{ID: "p2", Tools: []*BuiltinTool{
			createTestTool("unique", authz.ActionRead),
			createTestTool("shared", authz.ActionRead),
		}})
		if !errors.Is(err, ErrToolCollision) {
			t.Fatalf("expected ErrToolCollision, got %v", err)
		}
		if registry.IsBuiltin("unique") {
			t.Error("no tool from a rejected pack should be registered")
		}
	})

	t.Run("rejects duplicate names within a pack", func(t *testing.T) {
		registry := NewRegistry(quietLogger())
		err := registry.RegisterBuiltinPack(&BuiltinPack{ID: "p", Tools: []*BuiltinTool{
			createTestTool("dup", authz.ActionRead),
			createTestTool("dup", authz.ActionRead),
		}})
		if !errors.Is(err, ErrToolCollision) {
			t.Fatalf("expected ErrToolCollision, got %v", err)
		}
	})

	t.Run("rejects duplicate pack id", func(t *testing.T) {
		registry := NewRegistry(quietLogger())
		if err := registry.RegisterBuiltinPack(&BuiltinPack{ID: "p"}); err != nil {
			t.Fatalf("first register: %v", err)
		}
		if err := registry.RegisterBuiltinPack(&BuiltinPack{ID: "p"}); !errors.Is(err, ErrPackAlreadyRegistered) {
			t.Fatalf("expected ErrPackAlreadyRegistered, got %v", err)
		}
	})
}

func TestRegistryUnregisterPack(t *testing.T) {
	registry := NewRegistry(quietLogger())
	if err := registry.RegisterBuiltinPack(&BuiltinPack{ID: "p", Tools: []*BuiltinTool{createTestTool("a", authz.ActionRead)}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	registry.UnregisterPack("p")
	registry.UnregisterPack("missing")

	if registry.IsBuiltin("a") {
		t.Error("tool should be gone after unregister")
	}
	if err := registry.RegisterBuiltinPack(&BuiltinPack{ID: "p", Tools: []*BuiltinTool{createTestTool("a", authz.ActionRead)}}); err != nil {
		t.Errorf("re-register after unregister: %v", err)
	}
}

func TestRegistryGetAllToolsSorted(t *testing.T) {
	registry := NewRegistry(quietLogger())
	if err := registry.RegisterBuiltinPack(&BuiltinPack{ID: "p1", Tools: []*BuiltinTool{createTestTool("zeta", authz.ActionRead)}}); err != nil {
		t.Fatal(err)
	}
	if err := registry.RegisterBuiltinPack(&BuiltinPack{ID: "p2", Tools: []*BuiltinTool{
		createTestTool("alpha", authz.ActionRead),
		createTestTool("mid", authz.ActionExecute),
	}}); err != nil {
		t.Fatal(err)
	}

	tools := registry.GetAllTools()
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, name := range want {
		if tools[i].Name != name {
			t.Errorf("tools[%d] = %s, want %s", i, tools[i].Name, name)
		}
	}

	packs := registry.ListPacks()
	if len(packs) != 2 || packs[0].ID != "p1" || packs[1].ToolNames[0] != "alpha" {
		t.Errorf("unexpected ListPacks: %+v", packs)
	}
}

func TestRegistryToolsFor(t *testing.T) {
	registry := NewRegistry(quietLogger())
	if err := registry.RegisterBuiltinPack(&BuiltinPack{ID: "p", Tools: []*BuiltinTool{
		createTestTool("reader", authz.ActionRead),
		createTestTool("writer", authz.ActionUpdate),
	}}); err != nil {
		t.Fatal(err)
	}

	readOnly := registry.ToolsFor(func(d *ToolDefinition) bool { return d.Action == authz.ActionRead })
	if len(readOnly) != 1 || readOnly[0].Name != "reader" {
		t.Errorf("unexpected filtered tools: %+v", readOnly)
	}

	none := registry.ToolsFor(func(*ToolDefinition) bool { return false })
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", none)
	}
}

func TestRegistryClose(t *testing.T) {
	registry := NewRegistry(quietLogger())
	if err := registry.RegisterBuiltinPack(&BuiltinPack{ID: "p", Tools: []*BuiltinTool{createTestTool("a", authz.ActionRead)}}); err != nil {
		t.Fatal(err)
	}
	registry.Close()
	if len(registry.GetAllTools()) != 0 {
		t.Error("expected empty registry after Close")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewRegistry(quietLogger())
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("tool-%d", i)
			if err := registry.RegisterBuiltinPack(&BuiltinPack{ID: name, Tools: []*BuiltinTool{createTestTool(name, authz.ActionRead)}}); err != nil {
				t.Errorf("register %s: %v", name, err)
			}
		}(i)
		go func() {
			defer wg.Done()
			_ = registry.GetAllTools()
			_ = registry.IsBuiltin("tool-0")
		}()
	}
	wg.Wait()

	if got := len(registry.GetAllTools()); got != 10 {
		t.Errorf("expected 10 tools, got %d", got)
	}
}
