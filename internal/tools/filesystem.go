// ABOUTME: Filesystem pack: create directories, write, read and list files inside the sandbox
// ABOUTME: Read-only tools are cacheable for a short TTL

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/2389/tool-gateway/internal/authz"
	"github.com/2389/tool-gateway/internal/packs"
)

// FilesystemPackID identifies the filesystem pack.
const FilesystemPackID = "builtin:filesystem"

// Tool names.
const (
	ToolCreateDirectory = "filesystem_create_directory"
	ToolWriteFile       = "filesystem_write_file"
	ToolReadFile        = "filesystem_read_file"
	ToolListDirectory   = "filesystem_list_directory"
)

// readCacheTTL bounds how stale a cached read or listing can be after a write.
const readCacheTTL = 5 * time.Second

// MaxReadBytes caps filesystem_read_file output.
const MaxReadBytes = 1 << 20

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrDirectoryNotFound = errors.New("directory not found")
	ErrFileTooLarge      = fmt.Errorf("file exceeds %d bytes", MaxReadBytes)
)

// FilesystemPack creates the filesystem tools confined to sb.
func FilesystemPack(sb *Sandbox) *packs.BuiltinPack {
	h := &fsHandlers{sandbox: sb}
	return &packs.BuiltinPack{
		ID: FilesystemPackID,
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:            ToolCreateDirectory,
					Description:     "Create a directory (and parents) inside the workspace",
					InputSchemaJSON: `{"type":"object","properties":{"path":{"type":"string","minLength":1}},"required":["path"]}`,
					Resource:        authz.ResourceFunction,
					Action:          authz.ActionCreate,
				},
				Handler: h.CreateDirectory,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:            ToolWriteFile,
					Description:     "Write text content to a file inside the workspace, creating parent directories",
					InputSchemaJSON: `{"type":"object","properties":{"path":{"type":"string","minLength":1},"content":{"type":"string"}},"required":["path","content"]}`,
					Resource:        authz.ResourceFunction,
					Action:          authz.ActionUpdate,
				},
				Handler: h.WriteFile,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:            ToolReadFile,
					Description:     "Read a text file inside the workspace",
					InputSchemaJSON: `{"type":"object","properties":{"path":{"type":"string","minLength":1}},"required":["path"]}`,
					Resource:        authz.ResourceFunction,
					Action:          authz.ActionRead,
					Cacheable:       true,
					CacheTTL:        readCacheTTL,
				},
				Handler: h.ReadFile,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:            ToolListDirectory,
					Description:     "List a directory inside the workspace as [\"name (file|dir)\", ...]",
					InputSchemaJSON: `{"type":"object","properties":{"path":{"type":"string"}}}`,
					Resource:        authz.ResourceFunction,
					Action:          authz.ActionRead,
					Cacheable:       true,
					CacheTTL:        readCacheTTL,
				},
				Handler: h.ListDirectory,
			},
		},
	}
}

type fsHandlers struct {
	sandbox *Sandbox
}

type pathInput struct {
	Path string `json:"path"`
}

type writeFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// messageResult is the common shape of tools that only report what they did.
type messageResult struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

func (h *fsHandlers) CreateDirectory(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	var in pathInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	target, err := h.sandbox.Resolve(in.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return json.Marshal(messageResult{
		Message: fmt.Sprintf("Directory '%s' created.", in.Path),
		Path:    in.Path,
	})
}

func (h *fsHandlers) WriteFile(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	var in writeFileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	target, err := h.sandbox.Resolve(in.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.WriteFile(target, []byte(in.Content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return json.Marshal(messageResult{
		Message: fmt.Sprintf("File '%s' written successfully.", in.Path),
		Path:    in.Path,
	})
}

type readFileResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

func (h *fsHandlers) ReadFile(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	var in pathInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	target, err := h.sandbox.Resolve(in.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, in.Path)
	}
	if info.Size() > MaxReadBytes {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, in.Path)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return json.Marshal(readFileResult{Path: in.Path, Content: string(data), Size: info.Size()})
}

func (h *fsHandlers) ListDirectory(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	var in pathInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	target, err := h.sandbox.Resolve(in.Path)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, in.Path)
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	items := make([]string, 0, len(entries))
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "dir"
		}
		items = append(items, fmt.Sprintf("%s (%s)", e.Name(), kind))
	}
	return json.Marshal(items)
}
