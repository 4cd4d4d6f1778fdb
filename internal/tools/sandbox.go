// ABOUTME: Filesystem sandbox that confines tool paths to a base directory
// ABOUTME: Rejects absolute paths, dot-dot escapes and symlinks that point outside

package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned for any path that resolves outside the sandbox.
var ErrPathTraversal = errors.New("path traversal outside of sandbox is not allowed")

// Sandbox resolves caller-supplied relative paths under a fixed root.
type Sandbox struct {
	root string
}

// NewSandbox creates the base directory if needed and returns a sandbox rooted at
// its fully resolved path.
func NewSandbox(baseDir string) (*Sandbox, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("sandbox base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sandbox directory: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox directory: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox directory: %w", err)
	}
	return &Sandbox{root: root}, nil
}

// Root returns the absolute sandbox directory.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve maps rel to an absolute path inside the sandbox. An empty rel is the root.
func (s *Sandbox) Resolve(rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}

	target := filepath.Join(s.root, rel)
	if !s.contains(target) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}

	// Follow symlinks on the part of the path that exists.
	existing := target
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
	realPath, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", rel, err)
	}
	resolved := filepath.Join(append([]string{realPath}, rest...)...)
	if !s.contains(resolved) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}
	return resolved, nil
}

func (s *Sandbox) contains(p string) bool {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
