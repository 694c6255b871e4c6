package anchor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shiftbot/internal/fault"
)

// Workspace guards a directory subtree. Every path handed to the file
// tools resolves through it; anything escaping the root fails with
// PathEscapeError. The root itself is absolute and symlink-resolved at
// construction so later containment checks compare canonical forms.
type Workspace struct {
	root string
}

// NewWorkspace creates the root directory if needed and canonicalizes it.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing workspace root: %w", err)
	}
	return &Workspace{root: resolved}, nil
}

// Root returns the canonical workspace root.
func (ws *Workspace) Root() string {
	return ws.root
}

// Resolve maps a tool-supplied path (relative to the root, or absolute)
// to an absolute path, rejecting anything that resolves outside the root.
// Symlinks in the existing portion of the path are followed before the
// containment check so a link pointing out of the tree cannot smuggle
// reads or writes past the boundary.
func (ws *Workspace) Resolve(path string) (string, error) {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(ws.root, p)
	}
	p = filepath.Clean(p)

	if !ws.contains(p) {
		return "", &fault.PathEscapeError{Path: path}
	}

	resolved, err := resolveExisting(p)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	if !ws.contains(resolved) {
		return "", &fault.PathEscapeError{Path: path}
	}
	return p, nil
}

// ReadFile reads a workspace-scoped file.
func (ws *Workspace) ReadFile(path string) (string, error) {
	abs, err := ws.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile writes a workspace-scoped file, creating parent directories
// inside the workspace as needed.
func (ws *Workspace) WriteFile(path, content string) error {
	abs, err := ws.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("creating parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (ws *Workspace) contains(abs string) bool {
	return abs == ws.root || strings.HasPrefix(abs, ws.root+string(filepath.Separator))
}

// resolveExisting follows symlinks in the longest existing prefix of p and
// rejoins the not-yet-existing remainder. New files have no inode to
// resolve, but their existing ancestors do.
func resolveExisting(p string) (string, error) {
	remainder := ""
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if remainder == "" {
				return resolved, nil
			}
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		remainder = filepath.Join(filepath.Base(cur), remainder)
		cur = parent
	}
}
