// Package workspace manages the sanduku runtime directory structure.
// All runtime state (tool descriptors, session workspaces, session
// databases, logs) is consolidated under a single workspace root, making
// sanduku portable.
//
// Default workspace: ~/.sanduku/workspace (configurable via config or
// SANDUKU_WORKSPACE env var).
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Default workspace location relative to user home directory.
const defaultRelativePath = ".sanduku/workspace"

// Workspace manages all sanduku runtime directories and derived paths.
type Workspace struct {
	Root string

	mu      sync.Mutex
	created map[string]bool // tracks which directories have been ensured
}

// New creates a Workspace rooted at the given path.
// It resolves ~ to the user's home directory and creates the root directory
// with appropriate permissions if it does not exist.
func New(root string) (*Workspace, error) {
	resolved, err := resolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root %q: %w", root, err)
	}

	w := &Workspace{
		Root:    resolved,
		created: make(map[string]bool),
	}

	if err := w.ensureDir(resolved, 0750); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}

	return w, nil
}

// Default creates a Workspace at ~/.sanduku/workspace.
func Default() (*Workspace, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	return New(filepath.Join(home, defaultRelativePath))
}

// --- Top-level directory accessors ---

// ToolsDir returns <root>/tools/. Stores tool descriptor subdirectories,
// one TOOL.md per tool.
func (w *Workspace) ToolsDir() string {
	return w.dir("tools")
}

// SessionsDir returns <root>/sessions/. Stores per-session workspaces.
func (w *Workspace) SessionsDir() string {
	return w.dir("sessions")
}

// LogsDir returns <root>/logs/. Application log files.
func (w *Workspace) LogsDir() string {
	return w.dir("logs")
}

// --- Derived paths ---

// ConfigPath returns <root>/config.json.
func (w *Workspace) ConfigPath() string {
	return filepath.Join(w.Root, "config.json")
}

// SeccompProfilePath returns <root>/seccomp-profile.json. The file is
// optional; the executor applies it only when it exists.
func (w *Workspace) SeccompProfilePath() string {
	return filepath.Join(w.Root, "seccomp-profile.json")
}

// --- Session-scoped paths ---

// SessionDir returns <root>/sessions/<sessionID>/. This directory is the
// root every file operation for that session is confined to. Session
// directories are deleted by sweeps, so creation bypasses the ensure
// cache and runs every call.
func (w *Workspace) SessionDir(sessionID string) string {
	p := filepath.Join(w.SessionsDir(), sanitizeName(sessionID))
	_ = os.MkdirAll(p, 0750)
	return p
}

// SessionDBPath returns <root>/sessions/<sessionID>/session.db.
// The database file is created lazily by the storage manager on first
// relational operation.
func (w *Workspace) SessionDBPath(sessionID string) string {
	return filepath.Join(w.SessionDir(sessionID), "session.db")
}

// EnsureAll creates all standard workspace directories.
// Call this during first startup.
func (w *Workspace) EnsureAll() error {
	dirs := []string{
		w.ToolsDir(),
		w.SessionsDir(),
		w.LogsDir(),
	}
	for _, d := range dirs {
		if err := w.ensureDir(d, 0750); err != nil {
			return err
		}
	}
	return nil
}

// --- Internal helpers ---

// dir returns an absolute path under the workspace root and ensures the directory exists.
func (w *Workspace) dir(name string) string {
	p := filepath.Join(w.Root, name)
	_ = w.ensureDir(p, 0750)
	return p
}

// ensureDir creates a directory if it doesn't already exist.
// Uses a cache to avoid redundant stat/mkdir calls.
func (w *Workspace) ensureDir(path string, perm os.FileMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.created[path] {
		return nil
	}

	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	w.created[path] = true
	return nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// sanitizeName replaces path separator characters to prevent directory traversal.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" {
		name = "_"
	}
	return name
}
