// Package workspace provides request-scoped temporary directories.
//
// A Workspace is exclusively owned by one request: the request creates it,
// writes intermediate files into it, and must Close it on every exit path.
// Nothing else reads or writes another request's subtree.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is a uniquely named temporary directory holding intermediate
// files (copied PDF, rendered page images) for a single request.
type Workspace struct {
	dir    string
	closed bool
}

// New creates a workspace under baseDir. The directory name embeds a UUID so
// concurrent requests never collide.
func New(baseDir string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	dir := filepath.Join(baseDir, "sourcelens-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string { return w.dir }

// Path returns an absolute path for a file inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteFile writes data to a file inside the workspace and returns its path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	p := w.Path(name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return p, nil
}

// Close removes the workspace recursively. Safe to call more than once.
func (w *Workspace) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return os.RemoveAll(w.dir)
}
