// Package workspace manages per-run scratch directories.
//
// Every pipeline run owns exactly one Workspace. Input artifacts for each
// stage are written into it, and the whole tree is removed when the run ends.
//
// Directory layout:
//
//	{base}/
//	└── orchestrator_{random}/       ← one per run
//	    ├── input_clean_text.txt
//	    └── input_summarization.txt
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

// ErrResource is wrapped by every filesystem failure in this package.
var ErrResource = errors.New("workspace error")

const (
	dirPrefix = "orchestrator_"
	dirPerm   = 0700
	filePerm  = 0600
)

// Manager allocates workspaces under a base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a manager rooted at baseDir.
// An empty baseDir uses the OS temp directory.
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// BaseDir returns the directory new workspaces are created under.
func (m *Manager) BaseDir() string {
	if m.baseDir == "" {
		return os.TempDir()
	}
	return m.baseDir
}

// Create allocates a fresh, uniquely named workspace.
func (m *Manager) Create() (*Workspace, error) {
	if m.baseDir != "" {
		if err := os.MkdirAll(m.baseDir, dirPerm); err != nil {
			return nil, fmt.Errorf("%w: create base directory %s: %v", ErrResource, m.baseDir, err)
		}
	}

	dir, err := os.MkdirTemp(m.baseDir, dirPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("%w: create workspace: %v", ErrResource, err)
	}

	// MkdirTemp already uses 0700; resolve to an absolute path for bind mounts.
	abs, err := filepath.Abs(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: resolve workspace path: %v", ErrResource, err)
	}

	return &Workspace{dir: abs}, nil
}

// Workspace is a scratch directory exclusively owned by one run.
type Workspace struct {
	dir string

	mu       sync.Mutex
	released bool
}

// Dir returns the absolute workspace path.
func (w *Workspace) Dir() string {
	return w.dir
}

// InputPath returns the artifact path for task inside the workspace.
func (w *Workspace) InputPath(task registry.TaskID) string {
	return filepath.Join(w.dir, "input_"+string(task)+".txt")
}

// Stage writes text verbatim to the task's input artifact and returns its path.
func (w *Workspace) Stage(task registry.TaskID, text string) (string, error) {
	if err := registry.ValidateName(string(task)); err != nil {
		return "", fmt.Errorf("%w: stage %q: %v", ErrResource, task, err)
	}

	w.mu.Lock()
	released := w.released
	w.mu.Unlock()
	if released {
		return "", fmt.Errorf("%w: workspace %s already released", ErrResource, w.dir)
	}

	path := w.InputPath(task)
	if err := os.WriteFile(path, []byte(text), filePerm); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrResource, path, err)
	}
	return path, nil
}

// Release removes the workspace and everything in it.
// It is safe to call more than once; only the first call touches the disk.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil
	}
	w.released = true

	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrResource, w.dir, err)
	}
	return nil
}
