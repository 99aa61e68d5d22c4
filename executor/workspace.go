package executor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WorkspacePrefix marks directories created by the engine under its root.
// PruneWorkspaces only ever touches entries carrying it.
const WorkspacePrefix = "arenaengine-ws-"

// DefaultWorkspaceRoot is a directory of its own under the system temp dir,
// so pruning never walks a directory shared with other programs.
func DefaultWorkspaceRoot() string {
	return filepath.Join(os.TempDir(), "arenaengine")
}

// workspace is the directory owned by a single request.
type workspace struct {
	id  string
	dir string
}

func newWorkspace(root, id string) (*workspace, error) {
	dir := filepath.Join(root, WorkspacePrefix+id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &workspace{id: id, dir: dir}, nil
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

// write stores content under name and returns the absolute path.
func (w *workspace) write(name, content string) (string, error) {
	p := w.path(name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return p, nil
}

// PruneWorkspaces removes workspace directories under root that were last
// modified more than olderThan ago. It returns the number removed.
func PruneWorkspaces(root string, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read workspace root: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var firstErr error
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), WorkspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
