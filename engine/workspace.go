package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const seedIndexHTML = "<!doctype html><title>Vibe</title><h1>Vibe</h1><div id='app'></div>"

// WorkspacePatcher mutates a run's HTML workspace deterministically from the
// iteration ordinal. The patch is idempotent per (runID, iteration): the
// workspace carries an iteration fingerprint and re-applying the same
// ordinal's patch is a no-op.
type WorkspacePatcher struct {
	paths *Paths
}

// NewWorkspacePatcher creates a WorkspacePatcher writing under the given
// Paths.
func NewWorkspacePatcher(paths *Paths) *WorkspacePatcher {
	return &WorkspacePatcher{paths: paths}
}

// EnsureIndex seeds the workspace entry point if it does not exist yet and
// returns its path.
func (w *WorkspacePatcher) EnsureIndex(runID string) (string, error) {
	dir := w.paths.WorkspaceDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("stat workspace index: %w", err)
		}
		if err := os.WriteFile(index, []byte(seedIndexHTML), 0o644); err != nil {
			return "", fmt.Errorf("seed workspace index: %w", err)
		}
	}
	return index, nil
}

func iterationMarker(iteration int) string {
	return fmt.Sprintf("\n<!-- iter:%d -->\n", iteration)
}

// ApplyPatch appends the iteration's marker to the workspace entry point,
// skipping when the marker is already present, and returns the entry path.
func (w *WorkspacePatcher) ApplyPatch(runID string, iteration int) (string, error) {
	index, err := w.EnsureIndex(runID)
	if err != nil {
		return "", err
	}
	html, err := os.ReadFile(index)
	if err != nil {
		return "", fmt.Errorf("read workspace index: %w", err)
	}
	marker := iterationMarker(iteration)
	if !strings.Contains(string(html), marker) {
		patched := append(html, []byte(marker)...)
		if err := os.WriteFile(index, patched, 0o644); err != nil {
			return "", fmt.Errorf("write workspace index: %w", err)
		}
	}
	return index, nil
}
