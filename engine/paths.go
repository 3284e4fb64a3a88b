package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// runIDTimeLayout keeps run identifiers lexically time-ordered.
const runIDTimeLayout = "2006-01-02T15-04-05Z"

// NewRunID generates a run identifier of the form
// <UTC timestamp>_<4-char suffix>. The timestamp makes identifiers sortable;
// the suffix, drawn from a fresh UUID, makes same-second starts collision
// resistant.
func NewRunID() string {
	ts := time.Now().UTC().Format(runIDTimeLayout)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return fmt.Sprintf("%s_%s", ts, suffix)
}

// Paths derives the on-disk locations a run owns: its event log, workspace,
// and screenshot directory, all addressed by the run identifier.
type Paths struct {
	Root string
}

// NewPaths creates a Paths rooted at the given storage directory.
func NewPaths(root string) *Paths {
	if root == "" {
		root = "storage"
	}
	return &Paths{Root: root}
}

// RunsDir is the directory holding all run directories.
func (p *Paths) RunsDir() string {
	return filepath.Join(p.Root, "runs")
}

// RunDir is the directory owned by one run.
func (p *Paths) RunDir(runID string) string {
	return filepath.Join(p.RunsDir(), runID)
}

// EventsPath is the run's append-only event log file.
func (p *Paths) EventsPath(runID string) string {
	return filepath.Join(p.RunDir(runID), "events.jsonl")
}

// WorkspaceDir is the run's mutable HTML workspace.
func (p *Paths) WorkspaceDir(runID string) string {
	return filepath.Join(p.RunDir(runID), "workspace")
}

// ScreenshotsDir is the run's screenshot output directory.
func (p *Paths) ScreenshotsDir(runID string) string {
	return filepath.Join(p.RunDir(runID), "screenshots")
}

// SnapPath is the screenshot file for one iteration.
func (p *Paths) SnapPath(runID string, iteration int) string {
	return filepath.Join(p.ScreenshotsDir(runID), fmt.Sprintf("snap_%d.png", iteration))
}

// ScreenshotURL is the locator the UI uses to fetch an iteration's
// screenshot through the static file mount.
func (p *Paths) ScreenshotURL(runID string, iteration int) string {
	return fmt.Sprintf("/static/runs/%s/screenshots/snap_%d.png", runID, iteration)
}
