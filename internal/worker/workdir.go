package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// screenshotsSubdir is the only directory the driver may create files in.
const screenshotsSubdir = "screenshots"

// Workdir is the per-task working directory owned exclusively by one worker:
// <root>/<agent_id>/<task_id>/<timestamp> with an empty screenshots/
// subdirectory.
type Workdir struct {
	Path     string
	baseline map[string]struct{}
}

// PrepareWorkdir creates a fresh working directory for a task and records
// the screenshot baseline (empty by construction).
func PrepareWorkdir(root, agentID string, taskID int64, now time.Time) (*Workdir, error) {
	stamp := fmt.Sprintf("%s_%06d", now.UTC().Format("20060102_150405"), now.Nanosecond()/1000)
	path := filepath.Join(root, agentID, fmt.Sprintf("%d", taskID), stamp)

	if err := os.MkdirAll(filepath.Join(path, screenshotsSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	w := &Workdir{Path: path}
	baseline, err := w.listScreenshots()
	if err != nil {
		return nil, err
	}
	w.baseline = baseline
	return w, nil
}

// ScreenshotsDir returns the directory the driver writes screenshots into.
func (w *Workdir) ScreenshotsDir() string {
	return filepath.Join(w.Path, screenshotsSubdir)
}

// NewScreenshots returns the filenames created since the baseline snapshot,
// sorted for deterministic upload order.
func (w *Workdir) NewScreenshots() ([]string, error) {
	after, err := w.listScreenshots()
	if err != nil {
		return nil, err
	}
	var names []string
	for name := range after {
		if _, ok := w.baseline[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Cleanup removes the working directory tree.
func (w *Workdir) Cleanup() error {
	return os.RemoveAll(w.Path)
}

func (w *Workdir) listScreenshots() (map[string]struct{}, error) {
	entries, err := os.ReadDir(w.ScreenshotsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("list screenshots: %w", err)
	}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names[e.Name()] = struct{}{}
		}
	}
	return names, nil
}
