package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"evoforge/internal/logging"
)

// Session bridges a running task to the filesystem so other processes can
// observe and steer it. status.json and results.json are published under the
// task directory; control files dropped into control/ translate into guidance
// and cancellation.
type Session struct {
	orch *Orchestrator
	root string
}

// NewSession creates a session publishing under root, one directory per task.
func NewSession(orch *Orchestrator, root string) *Session {
	return &Session{orch: orch, root: root}
}

// TaskDir returns the publish directory for a task.
func (s *Session) TaskDir(taskID string) string {
	return filepath.Join(s.root, taskID)
}

const (
	statusFile  = "status.json"
	resultsFile = "results.json"
	cancelFile  = "cancel"
	guidePrefix = "guide-"
)

// Run publishes the task until it terminates. Control files are picked up via
// fsnotify with a ticker fallback. Cancelling ctx cancels the task
// cooperatively and still waits for it to close out.
func (s *Session) Run(ctx context.Context, task *Task) error {
	dir := s.TaskDir(task.ID)
	controlDir := filepath.Join(dir, "control")
	if err := os.MkdirAll(controlDir, 0755); err != nil {
		return fmt.Errorf("failed to create control dir: %w", err)
	}

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(controlDir); err == nil {
			events = watcher.Events
		}
		defer watcher.Close()
	} else {
		logging.Get(logging.CategoryEngine).Warn("control watcher unavailable, polling only: %v", err)
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	s.publishStatus(task)
	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			task.Cancel()
			ctxDone = nil
		case <-events:
			s.applyControls(task, controlDir)
		case <-ticker.C:
			s.applyControls(task, controlDir)
			s.publishStatus(task)
		case <-task.done:
			s.publishStatus(task)
			return s.publishResults(task)
		}
	}
}

// applyControls consumes control files in name order.
func (s *Session) applyControls(task *Task, controlDir string) {
	entries, err := os.ReadDir(controlDir)
	if err != nil {
		return
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(controlDir, name)
		switch {
		case name == cancelFile:
			task.Cancel()
		case strings.HasPrefix(name, guidePrefix):
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if text := strings.TrimSpace(string(data)); text != "" {
				if err := task.Guide(text); err != nil {
					logging.Get(logging.CategoryEngine).Warn("guidance dropped for task %s: %v", task.ID, err)
				}
			}
		default:
			continue
		}
		_ = os.Remove(path)
	}
}

func (s *Session) publishStatus(task *Task) {
	data, err := json.MarshalIndent(task.Status(), "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(s.TaskDir(task.ID), statusFile), data, 0644)
}

func (s *Session) publishResults(task *Task) error {
	res, err := s.orch.Results(task.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.TaskDir(task.ID), resultsFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

// AppendGuidance drops a guidance control file for a task published under
// root. The running session picks it up for the next prompt build.
func AppendGuidance(root, taskID, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("guidance text is empty")
	}
	dir := filepath.Join(root, taskID, "control")
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	name := fmt.Sprintf("%s%d.txt", guidePrefix, time.Now().UnixNano())
	return os.WriteFile(filepath.Join(dir, name), []byte(text), 0644)
}

// RequestCancel drops a cancel control file for a task published under root.
func RequestCancel(root, taskID string) error {
	dir := filepath.Join(root, taskID, "control")
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return os.WriteFile(filepath.Join(dir, cancelFile), nil, 0644)
}

// ReadStatus reads the last published status of a task under root.
func ReadStatus(root, taskID string) (StatusInfo, error) {
	data, err := os.ReadFile(filepath.Join(root, taskID, statusFile))
	if err != nil {
		if os.IsNotExist(err) {
			return StatusInfo{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return StatusInfo{}, err
	}
	var info StatusInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return StatusInfo{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return info, nil
}

// ReadResults reads the published results of a terminal task under root.
// A task that is still evolving yields ErrTaskNotTerminal.
func ReadResults(root, taskID string) (*Results, error) {
	data, err := os.ReadFile(filepath.Join(root, taskID, resultsFile))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if _, serr := ReadStatus(root, taskID); serr == nil {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotTerminal, taskID)
		}
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	var res Results
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return &res, nil
}
