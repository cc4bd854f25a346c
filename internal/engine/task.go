package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"evoforge/internal/coherence"
	"evoforge/internal/evaluate"
	"evoforge/internal/prompt"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusCreated          Status = "created"
	StatusRunning          Status = "running"
	StatusAwaitingGuidance Status = "awaiting_guidance"
	StatusConverged        Status = "converged"
	StatusExhausted        Status = "exhausted"
	StatusUnstable         Status = "unstable"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// Terminal reports whether no further cycles will run for this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusConverged, StatusExhausted, StatusUnstable, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

var (
	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotTerminal is returned when results are requested for a task
	// that is still evolving.
	ErrTaskNotTerminal = errors.New("task not terminal")
	// ErrTaskTerminal is returned when guidance is offered to a finished task.
	ErrTaskTerminal = errors.New("task already terminal")
)

// Cycle outcomes as recorded in task history.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// CycleRecord is one closed cycle in a task's history.
type CycleRecord struct {
	Cycle     int
	Agent     string
	Role      string
	Outcome   string
	Aggregate float64
	// Summary is a short line describing what the cycle did, fed back into
	// later prompts as prior stage output.
	Summary  string
	Error    string
	Started  time.Time
	Finished time.Time
}

// StatusInfo is a point-in-time snapshot of a task.
type StatusInfo struct {
	TaskID      string
	Status      Status
	Cycle       int
	BestVersion int
	BestScore   float64
	LastError   string
}

// Task is one evolution task. The mutex covers only the mutable snapshot
// state, never a running cycle, so status reads always return immediately.
type Task struct {
	ID          string
	Goal        string
	Language    string
	BlueprintID string

	mu          sync.Mutex
	status      Status
	cycle       int
	bestVersion int
	bestScore   float64
	lastError   string
	guidance    []string
	cancelled   bool
	history     []CycleRecord
	lastReport  *evaluate.Report

	tracker *coherence.Tracker
	wake    chan struct{}
	done    chan struct{}
}

func newTask(id, goal, language, blueprintID string, tracker *coherence.Tracker) *Task {
	return &Task{
		ID:          id,
		Goal:        goal,
		Language:    language,
		BlueprintID: blueprintID,
		status:      StatusCreated,
		tracker:     tracker,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Status returns a consistent snapshot of the task.
func (t *Task) Status() StatusInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return StatusInfo{
		TaskID:      t.ID,
		Status:      t.status,
		Cycle:       t.cycle,
		BestVersion: t.bestVersion,
		BestScore:   t.bestScore,
		LastError:   t.lastError,
	}
}

// Guide queues operator guidance. It is drained at the next prompt build, so
// guidance offered while a cycle is in flight affects the following cycle.
func (t *Task) Guide(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("guidance text is empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return fmt.Errorf("%w: task %s is %s", ErrTaskTerminal, t.ID, t.status)
	}
	t.guidance = append(t.guidance, text)
	if t.status == StatusAwaitingGuidance {
		t.status = StatusRunning
	}
	t.signalLocked()
	return nil
}

// Cancel requests cooperative cancellation. An in-flight agent call finishes
// but its result is discarded. Cancelling a terminal task is a no-op.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.cancelled = true
	t.signalLocked()
}

// Cancelled reports whether cancellation was requested.
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Wait blocks until the task reaches a terminal status or ctx expires.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// History returns a copy of the task's cycle records.
func (t *Task) History() []CycleRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CycleRecord, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Task) drainGuidance() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.guidance
	t.guidance = nil
	return out
}

func (t *Task) setRunning(cycle int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusRunning
	t.cycle = cycle
}

func (t *Task) setLastError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastError = msg
}

func (t *Task) recordBest(version int, score float64, report *evaluate.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bestVersion = version
	t.bestScore = score
	t.lastReport = report
}

func (t *Task) appendRecord(rec CycleRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, rec)
}

// priorOutputs renders history into prompt inputs, oldest first.
func (t *Task) priorOutputs() []prompt.StageOutput {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []prompt.StageOutput
	for _, rec := range t.history {
		if rec.Summary == "" {
			continue
		}
		out = append(out, prompt.StageOutput{Cycle: rec.Cycle, Role: rec.Role, Summary: rec.Summary})
	}
	return out
}

func (t *Task) metrics() map[string]evaluate.MetricResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastReport == nil {
		return nil
	}
	out := make(map[string]evaluate.MetricResult, len(t.lastReport.Metrics))
	for name, res := range t.lastReport.Metrics {
		out[name] = res
	}
	return out
}

// finish moves the task to a terminal status exactly once.
func (t *Task) finish(status Status, lastErr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = status
	if lastErr != "" {
		t.lastError = lastErr
	}
	close(t.done)
}

// awaitGuidance parks the task in AwaitingGuidance until guidance arrives.
// Returns false when the wait ended in cancellation.
func (t *Task) awaitGuidance(ctx context.Context) bool {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return false
	}
	if len(t.guidance) > 0 {
		t.mu.Unlock()
		return true
	}
	t.status = StatusAwaitingGuidance
	wake := t.wake
	t.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-wake:
			t.mu.Lock()
			cancelled, guided := t.cancelled, len(t.guidance) > 0
			t.mu.Unlock()
			if cancelled {
				return false
			}
			if guided {
				return true
			}
		}
	}
}

// signalLocked wakes a parked task. Callers hold t.mu.
func (t *Task) signalLocked() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}
