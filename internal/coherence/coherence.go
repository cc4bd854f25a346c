// Package coherence tracks evolution stability across cycles through four
// signals and decides when a task must be forced to finalize.
package coherence

import (
	"math"
	"sync"

	"evoforge/internal/logging"
)

// CycleInput is what one closed cycle contributes to the tracker.
type CycleInput struct {
	Cycle     int
	Aggregate float64
	// Improved reports whether this cycle beat the best score so far.
	Improved bool
	// BoundaryViolation reports whether the cycle's diff violated the
	// evolvable region.
	BoundaryViolation bool
}

// Snapshot is the tracker's view of the task after one cycle.
type Snapshot struct {
	Cycle int

	// Alignment follows the aggregate evaluation score.
	Alignment float64
	// Responsiveness decays as consecutive non-improving cycles accumulate.
	Responsiveness float64
	// Integrity is 1 minus the boundary violation ratio over the window.
	Integrity float64
	// TensionCapacity is 1 minus the normalized score variance over the
	// window; a thrashing score history exhausts it.
	TensionCapacity float64

	// Product combines all four signals.
	Product float64
}

// Predicate decides whether the evolution remains stable enough to continue.
type Predicate interface {
	Stable(prev, curr *Snapshot) bool
}

// BandPredicate is the default predicate: the signal product must stay above
// a floor and must not drop too sharply between consecutive snapshots.
type BandPredicate struct {
	Floor   float64
	MaxDrop float64
}

// Stable reports whether the current snapshot is inside the band.
func (p BandPredicate) Stable(prev, curr *Snapshot) bool {
	if curr.Product < p.Floor {
		return false
	}
	if prev != nil && prev.Product > 0 {
		drop := (prev.Product - curr.Product) / prev.Product
		if drop > p.MaxDrop {
			return false
		}
	}
	return true
}

// Tracker accumulates cycle inputs and produces snapshots.
type Tracker struct {
	mu        sync.Mutex
	window    int
	predicate Predicate

	history      []CycleInput
	snapshots    []Snapshot
	nonImproving int
}

// NewTracker creates a tracker with the given window and predicate. A nil
// predicate gets the default band.
func NewTracker(window int, predicate Predicate) *Tracker {
	if window < 1 {
		window = 1
	}
	if predicate == nil {
		predicate = BandPredicate{Floor: 0.15, MaxDrop: 0.5}
	}
	return &Tracker{window: window, predicate: predicate}
}

// Record folds one closed cycle into the tracker and returns its snapshot.
func (t *Tracker) Record(in CycleInput) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if in.Improved {
		t.nonImproving = 0
	} else {
		t.nonImproving++
	}

	t.history = append(t.history, in)
	win := t.history
	if len(win) > t.window {
		win = win[len(win)-t.window:]
	}

	snap := Snapshot{
		Cycle:           in.Cycle,
		Alignment:       clamp(in.Aggregate),
		Responsiveness:  1.0 / float64(1+t.nonImproving),
		Integrity:       1.0 - violationRatio(win, t.window),
		TensionCapacity: 1.0 - normalizedVariance(win),
	}
	snap.Product = snap.Alignment * snap.Responsiveness * snap.Integrity * snap.TensionCapacity

	t.snapshots = append(t.snapshots, snap)
	logging.Coherence("cycle %d: align=%.3f resp=%.3f integ=%.3f tension=%.3f product=%.3f",
		in.Cycle, snap.Alignment, snap.Responsiveness, snap.Integrity, snap.TensionCapacity, snap.Product)
	return snap
}

// ShouldFinalize reports whether the predicate marks the latest snapshot
// unstable. With fewer than two snapshots only the floor applies.
func (t *Tracker) ShouldFinalize() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.snapshots)
	if n == 0 {
		return false
	}
	var prev *Snapshot
	if n > 1 {
		prev = &t.snapshots[n-2]
	}
	return !t.predicate.Stable(prev, &t.snapshots[n-1])
}

// Latest returns the most recent snapshot.
func (t *Tracker) Latest() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.snapshots) == 0 {
		return Snapshot{}, false
	}
	return t.snapshots[len(t.snapshots)-1], true
}

// History returns all snapshots in cycle order.
func (t *Tracker) History() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Snapshot, len(t.snapshots))
	copy(out, t.snapshots)
	return out
}

// violationRatio divides by the configured window, not the entries seen so
// far, so a single early violation degrades integrity without zeroing it.
func violationRatio(win []CycleInput, window int) float64 {
	if window < 1 {
		return 0
	}
	violations := 0
	for _, in := range win {
		if in.BoundaryViolation {
			violations++
		}
	}
	return float64(violations) / float64(window)
}

// normalizedVariance maps the aggregate-score variance over the window onto
// [0, 1]. 0.25 is the maximum possible variance of values in [0, 1].
func normalizedVariance(win []CycleInput) float64 {
	if len(win) < 2 {
		return 0
	}
	var sum float64
	for _, in := range win {
		sum += in.Aggregate
	}
	mean := sum / float64(len(win))

	var variance float64
	for _, in := range win {
		variance += (in.Aggregate - mean) * (in.Aggregate - mean)
	}
	variance /= float64(len(win))
	return clamp(variance / 0.25)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
