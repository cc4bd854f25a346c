package coherence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthyRunStaysStable(t *testing.T) {
	tr := NewTracker(3, BandPredicate{Floor: 0.15, MaxDrop: 0.5})

	for cycle, score := range []float64{0.6, 0.65, 0.7} {
		snap := tr.Record(CycleInput{Cycle: cycle + 1, Aggregate: score, Improved: true})
		assert.Equal(t, 1.0, snap.Responsiveness)
		assert.Equal(t, 1.0, snap.Integrity)
	}
	assert.False(t, tr.ShouldFinalize())
}

func TestResponsivenessDecaysWithoutImprovement(t *testing.T) {
	tr := NewTracker(3, nil)

	s1 := tr.Record(CycleInput{Cycle: 1, Aggregate: 0.5, Improved: true})
	s2 := tr.Record(CycleInput{Cycle: 2, Aggregate: 0.5, Improved: false})
	s3 := tr.Record(CycleInput{Cycle: 3, Aggregate: 0.5, Improved: false})

	assert.Equal(t, 1.0, s1.Responsiveness)
	assert.InDelta(t, 0.5, s2.Responsiveness, 1e-9)
	assert.InDelta(t, 1.0/3.0, s3.Responsiveness, 1e-9)

	// An improvement restores responsiveness fully.
	s4 := tr.Record(CycleInput{Cycle: 4, Aggregate: 0.6, Improved: true})
	assert.Equal(t, 1.0, s4.Responsiveness)
}

func TestIntegrityTracksViolationsOverWindow(t *testing.T) {
	tr := NewTracker(2, nil)

	tr.Record(CycleInput{Cycle: 1, Aggregate: 0.5, Improved: true, BoundaryViolation: true})
	snap := tr.Record(CycleInput{Cycle: 2, Aggregate: 0.5, Improved: true})
	assert.InDelta(t, 0.5, snap.Integrity, 1e-9)

	// The violation ages out of the window.
	snap = tr.Record(CycleInput{Cycle: 3, Aggregate: 0.5, Improved: true})
	assert.Equal(t, 1.0, snap.Integrity)
}

func TestTensionCapacityDropsWhenScoresThrash(t *testing.T) {
	steady := NewTracker(4, nil)
	thrash := NewTracker(4, nil)

	for cycle, pair := range [][2]float64{{0.5, 0.1}, {0.52, 0.9}, {0.5, 0.1}, {0.51, 0.9}} {
		steadySnap := steady.Record(CycleInput{Cycle: cycle + 1, Aggregate: pair[0], Improved: true})
		thrashSnap := thrash.Record(CycleInput{Cycle: cycle + 1, Aggregate: pair[1], Improved: true})
		if cycle == 3 {
			assert.Greater(t, steadySnap.TensionCapacity, thrashSnap.TensionCapacity)
		}
	}
}

func TestFloorForcesFinalize(t *testing.T) {
	tr := NewTracker(3, BandPredicate{Floor: 0.5, MaxDrop: 0.9})
	tr.Record(CycleInput{Cycle: 1, Aggregate: 0.2, Improved: true})
	assert.True(t, tr.ShouldFinalize())
}

func TestSharpDropForcesFinalize(t *testing.T) {
	tr := NewTracker(3, BandPredicate{Floor: 0.05, MaxDrop: 0.5})
	tr.Record(CycleInput{Cycle: 1, Aggregate: 0.9, Improved: true})
	assert.False(t, tr.ShouldFinalize())

	// Product collapses by more than half.
	tr.Record(CycleInput{Cycle: 2, Aggregate: 0.3, Improved: false, BoundaryViolation: true})
	assert.True(t, tr.ShouldFinalize())
}

type alwaysStable struct{}

func (alwaysStable) Stable(prev, curr *Snapshot) bool { return true }

func TestCustomPredicate(t *testing.T) {
	tr := NewTracker(3, alwaysStable{})
	tr.Record(CycleInput{Cycle: 1, Aggregate: 0.0, Improved: false, BoundaryViolation: true})
	assert.False(t, tr.ShouldFinalize())
}

func TestLatestAndHistory(t *testing.T) {
	tr := NewTracker(3, nil)
	_, ok := tr.Latest()
	assert.False(t, ok)

	tr.Record(CycleInput{Cycle: 1, Aggregate: 0.4, Improved: true})
	tr.Record(CycleInput{Cycle: 2, Aggregate: 0.5, Improved: true})

	latest, ok := tr.Latest()
	require.True(t, ok)
	assert.Equal(t, 2, latest.Cycle)
	assert.Len(t, tr.History(), 2)
}
