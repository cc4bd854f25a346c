package residue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoforge/internal/blueprint"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "residue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAndByTask(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := &Entry{TaskID: "t1", Cycle: 1, Category: CategoryFailure, Summary: "quicksort partition recursed forever"}
	require.NoError(t, s.Insert(ctx, e))
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	entries, err := s.ByTask(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, CategoryFailure, entries[0].Category)

	empty, err := s.ByTask(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFindRelevantRanksByKeywordOverlap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &Entry{
		TaskID: "t1", Cycle: 1, Category: CategoryNearMiss, Domain: "algorithm_optimization",
		Summary: "quicksort pivot selection fails on sorted input", Goal: "optimize quicksort",
	}))
	require.NoError(t, s.Insert(ctx, &Entry{
		TaskID: "t2", Cycle: 1, Category: CategoryFragment, Domain: "algorithm_optimization",
		Summary: "novel caching approach for repeated lookups", Goal: "speed up lookups",
	}))
	require.NoError(t, s.Insert(ctx, &Entry{
		TaskID: "t3", Cycle: 1, Category: CategoryFragment, Domain: "other_domain",
		Summary: "quicksort trick from elsewhere", Goal: "optimize quicksort",
	}))

	hits, err := s.FindRelevant(ctx, Query{
		Goal:   "make quicksort faster on sorted and reversed input",
		Domain: "algorithm_optimization",
	}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Summary, "pivot selection")
}

func TestFindRelevantHonorsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Insert(ctx, &Entry{
			TaskID: "t", Cycle: i, Category: CategoryFragment,
			Summary: "sorting lesson variant", Goal: "sorting",
		}))
	}

	hits, err := s.FindRelevant(ctx, Query{Goal: "sorting improvements"}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestCollectorFailureCycle(t *testing.T) {
	s := openTestStore(t)
	c := NewCollector(s, 0.05)

	entries, err := c.Collect(context.Background(), CycleOutcome{
		TaskID: "t", Cycle: 2, Stage: "code_review",
		FailureReason: "boundary violation: search text not found",
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, CategoryFailure, entries[0].Category)
}

func TestCollectorNearMissAndFragment(t *testing.T) {
	s := openTestStore(t)
	c := NewCollector(s, 0.05)

	entries, err := c.Collect(context.Background(), CycleOutcome{
		TaskID: "t", Cycle: 3, Stage: "edge_case_testing",
		Accepted: false, Evaluated: true, Aggregate: 0.82, Threshold: 0.85,
		Reflection: "the two-pointer variant looked promising but failed on duplicates",
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	categories := []Category{entries[0].Category, entries[1].Category}
	assert.Contains(t, categories, CategoryNearMiss)
	assert.Contains(t, categories, CategoryFragment)
}

func TestCollectorGateFailureNearThreshold(t *testing.T) {
	s := openTestStore(t)
	c := NewCollector(s, 0.05)

	// A gate violation close to the threshold records both a failure and a
	// near miss.
	entries, err := c.Collect(context.Background(), CycleOutcome{
		TaskID: "t", Cycle: 2, Stage: "code_review",
		Accepted: false, Evaluated: true, Aggregate: 0.83, Threshold: 0.85,
		FailureReason: "evaluation gate violated: correctness",
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, CategoryFailure, entries[0].Category)
	assert.Equal(t, CategoryNearMiss, entries[1].Category)
}

func TestCollectorAcceptedCycle(t *testing.T) {
	s := openTestStore(t)
	c := NewCollector(s, 0.05)

	entries, err := c.Collect(context.Background(), CycleOutcome{
		TaskID: "t", Cycle: 1, Accepted: true, Evaluated: true, Aggregate: 0.9, Threshold: 0.85,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, CategoryProgress, entries[0].Category)
}

func TestCollectorAlwaysLeavesATrace(t *testing.T) {
	s := openTestStore(t)
	c := NewCollector(s, 0.01)

	// Rejected, not a near miss, no reflection: still one entry.
	entries, err := c.Collect(context.Background(), CycleOutcome{
		TaskID: "t", Cycle: 4, Accepted: false, Evaluated: true, Aggregate: 0.3, Threshold: 0.85,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, CategoryFragment, entries[0].Category)
}

func TestSeedPatterns(t *testing.T) {
	s := openTestStore(t)
	c := NewCollector(s, 0.05)
	ctx := context.Background()

	bp := blueprint.DefaultAlgorithmOptimization()
	require.NoError(t, c.SeedPatterns(ctx, bp))

	entries, err := s.ByTask(ctx, "blueprint:"+bp.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}
