package blueprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sortingBlueprintYAML = `
id: sorting_optimization
name: Sorting Optimization
version: 0.1.0
description: Tunes sorting routines
tags: [sorting]
domain: algorithm_optimization
agent_sequence:
  - agent: claude
    role: initial_optimization
    prompt_template: opt
evaluation_metrics:
  correctness:
    weight: 0.7
    minimum_threshold: 1.0
  time_complexity:
    weight: 0.3
evolution_parameters:
  max_iterations: 3
  convergence_threshold: 0.02
prompt_templates:
  opt:
    template: "Goal: {{goal}}"
    variables: [goal]
`

func TestRegistryIncludesBuiltins(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)

	bp, err := r.Get("algorithm_optimization")
	require.NoError(t, err)
	assert.Equal(t, "Algorithm Optimization", bp.Name)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryLoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sorting.yaml"), []byte(sortingBlueprintYAML), 0644))

	r, err := NewRegistry(dir)
	require.NoError(t, err)

	bp, err := r.Get("sorting_optimization")
	require.NoError(t, err)
	assert.Equal(t, 3, bp.Evolution.MaxIterations)
	require.NotNil(t, bp.EvaluationMetrics["correctness"].MinimumThreshold)

	// Built-ins survive alongside directory blueprints.
	require.Len(t, r.List(), 2)
}

func TestRegistryReloadDropsRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sorting.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sortingBlueprintYAML), 0644))

	r, err := NewRegistry(dir)
	require.NoError(t, err)
	_, err = r.Get("sorting_optimization")
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	require.NoError(t, r.Reload())

	_, err = r.Get("sorting_optimization")
	assert.ErrorIs(t, err, ErrNotFound)
	// Built-in is still there.
	_, err = r.Get("algorithm_optimization")
	assert.NoError(t, err)
}

func TestReloadSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: broken\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(sortingBlueprintYAML), 0644))

	r, err := NewRegistry(dir)
	require.NoError(t, err)

	_, err = r.Get("broken")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get("sorting_optimization")
	assert.NoError(t, err)
}

func TestLoadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sorting.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sortingBlueprintYAML), 0644))

	bp, err := LoadFile(path)
	require.NoError(t, err)

	gate := 1.0
	want := &Blueprint{
		ID:          "sorting_optimization",
		Name:        "Sorting Optimization",
		Version:     "0.1.0",
		Description: "Tunes sorting routines",
		Tags:        []string{"sorting"},
		Domain:      "algorithm_optimization",
		AgentSequence: []Stage{
			{Agent: "claude", Role: "initial_optimization", PromptTemplate: "opt"},
		},
		EvaluationMetrics: map[string]Metric{
			"correctness":     {Weight: 0.7, MinimumThreshold: &gate},
			"time_complexity": {Weight: 0.3},
		},
		Evolution: EvolutionParameters{MaxIterations: 3, ConvergenceThreshold: 0.02},
		PromptTemplates: map[string]Template{
			"opt": {Template: "Goal: {{goal}}", Variables: []string{"goal"}},
		},
	}
	if diff := cmp.Diff(want, bp); diff != "" {
		t.Errorf("blueprint mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchMatchesTags(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)

	hits := r.Search("performance")
	require.Len(t, hits, 1)
	assert.Equal(t, "algorithm_optimization", hits[0].ID)

	assert.Empty(t, r.Search("quantum"))
}
