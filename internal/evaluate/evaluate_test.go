package evaluate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoforge/internal/blueprint"
)

type stubEvaluator struct {
	name  string
	score float64
	err   error
	delay time.Duration
}

func (s *stubEvaluator) Name() string { return s.name }

func (s *stubEvaluator) Evaluate(ctx context.Context, c Candidate) (float64, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.score, s.err
}

func TestRunnerAggregatesWeightedScores(t *testing.T) {
	r := NewRunner(time.Second)
	report, err := r.Run(context.Background(), Candidate{Content: "x"}, []Weighted{
		{Evaluator: &stubEvaluator{name: "a", score: 1.0}, Weight: 0.5},
		{Evaluator: &stubEvaluator{name: "b", score: 0.5}, Weight: 0.5},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, report.Aggregate, 1e-9)
	assert.True(t, report.Passed)
	assert.Zero(t, report.Failures)
}

func TestRunnerNormalizesWeights(t *testing.T) {
	r := NewRunner(time.Second)
	report, err := r.Run(context.Background(), Candidate{Content: "x"}, []Weighted{
		{Evaluator: &stubEvaluator{name: "a", score: 1.0}, Weight: 2},
		{Evaluator: &stubEvaluator{name: "b", score: 0.0}, Weight: 2},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, report.Aggregate, 1e-9)
}

func TestRunnerIsolatesEvaluatorFailure(t *testing.T) {
	r := NewRunner(time.Second)
	report, err := r.Run(context.Background(), Candidate{Content: "x"}, []Weighted{
		{Evaluator: &stubEvaluator{name: "broken", err: fmt.Errorf("boom")}, Weight: 0.5},
		{Evaluator: &stubEvaluator{name: "fine", score: 1.0}, Weight: 0.5},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failures)
	assert.True(t, report.Metrics["broken"].Failed)
	assert.Equal(t, 0.0, report.Metrics["broken"].Score)
	assert.Equal(t, 1.0, report.Metrics["fine"].Score)
	assert.InDelta(t, 0.5, report.Aggregate, 1e-9)
}

func TestRunnerTimesOutSlowEvaluator(t *testing.T) {
	r := NewRunner(20 * time.Millisecond)
	report, err := r.Run(context.Background(), Candidate{Content: "x"}, []Weighted{
		{Evaluator: &stubEvaluator{name: "slow", score: 1.0, delay: time.Second}, Weight: 0.5},
		{Evaluator: &stubEvaluator{name: "fast", score: 1.0}, Weight: 0.5},
	})
	require.NoError(t, err)
	assert.True(t, report.Metrics["slow"].Failed)
	assert.Equal(t, 1.0, report.Metrics["fast"].Score)
}

func TestRunnerHardGateForcesFail(t *testing.T) {
	gate := 1.0
	r := NewRunner(time.Second)
	report, err := r.Run(context.Background(), Candidate{Content: "x"}, []Weighted{
		{Evaluator: &stubEvaluator{name: "correctness", score: 0.9}, Weight: 0.5, Threshold: &gate},
		{Evaluator: &stubEvaluator{name: "speed", score: 1.0}, Weight: 0.5},
	})
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.True(t, report.Metrics["correctness"].GateViolated)
	// Aggregate is still reported for coherence tracking.
	assert.InDelta(t, 0.95, report.Aggregate, 1e-9)
}

func TestRunnerErroredGatedEvaluatorFailsSafe(t *testing.T) {
	gate := 1.0
	r := NewRunner(time.Second)
	report, err := r.Run(context.Background(), Candidate{Content: "x"}, []Weighted{
		{Evaluator: &stubEvaluator{name: "correctness", err: fmt.Errorf("boom")}, Weight: 0.5, Threshold: &gate},
		{Evaluator: &stubEvaluator{name: "speed", score: 1.0}, Weight: 0.5},
	})
	require.NoError(t, err)

	// The candidate cannot pass, but an evaluator fault is not a gate verdict.
	assert.False(t, report.Passed)
	assert.True(t, report.Metrics["correctness"].Failed)
	assert.False(t, report.Metrics["correctness"].GateViolated)
	assert.Empty(t, report.GateViolations())
}

func TestRunnerAllFailedIsNotAPass(t *testing.T) {
	r := NewRunner(time.Second)
	report, err := r.Run(context.Background(), Candidate{Content: "x"}, []Weighted{
		{Evaluator: &stubEvaluator{name: "a", err: fmt.Errorf("boom")}, Weight: 1},
	})
	require.NoError(t, err)
	assert.False(t, report.Passed)
}

func TestForMetricsBuildsConfiguredSet(t *testing.T) {
	bp := blueprint.DefaultAlgorithmOptimization()
	evals, err := ForMetrics(bp.EvaluationMetrics)
	require.NoError(t, err)
	require.Len(t, evals, 4)

	_, err = ForMetrics(map[string]blueprint.Metric{"vibes": {Weight: 1}})
	assert.Error(t, err)
}

const wellFormed = `// EVOLVE-BLOCK-START
func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
// EVOLVE-BLOCK-END
`

func TestCorrectnessEvaluator(t *testing.T) {
	e := &CorrectnessEvaluator{}

	score, err := e.Evaluate(context.Background(), Candidate{Content: wellFormed})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	score, err = e.Evaluate(context.Background(), Candidate{Content: "func f( {"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestTimeComplexityEvaluator(t *testing.T) {
	e := &TimeComplexityEvaluator{}

	linear, err := e.Evaluate(context.Background(), Candidate{Content: wellFormed})
	require.NoError(t, err)

	nested := `for i := range xs {
	for j := range xs {
		_ = xs[i] + xs[j]
	}
}
`
	quadratic, err := e.Evaluate(context.Background(), Candidate{Content: nested})
	require.NoError(t, err)
	assert.Greater(t, linear, quadratic)
}

func TestEstimateComplexityClasses(t *testing.T) {
	assert.Equal(t, "O(1)", estimateComplexity("x := 1\n"))
	assert.Equal(t, "O(n)", estimateComplexity("for i := range xs {\n\t_ = i\n}\n"))
	assert.Equal(t, "O(n log n)", estimateComplexity("func mergeSort(xs []int) {}\n"))
}

func TestReadabilityEvaluatorPenalizesLongLines(t *testing.T) {
	e := &ReadabilityEvaluator{}

	clean, err := e.Evaluate(context.Background(), Candidate{Content: wellFormed})
	require.NoError(t, err)

	var long string
	for i := 0; i < 5; i++ {
		long += "x := compute(aReallyLongArgumentName, anotherReallyLongArgumentName, yetAnotherArgument, andOneMoreForGoodMeasure)\n"
	}
	messy, err := e.Evaluate(context.Background(), Candidate{Content: long})
	require.NoError(t, err)
	assert.Greater(t, clean, messy)
}
