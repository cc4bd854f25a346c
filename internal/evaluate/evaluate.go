// Package evaluate scores candidate artifacts along weighted metric
// dimensions and aggregates them into a verdict.
package evaluate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"evoforge/internal/blueprint"
	"evoforge/internal/logging"
)

// Candidate is one artifact version under evaluation.
type Candidate struct {
	Content  string
	Parent   string // previous accepted version, for relative metrics
	Language string
	Goal     string
}

// Evaluator scores a candidate on one dimension in [0, 1].
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, c Candidate) (float64, error)
}

// Weighted pairs an evaluator with its blueprint weight and optional hard
// gate threshold.
type Weighted struct {
	Evaluator Evaluator
	Weight    float64
	Threshold *float64
}

// MetricResult is one evaluator's outcome.
type MetricResult struct {
	Score  float64
	Weight float64
	Failed bool
	// GateViolated means a produced score fell below the metric's hard gate.
	// An errored gated evaluator reports Failed instead, and still fails the
	// candidate.
	GateViolated bool
	Err          string
}

// Report aggregates all metric results for a candidate.
type Report struct {
	Metrics   map[string]MetricResult
	Aggregate float64
	// Passed is false when any hard gate was violated, a gated evaluator
	// failed to produce a score, or every evaluator failed.
	Passed   bool
	Failures int
}

// Runner evaluates candidates by fanning evaluators out in parallel. An
// evaluator error or timeout yields score 0 with a failure flag and never
// disturbs its siblings.
type Runner struct {
	Timeout time.Duration
}

// NewRunner creates a runner with a per-evaluator timeout.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout}
}

// Run evaluates the candidate against all weighted evaluators. Weights are
// normalized over the supplied set.
func (r *Runner) Run(ctx context.Context, c Candidate, evals []Weighted) (*Report, error) {
	if len(evals) == 0 {
		return nil, fmt.Errorf("no evaluators configured")
	}

	report := &Report{Metrics: make(map[string]MetricResult, len(evals)), Passed: true}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range evals {
		w := w
		g.Go(func() error {
			evalCtx := gctx
			if r.Timeout > 0 {
				var cancel context.CancelFunc
				evalCtx, cancel = context.WithTimeout(gctx, r.Timeout)
				defer cancel()
			}

			result := MetricResult{Weight: w.Weight}
			score, err := w.Evaluator.Evaluate(evalCtx, c)
			if err != nil {
				result.Failed = true
				result.Err = err.Error()
				logging.Get(logging.CategoryEvaluate).Warn("evaluator %s failed: %v", w.Evaluator.Name(), err)
			} else {
				result.Score = clamp(score)
			}
			if !result.Failed && w.Threshold != nil && result.Score < *w.Threshold {
				result.GateViolated = true
			}

			mu.Lock()
			report.Metrics[w.Evaluator.Name()] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var totalWeight, weightedSum float64
	for _, w := range evals {
		res := report.Metrics[w.Evaluator.Name()]
		totalWeight += res.Weight
		weightedSum += res.Weight * res.Score
		if res.Failed {
			report.Failures++
		}
		if res.GateViolated || (res.Failed && w.Threshold != nil) {
			report.Passed = false
		}
	}
	if totalWeight > 0 {
		report.Aggregate = weightedSum / totalWeight
	}
	if report.Failures == len(evals) {
		report.Passed = false
	}

	logging.Evaluate("candidate scored %.3f (passed=%v failures=%d)", report.Aggregate, report.Passed, report.Failures)
	return report, nil
}

// GateViolations lists the metrics whose hard gate was violated, sorted.
func (r *Report) GateViolations() []string {
	var out []string
	for name, res := range r.Metrics {
		if res.GateViolated {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ForMetrics maps blueprint evaluation metrics to built-in evaluators.
func ForMetrics(metrics map[string]blueprint.Metric) ([]Weighted, error) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Weighted
	for _, name := range names {
		m := metrics[name]
		var eval Evaluator
		switch name {
		case "correctness":
			eval = &CorrectnessEvaluator{}
		case "time_complexity":
			eval = &TimeComplexityEvaluator{}
		case "space_complexity":
			eval = &SpaceComplexityEvaluator{}
		case "readability":
			eval = &ReadabilityEvaluator{}
		default:
			return nil, fmt.Errorf("unknown evaluation metric %q", name)
		}
		out = append(out, Weighted{Evaluator: eval, Weight: m.Weight, Threshold: m.MinimumThreshold})
	}
	return out, nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
