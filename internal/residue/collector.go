package residue

import (
	"context"
	"fmt"
	"math"

	"evoforge/internal/blueprint"
)

// CycleOutcome is what one closed evolution cycle hands the collector.
type CycleOutcome struct {
	TaskID    string
	Cycle     int
	Goal      string
	Domain    string
	Agent     string
	Stage     string
	Accepted  bool
	Evaluated bool
	Aggregate float64
	// Threshold is the blueprint's convergence threshold, the reference for
	// near-miss classification.
	Threshold float64
	// FailureReason is set when the cycle failed (agent error, parse
	// failure, boundary violation, evaluation gate).
	FailureReason string
	// Reflection is the agent's prose, if any.
	Reflection string
	// DiffExcerpt summarizes the candidate's change, if one was produced.
	DiffExcerpt string
}

// Collector classifies cycle outcomes into residue entries. Every closed
// cycle yields at least one entry.
type Collector struct {
	store   *Store
	epsilon float64
}

// NewCollector creates a collector writing to store. epsilon is the near-miss
// band: an evaluated, unaccepted candidate scoring within epsilon of the
// convergence threshold classifies as a near miss.
func NewCollector(store *Store, epsilon float64) *Collector {
	return &Collector{store: store, epsilon: epsilon}
}

// Collect writes the entries for one closed cycle and returns them.
func (c *Collector) Collect(ctx context.Context, out CycleOutcome) ([]Entry, error) {
	var entries []Entry

	if out.FailureReason != "" {
		entries = append(entries, Entry{
			TaskID:   out.TaskID,
			Cycle:    out.Cycle,
			Category: CategoryFailure,
			Summary:  fmt.Sprintf("cycle %d failed at %s stage", out.Cycle, out.Stage),
			Detail:   out.FailureReason,
			Excerpt:  out.DiffExcerpt,
			Score:    out.Aggregate,
			Goal:     out.Goal,
			Domain:   out.Domain,
		})
	}

	if out.Evaluated && !out.Accepted && math.Abs(out.Threshold-out.Aggregate) <= c.epsilon {
		entries = append(entries, Entry{
			TaskID:   out.TaskID,
			Cycle:    out.Cycle,
			Category: CategoryNearMiss,
			Summary:  fmt.Sprintf("candidate scored %.3f, within %.3f of the %.3f convergence threshold", out.Aggregate, c.epsilon, out.Threshold),
			Detail:   out.Reflection,
			Excerpt:  out.DiffExcerpt,
			Score:    out.Aggregate,
			Goal:     out.Goal,
			Domain:   out.Domain,
		})
	}

	if !out.Accepted && out.Reflection != "" {
		entries = append(entries, Entry{
			TaskID:   out.TaskID,
			Cycle:    out.Cycle,
			Category: CategoryFragment,
			Summary:  fmt.Sprintf("unadopted reasoning from %s stage", out.Stage),
			Detail:   truncate(out.Reflection, 500),
			Score:    out.Aggregate,
			Goal:     out.Goal,
			Domain:   out.Domain,
		})
	}

	if out.Accepted {
		entries = append(entries, Entry{
			TaskID:   out.TaskID,
			Cycle:    out.Cycle,
			Category: CategoryProgress,
			Summary:  fmt.Sprintf("cycle %d accepted with score %.3f", out.Cycle, out.Aggregate),
			Detail:   truncate(out.Reflection, 500),
			Excerpt:  out.DiffExcerpt,
			Score:    out.Aggregate,
			Goal:     out.Goal,
			Domain:   out.Domain,
		})
	}

	// Every closed cycle leaves a trace even when nothing above matched.
	if len(entries) == 0 {
		entries = append(entries, Entry{
			TaskID:   out.TaskID,
			Cycle:    out.Cycle,
			Category: CategoryFragment,
			Summary:  fmt.Sprintf("cycle %d rejected with score %.3f", out.Cycle, out.Aggregate),
			Excerpt:  out.DiffExcerpt,
			Score:    out.Aggregate,
			Goal:     out.Goal,
			Domain:   out.Domain,
		})
	}

	for i := range entries {
		if err := c.store.Insert(ctx, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// SeedPatterns inserts a blueprint's residue patterns as fragment entries so
// the first cycle of a new domain already has material to draw on.
func (c *Collector) SeedPatterns(ctx context.Context, bp *blueprint.Blueprint) error {
	for kind, patterns := range bp.ResiduePatterns {
		category := CategoryFragment
		if kind == "near_misses" {
			category = CategoryNearMiss
		}
		for _, p := range patterns {
			entry := Entry{
				TaskID:   "blueprint:" + bp.ID,
				Category: category,
				Summary:  p.Pattern,
				Detail:   p.PotentialValue,
				Domain:   bp.Domain,
			}
			if err := c.store.Insert(ctx, &entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
