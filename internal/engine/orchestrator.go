// Package engine drives the per-task evolution loop: stage selection, prompt
// assembly, agent invocation, response parsing, diff application, parallel
// evaluation, coherence tracking, and residue collection, bounded by the
// blueprint's iteration budget.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"evoforge/internal/agent"
	"evoforge/internal/artifact"
	"evoforge/internal/blueprint"
	"evoforge/internal/coherence"
	"evoforge/internal/config"
	"evoforge/internal/evaluate"
	"evoforge/internal/logging"
	"evoforge/internal/parse"
	"evoforge/internal/prompt"
	"evoforge/internal/residue"
)

// Orchestrator owns all evolution tasks and their cycle loops.
type Orchestrator struct {
	cfg        *config.Config
	blueprints blueprint.Provider
	agents     *agent.Selector
	builder    *prompt.Builder
	runner     *evaluate.Runner
	artifacts  *artifact.Store
	residues   *residue.Store
	collector  *residue.Collector

	mu     sync.RWMutex
	tasks  map[string]*Task
	seeded map[string]bool
	wg     sync.WaitGroup
}

// New creates an orchestrator wiring the given stores and agent selector.
func New(cfg *config.Config, blueprints blueprint.Provider, agents *agent.Selector, artifacts *artifact.Store, residues *residue.Store) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		blueprints: blueprints,
		agents:     agents,
		builder:    prompt.NewBuilder(cfg.Prompt.MaxTokens, cfg.Prompt.MaxResidueExcerpts),
		runner:     evaluate.NewRunner(cfg.Engine.EvaluatorTimeout.Std()),
		artifacts:  artifacts,
		residues:   residues,
		collector:  residue.NewCollector(residues, cfg.Residue.NearMissEpsilon),
		tasks:      make(map[string]*Task),
		seeded:     make(map[string]bool),
	}
}

// TaskSpec describes a new evolution task.
type TaskSpec struct {
	Goal        string
	Language    string
	Content     string
	BlueprintID string
}

// StartTask validates the task spec, stores the seed artifact as version 1, and
// launches the cycle loop. The returned task is live immediately.
func (o *Orchestrator) StartTask(ctx context.Context, spec TaskSpec) (*Task, error) {
	if strings.TrimSpace(spec.Goal) == "" {
		return nil, fmt.Errorf("task goal is required")
	}
	if strings.TrimSpace(spec.Content) == "" {
		return nil, fmt.Errorf("task artifact is required")
	}
	blueprintID := spec.BlueprintID
	if blueprintID == "" {
		blueprintID = "algorithm_optimization"
	}
	bp, err := o.blueprints.Get(blueprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve blueprint: %w", err)
	}
	if _, err := artifact.FindRegion(spec.Content); err != nil {
		return nil, err
	}
	evals, err := evaluate.ForMetrics(bp.EvaluationMetrics)
	if err != nil {
		return nil, err
	}

	tracker := coherence.NewTracker(o.cfg.Coherence.Window, coherence.BandPredicate{
		Floor:   o.cfg.Coherence.Floor,
		MaxDrop: o.cfg.Coherence.MaxDrop,
	})
	t := newTask(uuid.New().String(), spec.Goal, spec.Language, blueprintID, tracker)
	t.bestVersion = 1

	if err := o.artifacts.Save(&artifact.Artifact{TaskID: t.ID, Version: 1, Language: spec.Language, Content: spec.Content}); err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.tasks[t.ID] = t
	seed := !o.seeded[bp.ID]
	o.seeded[bp.ID] = true
	o.mu.Unlock()

	if seed {
		if err := o.collector.SeedPatterns(ctx, bp); err != nil {
			logging.Get(logging.CategoryEngine).Warn("failed to seed residue patterns for %s: %v", bp.ID, err)
		}
	}

	logging.Engine("task %s started: blueprint=%s goal=%q", t.ID, bp.ID, t.Goal)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(ctx, t, bp, evals)
	}()
	return t, nil
}

// Status returns the snapshot for a task.
func (o *Orchestrator) Status(taskID string) (StatusInfo, error) {
	t, err := o.task(taskID)
	if err != nil {
		return StatusInfo{}, err
	}
	return t.Status(), nil
}

// Guide queues guidance for a task's next prompt build.
func (o *Orchestrator) Guide(taskID, text string) error {
	t, err := o.task(taskID)
	if err != nil {
		return err
	}
	return t.Guide(text)
}

// Cancel requests cooperative cancellation of a task.
func (o *Orchestrator) Cancel(taskID string) error {
	t, err := o.task(taskID)
	if err != nil {
		return err
	}
	t.Cancel()
	return nil
}

// Tasks lists snapshots of all known tasks.
func (o *Orchestrator) Tasks() []StatusInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]StatusInfo, 0, len(o.tasks))
	for _, t := range o.tasks {
		out = append(out, t.Status())
	}
	return out
}

// Results is the final outcome of a terminal task.
type Results struct {
	TaskID      string
	Status      Status
	Goal        string
	BlueprintID string
	BestVersion int
	BestScore   float64
	Artifact    string
	Metrics     map[string]evaluate.MetricResult
	History     []CycleRecord
	Coherence   []coherence.Snapshot
}

// Results returns the final artifact, metrics, and history for a terminal
// task. A live task yields ErrTaskNotTerminal.
func (o *Orchestrator) Results(taskID string) (*Results, error) {
	t, err := o.task(taskID)
	if err != nil {
		return nil, err
	}
	info := t.Status()
	if !info.Status.Terminal() {
		return nil, fmt.Errorf("%w: task %s is %s", ErrTaskNotTerminal, taskID, info.Status)
	}
	art, err := o.artifacts.Load(taskID, info.BestVersion)
	if err != nil {
		return nil, err
	}
	return &Results{
		TaskID:      taskID,
		Status:      info.Status,
		Goal:        t.Goal,
		BlueprintID: t.BlueprintID,
		BestVersion: info.BestVersion,
		BestScore:   info.BestScore,
		Artifact:    art.Content,
		Metrics:     t.metrics(),
		History:     t.History(),
		Coherence:   t.tracker.History(),
	}, nil
}

// Wait blocks until every launched task loop has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) task(id string) (*Task, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// cycleResult is what one cycle hands back to the decision loop.
type cycleResult struct {
	agentName     string
	outcome       string
	aggregate     float64
	report        *evaluate.Report
	evaluated     bool
	accepted      bool
	boundary      bool
	unrecoverable bool
	cancelled     bool
	failureReason string
	reflection    string
	diffExcerpt   string
	summary       string
	newContent    string
}

// run is the per-task cycle loop. Decision order after each closed cycle:
// converged, unstable, exhausted, failed, continue.
func (o *Orchestrator) run(ctx context.Context, t *Task, bp *blueprint.Blueprint, evals []evaluate.Weighted) {
	seed, err := o.artifacts.Load(t.ID, 1)
	if err != nil {
		t.finish(StatusFailed, err.Error())
		return
	}
	content := seed.Content
	version := 1

	// Baseline the seed artifact so acceptance and coherence have a real
	// score to compare against.
	if baseline, err := o.runner.Run(ctx, o.candidate(t, content, content), evals); err == nil {
		t.recordBest(1, baseline.Aggregate, baseline)
		logging.Engine("task %s baseline score %.3f", t.ID, baseline.Aggregate)
	}

	maxIter := bp.Evolution.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}
	consecutive := 0

	for cycle := 1; ; cycle++ {
		if t.Cancelled() {
			t.finish(StatusCancelled, "")
			logging.Engine("task %s cancelled before cycle %d", t.ID, cycle)
			return
		}
		t.setRunning(cycle)
		stage := bp.StageAt(cycle)
		started := time.Now()

		res := o.runCycle(ctx, t, bp, stage, content, evals)
		if res.cancelled {
			t.finish(StatusCancelled, "")
			logging.Engine("task %s cancelled during cycle %d", t.ID, cycle)
			return
		}

		if res.accepted {
			version++
			if err := o.artifacts.Save(&artifact.Artifact{TaskID: t.ID, Version: version, Language: t.Language, Content: res.newContent}); err != nil {
				version--
				res.accepted = false
				res.outcome = OutcomeFailed
				res.failureReason = fmt.Sprintf("failed to persist accepted candidate: %v", err)
			} else {
				content = res.newContent
				t.recordBest(version, res.report.Aggregate, res.report)
			}
		}

		snap := t.tracker.Record(coherence.CycleInput{
			Cycle:             cycle,
			Aggregate:         res.aggregate,
			Improved:          res.accepted,
			BoundaryViolation: res.boundary,
		})

		if _, err := o.collector.Collect(ctx, residue.CycleOutcome{
			TaskID:        t.ID,
			Cycle:         cycle,
			Goal:          t.Goal,
			Domain:        bp.Domain,
			Agent:         res.agentName,
			Stage:         stage.Role,
			Accepted:      res.accepted,
			Evaluated:     res.evaluated,
			Aggregate:     res.aggregate,
			Threshold:     bp.Evolution.ConvergenceThreshold,
			FailureReason: res.failureReason,
			Reflection:    res.reflection,
			DiffExcerpt:   res.diffExcerpt,
		}); err != nil {
			logging.Get(logging.CategoryEngine).Warn("residue collection failed for task %s cycle %d: %v", t.ID, cycle, err)
		}

		t.appendRecord(CycleRecord{
			Cycle:     cycle,
			Agent:     res.agentName,
			Role:      stage.Role,
			Outcome:   res.outcome,
			Aggregate: res.aggregate,
			Summary:   res.summary,
			Error:     res.failureReason,
			Started:   started,
			Finished:  time.Now(),
		})
		if res.failureReason != "" {
			t.setLastError(res.failureReason)
		}

		switch {
		case res.evaluated && res.report.Passed && res.report.Aggregate >= bp.Evolution.ConvergenceThreshold:
			t.finish(StatusConverged, "")
			logging.Engine("task %s converged at cycle %d with score %.3f", t.ID, cycle, res.report.Aggregate)
			return
		case t.tracker.ShouldFinalize():
			t.finish(StatusUnstable, fmt.Sprintf("coherence product %.3f left the stability band", snap.Product))
			logging.Engine("task %s unstable at cycle %d (product %.3f)", t.ID, cycle, snap.Product)
			return
		case cycle >= maxIter:
			t.finish(StatusExhausted, "")
			logging.Engine("task %s exhausted its %d-cycle budget", t.ID, maxIter)
			return
		}

		if res.unrecoverable {
			consecutive++
		} else {
			consecutive = 0
		}
		if consecutive >= o.cfg.Engine.MaxConsecutiveFailures {
			t.finish(StatusFailed, res.failureReason)
			logging.Engine("task %s failed after %d consecutive unrecoverable cycles", t.ID, consecutive)
			return
		}

		if res.outcome == OutcomeFailed && o.cfg.Engine.PauseOnFailure {
			if !t.awaitGuidance(ctx) {
				t.finish(StatusCancelled, "")
				return
			}
		}
	}
}

// runCycle executes one cycle against the current artifact content and
// reports what happened without mutating task state. Cancellation is checked
// after the agent call returns and after evaluation completes; an in-flight
// result is discarded, never applied.
func (o *Orchestrator) runCycle(ctx context.Context, t *Task, bp *blueprint.Blueprint, stage blueprint.Stage, content string, evals []evaluate.Weighted) cycleResult {
	guidance := t.drainGuidance()

	hits, err := o.residues.FindRelevant(ctx, residue.Query{Goal: t.Goal, Domain: bp.Domain, Artifact: content}, o.cfg.Residue.FindLimit)
	if err != nil {
		logging.Get(logging.CategoryEngine).Warn("residue lookup failed for task %s: %v", t.ID, err)
	}
	// Least relevant first so budget truncation sheds weak hits before
	// strong ones.
	lines := make([]string, 0, len(hits))
	for i := len(hits) - 1; i >= 0; i-- {
		lines = append(lines, hits[i].PromptLine())
	}

	p, err := o.builder.Build(prompt.Inputs{
		Goal:         t.Goal,
		Language:     t.Language,
		Artifact:     content,
		Blueprint:    bp,
		Stage:        stage,
		Residue:      lines,
		PriorOutputs: t.priorOutputs(),
		Guidance:     guidance,
	})
	if err != nil {
		return cycleResult{
			outcome:       OutcomeFailed,
			failureReason: fmt.Sprintf("prompt assembly failed: %v", err),
			unrecoverable: true,
			aggregate:     t.Status().BestScore,
			summary:       "prompt assembly failed",
		}
	}

	resp, cap, err := o.invokeThroughFallbacks(ctx, t, bp, stage, agent.Request{System: p.System, Prompt: p.User, Stage: stage.Role})
	if err != nil {
		if t.Cancelled() {
			return cycleResult{cancelled: true}
		}
		res := cycleResult{
			outcome:       OutcomeFailed,
			unrecoverable: true,
			aggregate:     t.Status().BestScore,
		}
		if errors.Is(err, agent.ErrUnavailable) {
			res.failureReason = err.Error()
			res.summary = "no agent available"
		} else {
			res.failureReason = fmt.Sprintf("agent unavailable: %v", err)
			res.summary = "agent invocation failed"
		}
		return res
	}
	res := cycleResult{agentName: cap.Name(), aggregate: t.Status().BestScore}
	if t.Cancelled() {
		res.cancelled = true
		return res
	}

	parsed := parse.Response(resp.Text)
	for attempt := 1; parsed.Kind == parse.KindUnparseable && attempt <= o.cfg.Engine.ParseRetryLimit; attempt++ {
		logging.EngineDebug("task %s cycle reformat retry %d/%d: %v", t.ID, attempt, o.cfg.Engine.ParseRetryLimit, parsed.Err)
		resp, err = o.invoke(ctx, cap, agent.Request{System: p.System, Prompt: reformatPrompt(p.User, parsed.Err.Reason), Stage: stage.Role})
		if err != nil {
			res.outcome = OutcomeFailed
			res.failureReason = fmt.Sprintf("agent unavailable: %v", err)
			res.unrecoverable = true
			res.summary = "agent invocation failed"
			return res
		}
		if t.Cancelled() {
			res.cancelled = true
			return res
		}
		parsed = parse.Response(resp.Text)
	}
	if parsed.Kind == parse.KindUnparseable {
		res.outcome = OutcomeFailed
		res.failureReason = parsed.Err.Error()
		res.unrecoverable = true
		res.summary = "response could not be parsed"
		return res
	}

	res.reflection = parsed.Reflection
	if parsed.Kind == parse.KindReflection {
		// No diff proposed; the artifact stands.
		res.outcome = OutcomeRejected
		res.summary = "reflection only, no diff proposed"
		return res
	}

	candidate, err := artifact.Apply(content, parsed.Edits)
	if err != nil {
		var bv *artifact.BoundaryViolation
		res.boundary = errors.As(err, &bv)
		res.outcome = OutcomeFailed
		res.failureReason = err.Error()
		res.unrecoverable = true
		res.summary = "diff rejected"
		return res
	}
	res.diffExcerpt = artifact.Excerpt(content, candidate, 20)

	report, err := o.runner.Run(ctx, o.candidate(t, candidate, content), evals)
	if err != nil {
		if t.Cancelled() || ctx.Err() != nil {
			res.cancelled = true
			return res
		}
		res.outcome = OutcomeFailed
		res.failureReason = fmt.Sprintf("evaluation failed: %v", err)
		res.summary = "evaluation failed"
		return res
	}
	if t.Cancelled() {
		res.cancelled = true
		return res
	}

	res.evaluated = true
	res.report = report
	res.aggregate = report.Aggregate
	best := t.Status().BestScore
	res.accepted = report.Passed && report.Aggregate > best
	stats := artifact.Stats(content, candidate)
	if res.accepted {
		res.outcome = OutcomeAccepted
		res.newContent = candidate
		res.summary = fmt.Sprintf("accepted: score %.3f (+%d/-%d lines)", report.Aggregate, stats.LinesAdded, stats.LinesRemoved)
	} else {
		res.outcome = OutcomeRejected
		res.summary = fmt.Sprintf("rejected: score %.3f vs best %.3f", report.Aggregate, best)
		if gates := report.GateViolations(); len(gates) > 0 {
			res.failureReason = fmt.Sprintf("evaluation gate violated: %s", strings.Join(gates, ", "))
		}
	}
	return res
}

func (o *Orchestrator) candidate(t *Task, content, parent string) evaluate.Candidate {
	return evaluate.Candidate{Content: content, Parent: parent, Language: t.Language, Goal: t.Goal}
}

// invokeThroughFallbacks invokes the stage's primary agent and, when an agent
// exhausts its retry budget, falls through the blueprint's fallback list.
// Each candidate agent gets a full retry budget before the next is tried.
func (o *Orchestrator) invokeThroughFallbacks(ctx context.Context, t *Task, bp *blueprint.Blueprint, stage blueprint.Stage, req agent.Request) (*agent.Response, agent.Capability, error) {
	names := append([]string{stage.Agent}, bp.FallbacksFor(stage.Agent)...)
	tried := make(map[string]bool, len(names))
	var lastErr error
	for _, name := range names {
		cap, err := o.agents.Select(name, nil)
		if err != nil {
			logging.EngineDebug("task %s agent %s not configured, trying next", t.ID, name)
			continue
		}
		if tried[cap.Name()] {
			continue
		}
		tried[cap.Name()] = true

		resp, err := o.invoke(ctx, cap, req)
		if err == nil {
			return resp, cap, nil
		}
		lastErr = err
		if t.Cancelled() || ctx.Err() != nil {
			break
		}
		logging.Engine("task %s agent %s exhausted its retry budget: %v", t.ID, cap.Name(), err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s (fallbacks: %v)", agent.ErrUnavailable, stage.Agent, bp.FallbacksFor(stage.Agent))
	}
	return nil, nil, lastErr
}

func (o *Orchestrator) invoke(ctx context.Context, cap agent.Capability, req agent.Request) (*agent.Response, error) {
	ictx := ctx
	if d := o.cfg.Engine.AgentTimeout.Std(); d > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return agent.InvokeWithRetry(ictx, cap, req, agent.RetryPolicy{
		MaxRetries: o.cfg.Engine.AgentRetries,
		Backoff:    o.cfg.Engine.RetryBackoff.Std(),
	})
}

func reformatPrompt(user, reason string) string {
	return user + fmt.Sprintf("\n\nYour previous response could not be applied: %s.\n"+
		"Respond ONLY with one or more SEARCH/REPLACE blocks in exactly this format, with no other text:\n"+
		"<<<<<<< SEARCH\n(exact lines from the current code)\n=======\n(replacement lines)\n>>>>>>> REPLACE", reason)
}
