// Package scheduler drives confidence-gated evaluation runs: it fans
// classification tasks out in rounds, keeps the best-scoring result per
// task, and synthesizes the terminal decision once every task has
// converged or the round budget is spent.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-triage/internal/domain"
	"github.com/ahrav/go-triage/internal/ports"
)

// Scheduling defaults.
const (
	// DefaultThreshold is the confidence level a finding must reach to be
	// exempt from re-evaluation.
	DefaultThreshold = 0.95

	// DefaultMaxRounds bounds the evaluation round loop.
	DefaultMaxRounds = 3
)

// Task binds a task name to the classifier that runs it and the output
// schema its confidence is scored against.
type Task struct {
	Name       string
	Classifier ports.Classifier
	Schema     domain.Schema
}

// Config carries the scheduler's tuning knobs. Zero values fall back to
// package defaults.
type Config struct {
	// Threshold is the confidence a stored finding must meet. A finding
	// strictly below it is re-evaluated in the next round.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"gte=0,lte=1"`

	// MaxRounds bounds the round loop.
	MaxRounds int `yaml:"max_rounds" json:"max_rounds" validate:"min=0,max=10"`
}

// Scheduler orchestrates one document evaluation at a time. It is safe
// to call Evaluate concurrently for different documents; the per-task
// upstream pressure is governed by the shared invoker underneath the
// classifiers, not here.
type Scheduler struct {
	tasks       []Task
	synthesizer ports.Synthesizer
	scorer      ports.Scorer
	usage       ports.UsageSource
	metrics     ports.MetricsCollector
	threshold   float64
	maxRounds   int
	logger      *slog.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithMetrics attaches a metrics collector.
func WithMetrics(collector ports.MetricsCollector) Option {
	return func(s *Scheduler) { s.metrics = collector }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a Scheduler. The synthesizer and scorer are required; the
// usage source may be nil, in which case runs report zero usage.
func New(tasks []Task, synthesizer ports.Synthesizer, scorer ports.Scorer, usage ports.UsageSource, cfg Config, opts ...Option) (*Scheduler, error) {
	if len(tasks) == 0 {
		return nil, domain.ErrNoTasks
	}
	if synthesizer == nil {
		return nil, fmt.Errorf("%w: synthesizer is required", domain.ErrInvalidConfiguration)
	}
	if scorer == nil {
		return nil, fmt.Errorf("%w: scorer is required", domain.ErrInvalidConfiguration)
	}
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Name == "" || t.Classifier == nil {
			return nil, fmt.Errorf("%w: task needs a name and a classifier", domain.ErrInvalidConfiguration)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("%w: duplicate task %q", domain.ErrInvalidConfiguration, t.Name)
		}
		seen[t.Name] = true
	}

	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}

	s := &Scheduler{
		tasks:       tasks,
		synthesizer: synthesizer,
		scorer:      scorer,
		usage:       usage,
		threshold:   cfg.Threshold,
		maxRounds:   cfg.MaxRounds,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Evaluate runs the full round loop for one document and synthesizes
// the terminal decision.
//
// A run ends exactly one of two ways. Either every task converged at
// or above the threshold and the returned run carries the decision, or
// at least one task is still unconverged when the round budget runs
// out and Evaluate returns an OrchestrationError naming those tasks;
// the run returned alongside it carries the names plus usage, never a
// decision.
func (s *Scheduler) Evaluate(ctx context.Context, doc domain.Document) (*domain.EvaluationRun, error) {
	start := time.Now()

	if !hasContent(doc) {
		return nil, fmt.Errorf("document %s: %w", doc.ID, domain.ErrEmptyDocument)
	}

	var (
		mu      sync.Mutex
		stored  = make(map[string]domain.Finding, len(s.tasks))
		lastErr error
	)

	for round := 1; round <= s.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pending := s.pending(stored)
		if len(pending) == 0 {
			break
		}
		s.logger.Info("starting evaluation round",
			"document", doc.ID,
			"round", round,
			"max_rounds", s.maxRounds,
			"tasks", taskNames(pending))

		g, gctx := errgroup.WithContext(ctx)
		for _, task := range pending {
			g.Go(func() error {
				attemptStart := time.Now()
				finding, trace, err := task.Classifier.Classify(gctx, task.Name, doc)
				if err != nil {
					mu.Lock()
					lastErr = err
					mu.Unlock()
					s.logger.Warn("task attempt failed",
						"task", task.Name, "round", round, "error", err)
					return nil
				}

				score := s.scorer.Score(trace, task.Schema)
				s.observeAttempt(task.Name, score, time.Since(attemptStart))

				mu.Lock()
				current, ok := stored[task.Name]
				// Replace only on strict improvement; ties keep the
				// earlier result.
				if !ok || score > current.Confidence {
					stored[task.Name] = finding.WithConfidence(score)
				}
				mu.Unlock()
				return nil
			})
		}
		// Round barrier: every retry decision uses complete results.
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	failed := s.unconverged(stored)
	if len(failed) > 0 {
		s.countRound("exhausted")
		// Findings carries the best-effort partials for diagnostics; no
		// decision is ever synthesized from them.
		run := &domain.EvaluationRun{
			DocumentID:  doc.ID,
			Findings:    stored,
			FailedTasks: failed,
			Usage:       s.snapshotUsage(),
			Elapsed:     time.Since(start),
		}
		return run, &domain.OrchestrationError{FailedTasks: failed, Cause: lastErr}
	}
	s.countRound("converged")

	report := domain.Report{Findings: stored}
	decision, trace, err := s.synthesizer.Synthesize(ctx, report.WithoutConfidence())
	if err != nil {
		return nil, fmt.Errorf("synthesizing decision for %s: %w", doc.ID, err)
	}
	decision.Confidence = s.scorer.Score(trace, domain.DecisionSchema(report.TaskNames()))

	s.logger.Info("evaluation complete",
		"document", doc.ID,
		"verdict", decision.Verdict,
		"primary_category", decision.PrimaryCategory,
		"confidence", decision.Confidence,
		"elapsed", time.Since(start))

	return &domain.EvaluationRun{
		DocumentID: doc.ID,
		Decision:   &decision,
		Findings:   stored,
		Usage:      s.snapshotUsage(),
		Elapsed:    time.Since(start),
	}, nil
}

// pending returns the tasks that still need a round: no stored finding,
// or a stored confidence strictly below the threshold.
func (s *Scheduler) pending(stored map[string]domain.Finding) []Task {
	out := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		finding, ok := stored[task.Name]
		if !ok || finding.Confidence < s.threshold {
			out = append(out, task)
		}
	}
	return out
}

// unconverged returns the names of tasks that still need a round after
// the loop ended: no stored finding, or a best confidence below the
// threshold. Sorted for stable error messages.
func (s *Scheduler) unconverged(stored map[string]domain.Finding) []string {
	var failed []string
	for _, task := range s.pending(stored) {
		failed = append(failed, task.Name)
	}
	sort.Strings(failed)
	return failed
}

func (s *Scheduler) snapshotUsage() domain.Usage {
	if s.usage == nil {
		return domain.Usage{}
	}
	return s.usage.SnapshotAndReset()
}

func (s *Scheduler) observeAttempt(task string, score float64, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	labels := map[string]string{"task": task}
	s.metrics.RecordLatency(task, elapsed, labels)
	s.metrics.RecordHistogram("triage_task_confidence", score, labels)
}

func (s *Scheduler) countRound(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCounter("triage_rounds_total", 1, map[string]string{"outcome": outcome})
}

func hasContent(doc domain.Document) bool {
	for _, p := range doc.Parts {
		if !p.IsBlank() {
			return true
		}
	}
	return false
}

func taskNames(tasks []Task) []string {
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.Name)
	}
	return names
}
