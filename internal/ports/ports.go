// Package ports defines the interfaces that form the contract between
// the scheduler and the infrastructure layer. These interfaces enable
// dependency inversion and make the orchestrator testable without live
// model providers.
package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-triage/internal/domain"
)

// Classifier performs one named classification task against the external
// model and returns the structured finding together with the raw token
// trace that produced it. Implementations own prompt construction,
// payload fitting, invocation, and response parsing; they must be safe
// for concurrent use because the scheduler fans tasks out in parallel.
type Classifier interface {
	// Classify evaluates the document for one task. The returned finding
	// carries no confidence; the scheduler derives the trust score from
	// the trace. Errors are task-level failures eligible for re-running
	// in a later round.
	Classify(ctx context.Context, task string, doc domain.Document) (domain.Finding, domain.TokenTrace, error)
}

// Synthesizer turns the aggregate report of accepted findings into the
// terminal decision. It has the same shape as Classifier so the final
// call flows through the identical fit -> invoke -> extract pipeline.
type Synthesizer interface {
	Synthesize(ctx context.Context, report domain.Report) (domain.Decision, domain.TokenTrace, error)
}

// Scorer derives a trust score in [0,1] for a structured output from the
// token trace that produced it. The default implementation is the
// log-probability confidence extractor; tests inject scripted scorers.
type Scorer interface {
	Score(trace domain.TokenTrace, schema domain.Schema) float64
}

// CostEstimator measures the token cost of a candidate payload against a
// model profile. Measurement may itself be a remote call; callers must
// treat a measurement failure as "over budget", never as permission to
// send an oversized request.
type CostEstimator interface {
	MeasureCost(ctx context.Context, parts []domain.ContentPart) (int, error)
}

// UsageSource exposes the process-wide usage counters to the scheduler.
type UsageSource interface {
	// SnapshotAndReset atomically reads and clears the accumulated
	// counters. Called once per completed run.
	SnapshotAndReset() domain.Usage
}

// MetricsCollector abstracts operational metrics so infrastructure can
// plug in Prometheus or test doubles.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
