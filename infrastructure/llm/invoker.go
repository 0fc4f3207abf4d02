package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/semaphore"
)

// Default invoker settings.
const (
	// DefaultMaxInFlight bounds concurrent upstream calls process-wide.
	// The gate protects a shared quota, so it spans all tasks and runs.
	DefaultMaxInFlight = 5
	// DefaultMaxAttempts is the total attempt budget per call.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay seeds the attempt-local exponential backoff.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxDelay caps the attempt-local backoff.
	DefaultMaxDelay = 60 * time.Second
	// DefaultJitterPercent randomizes backoff to avoid request storms.
	DefaultJitterPercent = 0.1
)

// RetryPolicy is the single retry policy consumed by the invoker. There
// is deliberately no second retry layer around it; the scheduler's round
// loop handles task-level re-evaluation.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry; subsequent delays
	// double.
	BaseDelay time.Duration

	// MaxDelay bounds the exponential growth.
	MaxDelay time.Duration

	// JitterPercent adds +/- this fraction of the delay as jitter.
	// Must be in [0,1].
	JitterPercent float64
}

// DefaultRetryPolicy returns the production retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   DefaultMaxAttempts,
		BaseDelay:     DefaultBaseDelay,
		MaxDelay:      DefaultMaxDelay,
		JitterPercent: DefaultJitterPercent,
	}
}

// delay computes the backoff before retry number attempt (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay * time.Duration(1<<(attempt-1))
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}

	jitter := int64(float64(delay) * p.JitterPercent)
	if jitter > 0 {
		//nolint:gosec // G404: math/rand is acceptable for retry jitter timing.
		delay += time.Duration(rand.Int64N(2*jitter) - jitter)
	}
	if delay < p.BaseDelay {
		delay = p.BaseDelay
	}
	return delay
}

// InvokerConfig assembles the invoker's collaborators. Zero values fall
// back to package defaults; Pacing and Usage are created when nil so a
// bare config still yields a working invoker.
type InvokerConfig struct {
	MaxInFlight int
	Retry       RetryPolicy
	Pacing      *PacingGate
	Usage       *UsageCounters
	Logger      *slog.Logger
}

// Invoker wraps a CoreLLM with the process-wide concurrency gate, the
// per-call retry loop, the shared pacing signal, and usage accounting.
// It is safe for concurrent use; all shared state is internally
// synchronized.
type Invoker struct {
	core   CoreLLM
	sem    *semaphore.Weighted
	policy RetryPolicy
	pacing *PacingGate
	usage  *UsageCounters
	logger *slog.Logger
}

// NewInvoker creates an Invoker around the given provider.
func NewInvoker(core CoreLLM, cfg InvokerConfig) *Invoker {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Pacing == nil {
		cfg.Pacing = NewPacingGate(DefaultPacingDelay, MaxPacingDelay)
	}
	if cfg.Usage == nil {
		cfg.Usage = NewUsageCounters()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Invoker{
		core:   core,
		sem:    semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		policy: cfg.Retry,
		pacing: cfg.Pacing,
		usage:  cfg.Usage,
		logger: cfg.Logger,
	}
}

// Usage returns the shared usage counters.
func (inv *Invoker) Usage() *UsageCounters { return inv.usage }

// Pacing returns the shared pacing gate.
func (inv *Invoker) Pacing() *PacingGate { return inv.pacing }

// Invoke sends one request through the concurrency gate with retries.
//
// Only retryable upstream errors are retried, with attempt-local
// exponential backoff. Every explicit rate-limit signal doubles the
// shared pacing gate; any success resets it and then sleeps the current
// pacing duration while still holding the semaphore slot, so the
// aggregate request rate stays below the quota that was just respected.
// Exhausting the attempt budget yields a terminal RateLimitError
// carrying the final cause.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*RawResponse, error) {
	if err := inv.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring invocation slot: %w", err)
	}
	defer inv.sem.Release(1)

	var lastErr error
	for attempt := 1; attempt <= inv.policy.MaxAttempts; attempt++ {
		resp, err := inv.core.DoRequest(ctx, req)
		if err == nil {
			inv.usage.Add(resp.TokensIn, resp.TokensOut)
			inv.pacing.Reset()
			// Pace the fleet under the held slot. A cancellation here
			// does not discard the result already obtained.
			_ = sleepCtx(ctx, inv.pacing.Current())
			return resp, nil
		}

		lastErr = err
		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			return nil, err
		}
		if upstream.IsRateLimit() {
			inv.pacing.Double()
		}
		if !upstream.Retryable() {
			return nil, err
		}
		if attempt == inv.policy.MaxAttempts {
			break
		}

		delay := inv.policy.delay(attempt)
		inv.logger.Warn("retrying upstream call",
			"attempt", attempt,
			"max_attempts", inv.policy.MaxAttempts,
			"delay", delay,
			"error", err)
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, fmt.Errorf("context cancelled during retry: %w", err)
		}
	}

	inv.logger.Error("upstream call exhausted retry budget",
		"attempts", inv.policy.MaxAttempts, "error", lastErr)
	return nil, &RateLimitError{Attempts: inv.policy.MaxAttempts, Cause: lastErr}
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
