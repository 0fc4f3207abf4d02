package llm

import (
	"sync"
	"time"
)

// Default pacing durations. The gate starts at the default, doubles on
// every rate-limit signal, and never exceeds the maximum.
const (
	// DefaultPacingDelay is the post-success wait applied after every
	// call while the upstream quota is healthy.
	DefaultPacingDelay = 12 * time.Second

	// MaxPacingDelay caps the doubled wait so a burst of rate limits
	// cannot stall the process indefinitely.
	MaxPacingDelay = 96 * time.Second
)

// PacingGate is the process-wide damping signal shared by all concurrent
// invocations. It is distinct from the per-call retry backoff: the retry
// loop handles one call's transient failure, while the gate slows the
// aggregate request rate so the fleet does not immediately re-trigger
// the limit it just backed off from.
type PacingGate struct {
	mu      sync.Mutex
	current time.Duration
	initial time.Duration
	max     time.Duration
}

// NewPacingGate creates a gate with the given default and maximum wait.
// Non-positive arguments fall back to the package defaults.
func NewPacingGate(initial, max time.Duration) *PacingGate {
	if initial <= 0 {
		initial = DefaultPacingDelay
	}
	if max <= 0 {
		max = MaxPacingDelay
	}
	return &PacingGate{current: initial, initial: initial, max: max}
}

// Current returns the wait currently in force.
func (g *PacingGate) Current() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Double widens the wait in response to a rate-limit signal, capped at
// the configured maximum.
func (g *PacingGate) Double() {
	g.mu.Lock()
	defer g.mu.Unlock()
	doubled := 2 * g.current
	if doubled > g.max {
		doubled = g.max
	}
	g.current = doubled
}

// Reset restores the default wait. Called after any successful send,
// regardless of how high the wait had climbed.
func (g *PacingGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = g.initial
}
