package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors shared across the orchestrator.
var (
	// ErrNoTasks indicates a scheduler was started with no tasks.
	ErrNoTasks = errors.New("no classification tasks configured")

	// ErrEmptyDocument indicates the input document has no usable parts.
	ErrEmptyDocument = errors.New("document has no non-blank content parts")

	// ErrEmptyTrace indicates a provider returned no token trace, making
	// confidence extraction impossible.
	ErrEmptyTrace = errors.New("empty token trace")

	// ErrInvalidConfiguration indicates a run configuration failed
	// validation.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// OrchestrationError is the fatal failure of an evaluation run: one or
// more tasks never reached the confidence threshold within the round
// budget.
// It always aborts the run; a partial report is never synthesized into
// a decision.
type OrchestrationError struct {
	// FailedTasks names every task that never converged.
	FailedTasks []string

	// Cause is the last task-level error observed, when one exists.
	Cause error
}

// Error implements the error interface.
func (e *OrchestrationError) Error() string {
	msg := fmt.Sprintf("tasks failed to converge: %s", strings.Join(e.FailedTasks, ", "))
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying task error for errors.Is / errors.As.
func (e *OrchestrationError) Unwrap() error { return e.Cause }
