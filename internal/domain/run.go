package domain

import "time"

// Usage accumulates token consumption reported by the model provider.
type Usage struct {
	TokensIn  int64 `json:"tokens_in"`
	TokensOut int64 `json:"tokens_out"`
}

// EvaluationRun is the terminal output of the scheduler for one document.
// Exactly one of Decision or FailedTasks is populated: a run either ends
// with a synthesized decision or with the names of the tasks that never
// converged. Usage and Elapsed are populated either way.
type EvaluationRun struct {
	// DocumentID echoes the input document identifier.
	DocumentID string `json:"document_id"`

	// Decision is the synthesized terminal result. Nil when the run
	// failed.
	Decision *Decision `json:"decision,omitempty"`

	// Findings holds the accepted per-task results with their stored
	// confidences, for caller inspection and audit.
	Findings map[string]Finding `json:"findings,omitempty"`

	// FailedTasks names the tasks that never converged within the round
	// budget. Empty on success.
	FailedTasks []string `json:"failed_tasks,omitempty"`

	// Usage is the get-and-clear snapshot of the process usage counters
	// taken when the run completed.
	Usage Usage `json:"usage"`

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed"`
}
