package domain

import (
	"sort"
)

// Finding is the structured result of one classification task. It is
// immutable once produced; the scheduler replaces a stored finding only
// with one of strictly higher confidence.
type Finding struct {
	// ViolationFound reports whether the task detected a violation.
	ViolationFound bool `json:"violation_found"`

	// IssueType categorizes the violation. Closed enumeration per task;
	// "None" when no violation was found.
	IssueType string `json:"issue_type" validate:"required"`

	// Evidence quotes or describes the material the finding rests on.
	Evidence string `json:"evidence_snippet"`

	// Reasoning explains the classification.
	Reasoning string `json:"reasoning"`

	// Confidence is the trust score in [0,1] derived from the output
	// token log-probabilities, not from the model's self-assessment.
	Confidence float64 `json:"confidence,omitempty" validate:"gte=0,lte=1"`
}

// WithConfidence returns a copy of the finding carrying the given score.
func (f Finding) WithConfidence(score float64) Finding {
	f.Confidence = score
	return f
}

// Decision is the terminal structured result of an evaluation run.
type Decision struct {
	// Verdict is the binding outcome: "YES" to escalate, "NO" to clear.
	Verdict string `json:"verdict" validate:"required,oneof=YES NO"`

	// PrimaryCategory names the task category that drove the verdict,
	// or "None" when the document is clear.
	PrimaryCategory string `json:"primary_category" validate:"required"`

	// Reasoning summarizes the most severe evidence behind the verdict.
	Reasoning string `json:"reasoning"`

	// Confidence is the trust score of the synthesis output itself.
	Confidence float64 `json:"confidence,omitempty" validate:"gte=0,lte=1"`
}

// Report aggregates the accepted findings of a run, keyed by task name.
// It is the payload handed to the final synthesis call.
type Report struct {
	Findings map[string]Finding `json:"findings"`
}

// WithoutConfidence returns a copy of the report with every confidence
// score zeroed. Upstream trust scores must not bias the synthesis call;
// it has to judge evidence quality independently.
func (r Report) WithoutConfidence() Report {
	stripped := make(map[string]Finding, len(r.Findings))
	for name, f := range r.Findings {
		f.Confidence = 0
		stripped[name] = f
	}
	return Report{Findings: stripped}
}

// TaskNames returns the report's task names in stable sorted order.
func (r Report) TaskNames() []string {
	names := make([]string, 0, len(r.Findings))
	for name := range r.Findings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
