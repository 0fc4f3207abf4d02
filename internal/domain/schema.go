package domain

import (
	"fmt"
	"math"
)

// Canonical field names shared by the output schemas and the confidence
// extractor. They must match the JSON keys the model is asked to emit.
const (
	FieldViolationFound  = "violation_found"
	FieldIssueType       = "issue_type"
	FieldEvidence        = "evidence_snippet"
	FieldReasoning       = "reasoning"
	FieldVerdict         = "verdict"
	FieldPrimaryCategory = "primary_category"
)

// weightTolerance bounds the acceptable drift of a weight table's sum
// from 1.0, absorbing float representation error.
const weightTolerance = 1e-9

// FieldKind distinguishes free-form fields from closed enumerations.
type FieldKind int

const (
	// FieldScalar marks a free-form text field.
	FieldScalar FieldKind = iota

	// FieldBool marks a boolean field. Scored like a scalar; providers
	// use the kind to emit a boolean type in native response schemas.
	FieldBool

	// FieldEnum marks a field whose value must be one of a declared set.
	FieldEnum
)

// FieldSpec describes a single output field for confidence extraction.
// Enum fields carry the closed set of values the model may produce; a
// captured value outside that set zeroes the field's confidence.
type FieldSpec struct {
	Kind FieldKind

	// Allowed lists the legal values for enum fields. Empty for scalars.
	Allowed []string
}

// Schema is an explicit descriptor of a structured output: the declared
// fields and the weighting table used to fold per-field confidences into
// one trust score. It replaces runtime reflection over result types.
type Schema struct {
	// Name identifies the schema in logs and provider requests.
	Name string

	// Fields maps field names to their specs.
	Fields map[string]FieldSpec

	// Weights maps a subset of field names to their share of the overall
	// confidence score. Weights must sum to 1.
	Weights map[string]float64
}

// Validate checks internal consistency: every weighted field is declared
// and the weights sum to 1 within tolerance.
func (s Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema name cannot be empty")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %s declares no fields", s.Name)
	}
	if len(s.Weights) == 0 {
		return fmt.Errorf("schema %s declares no confidence weights", s.Name)
	}

	sum := 0.0
	for field, weight := range s.Weights {
		if _, ok := s.Fields[field]; !ok {
			return fmt.Errorf("schema %s: weighted field %q is not declared", s.Name, field)
		}
		if weight < 0 {
			return fmt.Errorf("schema %s: field %q has negative weight %v", s.Name, field, weight)
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("schema %s: confidence weights sum to %v, want 1", s.Name, sum)
	}
	return nil
}

// AllowedValues returns the declared enum values for a field, or nil when
// the field is a scalar or unknown.
func (s Schema) AllowedValues(field string) []string {
	spec, ok := s.Fields[field]
	if !ok || spec.Kind != FieldEnum {
		return nil
	}
	return spec.Allowed
}

// FindingSchema builds the output schema for one classification task.
// issueTypes is the closed set of categories the task may report; the
// "None" member is appended when absent so a clean document always has a
// legal value.
//
// The weighting emphasizes the evidence snippet: free-text evidence is
// the most failure-prone part of the generation, while the boolean flag
// is nearly always emitted confidently.
func FindingSchema(name string, issueTypes []string) Schema {
	return Schema{
		Name: name,
		Fields: map[string]FieldSpec{
			FieldViolationFound: {Kind: FieldBool},
			FieldIssueType:      {Kind: FieldEnum, Allowed: withNone(issueTypes)},
			FieldEvidence:       {Kind: FieldScalar},
			FieldReasoning:      {Kind: FieldScalar},
		},
		Weights: map[string]float64{
			FieldViolationFound: 0.15,
			FieldIssueType:      0.40,
			FieldEvidence:       0.45,
		},
	}
}

// DecisionSchema builds the output schema for the terminal synthesis
// call. categories is the closed set of primary-reason categories,
// normally the task names of the run.
//
// The verdict is weighted below its justification category: a YES/NO
// token is cheap to emit confidently, the category is where synthesis
// actually goes wrong.
func DecisionSchema(categories []string) Schema {
	return Schema{
		Name: "decision",
		Fields: map[string]FieldSpec{
			FieldVerdict:         {Kind: FieldEnum, Allowed: []string{"YES", "NO"}},
			FieldPrimaryCategory: {Kind: FieldEnum, Allowed: withNone(categories)},
			FieldReasoning:       {Kind: FieldScalar},
		},
		Weights: map[string]float64{
			FieldVerdict:         0.20,
			FieldPrimaryCategory: 0.80,
		},
	}
}

func withNone(values []string) []string {
	for _, v := range values {
		if v == "None" {
			return values
		}
	}
	out := make([]string, 0, len(values)+1)
	out = append(out, values...)
	return append(out, "None")
}
