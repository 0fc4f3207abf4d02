package confidence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-triage/internal/domain"
)

// flatTrace builds a trace where every token carries the same
// log-probability.
func flatTrace(logProb float64, tokens ...string) domain.TokenTrace {
	trace := make(domain.TokenTrace, 0, len(tokens))
	for _, tok := range tokens {
		trace = append(trace, domain.TokenLogProb{Token: tok, LogProb: logProb})
	}
	return trace
}

func TestFieldConfidenceKeySplitAcrossTokens(t *testing.T) {
	schema := domain.Schema{
		Name:    "test",
		Fields:  map[string]domain.FieldSpec{"violation_found": {Kind: domain.FieldBool}},
		Weights: map[string]float64{"violation_found": 1.0},
	}
	trace := flatTrace(0,
		"{", `"`, "violation", "_", "found", `":`, "true", ",", "}",
	)

	extractor := NewExtractor(nil)
	assert.InDelta(t, 1.0, extractor.FieldConfidence(trace, "violation_found", schema), 1e-9)
}

func TestFieldConfidenceZeroLogProbsScoreOne(t *testing.T) {
	schema := domain.Schema{
		Name:    "test",
		Fields:  map[string]domain.FieldSpec{"reasoning": {Kind: domain.FieldScalar}},
		Weights: map[string]float64{"reasoning": 1.0},
	}
	// Three value tokens, all with log-probability zero.
	trace := flatTrace(0,
		"{", `"`, "reasoning", `":`, `"`, "clear", " and", " sound", `",`, "}",
	)

	extractor := NewExtractor(nil)
	assert.InDelta(t, 1.0, extractor.FieldConfidence(trace, "reasoning", schema), 1e-9)
}

func TestFieldConfidenceGeometricMean(t *testing.T) {
	schema := domain.Schema{
		Name:    "test",
		Fields:  map[string]domain.FieldSpec{"evidence_snippet": {Kind: domain.FieldScalar}},
		Weights: map[string]float64{"evidence_snippet": 1.0},
	}
	trace := domain.TokenTrace{
		{Token: "{", LogProb: 0},
		{Token: `"`, LogProb: 0},
		{Token: "evidence", LogProb: 0},
		{Token: "_snippet", LogProb: 0},
		{Token: `":`, LogProb: 0},
		{Token: "quoted", LogProb: -0.2},
		{Token: " text", LogProb: -0.4},
		{Token: " here", LogProb: -0.6},
		{Token: ",", LogProb: 0},
	}

	extractor := NewExtractor(nil)
	got := extractor.FieldConfidence(trace, "evidence_snippet", schema)
	assert.InDelta(t, math.Exp(-0.4), got, 1e-9)
}

func TestFieldConfidenceEnumValidation(t *testing.T) {
	schema := domain.Schema{
		Name: "test",
		Fields: map[string]domain.FieldSpec{
			"issue_type": {Kind: domain.FieldEnum, Allowed: []string{"Weak Methods", "None"}},
		},
		Weights: map[string]float64{"issue_type": 1.0},
	}

	tests := []struct {
		name  string
		trace domain.TokenTrace
		want  float64
	}{
		{
			name: "allowed value across two tokens",
			trace: flatTrace(0,
				"{", `"`, "issue", "_type", `":`, `"`, "Weak", " Methods", `",`, "}",
			),
			want: 1.0,
		},
		{
			name: "hallucinated value scores zero despite confident tokens",
			trace: flatTrace(0,
				"{", `"`, "issue", "_type", `":`, `"`, "Fabrication", `",`, "}",
			),
			want: 0.0,
		},
	}

	extractor := NewExtractor(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, extractor.FieldConfidence(tt.trace, "issue_type", schema), 1e-9)
		})
	}
}

func TestFieldConfidenceMissingField(t *testing.T) {
	schema := domain.Schema{
		Name:    "test",
		Fields:  map[string]domain.FieldSpec{"verdict": {Kind: domain.FieldEnum, Allowed: []string{"YES", "NO"}}},
		Weights: map[string]float64{"verdict": 1.0},
	}
	trace := flatTrace(0, "{", `"`, "reasoning", `":`, `"`, "text", `",`, "}")

	extractor := NewExtractor(nil)
	assert.Zero(t, extractor.FieldConfidence(trace, "verdict", schema))
}

func TestScoreWeightedSum(t *testing.T) {
	schema := domain.Schema{
		Name: "finding",
		Fields: map[string]domain.FieldSpec{
			"violation_found":  {Kind: domain.FieldBool},
			"issue_type":       {Kind: domain.FieldEnum, Allowed: []string{"Verbatim", "None"}},
			"evidence_snippet": {Kind: domain.FieldScalar},
		},
		Weights: map[string]float64{
			"violation_found":  0.15,
			"issue_type":       0.40,
			"evidence_snippet": 0.45,
		},
	}
	// All value tokens at log-probability zero, so every located field
	// contributes its full weight.
	trace := flatTrace(0,
		"{",
		`"`, "violation", "_found", `":`, "true", ",",
		`"`, "issue", "_type", `":`, `"`, "Verbatim", `",`,
		`"`, "evidence", "_snippet", `":`, `"`, "lifted text", `",`,
		"}",
	)

	extractor := NewExtractor(nil)
	assert.InDelta(t, 1.0, extractor.Score(trace, schema), 1e-9)
}

func TestScorePenalizesMissingField(t *testing.T) {
	schema := domain.Schema{
		Name: "finding",
		Fields: map[string]domain.FieldSpec{
			"violation_found": {Kind: domain.FieldBool},
			"issue_type":      {Kind: domain.FieldEnum, Allowed: []string{"Verbatim", "None"}},
		},
		Weights: map[string]float64{
			"violation_found": 0.25,
			"issue_type":      0.75,
		},
	}
	// issue_type never appears, so only violation_found contributes.
	trace := flatTrace(0, "{", `"`, "violation", "_found", `":`, "false", ",", "}")

	extractor := NewExtractor(nil)
	assert.InDelta(t, 0.25, extractor.Score(trace, schema), 1e-9)
}

func TestScoreEmptyTrace(t *testing.T) {
	schema := domain.FindingSchema("plagiarism", []string{"Verbatim"})
	extractor := NewExtractor(nil)
	assert.Zero(t, extractor.Score(nil, schema))
}
