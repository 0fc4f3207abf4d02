package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr string
	}{
		{
			name:   "valid finding schema",
			schema: FindingSchema("plagiarism", []string{"Verbatim"}),
		},
		{
			name:   "valid decision schema",
			schema: DecisionSchema([]string{"plagiarism", "statistics"}),
		},
		{
			name:    "empty name",
			schema:  Schema{},
			wantErr: "name cannot be empty",
		},
		{
			name: "weights do not sum to one",
			schema: Schema{
				Name:    "broken",
				Fields:  map[string]FieldSpec{"a": {}, "b": {}},
				Weights: map[string]float64{"a": 0.5, "b": 0.4},
			},
			wantErr: "sum to",
		},
		{
			name: "weighted field not declared",
			schema: Schema{
				Name:    "broken",
				Fields:  map[string]FieldSpec{"a": {}},
				Weights: map[string]float64{"missing": 1.0},
			},
			wantErr: "not declared",
		},
		{
			name: "negative weight",
			schema: Schema{
				Name:    "broken",
				Fields:  map[string]FieldSpec{"a": {}, "b": {}},
				Weights: map[string]float64{"a": -0.5, "b": 1.5},
			},
			wantErr: "negative weight",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestFindingSchemaAppendsNone(t *testing.T) {
	schema := FindingSchema("plagiarism", []string{"Verbatim", "Mosaic"})

	allowed := schema.AllowedValues(FieldIssueType)
	assert.Equal(t, []string{"Verbatim", "Mosaic", "None"}, allowed)

	// Already present: not duplicated.
	schema = FindingSchema("plagiarism", []string{"Verbatim", "None"})
	assert.Equal(t, []string{"Verbatim", "None"}, schema.AllowedValues(FieldIssueType))
}

func TestAllowedValuesNilForScalars(t *testing.T) {
	schema := FindingSchema("plagiarism", []string{"Verbatim"})

	assert.Nil(t, schema.AllowedValues(FieldEvidence))
	assert.Nil(t, schema.AllowedValues(FieldViolationFound), "bool fields have no enum")
	assert.Nil(t, schema.AllowedValues("nonexistent"))
}

func TestDecisionSchemaWeighting(t *testing.T) {
	schema := DecisionSchema([]string{"plagiarism"})
	require.NoError(t, schema.Validate())

	assert.InDelta(t, 0.20, schema.Weights[FieldVerdict], 1e-9)
	assert.InDelta(t, 0.80, schema.Weights[FieldPrimaryCategory], 1e-9)
	assert.Equal(t, []string{"YES", "NO"}, schema.AllowedValues(FieldVerdict))
	assert.Contains(t, schema.AllowedValues(FieldPrimaryCategory), "None")
}
