// Package confidence derives trust scores for schema-constrained model
// output from raw per-token log-probabilities. Instead of trusting a
// model's self-reported confidence, the extractor locates each named
// field inside the token stream, validates enum values against the
// declared schema, and computes the geometric mean of the value tokens'
// probabilities.
package confidence

import (
	"log/slog"
	"math"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ahrav/go-triage/internal/domain"
	"github.com/ahrav/go-triage/internal/ports"
)

var _ ports.Scorer = (*Extractor)(nil)

// structuralTokens are the JSON punctuation tokens skipped between a
// located key and the first token of its value. Tokens are compared
// after whitespace trimming, so a lone space collapses to "".
var structuralTokens = map[string]struct{}{
	":":  {},
	`"`:  {},
	"{":  {},
	"":   {},
	`":`: {},
}

// valueDelimiters terminate value capture. These are matched against the
// raw token text because models emit them as standalone tokens.
var valueDelimiters = map[string]struct{}{
	",":  {},
	"}":  {},
	"],": {},
	"\n": {},
	`",`: {},
}

// Extractor computes field-level and schema-level confidence scores from
// token traces. It is stateless apart from its logger and safe for
// concurrent use.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil logger falls back to the
// default slog logger.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Score folds per-field confidences into one trust score using the
// schema's weighting table. Weights sum to 1, so the result stays in
// [0,1]. An empty trace scores 0.
func (e *Extractor) Score(trace domain.TokenTrace, schema domain.Schema) float64 {
	if len(trace) == 0 {
		e.logger.Warn("scoring empty token trace", "schema", schema.Name)
		return 0
	}

	total := 0.0
	for field, weight := range schema.Weights {
		total += weight * e.FieldConfidence(trace, field, schema)
	}
	return total
}

// FieldConfidence locates one named field in the trace and returns the
// geometric mean of its value tokens' probabilities, in [0,1].
//
// The scan has four phases:
//  1. Key discovery: a field name may be split across several output
//     tokens, so candidate tokens are concatenated incrementally (after
//     stripping quotes and whitespace) until they equal the target name
//     or the partial match dies.
//  2. Punctuation skip: structural separators between key and value are
//     consumed.
//  3. Value capture: tokens and their log-probabilities accumulate until
//     a delimiter token is reached.
//  4. Validation and scoring: enum fields whose captured value is not in
//     the declared set score 0 regardless of token probabilities, so a
//     confidently hallucinated value is never rewarded. A field with no
//     captured value also scores 0 and is logged as a data-quality
//     warning.
func (e *Extractor) FieldConfidence(trace domain.TokenTrace, field string, schema domain.Schema) float64 {
	target := strings.ToLower(field)

	var valueTokens []string
	var valueLogProbs []float64
	foundKey := false
	idx := 0

	for idx < len(trace) {
		if !foundKey {
			current := cleanToken(trace[idx].Token)

			// Rebuild the key incrementally: the tokenizer may split
			// "violation_found" into "violation", "_", "found".
			if current != "" && strings.HasPrefix(target, current) {
				reconstructed := current
				next := idx + 1
				for next < len(trace) && reconstructed != target {
					piece := cleanToken(trace[next].Token)
					reconstructed += piece
					if piece == "" || !strings.HasPrefix(target, reconstructed) {
						break
					}
					next++
				}
				if reconstructed == target {
					foundKey = true
					idx = next
					continue
				}
			}
			idx++
			continue
		}

		if _, structural := structuralTokens[strings.TrimSpace(trace[idx].Token)]; structural {
			idx++
			continue
		}

		for idx < len(trace) {
			token := trace[idx].Token
			if _, delim := valueDelimiters[token]; delim {
				break
			}
			valueTokens = append(valueTokens, token)
			valueLogProbs = append(valueLogProbs, trace[idx].LogProb)
			idx++
		}
		break
	}

	if len(valueLogProbs) == 0 {
		e.logger.Warn("field absent from model output",
			"schema", schema.Name, "field", field)
		return 0
	}

	if allowed := schema.AllowedValues(field); allowed != nil {
		value := normalizeValue(strings.Join(valueTokens, ""))
		if !contains(allowed, value) {
			e.logger.Warn("captured value not in declared enum",
				"schema", schema.Name,
				"field", field,
				"value", value,
				"nearest", nearestAllowed(value, allowed))
			return 0
		}
	}

	// Geometric mean of probabilities: e^(mean of log-probabilities).
	sum := 0.0
	for _, lp := range valueLogProbs {
		sum += lp
	}
	return math.Exp(sum / float64(len(valueLogProbs)))
}

// cleanToken strips whitespace and JSON quoting and lowercases a token
// for key matching.
func cleanToken(token string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(token), `"`))
}

// normalizeValue strips the quoting and surrounding whitespace a model
// emits around a captured enum value.
func normalizeValue(value string) string {
	return strings.Trim(strings.TrimSpace(value), `"`)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// nearestAllowed returns the declared value closest to the captured one
// by edit distance. Only used to make the enum-mismatch warning
// actionable.
func nearestAllowed(value string, allowed []string) string {
	best := ""
	bestDist := math.MaxInt
	for _, candidate := range allowed {
		if d := levenshtein.ComputeDistance(value, candidate); d < bestDist {
			bestDist = d
			best = candidate
		}
	}
	return best
}
