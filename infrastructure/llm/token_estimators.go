package llm

import (
	"context"
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ahrav/go-triage/internal/domain"
	"github.com/ahrav/go-triage/internal/ports"
)

// TokenEstimator provides local, deterministic token estimation for
// providers without a remote count endpoint.
type TokenEstimator interface {
	// EstimateTokens returns an approximate token count for the text.
	EstimateTokens(text string) int
}

// CharacterBasedTokenEstimator estimates tokens from character count.
// Fast and provider-agnostic; used as the last-resort fallback.
type CharacterBasedTokenEstimator struct{ charsPerToken float64 }

// NewCharacterBasedTokenEstimator creates a character-based estimator.
// Typical ratios are around 4.0 characters per token for English text.
func NewCharacterBasedTokenEstimator(charsPerToken float64) *CharacterBasedTokenEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &CharacterBasedTokenEstimator{charsPerToken: charsPerToken}
}

// EstimateTokens divides the character count by the configured ratio.
func (e *CharacterBasedTokenEstimator) EstimateTokens(text string) int {
	return int(float64(len(text)) / e.charsPerToken)
}

// TiktokenEstimator counts tokens with the model's actual BPE encoding.
// Exact for OpenAI models and a close approximation for others.
type TiktokenEstimator struct{ encoding *tiktoken.Tiktoken }

// NewTiktokenEstimator resolves the encoding for a model name, falling
// back to cl100k_base when the model is unknown to the tokenizer tables.
func NewTiktokenEstimator(model string) (*TiktokenEstimator, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("resolving tokenizer encoding: %w", err)
		}
	}
	return &TiktokenEstimator{encoding: encoding}, nil
}

// EstimateTokens encodes the text and returns the token count.
func (e *TiktokenEstimator) EstimateTokens(text string) int {
	return len(e.encoding.Encode(text, nil, nil))
}

var _ ports.CostEstimator = (*LocalCostEstimator)(nil)

// LocalCostEstimator adapts a TokenEstimator to the CostEstimator port
// by summing part costs. It never fails, so it never triggers the
// adapter's fail-safe degradation on its own.
type LocalCostEstimator struct{ estimator TokenEstimator }

// NewLocalCostEstimator wraps a local token estimator.
func NewLocalCostEstimator(estimator TokenEstimator) *LocalCostEstimator {
	return &LocalCostEstimator{estimator: estimator}
}

// MeasureCost sums the estimated token cost of all parts.
func (l *LocalCostEstimator) MeasureCost(_ context.Context, parts []domain.ContentPart) (int, error) {
	total := 0
	for _, p := range parts {
		total += l.estimator.EstimateTokens(p.Text)
	}
	return total, nil
}
