package domain

import "math"

// TokenLogProb pairs one raw output token with the log-probability the
// model assigned to it. The token text includes whatever quoting and
// whitespace the model emitted; consumers strip structure themselves.
type TokenLogProb struct {
	// Token is the raw token text as emitted by the model.
	Token string

	// LogProb is the natural-log probability of the token. Always <= 0.
	LogProb float64
}

// Probability converts the token's log-probability to linear space.
func (t TokenLogProb) Probability() float64 {
	return math.Exp(t.LogProb)
}

// TokenTrace is the ordered sequence of (token, log-probability) pairs
// that produced a structured result. It is ephemeral: the confidence
// extractor consumes it and the trace is discarded.
type TokenTrace []TokenLogProb
