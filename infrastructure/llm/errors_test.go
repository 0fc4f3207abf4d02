package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHTTPError(t *testing.T) {
	classifier := &ErrorClassifier{Provider: "google"}

	tests := []struct {
		name          string
		statusCode    int
		wantType      ErrorType
		wantRetryable bool
	}{
		{name: "unauthorized", statusCode: 401, wantType: ErrorTypeAuthentication, wantRetryable: false},
		{name: "forbidden", statusCode: 403, wantType: ErrorTypeAuthentication, wantRetryable: false},
		{name: "rate limited", statusCode: 429, wantType: ErrorTypeRateLimit, wantRetryable: true},
		{name: "server error", statusCode: 500, wantType: ErrorTypeServerError, wantRetryable: true},
		{name: "bad gateway", statusCode: 502, wantType: ErrorTypeServerError, wantRetryable: true},
		{name: "bad request", statusCode: 400, wantType: ErrorTypeBadRequest, wantRetryable: false},
		{name: "unexpected status", statusCode: 302, wantType: ErrorTypeUnknown, wantRetryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.ClassifyHTTPError(tt.statusCode, "message", errors.New("wire error"))
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantRetryable, got.Retryable())
			assert.Equal(t, tt.statusCode, got.StatusCode)
			assert.Equal(t, "google", got.Provider)
		})
	}
}

func TestClassifyContextError(t *testing.T) {
	classifier := &ErrorClassifier{Provider: "openai"}

	deadline := classifier.ClassifyContextError(context.DeadlineExceeded)
	assert.Equal(t, ErrorTypeTimeout, deadline.Type)
	assert.True(t, deadline.Retryable())

	canceled := classifier.ClassifyContextError(context.Canceled)
	assert.Equal(t, ErrorTypeNetwork, canceled.Type)
	assert.ErrorIs(t, canceled, context.Canceled)
}

func TestUpstreamErrorUnwrap(t *testing.T) {
	inner := errors.New("tcp reset")
	err := NewUpstreamError("google", ErrorTypeNetwork, 0, "network failure", inner)

	assert.ErrorIs(t, err, inner)

	var upstream *UpstreamError
	require.ErrorAs(t, error(err), &upstream)
	assert.True(t, upstream.Retryable())
	assert.False(t, upstream.IsRateLimit())
}

func TestRateLimitErrorCarriesCause(t *testing.T) {
	cause := NewUpstreamError("google", ErrorTypeRateLimit, 429, "rate limit exceeded", nil)
	err := &RateLimitError{Attempts: 3, Cause: cause}

	assert.Contains(t, err.Error(), "3 attempts")
	var upstream *UpstreamError
	assert.ErrorAs(t, error(err), &upstream)
	assert.True(t, upstream.IsRateLimit())
}
