// Package llm provides the rate-limited invocation layer for the triage
// orchestrator: schema-constrained model providers, a process-wide
// concurrency gate with retry and shared pacing, token-cost estimation,
// and the content-size adapter that degrades oversized payloads.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by providers and the invoker.
var (
	// ErrEmptyAPIKey indicates that an API key was required but not provided.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse indicates the provider returned an empty response body.
	ErrEmptyResponse = errors.New("empty response from API")
	// ErrNoTokenTrace indicates the provider response carried no
	// log-probability data, making confidence extraction impossible.
	ErrNoTokenTrace = errors.New("response carries no token log-probabilities")
)

// ErrorType categorizes an upstream failure for retry decisions.
type ErrorType int

const (
	// ErrorTypeUnknown indicates an error of an undetermined category.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeAuthentication indicates an invalid or rejected credential.
	ErrorTypeAuthentication
	// ErrorTypeRateLimit indicates an explicit rate-limit signal (429).
	ErrorTypeRateLimit
	// ErrorTypeBadRequest indicates a malformed request.
	ErrorTypeBadRequest
	// ErrorTypeServerError indicates a 5xx failure on the provider's end.
	ErrorTypeServerError
	// ErrorTypeNetwork indicates a client-side network problem.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates the request timed out.
	ErrorTypeTimeout
)

// UpstreamError normalizes provider-specific failures into a common
// form the invoker's retry policy can act on.
type UpstreamError struct {
	// Type classifies the failure.
	Type ErrorType
	// Provider names the model provider that produced the error.
	Provider string
	// StatusCode holds the HTTP status code, when applicable.
	StatusCode int
	// Message is the provider's user-facing message.
	Message string
	// WrappedError is the original underlying error.
	WrappedError error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	base := fmt.Sprintf("%s error", e.Provider)
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if s := e.typeString(); s != "" {
		base += fmt.Sprintf(" [%s]", s)
	}
	if e.Message != "" {
		base += ": " + e.Message
	}
	if e.WrappedError != nil {
		base += fmt.Sprintf(": %v", e.WrappedError)
	}
	return base
}

// Unwrap returns the wrapped error for errors.Is and errors.As.
func (e *UpstreamError) Unwrap() error { return e.WrappedError }

// Retryable reports whether the failure is transient. Rate limits,
// server errors, network failures, and timeouts are worth retrying;
// authentication and malformed requests are not.
func (e *UpstreamError) Retryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// IsRateLimit reports whether the failure is an explicit rate-limit
// signal. The invoker doubles the shared pacing duration on these.
func (e *UpstreamError) IsRateLimit() bool { return e.Type == ErrorTypeRateLimit }

func (e *UpstreamError) typeString() string {
	switch e.Type {
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeServerError:
		return "server_error"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return ""
	}
}

// NewUpstreamError builds a standardized error from provider specifics.
func NewUpstreamError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *UpstreamError {
	return &UpstreamError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

// RateLimitError is the terminal failure of a single call after the
// retry budget is exhausted. It carries the original cause and surfaces
// to the scheduler as a task failure for that round; the task itself
// remains eligible for a later round.
type RateLimitError struct {
	// Attempts is the number of attempts made before giving up.
	Attempts int
	// Cause is the error from the final attempt.
	Cause error
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("call failed after %d attempts: %v", e.Attempts, e.Cause)
}

// Unwrap returns the final attempt's error.
func (e *RateLimitError) Unwrap() error { return e.Cause }

// ErrorClassifier standardizes provider-specific errors into
// UpstreamError instances based on HTTP status codes and context state.
type ErrorClassifier struct {
	// Provider is the name of the provider this classifier serves.
	Provider string
}

// ClassifyHTTPError maps an HTTP status code onto the error taxonomy.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, message string, err error) *UpstreamError {
	var errType ErrorType
	switch {
	case statusCode == 401 || statusCode == 403:
		errType = ErrorTypeAuthentication
		message = fmt.Sprintf("%s authentication failed", ec.Provider)
	case statusCode == 429:
		errType = ErrorTypeRateLimit
		message = fmt.Sprintf("%s rate limit exceeded", ec.Provider)
	case statusCode >= 500:
		errType = ErrorTypeServerError
	case statusCode >= 400:
		errType = ErrorTypeBadRequest
	default:
		errType = ErrorTypeUnknown
	}
	return NewUpstreamError(ec.Provider, errType, statusCode, message, err)
}

// ClassifyContextError maps context cancellation and deadline errors.
func (ec *ErrorClassifier) ClassifyContextError(err error) *UpstreamError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewUpstreamError(ec.Provider, ErrorTypeTimeout, 0, "context deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewUpstreamError(ec.Provider, ErrorTypeNetwork, 0, "request canceled", err)
	default:
		return NewUpstreamError(ec.Provider, ErrorTypeUnknown, 0, "", err)
	}
}
