package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The global tracer provider defaults to no-op in tests, so these cover
// the wrapping behavior: the span must never alter the result.

func TestTracingMiddlewarePassesResponseThrough(t *testing.T) {
	core := &scriptedLLM{model: "gemini-2.5-flash", results: []scriptedResult{
		{resp: &RawResponse{Text: `{"ok":true}`, TokensIn: 15, TokensOut: 7}},
	}}
	wrapped := TracingMiddleware("triage-test")(core)

	resp, err := wrapped.DoRequest(context.Background(), Request{Logprobs: true})
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, resp.Text)
	assert.Equal(t, 15, resp.TokensIn)
	assert.Equal(t, 7, resp.TokensOut)
	assert.Equal(t, 1, core.callCount())
}

func TestTracingMiddlewarePassesErrorThrough(t *testing.T) {
	boom := errors.New("upstream unavailable")
	core := &scriptedLLM{results: []scriptedResult{{err: boom}}}
	wrapped := TracingMiddleware("triage-test")(core)

	resp, err := wrapped.DoRequest(context.Background(), Request{})

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, resp)
}

func TestTracingMiddlewareDelegatesModelMethods(t *testing.T) {
	core := &scriptedLLM{model: "gemini-2.5-flash"}
	wrapped := TracingMiddleware("triage-test")(core)

	assert.Equal(t, "gemini-2.5-flash", wrapped.GetModel())

	wrapped.SetModel("gemini-2.5-pro")
	assert.Equal(t, "gemini-2.5-pro", core.GetModel())
}
