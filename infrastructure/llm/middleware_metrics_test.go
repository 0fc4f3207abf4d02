package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMetricsCollector records every observation keyed by metric name,
// with token counters split out by token type.
type mockMetricsCollector struct {
	mu         sync.Mutex
	histograms map[string]float64
	counters   map[string]float64
	labels     map[string]map[string]string
}

func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{
		histograms: make(map[string]float64),
		counters:   make(map[string]float64),
		labels:     make(map[string]map[string]string),
	}
}

func (m *mockMetricsCollector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[operation] = duration.Seconds()
	m.labels[operation] = cloneLabels(labels)
}

func (m *mockMetricsCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := metric
	if tt := labels["token_type"]; tt != "" {
		key += ":" + tt
	}
	m.counters[key] += value
	m.labels[key] = cloneLabels(labels)
}

func (m *mockMetricsCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[metric] = value
	m.labels[metric] = cloneLabels(labels)
}

func cloneLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func TestMetricsMiddlewareRecordsSuccessfulRequests(t *testing.T) {
	core := &scriptedLLM{model: "gemini-2.5-flash", results: []scriptedResult{
		{resp: &RawResponse{Text: "{}", TokensIn: 120, TokensOut: 40}},
	}}
	collector := newMockMetricsCollector()
	wrapped := MetricsMiddleware("google", collector)(core)

	resp, err := wrapped.DoRequest(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)

	assert.Contains(t, collector.histograms, "llm_latency_seconds")
	assert.GreaterOrEqual(t, collector.histograms["llm_latency_seconds"], 0.0)
	assert.Equal(t, 1.0, collector.counters["llm_requests_total"])
	assert.Equal(t, 120.0, collector.counters["llm_tokens_total:input"])
	assert.Equal(t, 40.0, collector.counters["llm_tokens_total:output"])

	labels := collector.labels["llm_requests_total"]
	assert.Equal(t, "google", labels["provider"])
	assert.Equal(t, "gemini-2.5-flash", labels["model"])
	assert.Equal(t, "success", labels["status"])
}

func TestMetricsMiddlewareRecordsFailedRequests(t *testing.T) {
	core := &scriptedLLM{model: "gpt-4o-mini", results: []scriptedResult{
		{err: errors.New("service error")},
	}}
	collector := newMockMetricsCollector()
	wrapped := MetricsMiddleware("openai", collector)(core)

	_, err := wrapped.DoRequest(context.Background(), Request{})
	require.Error(t, err)

	assert.Equal(t, 1.0, collector.counters["llm_requests_total"])
	assert.Equal(t, "error", collector.labels["llm_requests_total"]["status"])
	assert.NotContains(t, collector.counters, "llm_tokens_total:input",
		"failed requests must not record token usage")
	assert.NotContains(t, collector.counters, "llm_tokens_total:output")
}

func TestMetricsMiddlewareRecordsRateLimitStatus(t *testing.T) {
	core := &scriptedLLM{results: []scriptedResult{
		{err: NewUpstreamError("openai", ErrorTypeRateLimit, 429, "rate limit exceeded", nil)},
	}}
	collector := newMockMetricsCollector()
	wrapped := MetricsMiddleware("openai", collector)(core)

	_, err := wrapped.DoRequest(context.Background(), Request{})
	require.Error(t, err)

	assert.Equal(t, "rate_limited", collector.labels["llm_requests_total"]["status"])
}

func TestMetricsMiddlewareRecordsTimeoutStatus(t *testing.T) {
	core := &scriptedLLM{results: []scriptedResult{
		{err: errors.New("request aborted")},
	}}
	collector := newMockMetricsCollector()
	wrapped := MetricsMiddleware("google", collector)(core)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := wrapped.DoRequest(ctx, Request{})
	require.Error(t, err)

	assert.Equal(t, "timeout", collector.labels["llm_requests_total"]["status"])
}

func TestMetricsMiddlewareAccumulatesAcrossRequests(t *testing.T) {
	ok := scriptedResult{resp: &RawResponse{Text: "{}", TokensIn: 10, TokensOut: 5}}
	core := &scriptedLLM{results: []scriptedResult{ok, ok, {err: errors.New("boom")}}}
	collector := newMockMetricsCollector()
	wrapped := MetricsMiddleware("google", collector)(core)

	for range 2 {
		_, err := wrapped.DoRequest(context.Background(), Request{})
		require.NoError(t, err)
	}
	_, err := wrapped.DoRequest(context.Background(), Request{})
	require.Error(t, err)

	assert.Equal(t, 3.0, collector.counters["llm_requests_total"],
		"failed requests still count toward the request total")
	assert.Equal(t, 20.0, collector.counters["llm_tokens_total:input"])
	assert.Equal(t, 10.0, collector.counters["llm_tokens_total:output"])
}

func TestMetricsMiddlewareNilCollectorPassesThrough(t *testing.T) {
	core := &scriptedLLM{results: []scriptedResult{
		{resp: &RawResponse{Text: "{}", TokensIn: 1, TokensOut: 1}},
	}}
	wrapped := MetricsMiddleware("google", nil)(core)

	resp, err := wrapped.DoRequest(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
	assert.Equal(t, 1, core.callCount())
}

func TestMetricsMiddlewareDelegatesModelMethods(t *testing.T) {
	core := &scriptedLLM{model: "gemini-2.5-flash"}
	wrapped := MetricsMiddleware("google", newMockMetricsCollector())(core)

	assert.Equal(t, "gemini-2.5-flash", wrapped.GetModel())

	wrapped.SetModel("gemini-2.5-pro")
	assert.Equal(t, "gemini-2.5-pro", core.GetModel())
}
