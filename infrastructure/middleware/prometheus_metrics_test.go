package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-triage/internal/ports"
)

// testPrometheusMetrics is shared across the package's tests because
// promauto registers in the global registry; a second instance would
// panic on duplicate registration.
var testPrometheusMetrics = NewPrometheusMetrics()

func TestNewPrometheusMetrics(t *testing.T) {
	pm := testPrometheusMetrics
	require.NotNil(t, pm)

	assert.NotNil(t, pm.requestCounter)
	assert.NotNil(t, pm.tokenCounter)
	assert.NotNil(t, pm.requestLatency)
	assert.NotNil(t, pm.taskLatency)
	assert.NotNil(t, pm.confidence)
	assert.NotNil(t, pm.roundCounter)

	var _ ports.MetricsCollector = pm
}

func TestPrometheusMetricsRecordLatency(t *testing.T) {
	pm := testPrometheusMetrics

	tests := []struct {
		name      string
		operation string
		labels    map[string]string
	}{
		{name: "task label present", operation: "classify", labels: map[string]string{"task": "plagiarism"}},
		{name: "task label absent falls back to operation", operation: "synthesis", labels: map[string]string{}},
		{name: "nil labels", operation: "statistics", labels: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				pm.RecordLatency(tt.operation, 150*time.Millisecond, tt.labels)
			})
		})
	}
}

func TestPrometheusMetricsRecordCounter(t *testing.T) {
	pm := testPrometheusMetrics

	tests := []struct {
		name   string
		metric string
		value  float64
		labels map[string]string
	}{
		{
			name:   "request counter",
			metric: "llm_requests_total",
			value:  1,
			labels: map[string]string{"provider": "google", "model": "gemini-2.5-flash", "status": "success"},
		},
		{
			name:   "token counter",
			metric: "llm_tokens_total",
			value:  120,
			labels: map[string]string{"provider": "google", "model": "gemini-2.5-flash", "token_type": "input"},
		},
		{
			name:   "round counter",
			metric: "triage_rounds_total",
			value:  1,
			labels: map[string]string{"outcome": "converged"},
		},
		{
			name:   "unknown metric lands in the generic counter",
			metric: "unexpected_counter",
			value:  1,
			labels: map[string]string{},
		},
		{
			name:   "missing labels use empty values",
			metric: "llm_requests_total",
			value:  1,
			labels: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				pm.RecordCounter(tt.metric, tt.value, tt.labels)
			})
		})
	}
}

func TestPrometheusMetricsRecordHistogram(t *testing.T) {
	pm := testPrometheusMetrics

	tests := []struct {
		name   string
		metric string
		value  float64
		labels map[string]string
	}{
		{
			name:   "request latency",
			metric: "llm_latency_seconds",
			value:  0.42,
			labels: map[string]string{"provider": "openai", "model": "gpt-4o-mini"},
		},
		{
			name:   "task confidence",
			metric: "triage_task_confidence",
			value:  0.97,
			labels: map[string]string{"task": "plagiarism"},
		},
		{
			name:   "unknown metric lands in the task histogram",
			metric: "unexpected_histogram",
			value:  0.1,
			labels: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				pm.RecordHistogram(tt.metric, tt.value, tt.labels)
			})
		})
	}
}

func TestPrometheusMetricsNegativeCounterPanics(t *testing.T) {
	pm := testPrometheusMetrics

	// Prometheus counters reject negative increments.
	assert.Panics(t, func() {
		pm.RecordCounter("triage_rounds_total", -1, map[string]string{"outcome": "converged"})
	})
}
