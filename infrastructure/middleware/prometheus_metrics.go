// Package middleware provides cross-cutting concerns for the triage
// orchestrator.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-triage/internal/ports"
)

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It tracks model request volume, latency, token
// consumption, and round-level scheduler behavior.
type PrometheusMetrics struct {
	requestCounter *prometheus.CounterVec
	tokenCounter   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	taskLatency    *prometheus.HistogramVec
	confidence     *prometheus.HistogramVec
	roundCounter   *prometheus.CounterVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers
// all metrics in the global Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		requestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of model requests by provider, model, and status.",
			},
			[]string{"provider", "model", "status"},
		),
		tokenCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens consumed across model requests.",
			},
			[]string{"provider", "model", "token_type"},
		),
		requestLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "Latency of individual model requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),
		taskLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triage_task_duration_seconds",
				Help:    "Wall-clock duration of classification tasks and synthesis.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		confidence: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triage_task_confidence",
				Help:    "Extracted confidence scores per task attempt.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"task"},
		),
		roundCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_rounds_total",
				Help: "Evaluation rounds executed, labeled by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

// RecordLatency records the execution time of a task-level operation.
func (pm *PrometheusMetrics) RecordLatency(
	operation string, duration time.Duration, labels map[string]string,
) {
	task, ok := labels["task"]
	if !ok {
		task = operation
	}
	pm.taskLatency.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordCounter increments the counter matching the metric name.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "llm_requests_total":
		pm.requestCounter.WithLabelValues(
			labels["provider"], labels["model"], labels["status"],
		).Add(value)
	case "llm_tokens_total":
		pm.tokenCounter.WithLabelValues(
			labels["provider"], labels["model"], labels["token_type"],
		).Add(value)
	case "triage_rounds_total":
		pm.roundCounter.WithLabelValues(labels["outcome"]).Add(value)
	default:
		pm.roundCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordHistogram records a value in the histogram matching the metric
// name.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "llm_latency_seconds":
		pm.requestLatency.WithLabelValues(
			labels["provider"], labels["model"],
		).Observe(value)
	case "triage_task_confidence":
		pm.confidence.WithLabelValues(labels["task"]).Observe(value)
	default:
		pm.taskLatency.WithLabelValues(metric).Observe(value)
	}
}
