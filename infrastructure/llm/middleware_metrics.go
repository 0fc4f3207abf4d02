package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-triage/internal/ports"
)

// metricsLLM collects request metrics: latency, request counts by
// status, and token usage per provider and model.
type metricsLLM struct {
	next      CoreLLM
	provider  string
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that records request metrics
// through the collector. A nil collector disables recording but keeps
// the chain intact.
func MetricsMiddleware(provider string, collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{
			next:      next,
			provider:  provider,
			collector: collector,
		}
	}
}

// DoRequest executes the request while recording latency, outcome, and
// token counts.
func (m *metricsLLM) DoRequest(ctx context.Context, req Request) (*RawResponse, error) {
	start := time.Now()
	resp, err := m.next.DoRequest(ctx, req)

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"status":   "success",
	}
	if err != nil {
		labels["status"] = classifyStatus(ctx, err)
	}

	if m.collector != nil {
		m.collector.RecordHistogram("llm_latency_seconds", time.Since(start).Seconds(), labels)
		m.collector.RecordCounter("llm_requests_total", 1, labels)

		if err == nil {
			labels["token_type"] = "input"
			m.collector.RecordCounter("llm_tokens_total", float64(resp.TokensIn), labels)

			labels["token_type"] = "output"
			m.collector.RecordCounter("llm_tokens_total", float64(resp.TokensOut), labels)
		}
	}

	return resp, err
}

func classifyStatus(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "timeout"
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.IsRateLimit() {
		return "rate_limited"
	}
	return "error"
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
