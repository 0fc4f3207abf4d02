package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-triage/internal/domain"
	"github.com/ahrav/go-triage/internal/ports"
)

// ContextBudgeter is implemented by providers that know the input token
// limit of the model they are configured for.
type ContextBudgeter interface {
	ContextBudget() int
}

// Fitter is the content-size adapter: it measures a prospective payload
// against the target model's context budget and degrades it when it
// would not fit. Degradation is single-shot: either the full payload
// goes out or only the mandatory core parts do. Optional parts are
// never partially included.
type Fitter struct {
	estimator ports.CostEstimator
	limit     int
	logger    *slog.Logger
}

// NewFitter creates a Fitter for a model with the given input budget.
func NewFitter(estimator ports.CostEstimator, limit int, logger *slog.Logger) *Fitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fitter{estimator: estimator, limit: limit, logger: logger}
}

// NewFitterForProvider sizes a Fitter from the provider itself. The
// provider must both measure token cost and report its context budget;
// every provider in this package does.
func NewFitterForProvider(core CoreLLM, logger *slog.Logger) (*Fitter, error) {
	estimator, ok := core.(ports.CostEstimator)
	if !ok {
		return nil, fmt.Errorf("provider %T cannot measure token cost", core)
	}
	budgeter, ok := core.(ContextBudgeter)
	if !ok {
		return nil, fmt.Errorf("provider %T does not report a context budget", core)
	}
	return NewFitter(estimator, budgeter.ContextBudget(), logger), nil
}

// Fit returns the payload to actually send. Blank parts are dropped
// first. When the measured cost exceeds the budget, or the measurement
// itself fails, only the core parts survive. An unmeasurable payload is
// treated as over budget rather than risked as an oversized request.
func (f *Fitter) Fit(ctx context.Context, parts []domain.ContentPart) []domain.ContentPart {
	kept := make([]domain.ContentPart, 0, len(parts))
	for _, p := range parts {
		if p.IsBlank() {
			continue
		}
		kept = append(kept, p)
	}

	cost, err := f.estimator.MeasureCost(ctx, kept)
	if err != nil {
		f.logger.Warn("token cost measurement failed, degrading to core parts",
			"limit", f.limit, "error", err)
		return domain.CoreParts(kept)
	}
	if cost <= f.limit {
		return kept
	}

	core := domain.CoreParts(kept)
	f.logger.Info("payload exceeds context budget, sending core parts only",
		"cost", cost, "limit", f.limit,
		"parts", len(kept), "core_parts", len(core))
	return core
}
