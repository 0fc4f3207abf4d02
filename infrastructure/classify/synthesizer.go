package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-triage/infrastructure/llm"
	"github.com/ahrav/go-triage/internal/domain"
	"github.com/ahrav/go-triage/internal/ports"
)

var _ ports.Synthesizer = (*DecisionSynthesizer)(nil)

// SynthesizerConfig defines the configuration for a DecisionSynthesizer.
type SynthesizerConfig struct {
	// SystemPrompt is the system instruction template for the terminal
	// synthesis call. It may use the {{.Categories}} placeholder.
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt" validate:"required,min=20"`

	// MaxTokens limits the output length. Defaults to DefaultMaxTokens.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"min=0,max=8192"`
}

// DecisionSynthesizer folds the accepted findings of a run into the
// terminal decision through the same fit -> invoke -> parse pipeline as
// classification. Upstream confidences are stripped before the call so
// the synthesis judges evidence on its own terms.
type DecisionSynthesizer struct {
	config    SynthesizerConfig
	invoker   Invoker
	fitter    Fitter
	template  *template.Template
	validator *validator.Validate
	logger    *slog.Logger
}

// synthesisData is the substitution context for the synthesis prompt.
type synthesisData struct {
	Categories []string
}

// NewDecisionSynthesizer validates the configuration, compiles the
// prompt template, and returns a ready synthesizer.
func NewDecisionSynthesizer(config SynthesizerConfig, invoker Invoker, fitter Fitter, logger *slog.Logger) (*DecisionSynthesizer, error) {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid synthesizer config: %w", err)
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.New("synthesize").Parse(config.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("compiling synthesis template: %w", err)
	}

	return &DecisionSynthesizer{
		config:    config,
		invoker:   invoker,
		fitter:    fitter,
		template:  tmpl,
		validator: v,
		logger:    logger,
	}, nil
}

// Synthesize turns the report into the terminal decision.
func (s *DecisionSynthesizer) Synthesize(ctx context.Context, report domain.Report) (domain.Decision, domain.TokenTrace, error) {
	if len(report.Findings) == 0 {
		return domain.Decision{}, nil, domain.ErrNoTasks
	}

	categories := report.TaskNames()
	system, err := s.renderPrompt(categories)
	if err != nil {
		return domain.Decision{}, nil, err
	}

	// The scheduler already strips confidences; stripping again here
	// keeps the invariant local instead of trusting every caller.
	payload, err := json.MarshalIndent(report.WithoutConfidence(), "", "  ")
	if err != nil {
		return domain.Decision{}, nil, fmt.Errorf("encoding report: %w", err)
	}

	parts := s.fitter.Fit(ctx, []domain.ContentPart{
		{Name: "findings", Text: string(payload), Role: domain.PartCore},
	})
	if len(parts) == 0 {
		return domain.Decision{}, nil, fmt.Errorf("synthesis payload: %w", domain.ErrEmptyDocument)
	}

	schema := domain.DecisionSchema(categories)
	temp := 0.0
	resp, err := s.invoker.Invoke(ctx, llm.Request{
		System:      system,
		Parts:       parts,
		Schema:      &schema,
		Temperature: &temp,
		MaxTokens:   s.config.MaxTokens,
		Logprobs:    true,
	})
	if err != nil {
		return domain.Decision{}, nil, fmt.Errorf("synthesis: %w", err)
	}
	// Logprobs were requested; a traceless response cannot be scored.
	if len(resp.Trace) == 0 {
		return domain.Decision{}, nil, fmt.Errorf("synthesis: %w", domain.ErrEmptyTrace)
	}

	var decision domain.Decision
	if err := decodeJSON(resp.Text, &decision); err != nil {
		return domain.Decision{}, nil, fmt.Errorf("synthesis: %w", err)
	}
	if err := s.validator.Struct(decision); err != nil {
		return domain.Decision{}, nil, fmt.Errorf("synthesis: invalid decision: %w", err)
	}

	s.logger.Debug("decision synthesized",
		"verdict", decision.Verdict,
		"primary_category", decision.PrimaryCategory)
	return decision, resp.Trace, nil
}

func (s *DecisionSynthesizer) renderPrompt(categories []string) (string, error) {
	var buf bytes.Buffer
	if err := s.template.Execute(&buf, synthesisData{Categories: categories}); err != nil {
		return "", fmt.Errorf("rendering synthesis prompt: %w", err)
	}
	return buf.String(), nil
}
