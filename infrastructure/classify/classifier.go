// Package classify binds prompt templates and output schemas to the
// rate-limited invocation pipeline. It provides the Classifier and
// Synthesizer adapters the scheduler runs against; the prompt text
// itself is caller-supplied configuration.
package classify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-triage/infrastructure/llm"
	"github.com/ahrav/go-triage/internal/domain"
	"github.com/ahrav/go-triage/internal/ports"
)

// DefaultMaxTokens bounds the output length of classification calls.
// Structured findings are small; the budget mostly covers reasoning.
const DefaultMaxTokens = 1024

// Invoker sends one request through the rate-limited pipeline.
type Invoker interface {
	Invoke(ctx context.Context, req llm.Request) (*llm.RawResponse, error)
}

// Fitter adapts a payload to the target model's context budget.
type Fitter interface {
	Fit(ctx context.Context, parts []domain.ContentPart) []domain.ContentPart
}

var _ ports.Classifier = (*SchemaClassifier)(nil)

// TaskConfig declares one classification task: the closed set of issue
// categories its finding may report.
type TaskConfig struct {
	// IssueTypes lists the categories the task may assign. "None" is
	// appended automatically when absent.
	IssueTypes []string `yaml:"issue_types" json:"issue_types" validate:"required,min=1"`
}

// ClassifierConfig defines the configuration for a SchemaClassifier.
// All fields are validated during construction.
type ClassifierConfig struct {
	// SystemPrompt is the shared system instruction template. It may use
	// {{.Task}} and {{.IssueTypes}} placeholders.
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt" validate:"required,min=20"`

	// Tasks maps task names to their category sets.
	Tasks map[string]TaskConfig `yaml:"tasks" json:"tasks" validate:"required,min=1,dive"`

	// MaxTokens limits the output length. Defaults to DefaultMaxTokens.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"min=0,max=8192"`
}

// SchemaClassifier runs one classification task through the fit ->
// invoke -> parse pipeline against a schema-constrained model call.
// Safe for concurrent use; the scheduler fans tasks out in parallel.
type SchemaClassifier struct {
	config    ClassifierConfig
	invoker   Invoker
	fitter    Fitter
	template  *template.Template
	validator *validator.Validate
	logger    *slog.Logger
}

// promptData is the substitution context for prompt templates.
type promptData struct {
	Task       string
	IssueTypes []string
}

// NewSchemaClassifier validates the configuration, compiles the prompt
// template, and returns a ready classifier.
func NewSchemaClassifier(config ClassifierConfig, invoker Invoker, fitter Fitter, logger *slog.Logger) (*SchemaClassifier, error) {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid classifier config: %w", err)
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.New("classify").Parse(config.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("compiling prompt template: %w", err)
	}

	return &SchemaClassifier{
		config:    config,
		invoker:   invoker,
		fitter:    fitter,
		template:  tmpl,
		validator: v,
		logger:    logger,
	}, nil
}

// Classify evaluates the document for one named task. The returned
// finding carries no confidence; trust scoring happens downstream from
// the token trace.
func (c *SchemaClassifier) Classify(ctx context.Context, task string, doc domain.Document) (domain.Finding, domain.TokenTrace, error) {
	taskCfg, ok := c.config.Tasks[task]
	if !ok {
		return domain.Finding{}, nil, fmt.Errorf("unknown task %q", task)
	}

	system, err := c.renderPrompt(task, taskCfg.IssueTypes)
	if err != nil {
		return domain.Finding{}, nil, err
	}

	parts := c.fitter.Fit(ctx, doc.Parts)
	if len(parts) == 0 {
		return domain.Finding{}, nil, fmt.Errorf("document %s: %w", doc.ID, domain.ErrEmptyDocument)
	}

	schema := domain.FindingSchema(task, taskCfg.IssueTypes)
	temp := 0.0
	resp, err := c.invoker.Invoke(ctx, llm.Request{
		System:      system,
		Parts:       parts,
		Schema:      &schema,
		Temperature: &temp,
		MaxTokens:   c.config.MaxTokens,
		Logprobs:    true,
	})
	if err != nil {
		return domain.Finding{}, nil, fmt.Errorf("task %s: %w", task, err)
	}
	// Logprobs were requested; a traceless response cannot be scored.
	if len(resp.Trace) == 0 {
		return domain.Finding{}, nil, fmt.Errorf("task %s: %w", task, domain.ErrEmptyTrace)
	}

	var finding domain.Finding
	if err := decodeJSON(resp.Text, &finding); err != nil {
		return domain.Finding{}, nil, fmt.Errorf("task %s: %w", task, err)
	}
	if err := c.validator.Struct(finding); err != nil {
		return domain.Finding{}, nil, fmt.Errorf("task %s: invalid finding: %w", task, err)
	}

	c.logger.Debug("task classified",
		"task", task,
		"document", doc.ID,
		"violation_found", finding.ViolationFound,
		"issue_type", finding.IssueType)
	return finding, resp.Trace, nil
}

func (c *SchemaClassifier) renderPrompt(task string, issueTypes []string) (string, error) {
	var buf bytes.Buffer
	err := c.template.Execute(&buf, promptData{Task: task, IssueTypes: issueTypes})
	if err != nil {
		return "", fmt.Errorf("rendering prompt for task %s: %w", task, err)
	}
	return buf.String(), nil
}
