package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-triage/internal/domain"
	"github.com/ahrav/go-triage/internal/ports"
)

// OpenAI provider constants.
const (
	// OpenAIDefaultModel is the default model for the OpenAI provider.
	OpenAIDefaultModel = "gpt-4o-mini"

	// openAIDefaultContextBudget is the input token budget assumed when
	// the configuration does not override it.
	openAIDefaultContextBudget = 128_000
)

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

var (
	_ CoreLLM             = (*openAIProvider)(nil)
	_ ports.CostEstimator = (*openAIProvider)(nil)
	_ ContextBudgeter     = (*openAIProvider)(nil)
)

// openAIProvider implements CoreLLM for OpenAI chat completions with
// per-token logprobs. OpenAI exposes no remote token-count endpoint, so
// cost measurement runs locally through the model's BPE encoding.
type openAIProvider struct {
	baseProvider
	client          *openai.Client
	estimator       TokenEstimator
	errorClassifier *ErrorClassifier
	contextBudget   int
}

// newOpenAIProvider creates an OpenAI provider from configuration.
func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}
	budget := config.ContextBudget
	if budget <= 0 {
		budget = openAIDefaultContextBudget
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	estimator, err := NewTiktokenEstimator(model)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer for %s: %w", model, err)
	}

	return &openAIProvider{
		baseProvider:    baseProvider{model: model},
		client:          openai.NewClientWithConfig(clientConfig),
		estimator:       estimator,
		errorClassifier: &ErrorClassifier{Provider: "openai"},
		contextBudget:   budget,
	}, nil
}

// ContextBudget returns the model's assumed input token limit.
func (p *openAIProvider) ContextBudget() int { return p.contextBudget }

// DoRequest sends one chat completion request. JSON output is requested
// through the response-format parameter; the schema's field list is
// appended to the system instruction because chat completions lack a
// native schema parameter for this call shape.
func (p *openAIProvider) DoRequest(ctx context.Context, req Request) (*RawResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return nil, p.handleError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	choice := resp.Choices[0]
	if choice.Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	trace := extractOpenAITrace(choice.LogProbs)
	if req.Logprobs && len(trace) == 0 {
		return nil, ErrNoTokenTrace
	}

	return &RawResponse{
		Text:      choice.Message.Content,
		Trace:     trace,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

// MeasureCost counts payload tokens locally with the model's encoding.
func (p *openAIProvider) MeasureCost(_ context.Context, parts []domain.ContentPart) (int, error) {
	total := 0
	for _, part := range parts {
		total += p.estimator.EstimateTokens(part.Text)
	}
	return total, nil
}

func (p *openAIProvider) buildRequest(req Request) openai.ChatCompletionRequest {
	system := req.System
	if req.Schema != nil {
		system += "\n\n" + schemaInstruction(*req.Schema)
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: PartsText(req.Parts),
	})

	out := openai.ChatCompletionRequest{
		Model:    p.GetModel(),
		Messages: messages,
		LogProbs: req.Logprobs,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Schema != nil {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

// schemaInstruction renders the domain schema as a format instruction
// for providers without native response schemas.
func schemaInstruction(schema domain.Schema) string {
	instruction := "Respond with a single JSON object containing exactly these fields:\n"
	for _, name := range sortedFieldNames(schema) {
		spec := schema.Fields[name]
		switch spec.Kind {
		case domain.FieldBool:
			instruction += fmt.Sprintf("- %q: boolean\n", name)
		case domain.FieldEnum:
			instruction += fmt.Sprintf("- %q: one of %v\n", name, spec.Allowed)
		default:
			instruction += fmt.Sprintf("- %q: string\n", name)
		}
	}
	return instruction
}

// extractOpenAITrace converts choice logprobs into the domain trace.
func extractOpenAITrace(logprobs *openai.LogProbs) domain.TokenTrace {
	if logprobs == nil {
		return nil
	}
	trace := make(domain.TokenTrace, 0, len(logprobs.Content))
	for _, entry := range logprobs.Content {
		trace = append(trace, domain.TokenLogProb{
			Token:   entry.Token,
			LogProb: entry.LogProb,
		})
	}
	return trace
}

// handleError classifies OpenAI API failures into the error taxonomy.
func (p *openAIProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}
		return p.errorClassifier.ClassifyHTTPError(apiErr.HTTPStatusCode, message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return p.errorClassifier.ClassifyHTTPError(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return NewUpstreamError("openai", ErrorTypeUnknown, 0, "request failed", err)
}
