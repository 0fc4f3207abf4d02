package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-triage/internal/domain"
	"github.com/ahrav/go-triage/internal/ports"
)

// Google provider constants.
const (
	// GoogleDefaultModel is the default model for the Google provider.
	GoogleDefaultModel = "gemini-2.5-flash"

	// googleDefaultContextBudget is the input token budget assumed when
	// the configuration does not override it.
	googleDefaultContextBudget = 1_000_000
)

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

var (
	_ CoreLLM             = (*googleProvider)(nil)
	_ ports.CostEstimator = (*googleProvider)(nil)
	_ ContextBudgeter     = (*googleProvider)(nil)
)

// googleProvider implements CoreLLM for Google's Gemini API. Gemini is
// the primary provider for triage: it returns per-token log-probability
// results alongside native JSON response schemas, which is exactly what
// confidence extraction needs.
type googleProvider struct {
	baseProvider
	client          *genai.Client
	fallback        TokenEstimator
	errorClassifier *ErrorClassifier
	contextBudget   int
}

// newGoogleProvider creates a Gemini provider from configuration.
func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}
	budget := config.ContextBudget
	if budget <= 0 {
		budget = googleDefaultContextBudget
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		baseProvider:    baseProvider{model: model},
		client:          client,
		fallback:        NewCharacterBasedTokenEstimator(4.0),
		errorClassifier: &ErrorClassifier{Provider: "google"},
		contextBudget:   budget,
	}, nil
}

// ContextBudget returns the model's assumed input token limit.
func (p *googleProvider) ContextBudget() int { return p.contextBudget }

// DoRequest sends one generation request to the Gemini API. When the
// request asks for logprobs, the chosen-candidate log-probabilities are
// converted into the domain token trace.
func (p *googleProvider) DoRequest(ctx context.Context, req Request) (*RawResponse, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(PartsText(req.Parts), genai.RoleUser),
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.GetModel(), contents, p.buildConfig(req))
	if err != nil {
		return nil, p.handleError(err)
	}

	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}

	trace := extractGoogleTrace(resp)
	if req.Logprobs && len(trace) == 0 {
		return nil, ErrNoTokenTrace
	}

	return &RawResponse{
		Text:      text,
		Trace:     trace,
		TokensIn:  p.tokenCount(resp.UsageMetadata, true, PartsText(req.Parts)),
		TokensOut: p.tokenCount(resp.UsageMetadata, false, text),
	}, nil
}

// MeasureCost counts the payload's tokens through the CountTokens RPC.
// Failures propagate so the content-size adapter can fail safe toward
// degradation.
func (p *googleProvider) MeasureCost(ctx context.Context, parts []domain.ContentPart) (int, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(PartsText(parts), genai.RoleUser),
	}
	resp, err := p.client.Models.CountTokens(ctx, p.GetModel(), contents, nil)
	if err != nil {
		return 0, p.handleError(err)
	}
	return int(resp.TotalTokens), nil
}

// buildConfig assembles the generation config: system instruction,
// sampling parameters, the JSON response schema, and logprobs.
func (p *googleProvider) buildConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		temp := clamp(*req.Temperature, 0.0, 2.0)
		config.Temperature = genai.Ptr(float32(temp))
	}
	if req.MaxTokens > 0 {
		if req.MaxTokens > math.MaxInt32 {
			config.MaxOutputTokens = math.MaxInt32
		} else {
			config.MaxOutputTokens = int32(req.MaxTokens)
		}
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = buildGoogleSchema(*req.Schema)
	}
	if req.Logprobs {
		config.ResponseLogprobs = true
		config.Logprobs = genai.Ptr(int32(1))
	}
	return config
}

// buildGoogleSchema converts the explicit domain schema descriptor into
// a Gemini response schema. Field order is stabilized so requests are
// reproducible.
func buildGoogleSchema(schema domain.Schema) *genai.Schema {
	names := sortedFieldNames(schema)

	properties := make(map[string]*genai.Schema, len(names))
	for _, name := range names {
		spec := schema.Fields[name]
		switch spec.Kind {
		case domain.FieldBool:
			properties[name] = &genai.Schema{Type: genai.TypeBoolean}
		case domain.FieldEnum:
			properties[name] = &genai.Schema{Type: genai.TypeString, Enum: spec.Allowed}
		default:
			properties[name] = &genai.Schema{Type: genai.TypeString}
		}
	}

	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: properties,
		Required:   names,
	}
}

// extractGoogleTrace converts the chosen logprob candidates of the first
// response candidate into the domain token trace.
func extractGoogleTrace(resp *genai.GenerateContentResponse) domain.TokenTrace {
	if len(resp.Candidates) == 0 || resp.Candidates[0].LogprobsResult == nil {
		return nil
	}

	chosen := resp.Candidates[0].LogprobsResult.ChosenCandidates
	trace := make(domain.TokenTrace, 0, len(chosen))
	for _, c := range chosen {
		if c == nil {
			continue
		}
		trace = append(trace, domain.TokenLogProb{
			Token:   c.Token,
			LogProb: float64(c.LogProbability),
		})
	}
	return trace
}

// tokenCount prefers the usage metadata, falling back to estimation.
func (p *googleProvider) tokenCount(usage *genai.GenerateContentResponseUsageMetadata, isInput bool, text string) int {
	if usage != nil {
		if isInput && usage.PromptTokenCount > 0 {
			return int(usage.PromptTokenCount)
		}
		if !isInput && usage.CandidatesTokenCount > 0 {
			return int(usage.CandidatesTokenCount)
		}
	}
	return p.fallback.EstimateTokens(text)
}

// handleError classifies Gemini API failures into the error taxonomy.
func (p *googleProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		return p.errorClassifier.ClassifyHTTPError(apiErr.Code, message, err)
	}

	// The Gemini SDK surfaces some HTTP failures as plain errors; fall
	// back to message sniffing for the signals the invoker cares about.
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "resource_exhausted"):
		return NewUpstreamError("google", ErrorTypeRateLimit, 429, "rate limit exceeded", err)
	case strings.Contains(lower, "unavailable") || strings.Contains(lower, "internal error"):
		return NewUpstreamError("google", ErrorTypeServerError, 0, "service unavailable", err)
	}
	return NewUpstreamError("google", ErrorTypeUnknown, 0, "request failed", err)
}

// clamp restricts a float64 value to a range.
func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
