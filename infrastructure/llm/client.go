package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ahrav/go-triage/internal/domain"
)

// Request describes one schema-constrained generation call. Providers
// translate it into their native wire format.
type Request struct {
	// System is the system instruction for the call.
	System string

	// Parts is the ordered payload, already passed through the
	// content-size adapter by the caller.
	Parts []domain.ContentPart

	// Schema constrains the output to a JSON object with the declared
	// fields. Providers that support native response schemas use it
	// directly; others append a format instruction.
	Schema *domain.Schema

	// Temperature controls sampling randomness. Nil leaves the provider
	// default in place; triage calls pin it to 0 for determinism.
	Temperature *float64

	// MaxTokens bounds the output length. Zero means provider default.
	MaxTokens int

	// Logprobs requests per-token log-probabilities in the response.
	// Required for confidence extraction.
	Logprobs bool
}

// RawResponse is a provider's answer to a Request: the output text, the
// token trace behind it, and the reported usage.
type RawResponse struct {
	// Text is the generated output, expected to be a JSON object.
	Text string

	// Trace is the ordered (token, log-probability) sequence for the
	// output. Empty when the request did not ask for logprobs.
	Trace domain.TokenTrace

	// TokensIn and TokensOut are the usage counts the provider reported.
	TokensIn  int
	TokensOut int
}

// CoreLLM is the minimal surface a model provider must implement. The
// middleware system wraps any conforming implementation.
type CoreLLM interface {
	// DoRequest sends one generation request and returns the response.
	DoRequest(ctx context.Context, req Request) (*RawResponse, error)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model for subsequent requests.
	SetModel(model string)
}

// Middleware wraps a CoreLLM to add cross-cutting behavior (metrics,
// tracing, steady rate limiting) without touching provider logic.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig holds provider construction settings.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model selects the model. Empty uses the provider default.
	Model string

	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	// ContextBudget is the model's input token limit, consumed by the
	// content-size adapter. Zero uses the provider default.
	ContextBudget int

	// Middleware is applied in order; the first entry is outermost.
	Middleware []Middleware
}

// ProviderFactory builds a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoryMu         sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory registers a provider under a name. Providers
// in this package register themselves from init.
func RegisterProviderFactory(name string, factory ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	providerFactories[name] = factory
}

// NewCoreLLM constructs a provider by name and applies the configured
// middleware chain.
func NewCoreLLM(provider string, config ClientConfig) (CoreLLM, error) {
	factoryMu.RLock()
	factory, ok := providerFactories[provider]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", provider, err)
	}

	// Apply middleware in reverse so the first entry is the outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}
	return core, nil
}

// baseProvider supplies the model bookkeeping shared by providers.
type baseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model name.
func (b *baseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model for subsequent requests.
func (b *baseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// sortedFieldNames returns a schema's field names in stable sorted
// order so provider requests are reproducible.
func sortedFieldNames(schema domain.Schema) []string {
	names := make([]string, 0, len(schema.Fields))
	for name := range schema.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PartsText flattens content parts into one prompt string, labeling each
// part with its name so the model can distinguish document sections.
func PartsText(parts []domain.ContentPart) string {
	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if p.Name != "" {
			sb.WriteString(p.Name)
			sb.WriteString(":\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}
