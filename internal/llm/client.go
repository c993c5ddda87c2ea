// Package llm provides the language model fallback used by the support
// assistant when no rule or FAQ entry answers a client.
package llm

import (
	"context"
	"fmt"
)

const defaultMaxTokens = 512

// CompletionRequest is one single-turn or multi-turn completion.
type CompletionRequest struct {
	// Model overrides the client's model for this request.
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse is the provider's answer and its usage.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is implemented by every provider.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// Provider names a language model vendor.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Options configures a provider client. Empty fields use the provider's
// defaults.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewClient creates the client for provider.
func NewClient(provider Provider, opts Options) (Client, error) {
	var (
		c   Client
		err error
	)
	switch provider {
	case ProviderAnthropic:
		c, err = NewAnthropicClient(opts)
	case ProviderOpenAI:
		c, err = NewOpenAIClient(opts)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FromKeys picks the preferred provider when its key is set, then any
// provider with a key. It returns nil when no key is configured. base
// carries the shared model and base URL overrides.
func FromKeys(preferred Provider, anthropicKey, openAIKey string, base Options) (Client, error) {
	keys := map[Provider]string{
		ProviderAnthropic: anthropicKey,
		ProviderOpenAI:    openAIKey,
	}
	order := []Provider{preferred, ProviderAnthropic, ProviderOpenAI}
	for _, p := range order {
		if keys[p] == "" {
			continue
		}
		opts := base
		opts.APIKey = keys[p]
		return NewClient(p, opts)
	}
	return nil, nil
}

// limits resolves the model and token budget of req.
func limits(req *CompletionRequest, clientModel string) (string, int) {
	model := req.Model
	if model == "" {
		model = clientModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return model, maxTokens
}
