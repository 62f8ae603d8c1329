package orchestrator

import (
	"context"
	"fmt"

	"github.com/Dhruv1969Karnwal/excel-agent/pkg/tools"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model        string
	Messages     []Message
	Tools        []tools.Definition
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// ProviderCredentials holds one provider's key and model selection.
type ProviderCredentials struct {
	Provider  string
	APIKey    string
	Model     string
	MaxTokens int
}

// ProviderFactory creates LLM providers
type ProviderFactory struct{}

// NewProvider creates a new LLM provider from credentials
func (f *ProviderFactory) NewProvider(creds ProviderCredentials) (LLMProvider, error) {
	switch creds.Provider {
	case "anthropic":
		return NewAnthropicProvider(creds.APIKey), nil
	case "openai":
		return NewOpenAIProvider(creds.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", creds.Provider)
	}
}
