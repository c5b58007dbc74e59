package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xiaot623/gigchat/internal/config"
)

// Provider names accepted in AI_PROVIDER.
const (
	ProviderNone    = ""
	ProviderLiteLLM = "litellm"
	ProviderOpenAI  = "openai"
	ProviderMock    = "mock"
)

// NewFromConfig creates the client selected by AI_PROVIDER. It returns a nil
// client without error when no provider is configured.
func NewFromConfig(cfg *config.Config, log *zap.Logger) (Client, error) {
	switch cfg.AIProvider {
	case ProviderNone:
		log.Info("no AI provider configured, support replies use keyword fallback")
		return nil, nil
	case ProviderMock:
		log.Info("AI_PROVIDER=mock detected, using mock LLM client")
		return NewMockClient(), nil
	case ProviderLiteLLM:
		if cfg.AIBaseURL == "" {
			return nil, fmt.Errorf("AI_BASE_URL is required for provider %q", cfg.AIProvider)
		}
		return NewHTTPClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AITimeout), nil
	case ProviderOpenAI:
		client, err := NewOpenAIClient(cfg.AIAPIKey, cfg.AIBaseURL)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}
}
