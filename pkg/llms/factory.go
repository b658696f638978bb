package llms

import (
	"fmt"

	"github.com/medscout/rxsearch/pkg/config"
)

// NewProviderFromConfig creates the provider named by the configuration.
// Switching providers is a config change only.
func NewProviderFromConfig(cfg *config.LLMConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config cannot be nil")
	}

	switch cfg.Provider {
	case config.LLMProviderAnthropic:
		return NewAnthropicProviderFromConfig(cfg)
	case config.LLMProviderOpenAI:
		return NewOpenAIProviderFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
