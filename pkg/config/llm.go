package config

import (
	"fmt"
	"os"
)

// LLMProvider identifies the LLM provider type.
type LLMProvider string

const (
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderOpenAI    LLMProvider = "openai"
)

// LLMConfig configures the query-planner LLM.
//
// Model identity always comes from here; no component hard-codes a model id.
type LLMConfig struct {
	// Provider type (anthropic, openai).
	Provider LLMProvider `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Model identifier, e.g. "claude-sonnet-4-20250514".
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Temperature for generation. The planner wants determinism;
	// default is 0.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxTokens limits response length. Default: 1024
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// Timeout in seconds for a single request. Default: 30
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MaxRetries for transport failures and throttled requests.
	// Default: 3
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// PromptCaching enables provider-side prompt caching where the
	// provider supports it (Anthropic). Default: true
	PromptCaching *bool `yaml:"prompt_caching,omitempty" json:"prompt_caching,omitempty"`
}

func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = detectLLMProviderFromEnv()
	}
	if c.Model == "" {
		switch c.Provider {
		case LLMProviderAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		case LLMProviderOpenAI:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv(string(c.Provider))
	}
	if c.Temperature == nil {
		c.Temperature = Float64Ptr(0)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.PromptCaching == nil {
		c.PromptCaching = BoolPtr(true)
	}
}

func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case LLMProviderAnthropic, LLMProviderOpenAI:
	default:
		return fmt.Errorf("invalid provider %q (valid: anthropic, openai)", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %q", c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

func detectLLMProviderFromEnv() LLMProvider {
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return LLMProviderAnthropic
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return LLMProviderOpenAI
	}
	return LLMProviderAnthropic
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "cohere":
		return os.Getenv("COHERE_API_KEY")
	default:
		return ""
	}
}
