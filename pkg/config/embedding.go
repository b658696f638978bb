package config

import (
	"fmt"
	"os"
)

// EmbeddingProvider identifies the embedding provider type.
type EmbeddingProvider string

const (
	EmbeddingProviderCohere EmbeddingProvider = "cohere"
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"
)

// EmbeddingConfig configures the dense embedding client.
//
// Dimension must match the index; documents are loaded with the same
// model the query path uses.
type EmbeddingConfig struct {
	// Provider type (cohere, openai).
	Provider EmbeddingProvider `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Model identifier, e.g. "embed-english-v3.0".
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// Dimension of the produced vectors. Default: 1024
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Timeout in seconds for a single request. Default: 10
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MaxRetries for transport failures and retryable statuses.
	// Default: 2
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// BatchSize for document embedding. Default: 96
	BatchSize int `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`

	// MaxInputTokens caps the input length; longer text is truncated.
	// Default: 512
	MaxInputTokens int `yaml:"max_input_tokens,omitempty" json:"max_input_tokens,omitempty"`
}

func (c *EmbeddingConfig) SetDefaults() {
	if c.Provider == "" {
		if os.Getenv("COHERE_API_KEY") != "" {
			c.Provider = EmbeddingProviderCohere
		} else {
			c.Provider = EmbeddingProviderOpenAI
		}
	}
	if c.Model == "" {
		switch c.Provider {
		case EmbeddingProviderCohere:
			c.Model = "embed-english-v3.0"
		case EmbeddingProviderOpenAI:
			c.Model = "text-embedding-3-large"
		}
	}
	if c.Dimension == 0 {
		c.Dimension = 1024
	}
	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv(string(c.Provider))
	}
	if c.Timeout == 0 {
		c.Timeout = 10
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.BatchSize == 0 {
		c.BatchSize = 96
	}
	if c.MaxInputTokens == 0 {
		c.MaxInputTokens = 512
	}
}

func (c *EmbeddingConfig) Validate() error {
	switch c.Provider {
	case EmbeddingProviderCohere, EmbeddingProviderOpenAI:
	default:
		return fmt.Errorf("invalid provider %q (valid: cohere, openai)", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %q", c.Provider)
	}
	if c.Dimension < 1 {
		return fmt.Errorf("dimension must be positive, got %d", c.Dimension)
	}
	return nil
}
