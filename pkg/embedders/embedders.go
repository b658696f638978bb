// Package embedders provides the dense embedding clients. Queries and
// documents are embedded with the same model; some providers
// distinguish the two input types for better retrieval quality.
package embedders

import (
	"context"
	"fmt"

	"github.com/medscout/rxsearch/pkg/config"
)

// Embedder is the narrow capability surface retrieval depends on.
type Embedder interface {
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds a batch of documents for indexing.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension the model produces.
	Dimension() int

	// ModelName returns the configured model identifier.
	ModelName() string

	Close() error
}

// NewEmbedderFromConfig creates the embedder named by the configuration.
func NewEmbedderFromConfig(cfg *config.EmbeddingConfig) (Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedding config cannot be nil")
	}

	switch cfg.Provider {
	case config.EmbeddingProviderCohere:
		return NewCohereEmbedderFromConfig(cfg)
	case config.EmbeddingProviderOpenAI:
		return NewOpenAIEmbedderFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
