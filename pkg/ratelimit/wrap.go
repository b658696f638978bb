package ratelimit

import (
	"context"

	"github.com/medscout/rxsearch/pkg/embedders"
	"github.com/medscout/rxsearch/pkg/llms"
)

// LimitProvider gates every conversation call on the LLM bucket.
func LimitProvider(p llms.Provider, l *Limiter) llms.Provider {
	return &limitedProvider{Provider: p, limiter: l}
}

type limitedProvider struct {
	llms.Provider
	limiter *Limiter
}

func (p *limitedProvider) Converse(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	if err := p.limiter.Acquire(ctx, ScopeLLM); err != nil {
		return nil, err
	}
	return p.Provider.Converse(ctx, req)
}

// LimitEmbedder gates every embedding call on the embedding bucket. A
// batch counts as one request regardless of size.
func LimitEmbedder(e embedders.Embedder, l *Limiter) embedders.Embedder {
	return &limitedEmbedder{Embedder: e, limiter: l}
}

type limitedEmbedder struct {
	embedders.Embedder
	limiter *Limiter
}

func (e *limitedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Acquire(ctx, ScopeEmbedding); err != nil {
		return nil, err
	}
	return e.Embedder.EmbedQuery(ctx, text)
}

func (e *limitedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Acquire(ctx, ScopeEmbedding); err != nil {
		return nil, err
	}
	return e.Embedder.EmbedDocuments(ctx, texts)
}
