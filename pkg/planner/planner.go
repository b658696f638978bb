package planner

import (
	"context"
	"log/slog"
	"strings"

	"github.com/medscout/rxsearch/pkg/embedders"
	"github.com/medscout/rxsearch/pkg/llms"
	"github.com/medscout/rxsearch/pkg/rxerr"
	"github.com/medscout/rxsearch/pkg/semcache"
)

// MaxQueryLength bounds raw query input.
const MaxQueryLength = 256

// Planner turns raw queries into plans, cache first, model second,
// null plan last.
type Planner struct {
	llm      llms.Provider
	embedder embedders.Embedder
	cache    *semcache.Cache
	logger   *slog.Logger
}

// New builds a planner. cache may be nil, which disables memoization.
func New(llm llms.Provider, embedder embedders.Embedder, cache *semcache.Cache, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		llm:      llm,
		embedder: embedder,
		cache:    cache,
		logger:   logger,
	}
}

// Plan produces the search intent for a raw query.
//
// The only error it returns is InvalidInput for a malformed query;
// every upstream failure degrades to the null plan so a search always
// proceeds.
func (p *Planner) Plan(ctx context.Context, query string) (*Plan, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, rxerr.New(rxerr.KindInvalidInput, "query cannot be empty")
	}
	if len(query) > MaxQueryLength {
		return nil, rxerr.Newf(rxerr.KindInvalidInput, "query exceeds %d characters", MaxQueryLength)
	}

	// The cache probe needs the query embedding. An embedding failure
	// here only costs the cache, not the search.
	var embedding []float32
	if p.cache != nil {
		vec, err := p.embedder.EmbedQuery(ctx, query)
		if err != nil {
			p.logger.Warn("Cache probe embedding failed, skipping cache", "error", err)
		} else {
			embedding = vec
			if payload, distance, ok := p.cache.Lookup(ctx, embedding); ok {
				plan, err := UnmarshalPlan(payload)
				if err == nil {
					plan.FromCache = true
					p.logger.Debug("Planner cache hit", "distance", distance)
					return plan, nil
				}
				p.logger.Warn("Corrupt cache payload, treating as miss", "error", err)
			}
		}
	}

	plan := p.converse(ctx, query)
	if plan == nil {
		return NullPlan(query), nil
	}

	if embedding != nil {
		// Cache the canonical bytes so repeat lookups return
		// byte-identical plans.
		if payload, err := plan.Marshal(); err == nil {
			p.cache.Store(ctx, embedding, payload)
		}
	}
	return plan, nil
}

// converse runs the model call and parses its output. Returns nil on
// any failure.
func (p *Planner) converse(ctx context.Context, query string) *Plan {
	temperature := 0.0
	resp, err := p.llm.Converse(ctx, &llms.Request{
		System: SystemPrompt(),
		Messages: []llms.Message{
			{Role: llms.RoleUser, Content: query},
		},
		Temperature: &temperature,
		JSONPrefill: "{",
	})
	if err != nil {
		p.logger.Warn("Planner model call failed, falling back to null plan",
			"query", query,
			"error", err)
		return nil
	}

	plan, err := UnmarshalPlan([]byte(resp.Content))
	if err != nil {
		p.logger.Warn("Planner output did not parse, falling back to null plan",
			"query", query,
			"error", err)
		return nil
	}
	sanitize(plan)
	if plan.ExpandedText == "" {
		plan.ExpandedText = query
	}
	plan.Usage = resp.Usage
	plan.Metrics = resp.Metrics
	return plan
}
