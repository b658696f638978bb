// Package semcache caches planner outputs keyed by query embedding.
// A lookup probes the nearest stored entry and accepts it only when
// the cosine distance is within the configured threshold and the entry
// has not expired, so paraphrases of a recent query skip the LLM call
// entirely.
//
// Cache failures are never surfaced to callers: a broken cache
// degrades to a miss and the planner proceeds as usual.
package semcache

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/index"
)

// Cache wraps a CacheStore namespace with similarity and TTL policy.
type Cache struct {
	store     index.CacheStore
	enabled   bool
	threshold float64
	ttl       time.Duration
	logger    *slog.Logger

	// now is swappable for TTL tests.
	now func() time.Time
}

// New builds a cache over the given store.
func New(store index.CacheStore, cfg *config.CacheConfig, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	enabled := cfg.Enabled == nil || *cfg.Enabled
	return &Cache{
		store:     store,
		enabled:   enabled,
		threshold: cfg.SimilarityThreshold,
		ttl:       time.Duration(cfg.TTLSeconds) * time.Second,
		logger:    logger,
		now:       time.Now,
	}
}

// Lookup returns the cached payload for the nearest stored embedding,
// or ok=false on a miss. Expired entries are evicted on read.
func (c *Cache) Lookup(ctx context.Context, embedding []float32) (payload []byte, distance float64, ok bool) {
	if !c.enabled || c.store == nil {
		return nil, 0, false
	}
	hit, found, err := c.store.Nearest(ctx, embedding)
	if err != nil {
		c.logger.Warn("Semantic cache lookup failed, treating as miss", "error", err)
		return nil, 0, false
	}
	if !found {
		return nil, 0, false
	}
	if c.ttl > 0 && c.now().Sub(hit.StoredAt) > c.ttl {
		if err := c.store.Delete(ctx, hit.ID); err != nil {
			c.logger.Warn("Failed to evict expired cache entry", "id", hit.ID, "error", err)
		}
		return nil, 0, false
	}
	if hit.Distance > c.threshold {
		return nil, hit.Distance, false
	}
	return hit.Payload, hit.Distance, true
}

// Store records a payload under the query embedding. Errors are
// logged and swallowed.
func (c *Cache) Store(ctx context.Context, embedding []float32, payload []byte) {
	if !c.enabled || c.store == nil {
		return
	}
	id := uuid.NewString()
	if err := c.store.Put(ctx, id, embedding, payload, c.now()); err != nil {
		c.logger.Warn("Failed to store semantic cache entry", "id", id, "error", err)
	}
}
