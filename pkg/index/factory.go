package index

import (
	"fmt"

	"github.com/medscout/rxsearch/pkg/config"
)

// NewStoresFromConfig builds the drug store and semantic-cache store
// for the configured backend. The qdrant backend shares one client
// between the two namespaces.
func NewStoresFromConfig(cfg *config.Config) (DrugStore, CacheStore, error) {
	switch cfg.Index.Backend {
	case config.IndexBackendQdrant:
		client, err := NewQdrantClient(&cfg.Index)
		if err != nil {
			return nil, nil, err
		}
		return NewQdrantStore(client, &cfg.Index), NewQdrantCache(client, cfg.Cache.Collection), nil
	case config.IndexBackendMemory:
		store, err := NewMemoryStore()
		if err != nil {
			return nil, nil, err
		}
		cache, err := NewMemoryCache()
		if err != nil {
			return nil, nil, err
		}
		return store, cache, nil
	default:
		return nil, nil, fmt.Errorf("unsupported index backend: %s", cfg.Index.Backend)
	}
}
