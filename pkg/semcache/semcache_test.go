package semcache

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/index"
)

func newTestCache(t *testing.T) (*Cache, index.CacheStore) {
	t.Helper()
	store, err := index.NewMemoryCache()
	require.NoError(t, err)
	cfg := &config.CacheConfig{}
	cfg.SetDefaults()
	return New(store, cfg, slog.Default()), store
}

func TestCacheHitWithinThreshold(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Store(ctx, []float32{1, 0, 0}, []byte(`{"expanded_text":"atorvastatin"}`))

	// Identical embedding: distance 0.
	payload, distance, ok := cache.Lookup(ctx, []float32{1, 0, 0})
	require.True(t, ok)
	assert.JSONEq(t, `{"expanded_text":"atorvastatin"}`, string(payload))
	assert.InDelta(t, 0, distance, 1e-6)

	// Slight paraphrase still lands inside the 0.05 threshold.
	_, distance, ok = cache.Lookup(ctx, []float32{0.999, 0.04, 0})
	assert.True(t, ok)
	assert.Less(t, distance, 0.05)
}

func TestCacheMissBeyondThreshold(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Store(ctx, []float32{1, 0, 0}, []byte(`{"plan":1}`))

	payload, distance, ok := cache.Lookup(ctx, []float32{0, 1, 0})
	assert.False(t, ok)
	assert.Nil(t, payload)
	assert.Greater(t, distance, 0.05)
}

func TestCacheTTLEviction(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()

	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.Store(ctx, []float32{1, 0, 0}, []byte(`{"plan":1}`))

	cache.now = func() time.Time { return base.Add(6 * 24 * time.Hour) }
	_, _, ok := cache.Lookup(ctx, []float32{1, 0, 0})
	assert.True(t, ok)

	cache.now = func() time.Time { return base.Add(8 * 24 * time.Hour) }
	_, _, ok = cache.Lookup(ctx, []float32{1, 0, 0})
	assert.False(t, ok)

	// Expired entry was evicted, not just skipped.
	_, found, err := store.Nearest(ctx, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheDisabled(t *testing.T) {
	store, err := index.NewMemoryCache()
	require.NoError(t, err)
	cfg := &config.CacheConfig{Enabled: config.BoolPtr(false)}
	cfg.SetDefaults()
	cache := New(store, cfg, slog.Default())
	ctx := context.Background()

	cache.Store(ctx, []float32{1, 0, 0}, []byte(`{"plan":1}`))
	_, _, ok := cache.Lookup(ctx, []float32{1, 0, 0})
	assert.False(t, ok)
}

type failingCacheStore struct{}

func (failingCacheStore) EnsureIndexes(ctx context.Context, dimension int) error { return nil }
func (failingCacheStore) Put(ctx context.Context, id string, vector []float32, payload []byte, storedAt time.Time) error {
	return errors.New("store down")
}
func (failingCacheStore) Nearest(ctx context.Context, vector []float32) (index.CacheHit, bool, error) {
	return index.CacheHit{}, false, errors.New("store down")
}
func (failingCacheStore) Delete(ctx context.Context, id string) error { return errors.New("store down") }
func (failingCacheStore) Close() error                                { return nil }

func TestCacheFailuresDegradeToMiss(t *testing.T) {
	cfg := &config.CacheConfig{}
	cfg.SetDefaults()
	cache := New(failingCacheStore{}, cfg, slog.Default())
	ctx := context.Background()

	// Neither call panics or returns an error to the caller.
	cache.Store(ctx, []float32{1, 0, 0}, []byte(`{"plan":1}`))
	_, _, ok := cache.Lookup(ctx, []float32{1, 0, 0})
	assert.False(t, ok)
}
