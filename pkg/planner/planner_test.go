package planner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/index"
	"github.com/medscout/rxsearch/pkg/llms"
	"github.com/medscout/rxsearch/pkg/rxerr"
	"github.com/medscout/rxsearch/pkg/semcache"
)

type fakeLLM struct {
	calls   int
	content string
	err     error
}

func (f *fakeLLM) Converse(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llms.Response{
		Content: f.content,
		Usage:   llms.Usage{InputTokens: 120, OutputTokens: 40},
	}, nil
}

func (f *fakeLLM) ModelName() string { return "fake-model" }
func (f *fakeLLM) Close() error      { return nil }

// fakeEmbedder maps known phrases onto fixed unit vectors so cosine
// distances in tests are exact.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[strings.ToLower(text)]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake-embed" }
func (f *fakeEmbedder) Close() error      { return nil }

func newTestCache(t *testing.T) *semcache.Cache {
	t.Helper()
	store, err := index.NewMemoryCache()
	require.NoError(t, err)
	cfg := &config.CacheConfig{}
	cfg.SetDefaults()
	return semcache.New(store, cfg, slog.Default())
}

const crestorPlanJSON = `{
	"expanded_text": "crestor rosuvastatin",
	"filters": {"drug_class": "rosuvastatin calcium"},
	"corrections": [],
	"confidence": 0.95
}`

func TestPlanParsesModelOutput(t *testing.T) {
	llm := &fakeLLM{content: crestorPlanJSON}
	p := New(llm, &fakeEmbedder{}, nil, slog.Default())

	plan, err := p.Plan(context.Background(), "crestor")
	require.NoError(t, err)
	assert.Equal(t, "crestor rosuvastatin", plan.ExpandedText)
	assert.Equal(t, "ROSUVASTATIN CALCIUM", plan.Filters.DrugClass)
	assert.False(t, plan.FromCache)
	assert.Equal(t, 120, plan.Usage.InputTokens)
	assert.InDelta(t, 0.95, plan.Confidence, 1e-9)
}

func TestPlanCacheIdempotence(t *testing.T) {
	llm := &fakeLLM{content: crestorPlanJSON}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"crestor": {1, 0, 0},
	}}
	p := New(llm, embedder, newTestCache(t), slog.Default())
	ctx := context.Background()

	first, err := p.Plan(ctx, "crestor")
	require.NoError(t, err)
	second, err := p.Plan(ctx, "crestor")
	require.NoError(t, err)

	assert.Equal(t, 1, llm.calls, "second call must be served from cache")
	assert.True(t, second.FromCache)
	assert.False(t, first.FromCache)

	firstBytes, err := first.Marshal()
	require.NoError(t, err)
	secondBytes, err := second.Marshal()
	require.NoError(t, err)
	assert.Equal(t, firstBytes, secondBytes)
}

func TestPlanCacheMissOnFarQuery(t *testing.T) {
	llm := &fakeLLM{content: crestorPlanJSON}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"crestor":   {1, 0, 0},
		"metformin": {0, 1, 0},
	}}
	p := New(llm, embedder, newTestCache(t), slog.Default())
	ctx := context.Background()

	_, err := p.Plan(ctx, "crestor")
	require.NoError(t, err)
	_, err = p.Plan(ctx, "metformin")
	require.NoError(t, err)

	assert.Equal(t, 2, llm.calls)
}

func TestPlanNullPlanOnModelFailure(t *testing.T) {
	llm := &fakeLLM{err: rxerr.New(rxerr.KindUpstreamUnavailable, "provider down")}
	p := New(llm, &fakeEmbedder{}, nil, slog.Default())

	plan, err := p.Plan(context.Background(), "crestor")
	require.NoError(t, err)
	assert.Equal(t, "crestor", plan.ExpandedText)
	assert.True(t, plan.Filters.Empty())
	assert.Empty(t, plan.Corrections)
	assert.Zero(t, plan.Confidence)
}

func TestPlanNullPlanOnGarbageOutput(t *testing.T) {
	llm := &fakeLLM{content: "I am sorry, I cannot help with that."}
	p := New(llm, &fakeEmbedder{}, nil, slog.Default())

	plan, err := p.Plan(context.Background(), "crestor")
	require.NoError(t, err)
	assert.Equal(t, "crestor", plan.ExpandedText)
	assert.Zero(t, plan.Confidence)
}

func TestPlanDropsUnknownVocabulary(t *testing.T) {
	llm := &fakeLLM{content: `{
		"expanded_text": "insulin glargine",
		"filters": {"dosage_form": "PEN-INJECTOR", "route": "subcutaneous", "dea_schedule": "9"},
		"corrections": [],
		"confidence": 0.8
	}`}
	p := New(llm, &fakeEmbedder{}, nil, slog.Default())

	plan, err := p.Plan(context.Background(), "injectable insulin")
	require.NoError(t, err)
	assert.Empty(t, plan.Filters.DosageForm, "unknown dosage form must be dropped")
	assert.Equal(t, "SUBCUTANEOUS", plan.Filters.Route)
	assert.Empty(t, plan.Filters.DEASchedule)
}

func TestPlanRejectsMalformedQueries(t *testing.T) {
	p := New(&fakeLLM{content: crestorPlanJSON}, &fakeEmbedder{}, nil, slog.Default())
	ctx := context.Background()

	_, err := p.Plan(ctx, "   ")
	require.Error(t, err)
	assert.True(t, rxerr.Is(err, rxerr.KindInvalidInput))

	_, err = p.Plan(ctx, strings.Repeat("a", MaxQueryLength+1))
	require.Error(t, err)
	assert.True(t, rxerr.Is(err, rxerr.KindInvalidInput))
}

func TestPlanSkipsCacheWhenEmbeddingFails(t *testing.T) {
	llm := &fakeLLM{content: crestorPlanJSON}
	embedder := &fakeEmbedder{err: errors.New("embedder down")}
	p := New(llm, embedder, newTestCache(t), slog.Default())

	plan, err := p.Plan(context.Background(), "crestor")
	require.NoError(t, err)
	assert.Equal(t, "crestor rosuvastatin", plan.ExpandedText)
	assert.Equal(t, 1, llm.calls)
}
