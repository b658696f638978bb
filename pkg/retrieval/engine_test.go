package retrieval

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
	"github.com/medscout/rxsearch/pkg/planner"
	"github.com/medscout/rxsearch/pkg/rxerr"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[strings.ToLower(text)]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int    { return 3 }
func (s *stubEmbedder) ModelName() string { return "stub" }
func (s *stubEmbedder) Close() error      { return nil }

func seedStore(t *testing.T) index.DrugStore {
	t.Helper()
	store, err := index.NewMemoryStore()
	require.NoError(t, err)
	docs := []*index.DrugDocument{
		{
			NDC: "00310075139", DrugName: "CRESTOR 10 MG TABLET", BrandName: "CRESTOR",
			GenericName: "rosuvastatin calcium", DrugClass: "ROSUVASTATIN CALCIUM",
			TherapeuticClass: "HMG-COA REDUCTASE INHIBITORS", GCNSeqno: 61350,
			DosageForm: "TABLET", Strength: "10 MG", Route: "ORAL",
			IsActive: true, Embedding: []float32{1, 0, 0},
		},
		{
			NDC: "00093505698", DrugName: "ROSUVASTATIN CALCIUM 10 MG TABLET",
			GenericName: "rosuvastatin calcium", DrugClass: "ROSUVASTATIN CALCIUM",
			TherapeuticClass: "HMG-COA REDUCTASE INHIBITORS", GCNSeqno: 61350,
			DosageForm: "TABLET", Strength: "10 MG", Route: "ORAL",
			IsGeneric: true, IsActive: true, Embedding: []float32{0.95, 0.05, 0},
		},
		{
			NDC: "00006074031", DrugName: "ZOCOR 20 MG TABLET", BrandName: "ZOCOR",
			GenericName: "simvastatin", DrugClass: "SIMVASTATIN",
			TherapeuticClass: "HMG-COA REDUCTASE INHIBITORS", GCNSeqno: 43210,
			DosageForm: "TABLET", Strength: "20 MG", Route: "ORAL",
			IsActive: true, Embedding: []float32{0.7, 0.3, 0},
		},
	}
	require.NoError(t, store.PutBatch(context.Background(), docs))
	return store
}

func newEngine(t *testing.T, store index.DrugStore, embedder *stubEmbedder) *Engine {
	t.Helper()
	cfg := &config.RetrievalConfig{}
	cfg.SetDefaults()
	return New(store, embedder, cfg, slog.Default())
}

func candidate(t *testing.T, result *Result, ndc string) Candidate {
	t.Helper()
	for _, c := range result.Candidates {
		if c.Doc.NDC == ndc {
			return c
		}
	}
	t.Fatalf("candidate %s not found", ndc)
	return Candidate{}
}

func TestRetrieveFusesVectorAndLexicalPasses(t *testing.T) {
	store := seedStore(t)
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"crestor rosuvastatin": {1, 0, 0},
	}}
	engine := newEngine(t, store, embedder)

	plan := &planner.Plan{ExpandedText: "crestor rosuvastatin"}
	result, err := engine.Retrieve(context.Background(), "crestor", plan, 10)
	require.NoError(t, err)
	require.NotEmpty(t, result.Candidates)

	// CRESTOR matched both passes: exact brand equality forces 1.0.
	crestor := candidate(t, result, "00310075139")
	assert.True(t, crestor.Lexical)
	assert.Equal(t, 1.0, crestor.Score)

	// The generic is a vector-only hit; its score stays the cosine
	// similarity, below the boosted lexical hits.
	generic := candidate(t, result, "00093505698")
	assert.False(t, generic.Lexical)
	assert.Less(t, generic.Score, 1.0)
	assert.False(t, result.VectorSkipped)
}

func TestRetrieveLexicalBoostCappedAtOne(t *testing.T) {
	store := seedStore(t)
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"zocor simvastatin": {0.7, 0.3, 0},
	}}
	engine := newEngine(t, store, embedder)

	plan := &planner.Plan{ExpandedText: "zocor simvastatin"}
	result, err := engine.Retrieve(context.Background(), "zocor", plan, 10)
	require.NoError(t, err)

	zocor := candidate(t, result, "00006074031")
	assert.True(t, zocor.Lexical)
	assert.Equal(t, 1.0, zocor.Score, "exact brand equality dominates the boost cap")
}

func TestRetrieveDegradesToLexicalOnEmbeddingFailure(t *testing.T) {
	store := seedStore(t)
	embedder := &stubEmbedder{err: errors.New("embedder down")}
	engine := newEngine(t, store, embedder)

	plan := &planner.Plan{ExpandedText: "crestor"}
	result, err := engine.Retrieve(context.Background(), "crestor", plan, 10)
	require.NoError(t, err)

	assert.True(t, result.VectorSkipped)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "00310075139", result.Candidates[0].Doc.NDC)
	assert.True(t, result.Candidates[0].Lexical)
}

func TestRetrieveAppliesPlanFilters(t *testing.T) {
	store := seedStore(t)
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"statin for cholesterol": {0.9, 0.1, 0},
	}}
	engine := newEngine(t, store, embedder)

	generic := true
	plan := &planner.Plan{
		ExpandedText: "statin for cholesterol",
		Filters: planner.Filters{
			TherapeuticClass: "HMG-COA REDUCTASE INHIBITORS",
			IsGeneric:        &generic,
		},
	}
	result, err := engine.Retrieve(context.Background(), "statin for cholesterol", plan, 10)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "00093505698", result.Candidates[0].Doc.NDC)
}

func TestRetrievePipeSeparatedTagValues(t *testing.T) {
	f := buildFilter(&planner.Filters{DosageForm: "TABLET|CAPSULE"})
	require.Len(t, f.Must, 1)
	assert.Equal(t, []string{"TABLET", "CAPSULE"}, f.Must[0].Keywords)
}

type downStore struct{}

func (downStore) EnsureIndexes(ctx context.Context, dimension int) error { return nil }
func (downStore) Put(ctx context.Context, doc *index.DrugDocument) error { return nil }
func (downStore) PutBatch(ctx context.Context, docs []*index.DrugDocument) error {
	return nil
}
func (downStore) Get(ctx context.Context, ndc string) (*index.DrugDocument, error) {
	return nil, errors.New("connection refused")
}
func (downStore) Delete(ctx context.Context, ndc string) error { return nil }
func (downStore) Query(ctx context.Context, q *index.Query) ([]index.Hit, error) {
	return nil, errors.New("connection refused")
}
func (downStore) Close() error { return nil }

func TestRetrieveFailsWhenIndexUnavailable(t *testing.T) {
	engine := newEngine(t, downStore{}, &stubEmbedder{})

	plan := &planner.Plan{ExpandedText: "crestor"}
	_, err := engine.Retrieve(context.Background(), "crestor", plan, 10)
	require.Error(t, err)
	assert.True(t, rxerr.Is(err, rxerr.KindServiceUnavailable))
}
