package embedders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/rxerr"
)

func cohereTestConfig(baseURL string, dim int) *config.EmbeddingConfig {
	cfg := &config.EmbeddingConfig{
		Provider:  config.EmbeddingProviderCohere,
		Model:     "embed-english-v3.0",
		APIKey:    "test-key",
		Dimension: dim,
	}
	cfg.SetDefaults()
	cfg.BaseURL = baseURL
	return cfg
}

func TestCohereEmbedQuery(t *testing.T) {
	var gotReq cohereEmbedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(cohereEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2, 0.3, 0.4}},
		})
	}))
	defer server.Close()

	embedder, err := NewCohereEmbedderFromConfig(cohereTestConfig(server.URL, 4))
	require.NoError(t, err)

	vec, err := embedder.EmbedQuery(context.Background(), "crestor")
	require.NoError(t, err)

	assert.Len(t, vec, 4)
	assert.Equal(t, "search_query", gotReq.InputType)
	assert.Equal(t, "END", gotReq.Truncate)
	assert.Equal(t, []string{"crestor"}, gotReq.Texts)
}

func TestCohereEmbedDocumentsBatches(t *testing.T) {
	var batchSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cohereEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batchSizes = append(batchSizes, len(req.Texts))
		require.Equal(t, "search_document", req.InputType)

		embeddings := make([][]float32, len(req.Texts))
		for i := range embeddings {
			embeddings[i] = []float32{1, 2}
		}
		json.NewEncoder(w).Encode(cohereEmbedResponse{Embeddings: embeddings})
	}))
	defer server.Close()

	cfg := cohereTestConfig(server.URL, 2)
	cfg.BatchSize = 3

	embedder, err := NewCohereEmbedderFromConfig(cfg)
	require.NoError(t, err)

	texts := []string{"a", "b", "c", "d", "e", "f", "g"}
	vecs, err := embedder.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)

	assert.Len(t, vecs, 7)
	assert.Equal(t, []int{3, 3, 1}, batchSizes)
}

func TestCohereDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cohereEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2}},
		})
	}))
	defer server.Close()

	embedder, err := NewCohereEmbedderFromConfig(cohereTestConfig(server.URL, 1024))
	require.NoError(t, err)

	_, err = embedder.EmbedQuery(context.Background(), "crestor")
	require.Error(t, err)
	assert.Equal(t, rxerr.KindInternal, rxerr.KindOf(err))
}

func TestCohereUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := cohereTestConfig(server.URL, 4)
	cfg.MaxRetries = 1

	embedder, err := NewCohereEmbedderFromConfig(cfg)
	require.NoError(t, err)

	_, err = embedder.EmbedQuery(context.Background(), "crestor")
	require.Error(t, err)
	assert.Equal(t, rxerr.KindUpstreamUnavailable, rxerr.KindOf(err))
}
