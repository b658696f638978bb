package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/httpclient"
	"github.com/medscout/rxsearch/pkg/rxerr"
)

// CohereEmbedder implements Embedder against the Cohere embeddings API.
// Queries and documents use distinct input types; inputs beyond the
// model cap are truncated server-side.
type CohereEmbedder struct {
	config     *config.EmbeddingConfig
	httpClient *httpclient.Client
	baseURL    string
}

type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model,omitempty"`
	InputType string   `json:"input_type,omitempty"`
	Truncate  string   `json:"truncate,omitempty"`
}

type cohereEmbedResponse struct {
	ID         string      `json:"id"`
	Embeddings [][]float32 `json:"embeddings"`
}

type cohereErrorResponse struct {
	Message string `json:"message"`
}

// NewCohereEmbedderFromConfig creates a Cohere embedding client.
func NewCohereEmbedderFromConfig(cfg *config.EmbeddingConfig) (*CohereEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Cohere embedder")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.cohere.ai/v1"
	}

	return &CohereEmbedder{
		config:  cfg,
		baseURL: baseURL,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Timeout) * time.Second,
			}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseCohereHeaders),
		),
	}, nil
}

func (e *CohereEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.embed(ctx, []string{text}, "search_query")
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, rxerr.New(rxerr.KindUpstreamUnavailable, "cohere returned empty embedding")
	}
	return embeddings[0], nil
}

func (e *CohereEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.config.BatchSize {
		end := i + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		embeddings, err := e.embed(ctx, texts[i:end], "search_document")
		if err != nil {
			return nil, err
		}
		results = append(results, embeddings...)
	}
	return results, nil
}

func (e *CohereEmbedder) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	req := cohereEmbedRequest{
		Texts:     texts,
		Model:     e.config.Model,
		InputType: inputType,
		Truncate:  "END",
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(reqBody)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.KindUpstreamUnavailable, "cohere request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.KindUpstreamUnavailable, "failed to read cohere response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp cohereErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Message != "" {
			return nil, rxerr.Newf(rxerr.KindUpstreamUnavailable, "cohere API error: %s", errorResp.Message)
		}
		return nil, rxerr.Newf(rxerr.KindUpstreamUnavailable, "cohere API returned status %d", resp.StatusCode)
	}

	var response cohereEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, rxerr.Wrap(rxerr.KindUpstreamUnavailable, "failed to decode cohere response", err)
	}

	for _, embedding := range response.Embeddings {
		if len(embedding) != e.config.Dimension {
			return nil, rxerr.Newf(rxerr.KindInternal, "cohere returned %d-dimensional vector, expected %d", len(embedding), e.config.Dimension)
		}
	}

	return response.Embeddings, nil
}

func (e *CohereEmbedder) Dimension() int {
	return e.config.Dimension
}

func (e *CohereEmbedder) ModelName() string {
	return e.config.Model
}

func (e *CohereEmbedder) Close() error {
	return nil
}
