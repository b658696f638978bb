package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/httpclient"
	"github.com/medscout/rxsearch/pkg/rxerr"
)

// OpenAIEmbedder implements Embedder against the OpenAI embeddings API.
// Unlike Cohere there is no server-side truncation, so inputs are
// clipped to the configured token cap with tiktoken before sending.
type OpenAIEmbedder struct {
	config     *config.EmbeddingConfig
	httpClient *httpclient.Client
	baseURL    string
	encoding   *tiktoken.Tiktoken
}

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type openAIEmbedResponse struct {
	Data []openAIEmbedData `json:"data"`
}

// NewOpenAIEmbedderFromConfig creates an OpenAI embedding client.
func NewOpenAIEmbedderFromConfig(cfg *config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI embedder")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}

	return &OpenAIEmbedder{
		config:   cfg,
		baseURL:  baseURL,
		encoding: encoding,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Timeout) * time.Second,
			}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}, nil
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, rxerr.New(rxerr.KindUpstreamUnavailable, "openai returned empty embedding")
	}
	return embeddings[0], nil
}

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.config.BatchSize {
		end := i + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		embeddings, err := e.embed(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		results = append(results, embeddings...)
	}
	return results, nil
}

func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, text := range texts {
		input[i] = e.truncate(text)
	}

	req := openAIEmbedRequest{
		Input:      input,
		Model:      e.config.Model,
		Dimensions: e.config.Dimension,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(reqBody)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.KindUpstreamUnavailable, "openai embedding request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.KindUpstreamUnavailable, "failed to read openai response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, rxerr.Newf(rxerr.KindUpstreamUnavailable, "openai API returned status %d", resp.StatusCode)
	}

	var response openAIEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, rxerr.Wrap(rxerr.KindUpstreamUnavailable, "failed to decode openai response", err)
	}

	// The API may reorder; restore input order by index.
	results := make([][]float32, len(input))
	for _, data := range response.Data {
		if data.Index < 0 || data.Index >= len(results) {
			return nil, rxerr.Newf(rxerr.KindInternal, "openai returned out-of-range index %d", data.Index)
		}
		results[data.Index] = data.Embedding
	}
	for i, embedding := range results {
		if len(embedding) != e.config.Dimension {
			return nil, rxerr.Newf(rxerr.KindInternal, "openai returned %d-dimensional vector for input %d, expected %d", len(embedding), i, e.config.Dimension)
		}
	}

	return results, nil
}

func (e *OpenAIEmbedder) truncate(text string) string {
	tokens := e.encoding.Encode(text, nil, nil)
	if len(tokens) <= e.config.MaxInputTokens {
		return text
	}
	return e.encoding.Decode(tokens[:e.config.MaxInputTokens])
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.config.Dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

func (e *OpenAIEmbedder) Close() error {
	return nil
}
