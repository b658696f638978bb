package llms

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

// AnthropicProvider implements Provider against the Anthropic Messages
// API. The system prompt is marked with cache_control so repeated
// planner calls hit the provider's prompt cache.
type AnthropicProvider struct {
	config     *config.LLMConfig
	httpClient *httpclient.Client
}

type anthropicCacheControl struct {
	Type string `json:"type"`
}

type anthropicSystemBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string                 `json:"model"`
	Messages    []anthropicMessage     `json:"messages"`
	MaxTokens   int                    `json:"max_tokens"`
	Temperature float64                `json:"temperature"`
	System      []anthropicSystemBlock `json:"system,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicError    `json:"error,omitempty"`
}

// NewAnthropicProviderFromConfig creates an Anthropic conversation client.
func NewAnthropicProviderFromConfig(cfg *config.LLMConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}

	return &AnthropicProvider{
		config: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Timeout) * time.Second,
			}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
	}, nil
}

func (p *AnthropicProvider) ModelName() string {
	return p.config.Model
}

func (p *AnthropicProvider) Close() error {
	return nil
}

func (p *AnthropicProvider) Converse(ctx context.Context, req *Request) (*Response, error) {
	started := time.Now()

	request := p.buildRequest(req)

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.config.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	modelStarted := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(err, "anthropic")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, "anthropic", body)
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, rxerr.Wrap(rxerr.KindUpstreamUnavailable, "failed to decode anthropic response", err)
	}
	if response.Error != nil {
		return nil, rxerr.Newf(rxerr.KindUpstreamUnavailable, "anthropic API error: %s", response.Error.Message)
	}

	var text string
	for _, content := range response.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}
	if req.JSONPrefill != "" {
		text = req.JSONPrefill + text
	}

	return &Response{
		Content: text,
		Usage: Usage{
			InputTokens:  response.Usage.InputTokens,
			OutputTokens: response.Usage.OutputTokens,
		},
		Metrics: Metrics{
			ModelLatency: time.Since(modelStarted),
			TotalLatency: time.Since(started),
		},
	}, nil
}

func (p *AnthropicProvider) buildRequest(req *Request) anthropicRequest {
	messages := make([]anthropicMessage, 0, len(req.Messages)+1)
	for _, msg := range req.Messages {
		messages = append(messages, anthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	// Prefilling the assistant turn forces bare JSON output.
	if req.JSONPrefill != "" {
		messages = append(messages, anthropicMessage{
			Role:    "assistant",
			Content: req.JSONPrefill,
		})
	}

	maxTokens := p.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	temperature := 0.0
	if p.config.Temperature != nil {
		temperature = *p.config.Temperature
	}
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	request := anthropicRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	if req.System != "" {
		block := anthropicSystemBlock{Type: "text", Text: req.System}
		if p.config.PromptCaching == nil || *p.config.PromptCaching {
			block.CacheControl = &anthropicCacheControl{Type: "ephemeral"}
		}
		request.System = []anthropicSystemBlock{block}
	}

	return request
}
