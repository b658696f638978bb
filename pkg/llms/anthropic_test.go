package llms

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

func anthropicTestConfig(baseURL string) *config.LLMConfig {
	cfg := &config.LLMConfig{
		Provider: config.LLMProviderAnthropic,
		Model:    "claude-sonnet-4-20250514",
		APIKey:   "test-key",
		BaseURL:  baseURL,
	}
	cfg.SetDefaults()
	cfg.BaseURL = baseURL
	return cfg
}

func TestAnthropicConverse(t *testing.T) {
	var gotReq anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := anthropicResponse{
			Content: []anthropicContent{{Type: "text", Text: `"expanded_text":"crestor"}`}},
			Usage:   anthropicUsage{InputTokens: 120, OutputTokens: 30},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewAnthropicProviderFromConfig(anthropicTestConfig(server.URL))
	require.NoError(t, err)

	resp, err := provider.Converse(context.Background(), &Request{
		Messages:    []Message{{Role: RoleUser, Content: "crestor"}},
		System:      "You are a drug search planner.",
		JSONPrefill: "{",
	})
	require.NoError(t, err)

	// The prefill is prepended to the returned content.
	assert.Equal(t, `{"expanded_text":"crestor"}`, resp.Content)
	assert.Equal(t, 120, resp.Usage.InputTokens)
	assert.Equal(t, 30, resp.Usage.OutputTokens)
	assert.Greater(t, resp.Metrics.TotalLatency.Nanoseconds(), int64(0))

	// The prefill travels as a trailing assistant message.
	require.NotEmpty(t, gotReq.Messages)
	last := gotReq.Messages[len(gotReq.Messages)-1]
	assert.Equal(t, "assistant", last.Role)
	assert.Equal(t, "{", last.Content)

	// Prompt caching marks the system block.
	require.Len(t, gotReq.System, 1)
	require.NotNil(t, gotReq.System[0].CacheControl)
	assert.Equal(t, "ephemeral", gotReq.System[0].CacheControl.Type)

	// Planner temperature defaults to 0.
	assert.Equal(t, 0.0, gotReq.Temperature)
}

func TestAnthropicClassifiesInvalidInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer server.Close()

	provider, err := NewAnthropicProviderFromConfig(anthropicTestConfig(server.URL))
	require.NoError(t, err)

	_, err = provider.Converse(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "x"}},
	})
	require.Error(t, err)
	assert.Equal(t, rxerr.KindInvalidInput, rxerr.KindOf(err))
}

func TestAnthropicClassifiesThrottled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("retry-after", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := anthropicTestConfig(server.URL)
	cfg.MaxRetries = 1

	provider, err := NewAnthropicProviderFromConfig(cfg)
	require.NoError(t, err)

	_, err = provider.Converse(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "x"}},
	})
	require.Error(t, err)
	assert.Equal(t, rxerr.KindThrottled, rxerr.KindOf(err))
}

func TestNewProviderFromConfig(t *testing.T) {
	cfg := &config.LLMConfig{Provider: config.LLMProviderOpenAI, Model: "gpt-4o-mini", APIKey: "k"}
	cfg.SetDefaults()

	provider, err := NewProviderFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", provider.ModelName())

	cfg.Provider = "gemini"
	_, err = NewProviderFromConfig(cfg)
	assert.Error(t, err)
}
