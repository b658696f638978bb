package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("COHERE_API_KEY", "test-key")

	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, LLMProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, 0.0, *cfg.LLM.Temperature)
	assert.Equal(t, EmbeddingProviderCohere, cfg.Embedding.Provider)
	assert.Equal(t, 1024, cfg.Embedding.Dimension)
	assert.Equal(t, IndexBackendQdrant, cfg.Index.Backend)
	assert.Equal(t, "drugs_idx", cfg.Index.Collection)
	assert.Equal(t, "planner_cache", cfg.Cache.Collection)
	assert.Equal(t, 0.05, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, 7*24*3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, 20, cfg.Retrieval.DefaultMaxResults)
	assert.Equal(t, 100, cfg.Retrieval.MaxResultsCap)
	assert.Equal(t, 0.15, cfg.Retrieval.LexicalBoost)
	assert.Equal(t, 3000, cfg.Deadlines.PlannerMS)
	assert.Equal(t, 6000, cfg.Deadlines.TotalMS)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("COHERE_API_KEY", "test-key")

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad llm provider", func(c *Config) { c.LLM.Provider = "bedrock" }},
		{"missing api key", func(c *Config) { c.LLM.APIKey = "" }},
		{"bad index backend", func(c *Config) { c.Index.Backend = "pinecone" }},
		{"threshold out of range", func(c *Config) { c.Cache.SimilarityThreshold = 1.5 }},
		{"cap below default", func(c *Config) { c.Retrieval.MaxResultsCap = 5 }},
		{"zero deadline", func(c *Config) { c.Deadlines.IndexMS = -1 }},
		{"bad log level", func(c *Config) { c.Logger.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.SetDefaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoaderExpandsEnv(t *testing.T) {
	t.Setenv("QDRANT_KEY", "secret-from-env")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("COHERE_API_KEY", "test-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
index:
  backend: memory
  api_key: ${QDRANT_KEY}
  port: ${QDRANT_PORT}
retrieval:
  lexical_boost: 0.2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loader, err := NewLoader(LoaderOptions{Path: path})
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "secret-from-env", cfg.Index.APIKey)
	assert.Equal(t, 7000, cfg.Index.Port)
	assert.Equal(t, IndexBackendMemory, cfg.Index.Backend)
	assert.Equal(t, 0.2, cfg.Retrieval.LexicalBoost)
	// Untouched sections still get defaults.
	assert.Equal(t, "drugs_idx", cfg.Index.Collection)
}

func TestExpandEnvWithDefault(t *testing.T) {
	os.Unsetenv("RX_MISSING_VAR")
	assert.Equal(t, "fallback", expandEnvVars("${RX_MISSING_VAR:-fallback}"))

	t.Setenv("RX_SET_VAR", "present")
	assert.Equal(t, "present", expandEnvVars("${RX_SET_VAR:-fallback}"))
}
