// Package config holds the configuration surface for the rxsearch service.
//
// Configuration is loaded from a YAML file (with ${ENV_VAR} expansion),
// then each section applies defaults and validates itself. The loaded
// Config value is threaded through component constructors; no package
// reads configuration globals at runtime.
package config

import (
	"fmt"
)

// Config is the root configuration for the service.
type Config struct {
	Logger    LoggerConfig    `yaml:"logger,omitempty" json:"logger,omitempty"`
	Server    ServerConfig    `yaml:"server,omitempty" json:"server,omitempty"`
	LLM       LLMConfig       `yaml:"llm,omitempty" json:"llm,omitempty"`
	Embedding EmbeddingConfig `yaml:"embedding,omitempty" json:"embedding,omitempty"`
	Index     IndexConfig     `yaml:"index,omitempty" json:"index,omitempty"`
	Cache     CacheConfig     `yaml:"cache,omitempty" json:"cache,omitempty"`
	Retrieval RetrievalConfig `yaml:"retrieval,omitempty" json:"retrieval,omitempty"`
	Deadlines DeadlinesConfig `yaml:"deadlines,omitempty" json:"deadlines,omitempty"`
	Pricing   PricingConfig   `yaml:"pricing,omitempty" json:"pricing,omitempty"`
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Source    SourceConfig    `yaml:"source,omitempty" json:"source,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

// NewDefaultConfig returns a Config with every section defaulted, as if
// loaded from an empty file.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	c.Server.SetDefaults()
	c.LLM.SetDefaults()
	c.Embedding.SetDefaults()
	c.Index.SetDefaults()
	c.Cache.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Deadlines.SetDefaults()
	c.Pricing.SetDefaults()
	c.RateLimit.SetDefaults()
	c.Source.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"logger", &c.Logger},
		{"server", &c.Server},
		{"llm", &c.LLM},
		{"embedding", &c.Embedding},
		{"index", &c.Index},
		{"cache", &c.Cache},
		{"retrieval", &c.Retrieval},
		{"deadlines", &c.Deadlines},
		{"rate_limit", &c.RateLimit},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Host to bind. Default: 0.0.0.0
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port to listen on. Default: 8080
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// CORSOrigins allowed for browser clients. Default: ["*"]
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Address returns the bind address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig configures the semantic cache over planner outputs.
type CacheConfig struct {
	// Enabled toggles the cache. Default: true
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// SimilarityThreshold is the maximum cosine distance accepted as a hit.
	// Default: 0.05
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty" json:"similarity_threshold,omitempty"`

	// TTLSeconds is the entry lifetime. Default: 604800 (7 days)
	TTLSeconds int `yaml:"ttl_seconds,omitempty" json:"ttl_seconds,omitempty"`

	// Collection is the index namespace for cache entries.
	// Default: planner_cache
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
}

func (c *CacheConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.05
	}
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 7 * 24 * 3600
	}
	if c.Collection == "" {
		c.Collection = "planner_cache"
	}
}

func (c *CacheConfig) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %g", c.SimilarityThreshold)
	}
	if c.TTLSeconds < 0 {
		return fmt.Errorf("ttl_seconds must not be negative")
	}
	return nil
}

// RetrievalConfig configures the retrieval engine and ranker.
type RetrievalConfig struct {
	// DefaultMaxResults is the family count returned when the request does
	// not specify one. Default: 20
	DefaultMaxResults int `yaml:"default_max_results,omitempty" json:"default_max_results,omitempty"`

	// MaxResultsCap is the hard upper bound on max_results. Default: 100
	MaxResultsCap int `yaml:"max_results_cap,omitempty" json:"max_results_cap,omitempty"`

	// KFloor is the minimum candidate count fetched from the vector pass,
	// so grouping can still fill max_results families. Default: 40
	KFloor int `yaml:"k_floor,omitempty" json:"k_floor,omitempty"`

	// LexicalBoost is the additive score boost for lexically matched
	// candidates. Default: 0.15
	LexicalBoost float64 `yaml:"lexical_boost,omitempty" json:"lexical_boost,omitempty"`

	// AlternativesLimit caps each list returned by the alternatives
	// lookup. Default: 10
	AlternativesLimit int `yaml:"alternatives_limit,omitempty" json:"alternatives_limit,omitempty"`
}

func (c *RetrievalConfig) SetDefaults() {
	if c.DefaultMaxResults == 0 {
		c.DefaultMaxResults = 20
	}
	if c.MaxResultsCap == 0 {
		c.MaxResultsCap = 100
	}
	if c.KFloor == 0 {
		c.KFloor = 40
	}
	if c.LexicalBoost == 0 {
		c.LexicalBoost = 0.15
	}
	if c.AlternativesLimit == 0 {
		c.AlternativesLimit = 10
	}
}

func (c *RetrievalConfig) Validate() error {
	if c.DefaultMaxResults < 1 {
		return fmt.Errorf("default_max_results must be positive")
	}
	if c.MaxResultsCap < c.DefaultMaxResults {
		return fmt.Errorf("max_results_cap (%d) must be >= default_max_results (%d)", c.MaxResultsCap, c.DefaultMaxResults)
	}
	if c.LexicalBoost < 0 || c.LexicalBoost > 1 {
		return fmt.Errorf("lexical_boost must be in [0,1], got %g", c.LexicalBoost)
	}
	return nil
}

// DeadlinesConfig carries the per-stage time budgets in milliseconds.
type DeadlinesConfig struct {
	PlannerMS   int `yaml:"planner_ms,omitempty" json:"planner_ms,omitempty"`
	EmbeddingMS int `yaml:"embedding_ms,omitempty" json:"embedding_ms,omitempty"`
	IndexMS     int `yaml:"index_ms,omitempty" json:"index_ms,omitempty"`
	TotalMS     int `yaml:"total_ms,omitempty" json:"total_ms,omitempty"`
}

func (c *DeadlinesConfig) SetDefaults() {
	if c.PlannerMS == 0 {
		c.PlannerMS = 3000
	}
	if c.EmbeddingMS == 0 {
		c.EmbeddingMS = 1000
	}
	if c.IndexMS == 0 {
		c.IndexMS = 2000
	}
	if c.TotalMS == 0 {
		c.TotalMS = 6000
	}
}

func (c *DeadlinesConfig) Validate() error {
	for _, v := range []struct {
		name string
		ms   int
	}{
		{"planner_ms", c.PlannerMS},
		{"embedding_ms", c.EmbeddingMS},
		{"index_ms", c.IndexMS},
		{"total_ms", c.TotalMS},
	} {
		if v.ms < 1 {
			return fmt.Errorf("%s must be positive", v.name)
		}
	}
	return nil
}

// PricingConfig carries price constants for the cost estimate in the
// metrics envelope. Prices are USD per 1000 tokens.
type PricingConfig struct {
	LLMInputPer1K  float64 `yaml:"llm_input_per_1k,omitempty" json:"llm_input_per_1k,omitempty"`
	LLMOutputPer1K float64 `yaml:"llm_output_per_1k,omitempty" json:"llm_output_per_1k,omitempty"`
}

func (c *PricingConfig) SetDefaults() {
	if c.LLMInputPer1K == 0 {
		c.LLMInputPer1K = 0.003
	}
	if c.LLMOutputPer1K == 0 {
		c.LLMOutputPer1K = 0.015
	}
}

// RateLimitConfig gates outbound provider calls.
type RateLimitConfig struct {
	// Enabled toggles provider rate limiting. Default: true
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// LLMRPS is the provider-quoted requests per second for the LLM.
	// Default: 10
	LLMRPS int `yaml:"llm_rps,omitempty" json:"llm_rps,omitempty"`

	// EmbeddingRPS is the provider-quoted requests per second for the
	// embedder. Default: 50
	EmbeddingRPS int `yaml:"embedding_rps,omitempty" json:"embedding_rps,omitempty"`

	// MaxWaitMS is how long excess demand queues before failing fast.
	// Default: 100
	MaxWaitMS int `yaml:"max_wait_ms,omitempty" json:"max_wait_ms,omitempty"`
}

func (c *RateLimitConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.LLMRPS == 0 {
		c.LLMRPS = 10
	}
	if c.EmbeddingRPS == 0 {
		c.EmbeddingRPS = 50
	}
	if c.MaxWaitMS == 0 {
		c.MaxWaitMS = 100
	}
}

func (c *RateLimitConfig) Validate() error {
	if c.LLMRPS < 1 || c.EmbeddingRPS < 1 {
		return fmt.Errorf("rps limits must be positive")
	}
	return nil
}

// SourceConfig points the loader at the upstream relational drug database.
type SourceConfig struct {
	// DSN for the MySQL connection. Supports ${ENV_VAR} expansion.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`

	// BatchSize for embedding and upsert batches. Default: 96
	BatchSize int `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`
}

func (c *SourceConfig) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 96
	}
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns on the /metrics endpoint. Default: true
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

// BoolValue dereferences p, falling back to def when p is nil.
func BoolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 {
	return &f
}
