// Package search orchestrates the online pipeline: plan, retrieve,
// group, respond. It owns the stage deadlines and the metrics
// envelope every response carries.
package search

import (
	"github.com/medscout/rxsearch/pkg/grouping"
	"github.com/medscout/rxsearch/pkg/index"
	"github.com/medscout/rxsearch/pkg/planner"
)

// Request is one search call.
type Request struct {
	Query string `json:"query"`

	// MaxResults caps returned families; 0 means the configured
	// default.
	MaxResults int `json:"max_results,omitempty"`

	// Filters override or narrow the planner's inferred predicates.
	Filters *planner.Filters `json:"filters,omitempty"`
}

// QueryInfo echoes how the query was understood.
type QueryInfo struct {
	Original    string   `json:"original"`
	Expanded    string   `json:"expanded"`
	Corrections []string `json:"corrections"`
}

// LLMMetrics is the planner-model portion of the envelope.
type LLMMetrics struct {
	InputTokens    int   `json:"input_tokens"`
	OutputTokens   int   `json:"output_tokens"`
	ModelLatencyMS int64 `json:"model_latency_ms"`
	TotalLatencyMS int64 `json:"total_latency_ms"`
}

// Metrics is the per-response envelope, included even on failure.
type Metrics struct {
	LLM         LLMMetrics `json:"llm"`
	EmbeddingMS int64      `json:"embedding_ms"`
	IndexMS     int64      `json:"index_ms"`
	TotalMS     int64      `json:"total_ms"`
	FromCache   bool       `json:"from_cache"`
	CostUSD     float64    `json:"cost_usd"`
}

// Response is the search result.
type Response struct {
	Results []grouping.Family `json:"results"`
	Query   QueryInfo         `json:"query"`
	Metrics Metrics           `json:"metrics"`
}

// DrugResponse is the single-NDC detail result.
type DrugResponse struct {
	Document *index.DrugDocument `json:"document"`
	Metrics  Metrics             `json:"metrics"`
}

// Alternatives splits same-class products into generic and brand
// options.
type Alternatives struct {
	GenericOptions []grouping.Variant `json:"generic_options"`
	BrandOptions   []grouping.Variant `json:"brand_options"`
	TotalCount     int                `json:"total_count"`
}

// AlternativesResponse is the alternatives lookup result.
type AlternativesResponse struct {
	Drug         *index.DrugDocument `json:"drug"`
	Alternatives Alternatives        `json:"alternatives"`
	Metrics      Metrics             `json:"metrics"`
}
