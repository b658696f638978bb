// Package llms provides the conversation clients used by the query
// planner. A single stable call shape is supported: messages in,
// structured text out, with token usage and latency metrics.
package llms

import (
	"context"
	"time"
)

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Request is the single supported call shape.
type Request struct {
	Messages []Message

	// System prompt, cached provider-side when supported.
	System string

	// MaxTokens overrides the configured response cap when positive.
	MaxTokens int

	// Temperature overrides the configured temperature when non-nil.
	Temperature *float64

	// JSONPrefill seeds the assistant turn so providers that support
	// prefilling emit bare JSON. The prefill is included in the
	// returned content.
	JSONPrefill string
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Metrics reports call latency. ModelLatency is the provider-reported
// or measured inference time; TotalLatency includes transport and
// retries.
type Metrics struct {
	ModelLatency time.Duration
	TotalLatency time.Duration
}

// Response is the result of a conversation call.
type Response struct {
	Content string
	Usage   Usage
	Metrics Metrics
}

// Provider is the narrow capability surface the planner depends on.
type Provider interface {
	// Converse runs a single conversation call.
	Converse(ctx context.Context, req *Request) (*Response, error)

	// ModelName returns the configured model identifier.
	ModelName() string

	Close() error
}
