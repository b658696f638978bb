// Package observability provides the service's metrics surface: an
// OpenTelemetry meter exported in Prometheus format, behind a small
// interface so instrumented code never depends on the exporter.
package observability

import (
	"context"
	"sync"
	"time"
)

// Metrics is the recording surface the pipeline uses.
type Metrics interface {
	// RecordSearch records one completed search request.
	RecordSearch(ctx context.Context, duration time.Duration, status string, fromCache bool)

	// RecordStage records one pipeline stage latency
	// (planner, embedding, index, grouping).
	RecordStage(ctx context.Context, stage string, duration time.Duration)

	// RecordLLMUsage records token consumption and estimated cost of
	// one model call.
	RecordLLMUsage(ctx context.Context, model string, inputTokens, outputTokens int, costUSD float64)

	// RecordCacheLookup records a semantic cache probe outcome.
	RecordCacheLookup(ctx context.Context, hit bool)

	// RecordDocumentsLoaded records documents written by the loader.
	RecordDocumentsLoaded(ctx context.Context, count int)
}

var (
	globalMu      sync.RWMutex
	globalMetrics Metrics = NoopMetrics{}
)

// SetGlobalMetrics installs the process-wide recorder.
func SetGlobalMetrics(m Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if m == nil {
		m = NoopMetrics{}
	}
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder, never nil.
func GetGlobalMetrics() Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}
