package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusMetrics records onto an OpenTelemetry meter whose reader
// is the Prometheus exporter; the default registry serves /metrics.
type PrometheusMetrics struct {
	searchDuration  metric.Float64Histogram
	searchRequests  metric.Int64Counter
	stageDuration   metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmCost         metric.Float64Counter
	cacheLookups    metric.Int64Counter
	docsLoaded      metric.Int64Counter
}

// InitMetrics wires the exporter and creates the instruments. It also
// installs the result as the global recorder.
func InitMetrics(ctx context.Context) (*PrometheusMetrics, error) {
	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("rxsearch")

	m := &PrometheusMetrics{}

	m.searchDuration, err = meter.Float64Histogram(
		"rxsearch_search_duration_seconds",
		metric.WithDescription("Search request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search duration histogram: %w", err)
	}

	m.searchRequests, err = meter.Int64Counter(
		"rxsearch_search_requests_total",
		metric.WithDescription("Total search requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search requests counter: %w", err)
	}

	m.stageDuration, err = meter.Float64Histogram(
		"rxsearch_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage duration histogram: %w", err)
	}

	m.llmInputTokens, err = meter.Int64Counter(
		"rxsearch_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the planner model"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	m.llmOutputTokens, err = meter.Int64Counter(
		"rxsearch_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the planner model"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	m.llmCost, err = meter.Float64Counter(
		"rxsearch_llm_cost_usd_total",
		metric.WithDescription("Estimated planner model spend in USD"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm cost counter: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter(
		"rxsearch_cache_lookups_total",
		metric.WithDescription("Semantic cache probes by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	m.docsLoaded, err = meter.Int64Counter(
		"rxsearch_documents_loaded_total",
		metric.WithDescription("Drug documents written by the loader"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create documents loaded counter: %w", err)
	}

	SetGlobalMetrics(m)
	return m, nil
}

func (m *PrometheusMetrics) RecordSearch(ctx context.Context, duration time.Duration, status string, fromCache bool) {
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.Bool("from_cache", fromCache),
	)
	m.searchDuration.Record(ctx, duration.Seconds(), attrs)
	m.searchRequests.Add(ctx, 1, attrs)
}

func (m *PrometheusMetrics) RecordStage(ctx context.Context, stage string, duration time.Duration) {
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
	))
}

func (m *PrometheusMetrics) RecordLLMUsage(ctx context.Context, model string, inputTokens, outputTokens int, costUSD float64) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	m.llmCost.Add(ctx, costUSD, attrs)
}

func (m *PrometheusMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *PrometheusMetrics) RecordDocumentsLoaded(ctx context.Context, count int) {
	m.docsLoaded.Add(ctx, int64(count))
}

var _ Metrics = (*PrometheusMetrics)(nil)
