package observability

import (
	"context"
	"time"
)

// NoopMetrics records nothing. It is the default global recorder and
// the one tests run with.
type NoopMetrics struct{}

func (NoopMetrics) RecordSearch(_ context.Context, _ time.Duration, _ string, _ bool)   {}
func (NoopMetrics) RecordStage(_ context.Context, _ string, _ time.Duration)            {}
func (NoopMetrics) RecordLLMUsage(_ context.Context, _ string, _, _ int, _ float64)     {}
func (NoopMetrics) RecordCacheLookup(_ context.Context, _ bool)                         {}
func (NoopMetrics) RecordDocumentsLoaded(_ context.Context, _ int)                      {}

var _ Metrics = NoopMetrics{}
