// Package loader bulk-loads drug documents from the upstream
// relational database into the index. The query path never writes;
// everything the online components read comes through here.
package loader

import (
	"context"
	"log/slog"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/embedders"
	"github.com/medscout/rxsearch/pkg/index"
	"github.com/medscout/rxsearch/pkg/observability"
)

// Stats summarizes one load run.
type Stats struct {
	Loaded  int
	Skipped int
}

// Loader embeds and upserts documents in batches.
type Loader struct {
	source    Source
	embedder  embedders.Embedder
	store     index.DrugStore
	batchSize int
	logger    *slog.Logger
}

// New creates a loader.
func New(source Source, embedder embedders.Embedder, store index.DrugStore, cfg *config.SourceConfig, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		source:    source,
		embedder:  embedder,
		store:     store,
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
}

// Run scans the source and indexes every valid document. Rows with a
// malformed NDC are skipped and counted, not fatal.
func (l *Loader) Run(ctx context.Context) (*Stats, error) {
	if err := l.store.EnsureIndexes(ctx, l.embedder.Dimension()); err != nil {
		return nil, err
	}

	stats := &Stats{}
	batch := make([]*index.DrugDocument, 0, l.batchSize)

	err := l.source.Scan(ctx, func(doc *index.DrugDocument) error {
		if !index.ValidNDC(doc.NDC) {
			l.logger.Warn("Skipping row with malformed NDC", "ndc", doc.NDC)
			stats.Skipped++
			return nil
		}
		batch = append(batch, doc)
		if len(batch) < l.batchSize {
			return nil
		}
		if err := l.flush(ctx, batch, stats); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	})
	if err != nil {
		return stats, err
	}

	if len(batch) > 0 {
		if err := l.flush(ctx, batch, stats); err != nil {
			return stats, err
		}
	}

	l.logger.Info("Load complete", "loaded", stats.Loaded, "skipped", stats.Skipped)
	return stats, nil
}

func (l *Loader) flush(ctx context.Context, batch []*index.DrugDocument, stats *Stats) error {
	texts := make([]string, len(batch))
	for i, doc := range batch {
		texts[i] = doc.DrugName
	}

	vectors, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return err
	}
	for i, doc := range batch {
		doc.Embedding = vectors[i]
	}

	if err := l.store.PutBatch(ctx, batch); err != nil {
		return err
	}

	stats.Loaded += len(batch)
	observability.GetGlobalMetrics().RecordDocumentsLoaded(ctx, len(batch))
	l.logger.Debug("Batch indexed", "size", len(batch), "total", stats.Loaded)
	return nil
}
