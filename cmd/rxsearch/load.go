package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medscout/rxsearch/pkg/embedders"
	"github.com/medscout/rxsearch/pkg/index"
	"github.com/medscout/rxsearch/pkg/loader"
	"github.com/medscout/rxsearch/pkg/logger"
	"github.com/medscout/rxsearch/pkg/ratelimit"
)

// LoadCmd bulk-loads drug documents from the relational source.
type LoadCmd struct {
	BatchSize int `help:"Embedding/upsert batch size (overrides config)."`
}

func (c *LoadCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	if c.BatchSize > 0 {
		cfg.Source.BatchSize = c.BatchSize
	}

	log, cleanup, err := logger.Init(&cfg.Logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	source, err := loader.NewFDBSource(&cfg.Source)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer source.Close()

	drugStore, cacheStore, err := index.NewStoresFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create index stores: %w", err)
	}
	defer drugStore.Close()
	defer cacheStore.Close()

	embedder, err := embedders.NewEmbedderFromConfig(&cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	defer embedder.Close()

	limiter := ratelimit.New(&cfg.RateLimit)
	embedder = ratelimit.LimitEmbedder(embedder, limiter)

	start := time.Now()
	stats, err := loader.New(source, embedder, drugStore, &cfg.Source, log).Run(ctx)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	fmt.Printf("Loaded %d documents (%d skipped) in %s\n",
		stats.Loaded, stats.Skipped, time.Since(start).Round(time.Second))
	return nil
}
