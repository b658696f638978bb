package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/embedders"
	"github.com/medscout/rxsearch/pkg/index"
	"github.com/medscout/rxsearch/pkg/llms"
	"github.com/medscout/rxsearch/pkg/logger"
	"github.com/medscout/rxsearch/pkg/observability"
	"github.com/medscout/rxsearch/pkg/planner"
	"github.com/medscout/rxsearch/pkg/ratelimit"
	"github.com/medscout/rxsearch/pkg/retrieval"
	"github.com/medscout/rxsearch/pkg/search"
	"github.com/medscout/rxsearch/pkg/semcache"
	"github.com/medscout/rxsearch/pkg/server"
)

// ServeCmd starts the search API server.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides config)."`
	Watch bool `help:"Watch config file for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	var loader *config.Loader
	var err error
	if c.Watch {
		loader, err = config.NewLoader(config.LoaderOptions{
			Path:  cli.Config,
			Watch: true,
			OnChange: func(cfg *config.Config) error {
				slog.Info("Configuration changed; restart to apply")
				return nil
			},
		})
	} else {
		loader, err = config.NewLoader(config.LoaderOptions{Path: cli.Config})
	}
	if err != nil {
		return err
	}
	if c.Watch {
		defer loader.Stop()
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	log, cleanup, err := logger.Init(&cfg.Logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if config.BoolValue(cfg.Metrics.Enabled, true) {
		if _, err := observability.InitMetrics(ctx); err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

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

	llm, err := llms.NewProviderFromConfig(&cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}
	defer llm.Close()

	limiter := ratelimit.New(&cfg.RateLimit)
	llm = ratelimit.LimitProvider(llm, limiter)
	embedder = ratelimit.LimitEmbedder(embedder, limiter)

	if err := cacheStore.EnsureIndexes(ctx, embedder.Dimension()); err != nil {
		return fmt.Errorf("failed to ensure cache index: %w", err)
	}

	cache := semcache.New(cacheStore, &cfg.Cache, log)
	pl := planner.New(llm, embedder, cache, log)
	engine := retrieval.New(drugStore, embedder, &cfg.Retrieval, log)
	svc := search.NewService(cfg, pl, engine, drugStore, log)

	srv := server.New(cfg, svc, log)

	fmt.Printf("rxsearch server ready\n")
	fmt.Printf("   Search:   http://%s/v1/search\n", srv.Address())
	fmt.Printf("   Health:   http://%s/health\n", srv.Address())
	if config.BoolValue(cfg.Metrics.Enabled, true) {
		fmt.Printf("   Metrics:  http://%s/metrics\n", srv.Address())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}
