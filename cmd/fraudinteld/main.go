// Fraudinteld is the fraud-pattern intelligence daemon.
//
// It serves similarity-routed pattern retrieval with on-demand web
// acquisition, board crawling, guidance and report generation, and
// asynchronous case analysis with webhook delivery.
//
// Configuration comes from a YAML file plus FRAUDINTEL_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	fraudinteld
//
//	# Explicit config file
//	fraudinteld -config /etc/fraudintel/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fraudintel/internal/cases"
	"github.com/fyrsmithlabs/fraudintel/internal/config"
	"github.com/fyrsmithlabs/fraudintel/internal/crawler"
	"github.com/fyrsmithlabs/fraudintel/internal/embeddings"
	"github.com/fyrsmithlabs/fraudintel/internal/extract"
	"github.com/fyrsmithlabs/fraudintel/internal/generation"
	"github.com/fyrsmithlabs/fraudintel/internal/guidance"
	"github.com/fyrsmithlabs/fraudintel/internal/httpapi"
	"github.com/fyrsmithlabs/fraudintel/internal/ingest"
	"github.com/fyrsmithlabs/fraudintel/internal/logging"
	"github.com/fyrsmithlabs/fraudintel/internal/router"
	"github.com/fyrsmithlabs/fraudintel/internal/snippet"
	"github.com/fyrsmithlabs/fraudintel/internal/vectorstore"
	"github.com/fyrsmithlabs/fraudintel/internal/webhook"
	"github.com/fyrsmithlabs/fraudintel/internal/websearch"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// A missing .env is fine; explicit env always wins.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("fraudinteld: %v", err)
	}
}

// run initializes every service and blocks until the context is
// cancelled or the server fails.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		APIKey:   cfg.Embeddings.APIKey,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("init embeddings: %w", err)
	}
	defer func() {
		_ = embedder.Close()
	}()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       cfg.VectorStore.Path,
		Compress:   cfg.VectorStore.Compress,
		Collection: cfg.VectorStore.Collection,
	}, embedder, logger)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	rt, err := router.New(store, router.Config{
		TopK:         cfg.Router.TopK,
		MinRelevance: cfg.Router.MinRelevance,
	}, logger)
	if err != nil {
		return fmt.Errorf("init router: %w", err)
	}

	extractor := extract.New(extract.Config{
		Timeout:   cfg.Extract.Timeout,
		MinLength: cfg.Extract.MinLength,
		MaxLength: cfg.Extract.MaxLength,
		UserAgent: cfg.Extract.UserAgent,
	}, logger)

	ingestor, err := ingest.New(store, logger)
	if err != nil {
		return fmt.Errorf("init ingestor: %w", err)
	}

	// Web acquisition is optional: the router still serves hits
	// without search credentials.
	var collector *websearch.Collector
	if cfg.Search.APIKey != "" && cfg.Search.EngineID != "" {
		provider, err := websearch.NewGoogleProvider(ctx, websearch.GoogleConfig{
			APIKey:   cfg.Search.APIKey,
			EngineID: cfg.Search.EngineID,
		})
		if err != nil {
			return fmt.Errorf("init search provider: %w", err)
		}
		cache := websearch.NewRecentURLCache(cfg.Search.RecentCacheSize, cfg.Search.RecentCachePath)
		collector, err = websearch.NewCollector(provider, cache, cfg.Search.MaxResults, logger)
		if err != nil {
			return fmt.Errorf("init collector: %w", err)
		}
	} else {
		logger.Warn("web search not configured, acquisition disabled")
	}

	var generator generation.Generator
	if cfg.Generation.APIKey != "" {
		generator, err = generation.NewGeminiGenerator(generation.GeminiConfig{
			APIKey:     cfg.Generation.APIKey,
			Model:      cfg.Generation.Model,
			MaxRetries: cfg.Generation.MaxRetries,
		})
		if err != nil {
			return fmt.Errorf("init generator: %w", err)
		}
	} else {
		logger.Warn("generation not configured, analysis and guidance disabled")
	}

	crawl := crawler.New(crawler.Config{
		Delay:       cfg.Crawler.Delay,
		MaxPages:    cfg.Crawler.MaxPages,
		MaxArticles: cfg.Crawler.MaxArticles,
		Timeout:     cfg.Extract.Timeout,
		UserAgent:   cfg.Extract.UserAgent,
	}, logger)

	var guidanceSvc *guidance.Service
	var snippetSvc *snippet.Service
	var analyzer cases.Analyzer
	if generator != nil {
		guidanceSvc, err = guidance.New(store, generator, extractor, crawl, guidance.Config{
			Threshold: cfg.Router.GuidanceThreshold,
			TopK:      cfg.Router.TopK,
		}, logger)
		if err != nil {
			return fmt.Errorf("init guidance: %w", err)
		}

		snippetSvc, err = snippet.New(store, generator, logger)
		if err != nil {
			return fmt.Errorf("init snippets: %w", err)
		}

		analyzer, err = cases.NewWorkflow(rt, collector, extractor, ingestor, generator, store, logger)
		if err != nil {
			return fmt.Errorf("init case workflow: %w", err)
		}
	} else {
		analyzer = cases.AnalyzerFunc(func(ctx context.Context, sub cases.Submission) (map[string]any, error) {
			return nil, errors.New("generation backend not configured")
		})
	}

	sender := webhook.New(webhook.Config{
		URL:     cfg.Webhook.URL,
		Timeout: cfg.Webhook.Timeout,
	}, logger)

	orchestrator, err := cases.NewOrchestrator(analyzer, sender, cases.Config{}, logger)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	server, err := httpapi.NewServer(httpapi.Services{
		Router:       rt,
		Collector:    collector,
		Extractor:    extractor,
		Ingestor:     ingestor,
		Guidance:     guidanceSvc,
		Snippets:     snippetSvc,
		Orchestrator: orchestrator,
	}, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("fraudinteld started",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Bool("search", collector != nil),
		zap.Bool("generation", generator != nil),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if err := orchestrator.Drain(shutdownCtx); err != nil {
		logger.Warn("case analyses still in flight at shutdown", zap.Error(err))
	}

	return nil
}
