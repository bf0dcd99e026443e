// Package main provides the paperlens API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/paperlens-ai/paperlens/internal/answer"
	"github.com/paperlens-ai/paperlens/internal/api/rpc"
	"github.com/paperlens-ai/paperlens/internal/cache"
	"github.com/paperlens-ai/paperlens/internal/config"
	"github.com/paperlens-ai/paperlens/internal/embedding"
	"github.com/paperlens-ai/paperlens/internal/extract"
	"github.com/paperlens-ai/paperlens/internal/ingest"
	"github.com/paperlens-ai/paperlens/internal/llm"
	"github.com/paperlens-ai/paperlens/internal/monitoring"
	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/retrieval"
	"github.com/paperlens-ai/paperlens/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Msg("Starting paperlens API")

	store, err := storage.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	cacheClient := buildCache(cfg, logger)
	svcs := buildServices(cfg, logger, store, cacheClient)
	router := NewRouter(logger, cfg, svcs)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}

// buildCache selects the configured cache backend, falling back to the
// in-process cache when Redis is unreachable.
func buildCache(cfg *config.Config, logger *observability.Logger) cache.Client {
	if cfg.Cache.Driver != "redis" {
		return cache.NewMemoryClient(cfg.Cache.MaxEntries)
	}

	client, err := cache.NewRedisClient(context.Background(), cache.RedisOptions{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		PoolSize: cfg.Cache.Redis.PoolSize,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, using in-process cache")
		return cache.NewMemoryClient(cfg.Cache.MaxEntries)
	}

	logger.Info().Str("addr", cfg.Cache.Redis.Addr).Msg("Connected to Redis cache")
	return client
}

// buildServices wires the ingestion and query pipelines.
func buildServices(cfg *config.Config, logger *observability.Logger, store *storage.Store, cacheClient cache.Client) AppServices {
	chatClient := llm.NewClient(llm.Options{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		SiteURL:    cfg.LLM.SiteURL,
		SiteName:   cfg.LLM.SiteName,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: cfg.LLM.RetryDelay,
	})

	embedder := embedding.NewClient(embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimension:  cfg.Embedding.Dimension,
		Timeout:    cfg.Embedding.Timeout,
		MaxRetries: cfg.Embedding.MaxRetries,
		RetryDelay: cfg.Embedding.RetryDelay,
	})

	worker := extract.NewWorker(
		extract.NewVisionClient(chatClient, cfg.LLM.VisionModel),
		logger,
		extract.WorkerConfig{
			BatchAttempts: cfg.Ingestion.BatchAttempts,
			RetryDelay:    cfg.Ingestion.RetryDelay,
			JPEGQuality:   cfg.Ingestion.JPEGQuality,
		},
	)

	generator := embedding.NewGenerator(embedder, logger, embedding.GeneratorConfig{
		BatchSize:  cfg.Embedding.BatchSize,
		MaxRetries: cfg.Embedding.MaxRetries,
		RetryDelay: cfg.Embedding.RetryDelay,
	})

	ingestService := ingest.NewService(worker, generator, store, logger)

	retriever := retrieval.NewRetriever(store, logger, retrieval.Config{
		HeadingBoost: cfg.Retrieval.HeadingBoost,
	})

	auditor := monitoring.NewQueryAuditor(store, logger)

	engine := answer.NewEngine(
		embedder,
		retriever,
		answer.NewSynthesizer(chatClient, cfg.LLM.AnswerModel, cfg.Retrieval.ContextBudget),
		cacheClient,
		auditor,
		logger,
		answer.EngineConfig{
			DefaultTopK: cfg.Retrieval.DefaultTopK,
			MaxTopK:     cfg.Retrieval.MaxTopK,
			CacheTTL:    cfg.Cache.TTL,
		},
	)

	return AppServices{
		Store:    store,
		Ingest:   ingestService,
		Engine:   engine,
		Auditor:  auditor,
		QueryRPC: rpc.NewQueryService(engine, logger),
		Cache:    cacheClient,
	}
}
