// Package main: shared service wiring for CLI commands.
package main

import (
	"os"

	"github.com/paperlens-ai/paperlens/internal/answer"
	"github.com/paperlens-ai/paperlens/internal/cache"
	"github.com/paperlens-ai/paperlens/internal/embedding"
	"github.com/paperlens-ai/paperlens/internal/extract"
	"github.com/paperlens-ai/paperlens/internal/ingest"
	"github.com/paperlens-ai/paperlens/internal/llm"
	"github.com/paperlens-ai/paperlens/internal/monitoring"
	"github.com/paperlens-ai/paperlens/internal/retrieval"
	"github.com/paperlens-ai/paperlens/internal/storage"
)

// services bundles everything a CLI command might need.
type services struct {
	store   *storage.Store
	ingest  *ingest.Service
	engine  *answer.Engine
	auditor *monitoring.QueryAuditor
}

func (s *services) Close() {
	if s.store != nil {
		s.store.Close()
	}
}

// openStore connects to the configured database.
func openStore() (*storage.Store, error) {
	return storage.Open(cfg.Database, logger)
}

// buildEmbedder returns the real embeddings client when an API key is
// configured, otherwise a deterministic mock so offline development works.
func buildEmbedder(ui *UI) embedding.Embedder {
	if cfg.Embedding.APIKey == "" {
		ui.Warning("No embedding API key set, using mock embeddings (retrieval quality will be poor)")
		return embedding.NewMockClient(cfg.Embedding.Dimension)
	}

	return embedding.NewClient(embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimension:  cfg.Embedding.Dimension,
		Timeout:    cfg.Embedding.Timeout,
		MaxRetries: cfg.Embedding.MaxRetries,
		RetryDelay: cfg.Embedding.RetryDelay,
	})
}

func buildChatClient() *llm.Client {
	return llm.NewClient(llm.Options{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		SiteURL:    cfg.LLM.SiteURL,
		SiteName:   cfg.LLM.SiteName,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: cfg.LLM.RetryDelay,
	})
}

// buildServices wires the full pipeline for a CLI command.
func buildServices(ui *UI) (*services, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}

	chatClient := buildChatClient()
	embedder := buildEmbedder(ui)

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

	retriever := retrieval.NewRetriever(store, logger, retrieval.Config{
		HeadingBoost: cfg.Retrieval.HeadingBoost,
	})

	auditor := monitoring.NewQueryAuditor(store, logger)

	engine := answer.NewEngine(
		embedder,
		retriever,
		answer.NewSynthesizer(chatClient, cfg.LLM.AnswerModel, cfg.Retrieval.ContextBudget),
		cache.NewMemoryClient(cfg.Cache.MaxEntries),
		auditor,
		logger,
		answer.EngineConfig{
			DefaultTopK: cfg.Retrieval.DefaultTopK,
			MaxTopK:     cfg.Retrieval.MaxTopK,
			CacheTTL:    cfg.Cache.TTL,
		},
	)

	return &services{
		store:   store,
		ingest:  ingest.NewService(worker, generator, store, logger),
		engine:  engine,
		auditor: auditor,
	}, nil
}

// requireAPIKey fails fast when vision extraction has no credentials.
func requireAPIKey() bool {
	return cfg.LLM.APIKey != "" || os.Getenv("OPENROUTER_API_KEY") != ""
}
