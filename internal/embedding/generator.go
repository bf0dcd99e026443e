package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/paperlens-ai/paperlens/internal/observability"
)

// GeneratorConfig tunes bulk generation.
type GeneratorConfig struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// Generator produces embeddings for ingestion records in bulk. Blank texts
// are skipped, API batches are retried with exponential backoff, and when a
// batch keeps failing its records are left without vectors rather than
// failing the whole job.
type Generator struct {
	embedder Embedder
	log      *observability.Logger
	cfg      GeneratorConfig
}

// Stats summarizes one generation run.
type Stats struct {
	Requested int // inputs handed to Generate
	Embedded  int // inputs that received a vector
	Skipped   int // blank inputs never sent to the API
	Failed    int // inputs whose batch exhausted its retries
}

// Degraded reports whether any non-blank input is missing its vector.
func (s Stats) Degraded() bool {
	return s.Failed > 0
}

// NewGenerator creates a Generator.
func NewGenerator(embedder Embedder, log *observability.Logger, cfg GeneratorConfig) *Generator {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return &Generator{embedder: embedder, log: log, cfg: cfg}
}

// Generate returns one vector per input, positionally aligned. Entries for
// blank or failed inputs are nil. The only hard error is cancellation.
func (g *Generator) Generate(ctx context.Context, texts []string) ([][]float32, Stats, error) {
	vectors := make([][]float32, len(texts))
	stats := Stats{Requested: len(texts)}

	// Collect the indices actually worth embedding.
	indices := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			stats.Skipped++
			continue
		}
		indices = append(indices, i)
	}

	for start := 0; start < len(indices); start += g.cfg.BatchSize {
		end := start + g.cfg.BatchSize
		if end > len(indices) {
			end = len(indices)
		}
		chunk := indices[start:end]

		batch := make([]string, len(chunk))
		for j, idx := range chunk {
			batch[j] = texts[idx]
		}

		embedded, err := g.embedBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			g.log.Warn().
				Int("batch_size", len(batch)).
				Err(err).
				Msg("Embedding batch failed, records will be stored without vectors")
			stats.Failed += len(chunk)
			continue
		}

		for j, idx := range chunk {
			vectors[idx] = embedded[j]
		}
		stats.Embedded += len(chunk)
	}

	return vectors, stats, nil
}

func (g *Generator) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error

	delay := g.cfg.RetryDelay
	for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		vectors, err := g.embedder.Embed(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}
