// Package integration runs the storage layer against a real Postgres
// instance. These tests need Docker; set PAPERLENS_INTEGRATION=1 to run
// them.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/lib/pq"

	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/retrieval"
	"github.com/paperlens-ai/paperlens/internal/storage"
)

func setupPostgresStore(t *testing.T) *storage.Store {
	t.Helper()

	if os.Getenv("PAPERLENS_INTEGRATION") == "" {
		t.Skip("set PAPERLENS_INTEGRATION=1 to run container-backed tests")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("paperlens_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/paperlens_test?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Ping())

	log := observability.NewLogger(observability.LogConfig{Level: "error"})
	store := storage.NewStore(db, "postgres", log)
	require.NoError(t, store.Migrate(ctx))

	return store
}

func sampleDocument(filename string) *storage.Document {
	return &storage.Document{
		ID:                uuid.New(),
		Filename:          filename,
		DetectedType:      "report",
		Language:          "en",
		TotalPages:        3,
		Summary:           "quarterly report",
		Status:            storage.StatusComplete,
		ProcessingSeconds: 12.5,
	}
}

func TestPostgresSaveAndRetrieve(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	doc := sampleDocument("report.pdf")
	blocks := []storage.ContentBlock{
		{
			DocumentID: doc.ID,
			BlockID:    "block_001",
			Type:       "text",
			Page:       1,
			Region:     "middle-center",
			Content:    "Revenue grew twelve percent year over year.",
			Confidence: 0.97,
			Embedding:  storage.Vector{1, 0, 0, 0},
		},
		{
			DocumentID: doc.ID,
			BlockID:    "block_002",
			Type:       "title",
			Page:       1,
			Content:    "Financial Results",
			Embedding:  storage.Vector{0, 1, 0, 0},
		},
	}
	keyValues := []storage.KeyValuePair{
		{DocumentID: doc.ID, Key: "fiscal_year", Value: "2025", Page: 1},
	}
	images := []storage.ImageRecord{
		{
			DocumentID:  doc.ID,
			ImageID:     "img_001",
			Type:        "chart",
			Page:        2,
			Description: "Bar chart of quarterly revenue",
			Embedding:   storage.Vector{0, 0, 1, 0},
		},
	}

	require.NoError(t, store.SaveExtraction(ctx, doc, blocks, keyValues, images))

	// Round trip through the detail view.
	detail, err := store.GetDocumentDetail(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", detail.Document.Filename)
	assert.Len(t, detail.Blocks, 2)
	assert.Len(t, detail.Images, 1)
	assert.Equal(t, storage.Vector{1, 0, 0, 0}, detail.Blocks[0].Embedding)

	// Heading blocks are mirrored into the key-value store.
	headings := 0
	for _, kv := range detail.KeyValues {
		if kv.Value == "Financial Results" {
			headings++
		}
	}
	assert.Equal(t, 1, headings)

	// Retrieval over real stored vectors.
	retriever := retrieval.NewRetriever(store, observability.NewLogger(observability.LogConfig{Level: "error"}), retrieval.Config{})
	hits, err := retriever.Search(ctx, []float32{1, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "block_001", hits[0].Candidate.RecordID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}

func TestPostgresDeleteCascades(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	doc := sampleDocument("delete-me.pdf")
	blocks := []storage.ContentBlock{
		{DocumentID: doc.ID, BlockID: "block_001", Type: "text", Page: 1, Content: "x", Embedding: storage.Vector{1, 0}},
	}
	require.NoError(t, store.SaveExtraction(ctx, doc, blocks, nil, nil))

	require.NoError(t, store.DeleteDocument(ctx, doc.ID))

	_, err := store.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	candidates, err := store.Candidates(ctx, []uuid.UUID{doc.ID})
	require.NoError(t, err)
	assert.Empty(t, candidates)

	// Deleting again reports not found.
	assert.ErrorIs(t, store.DeleteDocument(ctx, doc.ID), storage.ErrNotFound)
}

func TestPostgresQueryLogs(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveQueryLog(ctx, &storage.QueryLog{
			Question:     fmt.Sprintf("question %d", i),
			Answer:       "an answer",
			MatchedIDs:   []string{"block_001"},
			Similarities: []float64{0.9},
			LatencyMS:    42,
			Status:       "ok",
		}))
	}

	logs, err := store.ListQueryLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	// Newest first.
	assert.Equal(t, "question 2", logs[0].Question)
	assert.Equal(t, []string{"block_001"}, logs[0].MatchedIDs)
}

func TestPostgresCandidatesExcludeUnembedded(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	doc := sampleDocument("partial.pdf")
	doc.Status = storage.StatusPartial
	blocks := []storage.ContentBlock{
		{DocumentID: doc.ID, BlockID: "block_001", Type: "text", Page: 1, Content: "embedded", Embedding: storage.Vector{1, 0}},
		{DocumentID: doc.ID, BlockID: "block_002", Type: "text", Page: 2, Content: "no vector", Embedding: nil},
	}
	require.NoError(t, store.SaveExtraction(ctx, doc, blocks, nil, nil))

	candidates, err := store.Candidates(ctx, []uuid.UUID{doc.ID})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "block_001", candidates[0].RecordID)
}
