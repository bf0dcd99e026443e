package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens-ai/paperlens/internal/answer"
	"github.com/paperlens-ai/paperlens/internal/cache"
	"github.com/paperlens-ai/paperlens/internal/config"
	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/storage"
)

func testDocumentsRouter(t *testing.T) (*chi.Mux, *storage.Store, *cache.MemoryClient) {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{
			Path:         filepath.Join(t.TempDir(), "test.db"),
			MaxOpenConns: 1,
		},
	}
	log := observability.NewLogger(observability.LogConfig{Level: "error"})
	store, err := storage.Open(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	answerCache := cache.NewMemoryClient(0)
	h := NewDocumentsHandler(log, store, answerCache)

	r := chi.NewRouter()
	r.Delete("/documents/{id}", h.Delete)
	r.Post("/documents/batch-delete", h.BatchDelete)
	return r, store, answerCache
}

func seedDocument(t *testing.T, store *storage.Store) uuid.UUID {
	t.Helper()
	doc := &storage.Document{
		ID:         uuid.New(),
		Filename:   "seed.pdf",
		TotalPages: 1,
		Status:     storage.StatusComplete,
	}
	require.NoError(t, store.SaveExtraction(context.Background(), doc, nil, nil, nil))
	return doc.ID
}

func TestDelete_InvalidatesAnswerCache(t *testing.T) {
	r, store, answerCache := testDocumentsRouter(t)
	ctx := context.Background()

	id := seedDocument(t, store)
	require.NoError(t, answerCache.Set(ctx, answer.CacheKeyPrefix+"abc", "stale answer", 0))
	require.NoError(t, answerCache.Set(ctx, "other:1", "keep", 0))

	req := httptest.NewRequest(http.MethodDelete, "/documents/"+id.String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := answerCache.Get(ctx, answer.CacheKeyPrefix+"abc")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	// Unrelated keys survive the sweep.
	val, err := answerCache.Get(ctx, "other:1")
	require.NoError(t, err)
	assert.Equal(t, "keep", val)
}

func TestDelete_MissingDocumentKeepsCache(t *testing.T) {
	r, _, answerCache := testDocumentsRouter(t)
	ctx := context.Background()

	require.NoError(t, answerCache.Set(ctx, answer.CacheKeyPrefix+"abc", "answer", 0))

	req := httptest.NewRequest(http.MethodDelete, "/documents/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, err := answerCache.Get(ctx, answer.CacheKeyPrefix+"abc")
	assert.NoError(t, err)
}

func TestBatchDelete_InvalidatesAnswerCache(t *testing.T) {
	r, store, answerCache := testDocumentsRouter(t)
	ctx := context.Background()

	first := seedDocument(t, store)
	second := seedDocument(t, store)
	require.NoError(t, answerCache.Set(ctx, answer.CacheKeyPrefix+"abc", "stale answer", 0))

	body := fmt.Sprintf(`{"document_ids": [%q, %q]}`, first, second)
	req := httptest.NewRequest(http.MethodPost, "/documents/batch-delete", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := answerCache.Get(ctx, answer.CacheKeyPrefix+"abc")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
