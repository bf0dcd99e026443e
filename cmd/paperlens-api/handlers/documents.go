package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paperlens-ai/paperlens/internal/answer"
	"github.com/paperlens-ai/paperlens/internal/cache"
	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/storage"
)

// DocumentsHandler serves the stored-document management endpoints.
type DocumentsHandler struct {
	logger      *observability.Logger
	store       *storage.Store
	answerCache cache.Client
}

// NewDocumentsHandler creates a documents handler. answerCache may be nil
// when no answer caching is configured.
func NewDocumentsHandler(logger *observability.Logger, store *storage.Store, answerCache cache.Client) *DocumentsHandler {
	return &DocumentsHandler{logger: logger, store: store, answerCache: answerCache}
}

// List handles GET /documents.
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = parsed
	}

	docs, err := h.store.ListDocuments(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Listing documents failed")
		writeError(w, http.StatusInternalServerError, "list failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

// Get handles GET /documents/{id}. With ?detail=true the response includes
// the extracted blocks, key-values, and image descriptions.
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if r.URL.Query().Get("detail") == "true" {
		detail, err := h.store.GetDocumentDetail(r.Context(), id)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		json.NewEncoder(w).Encode(detail)
		return
	}

	doc, err := h.store.GetDocument(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	json.NewEncoder(w).Encode(doc)
}

// Delete handles DELETE /documents/{id}.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteDocument(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.invalidateAnswers(r.Context())

	h.logger.WithContext(r.Context()).Info().Str("document_id", id.String()).Msg("Document deleted")
	w.WriteHeader(http.StatusNoContent)
}

// BatchDeleteRequestDTO represents the API request for batch deletion.
type BatchDeleteRequestDTO struct {
	DocumentIDs []string `json:"document_ids"`
}

// BatchDeleteResultDTO reports per-document deletion outcomes.
type BatchDeleteResultDTO struct {
	Deleted  []string `json:"deleted"`
	NotFound []string `json:"not_found,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// BatchDelete handles POST /documents/batch-delete. Each document is
// deleted independently; one miss does not abort the rest.
func (h *DocumentsHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var reqDTO BatchDeleteRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(reqDTO.DocumentIDs) == 0 {
		writeError(w, http.StatusBadRequest, "document_ids is required", "")
		return
	}

	result := BatchDeleteResultDTO{Deleted: []string{}}
	for _, raw := range reqDTO.DocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			result.Failed = append(result.Failed, raw)
			continue
		}

		switch err := h.store.DeleteDocument(r.Context(), id); {
		case err == nil:
			result.Deleted = append(result.Deleted, raw)
		case errors.Is(err, storage.ErrNotFound):
			result.NotFound = append(result.NotFound, raw)
		default:
			h.logger.Error().Err(err).Str("document_id", raw).Msg("Batch delete entry failed")
			result.Failed = append(result.Failed, raw)
		}
	}

	if len(result.Deleted) > 0 {
		h.invalidateAnswers(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// invalidateAnswers drops every cached answer after a document is removed,
// so a cached response never cites content that is gone.
func (h *DocumentsHandler) invalidateAnswers(ctx context.Context) {
	if h.answerCache == nil {
		return
	}
	if err := h.answerCache.DeleteByPrefix(ctx, answer.CacheKeyPrefix); err != nil {
		h.logger.Warn().Err(err).Msg("Answer cache invalidation failed")
	}
}

func (h *DocumentsHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id", raw)
		return uuid.Nil, false
	}
	return id, true
}

func (h *DocumentsHandler) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found", "")
		return
	}
	h.logger.Error().Err(err).Msg("Document store error")
	writeError(w, http.StatusInternalServerError, "storage error", err.Error())
}
