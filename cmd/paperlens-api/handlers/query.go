package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/paperlens-ai/paperlens/internal/answer"
	"github.com/paperlens-ai/paperlens/internal/monitoring"
	"github.com/paperlens-ai/paperlens/internal/observability"
)

// QueryHandler handles question-answering requests.
type QueryHandler struct {
	logger  *observability.Logger
	engine  *answer.Engine
	auditor *monitoring.QueryAuditor
}

// NewQueryHandler creates a query handler. auditor may be nil, which
// disables the history endpoint.
func NewQueryHandler(logger *observability.Logger, engine *answer.Engine, auditor *monitoring.QueryAuditor) *QueryHandler {
	return &QueryHandler{logger: logger, engine: engine, auditor: auditor}
}

// AskRequestDTO represents the API request for a question.
type AskRequestDTO struct {
	Question    string   `json:"question"`
	TopK        int      `json:"top_k,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// Ask handles POST /ask.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var reqDTO AskRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if reqDTO.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required", "")
		return
	}

	documentIDs := make([]uuid.UUID, 0, len(reqDTO.DocumentIDs))
	for _, raw := range reqDTO.DocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid document id", raw)
			return
		}
		documentIDs = append(documentIDs, id)
	}

	result, err := h.engine.Ask(r.Context(), answer.Request{
		Question:    reqDTO.Question,
		TopK:        reqDTO.TopK,
		DocumentIDs: documentIDs,
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Ask failed")
		writeError(w, http.StatusInternalServerError, "query failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// History handles GET /queries. It returns the newest audit entries.
func (h *QueryHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.auditor == nil {
		writeError(w, http.StatusNotFound, "query history disabled", "")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = parsed
	}

	logs, err := h.auditor.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Listing query history failed")
		writeError(w, http.StatusInternalServerError, "history failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"queries": logs,
		"count":   len(logs),
	})
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	json.NewEncoder(w).Encode(resp)
}
