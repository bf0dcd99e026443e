// Package handlers provides HTTP handlers for the paperlens API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/paperlens-ai/paperlens/internal/ingest"
	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/progress"
)

// IngestionHandler handles PDF upload requests.
type IngestionHandler struct {
	logger         *observability.Logger
	service        *ingest.Service
	maxUploadBytes int64
}

// NewIngestionHandler creates an ingestion handler.
func NewIngestionHandler(logger *observability.Logger, service *ingest.Service, maxUploadBytes int64) *IngestionHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 64 << 20
	}
	return &IngestionHandler{
		logger:         logger,
		service:        service,
		maxUploadBytes: maxUploadBytes,
	}
}

// readUpload pulls the uploaded PDF out of the multipart form.
func (h *IngestionHandler) readUpload(w http.ResponseWriter, r *http.Request) (ingest.Request, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field", err.Error())
		return ingest.Request{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return ingest.Request{}, false
	}

	return ingest.Request{Filename: header.Filename, Data: data}, true
}

// Upload handles POST /ocr/upload. It runs the full pipeline and responds
// once with the ingestion result.
func (h *IngestionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	h.logger.Info().
		Str("filename", req.Filename).
		Int("bytes", len(req.Data)).
		Msg("Upload received")

	result, err := h.service.Ingest(r.Context(), req)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nothing useful to write.
			return
		}
		status := http.StatusInternalServerError
		if errors.Is(err, ingest.ErrInvalidUpload) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "ingestion failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// UploadStream handles POST /ocr/upload/stream. Progress is streamed as
// Server-Sent Events, ending with a complete or error event.
func (h *IngestionHandler) UploadStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	events, err := h.service.IngestStream(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ingestion rejected", err.Error())
		return
	}

	sse, err := progress.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", err.Error())
		return
	}

	h.logger.Info().
		Str("filename", req.Filename).
		Msg("Streaming ingestion started")

	if err := sse.Pump(events); err != nil {
		h.logger.Warn().Err(err).Msg("Event stream interrupted")
	}
}
