package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"

	"github.com/paperlens-ai/paperlens/internal/observability"
)

func TestTracePropagatesRequestID(t *testing.T) {
	var traceID string

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(Trace)
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		traceID = observability.TraceIDFromContext(req.Context())
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, traceID)
}

func TestTraceWithoutRequestID(t *testing.T) {
	var traceID string

	h := Trace(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		traceID = observability.TraceIDFromContext(req.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Empty(t, traceID)
}
