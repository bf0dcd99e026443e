package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContextAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "info", Output: &buf})

	ctx := ContextWithTraceID(context.Background(), "req-abc123")
	log.WithContext(ctx).Info().Msg("handling request")

	assert.Contains(t, buf.String(), `"trace_id":"req-abc123"`)
}

func TestWithContextWithoutTraceID(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "info", Output: &buf})

	log.WithContext(context.Background()).Info().Msg("no trace")

	assert.NotContains(t, buf.String(), "trace_id")
}

func TestWithDocumentAddsField(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "info", Output: &buf})

	log.WithDocument("doc-1").Info().Msg("persisted")

	assert.Contains(t, buf.String(), `"document_id":"doc-1"`)
}
