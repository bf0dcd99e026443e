package progress

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter frames events as Server-Sent Events on an HTTP response.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares the response for event streaming. It returns an
// error when the underlying writer cannot flush incrementally.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Write frames a single event as "data: {json}\n\n" and flushes it.
func (s *SSEWriter) Write(evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	s.flusher.Flush()
	return nil
}

// Pump copies events from the stream to the wire until the stream closes
// or a write fails (client disconnected).
func (s *SSEWriter) Pump(events <-chan Event) error {
	for evt := range events {
		if err := s.Write(evt); err != nil {
			return err
		}
	}
	return nil
}
