// Package progress implements the ordered event stream a streaming
// ingestion job emits: start, then info, progress, and status events, then
// exactly one terminal complete or error event.
package progress

import "sync"

// EventType identifies a progress event.
type EventType string

const (
	EventStart    EventType = "start"
	EventInfo     EventType = "info"
	EventProgress EventType = "progress"
	EventStatus   EventType = "status"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one entry in the stream. Fields are populated per type.
type Event struct {
	Type EventType `json:"type"`

	// start
	TotalPages int    `json:"total_pages,omitempty"`
	Filename   string `json:"filename,omitempty"`

	// info
	BatchSize    int `json:"batch_size,omitempty"`
	TotalBatches int `json:"total_batches,omitempty"`

	// progress
	CurrentPage int     `json:"current_page,omitempty"`
	EndPage     int     `json:"end_page,omitempty"`
	Batch       int     `json:"batch,omitempty"`
	Percent     float64 `json:"percent,omitempty"`

	// progress phase annotation
	Status string `json:"status,omitempty"`

	// status and error detail
	Message string `json:"message,omitempty"`

	// complete
	Result any `json:"result,omitempty"`
}

// Stream is a single-producer event channel with ordering enforcement.
// The producer calls the emit methods and finally Complete or Error (or
// Abandon on cancellation); consumers range over Events().
type Stream struct {
	ch chan Event

	mu          sync.Mutex
	started     bool
	terminal    bool
	lastPercent float64
}

// NewStream creates a stream with a small buffer so a slow consumer does
// not stall extraction between events.
func NewStream() *Stream {
	return &Stream{ch: make(chan Event, 64)}
}

// Events returns the consumer side of the stream. The channel closes after
// the terminal event, or without one when the job was cancelled.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Start emits the opening event. It must be the first call.
func (s *Stream) Start(totalPages int, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal || s.started {
		return
	}
	s.started = true
	s.ch <- Event{Type: EventStart, TotalPages: totalPages, Filename: filename}
}

// Info emits batching metadata.
func (s *Stream) Info(batchSize, totalBatches int) {
	s.emit(Event{Type: EventInfo, BatchSize: batchSize, TotalBatches: totalBatches})
}

// Progress emits a batch progress update. Percent is clamped so the
// sequence never decreases.
func (s *Stream) Progress(currentPage, endPage, batch int, percent float64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal || !s.started {
		return
	}
	if percent < s.lastPercent {
		percent = s.lastPercent
	}
	s.lastPercent = percent
	s.ch <- Event{
		Type:        EventProgress,
		CurrentPage: currentPage,
		EndPage:     endPage,
		Batch:       batch,
		Percent:     percent,
		Status:      status,
	}
}

// Status emits a phase transition message.
func (s *Stream) Status(message string) {
	s.emit(Event{Type: EventStatus, Message: message})
}

// Complete emits the terminal success event carrying the job result and
// closes the stream.
func (s *Stream) Complete(result any) {
	s.terminate(Event{Type: EventComplete, Result: result})
}

// Error emits the terminal failure event and closes the stream.
func (s *Stream) Error(message string) {
	s.terminate(Event{Type: EventError, Message: message})
}

// Abandon closes the stream without a terminal event. Used when the job is
// cancelled by the consumer: the work is discarded and neither success nor
// failure is reported.
func (s *Stream) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	s.terminal = true
	close(s.ch)
}

func (s *Stream) emit(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal || !s.started {
		return
	}
	s.ch <- evt
}

func (s *Stream) terminate(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal || !s.started {
		return
	}
	s.terminal = true
	s.ch <- evt
	close(s.ch)
}
