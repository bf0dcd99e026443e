// Package storage persists documents, their extracted content, and query
// audit logs over database/sql. SQLite backs development and tests,
// Postgres backs deployments; both run the same statements.
package storage

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Document ingestion statuses.
const (
	StatusComplete = "complete" // every batch extracted, every record embedded
	StatusPartial  = "partial"  // some batches failed or some embeddings missing
)

// Vector is an embedding stored as a JSON array, which both drivers accept
// as TEXT. A nil Vector persists as NULL.
type Vector []float32

// Value implements driver.Valuer.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, fmt.Errorf("marshal vector: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (v *Vector) Scan(src any) error {
	if src == nil {
		*v = nil
		return nil
	}

	var data []byte
	switch s := src.(type) {
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return fmt.Errorf("cannot scan %T into Vector", src)
	}

	var out []float32
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal vector: %w", err)
	}
	*v = out
	return nil
}

// Metadata is an open per-document property map stored as JSON. A nil
// map persists as NULL.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch s := src.(type) {
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	*m = out
	return nil
}

// Document is a stored, fully-ingested document.
type Document struct {
	ID                uuid.UUID `json:"id"`
	Filename          string    `json:"filename"`
	DetectedType      string    `json:"detected_type,omitempty"`
	Language          string    `json:"language,omitempty"`
	TotalPages        int       `json:"total_pages"`
	Summary           string    `json:"summary,omitempty"`
	Status            string    `json:"status"`
	ProcessingSeconds float64   `json:"processing_seconds"`
	Metadata          Metadata  `json:"metadata,omitempty"`
	IngestedAt        time.Time `json:"ingested_at"`
}

// ContentBlock is one extracted text or table block.
type ContentBlock struct {
	Seq        int64     `json:"-"`
	DocumentID uuid.UUID `json:"document_id"`
	BlockID    string    `json:"block_id"`
	Type       string    `json:"type"`
	Page       int       `json:"page"`
	Region     string    `json:"region,omitempty"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence,omitempty"`
	Embedding  Vector    `json:"-"`
}

// KeyValuePair is one extracted field.
type KeyValuePair struct {
	Seq        int64     `json:"-"`
	DocumentID uuid.UUID `json:"document_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Page       int       `json:"page"`
}

// ImageRecord is one described figure, chart, or photo.
type ImageRecord struct {
	Seq         int64     `json:"-"`
	DocumentID  uuid.UUID `json:"document_id"`
	ImageID     string    `json:"image_id"`
	Type        string    `json:"image_type,omitempty"`
	Page        int       `json:"page"`
	Region      string    `json:"region,omitempty"`
	Description string    `json:"description"`
	Embedding   Vector    `json:"-"`
}

// DocumentDetail bundles a document with its extracted content.
type DocumentDetail struct {
	Document  Document       `json:"document"`
	Blocks    []ContentBlock `json:"blocks"`
	KeyValues []KeyValuePair `json:"key_values"`
	Images    []ImageRecord  `json:"images"`
}

// Candidate is an embedded record eligible for retrieval.
type Candidate struct {
	Seq        int64
	Kind       string // "block" or "image"
	DocumentID uuid.UUID
	Filename   string
	RecordID   string // block_001, table_002, img_001 ...
	BlockType  string
	Page       int
	Region     string
	Content    string
	Embedding  Vector
	IngestedAt time.Time
}

// QueryLog is one audited question/answer exchange.
type QueryLog struct {
	ID           uuid.UUID `json:"id"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	DocumentIDs  []string  `json:"document_ids,omitempty"`
	MatchedIDs   []string  `json:"matched_ids,omitempty"`
	Similarities []float64 `json:"similarities,omitempty"`
	LatencyMS    int64     `json:"latency_ms"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}
