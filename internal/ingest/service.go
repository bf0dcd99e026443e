// Package ingest orchestrates the document pipeline: validate, plan,
// extract, embed, persist, reporting progress along the way.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paperlens-ai/paperlens/internal/embedding"
	"github.com/paperlens-ai/paperlens/internal/extract"
	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/pdf"
	"github.com/paperlens-ai/paperlens/internal/progress"
	"github.com/paperlens-ai/paperlens/internal/storage"
)

// ErrInvalidUpload marks uploads rejected before any processing started.
var ErrInvalidUpload = errors.New("invalid upload")

// Request is an uploaded document to ingest.
type Request struct {
	Filename string
	Data     []byte
}

// Result summarizes a finished ingestion job. It is the payload of the
// terminal complete event and of the synchronous upload response.
type Result struct {
	DocumentID        uuid.UUID           `json:"document_id"`
	Filename          string              `json:"filename"`
	DetectedType      string              `json:"detected_type,omitempty"`
	Language          string              `json:"language,omitempty"`
	Summary           string              `json:"summary,omitempty"`
	TotalPages        int                 `json:"total_pages"`
	BatchSize         int                 `json:"batch_size"`
	BatchesTotal      int                 `json:"batches_total"`
	BatchesFailed     int                 `json:"batches_failed,omitempty"`
	FailedRanges      []extract.PageRange `json:"failed_ranges,omitempty"`
	Blocks            int                 `json:"blocks"`
	KeyValues         int                 `json:"key_values"`
	Images            int                 `json:"images"`
	EmbeddedRecords   int                 `json:"embedded_records"`
	MissingEmbeddings int                 `json:"missing_embeddings,omitempty"`
	Status            string              `json:"status"`
	ProcessingSeconds float64             `json:"processing_seconds"`
}

// Store is the persistence dependency. *storage.Store satisfies it.
type Store interface {
	SaveExtraction(ctx context.Context, doc *storage.Document, blocks []storage.ContentBlock, keyValues []storage.KeyValuePair, images []storage.ImageRecord) error
}

// pageDocument is an open document the worker can render pages from.
type pageDocument interface {
	extract.PageSource
	Close()
}

// Service runs ingestion jobs.
type Service struct {
	worker    *extract.Worker
	generator *embedding.Generator
	store     Store
	log       *observability.Logger

	open func(data []byte) (pageDocument, error)
}

// NewService creates a Service.
func NewService(worker *extract.Worker, generator *embedding.Generator, store Store, log *observability.Logger) *Service {
	return &Service{
		worker:    worker,
		generator: generator,
		store:     store,
		log:       log,
		open: func(data []byte) (pageDocument, error) {
			return pdf.Open(data)
		},
	}
}

// Ingest runs a job synchronously and returns the final result. A
// cancelled context discards the job and returns the context error.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	events, err := s.IngestStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		result  *Result
		jobErr  error
		sawTerm bool
	)
	for evt := range events {
		switch evt.Type {
		case progress.EventComplete:
			sawTerm = true
			if r, ok := evt.Result.(*Result); ok {
				result = r
			}
		case progress.EventError:
			sawTerm = true
			jobErr = fmt.Errorf("%s", evt.Message)
		}
	}

	if !sawTerm {
		// Stream closed without a terminal event: the job was cancelled.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("ingestion aborted")
	}
	if jobErr != nil {
		return nil, jobErr
	}
	return result, nil
}

// IngestStream validates the upload, then runs the job in the background
// and returns its event stream. Validation problems are returned
// immediately instead of as stream errors, so callers can reject bad
// uploads before committing to a stream response.
func (s *Service) IngestStream(ctx context.Context, req Request) (<-chan progress.Event, error) {
	if err := pdf.Validate(req.Filename, req.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	doc, err := s.open(req.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	plan, err := extract.PlanBatches(doc.PageCount())
	if err != nil {
		doc.Close()
		return nil, err
	}

	stream := progress.NewStream()
	go s.run(ctx, req, doc, plan, stream)
	return stream.Events(), nil
}

func (s *Service) run(ctx context.Context, req Request, doc pageDocument, plan *extract.Plan, stream *progress.Stream) {
	defer doc.Close()

	started := time.Now()
	log := s.log.WithOperation("ingest").With().Str("filename", req.Filename).Logger()

	log.Info().
		Int("total_pages", plan.TotalPages).
		Int("batch_size", plan.BatchSize).
		Int("batches", len(plan.Ranges)).
		Msg("Starting ingestion")

	stream.Start(plan.TotalPages, req.Filename)
	stream.Info(plan.BatchSize, len(plan.Ranges))

	extracted, err := s.worker.Run(ctx, doc, plan, func(u extract.BatchUpdate) {
		status := "extracting"
		if u.Err != nil {
			status = "batch failed, continuing"
		}
		percent := float64(u.Index+1) * 100 / float64(u.Total)
		stream.Progress(u.Range.Start, u.Range.End, u.Index+1, percent, status)
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Info().Msg("Ingestion cancelled, discarding partial work")
			stream.Abandon()
			return
		}
		log.Error().Err(err).Msg("Extraction failed")
		stream.Error(fmt.Sprintf("extraction failed: %v", err))
		return
	}

	stream.Status("generating embeddings")

	texts := make([]string, 0, len(extracted.Blocks)+len(extracted.Images))
	for _, b := range extracted.Blocks {
		texts = append(texts, b.Content)
	}
	for _, img := range extracted.Images {
		texts = append(texts, img.Description)
	}

	vectors, stats, err := s.generator.Generate(ctx, texts)
	if err != nil {
		// Generate only hard-fails on cancellation.
		log.Info().Msg("Ingestion cancelled during embedding, discarding partial work")
		stream.Abandon()
		return
	}

	stream.Status("persisting")

	if ctx.Err() != nil {
		stream.Abandon()
		return
	}

	documentID := uuid.New()
	status := storage.StatusComplete
	if extracted.BatchesFailed > 0 || stats.Degraded() {
		status = storage.StatusPartial
	}

	blocks := make([]storage.ContentBlock, len(extracted.Blocks))
	for i, b := range extracted.Blocks {
		blocks[i] = storage.ContentBlock{
			DocumentID: documentID,
			BlockID:    b.ID,
			Type:       string(b.Type),
			Page:       b.Page,
			Region:     string(b.Region),
			Content:    b.Content,
			Confidence: b.Confidence,
			Embedding:  storage.Vector(vectors[i]),
		}
	}

	keyValues := make([]storage.KeyValuePair, len(extracted.KeyValues))
	for i, kv := range extracted.KeyValues {
		keyValues[i] = storage.KeyValuePair{
			DocumentID: documentID,
			Key:        kv.Key,
			Value:      kv.Value,
			Page:       kv.Page,
		}
	}

	images := make([]storage.ImageRecord, len(extracted.Images))
	for i, img := range extracted.Images {
		images[i] = storage.ImageRecord{
			DocumentID:  documentID,
			ImageID:     img.ID,
			Type:        img.Type,
			Page:        img.Page,
			Region:      string(img.Region),
			Description: img.Description,
			Embedding:   storage.Vector(vectors[len(extracted.Blocks)+i]),
		}
	}

	processing := time.Since(started).Seconds()
	metadata := storage.Metadata{
		"batch_size":    plan.BatchSize,
		"batches_total": extracted.BatchesTotal,
	}
	if extracted.BatchesFailed > 0 {
		metadata["batches_failed"] = extracted.BatchesFailed
		ranges := make([]string, len(extracted.FailedRanges))
		for i, r := range extracted.FailedRanges {
			ranges[i] = r.String()
		}
		metadata["failed_ranges"] = ranges
	}
	if stats.Failed > 0 {
		metadata["missing_embeddings"] = stats.Failed
	}

	document := &storage.Document{
		ID:                documentID,
		Filename:          req.Filename,
		DetectedType:      extracted.DetectedType,
		Language:          extracted.Language,
		TotalPages:        plan.TotalPages,
		Summary:           extracted.Summary,
		Status:            status,
		ProcessingSeconds: processing,
		Metadata:          metadata,
	}

	log = log.WithDocument(documentID.String())

	if err := s.store.SaveExtraction(ctx, document, blocks, keyValues, images); err != nil {
		if ctx.Err() != nil {
			stream.Abandon()
			return
		}
		log.Error().Err(err).Msg("Persisting extraction failed")
		stream.Error(fmt.Sprintf("persist failed: %v", err))
		return
	}

	result := &Result{
		DocumentID:        documentID,
		Filename:          req.Filename,
		DetectedType:      extracted.DetectedType,
		Language:          extracted.Language,
		Summary:           extracted.Summary,
		TotalPages:        plan.TotalPages,
		BatchSize:         plan.BatchSize,
		BatchesTotal:      extracted.BatchesTotal,
		BatchesFailed:     extracted.BatchesFailed,
		FailedRanges:      extracted.FailedRanges,
		Blocks:            len(blocks),
		KeyValues:         len(keyValues),
		Images:            len(images),
		EmbeddedRecords:   stats.Embedded,
		MissingEmbeddings: stats.Failed,
		Status:            status,
		ProcessingSeconds: processing,
	}

	log.Info().
		Str("status", status).
		Int("blocks", len(blocks)).
		Int("images", len(images)).
		Float64("seconds", processing).
		Msg("Ingestion finished")
	stream.Complete(result)
}
