package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens-ai/paperlens/internal/embedding"
	"github.com/paperlens-ai/paperlens/internal/extract"
	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/pdf"
	"github.com/paperlens-ai/paperlens/internal/progress"
	"github.com/paperlens-ai/paperlens/internal/storage"
)

// fakeDocument stands in for an open PDF.
type fakeDocument struct {
	pages  int
	closed bool
}

func (f *fakeDocument) PageCount() int { return f.pages }

func (f *fakeDocument) RenderRange(_ context.Context, start, end, _ int) ([]pdf.Page, error) {
	pages := make([]pdf.Page, 0, end-start+1)
	for n := start; n <= end; n++ {
		pages = append(pages, pdf.Page{Number: n, JPEG: []byte{0xff, 0xd8}})
	}
	return pages, nil
}

func (f *fakeDocument) Close() { f.closed = true }

// scriptedVision returns one canned response per batch, in order.
type scriptedVision struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	call      int
	block     chan struct{} // when set, ExtractBatch waits on it
}

func (s *scriptedVision) ExtractBatch(ctx context.Context, _ []pdf.Page) (string, error) {
	if s.block != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.block:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.call
	s.call++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

type fakeStore struct {
	mu    sync.Mutex
	calls int
	doc   *storage.Document
	saved struct {
		blocks    []storage.ContentBlock
		keyValues []storage.KeyValuePair
		images    []storage.ImageRecord
	}
	err error
}

func (f *fakeStore) SaveExtraction(_ context.Context, doc *storage.Document, blocks []storage.ContentBlock, keyValues []storage.KeyValuePair, images []storage.ImageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.doc = doc
	f.saved.blocks = blocks
	f.saved.keyValues = keyValues
	f.saved.images = images
	return nil
}

func batchJSON(page int, content string) string {
	return fmt.Sprintf(`{
		"detected_type": "report",
		"language": "en",
		"summary": "summary of batch",
		"blocks": [
			{"type": "text", "page": %d, "region": "middle-center", "content": %q, "confidence": 0.95}
		],
		"key_value_pairs": [{"key": "invoice_no", "value": "42", "page": %d}],
		"images": [{"image_type": "chart", "page": %d, "region": "bottom-right", "description": "a chart"}]
	}`, page, content, page, page)
}

func newTestService(t *testing.T, vision *scriptedVision, store Store, pages int) (*Service, *fakeDocument) {
	t.Helper()
	log := observability.NewLogger(observability.LogConfig{Level: "error"})
	worker := extract.NewWorker(vision, log, extract.WorkerConfig{BatchAttempts: 1})
	generator := embedding.NewGenerator(embedding.NewMockClient(8), log, embedding.GeneratorConfig{})

	svc := NewService(worker, generator, store, log)
	doc := &fakeDocument{pages: pages}
	svc.open = func([]byte) (pageDocument, error) { return doc, nil }
	return svc, doc
}

func collect(t *testing.T, events <-chan progress.Event) []progress.Event {
	t.Helper()
	var out []progress.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, evt)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestIngestStream_EventOrdering(t *testing.T) {
	vision := &scriptedVision{responses: []string{batchJSON(1, "first page text")}}
	store := &fakeStore{}
	svc, doc := newTestService(t, vision, store, 3)

	events, err := svc.IngestStream(context.Background(), Request{Filename: "report.pdf", Data: []byte("%PDF-1.7")})
	require.NoError(t, err)

	got := collect(t, events)
	require.NotEmpty(t, got)

	assert.Equal(t, progress.EventStart, got[0].Type)
	assert.Equal(t, 3, got[0].TotalPages)
	assert.Equal(t, "report.pdf", got[0].Filename)

	assert.Equal(t, progress.EventInfo, got[1].Type)
	assert.Equal(t, 3, got[1].BatchSize) // short documents are one batch
	assert.Equal(t, 1, got[1].TotalBatches)

	last := got[len(got)-1]
	require.Equal(t, progress.EventComplete, last.Type)

	// Every event between info and the terminal is progress or status, and
	// percent never decreases.
	prev := 0.0
	for _, evt := range got[2 : len(got)-1] {
		switch evt.Type {
		case progress.EventProgress:
			assert.GreaterOrEqual(t, evt.Percent, prev)
			prev = evt.Percent
		case progress.EventStatus:
		default:
			t.Fatalf("unexpected mid-stream event %q", evt.Type)
		}
	}

	assert.True(t, doc.closed)
}

func TestIngestStream_CompleteResult(t *testing.T) {
	vision := &scriptedVision{responses: []string{batchJSON(1, "hello world")}}
	store := &fakeStore{}
	svc, _ := newTestService(t, vision, store, 2)

	result, err := svc.Ingest(context.Background(), Request{Filename: "a.pdf", Data: []byte("%PDF-1.4")})
	require.NoError(t, err)

	assert.Equal(t, storage.StatusComplete, result.Status)
	assert.Equal(t, "report", result.DetectedType)
	assert.Equal(t, "en", result.Language)
	assert.Equal(t, 2, result.TotalPages)
	assert.Equal(t, 1, result.Blocks)
	assert.Equal(t, 1, result.KeyValues)
	assert.Equal(t, 1, result.Images)
	assert.Equal(t, 2, result.EmbeddedRecords) // block content + image description
	assert.Zero(t, result.MissingEmbeddings)

	require.Equal(t, 1, store.calls)
	require.NotNil(t, store.doc)
	assert.Equal(t, result.DocumentID, store.doc.ID)
	require.Len(t, store.saved.blocks, 1)
	assert.Equal(t, "block_001", store.saved.blocks[0].BlockID)
	assert.NotNil(t, store.saved.blocks[0].Embedding)
	require.Len(t, store.saved.images, 1)
	assert.Equal(t, "img_001", store.saved.images[0].ImageID)

	assert.Equal(t, 2, store.doc.Metadata["batch_size"])
	assert.Equal(t, 1, store.doc.Metadata["batches_total"])
	assert.NotContains(t, store.doc.Metadata, "batches_failed")
}

func TestIngestStream_PartialOnFailedBatch(t *testing.T) {
	// Twelve pages split into batches 1-5, 6-10, 11-12; the middle batch
	// fails its single attempt.
	vision := &scriptedVision{
		responses: []string{batchJSON(2, "first batch"), "", batchJSON(1, "third batch")},
		errs:      []error{nil, errors.New("model timeout"), nil},
	}
	store := &fakeStore{}
	svc, _ := newTestService(t, vision, store, 12)

	result, err := svc.Ingest(context.Background(), Request{Filename: "long.pdf", Data: []byte("%PDF-1.7")})
	require.NoError(t, err)

	assert.Equal(t, storage.StatusPartial, result.Status)
	assert.Equal(t, 1, result.BatchesFailed)
	require.Len(t, result.FailedRanges, 1)
	assert.Equal(t, extract.PageRange{Start: 6, End: 10}, result.FailedRanges[0])

	// The surviving batches were still persisted, renumbered to absolute
	// pages.
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, storage.StatusPartial, store.doc.Status)
	require.Len(t, store.saved.blocks, 2)
	assert.Equal(t, 2, store.saved.blocks[0].Page)
	assert.Equal(t, 11, store.saved.blocks[1].Page)

	// The failure detail rides along in the document metadata.
	assert.Equal(t, 1, store.doc.Metadata["batches_failed"])
	assert.Equal(t, []string{"6-10"}, store.doc.Metadata["failed_ranges"])
}

func TestIngestStream_AllBatchesFailedErrors(t *testing.T) {
	vision := &scriptedVision{errs: []error{errors.New("down")}}
	store := &fakeStore{}
	svc, _ := newTestService(t, vision, store, 3)

	events, err := svc.IngestStream(context.Background(), Request{Filename: "a.pdf", Data: []byte("%PDF-1.7")})
	require.NoError(t, err)

	got := collect(t, events)
	last := got[len(got)-1]
	assert.Equal(t, progress.EventError, last.Type)
	assert.Contains(t, last.Message, "extraction failed")
	assert.Zero(t, store.calls) // nothing persisted
}

func TestIngestStream_CancellationDiscardsWork(t *testing.T) {
	vision := &scriptedVision{block: make(chan struct{})}
	store := &fakeStore{}
	svc, doc := newTestService(t, vision, store, 3)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := svc.IngestStream(ctx, Request{Filename: "a.pdf", Data: []byte("%PDF-1.7")})
	require.NoError(t, err)

	cancel()
	got := collect(t, events)

	// The stream closes without a terminal event; no partial persist.
	for _, evt := range got {
		assert.NotEqual(t, progress.EventComplete, evt.Type)
		assert.NotEqual(t, progress.EventError, evt.Type)
	}
	assert.Zero(t, store.calls)
	assert.True(t, doc.closed)
}

func TestIngest_CancellationReturnsContextError(t *testing.T) {
	vision := &scriptedVision{block: make(chan struct{})}
	svc, _ := newTestService(t, vision, &fakeStore{}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Ingest(ctx, Request{Filename: "a.pdf", Data: []byte("%PDF-1.7")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestStream_RejectsBadUpload(t *testing.T) {
	svc, _ := newTestService(t, &scriptedVision{}, &fakeStore{}, 1)

	_, err := svc.IngestStream(context.Background(), Request{Filename: "notes.txt", Data: []byte("%PDF-")})
	assert.ErrorContains(t, err, "invalid upload")

	_, err = svc.IngestStream(context.Background(), Request{Filename: "a.pdf", Data: []byte("plain text")})
	assert.ErrorContains(t, err, "invalid upload")
}

func TestIngestStream_PersistFailure(t *testing.T) {
	vision := &scriptedVision{responses: []string{batchJSON(1, "content")}}
	store := &fakeStore{err: errors.New("disk full")}
	svc, _ := newTestService(t, vision, store, 1)

	_, err := svc.Ingest(context.Background(), Request{Filename: "a.pdf", Data: []byte("%PDF-1.7")})
	assert.ErrorContains(t, err, "persist failed")
}
