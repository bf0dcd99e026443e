package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/storage"
)

type staticSource struct {
	candidates []storage.Candidate
	err        error
	gotFilter  []uuid.UUID
}

func (s *staticSource) Candidates(_ context.Context, documentIDs []uuid.UUID) ([]storage.Candidate, error) {
	s.gotFilter = documentIDs
	if s.err != nil {
		return nil, s.err
	}
	if len(documentIDs) == 0 {
		return s.candidates, nil
	}
	allowed := map[uuid.UUID]bool{}
	for _, id := range documentIDs {
		allowed[id] = true
	}
	var out []storage.Candidate
	for _, c := range s.candidates {
		if allowed[c.DocumentID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func testRetriever(source CandidateSource, cfg Config) *Retriever {
	return NewRetriever(source, observability.NewLogger(observability.LogConfig{Level: "error"}), cfg)
}

func candidate(seq int64, docID uuid.UUID, recordID string, embedding storage.Vector, ingestedAt time.Time) storage.Candidate {
	return storage.Candidate{
		Seq:        seq,
		Kind:       "block",
		DocumentID: docID,
		RecordID:   recordID,
		BlockType:  "text",
		Content:    recordID + " content",
		Embedding:  embedding,
		IngestedAt: ingestedAt,
	}
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	docID := uuid.New()
	now := time.Now().UTC()
	source := &staticSource{candidates: []storage.Candidate{
		candidate(1, docID, "far", storage.Vector{0, 1}, now),
		candidate(2, docID, "close", storage.Vector{1, 0.1}, now),
		candidate(3, docID, "exact", storage.Vector{1, 0}, now),
	}}

	hits, err := testRetriever(source, Config{}).Search(context.Background(), []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "exact", hits[0].Candidate.RecordID)
	assert.Equal(t, "close", hits[1].Candidate.RecordID)
	assert.Equal(t, "far", hits[2].Candidate.RecordID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.Greater(t, hits[1].Similarity, hits[2].Similarity)
}

func TestSearch_TopKLimits(t *testing.T) {
	docID := uuid.New()
	now := time.Now().UTC()
	source := &staticSource{candidates: []storage.Candidate{
		candidate(1, docID, "a", storage.Vector{1, 0}, now),
		candidate(2, docID, "b", storage.Vector{0.9, 0.1}, now),
		candidate(3, docID, "c", storage.Vector{0.5, 0.5}, now),
	}}

	hits, err := testRetriever(source, Config{}).Search(context.Background(), []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_DeterministicTieBreak(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	docA, docB := uuid.New(), uuid.New()

	// Identical embeddings: identical similarity.
	vec := storage.Vector{1, 0}
	source := &staticSource{candidates: []storage.Candidate{
		candidate(9, docB, "late-doc", vec, late),
		candidate(5, docA, "early-doc-seq5", vec, early),
		candidate(2, docA, "early-doc-seq2", vec, early),
	}}

	hits, err := testRetriever(source, Config{}).Search(context.Background(), []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// Earlier ingestion first, then lower sequence.
	assert.Equal(t, "early-doc-seq2", hits[0].Candidate.RecordID)
	assert.Equal(t, "early-doc-seq5", hits[1].Candidate.RecordID)
	assert.Equal(t, "late-doc", hits[2].Candidate.RecordID)

	// Same inputs, same order, every time.
	again, err := testRetriever(source, Config{}).Search(context.Background(), []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, hits, again)
}

func TestSearch_DocumentFilter(t *testing.T) {
	docA, docB := uuid.New(), uuid.New()
	now := time.Now().UTC()
	source := &staticSource{candidates: []storage.Candidate{
		candidate(1, docA, "in-a", storage.Vector{1, 0}, now),
		candidate(2, docB, "in-b", storage.Vector{1, 0}, now),
	}}

	hits, err := testRetriever(source, Config{}).Search(context.Background(), []float32{1, 0}, 10, []uuid.UUID{docA})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "in-a", hits[0].Candidate.RecordID)

	// Empty filter reaches the source unchanged and searches everything.
	hits, err = testRetriever(source, Config{}).Search(context.Background(), []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Empty(t, source.gotFilter)
}

func TestSearch_SkipsMismatchedDimensions(t *testing.T) {
	docID := uuid.New()
	now := time.Now().UTC()
	source := &staticSource{candidates: []storage.Candidate{
		candidate(1, docID, "good", storage.Vector{1, 0}, now),
		candidate(2, docID, "bad-dim", storage.Vector{1, 0, 0}, now),
	}}

	hits, err := testRetriever(source, Config{}).Search(context.Background(), []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "good", hits[0].Candidate.RecordID)
}

func TestSearch_HeadingBoost(t *testing.T) {
	docID := uuid.New()
	now := time.Now().UTC()
	heading := candidate(1, docID, "heading", storage.Vector{0.9, 0.1}, now)
	heading.BlockType = "title"
	body := candidate(2, docID, "body", storage.Vector{1, 0}, now)

	// Without the boost the body block wins.
	source := &staticSource{candidates: []storage.Candidate{heading, body}}
	hits, err := testRetriever(source, Config{}).Search(context.Background(), []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "body", hits[0].Candidate.RecordID)

	// With it the title overtakes.
	hits, err = testRetriever(source, Config{HeadingBoost: 1.2}).Search(context.Background(), []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "heading", hits[0].Candidate.RecordID)
}

func TestSearch_Validation(t *testing.T) {
	source := &staticSource{}
	r := testRetriever(source, Config{})

	_, err := r.Search(context.Background(), nil, 5, nil)
	assert.Error(t, err)

	_, err = r.Search(context.Background(), []float32{1}, 0, nil)
	assert.Error(t, err)
}

func TestSearch_SourceError(t *testing.T) {
	source := &staticSource{err: errors.New("db down")}
	_, err := testRetriever(source, Config{}).Search(context.Background(), []float32{1, 0}, 5, nil)
	assert.ErrorContains(t, err, "load candidates")
}
