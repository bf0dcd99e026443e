// Package retrieval ranks stored embeddings against a query vector.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/storage"
)

// CandidateSource supplies embedded records. *storage.Store satisfies it.
type CandidateSource interface {
	Candidates(ctx context.Context, documentIDs []uuid.UUID) ([]storage.Candidate, error)
}

// Hit is one ranked retrieval result.
type Hit struct {
	Candidate  storage.Candidate
	Similarity float64
}

// Config tunes ranking.
type Config struct {
	// HeadingBoost multiplies the similarity of title-like blocks when
	// greater than zero. Off by default: ordering is pure cosine.
	HeadingBoost float64
}

// Retriever performs cosine top-k search over stored embeddings.
type Retriever struct {
	source CandidateSource
	log    *observability.Logger
	cfg    Config
}

// NewRetriever creates a Retriever.
func NewRetriever(source CandidateSource, log *observability.Logger, cfg Config) *Retriever {
	return &Retriever{source: source, log: log, cfg: cfg}
}

// Search returns the topK most similar records. An empty documentIDs
// filter searches all documents. Results are ordered by descending
// similarity; exact ties go to the earlier-ingested document, then the
// lower record sequence, so equal inputs always rank identically.
func (r *Retriever) Search(ctx context.Context, queryVec []float32, topK int, documentIDs []uuid.UUID) ([]Hit, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if topK < 1 {
		return nil, fmt.Errorf("topK must be at least 1, got %d", topK)
	}

	candidates, err := r.source.Candidates(ctx, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) != len(queryVec) {
			r.log.Warn().
				Str("record_id", c.RecordID).
				Int("dimension", len(c.Embedding)).
				Int("query_dimension", len(queryVec)).
				Msg("Skipping candidate with mismatched embedding dimension")
			continue
		}

		sim := cosineSimilarity(queryVec, c.Embedding)
		if r.cfg.HeadingBoost > 0 && isHeading(c.BlockType) {
			sim *= r.cfg.HeadingBoost
		}
		hits = append(hits, Hit{Candidate: c, Similarity: sim})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		ti, tj := hits[i].Candidate.IngestedAt, hits[j].Candidate.IngestedAt
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return hits[i].Candidate.Seq < hits[j].Candidate.Seq
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func isHeading(blockType string) bool {
	switch blockType {
	case "title", "header", "section_title":
		return true
	}
	return false
}

// cosineSimilarity computes dot(a,b)/(|a||b|) without requiring
// pre-normalized vectors.
func cosineSimilarity(a []float32, b storage.Vector) float64 {
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
