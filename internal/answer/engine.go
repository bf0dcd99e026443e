package answer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paperlens-ai/paperlens/internal/cache"
	"github.com/paperlens-ai/paperlens/internal/embedding"
	"github.com/paperlens-ai/paperlens/internal/monitoring"
	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/retrieval"
)

// CacheKeyPrefix namespaces cached answers, so document mutations can
// invalidate every cached answer in one sweep.
const CacheKeyPrefix = "ask:"

// Searcher is the retrieval dependency of the engine.
type Searcher interface {
	Search(ctx context.Context, queryVec []float32, topK int, documentIDs []uuid.UUID) ([]retrieval.Hit, error)
}

// Auditor records query events. *monitoring.QueryAuditor satisfies it.
type Auditor interface {
	Record(ctx context.Context, evt monitoring.QueryEvent)
}

// Request is a question against the ingested corpus.
type Request struct {
	Question string
	// TopK bounds retrieval; zero selects the configured default.
	TopK int
	// DocumentIDs restricts retrieval; empty searches all documents.
	DocumentIDs []uuid.UUID
}

// Result is a synthesized answer.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	// Degraded is set when retrieval failed and the answer was produced
	// without any document context; it distinguishes that case from a
	// corpus that genuinely has no relevant content.
	Degraded  bool  `json:"degraded,omitempty"`
	Cached    bool  `json:"cached,omitempty"`
	LatencyMS int64 `json:"latency_ms"`
}

// EngineConfig tunes the query path.
type EngineConfig struct {
	DefaultTopK int
	MaxTopK     int
	CacheTTL    time.Duration
}

// Engine runs the full question path: embed, retrieve, synthesize, audit.
type Engine struct {
	embedder embedding.Embedder
	searcher Searcher
	synth    *Synthesizer
	cache    cache.Client // optional
	auditor  Auditor      // optional
	log      *observability.Logger
	cfg      EngineConfig
}

// NewEngine creates an Engine. cacheClient and auditor may be nil.
func NewEngine(embedder embedding.Embedder, searcher Searcher, synth *Synthesizer,
	cacheClient cache.Client, auditor Auditor, log *observability.Logger, cfg EngineConfig) *Engine {
	if cfg.DefaultTopK < 1 {
		cfg.DefaultTopK = 5
	}
	if cfg.MaxTopK < cfg.DefaultTopK {
		cfg.MaxTopK = 20
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Engine{
		embedder: embedder,
		searcher: searcher,
		synth:    synth,
		cache:    cacheClient,
		auditor:  auditor,
		log:      log,
		cfg:      cfg,
	}
}

// Ask answers a question. A failure to embed the question fails the query;
// a retrieval failure degrades to zero-context synthesis and is flagged on
// the result.
func (e *Engine) Ask(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	topK := req.TopK
	if topK < 1 {
		topK = e.cfg.DefaultTopK
	}
	if topK > e.cfg.MaxTopK {
		topK = e.cfg.MaxTopK
	}

	key := e.cacheKey(question, topK, req.DocumentIDs)
	if cached := e.cacheGet(ctx, key); cached != nil {
		cached.Cached = true
		cached.LatencyMS = time.Since(started).Milliseconds()
		return cached, nil
	}

	vectors, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		e.audit(ctx, req, question, nil, started, monitoring.QueryStatusError, "")
		return nil, fmt.Errorf("embed question: %w", err)
	}
	queryVec := vectors[0]

	degraded := false
	hits, err := e.searcher.Search(ctx, queryVec, topK, req.DocumentIDs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn().Err(err).Msg("Retrieval failed, answering without document context")
		degraded = true
		hits = nil
	}

	answerText, sources, err := e.synth.Synthesize(ctx, question, hits)
	if err != nil {
		e.audit(ctx, req, question, hits, started, monitoring.QueryStatusError, "")
		return nil, err
	}

	result := &Result{
		Answer:    answerText,
		Sources:   sources,
		Degraded:  degraded,
		LatencyMS: time.Since(started).Milliseconds(),
	}

	status := monitoring.QueryStatusOK
	switch {
	case degraded:
		status = monitoring.QueryStatusDegraded
	case len(sources) == 0:
		status = monitoring.QueryStatusNoResults
	}
	e.audit(ctx, req, question, hits, started, status, answerText)

	e.cacheSet(ctx, key, result)
	return result, nil
}

func (e *Engine) cacheKey(question string, topK int, documentIDs []uuid.UUID) string {
	ids := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		ids[i] = id.String()
	}
	sort.Strings(ids)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s", question, topK, strings.Join(ids, ","))
	return CacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (e *Engine) cacheGet(ctx context.Context, key string) *Result {
	if e.cache == nil {
		return nil
	}
	raw, err := e.cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		e.log.Warn().Err(err).Msg("Dropping undecodable cached answer")
		_ = e.cache.Delete(ctx, key)
		return nil
	}
	return &result
}

func (e *Engine) cacheSet(ctx context.Context, key string, result *Result) {
	if e.cache == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, string(raw), e.cfg.CacheTTL); err != nil {
		e.log.Warn().Err(err).Msg("Failed to cache answer")
	}
}

func (e *Engine) audit(ctx context.Context, req Request, question string,
	hits []retrieval.Hit, started time.Time, status, answerText string) {
	if e.auditor == nil {
		return
	}

	docIDs := make([]string, len(req.DocumentIDs))
	for i, id := range req.DocumentIDs {
		docIDs[i] = id.String()
	}

	matched := make([]string, 0, len(hits))
	similarities := make([]float64, 0, len(hits))
	for _, hit := range hits {
		matched = append(matched, hit.Candidate.RecordID)
		similarities = append(similarities, hit.Similarity)
	}

	e.auditor.Record(ctx, monitoring.QueryEvent{
		Question:     question,
		Answer:       answerText,
		DocumentIDs:  docIDs,
		MatchedIDs:   matched,
		Similarities: similarities,
		Latency:      time.Since(started),
		Status:       status,
	})
}
