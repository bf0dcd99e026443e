package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/pdf"
)

// ErrAllBatchesFailed is returned when no batch produced usable output.
var ErrAllBatchesFailed = errors.New("extraction failed for every batch")

const maxMergedSummaries = 10

// PageSource renders page ranges for the worker. *pdf.Document satisfies
// it; tests substitute a fake.
type PageSource interface {
	PageCount() int
	RenderRange(ctx context.Context, start, end, quality int) ([]pdf.Page, error)
}

// WorkerConfig tunes the batch loop.
type WorkerConfig struct {
	BatchAttempts int           // vision attempts per batch before it is marked failed
	RetryDelay    time.Duration // pause before a batch retry
	JPEGQuality   int
}

// Worker drives sequential batch extraction over a planned document.
type Worker struct {
	vision VisionModel
	log    *observability.Logger
	cfg    WorkerConfig
}

// BatchUpdate reports the outcome of one batch to the caller.
type BatchUpdate struct {
	Index    int // 0-based batch index
	Total    int
	Range    PageRange
	Attempts int
	Err      error // nil when the batch succeeded
}

// NewWorker creates a Worker.
func NewWorker(vision VisionModel, log *observability.Logger, cfg WorkerConfig) *Worker {
	if cfg.BatchAttempts < 1 {
		cfg.BatchAttempts = 2
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 85
	}
	return &Worker{vision: vision, log: log, cfg: cfg}
}

// Run processes every batch of the plan in order. Failed batches are
// skipped after the attempt budget; the merged result covers whatever
// succeeded. Cancellation is honored between batches and between retries,
// never mid-call beyond what the model client itself supports.
func (w *Worker) Run(ctx context.Context, source PageSource, plan *Plan, onBatch func(BatchUpdate)) (*Result, error) {
	result := &Result{BatchesTotal: len(plan.Ranges)}
	var summaries []string

	for i, r := range plan.Ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, attempts, err := w.runBatch(ctx, source, r)
		update := BatchUpdate{Index: i, Total: len(plan.Ranges), Range: r, Attempts: attempts, Err: err}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			w.log.Warn().
				Str("range", r.String()).
				Int("attempts", attempts).
				Err(err).
				Msg("Batch failed, continuing with remaining batches")
			result.BatchesFailed++
			result.FailedRanges = append(result.FailedRanges, r)
			if onBatch != nil {
				onBatch(update)
			}
			continue
		}

		w.merge(result, out, r, &summaries)
		if onBatch != nil {
			onBatch(update)
		}
	}

	if result.BatchesFailed == result.BatchesTotal {
		return nil, ErrAllBatchesFailed
	}

	w.assignIDs(result)
	result.Summary = strings.Join(summaries, " | ")
	return result, nil
}

// runBatch renders one page range and calls the model, retrying on model
// or parse failures up to the attempt budget.
func (w *Worker) runBatch(ctx context.Context, source PageSource, r PageRange) (*BatchOutput, int, error) {
	pages, err := source.RenderRange(ctx, r.Start, r.End, w.cfg.JPEGQuality)
	if err != nil {
		return nil, 0, fmt.Errorf("render pages %s: %w", r, err)
	}

	var lastErr error
	for attempt := 1; attempt <= w.cfg.BatchAttempts; attempt++ {
		if attempt > 1 && w.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			case <-time.After(w.cfg.RetryDelay):
			}
		}

		raw, err := w.vision.ExtractBatch(ctx, pages)
		if err != nil {
			lastErr = fmt.Errorf("vision call: %w", err)
			if ctx.Err() != nil {
				return nil, attempt, ctx.Err()
			}
			continue
		}

		out, err := ParseBatchOutput(raw)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt, err)
			w.log.Debug().
				Str("range", r.String()).
				Int("attempt", attempt).
				Err(err).
				Msg("Unusable batch output")
			continue
		}

		return out, attempt, nil
	}

	return nil, w.cfg.BatchAttempts, lastErr
}

// merge shifts batch-relative pages to absolute positions and appends the
// batch output to the running result. Within a batch the model's ordering
// is preserved.
func (w *Worker) merge(result *Result, out *BatchOutput, r PageRange, summaries *[]string) {
	offset := r.Start - 1

	if result.DetectedType == "" {
		result.DetectedType = out.DetectedType
	}
	if result.Language == "" {
		result.Language = out.Language
	}
	if out.Summary != "" && len(*summaries) < maxMergedSummaries {
		*summaries = append(*summaries, out.Summary)
	}

	for _, b := range out.Blocks {
		b.Page += offset
		result.Blocks = append(result.Blocks, b)
	}
	for _, kv := range out.KeyValues {
		kv.Page += offset
		result.KeyValues = append(result.KeyValues, kv)
	}
	for _, img := range out.Images {
		img.Page += offset
		result.Images = append(result.Images, img)
	}
}

// assignIDs gives merged records document-global identifiers.
func (w *Worker) assignIDs(result *Result) {
	blockN, tableN := 0, 0
	for i := range result.Blocks {
		if result.Blocks[i].Type == BlockTable {
			tableN++
			result.Blocks[i].ID = fmt.Sprintf("table_%03d", tableN)
		} else {
			blockN++
			result.Blocks[i].ID = fmt.Sprintf("block_%03d", blockN)
		}
	}
	for i := range result.Images {
		result.Images[i].ID = fmt.Sprintf("img_%03d", i+1)
	}
}
