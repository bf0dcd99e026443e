package extract

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/pdf"
)

// fakeSource renders synthetic pages without a real PDF.
type fakeSource struct {
	pages int
}

func (s *fakeSource) PageCount() int { return s.pages }

func (s *fakeSource) RenderRange(_ context.Context, start, end, _ int) ([]pdf.Page, error) {
	out := make([]pdf.Page, 0, end-start+1)
	for n := start; n <= end; n++ {
		out = append(out, pdf.Page{Number: n, JPEG: []byte{0xFF, 0xD8}})
	}
	return out, nil
}

// scriptedVision returns one scripted response per call, cycling an error
// for calls marked failing.
type scriptedVision struct {
	responses []string
	errs      []error
	calls     int
	onCall    func(call int, pages []pdf.Page)
}

func (v *scriptedVision) ExtractBatch(_ context.Context, pages []pdf.Page) (string, error) {
	i := v.calls
	v.calls++
	if v.onCall != nil {
		v.onCall(i, pages)
	}
	if i < len(v.errs) && v.errs[i] != nil {
		return "", v.errs[i]
	}
	if i < len(v.responses) {
		return v.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func batchJSON(docType, summary string, contents ...string) string {
	blocks := ""
	for i, c := range contents {
		if i > 0 {
			blocks += ","
		}
		blocks += fmt.Sprintf(`{"type":"text","page":%d,"content":"%s"}`, i+1, c)
	}
	return fmt.Sprintf(`{"detected_type":"%s","language":"en","blocks":[%s],"summary":"%s"}`, docType, blocks, summary)
}

func testWorker(vision VisionModel) *Worker {
	return NewWorker(vision, observability.NewLogger(observability.LogConfig{Level: "error"}), WorkerConfig{
		BatchAttempts: 2,
	})
}

func TestWorkerRun_MergesBatches(t *testing.T) {
	plan, err := PlanBatches(12) // batch size 5: 1-5, 6-10, 11-12
	require.NoError(t, err)

	vision := &scriptedVision{responses: []string{
		batchJSON("report", "first part", "a", "b"),
		batchJSON("", "second part", "c"),
		batchJSON("other", "third part", "d"),
	}}

	var updates []BatchUpdate
	result, err := testWorker(vision).Run(context.Background(), &fakeSource{pages: 12}, plan,
		func(u BatchUpdate) { updates = append(updates, u) })
	require.NoError(t, err)

	// First non-empty detected type wins.
	assert.Equal(t, "report", result.DetectedType)
	assert.Equal(t, "en", result.Language)
	assert.Equal(t, "first part | second part | third part", result.Summary)

	// Pages shifted by each batch's offset.
	require.Len(t, result.Blocks, 4)
	assert.Equal(t, 1, result.Blocks[0].Page)
	assert.Equal(t, 2, result.Blocks[1].Page)
	assert.Equal(t, 6, result.Blocks[2].Page)
	assert.Equal(t, 11, result.Blocks[3].Page)

	// Document-global identifiers.
	assert.Equal(t, "block_001", result.Blocks[0].ID)
	assert.Equal(t, "block_004", result.Blocks[3].ID)

	assert.Equal(t, 3, result.BatchesTotal)
	assert.Zero(t, result.BatchesFailed)
	require.Len(t, updates, 3)
	assert.Equal(t, PageRange{Start: 6, End: 10}, updates[1].Range)
}

func TestWorkerRun_TableAndImageIDs(t *testing.T) {
	plan, err := PlanBatches(2)
	require.NoError(t, err)

	vision := &scriptedVision{responses: []string{`{
	  "blocks":[
	    {"type":"text","page":1,"content":"intro"},
	    {"type":"table","page":2,"content":"folded later"}
	  ],
	  "tables":[{"page":2,"summary":"totals","data":[["a","b"]]}],
	  "images":[{"image_type":"chart","page":1,"description":"sales chart"}]
	}`}}

	result, err := testWorker(vision).Run(context.Background(), &fakeSource{pages: 2}, plan, nil)
	require.NoError(t, err)

	var tableIDs, blockIDs []string
	for _, b := range result.Blocks {
		if b.Type == BlockTable {
			tableIDs = append(tableIDs, b.ID)
		} else {
			blockIDs = append(blockIDs, b.ID)
		}
	}
	assert.Equal(t, []string{"block_001"}, blockIDs)
	assert.Equal(t, []string{"table_001", "table_002"}, tableIDs)
	require.Len(t, result.Images, 1)
	assert.Equal(t, "img_001", result.Images[0].ID)
}

func TestWorkerRun_RetriesUnparseableOutput(t *testing.T) {
	plan, err := PlanBatches(3)
	require.NoError(t, err)

	vision := &scriptedVision{responses: []string{
		"sorry, I cannot help with that",
		batchJSON("letter", "recovered", "content"),
	}}

	var updates []BatchUpdate
	result, err := testWorker(vision).Run(context.Background(), &fakeSource{pages: 3}, plan,
		func(u BatchUpdate) { updates = append(updates, u) })
	require.NoError(t, err)

	assert.Equal(t, 2, vision.calls)
	require.Len(t, updates, 1)
	assert.Equal(t, 2, updates[0].Attempts)
	assert.NoError(t, updates[0].Err)
	assert.Len(t, result.Blocks, 1)
}

func TestWorkerRun_PartialSuccess(t *testing.T) {
	plan, err := PlanBatches(12) // three batches
	require.NoError(t, err)

	boom := errors.New("model unavailable")
	vision := &scriptedVision{
		responses: []string{
			batchJSON("report", "one", "a"),
			"", "", // batch two: two failing attempts
			batchJSON("", "three", "b"),
		},
		errs: []error{nil, boom, boom, nil},
	}

	var updates []BatchUpdate
	result, err := testWorker(vision).Run(context.Background(), &fakeSource{pages: 12}, plan,
		func(u BatchUpdate) { updates = append(updates, u) })
	require.NoError(t, err)

	assert.Equal(t, 1, result.BatchesFailed)
	assert.Equal(t, []PageRange{{Start: 6, End: 10}}, result.FailedRanges)

	// Later batches keep absolute numbering despite the gap.
	require.Len(t, result.Blocks, 2)
	assert.Equal(t, 1, result.Blocks[0].Page)
	assert.Equal(t, 11, result.Blocks[1].Page)

	require.Len(t, updates, 3)
	assert.Error(t, updates[1].Err)
	assert.Equal(t, 2, updates[1].Attempts)
}

func TestWorkerRun_AllBatchesFailed(t *testing.T) {
	plan, err := PlanBatches(4)
	require.NoError(t, err)

	vision := &scriptedVision{errs: []error{errors.New("down"), errors.New("down")}}

	_, err = testWorker(vision).Run(context.Background(), &fakeSource{pages: 4}, plan, nil)
	assert.ErrorIs(t, err, ErrAllBatchesFailed)
}

func TestWorkerRun_CancelledBetweenBatches(t *testing.T) {
	plan, err := PlanBatches(12)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	vision := &scriptedVision{
		responses: []string{batchJSON("report", "one", "a")},
		onCall: func(call int, _ []pdf.Page) {
			if call == 0 {
				cancel() // cancel while the first batch is in flight
			}
		},
	}

	_, err = testWorker(vision).Run(ctx, &fakeSource{pages: 12}, plan, nil)
	assert.ErrorIs(t, err, context.Canceled)
	// No further batches were attempted.
	assert.Equal(t, 1, vision.calls)
}
