package extract

import "fmt"

// Plan describes how a document is partitioned into extraction batches.
type Plan struct {
	TotalPages int
	BatchSize  int
	Ranges     []PageRange
}

// BatchSizeFor returns the batch size for a document of the given length.
// Short documents go to the model in one call; longer documents use larger
// batches so the total call count stays bounded.
func BatchSizeFor(totalPages int) int {
	switch {
	case totalPages <= 10:
		return totalPages
	case totalPages <= 30:
		return 5
	case totalPages <= 100:
		return 8
	default:
		return 10
	}
}

// PlanBatches partitions pages [1, totalPages] into contiguous batches.
// Every page is covered exactly once; only the final batch may be short.
func PlanBatches(totalPages int) (*Plan, error) {
	if totalPages < 1 {
		return nil, fmt.Errorf("total pages must be at least 1, got %d", totalPages)
	}

	size := BatchSizeFor(totalPages)
	ranges := make([]PageRange, 0, (totalPages+size-1)/size)
	for start := 1; start <= totalPages; start += size {
		end := start + size - 1
		if end > totalPages {
			end = totalPages
		}
		ranges = append(ranges, PageRange{Start: start, End: end})
	}

	return &Plan{
		TotalPages: totalPages,
		BatchSize:  size,
		Ranges:     ranges,
	}, nil
}
