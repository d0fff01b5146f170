package simplemessages

import (
	"context"
	"iter"
)

// DefaultListBatchSize is the page size repositories use when they read the
// feed in batches.
const DefaultListBatchSize = 100

// PageFetcher reads up to limit published submissions strictly after the
// cursor in feed order. A nil cursor starts at the newest submission.
type PageFetcher func(ctx context.Context, after *Cursor, limit int) ([]*Submission, error)

// ListInBatches turns a keyset page fetcher into a ListPublished sequence.
// Each pass starts from params.After again, and nothing is read until the
// sequence is ranged over.
func ListInBatches(ctx context.Context, params ListPublishedParams, batchSize int, fetch PageFetcher) iter.Seq2[*Submission, error] {
	if batchSize <= 0 {
		batchSize = DefaultListBatchSize
	}
	return func(yield func(*Submission, error) bool) {
		after := params.After
		remaining := params.Limit
		for {
			n := batchSize
			if params.Limit > 0 && remaining < n {
				n = remaining
			}
			if n <= 0 {
				return
			}

			batch, err := fetch(ctx, after, n)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, submission := range batch {
				if !yield(submission, nil) {
					return
				}
			}
			if len(batch) < n {
				return
			}

			remaining -= len(batch)
			next := CursorOf(batch[len(batch)-1])
			after = &next
		}
	}
}
