package simplemessages

import (
	"context"
	"io"
	"iter"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-messages library
type Service interface {
	// Submit runs intake for one request: validate, attach media, persist.
	//
	// The result is never nil. The returned error is non-nil exactly when the
	// outcome is OutcomeValidationFailed or OutcomeFatal, and equals result.Err.
	Submit(ctx context.Context, req SubmitRequest) (*IntakeResult, error)

	// GetFeed returns one page of published submissions, newest first, with
	// media resolved to a URL or the placeholder.
	GetFeed(ctx context.Context, req GetFeedRequest) (*FeedPage, error)

	// StreamFeed yields feed entries lazily in the same order as GetFeed.
	// A Limit of zero streams the whole feed. The sequence is restartable.
	StreamFeed(ctx context.Context, req GetFeedRequest) iter.Seq2[FeedEntry, error]

	// Read operations
	GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error)
	GetMedia(ctx context.Context, ref string) (*MediaAsset, io.ReadCloser, error)
}
