package simplemessages

import (
	"bytes"
	"context"
	"io"
	"iter"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for media storage backends
type BlobStore interface {
	// Upload uploads content directly
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// GetPreviewURL returns a URL for displaying content inline
	GetPreviewURL(ctx context.Context, objectKey string) (string, error)

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for an object. Returns ErrObjectNotFound
	// when nothing is stored under objectKey.
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// Repository is the durable store of submissions and their media records.
//
// Implementations provide their own concurrency control. A created
// submission is either fully visible to ListPublished or not at all.
type Repository interface {
	// CreateSubmission persists the submission and, when submission.Media is
	// set, its media record, in one atomic write.
	CreateSubmission(ctx context.Context, submission *Submission) error

	GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error)
	GetMediaAsset(ctx context.Context, ref string) (*MediaAsset, error)

	// ListPublished yields published submissions ordered by created_at
	// descending, then id descending. The sequence is lazy and may be ranged
	// over more than once; each pass reads the store again.
	ListPublished(ctx context.Context, params ListPublishedParams) iter.Seq2[*Submission, error]
}

// URLStrategy resolves a stored media asset to a location a browser can load.
// Implementations live in the urlstrategy subpackage.
type URLStrategy interface {
	GenerateMediaURL(ctx context.Context, ref string, objectKey string, storageBackend string) (string, error)
}

// EventSink defines the interface for intake event handling
type EventSink interface {
	// SubmissionPublished is fired when a submission is stored and published
	SubmissionPublished(ctx context.Context, submission *Submission) error

	// MediaDropped is fired when a submission is stored without its upload
	MediaDropped(ctx context.Context, submission *Submission, reason error) error

	// IntakeRejected is fired when input fails validation
	IntakeRejected(ctx context.Context, err error) error

	// IntakeFailed is fired when the store fails and nothing is persisted
	IntakeFailed(ctx context.Context, err error) error
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

// Cursor is a position in feed order.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// ListPublishedParams contains parameters for listing published submissions
type ListPublishedParams struct {
	// Limit bounds the number of yielded submissions. Zero or negative means no bound.
	Limit int
	// After restricts the listing to submissions strictly after the cursor in
	// feed order, that is older, or equally old with a smaller id.
	After *Cursor
}

// Before reports whether a sorts before b in feed order.
func (a Cursor) Before(b Cursor) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}

// CursorOf returns the feed position of s.
func CursorOf(s *Submission) Cursor {
	return Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
}
