package simplemessages

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus is the domain type for submission lifecycle states.
type SubmissionStatus string

// Submission status constants (typed).
//
// Only SubmissionStatusPublished is produced by the current intake policy.
// Pending and Rejected are reserved for a moderation step.
const (
	SubmissionStatusPending   SubmissionStatus = "pending"
	SubmissionStatusPublished SubmissionStatus = "published"
	SubmissionStatusRejected  SubmissionStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusPending, SubmissionStatusPublished, SubmissionStatusRejected:
		return true
	}
	return false
}

// Submission is one visitor-supplied record.
//
// All fields are set once at creation. There is no update path.
type Submission struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	DisplayName  string           `json:"display_name" db:"display_name"`
	ContactEmail string           `json:"contact_email" db:"contact_email"`
	MessageBody  string           `json:"message_body" db:"message_body"`
	MediaRef     *string          `json:"media_ref,omitempty" db:"media_ref"`
	Status       SubmissionStatus `json:"status" db:"status"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`

	// Media is the asset referenced by MediaRef. Repositories populate it on
	// create and on reads that join the media table.
	Media *MediaAsset `json:"media,omitempty" db:"-"`
}

// HasMedia reports whether the submission references a media asset.
func (s *Submission) HasMedia() bool {
	return s != nil && s.MediaRef != nil && *s.MediaRef != ""
}

// MediaAsset describes a stored image payload owned by exactly one submission.
type MediaAsset struct {
	Ref            string    `json:"ref" db:"ref"`
	SubmissionID   uuid.UUID `json:"submission_id" db:"submission_id"`
	StorageBackend string    `json:"storage_backend" db:"storage_backend"`
	ObjectKey      string    `json:"object_key" db:"object_key"`
	FileName       string    `json:"file_name,omitempty" db:"file_name"`
	MimeType       string    `json:"mime_type" db:"mime_type"`
	SizeBytes      int64     `json:"size_bytes" db:"size_bytes"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// FeedEntry pairs a published submission with its resolved media location.
//
// When Placeholder is true MediaURL holds the placeholder marker, either
// because no media was attached or because the asset could not be resolved.
type FeedEntry struct {
	Submission  *Submission `json:"submission"`
	MediaURL    string      `json:"media_url"`
	Placeholder bool        `json:"placeholder"`
}

// FeedPage is one page of the public listing.
type FeedPage struct {
	Entries    []FeedEntry `json:"entries"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// Outcome classifies the terminal state of one intake request.
type Outcome string

const (
	// OutcomeSuccess means the submission was validated, stored and published.
	OutcomeSuccess Outcome = "success"
	// OutcomeSuccessWithWarning means the submission was stored without the
	// uploaded media because the media store was unavailable.
	OutcomeSuccessWithWarning Outcome = "success_with_warning"
	// OutcomeValidationFailed means the input was rejected before any write.
	OutcomeValidationFailed Outcome = "validation_failed"
	// OutcomeFatal means the store failed and nothing was persisted.
	OutcomeFatal Outcome = "fatal"
)

// IntakeResult is returned by Service.Submit for every request.
type IntakeResult struct {
	Outcome    Outcome
	Submission *Submission
	// Warning is set with OutcomeSuccessWithWarning and explains why the
	// media was dropped.
	Warning error
	// Err is set with OutcomeValidationFailed and OutcomeFatal.
	Err error
}

// Stored reports whether the submission was persisted.
func (r *IntakeResult) Stored() bool {
	return r != nil && (r.Outcome == OutcomeSuccess || r.Outcome == OutcomeSuccessWithWarning)
}
