package simplemessages

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrMissingField indicates a required text field is empty after normalization
	ErrMissingField = errors.New("missing field")

	// ErrInvalidEmail indicates the contact email is not a valid address
	ErrInvalidEmail = errors.New("invalid email")

	// ErrFieldTooLong indicates a text field exceeds its length bound
	ErrFieldTooLong = errors.New("field too long")

	// ErrUnsupportedMediaType indicates the upload is not an allowed image type
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrMediaTooLarge indicates the upload exceeds the maximum payload size
	ErrMediaTooLarge = errors.New("media too large")

	// ErrStorageUnavailable indicates the media blob store could not persist the payload
	ErrStorageUnavailable = errors.New("media storage unavailable")

	// ErrStoreUnavailable indicates the submission store failed; nothing was persisted
	ErrStoreUnavailable = errors.New("submission store unavailable")

	// ErrSubmissionNotFound indicates a submission was not found
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrMediaNotFound indicates a media asset or its payload was not found
	ErrMediaNotFound = errors.New("media not found")

	// ErrObjectNotFound indicates a blob store has no payload under the key
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidCursor indicates a feed cursor could not be decoded
	ErrInvalidCursor = errors.New("invalid feed cursor")
)

// Field names reported by ValidationError.
const (
	FieldDisplayName  = "display_name"
	FieldContactEmail = "contact_email"
	FieldMessageBody  = "message_body"
	FieldMedia        = "media"
)

// ValidationError is a client-input error. It is safe to show to the submitter.
type ValidationError struct {
	Field string
	// Limit is the bound that was exceeded, for ErrFieldTooLong and ErrMediaTooLarge.
	Limit int64
	Err   error
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Err, ErrMissingField):
		return fmt.Sprintf("%s is required", e.Field)
	case errors.Is(e.Err, ErrFieldTooLong):
		return fmt.Sprintf("%s is too long (max %d characters)", e.Field, e.Limit)
	case errors.Is(e.Err, ErrMediaTooLarge):
		return fmt.Sprintf("%s is too large (max %d bytes)", e.Field, e.Limit)
	default:
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is a client-input error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SubmissionError represents an error related to submission operations
type SubmissionError struct {
	SubmissionID uuid.UUID
	Op           string
	Err          error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission operation %s failed for submission %s: %v", e.Op, e.SubmissionID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// MediaError represents an error related to media asset operations
type MediaError struct {
	Ref string
	Op  string
	Err error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media operation %s failed for ref %s: %v", e.Op, e.Ref, e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
