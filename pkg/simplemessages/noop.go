package simplemessages

import (
	"context"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for production when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// SubmissionPublished does nothing and returns nil
func (n *NoopEventSink) SubmissionPublished(ctx context.Context, submission *Submission) error {
	return nil
}

// MediaDropped does nothing and returns nil
func (n *NoopEventSink) MediaDropped(ctx context.Context, submission *Submission, reason error) error {
	return nil
}

// IntakeRejected does nothing and returns nil
func (n *NoopEventSink) IntakeRejected(ctx context.Context, err error) error {
	return nil
}

// IntakeFailed does nothing and returns nil
func (n *NoopEventSink) IntakeFailed(ctx context.Context, err error) error {
	return nil
}
