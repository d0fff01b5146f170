package simplemessages

import (
	"context"
	"errors"
	"log/slog"
)

// LoggingEventSink writes intake events to a structured logger.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink that logs to logger, or to
// slog.Default when logger is nil.
func NewLoggingEventSink(logger *slog.Logger) *LoggingEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) SubmissionPublished(ctx context.Context, submission *Submission) error {
	l.logger.InfoContext(ctx, "submission published",
		"submission_id", submission.ID,
		"has_media", submission.HasMedia(),
		"created_at", submission.CreatedAt)
	return nil
}

func (l *LoggingEventSink) MediaDropped(ctx context.Context, submission *Submission, reason error) error {
	l.logger.WarnContext(ctx, "submission stored without media",
		"submission_id", submission.ID,
		"error", reason)
	return nil
}

func (l *LoggingEventSink) IntakeRejected(ctx context.Context, err error) error {
	attrs := []any{"error", err}
	var ve *ValidationError
	if errors.As(err, &ve) {
		attrs = append(attrs, "field", ve.Field)
	}
	l.logger.InfoContext(ctx, "submission rejected", attrs...)
	return nil
}

func (l *LoggingEventSink) IntakeFailed(ctx context.Context, err error) error {
	l.logger.ErrorContext(ctx, "submission failed", "error", err)
	return nil
}
