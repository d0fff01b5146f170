package simplemessages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-messages/pkg/simplemessages/objectkey"
	"github.com/tendant/simple-messages/pkg/simplemessages/urlstrategy"
)

// service implements the Service interface
type service struct {
	repository     Repository
	blobStores     map[string]BlobStore
	defaultBackend string
	urlStrategy    URLStrategy
	eventSinks     []EventSink
	logger         *slog.Logger
	limits         Limits
	placeholderURL string
	keyGenerator   objectkey.Generator

	validator *Validator
	media     *MediaHandler

	clockMu       sync.Mutex
	now           func() time.Time
	lastCreatedAt time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore adds a media storage backend
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = store
	}
}

// WithDefaultBlobStore names the backend new uploads are written to.
// It is required when more than one blob store is registered.
func WithDefaultBlobStore(name string) Option {
	return func(s *service) {
		s.defaultBackend = name
	}
}

// WithURLStrategy sets how media assets are turned into feed URLs.
// The default delegates to the blob stores' preview URLs.
func WithURLStrategy(strategy URLStrategy) Option {
	return func(s *service) {
		s.urlStrategy = strategy
	}
}

// WithEventSink adds an event sink. Several sinks may be registered; each
// receives every event.
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		if sink != nil {
			s.eventSinks = append(s.eventSinks, sink)
		}
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithLimits overrides field and media size limits. Zero values keep defaults.
func WithLimits(limits Limits) Option {
	return func(s *service) {
		s.limits = limits
	}
}

// WithPlaceholderURL sets the marker used for feed entries without an image.
func WithPlaceholderURL(url string) Option {
	return func(s *service) {
		s.placeholderURL = url
	}
}

// WithObjectKeyGenerator sets the generator for media object keys
func WithObjectKeyGenerator(generator objectkey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = generator
	}
}

// WithClock sets the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores: make(map[string]BlobStore),
		now:        time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.placeholderURL == "" {
		s.placeholderURL = DefaultPlaceholderURL
	}

	switch {
	case s.defaultBackend != "":
		if _, ok := s.blobStores[s.defaultBackend]; !ok {
			return nil, fmt.Errorf("default blob store %q is not registered", s.defaultBackend)
		}
	case len(s.blobStores) == 1:
		for name := range s.blobStores {
			s.defaultBackend = name
		}
	case len(s.blobStores) > 1:
		return nil, fmt.Errorf("default blob store is required when %d blob stores are registered", len(s.blobStores))
	}

	if s.urlStrategy == nil {
		stores := make(map[string]urlstrategy.BlobStore, len(s.blobStores))
		for name, store := range s.blobStores {
			stores[name] = store
		}
		s.urlStrategy = urlstrategy.NewStorageDelegatedStrategy(stores)
	}

	s.limits = s.limits.WithDefaults()
	s.validator = NewValidator(s.limits)
	s.media = NewMediaHandler(s.limits.MaxMediaBytes, s.blobStores, s.defaultBackend, s.keyGenerator)

	return s, nil
}

// Intake

func (s *service) Submit(ctx context.Context, req SubmitRequest) (*IntakeResult, error) {
	fields, err := s.validator.Validate(Fields{
		DisplayName:  req.DisplayName,
		ContactEmail: req.ContactEmail,
		MessageBody:  req.MessageBody,
	})
	if err != nil {
		return s.reject(ctx, err)
	}

	prepared, err := s.media.Prepare(req.Upload)
	if err != nil {
		if IsValidationError(err) {
			return s.reject(ctx, err)
		}
		return s.fail(ctx, &SubmissionError{Op: "read_upload", Err: err})
	}

	id, err := uuid.NewV7()
	if err != nil {
		return s.fail(ctx, &SubmissionError{Op: "generate_id", Err: err})
	}
	if err := ctx.Err(); err != nil {
		return s.fail(ctx, &SubmissionError{SubmissionID: id, Op: "submit", Err: err})
	}

	submission := &Submission{
		ID:           id,
		DisplayName:  fields.DisplayName,
		ContactEmail: fields.ContactEmail,
		MessageBody:  fields.MessageBody,
		Status:       SubmissionStatusPublished,
	}

	var warning error
	if prepared != nil {
		asset, err := s.media.Store(ctx, id, prepared)
		switch {
		case err == nil:
			submission.Media = asset
			submission.MediaRef = &asset.Ref
		case ctx.Err() != nil:
			return s.fail(ctx, &SubmissionError{SubmissionID: id, Op: "submit", Err: ctx.Err()})
		default:
			warning = err
			s.logger.WarnContext(ctx, "dropping media from submission", "submission_id", id, "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		s.discardMedia(ctx, submission.Media)
		return s.fail(ctx, &SubmissionError{SubmissionID: id, Op: "submit", Err: err})
	}

	submission.CreatedAt = s.nextCreatedAt()
	if submission.Media != nil {
		submission.Media.CreatedAt = submission.CreatedAt
	}

	if err := s.repository.CreateSubmission(ctx, submission); err != nil {
		s.discardMedia(ctx, submission.Media)
		return s.fail(ctx, &SubmissionError{
			SubmissionID: id,
			Op:           "create",
			Err:          fmt.Errorf("%w: %w", ErrStoreUnavailable, err),
		})
	}

	// Committed: the caller giving up no longer changes the outcome.
	ctx = context.WithoutCancel(ctx)

	result := &IntakeResult{Outcome: OutcomeSuccess, Submission: submission}
	if warning != nil {
		result.Outcome = OutcomeSuccessWithWarning
		result.Warning = warning
		s.fireEvent(ctx, "media_dropped", func(sink EventSink) error {
			return sink.MediaDropped(ctx, submission, warning)
		})
	}
	s.fireEvent(ctx, "submission_published", func(sink EventSink) error {
		return sink.SubmissionPublished(ctx, submission)
	})
	return result, nil
}

func (s *service) reject(ctx context.Context, err error) (*IntakeResult, error) {
	s.fireEvent(ctx, "intake_rejected", func(sink EventSink) error {
		return sink.IntakeRejected(ctx, err)
	})
	return &IntakeResult{Outcome: OutcomeValidationFailed, Err: err}, err
}

func (s *service) fail(ctx context.Context, err error) (*IntakeResult, error) {
	s.logger.ErrorContext(ctx, "submission not stored", "error", err)
	ctx = context.WithoutCancel(ctx)
	s.fireEvent(ctx, "intake_failed", func(sink EventSink) error {
		return sink.IntakeFailed(ctx, err)
	})
	return &IntakeResult{Outcome: OutcomeFatal, Err: err}, err
}

// discardMedia removes a payload whose submission was never committed.
func (s *service) discardMedia(ctx context.Context, asset *MediaAsset) {
	if asset == nil {
		return
	}
	if err := s.media.Discard(context.WithoutCancel(ctx), asset); err != nil {
		s.logger.WarnContext(ctx, "failed to discard orphaned media", "ref", asset.Ref, "error", err)
	}
}

func (s *service) fireEvent(ctx context.Context, event string, fn func(EventSink) error) {
	for _, sink := range s.eventSinks {
		if err := fn(sink); err != nil {
			s.logger.WarnContext(ctx, "event sink failed", "event", event, "error", err)
		}
	}
}

// nextCreatedAt returns a timestamp no earlier than any previously issued by
// this service, at the microsecond resolution every repository can store.
func (s *service) nextCreatedAt() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	now := s.now().UTC().Truncate(time.Microsecond)
	if now.Before(s.lastCreatedAt) {
		now = s.lastCreatedAt
	}
	s.lastCreatedAt = now
	return now
}

// Read operations

func (s *service) GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error) {
	submission, err := s.repository.GetSubmission(ctx, id)
	if err != nil {
		return nil, &SubmissionError{SubmissionID: id, Op: "get", Err: err}
	}
	return submission, nil
}

func (s *service) GetMedia(ctx context.Context, ref string) (*MediaAsset, io.ReadCloser, error) {
	asset, err := s.repository.GetMediaAsset(ctx, ref)
	if err != nil {
		return nil, nil, &MediaError{Ref: ref, Op: "get", Err: err}
	}
	store, ok := s.blobStores[asset.StorageBackend]
	if !ok {
		return nil, nil, &MediaError{Ref: ref, Op: "get", Err: fmt.Errorf("%w: unknown storage backend %q", ErrMediaNotFound, asset.StorageBackend)}
	}
	reader, err := store.Download(ctx, asset.ObjectKey)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			err = fmt.Errorf("%w: %w", ErrMediaNotFound, err)
		}
		return nil, nil, &MediaError{Ref: ref, Op: "download", Err: err}
	}
	return asset, reader, nil
}
