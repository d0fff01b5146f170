package simplemessages

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EncodeCursor returns the opaque page token for a feed position.
func EncodeCursor(c Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token
// decodes to nil, meaning the start of the feed.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	nanos, idPart, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// Feed operations

func (s *service) GetFeed(ctx context.Context, req GetFeedRequest) (*FeedPage, error) {
	after, err := DecodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	limit := req.limit()

	page := &FeedPage{Entries: make([]FeedEntry, 0, limit)}
	// One extra row tells whether another page exists.
	params := ListPublishedParams{Limit: limit + 1, After: after}
	for submission, err := range s.repository.ListPublished(ctx, params) {
		if err != nil {
			return nil, fmt.Errorf("list published submissions: %w", err)
		}
		if len(page.Entries) == limit {
			last := page.Entries[len(page.Entries)-1].Submission
			page.NextCursor = EncodeCursor(CursorOf(last))
			break
		}
		page.Entries = append(page.Entries, s.render(ctx, submission))
	}
	return page, nil
}

func (s *service) StreamFeed(ctx context.Context, req GetFeedRequest) iter.Seq2[FeedEntry, error] {
	return func(yield func(FeedEntry, error) bool) {
		after, err := DecodeCursor(req.Cursor)
		if err != nil {
			yield(FeedEntry{}, err)
			return
		}
		params := ListPublishedParams{Limit: req.Limit, After: after}
		for submission, err := range s.repository.ListPublished(ctx, params) {
			if err != nil {
				yield(FeedEntry{}, fmt.Errorf("list published submissions: %w", err))
				return
			}
			if !yield(s.render(ctx, submission), nil) {
				return
			}
		}
	}
}

// render pairs a submission with its media URL. Any resolution failure
// yields the placeholder so one broken asset cannot fail the listing.
func (s *service) render(ctx context.Context, submission *Submission) FeedEntry {
	entry := FeedEntry{Submission: submission}
	if submission.HasMedia() {
		url, err := s.resolveMediaURL(ctx, submission)
		if err == nil {
			entry.MediaURL = url
			return entry
		}
		s.logger.WarnContext(ctx, "media unresolved, using placeholder",
			"submission_id", submission.ID,
			"ref", *submission.MediaRef,
			"error", err)
	}
	entry.MediaURL = s.placeholderURL
	entry.Placeholder = true
	return entry
}

func (s *service) resolveMediaURL(ctx context.Context, submission *Submission) (string, error) {
	ref := *submission.MediaRef
	asset := submission.Media
	if asset == nil || asset.Ref != ref {
		var err error
		asset, err = s.repository.GetMediaAsset(ctx, ref)
		if err != nil {
			return "", &MediaError{Ref: ref, Op: "resolve", Err: err}
		}
	}

	store, ok := s.blobStores[asset.StorageBackend]
	if !ok {
		return "", &MediaError{Ref: ref, Op: "resolve", Err: fmt.Errorf("%w: unknown storage backend %q", ErrMediaNotFound, asset.StorageBackend)}
	}
	if _, err := store.GetObjectMeta(ctx, asset.ObjectKey); err != nil {
		return "", &StorageError{Backend: asset.StorageBackend, Key: asset.ObjectKey, Op: "stat", Err: err}
	}

	url, err := s.urlStrategy.GenerateMediaURL(ctx, asset.Ref, asset.ObjectKey, asset.StorageBackend)
	if err != nil {
		return "", &MediaError{Ref: ref, Op: "generate_url", Err: err}
	}
	if url == "" {
		return "", &MediaError{Ref: ref, Op: "generate_url", Err: ErrMediaNotFound}
	}
	return url, nil
}
