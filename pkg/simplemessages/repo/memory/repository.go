package memory

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/tendant/simple-messages/pkg/simplemessages"
)

// Repository implements simplemessages.Repository using in-memory storage
type Repository struct {
	mu          sync.RWMutex
	submissions map[uuid.UUID]*simplemessages.Submission
	media       map[string]*simplemessages.MediaAsset
	// feed holds published submissions in feed order, newest first
	feed      []*simplemessages.Submission
	batchSize int
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		submissions: make(map[uuid.UUID]*simplemessages.Submission),
		media:       make(map[string]*simplemessages.MediaAsset),
		batchSize:   simplemessages.DefaultListBatchSize,
	}
}

func copySubmission(s *simplemessages.Submission) *simplemessages.Submission {
	c := *s
	if s.MediaRef != nil {
		ref := *s.MediaRef
		c.MediaRef = &ref
	}
	if s.Media != nil {
		m := *s.Media
		c.Media = &m
	}
	return &c
}

func (r *Repository) CreateSubmission(ctx context.Context, submission *simplemessages.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if submission.HasMedia() && (submission.Media == nil || submission.Media.Ref != *submission.MediaRef) {
		return fmt.Errorf("media record for ref %s is missing", *submission.MediaRef)
	}

	// Create a copy to avoid external modifications
	stored := copySubmission(submission)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.submissions[stored.ID]; exists {
		return fmt.Errorf("submission %s already exists", stored.ID)
	}
	if stored.Media != nil {
		if _, exists := r.media[stored.Media.Ref]; exists {
			return fmt.Errorf("media %s already exists", stored.Media.Ref)
		}
		r.media[stored.Media.Ref] = stored.Media
	}
	r.submissions[stored.ID] = stored

	if stored.Status == simplemessages.SubmissionStatusPublished {
		c := simplemessages.CursorOf(stored)
		i, _ := slices.BinarySearchFunc(r.feed, c, func(s *simplemessages.Submission, target simplemessages.Cursor) int {
			return compareFeed(simplemessages.CursorOf(s), target)
		})
		r.feed = slices.Insert(r.feed, i, stored)
	}
	return nil
}

func (r *Repository) GetSubmission(ctx context.Context, id uuid.UUID) (*simplemessages.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	submission, exists := r.submissions[id]
	if !exists {
		return nil, simplemessages.ErrSubmissionNotFound
	}
	// Return a copy to prevent external modifications
	return copySubmission(submission), nil
}

func (r *Repository) GetMediaAsset(ctx context.Context, ref string) (*simplemessages.MediaAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, exists := r.media[ref]
	if !exists {
		return nil, simplemessages.ErrMediaNotFound
	}
	assetCopy := *asset
	return &assetCopy, nil
}

func (r *Repository) ListPublished(ctx context.Context, params simplemessages.ListPublishedParams) iter.Seq2[*simplemessages.Submission, error] {
	return simplemessages.ListInBatches(ctx, params, r.batchSize, r.listPage)
}

func (r *Repository) listPage(ctx context.Context, after *simplemessages.Cursor, limit int) ([]*simplemessages.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	start := 0
	if after != nil {
		// first entry strictly after the cursor
		start, _ = slices.BinarySearchFunc(r.feed, *after, func(s *simplemessages.Submission, target simplemessages.Cursor) int {
			if compareFeed(simplemessages.CursorOf(s), target) <= 0 {
				return -1
			}
			return 1
		})
	}
	end := min(start+limit, len(r.feed))

	page := make([]*simplemessages.Submission, 0, end-start)
	for _, s := range r.feed[start:end] {
		page = append(page, copySubmission(s))
	}
	return page, nil
}

// compareFeed orders cursors newest first: negative when a comes before b.
func compareFeed(a, b simplemessages.Cursor) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	}
	return 0
}
