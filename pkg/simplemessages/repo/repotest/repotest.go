// Package repotest holds the behavioral tests every
// simplemessages.Repository implementation must pass.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-messages/pkg/simplemessages"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) simplemessages.Repository

var baseTime = time.Date(2025, 3, 14, 15, 9, 26, 535000, time.UTC)

// NewSubmission builds a published submission created at baseTime+offset.
func NewSubmission(offset time.Duration) *simplemessages.Submission {
	id, _ := uuid.NewV7()
	return &simplemessages.Submission{
		ID:           id,
		DisplayName:  "Grace Hopper",
		ContactEmail: "grace@example.com",
		MessageBody:  "It's easier to ask forgiveness\nthan it is to get permission.",
		Status:       simplemessages.SubmissionStatusPublished,
		CreatedAt:    baseTime.Add(offset),
	}
}

// WithMedia attaches a media record to s.
func WithMedia(s *simplemessages.Submission, ref string) *simplemessages.Submission {
	s.MediaRef = &ref
	s.Media = &simplemessages.MediaAsset{
		Ref:            ref,
		SubmissionID:   s.ID,
		StorageBackend: "memory",
		ObjectKey:      "media/objects/xx/" + ref + ".png",
		FileName:       "avatar.png",
		MimeType:       "image/png",
		SizeBytes:      3089,
		CreatedAt:      s.CreatedAt,
	}
	return s
}

// Collect drains a ListPublished sequence.
func Collect(t *testing.T, repo simplemessages.Repository, params simplemessages.ListPublishedParams) []*simplemessages.Submission {
	t.Helper()
	var out []*simplemessages.Submission
	for s, err := range repo.ListPublished(context.Background(), params) {
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func ids(submissions []*simplemessages.Submission) []uuid.UUID {
	out := make([]uuid.UUID, len(submissions))
	for i, s := range submissions {
		out[i] = s.ID
	}
	return out
}

// Run exercises the Repository contract against fresh repositories from newRepo.
func Run(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		want := NewSubmission(0)
		require.NoError(t, repo.CreateSubmission(ctx, want))

		got, err := repo.GetSubmission(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.DisplayName, got.DisplayName)
		assert.Equal(t, want.ContactEmail, got.ContactEmail)
		assert.Equal(t, want.MessageBody, got.MessageBody)
		assert.Equal(t, want.Status, got.Status)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", want.CreatedAt, got.CreatedAt)
		assert.Nil(t, got.MediaRef)
		assert.Nil(t, got.Media)
	})

	t.Run("CreateWithMedia", func(t *testing.T) {
		repo := newRepo(t)
		want := WithMedia(NewSubmission(0), "med_01hzy3d1c7a0000000000000ab")
		require.NoError(t, repo.CreateSubmission(ctx, want))

		got, err := repo.GetSubmission(ctx, want.ID)
		require.NoError(t, err)
		require.NotNil(t, got.MediaRef)
		assert.Equal(t, *want.MediaRef, *got.MediaRef)
		require.NotNil(t, got.Media)
		assert.Equal(t, want.Media.ObjectKey, got.Media.ObjectKey)

		asset, err := repo.GetMediaAsset(ctx, *want.MediaRef)
		require.NoError(t, err)
		assert.Equal(t, want.ID, asset.SubmissionID)
		assert.Equal(t, "memory", asset.StorageBackend)
		assert.Equal(t, "avatar.png", asset.FileName)
		assert.Equal(t, "image/png", asset.MimeType)
		assert.Equal(t, int64(3089), asset.SizeBytes)

		listed := Collect(t, repo, simplemessages.ListPublishedParams{})
		require.Len(t, listed, 1)
		require.NotNil(t, listed[0].Media)
		assert.Equal(t, want.Media.Ref, listed[0].Media.Ref)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetSubmission(ctx, uuid.New())
		assert.ErrorIs(t, err, simplemessages.ErrSubmissionNotFound)

		_, err = repo.GetMediaAsset(ctx, "med_missing")
		assert.ErrorIs(t, err, simplemessages.ErrMediaNotFound)
	})

	t.Run("FailedCreateLeavesNothing", func(t *testing.T) {
		repo := newRepo(t)
		ref := "med_01hzy3d1c7a0000000000000cd"
		first := WithMedia(NewSubmission(0), ref)
		require.NoError(t, repo.CreateSubmission(ctx, first))

		// Same media ref again: the whole create must fail.
		second := WithMedia(NewSubmission(time.Second), ref)
		require.Error(t, repo.CreateSubmission(ctx, second))

		_, err := repo.GetSubmission(ctx, second.ID)
		assert.ErrorIs(t, err, simplemessages.ErrSubmissionNotFound)
		assert.Equal(t, []uuid.UUID{first.ID}, ids(Collect(t, repo, simplemessages.ListPublishedParams{})))
	})

	t.Run("DuplicateID", func(t *testing.T) {
		repo := newRepo(t)
		s := NewSubmission(0)
		require.NoError(t, repo.CreateSubmission(ctx, s))
		dup := *s
		assert.Error(t, repo.CreateSubmission(ctx, &dup))
	})

	t.Run("OrderNewestFirst", func(t *testing.T) {
		repo := newRepo(t)
		older := NewSubmission(0)
		newest := NewSubmission(2 * time.Second)
		middle := NewSubmission(time.Second)
		for _, s := range []*simplemessages.Submission{older, newest, middle} {
			require.NoError(t, repo.CreateSubmission(ctx, s))
		}

		got := Collect(t, repo, simplemessages.ListPublishedParams{})
		assert.Equal(t, []uuid.UUID{newest.ID, middle.ID, older.ID}, ids(got))
	})

	t.Run("TiesBrokenByIDDescending", func(t *testing.T) {
		repo := newRepo(t)
		low := NewSubmission(0)
		high := NewSubmission(0)
		low.ID = uuid.MustParse("00000000-0000-7000-8000-000000000001")
		high.ID = uuid.MustParse("ffffffff-0000-7000-8000-000000000001")
		require.NoError(t, repo.CreateSubmission(ctx, low))
		require.NoError(t, repo.CreateSubmission(ctx, high))

		for i := 0; i < 3; i++ {
			got := Collect(t, repo, simplemessages.ListPublishedParams{})
			assert.Equal(t, []uuid.UUID{high.ID, low.ID}, ids(got))
		}
	})

	t.Run("LimitAndCursor", func(t *testing.T) {
		repo := newRepo(t)
		var all []*simplemessages.Submission
		for i := 0; i < 5; i++ {
			s := NewSubmission(time.Duration(i) * time.Second)
			require.NoError(t, repo.CreateSubmission(ctx, s))
			all = append([]*simplemessages.Submission{s}, all...)
		}

		first := Collect(t, repo, simplemessages.ListPublishedParams{Limit: 2})
		assert.Equal(t, ids(all[:2]), ids(first))

		after := simplemessages.CursorOf(first[len(first)-1])
		rest := Collect(t, repo, simplemessages.ListPublishedParams{After: &after})
		assert.Equal(t, ids(all[2:]), ids(rest))
	})

	t.Run("CursorAtTimestampTie", func(t *testing.T) {
		repo := newRepo(t)
		a := NewSubmission(0)
		b := NewSubmission(0)
		c := NewSubmission(-time.Second)
		a.ID = uuid.MustParse("aaaaaaaa-0000-7000-8000-000000000000")
		b.ID = uuid.MustParse("bbbbbbbb-0000-7000-8000-000000000000")
		for _, s := range []*simplemessages.Submission{a, b, c} {
			require.NoError(t, repo.CreateSubmission(ctx, s))
		}

		after := simplemessages.CursorOf(b)
		got := Collect(t, repo, simplemessages.ListPublishedParams{After: &after})
		assert.Equal(t, []uuid.UUID{a.ID, c.ID}, ids(got))
	})

	t.Run("RestartableAndLazy", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.CreateSubmission(ctx, NewSubmission(time.Duration(i)*time.Second)))
		}

		seq := repo.ListPublished(ctx, simplemessages.ListPublishedParams{})

		// Stop early.
		for _, err := range seq {
			require.NoError(t, err)
			break
		}

		// A record created after the sequence was built shows up on the next pass.
		latest := NewSubmission(time.Hour)
		require.NoError(t, repo.CreateSubmission(ctx, latest))

		var got []*simplemessages.Submission
		for s, err := range seq {
			require.NoError(t, err)
			got = append(got, s)
		}
		require.Len(t, got, 4)
		assert.Equal(t, latest.ID, got[0].ID)
	})

	t.Run("OnlyPublished", func(t *testing.T) {
		repo := newRepo(t)
		pending := NewSubmission(time.Second)
		pending.Status = simplemessages.SubmissionStatusPending
		published := NewSubmission(0)
		require.NoError(t, repo.CreateSubmission(ctx, pending))
		require.NoError(t, repo.CreateSubmission(ctx, published))

		got := Collect(t, repo, simplemessages.ListPublishedParams{})
		assert.Equal(t, []uuid.UUID{published.ID}, ids(got))

		// Still readable by id.
		_, err := repo.GetSubmission(ctx, pending.ID)
		assert.NoError(t, err)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		repo := newRepo(t)
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		s := NewSubmission(0)
		assert.Error(t, repo.CreateSubmission(canceled, s))

		_, err := repo.GetSubmission(ctx, s.ID)
		assert.ErrorIs(t, err, simplemessages.ErrSubmissionNotFound)
	})
}
