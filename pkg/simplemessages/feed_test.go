package simplemessages_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-messages/pkg/simplemessages"
)

func TestCursorRoundTrip(t *testing.T) {
	c := simplemessages.Cursor{
		CreatedAt: time.Date(2025, 3, 14, 15, 9, 26, 535897000, time.UTC),
		ID:        uuid.MustParse("0190f1f2-7c3a-7d4e-8f00-123456789abc"),
	}

	token := simplemessages.EncodeCursor(c)
	assert.NotContains(t, token, "=")

	decoded, err := simplemessages.DecodeCursor(token)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, c.ID, decoded.ID)
}

func TestDecodeCursor(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name    string
		token   string
		wantNil bool
		wantErr bool
	}{
		{name: "empty token starts at the top", token: "", wantNil: true},
		{name: "not base64", token: "***", wantErr: true},
		{name: "no separator", token: enc("12345"), wantErr: true},
		{name: "bad timestamp", token: enc("abc:0190f1f2-7c3a-7d4e-8f00-123456789abc"), wantErr: true},
		{name: "bad id", token: enc("12345:not-a-uuid"), wantErr: true},
		{name: "valid", token: enc("12345:0190f1f2-7c3a-7d4e-8f00-123456789abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := simplemessages.DecodeCursor(tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, simplemessages.ErrInvalidCursor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNil, c == nil)
		})
	}
}

func TestCursorBefore(t *testing.T) {
	older := simplemessages.Cursor{CreatedAt: t0, ID: uuid.MustParse("ffffffff-ffff-7fff-bfff-ffffffffffff")}
	newer := simplemessages.Cursor{CreatedAt: t0.Add(time.Millisecond), ID: uuid.MustParse("00000000-0000-7000-8000-000000000000")}
	tieLow := simplemessages.Cursor{CreatedAt: t0, ID: uuid.MustParse("00000000-0000-7000-8000-000000000001")}

	assert.True(t, newer.Before(older))
	assert.False(t, older.Before(newer))
	assert.True(t, older.Before(tieLow), "equal timestamps order by id descending")
	assert.False(t, tieLow.Before(older))
	assert.False(t, older.Before(older))
}

// pagedSource serves submissions from a sorted slice and counts fetches.
type pagedSource struct {
	items []*simplemessages.Submission
	calls int
	err   error
}

func (p *pagedSource) fetch(ctx context.Context, after *simplemessages.Cursor, limit int) ([]*simplemessages.Submission, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	var out []*simplemessages.Submission
	for _, s := range p.items {
		if after != nil && !after.Before(simplemessages.CursorOf(s)) {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func newPagedSource(n int) *pagedSource {
	p := &pagedSource{}
	for i := 0; i < n; i++ {
		p.items = append(p.items, &simplemessages.Submission{
			ID:        uuid.New(),
			CreatedAt: t0.Add(-time.Duration(i) * time.Second),
			Status:    simplemessages.SubmissionStatusPublished,
		})
	}
	return p
}

func TestListInBatches(t *testing.T) {
	ctx := context.Background()

	t.Run("lazy until ranged", func(t *testing.T) {
		src := newPagedSource(5)
		seq := simplemessages.ListInBatches(ctx, simplemessages.ListPublishedParams{}, 2, src.fetch)
		assert.Equal(t, 0, src.calls)

		var got []uuid.UUID
		for s, err := range seq {
			require.NoError(t, err)
			got = append(got, s.ID)
		}
		require.Len(t, got, 5)
		for i, s := range src.items {
			assert.Equal(t, s.ID, got[i])
		}
		assert.Equal(t, 3, src.calls)
	})

	t.Run("limit bounds the listing", func(t *testing.T) {
		src := newPagedSource(10)
		count := 0
		for _, err := range simplemessages.ListInBatches(ctx, simplemessages.ListPublishedParams{Limit: 3}, 2, src.fetch) {
			require.NoError(t, err)
			count++
		}
		assert.Equal(t, 3, count)
		assert.Equal(t, 2, src.calls)
	})

	t.Run("after skips newer entries", func(t *testing.T) {
		src := newPagedSource(4)
		after := simplemessages.CursorOf(src.items[1])
		var got []uuid.UUID
		for s, err := range simplemessages.ListInBatches(ctx, simplemessages.ListPublishedParams{After: &after}, 0, src.fetch) {
			require.NoError(t, err)
			got = append(got, s.ID)
		}
		assert.Equal(t, []uuid.UUID{src.items[2].ID, src.items[3].ID}, got)
	})

	t.Run("restartable", func(t *testing.T) {
		src := newPagedSource(3)
		seq := simplemessages.ListInBatches(ctx, simplemessages.ListPublishedParams{}, 10, src.fetch)
		for range 2 {
			count := 0
			for _, err := range seq {
				require.NoError(t, err)
				count++
			}
			assert.Equal(t, 3, count)
		}
	})

	t.Run("fetch error is yielded once", func(t *testing.T) {
		src := newPagedSource(3)
		src.err = errors.New("boom")
		var errs []error
		for s, err := range simplemessages.ListInBatches(ctx, simplemessages.ListPublishedParams{}, 10, src.fetch) {
			assert.Nil(t, s)
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		assert.EqualError(t, errs[0], "boom")
	})
}
