package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-messages/pkg/simplemessages"
	"github.com/tendant/simple-messages/pkg/simplemessages/repo/memory"
	"github.com/tendant/simple-messages/pkg/simplemessages/repo/repotest"
)

func TestRepositoryContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simplemessages.Repository {
		return memory.New()
	})
}

func TestRepository_ReturnsCopies(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	submission := &simplemessages.Submission{
		ID:           uuid.New(),
		DisplayName:  "Ada",
		ContactEmail: "ada@example.com",
		MessageBody:  "hello",
		Status:       simplemessages.SubmissionStatusPublished,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.CreateSubmission(ctx, submission))

	// Mutating the caller's value does not change the stored record.
	submission.DisplayName = "changed"

	got, err := repo.GetSubmission(ctx, submission.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.DisplayName)

	got.MessageBody = "changed too"
	again, err := repo.GetSubmission(ctx, submission.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", again.MessageBody)
}

func TestRepository_ConcurrentCreateAndList(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			err := repo.CreateSubmission(ctx, &simplemessages.Submission{
				ID:           uuid.New(),
				DisplayName:  fmt.Sprintf("user %d", i),
				ContactEmail: "user@example.com",
				MessageBody:  "concurrent",
				Status:       simplemessages.SubmissionStatusPublished,
				CreatedAt:    base.Add(time.Duration(i) * time.Millisecond),
			})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			var prev *simplemessages.Submission
			for s, err := range repo.ListPublished(ctx, simplemessages.ListPublishedParams{}) {
				if !assert.NoError(t, err) {
					return
				}
				// Every observed record is complete.
				assert.NotEmpty(t, s.DisplayName)
				if prev != nil {
					assert.True(t, simplemessages.CursorOf(prev).Before(simplemessages.CursorOf(s)))
				}
				prev = s
			}
		}()
	}
	wg.Wait()

	count := 0
	for _, err := range repo.ListPublished(ctx, simplemessages.ListPublishedParams{}) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 50, count)
}
