package mediaref_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-messages/pkg/simplemessages/mediaref"
)

func TestGenerator_New(t *testing.T) {
	gen := mediaref.NewGenerator()

	ref, err := gen.New()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, mediaref.Prefix))
	assert.Len(t, ref, len(mediaref.Prefix)+26)
	assert.Equal(t, strings.ToLower(ref), ref)
	assert.True(t, mediaref.IsValid(ref))

	created, err := mediaref.Time(ref)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, time.Minute)
}

func TestGenerator_UniqueAndOrdered(t *testing.T) {
	gen := mediaref.NewGenerator()

	prev := ""
	for i := 0; i < 1000; i++ {
		ref, err := gen.New()
		require.NoError(t, err)
		assert.Greater(t, ref, prev)
		prev = ref
	}
}

func TestGenerator_Concurrent(t *testing.T) {
	gen := mediaref.NewGenerator()

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ref, err := gen.New()
				assert.NoError(t, err)
				mu.Lock()
				seen[ref] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"med_01arz3ndektsv4rrffq69g5fav", true},
		{"med_01ARZ3NDEKTSV4RRFFQ69G5FAV", true},
		{"01arz3ndektsv4rrffq69g5fav", false},
		{"med_", false},
		{"med_not-a-ulid", false},
		{"img_01arz3ndektsv4rrffq69g5fav", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.valid, mediaref.IsValid(tt.value))
		})
	}
}
