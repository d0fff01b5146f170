package metrics_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-messages/pkg/simplemessages"
	"github.com/tendant/simple-messages/pkg/simplemessages/metrics"
	"github.com/tendant/simple-messages/pkg/simplemessages/repo/memory"
	memorystorage "github.com/tendant/simple-messages/pkg/simplemessages/storage/memory"
)

func TestEventSink_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := metrics.NewEventSink(reg)

	svc, err := simplemessages.New(
		simplemessages.WithRepository(memory.New()),
		simplemessages.WithBlobStore("memory", memorystorage.New()),
		simplemessages.WithEventSink(sink),
	)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Submit(ctx, simplemessages.SubmitRequest{
		DisplayName:  "Ada",
		ContactEmail: "ada@example.com",
		MessageBody:  "hello",
	})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, simplemessages.SubmitRequest{
		DisplayName:  "Ada",
		ContactEmail: "nope",
		MessageBody:  "hello",
	})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.SubmissionsTotal.WithLabelValues("false")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.SubmissionsTotal.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.RejectedTotal.WithLabelValues("invalid_email")))
}

func TestEventSink_Reasons(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := metrics.NewEventSink(reg)
	ctx := context.Background()

	tests := []struct {
		err    error
		reason string
	}{
		{&simplemessages.ValidationError{Field: simplemessages.FieldDisplayName, Err: simplemessages.ErrMissingField}, "missing_field"},
		{&simplemessages.ValidationError{Field: simplemessages.FieldMessageBody, Err: simplemessages.ErrFieldTooLong}, "field_too_long"},
		{&simplemessages.ValidationError{Field: simplemessages.FieldMedia, Err: simplemessages.ErrUnsupportedMediaType}, "unsupported_media_type"},
		{&simplemessages.ValidationError{Field: simplemessages.FieldMedia, Err: simplemessages.ErrMediaTooLarge}, "media_too_large"},
		{errors.New("odd"), "other"},
	}
	for _, tt := range tests {
		require.NoError(t, sink.IntakeRejected(ctx, tt.err))
		assert.Equal(t, 1.0, testutil.ToFloat64(sink.RejectedTotal.WithLabelValues(tt.reason)), tt.reason)
	}

	require.NoError(t, sink.IntakeFailed(ctx, fmt.Errorf("%w: boom", simplemessages.ErrStoreUnavailable)))
	require.NoError(t, sink.IntakeFailed(ctx, &simplemessages.SubmissionError{Op: "submit", Err: context.Canceled}))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.FailedTotal.WithLabelValues("store_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.FailedTotal.WithLabelValues("canceled")))

	ref := "med_01j9z3kq4d8x7v2m5n6p0r1sab"
	sub := &simplemessages.Submission{
		MediaRef: &ref,
		Media:    &simplemessages.MediaAsset{Ref: ref, MimeType: "image/png", SizeBytes: 2048},
	}
	require.NoError(t, sink.SubmissionPublished(ctx, sub))
	require.NoError(t, sink.MediaDropped(ctx, sub, errors.New("s3 down")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.SubmissionsTotal.WithLabelValues("true")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(sink.MediaBytesTotal.WithLabelValues("image/png")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.MediaDroppedTotal))
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)

	m.RecordRequest("GET", "/feed", "200", 20*time.Millisecond)
	m.RecordRequest("GET", "/feed", "200", 30*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/feed", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.NewEventSink(prometheus.NewRegistry())
		metrics.NewEventSink(prometheus.NewRegistry())
	})
}
