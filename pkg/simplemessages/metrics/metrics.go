// Package metrics exposes intake and feed counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tendant/simple-messages/pkg/simplemessages"
)

const (
	namespace = "simple_messages"
	subsystem = "intake"
)

// EventSink counts intake outcomes. It implements simplemessages.EventSink.
type EventSink struct {
	SubmissionsTotal  *prometheus.CounterVec
	MediaDroppedTotal prometheus.Counter
	RejectedTotal     *prometheus.CounterVec
	FailedTotal       *prometheus.CounterVec
	MediaBytesTotal   *prometheus.CounterVec
}

var _ simplemessages.EventSink = (*EventSink)(nil)

// NewEventSink registers the intake counters with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewEventSink(reg prometheus.Registerer) *EventSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &EventSink{
		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "submissions_total",
				Help:      "Total submissions stored and published",
			},
			[]string{"media"},
		),
		MediaDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "media_dropped_total",
				Help:      "Submissions stored without their upload because media storage failed",
			},
		),
		RejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rejected_total",
				Help:      "Submissions rejected by validation",
			},
			[]string{"reason"},
		),
		FailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "failed_total",
				Help:      "Submissions not stored because of an internal failure",
			},
			[]string{"reason"},
		),
		MediaBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "media_bytes_total",
				Help:      "Total bytes of stored media",
			},
			[]string{"mime_type"},
		),
	}
}

func (m *EventSink) SubmissionPublished(ctx context.Context, submission *simplemessages.Submission) error {
	if submission.HasMedia() {
		m.SubmissionsTotal.WithLabelValues("true").Inc()
		if submission.Media != nil {
			m.MediaBytesTotal.WithLabelValues(submission.Media.MimeType).Add(float64(submission.Media.SizeBytes))
		}
		return nil
	}
	m.SubmissionsTotal.WithLabelValues("false").Inc()
	return nil
}

func (m *EventSink) MediaDropped(ctx context.Context, submission *simplemessages.Submission, reason error) error {
	m.MediaDroppedTotal.Inc()
	return nil
}

func (m *EventSink) IntakeRejected(ctx context.Context, err error) error {
	m.RejectedTotal.WithLabelValues(rejectReason(err)).Inc()
	return nil
}

func (m *EventSink) IntakeFailed(ctx context.Context, err error) error {
	m.FailedTotal.WithLabelValues(failReason(err)).Inc()
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, simplemessages.ErrMissingField):
		return "missing_field"
	case errors.Is(err, simplemessages.ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, simplemessages.ErrFieldTooLong):
		return "field_too_long"
	case errors.Is(err, simplemessages.ErrUnsupportedMediaType):
		return "unsupported_media_type"
	case errors.Is(err, simplemessages.ErrMediaTooLarge):
		return "media_too_large"
	default:
		return "other"
	}
}

func failReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, simplemessages.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "other"
	}
}

// HTTPMetrics records request counts and latencies for the HTTP adapter.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &HTTPMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
	}
}

// RecordRequest records one HTTP request
func (h *HTTPMetrics) RecordRequest(method, route, status string, elapsed time.Duration) {
	h.RequestsTotal.WithLabelValues(method, route, status).Inc()
	h.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
