// Package metrics provides Prometheus metrics for articlehub.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "articlehub"

var (
	// IngestTotal counts article submissions by outcome.
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Total number of article submissions",
		},
		[]string{"status"},
	)

	// IngestDuration measures a full submission: extraction, two blob writes and the row insert.
	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of article submissions in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// DeleteTotal counts cascading deletes by outcome.
	DeleteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delete_total",
			Help:      "Total number of article deletions",
		},
		[]string{"status"},
	)

	// CleanupFailures counts best-effort blob removals that failed and were left to the sweeper.
	CleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Total number of failed compensating blob deletions",
		},
	)

	// ViewUpdates counts view-counter writes by mode (set, cas, increment).
	ViewUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_updates_total",
			Help:      "Total number of view counter updates",
		},
		[]string{"mode"},
	)

	// SweptBlobs counts orphaned blobs removed by the sweeper.
	SweptBlobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_blobs_total",
			Help:      "Total number of orphaned blobs deleted",
		},
		[]string{"namespace"},
	)

	// EventsPublished counts lifecycle events by type and status.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of article events published",
		},
		[]string{"type", "status"},
	)

	// LoginAttempts counts logins by outcome (created, ok, denied, limited).
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Total number of login attempts",
		},
		[]string{"outcome"},
	)

	// HTTPRequests counts handled requests.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	// HTTPDuration measures request latency.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordIngest records one submission.
func RecordIngest(err error, started time.Time) {
	IngestTotal.WithLabelValues(status(err)).Inc()
	IngestDuration.Observe(time.Since(started).Seconds())
}

// RecordDelete records one cascading delete.
func RecordDelete(err error) {
	DeleteTotal.WithLabelValues(status(err)).Inc()
}

// RecordHTTP records one handled request.
func RecordHTTP(method, route string, code int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
