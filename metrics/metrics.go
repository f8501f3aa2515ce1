package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	EventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_analytics_events_recorded_total",
			Help: "Analytics events by type and outcome (recorded, duplicate, invalid, unavailable)",
		},
		[]string{"event_type", "outcome"},
	)

	DedupGuardErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_analytics_dedup_guard_errors_total",
			Help: "Dedup guard failures that fell through to the durable uniqueness check",
		},
	)

	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_analytics_side_effect_failures_total",
			Help: "Best-effort mirror and stream writes that failed after a successful record",
		},
		[]string{"sink"},
	)

	// Purge
	PurgeDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_analytics_purge_deleted_total",
			Help: "Records removed by bulk purge",
		},
		[]string{"kind"}, // "sessions", "events"
	)

	PurgeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_analytics_purge_duration_seconds",
			Help:    "Wall time of bulk purge runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Image relay
	ImageRelayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_image_relay_requests_total",
			Help: "Image relay fetches by outcome (ok, rejected, error, status)",
		},
		[]string{"outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// HTTP
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func RecordEvent(eventType, outcome string) {
	EventsRecorded.WithLabelValues(eventType, outcome).Inc()
}

func RecordPurge(sessions, events int, took time.Duration) {
	PurgeDeleted.WithLabelValues("sessions").Add(float64(sessions))
	PurgeDeleted.WithLabelValues("events").Add(float64(events))
	PurgeDuration.Observe(took.Seconds())
}

func RecordAPIRequest(method, route, status string, took time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, status).Observe(took.Seconds())
}
