package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsReceived tracks valid packets decoded from stream-all replies
	RecordsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "packetfeed_records_received_total",
			Help: "Total number of packets received from the full stream",
		},
	)

	// InvalidChunks tracks 17-byte chunks that failed validation
	InvalidChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "packetfeed_invalid_chunks_total",
			Help: "Total number of packets discarded at decode",
		},
	)

	// ResendsTotal tracks resend requests by outcome (recovered, unavailable, failed)
	ResendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetfeed_resends_total",
			Help: "Total number of resend requests",
		},
		[]string{"outcome"},
	)

	// RetryAttempts tracks failed attempts inside the retry policy
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetfeed_retry_attempts_total",
			Help: "Total number of failed attempts that were retried or exhausted",
		},
		[]string{"operation", "result"},
	)

	// SessionLatency tracks a full request round trip
	SessionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "packetfeed_session_latency_seconds",
			Help:    "Session round trip latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"request"},
	)

	// SessionErrors tracks transient connection failures
	SessionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetfeed_session_errors_total",
			Help: "Total number of transient connection failures",
		},
		[]string{"request", "stage"},
	)

	// MissingSequences tracks the gap count of the last run
	MissingSequences = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "packetfeed_missing_sequences",
			Help: "Sequences still missing after the last run",
		},
	)
)
