package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts bridge submissions by result (created, duplicate, rejected, error)
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_submissions_total",
			Help: "Total number of submitted Cardano transactions",
		},
		[]string{"result"},
	)

	// PayoutsTotal counts per record dispatcher outcomes
	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_payouts_total",
			Help: "Total number of payout outcomes by status",
		},
		[]string{"status"},
	)

	// PayoutAmount tracks the amount of destination units paid out
	PayoutAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_payout_amount",
			Help:    "Destination token units paid out per record",
			Buckets: prometheus.ExponentialBuckets(1_000, 10, 10),
		},
	)

	// PassesTotal counts dispatcher passes by result (ok, busy, error)
	PassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_payout_passes_total",
			Help: "Total number of dispatcher passes",
		},
		[]string{"result"},
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_payout_pass_duration_seconds",
			Help:    "Dispatcher pass duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// PendingRecords is the number of payable records seen by the last pass
	PendingRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_pending_records",
			Help: "Number of not completed records seen by the last dispatcher pass",
		},
	)

	// UpstreamRequests counts calls to indexer and price sources
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_upstream_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"upstream", "result"},
	)

	// EventsPublished counts bridge events sent to the message broker
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_published_total",
			Help: "Total number of published bridge events",
		},
		[]string{"routing_key", "result"},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
