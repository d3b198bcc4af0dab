// Package metrics provides Prometheus metrics for the fern resolution engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal tracks match decisions by entity type and status
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolver",
			Name:      "decisions_total",
			Help:      "Total number of match decisions by entity type and status",
		},
		[]string{"entity_type", "status"},
	)

	// RecordDuration tracks how long one source record takes to resolve
	RecordDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "engine",
			Name:      "record_duration_seconds",
			Help:      "Duration of a single record resolution in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"entity_type"},
	)

	// RecordFailuresTotal tracks records aborted by a remote failure
	RecordFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "engine",
			Name:      "record_failures_total",
			Help:      "Total number of records aborted by an unrecoverable error",
		},
		[]string{"entity_type"},
	)

	// RemoteRequestsTotal tracks outbound candidate service requests
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Total number of outbound candidate service requests",
		},
		[]string{"service", "status_code"},
	)

	// RemoteRequestDuration tracks outbound candidate service request duration
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound candidate service requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service"},
	)

	// RemoteRetriesTotal tracks retried attempts per service
	RemoteRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "remote",
			Name:      "retries_total",
			Help:      "Total number of retried candidate service attempts",
		},
		[]string{"service"},
	)

	// RemoteBudgetExhaustedTotal tracks calls that ran out of retry budget
	RemoteBudgetExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "remote",
			Name:      "budget_exhausted_total",
			Help:      "Total number of candidate service calls that exhausted their retry budget",
		},
		[]string{"service"},
	)

	// CacheLookupsTotal tracks candidate cache hits and misses
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of candidate cache lookups by result",
		},
		[]string{"backend", "result"},
	)

	// LinkerPairsScored tracks pairs scored by the probabilistic linker
	LinkerPairsScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "linker",
			Name:      "pairs_scored_total",
			Help:      "Total number of record pairs scored by the probabilistic linker",
		},
	)

	// LinkerThreshold exposes the calibrated linker threshold of the last run
	LinkerThreshold = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "linker",
			Name:      "threshold",
			Help:      "Decision threshold chosen by the last linker calibration",
		},
	)

	// SinkWritesTotal tracks decisions written per sink
	SinkWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sink",
			Name:      "writes_total",
			Help:      "Total number of decisions written per sink and outcome",
		},
		[]string{"sink", "outcome"},
	)
)
