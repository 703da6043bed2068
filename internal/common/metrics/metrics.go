// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_runs_started_total",
			Help: "Total number of orchestration runs started",
		},
	)

	SearchesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_runs_completed_total",
			Help: "Total number of orchestration runs completed",
		},
		[]string{"outcome"}, // completed, degraded, failed
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "search_run_duration_seconds",
			Help: "Duration of a full orchestration run in seconds",
		},
	)

	SourceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetches_total",
			Help: "Total number of source adapter fetches by outcome",
		},
		[]string{"source", "status"}, // ok, timeout, error
	)

	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "source_fetch_duration_seconds",
			Help: "Duration of a single source fetch in seconds",
		},
		[]string{"source"},
	)

	GateDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_denials_total",
			Help: "Requests denied before dispatch, by gate and action",
		},
		[]string{"gate", "action"}, // gate: rate_limit, quota
	)

	AIAnalyses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchant_analyses_total",
			Help: "Merchant AI analysis attempts by outcome",
		},
		[]string{"status"}, // ok, timeout, error
	)
)
