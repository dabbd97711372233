package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_agent_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "resale_agent_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	StageRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_agent_stage_runs_total",
			Help: "Pipeline stage executions by outcome",
		},
		[]string{"workflow", "stage", "status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resale_agent_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 90},
		},
		[]string{"workflow", "stage"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_agent_pipeline_runs_total",
			Help: "Completed and failed pipeline runs",
		},
		[]string{"workflow", "result"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_agent_cache_lookups_total",
			Help: "Memo cache lookups by result",
		},
		[]string{"workflow", "result"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resale_agent_active_sessions",
			Help: "Number of active sessions",
		},
	)
)
