package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arenaengine_executions_total",
			Help: "Total number of code executions by verdict",
		},
		[]string{"language", "verdict"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arenaengine_execution_duration_ms",
			Help:    "Execution duration in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2000, 5000, 10000},
		},
		[]string{"language", "phase"}, // phase: "compile", "run", "total"
	)

	WorkspaceCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arenaengine_workspace_cleanup_failures_total",
			Help: "Workspaces that could not be fully removed",
		},
	)

	TestCasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arenaengine_testcases_total",
			Help: "Test cases evaluated by the runner",
		},
		[]string{"result"}, // "passed", "failed", "error"
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arenaengine_queue_depth",
			Help: "Current number of jobs in the queue",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arenaengine_active_workers",
			Help: "Number of workers currently processing jobs",
		},
	)

	QueueRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arenaengine_queue_rejections_total",
			Help: "Jobs rejected because the queue was full",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arenaengine_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)

	SandboxContainers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arenaengine_sandbox_containers",
			Help: "Sandbox containers currently tracked",
		},
	)
)
