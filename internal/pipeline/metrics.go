package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished runs.
	// Labels: state (completed, planning_error, resource_error, unknown_task_error, execution_error)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by terminal state",
		},
		[]string{"state"},
	)

	// StageDuration tracks how long one stage takes, staging included.
	// Labels: task, result (success, failure)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"task", "result"},
	)

	// ActiveRuns is the number of runs in flight.
	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "pipeline",
			Name:      "active_runs",
			Help:      "Number of pipeline runs currently executing",
		},
	)
)
