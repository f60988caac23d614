package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler task runs partitioned by task and outcome
	taskRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_task_runs_total",
			Help: "Total number of scheduler task runs",
		},
		[]string{"task", "outcome"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_task_duration_seconds",
			Help:    "Scheduler task run latencies in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"task"},
	)

	// Pickup reminders partitioned by outcome (sent, failed, skipped)
	smsRemindersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_reminders_total",
			Help: "Total number of pickup reminder attempts",
		},
		[]string{"status"},
	)

	smsStaleRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sms_stale_recovered_total",
			Help: "Total number of stale sending SMS records resolved to failed",
		},
	)

	// Households removed by the automatic batch, partitioned by method
	householdsAnonymizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "households_anonymized_total",
			Help: "Total number of households removed by automatic anonymization",
		},
		[]string{"method"},
	)

	schedulerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_running",
			Help: "1 when the scheduler is running",
		},
	)
)
