package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_store_refreshes_total",
			Help: "Total number of Domain Store full refreshes by outcome",
		},
		[]string{"outcome"},
	)

	StoreRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workspace_store_refresh_duration_seconds",
			Help:    "Duration of Domain Store full refreshes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_store_fetch_failures_total",
			Help: "Collection fetches that degraded to an empty collection",
		},
		[]string{"collection"},
	)

	StoreReconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_store_reconciliations_total",
			Help: "Version-stamped upserts applied to or skipped by the Domain Store",
		},
		[]string{"collection", "result"},
	)

	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_mutations_total",
			Help: "Mutation façade operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	OptimisticRollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_optimistic_rollbacks_total",
			Help: "Optimistic local patches rolled back after a failed remote write",
		},
		[]string{"operation"},
	)

	ApplicationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_application_transitions_total",
			Help: "Application workflow transitions by target status and result",
		},
		[]string{"status", "result"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_messages_sent_total",
			Help: "Chat message sends by outcome",
		},
		[]string{"outcome"},
	)

	MessagePolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_message_polls_total",
			Help: "Chat poll ticks by result",
		},
		[]string{"result"},
	)

	ActiveWorkspaces = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workspace_active_workspaces",
			Help: "Number of collaboration workspaces with an active chat synchronizer",
		},
	)

	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_notification_deliveries_total",
			Help: "Out-of-band notification deliveries by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Outcome returns the outcome label for err.
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
