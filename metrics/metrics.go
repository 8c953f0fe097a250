package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_alerts_generated_total",
			Help: "Total number of security alerts generated",
		},
		[]string{"type", "severity"},
	)

	RollbacksInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_rollbacks_initiated_total",
			Help: "Total number of rollback requests created",
		},
	)

	RollbacksExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_rollbacks_executed_total",
			Help: "Total number of rollback executions by outcome",
		},
		[]string{"outcome"},
	)

	RollbacksRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_rollbacks_rejected_total",
			Help: "Total number of rollback requests rejected by approvers",
		},
	)

	AuditEntriesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_audit_entries_appended_total",
			Help: "Total number of audit log entries appended",
		},
		[]string{"action_type"},
	)

	CounterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_counter_errors_total",
			Help: "Total number of detector counter backend errors",
		},
		[]string{"operation"},
	)

	RollbackExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_rollback_execution_duration_seconds",
			Help:    "Time taken to execute a rollback end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	IntegrityChecksRun = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_integrity_checks_run_total",
			Help: "Total number of individual integrity checks executed",
		},
	)
)
