// Package metrics provides Prometheus instrumentation for the sandbox
// orchestrator, exposed by internal/api's /metrics route.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// durationBuckets covers exec calls from near-instant commands up to the
// longest timeout the orchestrator will wait on (§5/§6.4's configured
// maximums sit well under 10 minutes).
var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

var (
	// SandboxesCreatedTotal counts CreateSandbox outcomes by final status
	// (ready or failed).
	SandboxesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_sandboxes_created_total",
			Help: "Total sandboxes created, by outcome",
		},
		[]string{"outcome"},
	)

	// SandboxesActive gauges sandboxes currently in a non-terminal state.
	SandboxesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_sandboxes_active",
			Help: "Sandboxes currently in a non-terminal state",
		},
	)

	// SandboxCreateDuration records CreateSandbox wall time, from the
	// initial Save through the readiness wait, in seconds.
	SandboxCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_sandbox_create_duration_seconds",
			Help:    "Sandbox creation duration, including the readiness wait",
			Buckets: durationBuckets,
		},
	)

	// ExecTotal counts ExecInSandbox calls by outcome (ok, invalid_state,
	// timeout, engine_unavailable, internal).
	ExecTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_exec_total",
			Help: "Total exec calls, by outcome",
		},
		[]string{"outcome"},
	)

	// ExecDuration records exec call latency in seconds.
	ExecDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_exec_duration_seconds",
			Help:    "Exec call duration",
			Buckets: durationBuckets,
		},
	)

	// DestroysTotal counts DestroySandbox calls by stop reason.
	DestroysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_destroys_total",
			Help: "Total sandbox destructions, by stop reason",
		},
		[]string{"reason"},
	)

	// ReconcileOrphansClosedTotal counts records the reconciliation loop
	// found with no matching live container and force-closed.
	ReconcileOrphansClosedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_reconcile_orphans_closed_total",
			Help: "Registry records force-closed by the reconciliation loop",
		},
	)

	// ReconcileUntrackedContainersTotal counts live containers the
	// reconciliation loop found with no matching registry record.
	ReconcileUntrackedContainersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_reconcile_untracked_containers_total",
			Help: "Live containers observed with no matching registry record",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SandboxesCreatedTotal,
		SandboxesActive,
		SandboxCreateDuration,
		ExecTotal,
		ExecDuration,
		DestroysTotal,
		ReconcileOrphansClosedTotal,
		ReconcileUntrackedContainersTotal,
	)
}
