// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Supervision metrics. Each process exposes its own registry view: serve
// through the control API, watchdog and jobs through their log lines only.
var (
	// Reconciliation Engine
	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_reconcile_total",
			Help: "Reconcile passes by trigger reason and outcome",
		},
		[]string{"reason", "outcome"},
	)

	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_reconcile_duration_seconds",
			Help:    "Duration of reconcile passes, including start and settle waits",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"reason"},
	)

	StartAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_start_attempts_total",
			Help: "Calls into the managed service start primitive",
		},
		[]string{"result"}, // started, race, failed, fatal
	)

	ServiceRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_service_running",
			Help: "Last observed managed service state (1=running)",
		},
	)

	StatusEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_status_events_total",
			Help: "Status-changed events published to listeners",
		},
	)

	DBSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_db_syncs_total",
			Help: "Periodic database flushes of the running server",
		},
		[]string{"result"}, // success, failure
	)

	// Heartbeat Loop
	HeartbeatTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_heartbeat_ticks_total",
			Help: "Heartbeat ticks, by whether they ran or were skipped",
		},
		[]string{"result"}, // ran, skipped
	)

	// Network Observer
	NetworkTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_network_transitions_total",
			Help: "Connectivity state transitions",
		},
		[]string{"to"},
	)

	NetworkProbeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_network_probe_errors_total",
			Help: "Failed connectivity probes of the polling source",
		},
	)

	// Guardian
	GuardianChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_guardian_checks_total",
			Help: "Process guardian inspections by result",
		},
		[]string{"result"}, // healthy, policy_noop, rpc, relaunched, throttled, error
	)

	Relaunches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_relaunches_total",
			Help: "Cross-process relaunches by target and result",
		},
		[]string{"target", "result"}, // target: serve, watchdog
	)

	// Durable Scheduler
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_job_runs_total",
			Help: "Durable job executions by job and result",
		},
		[]string{"job", "result"}, // success, retry, failure
	)

	JobNextRunSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_job_next_run_timestamp_seconds",
			Help: "Unix time of the next scheduled run",
		},
		[]string{"job"},
	)

	// Control API
	ControlRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_control_requests_total",
			Help: "Control API requests",
		},
		[]string{"route", "status"},
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_event_subscribers",
			Help: "Connected websocket status subscribers",
		},
	)

	// Circuit Breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_circuit_breaker_requests_total",
			Help: "Requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordReconcile records one reconcile pass.
func RecordReconcile(reason, outcome string, duration time.Duration) {
	ReconcileTotal.WithLabelValues(reason, outcome).Inc()
	ReconcileDuration.WithLabelValues(reason).Observe(duration.Seconds())
}

// RecordStartAttempt records the result of a start primitive call.
func RecordStartAttempt(result string) {
	StartAttempts.WithLabelValues(result).Inc()
}

// SetServiceRunning updates the running gauge.
func SetServiceRunning(running bool) {
	if running {
		ServiceRunning.Set(1)
		return
	}
	ServiceRunning.Set(0)
}

// RecordDBSync records one periodic database flush.
func RecordDBSync(err error) {
	if err != nil {
		DBSyncs.WithLabelValues("failure").Inc()
		return
	}
	DBSyncs.WithLabelValues("success").Inc()
}

// RecordHeartbeat records a heartbeat tick.
func RecordHeartbeat(skipped bool) {
	if skipped {
		HeartbeatTicks.WithLabelValues("skipped").Inc()
		return
	}
	HeartbeatTicks.WithLabelValues("ran").Inc()
}

// RecordNetworkTransition records a connectivity change.
func RecordNetworkTransition(to string) {
	NetworkTransitions.WithLabelValues(to).Inc()
}

// RecordGuardianCheck records one guardian inspection.
func RecordGuardianCheck(result string) {
	GuardianChecks.WithLabelValues(result).Inc()
}

// RecordRelaunch records a relaunch of the serve or watchdog process.
func RecordRelaunch(target string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	Relaunches.WithLabelValues(target, result).Inc()
}

// RecordJobRun records a durable job execution and its next run time.
func RecordJobRun(job, result string, next time.Time) {
	JobRuns.WithLabelValues(job, result).Inc()
	if !next.IsZero() {
		JobNextRunSeconds.WithLabelValues(job).Set(float64(next.Unix()))
	}
}

// RecordControlRequest records a control API response.
func RecordControlRequest(route, status string) {
	ControlRequests.WithLabelValues(route, status).Inc()
}
