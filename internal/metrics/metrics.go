// Package metrics provides Prometheus metrics for staleguard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "staleguard"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks requests currently being served.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)
)

// Dispatch metrics
var (
	// DispatchRunsTotal counts dispatch runs by outcome.
	DispatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "runs_total",
			Help:      "Total dispatch runs",
		},
		[]string{"outcome"}, // ok, degraded, aborted, locked
	)

	// DispatchRunsDegradedTotal counts runs that could not read their sources.
	DispatchRunsDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "runs_degraded_total",
			Help:      "Total dispatch runs degraded by source errors",
		},
	)

	// DispatchRunDuration tracks dispatch run latency.
	DispatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "run_duration_seconds",
			Help:      "Dispatch run duration in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// DispatchAlertsSentTotal counts alerts sent by level.
	DispatchAlertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "alerts_sent_total",
			Help:      "Total alerts sent",
		},
		[]string{"level"},
	)

	// DispatchErrorsTotal counts per-entity dispatch errors by stage.
	DispatchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "errors_total",
			Help:      "Total dispatch errors",
		},
		[]string{"stage"}, // render, notify, history, state, panic
	)

	// DispatchEntitiesTracked is the number of entities old enough to alert on.
	DispatchEntitiesTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "entities_tracked",
			Help:      "Entities at or above the minimum alert age in the last run",
		},
	)
)

// Controller metrics
var (
	// ControllerDecisionsTotal counts send decisions by result and reason.
	ControllerDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "decisions_total",
			Help:      "Total send decisions",
		},
		[]string{"result", "reason"},
	)

	// ControllerUserActionsTotal counts recorded user actions.
	ControllerUserActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "user_actions_total",
			Help:      "Total user actions recorded",
		},
		[]string{"action"},
	)

	// ControllerHistoryFallbacksTotal counts decisions served from the ledger.
	ControllerHistoryFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "history_fallbacks_total",
			Help:      "Total decisions made from alert history because no state existed",
		},
	)
)

// Notifier metrics
var (
	// NotifierSendsTotal counts notification attempts by channel and result.
	NotifierSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "sends_total",
			Help:      "Total notification attempts",
		},
		[]string{"channel", "result"}, // success, error
	)

	// NotifierSendDuration tracks notification latency.
	NotifierSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "send_duration_seconds",
			Help:      "Notification send latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)
)

// Storage metrics
var (
	// StorageQueryDuration tracks query latency.
	StorageQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Storage query latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation", "backend"},
	)

	// StorageErrors counts storage operation errors.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total storage operation errors",
		},
		[]string{"operation", "backend"},
	)

	// StorageConflictsTotal counts optimistic concurrency retries.
	StorageConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "conflicts_total",
			Help:      "Total optimistic update conflicts",
		},
		[]string{"backend"},
	)
)

// Catalog metrics
var (
	// CatalogReloadsTotal counts catalog reload attempts.
	CatalogReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "reloads_total",
			Help:      "Total rule catalog reloads",
		},
		[]string{"result"}, // success, failure
	)

	// CatalogRules is the number of rules in the active catalog.
	CatalogRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "rules",
			Help:      "Rules in the active catalog",
		},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
