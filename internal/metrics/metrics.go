// Package metrics exposes Prometheus collectors for the build plane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors incremented by the orchestrator and the
// watchdog.
type Metrics struct {
	InvocationsTotal  *prometheus.CounterVec
	RollbacksTotal    prometheus.Counter
	StopsTotal        prometheus.Counter
	WatchdogSweeps    prometheus.Counter
	WatchdogReaped    prometheus.Counter
	InvokeDuration    prometheus.Histogram
	QueuedBuildsGauge prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buildplane",
			Name:      "invocations_total",
			Help:      "Build invocations by outcome (started, queued, rejected, failed).",
		}, []string{"outcome"}),
		RollbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buildplane",
			Name:      "rollbacks_total",
			Help:      "Invocations rolled back after a downstream failure.",
		}),
		StopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buildplane",
			Name:      "stops_total",
			Help:      "Builds stopped on request.",
		}),
		WatchdogSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buildplane",
			Name:      "watchdog_sweeps_total",
			Help:      "Watchdog sweep iterations.",
		}),
		WatchdogReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buildplane",
			Name:      "watchdog_reaped_total",
			Help:      "Stale builds failed by the watchdog.",
		}),
		InvokeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "buildplane",
			Name:      "invoke_duration_seconds",
			Help:      "Wall time of Invoke including CI job creation.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		QueuedBuildsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "buildplane",
			Name:      "queued_builds",
			Help:      "Builds currently waiting for the execution slot.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.InvocationsTotal,
			m.RollbacksTotal,
			m.StopsTotal,
			m.WatchdogSweeps,
			m.WatchdogReaped,
			m.InvokeDuration,
			m.QueuedBuildsGauge,
		)
	}

	return m
}

// NewNop creates unregistered collectors for tests.
func NewNop() *Metrics {
	return New(nil)
}
