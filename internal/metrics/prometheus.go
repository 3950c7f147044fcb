package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for guestsyncd.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	actionsTotal    *prometheus.CounterVec
	ledgerTotal     *prometheus.CounterVec
	reconcileRuns   prometheus.Counter
	reconcileMiss   prometheus.Histogram
	convergenceTime *prometheus.HistogramVec
	uptime          prometheus.GaugeFunc
}

var defaultBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total actuator calls issued, by side, action, and outcome",
			},
			[]string{"side", "action", "outcome"},
		),

		ledgerTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_events_total",
				Help:      "Total echo-suppression ledger events, by kind",
			},
			[]string{"kind"},
		),

		reconcileRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_runs_total",
				Help:      "Total bootstrap reconciliation passes",
			},
		),

		reconcileMiss: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_mismatches",
				Help:      "Domain/unit pairs found out of sync per reconciliation pass",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),

		convergenceTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "convergence_duration_milliseconds",
				Help:      "Time spent waiting for an action to converge, by side",
				Buckets:   buckets,
			},
			[]string{"side"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since guestsyncd started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.actionsTotal,
		pm.ledgerTotal,
		pm.reconcileRuns,
		pm.reconcileMiss,
		pm.convergenceTime,
		pm.uptime,
	)

	promMetrics = pm
}

// RecordPrometheusAction records an actuator call outcome.
func RecordPrometheusAction(side, action string, ok bool) {
	if promMetrics == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	promMetrics.actionsTotal.WithLabelValues(side, action, outcome).Inc()
}

// RecordPrometheusLedgerEvent records a ledger suppression or coalesce event.
func RecordPrometheusLedgerEvent(kind string) {
	if promMetrics == nil {
		return
	}
	promMetrics.ledgerTotal.WithLabelValues(kind).Inc()
}

// RecordPrometheusReconcile records one reconciliation pass.
func RecordPrometheusReconcile(mismatches int) {
	if promMetrics == nil {
		return
	}
	promMetrics.reconcileRuns.Inc()
	promMetrics.reconcileMiss.Observe(float64(mismatches))
}

// RecordPrometheusConvergence records convergence wait time for one side.
func RecordPrometheusConvergence(side string, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.convergenceTime.WithLabelValues(side).Observe(float64(durationMs))
}

// PrometheusHandler returns an HTTP handler for Prometheus scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry, for tests or custom collectors.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
