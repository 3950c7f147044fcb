// Package metrics collects and exposes guestsyncd's runtime observability
// data.
//
// # Two stores, one purpose
//
// The in-process Metrics struct holds atomic counters for the lightweight
// JSON view served by JSONHandler (httpstatus does not mount it; its
// /metrics serves Prometheus); prometheus.go mirrors the same events into a
// Prometheus registry for external scraping. Every Record* method updates
// both so neither surface drifts from the other.
//
// # Concurrency
//
// All Record* methods are called from actuator and bridge goroutines and
// must not block. Counters use atomic operations exclusively; there is no
// lock on the hot path.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics collects guestsyncd runtime counters.
type Metrics struct {
	// Reconciliation actions dispatched to either side.
	UnitActionsTotal   atomic.Int64
	DomainActionsTotal atomic.Int64
	ActionFailures     atomic.Int64

	// Echo suppression via the action-history ledger.
	LedgerSuppressions atomic.Int64
	LedgerCoalesced    atomic.Int64

	// Bootstrap reconciliation.
	ReconcileMismatches atomic.Int64
	ReconcileRuns       atomic.Int64

	// Convergence latency, in milliseconds (sum + count for an average;
	// the histogram detail lives in the Prometheus bridge).
	ConvergenceLatencyMsTotal atomic.Int64
	ConvergenceCount          atomic.Int64

	startTime time.Time
}

var global = &Metrics{startTime: time.Now()}

// Global returns the global metrics instance.
func Global() *Metrics { return global }

// StartTime returns when the metrics system was initialized.
func StartTime() time.Time { return global.startTime }

// RecordUnitAction records an actuator call issued against a systemd unit.
func (m *Metrics) RecordUnitAction(action string, ok bool) {
	m.UnitActionsTotal.Add(1)
	if !ok {
		m.ActionFailures.Add(1)
	}
	RecordPrometheusAction("unit", action, ok)
}

// RecordDomainAction records an actuator call issued against a libvirt domain.
func (m *Metrics) RecordDomainAction(action string, ok bool) {
	m.DomainActionsTotal.Add(1)
	if !ok {
		m.ActionFailures.Add(1)
	}
	RecordPrometheusAction("domain", action, ok)
}

// RecordLedgerSuppression records a unit event dropped as an echo because
// the domain store already held the state it projects to.
func (m *Metrics) RecordLedgerSuppression() {
	m.LedgerSuppressions.Add(1)
	RecordPrometheusLedgerEvent("suppressed")
}

// RecordLedgerCoalesce records a queued request dropped because the ledger
// shows an action for the same domain within the coalesce threshold.
func (m *Metrics) RecordLedgerCoalesce() {
	m.LedgerCoalesced.Add(1)
	RecordPrometheusLedgerEvent("coalesced")
}

// RecordReconcile records one bootstrap reconciliation pass and how many
// domain/unit pairs it found out of sync.
func (m *Metrics) RecordReconcile(mismatches int) {
	m.ReconcileRuns.Add(1)
	m.ReconcileMismatches.Add(int64(mismatches))
	RecordPrometheusReconcile(mismatches)
}

// RecordConvergence records how long an actuator waited for a side effect
// to converge.
func (m *Metrics) RecordConvergence(side string, durationMs int64) {
	m.ConvergenceLatencyMsTotal.Add(durationMs)
	m.ConvergenceCount.Add(1)
	RecordPrometheusConvergence(side, durationMs)
}

// Snapshot returns a point-in-time view of all counters.
func (m *Metrics) Snapshot() map[string]interface{} {
	count := m.ConvergenceCount.Load()
	avgMs := float64(0)
	if count > 0 {
		avgMs = float64(m.ConvergenceLatencyMsTotal.Load()) / float64(count)
	}
	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"actions": map[string]interface{}{
			"unit":     m.UnitActionsTotal.Load(),
			"domain":   m.DomainActionsTotal.Load(),
			"failures": m.ActionFailures.Load(),
		},
		"ledger": map[string]interface{}{
			"suppressed": m.LedgerSuppressions.Load(),
			"coalesced":  m.LedgerCoalesced.Load(),
		},
		"reconcile": map[string]interface{}{
			"runs":       m.ReconcileRuns.Load(),
			"mismatches": m.ReconcileMismatches.Load(),
		},
		"convergence_avg_ms": avgMs,
	}
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	})
}
