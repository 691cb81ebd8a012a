// Package monitoring exposes the engine's Prometheus metrics.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// Metrics holds the engine's instrument set on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	decisionsTotal      *prometheus.CounterVec
	compositeScore      prometheus.Histogram
	signalLatency       *prometheus.HistogramVec
	reserveConflicts    prometheus.Counter
	reservationsExpired prometheus.Counter
	allocationRuns      *prometheus.CounterVec
	contactsIngested    *prometheus.CounterVec
}

// New builds the instrument set.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "decision",
			Name:      "decisions_total",
			Help:      "Recorded decisions by value and reason.",
		},
		[]string{"decision", "reason"},
	)
	compositeScore := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "outreach",
			Subsystem: "decision",
			Name:      "composite_score",
			Help:      "Composite score distribution across evaluations.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)
	signalLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "outreach",
			Subsystem: "signal",
			Name:      "evaluate_duration_seconds",
			Help:      "Signal provider evaluation latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"signal"},
	)
	reserveConflicts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "ledger",
			Name:      "reserve_conflicts_total",
			Help:      "Reservations refused for insufficient budget.",
		},
	)
	reservationsExpired := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "ledger",
			Name:      "reservations_expired_total",
			Help:      "Reservations auto-released after TTL expiry.",
		},
	)
	allocationRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "allocator",
			Name:      "runs_total",
			Help:      "Allocation runs by solver status.",
		},
		[]string{"status"},
	)
	contactsIngested := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "ingest",
			Name:      "contacts_total",
			Help:      "Ingested contact records by disposition.",
		},
		[]string{"disposition"},
	)

	registry.MustRegister(decisionsTotal, compositeScore, signalLatency,
		reserveConflicts, reservationsExpired, allocationRuns, contactsIngested)

	return &Metrics{
		registry:            registry,
		decisionsTotal:      decisionsTotal,
		compositeScore:      compositeScore,
		signalLatency:       signalLatency,
		reserveConflicts:    reserveConflicts,
		reservationsExpired: reservationsExpired,
		allocationRuns:      allocationRuns,
		contactsIngested:    contactsIngested,
	}
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDecision records a decision outcome. Safe on nil.
func (m *Metrics) ObserveDecision(d model.Decision) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(string(d.Value), string(d.Reason)).Inc()
	m.compositeScore.Observe(d.Scores.Composite)
}

// ObserveSignal records one provider evaluation.
func (m *Metrics) ObserveSignal(signal string, seconds float64) {
	if m == nil {
		return
	}
	m.signalLatency.WithLabelValues(signal).Observe(seconds)
}

// ReserveConflict counts a refused reservation. Safe on nil.
func (m *Metrics) ReserveConflict() {
	if m == nil {
		return
	}
	m.reserveConflicts.Inc()
}

// ReservationExpired counts a TTL auto-release. Safe on nil.
func (m *Metrics) ReservationExpired() {
	if m == nil {
		return
	}
	m.reservationsExpired.Inc()
}

// ObserveAllocationRun counts a run by status. Safe on nil.
func (m *Metrics) ObserveAllocationRun(status model.SolverStatus) {
	if m == nil {
		return
	}
	m.allocationRuns.WithLabelValues(string(status)).Inc()
}

// ObserveIngest counts accepted and duplicate contacts. Safe on nil.
func (m *Metrics) ObserveIngest(accepted, duplicates int) {
	if m == nil {
		return
	}
	m.contactsIngested.WithLabelValues("accepted").Add(float64(accepted))
	m.contactsIngested.WithLabelValues("duplicate").Add(float64(duplicates))
}
