package monitoring

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.ObserveDecision(model.Decision{
		Value:  model.DecisionGo,
		Reason: model.ReasonAdmitted,
		Scores: model.ModelScoreSet{Composite: 82},
	})
	m.ObserveDecision(model.Decision{
		Value:  model.DecisionNoGo,
		Reason: model.ReasonInsufficientBudget,
	})
	m.ObserveSignal(model.SignalRelevance, 0.012)
	m.ReserveConflict()
	m.ReservationExpired()
	m.ObserveAllocationRun(model.SolverOptimal)
	m.ObserveIngest(10, 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()

	for _, want := range []string{
		`outreach_decision_decisions_total{decision="go",reason="admitted"} 1`,
		`outreach_decision_decisions_total{decision="no_go",reason="insufficient_budget"} 1`,
		`outreach_ledger_reserve_conflicts_total 1`,
		`outreach_ledger_reservations_expired_total 1`,
		`outreach_allocator_runs_total{status="optimal"} 1`,
		`outreach_ingest_contacts_total{disposition="accepted"} 10`,
		`outreach_ingest_contacts_total{disposition="duplicate"} 3`,
	} {
		assert.True(t, strings.Contains(body, want), "missing %q", want)
	}
	assert.Contains(t, body, "outreach_signal_evaluate_duration_seconds_bucket")
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDecision(model.Decision{})
	m.ObserveSignal("x", 0)
	m.ReserveConflict()
	m.ReservationExpired()
	m.ObserveAllocationRun(model.SolverOptimal)
	m.ObserveIngest(1, 1)
}
