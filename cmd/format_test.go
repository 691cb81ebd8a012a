package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/groundgame-labs/outreach-engine/internal/matcher"
	"github.com/groundgame-labs/outreach-engine/internal/model"
	"github.com/groundgame-labs/outreach-engine/internal/report"
)

func TestFormatDecisions(t *testing.T) {
	var buf bytes.Buffer
	formatDecisions(&buf, []model.Decision{
		{
			ID:      "a1b2c3d4-0000-0000-0000-000000000000",
			Scope:   model.ScopePath{Organization: "org", Campaign: "camp-a"},
			Channel: model.ChannelSMS,
			Value:   model.DecisionGo,
			Reason:  model.ReasonAdmitted,
			Scores:  model.ModelScoreSet{Composite: 81.25, ExpectedCost: 0.05},
		},
		{
			ID:      "ffff1111-0000-0000-0000-000000000000",
			Scope:   model.ScopePath{Organization: "org", Campaign: "camp-b"},
			Channel: model.ChannelVideo,
			Value:   model.DecisionNoGo,
			Reason:  model.ReasonInsufficientBudget,
			Scores:  model.ModelScoreSet{Composite: 74.0, ExpectedCost: 40.0},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "a1b2c3d4")
	assert.Contains(t, out, "org/camp-a")
	assert.Contains(t, out, "go")
	assert.Contains(t, out, "insufficient_budget")
	assert.Contains(t, out, "81.2")
	assert.NotContains(t, out, "a1b2c3d4-0000")
}

func TestFormatReport(t *testing.T) {
	rep := report.Report{
		GeneratedAt: time.Now(),
		Lines: []report.Line{
			{
				Scope:       "org/camp-a",
				Period:      "monthly",
				Budgeted:    1000,
				Committed:   50,
				Actual:      940,
				Variance:    -60,
				VariancePct: -6,
				Status:      report.StatusOnTarget,
			},
			{
				Scope:       "org/camp-b",
				Period:      "monthly",
				Budgeted:    500,
				Actual:      100,
				Variance:    -400,
				VariancePct: -80,
				Status:      report.StatusCriticalUnder,
			},
		},
	}

	var buf bytes.Buffer
	formatReport(&buf, rep)

	out := buf.String()
	assert.Contains(t, out, "org/camp-a")
	assert.Contains(t, out, "on_target")
	assert.Contains(t, out, "critical_under")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "1500.00")
	assert.Contains(t, out, "1040.00")
}

func TestFormatAllocationRun(t *testing.T) {
	var buf bytes.Buffer
	formatAllocationRun(&buf, model.AllocationRun{
		ID:          "run12345-0000-0000-0000-000000000000",
		Status:      model.SolverOptimal,
		TotalPool:   1000,
		Allocations: map[string]float64{"org/camp-b": 400, "org/camp-a": 600},
		ShadowPrice: map[string]float64{"pool": 1.5},
	})

	out := buf.String()
	assert.Contains(t, out, "optimal")
	assert.Contains(t, out, "1.500 per pool dollar")
	// Allocations print in path order.
	a := bytes.Index(buf.Bytes(), []byte("org/camp-a"))
	b := bytes.Index(buf.Bytes(), []byte("org/camp-b"))
	assert.True(t, a >= 0 && b >= 0 && a < b)
}

func TestFormatAllocationRun_Infeasible(t *testing.T) {
	var buf bytes.Buffer
	formatAllocationRun(&buf, model.AllocationRun{
		ID:     "run12345-0000-0000-0000-000000000000",
		Status: model.SolverInfeasible,
		Note:   "hard minimums exceed pool",
	})

	out := buf.String()
	assert.Contains(t, out, "infeasible")
	assert.Contains(t, out, "hard minimums exceed pool")
	assert.NotContains(t, out, "SCOPE")
}

func TestFormatReviewQueue(t *testing.T) {
	var buf bytes.Buffer
	formatReviewQueue(&buf, []model.Decision{
		{
			ID:        "deadbeef-0000-0000-0000-000000000000",
			Scope:     model.ScopePath{Organization: "org", Campaign: "camp-a"},
			Channel:   model.ChannelEmail,
			Trigger:   "major_gift_ask",
			Reason:    model.ReasonSensitiveCategory,
			Scores:    model.ModelScoreSet{Composite: 88, Confidence: 92},
			DecidedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "deadbeef")
	assert.Contains(t, out, "major_gift_ask")
	assert.Contains(t, out, "sensitive_category")
	assert.Contains(t, out, "2026-03-02 12:00")
}

func TestFormatMatchStats(t *testing.T) {
	var buf bytes.Buffer
	formatMatchStats(&buf, matcher.RunStats{Processed: 4, Matched: 2, Unmatched: 1, Deferred: 1})

	out := buf.String()
	assert.Contains(t, out, "Processed: 4")
	assert.Contains(t, out, "Matched:   2")
	assert.Contains(t, out, "Deferred:  1")
}

func TestFormatTransactions(t *testing.T) {
	var buf bytes.Buffer
	formatTransactions(&buf, []model.CostTransaction{
		{
			Scope:      model.ScopePath{Organization: "org", Campaign: "camp-a"},
			DecisionID: "dec11111-0000-0000-0000-000000000000",
			Kind:       model.TxnReserve,
			Total:      40,
			CreatedAt:  time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		},
		{
			Scope:     model.ScopePath{Organization: "org", Campaign: "camp-a"},
			Kind:      model.TxnCredit,
			Total:     -25,
			Note:      "settled below estimate",
			CreatedAt: time.Date(2026, 3, 2, 12, 5, 0, 0, time.UTC),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "reserve")
	assert.Contains(t, out, "+40.00")
	assert.Contains(t, out, "-25.00")
	assert.Contains(t, out, "settled below estimate")
}

func TestFormatAudit(t *testing.T) {
	var buf bytes.Buffer
	formatAudit(&buf, []model.AuditEntry{
		{
			Actor:   "jordan",
			Action:  "review.approve",
			Subject: "deadbeef-0000-0000-0000-000000000000",
			Detail:  map[string]any{"outcome": "go"},
			At:      time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "jordan")
	assert.Contains(t, out, "review.approve")
	assert.Contains(t, out, "deadbeef")
	assert.Contains(t, out, `"outcome":"go"`)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "a1b2c3d4", truncateID("a1b2c3d4-0000-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
