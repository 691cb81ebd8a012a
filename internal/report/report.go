// Package report builds budget-vs-actual summaries from ledger scope state.
package report

import (
	"sort"
	"time"

	"github.com/groundgame-labs/outreach-engine/internal/config"
	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// Status classifies a line's variance from budget.
type Status string

const (
	StatusOnTarget       Status = "on_target"
	StatusOverPerforming Status = "over_performing"
	StatusWarningUnder   Status = "warning_under"
	StatusCriticalUnder  Status = "critical_under"
)

// Line is one scope's budget-vs-actual row.
type Line struct {
	Scope       string    `json:"scope"`
	Period      string    `json:"period"`
	PeriodStart time.Time `json:"period_start"`
	Budgeted    float64   `json:"budgeted"`
	Committed   float64   `json:"committed"`
	Actual      float64   `json:"actual"`
	Variance    float64   `json:"variance"`     // actual - budgeted
	VariancePct float64   `json:"variance_pct"` // variance as % of budget
	Status      Status    `json:"status"`
}

// Report is a full budget-vs-actual snapshot.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Lines       []Line    `json:"lines"`
}

// Builder classifies variance against configured thresholds.
type Builder struct {
	cfg config.ReportConfig
	now func() time.Time
}

// New creates a Builder.
func New(cfg config.ReportConfig) *Builder {
	return &Builder{cfg: cfg, now: time.Now}
}

// WithNow fixes the clock for testing.
func (b *Builder) WithNow(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build renders a report over the given scopes, sorted by path.
func (b *Builder) Build(scopes []model.BudgetScope) Report {
	lines := make([]Line, 0, len(scopes))
	for _, s := range scopes {
		variance := s.Spent - s.Allocation
		pct := 0.0
		if s.Allocation > 0 {
			pct = variance / s.Allocation * 100
		}
		lines = append(lines, Line{
			Scope:       s.Path.String(),
			Period:      string(s.Period),
			PeriodStart: s.PeriodStart,
			Budgeted:    s.Allocation,
			Committed:   s.Committed,
			Actual:      s.Spent,
			Variance:    variance,
			VariancePct: pct,
			Status:      b.classify(pct),
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Scope < lines[j].Scope })
	return Report{GeneratedAt: b.now(), Lines: lines}
}

// classify maps signed variance percentage to a status. Spending over budget
// past the over threshold is over-performing; underspend degrades through
// warning to critical as the shortfall grows.
func (b *Builder) classify(pct float64) Status {
	switch {
	case pct > b.cfg.OverPct:
		return StatusOverPerforming
	case pct >= -b.cfg.WarningUnderPct:
		return StatusOnTarget
	case pct >= -b.cfg.CriticalUnderPct:
		return StatusWarningUnder
	default:
		return StatusCriticalUnder
	}
}

// Totals sums budgeted and actual across lines for a footer row.
func (r Report) Totals() (budgeted, actual float64) {
	for _, l := range r.Lines {
		budgeted += l.Budgeted
		actual += l.Actual
	}
	return budgeted, actual
}
