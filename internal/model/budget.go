package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Period is a budget accounting period.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// ScopePath addresses a node in the five-level budget hierarchy:
// organization / campaign / candidate / category / line item. Trailing
// levels may be empty; an empty level and everything below it addresses the
// aggregate at that depth.
type ScopePath struct {
	Organization string `json:"organization"`
	Campaign     string `json:"campaign,omitempty"`
	Candidate    string `json:"candidate,omitempty"`
	Category     string `json:"category,omitempty"`
	LineItem     string `json:"line_item,omitempty"`
}

// String renders the path as org/campaign/candidate/category/line-item with
// trailing empty levels omitted.
func (p ScopePath) String() string {
	levels := []string{p.Organization, p.Campaign, p.Candidate, p.Category, p.LineItem}
	end := len(levels)
	for end > 0 && levels[end-1] == "" {
		end--
	}
	return strings.Join(levels[:end], "/")
}

// ParseScopePath parses a slash-separated path into a ScopePath.
func ParseScopePath(s string) (ScopePath, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return ScopePath{}, eris.New("model: empty scope path")
	}
	parts := strings.Split(s, "/")
	if len(parts) > 5 {
		return ScopePath{}, eris.Errorf("model: scope path %q has more than 5 levels", s)
	}
	var p ScopePath
	fields := []*string{&p.Organization, &p.Campaign, &p.Candidate, &p.Category, &p.LineItem}
	for i, part := range parts {
		if part == "" {
			return ScopePath{}, eris.Errorf("model: scope path %q has an empty level", s)
		}
		*fields[i] = part
	}
	return p, nil
}

// Depth returns the number of populated levels (1..5).
func (p ScopePath) Depth() int {
	n := 0
	for _, lvl := range []string{p.Organization, p.Campaign, p.Candidate, p.Category, p.LineItem} {
		if lvl == "" {
			break
		}
		n++
	}
	return n
}

// Parent returns the path one level up. The organization root returns itself.
func (p ScopePath) Parent() ScopePath {
	switch {
	case p.LineItem != "":
		p.LineItem = ""
	case p.Category != "":
		p.Category = ""
	case p.Candidate != "":
		p.Candidate = ""
	case p.Campaign != "":
		p.Campaign = ""
	}
	return p
}

// Contains reports whether child is p itself or a descendant of p.
func (p ScopePath) Contains(child ScopePath) bool {
	prefix := p.String()
	full := child.String()
	return full == prefix || strings.HasPrefix(full, prefix+"/")
}

// BudgetScope is one node of the budget hierarchy with its period allocation
// and running totals. Spent+Committed must not exceed Allocation unless
// AllowOverride is set; child totals roll up to the parent.
type BudgetScope struct {
	Path          ScopePath `json:"path"`
	Period        Period    `json:"period"`
	Allocation    float64   `json:"allocation"`
	Committed     float64   `json:"committed"`
	Spent         float64   `json:"spent"`
	AllowOverride bool      `json:"allow_override,omitempty"`
	CarryOver     bool      `json:"carry_over,omitempty"`
	PeriodStart   time.Time `json:"period_start"`
}

// Remaining is allocation minus committed and spent at this node only.
func (b BudgetScope) Remaining() float64 {
	return b.Allocation - b.Committed - b.Spent
}

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	TxnReserve TransactionKind = "reserve"
	TxnCommit  TransactionKind = "commit"
	TxnRelease TransactionKind = "release"
	TxnCredit  TransactionKind = "credit"
)

// CostTransaction is an append-only ledger entry. Entries are never mutated
// or deleted; corrections are posted as offsetting entries.
type CostTransaction struct {
	ID         string          `json:"id"`
	Scope      ScopePath       `json:"scope"`
	DecisionID string          `json:"decision_id,omitempty"`
	Kind       TransactionKind `json:"kind"`
	Quantity   float64         `json:"quantity"`
	UnitCost   float64         `json:"unit_cost"`
	Total      float64         `json:"total"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
