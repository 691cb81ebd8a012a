package model

import "time"

// ConstraintType classifies an allocation constraint.
type ConstraintType string

const (
	ConstraintBudget   ConstraintType = "budget"
	ConstraintCapacity ConstraintType = "capacity"
	ConstraintTiming   ConstraintType = "timing"
	ConstraintQuality  ConstraintType = "quality"
)

// AllocationConstraint bounds the optimizer's allocation for a scope.
// Hard constraints must hold in any reported solution; soft constraints may
// be violated at the stated penalty per dollar of violation.
type AllocationConstraint struct {
	Name    string         `json:"name"`
	Type    ConstraintType `json:"type"`
	Scope   ScopePath      `json:"scope"`
	Min     float64        `json:"min,omitempty"`
	Max     float64        `json:"max,omitempty"` // 0 = unbounded
	Hard    bool           `json:"hard"`
	Penalty float64        `json:"penalty,omitempty"` // per-dollar cost of violating a soft bound
}

// SolverStatus reports how an allocation run concluded.
type SolverStatus string

const (
	// SolverOptimal: LP solution found, no hard constraint violated.
	SolverOptimal SolverStatus = "optimal"
	// SolverSuboptimal: heuristic fallback used after solver failure/timeout.
	SolverSuboptimal SolverStatus = "suboptimal"
	// SolverInfeasible: hard constraints mutually contradictory. Reported,
	// never silently relaxed; the prior run's allocations stay active.
	SolverInfeasible SolverStatus = "infeasible"
)

// CampaignDemand is a demand signal for one campaign scope: how many
// high-score requests are pending and the expected value per allocated
// dollar.
type CampaignDemand struct {
	Scope           ScopePath `json:"scope"`
	PendingRequests int       `json:"pending_requests"`
	ExpectedValue   float64   `json:"expected_value"` // value per allocated dollar
	ExpectedCost    float64   `json:"expected_cost"`  // total cost to satisfy all pending
}

// AllocationRun captures one optimization invocation: inputs, active
// constraints, solver status, resulting per-scope allocations, and
// slack/shadow-price diagnostics. Immutable after completion.
type AllocationRun struct {
	ID          string                 `json:"id"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	TotalPool   float64                `json:"total_pool"`
	Demands     []CampaignDemand       `json:"demands"`
	Constraints []AllocationConstraint `json:"constraints"`
	Status      SolverStatus           `json:"status"`
	Allocations map[string]float64     `json:"allocations"` // scope path -> USD
	Slack       map[string]float64     `json:"slack,omitempty"`
	ShadowPrice map[string]float64     `json:"shadow_price,omitempty"`
	PenaltyCost float64                `json:"penalty_cost,omitempty"`
	Note        string                 `json:"note,omitempty"`
}

// AllowanceFor returns the allocation for the nearest enclosing scope, or
// zero when no allocation covers it.
func (r *AllocationRun) AllowanceFor(scope ScopePath) float64 {
	if r == nil {
		return 0
	}
	for p := scope; ; p = p.Parent() {
		if amt, ok := r.Allocations[p.String()]; ok {
			return amt
		}
		if p.Depth() <= 1 {
			break
		}
	}
	return 0
}
