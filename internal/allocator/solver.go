// Package allocator computes budget allocations across campaign scopes by
// linear programming, with a deterministic greedy fallback when the solver
// cannot produce a usable answer in time.
package allocator

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// ErrInfeasible means the hard constraints contradict each other. The caller
// reports it and keeps the prior allocation active; hard constraints are
// never silently relaxed.
var ErrInfeasible = eris.New("allocator: hard constraints infeasible")

const solveTol = 1e-9

// solution is a solved allocation with diagnostics.
type solution struct {
	allocations map[string]float64
	slack       map[string]float64
	shadowPrice map[string]float64
	penaltyCost float64
}

// bounds is the per-scope feasible interval after folding constraints in.
type bounds struct {
	scope    model.ScopePath
	value    float64 // objective value per allocated dollar
	hardMin  float64
	hardMax  float64 // +Inf when unbounded
	softMins []softBound
	softMaxs []softBound
}

type softBound struct {
	name    string
	at      float64
	penalty float64
}

// foldConstraints merges the constraint list into per-scope bounds. The
// fairness floor acts as a hard minimum for every scope with demand. Returns
// ErrInfeasible when any scope's interval is empty.
func foldConstraints(demands []model.CampaignDemand, constraints []model.AllocationConstraint, fairnessFloor float64) ([]bounds, error) {
	out := make([]bounds, len(demands))
	for i, d := range demands {
		b := bounds{
			scope:   d.Scope,
			value:   d.ExpectedValue,
			hardMin: fairnessFloor,
			hardMax: d.ExpectedCost, // never allocate past the demand
		}
		if b.hardMax <= 0 {
			b.hardMax = math.Inf(1)
		}
		for _, c := range constraints {
			if !c.Scope.Contains(d.Scope) && !d.Scope.Contains(c.Scope) {
				continue
			}
			if c.Hard {
				if c.Min > b.hardMin {
					b.hardMin = c.Min
				}
				if c.Max > 0 && c.Max < b.hardMax {
					b.hardMax = c.Max
				}
				continue
			}
			if c.Min > 0 {
				b.softMins = append(b.softMins, softBound{c.Name, c.Min, c.Penalty})
			}
			if c.Max > 0 {
				b.softMaxs = append(b.softMaxs, softBound{c.Name, c.Max, c.Penalty})
			}
		}
		if b.hardMin > b.hardMax+solveTol {
			return nil, eris.Wrapf(ErrInfeasible, "scope %s: min %.2f above max %.2f", d.Scope, b.hardMin, b.hardMax)
		}
		out[i] = b
	}
	return out, nil
}

// solveLP translates the allocation problem to LP standard form and runs the
// simplex method.
//
// With hard floors m_i shifted out (x_i = m_i + y_i, y_i >= 0), the program
// becomes: minimize -sum(v_i*y_i) + sum(penalty_j*viol_j) subject to
// equality rows with slack variables for the pool cap, per-scope caps, and
// soft bounds.
func solveLP(bds []bounds, pool float64) (*solution, error) {
	n := len(bds)
	if n == 0 {
		return &solution{
			allocations: map[string]float64{},
			slack:       map[string]float64{"pool": pool},
			shadowPrice: map[string]float64{},
		}, nil
	}

	floorTotal := 0.0
	for _, b := range bds {
		floorTotal += b.hardMin
	}
	if floorTotal > pool+solveTol {
		return nil, eris.Wrapf(ErrInfeasible, "hard minimums %.2f exceed pool %.2f", floorTotal, pool)
	}

	// Column layout: y_0..y_{n-1}, then one extra column per added row
	// (slack or violation+slack pairs for soft bounds).
	type row struct {
		coeffs map[int]float64
		rhs    float64
	}
	var rows []row
	var obj []float64
	addVar := func(cost float64) int {
		obj = append(obj, cost)
		return len(obj) - 1
	}
	for _, b := range bds {
		addVar(-b.value)
	}

	// Pool: sum(y) + s = pool - sum(m).
	poolRow := row{coeffs: make(map[int]float64, n+1), rhs: pool - floorTotal}
	for i := range bds {
		poolRow.coeffs[i] = 1
	}
	poolSlack := addVar(0)
	poolRow.coeffs[poolSlack] = 1
	rows = append(rows, poolRow)

	// Per-scope caps: y_i + s = max_i - m_i.
	capSlack := make(map[int]int, n)
	for i, b := range bds {
		if math.IsInf(b.hardMax, 1) {
			continue
		}
		s := addVar(0)
		capSlack[i] = s
		rows = append(rows, row{coeffs: map[int]float64{i: 1, s: 1}, rhs: b.hardMax - b.hardMin})
	}

	// Soft minimum at v: y + shortfall - surplus = v - m, penalty on the
	// shortfall. A soft bound already satisfied by the hard floor is a no-op.
	type violVar struct {
		name  string
		col   int
		scope model.ScopePath
	}
	var viols []violVar
	for i, b := range bds {
		for _, sm := range b.softMins {
			gap := sm.at - b.hardMin
			if gap <= 0 {
				continue
			}
			shortfall := addVar(sm.penalty)
			surplus := addVar(0)
			rows = append(rows, row{coeffs: map[int]float64{i: 1, shortfall: 1, surplus: -1}, rhs: gap})
			viols = append(viols, violVar{sm.name, shortfall, b.scope})
		}
		for _, sx := range b.softMaxs {
			gap := sx.at - b.hardMin
			if gap < 0 {
				gap = 0
			}
			excess := addVar(sx.penalty)
			s := addVar(0)
			rows = append(rows, row{coeffs: map[int]float64{i: 1, excess: -1, s: 1}, rhs: gap})
			viols = append(viols, violVar{sx.name, excess, b.scope})
		}
	}

	a := mat.NewDense(len(rows), len(obj), nil)
	rhs := make([]float64, len(rows))
	for r, rw := range rows {
		for c, v := range rw.coeffs {
			a.Set(r, c, v)
		}
		rhs[r] = rw.rhs
	}

	_, x, err := lp.Simplex(obj, a, rhs, 0, nil)
	if err != nil {
		if eris.Is(err, lp.ErrInfeasible) {
			return nil, eris.Wrap(ErrInfeasible, "simplex")
		}
		return nil, eris.Wrap(err, "allocator: simplex")
	}

	sol := &solution{
		allocations: make(map[string]float64, n),
		slack:       make(map[string]float64, n+1),
		shadowPrice: make(map[string]float64, 1),
	}
	for i, b := range bds {
		sol.allocations[b.scope.String()] = b.hardMin + x[i]
	}
	sol.slack["pool"] = x[poolSlack]
	for i, s := range capSlack {
		sol.slack[bds[i].scope.String()] = x[s]
	}
	for _, v := range viols {
		if x[v.col] > solveTol {
			sol.penaltyCost += x[v.col] * obj[v.col]
			sol.slack["violation:"+v.name] = x[v.col]
		}
	}

	// Marginal value of one more pool dollar: the best value density among
	// scopes the pool cap is actually starving.
	if sol.slack["pool"] <= solveTol {
		for i, b := range bds {
			if capped, ok := capSlack[i]; ok && x[capped] <= solveTol {
				continue // fully funded to its cap
			}
			if b.value > sol.shadowPrice["pool"] {
				sol.shadowPrice["pool"] = b.value
			}
		}
	}
	return sol, nil
}

// solveGreedy allocates by value density, highest first, after honoring hard
// floors. Deterministic: ties break on scope path. Used when the LP solver
// fails or times out.
func solveGreedy(bds []bounds, pool float64) (*solution, error) {
	floorTotal := 0.0
	for _, b := range bds {
		floorTotal += b.hardMin
	}
	if floorTotal > pool+solveTol {
		return nil, eris.Wrapf(ErrInfeasible, "hard minimums %.2f exceed pool %.2f", floorTotal, pool)
	}

	order := make([]int, len(bds))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if bds[order[a]].value != bds[order[b]].value {
			return bds[order[a]].value > bds[order[b]].value
		}
		return bds[order[a]].scope.String() < bds[order[b]].scope.String()
	})

	sol := &solution{
		allocations: make(map[string]float64, len(bds)),
		slack:       make(map[string]float64, len(bds)+1),
		shadowPrice: make(map[string]float64, 1),
	}
	left := pool - floorTotal
	for _, b := range bds {
		sol.allocations[b.scope.String()] = b.hardMin
	}
	for _, i := range order {
		b := bds[i]
		room := math.Inf(1)
		if !math.IsInf(b.hardMax, 1) {
			room = b.hardMax - b.hardMin
		}
		grant := math.Min(room, left)
		if grant <= 0 {
			continue
		}
		sol.allocations[b.scope.String()] += grant
		left -= grant
	}
	sol.slack["pool"] = left
	for _, b := range bds {
		if !math.IsInf(b.hardMax, 1) {
			sol.slack[b.scope.String()] = b.hardMax - sol.allocations[b.scope.String()]
		}
	}
	return sol, nil
}
