// Package allocator implements the Allocator (C4): a Frank-Wolfe
// continuous relaxation with greedy initialization and integer rounding,
// producing an ExecutionPlan from a batch of candidate opportunities under
// capital, liquidity, and per-position constraints (spec §4.4). Vector
// distance in the convergence check uses gonum/floats, grounded on the
// teacher's use of gonum.org/v1/gonum in internal/strategy/optimized.
package allocator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"

	"github.com/abdoElHodaky/arbicore/internal/metrics"
	"github.com/abdoElHodaky/arbicore/internal/types"
)

// Config holds the allocator's tunables (spec §4.4).
type Config struct {
	FeeRate             float64
	GasPerTrade         float64
	PositionFractionCap float64 // alpha, default 0.20
	MinProfitThreshold  float64
	MaxIterations       int
	ConvergenceEpsilon  float64
	SolveBudget         time.Duration
}

// DefaultConfig returns the spec-documented defaults.
func DefaultConfig() Config {
	return Config{
		FeeRate:             0.02,
		GasPerTrade:         0,
		PositionFractionCap: 0.20,
		MinProfitThreshold:  1.0,
		MaxIterations:       50,
		ConvergenceEpsilon:  1e-6,
		SolveBudget:         50 * time.Millisecond,
	}
}

// Allocator solves the continuous-relaxed knapsack and rounds to an integer
// ExecutionPlan.
type Allocator struct {
	cfg     Config
	metrics *metrics.Core
}

func New(cfg Config, m *metrics.Core) *Allocator {
	return &Allocator{cfg: cfg, metrics: m}
}

// candidate is one group of opportunities that must be sized equally
// (spec §4.4 Complement handling), flattened to a single price/liquidity/
// edge triple for the solver.
type candidate struct {
	groupID   string // lexicographically smallest member id, for tie-breaking
	members   []types.Opportunity
	price     float64 // combined cost per unit across the group's legs
	priceDec  decimal.Decimal
	liquidity float64 // combined cap: min across members
	edge      float64 // combined edge per unit: sum across members
	feeRate   float64
}

func (c candidate) rate() float64 {
	if c.price <= 0 {
		return 0
	}
	return (c.edge - c.feeRate*c.price) / c.price
}

// Solve computes an ExecutionPlan maximizing expected net profit over
// opportunities subject to available capital (spec §4.4). Empty input or
// non-positive capital yields an empty plan, never an error.
func (a *Allocator) Solve(opportunities []types.Opportunity, availableCapital decimal.Decimal) types.ExecutionPlan {
	start := time.Now()
	deadline := start.Add(a.cfg.SolveBudget)
	defer func() {
		if a.metrics != nil {
			a.metrics.AllocatorSolveLatency.Observe(time.Since(start).Seconds())
		}
	}()

	capital, _ := availableCapital.Float64()
	if len(opportunities) == 0 || capital <= 0 {
		return types.ExecutionPlan{}
	}

	candidates := buildCandidates(opportunities, a.cfg.FeeRate)
	if len(candidates) == 0 {
		return types.ExecutionPlan{}
	}

	x := greedyInit(candidates, capital, a.cfg.PositionFractionCap)
	approximate := a.frankWolfe(candidates, x, capital, deadline)

	qty := roundAndRebudget(candidates, x, capital, a.cfg.PositionFractionCap)

	plan := a.buildPlan(candidates, qty, approximate)
	if a.metrics != nil {
		if approximate {
			a.metrics.AllocatorTimeoutTotal.Inc()
		}
		profit, _ := plan.ExpectedNetProfit.Float64()
		a.metrics.AllocatorPlanProfit.Observe(profit)
	}
	return plan
}

// buildCandidates groups opportunities that must be co-sized (via
// ComplementLegID or PairedLegIDs) using union-find, then flattens each
// group to one combined candidate.
func buildCandidates(opportunities []types.Opportunity, feeRate float64) []candidate {
	byID := make(map[string]types.Opportunity, len(opportunities))
	for _, o := range opportunities {
		byID[o.ID] = o
	}

	parent := make(map[string]string, len(opportunities))
	var find func(string) string
	find = func(id string) string {
		if parent[id] == "" {
			parent[id] = id
		}
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, o := range opportunities {
		find(o.ID)
		if o.ComplementLegID != "" {
			if _, ok := byID[o.ComplementLegID]; ok {
				union(o.ID, o.ComplementLegID)
			}
		}
		for _, pid := range o.PairedLegIDs {
			if _, ok := byID[pid]; ok {
				union(o.ID, pid)
			}
		}
	}

	groups := make(map[string][]types.Opportunity)
	for _, o := range opportunities {
		root := find(o.ID)
		groups[root] = append(groups[root], o)
	}

	candidates := make([]candidate, 0, len(groups))
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

		priceDec := decimal.Zero
		liquidity := decimal.Zero
		edge := decimal.Zero
		for i, m := range members {
			legPrice := decimal.Zero
			for _, leg := range m.Legs {
				legPrice = legPrice.Add(leg.TargetPrice.Decimal())
			}
			priceDec = priceDec.Add(legPrice)
			edge = edge.Add(m.ExpectedEdgePerContract)
			if i == 0 || m.MaxLiquidityPerLeg.LessThan(liquidity) {
				liquidity = m.MaxLiquidityPerLeg
			}
		}
		if priceDec.IsZero() || priceDec.IsNegative() {
			continue // a zero/negative-cost group cannot be priced, skip
		}
		if edge.IsNegative() {
			continue // spec §3: expected_edge_per_contract must be >= 0 to be considered
		}

		price, _ := priceDec.Float64()
		liq, _ := liquidity.Float64()
		e, _ := edge.Float64()

		candidates = append(candidates, candidate{
			groupID:   members[0].ID,
			members:   members,
			price:     price,
			priceDec:  priceDec,
			liquidity: liq,
			edge:      e,
			feeRate:   feeRate,
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].groupID < candidates[j].groupID })
	return candidates
}

// greedyInit fills each candidate, ordered by edge-rate descending, up to
// its per-position and liquidity caps until capital is exhausted (spec
// §4.4 step 1).
func greedyInit(candidates []candidate, capital, alpha float64) []float64 {
	order := rateOrder(candidates)
	x := make([]float64, len(candidates))
	remaining := capital

	for _, i := range order {
		c := candidates[i]
		if c.rate() <= 0 || remaining <= 0 {
			continue
		}
		capUnits := positionCap(c, capital, alpha, remaining)
		x[i] = capUnits
		remaining -= capUnits * c.price
	}
	return x
}

func positionCap(c candidate, capital, alpha, remainingCapital float64) float64 {
	limit := c.liquidity
	if posCap := alpha * capital / c.price; posCap < limit {
		limit = posCap
	}
	if capCap := remainingCapital / c.price; capCap < limit {
		limit = capCap
	}
	if limit < 0 {
		limit = 0
	}
	return limit
}

func rateOrder(candidates []candidate) []int {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ra, rb := candidates[order[a]].rate(), candidates[order[b]].rate()
		if ra != rb {
			return ra > rb
		}
		return candidates[order[a]].groupID < candidates[order[b]].groupID
	})
	return order
}

// frankWolfe runs the conditional gradient iterations of spec §4.4 step 2-3
// in place on x, stopping at convergence, max iterations, or the solve
// deadline (reporting approximate=true in the last case).
func (a *Allocator) frankWolfe(candidates []candidate, x []float64, capital float64, deadline time.Time) (approximate bool) {
	maxIter := a.cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 50
	}
	eps := a.cfg.ConvergenceEpsilon
	if eps <= 0 {
		eps = 1e-6
	}

	order := rateOrder(candidates)
	best := order[0]

	for t := 0; t < maxIter; t++ {
		if time.Now().After(deadline) {
			return true
		}

		s := make([]float64, len(candidates))
		s[best] = positionCap(candidates[best], capital, a.cfg.PositionFractionCap, capital)

		gamma := 2.0 / float64(t+2)
		next := make([]float64, len(x))
		for i := range x {
			next[i] = x[i] + gamma*(s[i]-x[i])
		}

		delta := floats.Distance(next, x, 2)
		copy(x, next)
		if delta < eps {
			return false
		}
	}
	return false
}

// roundAndRebudget discretizes the continuous solution to integers, then
// re-budgets any capital freed by rounding to the opportunity with the
// highest remaining edge-rate whose caps allow one more unit (spec §4.4
// step 4), repeating until no further improvement fits.
func roundAndRebudget(candidates []candidate, x []float64, capital, alpha float64) []int64 {
	qty := make([]int64, len(candidates))
	used := decimal.Zero
	for i, c := range candidates {
		q := int64(x[i])
		if q < 0 {
			q = 0
		}
		qty[i] = q
		used = used.Add(c.priceDec.Mul(decimal.NewFromInt(q)))
	}

	order := rateOrder(candidates)
	remaining := decimal.NewFromFloat(capital).Sub(used)

	for improved := true; improved; {
		improved = false
		for _, i := range order {
			c := candidates[i]
			if c.rate() <= 0 || c.price <= 0 {
				continue
			}
			limit := positionCap(c, capital, alpha, capital) // full liquidity/position cap, ignoring current usage
			if float64(qty[i]+1) > limit {
				continue
			}
			if c.priceDec.LessThanOrEqual(remaining) {
				qty[i]++
				remaining = remaining.Sub(c.priceDec)
				improved = true
				break
			}
		}
	}
	return qty
}

// buildPlan filters groups below the minimum profit threshold, expands each
// surviving group's quantity back onto its member opportunities, and
// orders allocations per the spec §4.4 tie-breaking rule (higher profit,
// then lower price, then lexicographic id).
func (a *Allocator) buildPlan(candidates []candidate, qty []int64, approximate bool) types.ExecutionPlan {
	type alloc struct {
		opportunityID string
		quantity      int64
		profit        decimal.Decimal
		price         decimal.Decimal
	}
	var allocs []alloc
	totalCapital := decimal.Zero
	totalProfit := decimal.Zero

	for i, c := range candidates {
		q := qty[i]
		if q <= 0 {
			continue
		}
		perUnitEdge := decimal.NewFromFloat(c.edge).Sub(decimal.NewFromFloat(a.cfg.FeeRate).Mul(c.priceDec))
		profit := perUnitEdge.Mul(decimal.NewFromInt(q)).Sub(decimal.NewFromFloat(a.cfg.GasPerTrade))
		profitF, _ := profit.Float64()
		if profitF < a.cfg.MinProfitThreshold {
			continue
		}

		for _, m := range c.members {
			allocs = append(allocs, alloc{opportunityID: m.ID, quantity: q, profit: profit, price: c.priceDec})
		}
		totalCapital = totalCapital.Add(c.priceDec.Mul(decimal.NewFromInt(q)))
		totalProfit = totalProfit.Add(profit)
	}

	sort.Slice(allocs, func(i, j int) bool {
		if !allocs[i].profit.Equal(allocs[j].profit) {
			return allocs[i].profit.GreaterThan(allocs[j].profit)
		}
		if !allocs[i].price.Equal(allocs[j].price) {
			return allocs[i].price.LessThan(allocs[j].price)
		}
		return allocs[i].opportunityID < allocs[j].opportunityID
	})

	plan := types.ExecutionPlan{
		TotalCapitalUsed:  totalCapital,
		ExpectedNetProfit: totalProfit,
		Approximate:       approximate,
	}
	for _, al := range allocs {
		plan.Allocations = append(plan.Allocations, types.AllocatedQuantity{
			OpportunityID: al.opportunityID,
			Quantity:      al.quantity,
			Approximate:   approximate,
		})
	}
	return plan
}
