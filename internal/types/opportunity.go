package types

import "github.com/shopspring/decimal"

// Leg is a single venue order within a multi-leg opportunity (spec §3).
// TargetQuantity may be fractional at the allocator's continuous-solver
// stage; the plan handed to C5 always carries an integer Size.
type Leg struct {
	Asset          Asset
	Side           Side
	TargetQuantity decimal.Decimal
	TargetPrice    Price
	Venue          Venue
}

// Opportunity is a candidate multi-leg arbitrage trade proposal (spec §3).
// PairedLegIDs generalizes the spec's single complement_leg_id to N-way
// opportunities (SPEC_FULL §4): every ID in the set must be sized to the
// same quantity as this opportunity.
type Opportunity struct {
	ID                  string
	Legs                []Leg
	ExpectedEdgePerContract decimal.Decimal // must be >= 0 to be considered
	MaxLiquidityPerLeg  decimal.Decimal
	ComplementLegID     string   // spec's original single-pair field, kept for compatibility
	PairedLegIDs        []string // SPEC_FULL generalization to N-way pairing
}

// PrimaryLeg returns the opportunity's first (and, for binary opportunities,
// only) leg, or a zero Leg when there are none.
func (o Opportunity) PrimaryLeg() Leg {
	if len(o.Legs) == 0 {
		return Leg{}
	}
	return o.Legs[0]
}

// AllocatedQuantity is the allocator's decision for one opportunity:
// an integer quantity, always <= the opportunity's liquidity and position
// caps (spec §3 Execution Plan invariant).
type AllocatedQuantity struct {
	OpportunityID string
	Quantity      int64
	Approximate   bool // set when the solver returned the timeout-budget best-effort solution
}

// ExecutionPlan is the allocator's output: a sequence of opportunities with
// assigned integer quantities (spec §3).
type ExecutionPlan struct {
	Allocations        []AllocatedQuantity
	TotalCapitalUsed   decimal.Decimal
	ExpectedNetProfit  decimal.Decimal
	Approximate        bool
}

// IsEmpty reports whether the plan carries no allocations (spec §4.4
// failure modes: empty opportunity list / zero capital / all below
// threshold all produce an empty plan, not an error).
func (p ExecutionPlan) IsEmpty() bool {
	return len(p.Allocations) == 0
}
