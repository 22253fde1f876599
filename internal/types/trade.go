package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// LegState is the per-leg execution state machine (spec §3, §4.5):
//
//	PENDING -> SUBMITTED -> {FILLED, PARTIALLY_FILLED, CANCELLED, FAILED}
//	PARTIALLY_FILLED -> FILLED | CANCELLED
type LegState string

const (
	LegPending          LegState = "PENDING"
	LegSubmitted        LegState = "SUBMITTED"
	LegPartiallyFilled  LegState = "PARTIALLY_FILLED"
	LegFilled           LegState = "FILLED"
	LegCancelled        LegState = "CANCELLED"
	LegFailed           LegState = "FAILED"
)

// Terminal reports whether the state admits no further transition.
func (s LegState) Terminal() bool {
	switch s {
	case LegFilled, LegCancelled, LegFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the monotone state machine of spec §3/§4.5.
func (s LegState) CanTransitionTo(next LegState) bool {
	switch s {
	case LegPending:
		return next == LegSubmitted
	case LegSubmitted:
		switch next {
		case LegFilled, LegPartiallyFilled, LegCancelled, LegFailed:
			return true
		}
		return false
	case LegPartiallyFilled:
		return next == LegFilled || next == LegCancelled
	default:
		return false
	}
}

// LegExecutionState tracks one leg of a running or terminal multi-leg trade.
type LegExecutionState struct {
	Leg           Leg
	State         LegState
	SubmittedAt   time.Time
	FilledQuantity decimal.Decimal
	AvgFillPrice  Price
	VenueOrderID  string
	BlockNumber   uint64 // chain venue only: block the fill confirmed in
}

// FillRate returns FilledQuantity / TargetQuantity, or 0 if the target is 0.
func (l LegExecutionState) FillRate() float64 {
	if l.Leg.TargetQuantity.IsZero() {
		return 0
	}
	f, _ := l.FilledQuantity.Div(l.Leg.TargetQuantity).Float64()
	return f
}

// OverallState is the aggregate state of a Multi-Leg Trade (spec §3).
type OverallState string

const (
	TradeExecuting  OverallState = "EXECUTING"
	TradeCommitted  OverallState = "COMMITTED"
	TradeRolledBack OverallState = "ROLLED_BACK"
)

// MultiLegTrade is the aggregate state C5 owns for the lifetime of a plan
// execution; it is created by execute(plan), terminal on commit or
// rollback, and never mutated thereafter (spec §3).
type MultiLegTrade struct {
	ID               string
	Legs             []LegExecutionState
	OverallState     OverallState
	StartTime        time.Time
	EndTime          time.Time
	ExecutionTimeMS  int64
	RealizedProfit   decimal.Decimal
	WithinBlock      bool // blockchain venue only: all legs confirmed in the same block
}

// AllLegsFilled reports whether every leg reached FILLED.
func (t MultiLegTrade) AllLegsFilled() bool {
	for _, l := range t.Legs {
		if l.State != LegFilled {
			return false
		}
	}
	return len(t.Legs) > 0
}

// AnySubmitted reports whether any leg is still in SUBMITTED, which a
// rolled-back trade must never have (spec §8 invariant 5).
func (t MultiLegTrade) AnySubmitted() bool {
	for _, l := range t.Legs {
		if l.State == LegSubmitted {
			return true
		}
	}
	return false
}
