// Package riskgate defines the RiskGate external collaborator (spec §6:
// "RiskGate.check_trade(legs) -> {allowed, reason}" and
// "RiskGate.record_fill(trade)") plus an in-memory implementation suitable
// for tests and single-process deployments. Risk policy itself (position
// limits, exposure caps) is out of the core's scope per spec §1; the core
// only depends on this narrow interface.
package riskgate

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

// CheckResult is the RiskGate's pre-flight verdict for a candidate set of
// legs (spec §4.5 Pre-flight checks).
type CheckResult struct {
	Allowed bool
	Reason  string
}

// RiskGate is the external collaborator C5 consults before submitting any
// leg and reports fills to after execution (spec §6).
type RiskGate interface {
	CheckTrade(legs []types.Leg, availableCapital decimal.Decimal) CheckResult
	RecordFill(trade types.MultiLegTrade)
}

// InMemory is a RiskGate backed by a fixed available-capital figure and a
// per-asset position cap, suitable for tests and single-node deployments.
type InMemory struct {
	mu                sync.Mutex
	availableCapital  decimal.Decimal
	perAssetPositionCap decimal.Decimal
	fills             []types.MultiLegTrade
}

// NewInMemory constructs an InMemory risk gate.
func NewInMemory(availableCapital, perAssetPositionCap decimal.Decimal) *InMemory {
	return &InMemory{availableCapital: availableCapital, perAssetPositionCap: perAssetPositionCap}
}

// CheckTrade re-queries available capital and per-market position caps
// (spec §4.5 Pre-flight checks).
func (g *InMemory) CheckTrade(legs []types.Leg, requestedCapital decimal.Decimal) CheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if requestedCapital.GreaterThan(g.availableCapital) {
		return CheckResult{Allowed: false, Reason: "exceeds available capital"}
	}
	for _, leg := range legs {
		cost := leg.TargetPrice.Mul(leg.TargetQuantity)
		if cost.GreaterThan(g.perAssetPositionCap) {
			return CheckResult{Allowed: false, Reason: "exceeds per-market position cap for " + leg.Asset.Key()}
		}
	}
	return CheckResult{Allowed: true}
}

// RecordFill appends a terminal trade to the in-memory ledger and, on
// commit, reduces the available-capital figure by the capital committed.
func (g *InMemory) RecordFill(trade types.MultiLegTrade) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fills = append(g.fills, trade)
	if trade.OverallState != types.TradeCommitted {
		return
	}
	for _, ls := range trade.Legs {
		g.availableCapital = g.availableCapital.Sub(ls.AvgFillPrice.Decimal().Mul(ls.FilledQuantity))
	}
}

// SetAvailableCapital updates the capital figure CheckTrade re-queries.
func (g *InMemory) SetAvailableCapital(capital decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.availableCapital = capital
}

// Fills returns a copy of every trade recorded so far, for test assertions.
func (g *InMemory) Fills() []types.MultiLegTrade {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.MultiLegTrade(nil), g.fills...)
}
