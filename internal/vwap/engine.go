// Package vwap implements the VWAP Engine (C3): a stateless, pure
// computation of execution cost for a (asset, side, quantity) tuple against
// a book snapshot, plus liquidity health metrics and order-split
// suggestion. No example repo in the pack computes VWAP directly; this
// package is grounded on spec §4.3's algorithm and follows the teacher's
// convention of small, side-effect-free analytic functions taking a
// snapshot value (cf. internal/strategy/optimized/mean_reversion_strategy.go)
// rather than a live connection.
package vwap

import (
	"github.com/shopspring/decimal"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

// Thresholds holds the configurable quality/health cutoffs of spec §4.3.
type Thresholds struct {
	MinDepthContracts int64
	MaxSpreadBps      float64
}

// DefaultThresholds returns the spec-documented defaults (min_depth=100,
// max_spread_bps=500).
func DefaultThresholds() Thresholds {
	return Thresholds{MinDepthContracts: 100, MaxSpreadBps: 500}
}

// Walk computes the VWAP for target on side of book, relative to
// quotedPrice, per the greedy level-consumption algorithm of spec §4.3.
func Walk(book types.ReadOnlyBook, side types.Side, target types.Size, quotedPrice types.Price) types.VWAPResult {
	levels := book.Asks
	if side == types.SideSell {
		levels = book.Bids
	}

	result := types.VWAPResult{
		Asset:          book.Asset,
		Side:           side,
		TargetQuantity: target,
		ReferencePrice: quotedPrice,
	}

	if target.IsZero() {
		result.LiquiditySufficient = true
		result.Quality = types.QualityExcellent
		return result
	}

	remaining := target.Decimal()
	cost := decimal.Zero
	var fills []types.Fill

	for _, lvl := range levels {
		if remaining.IsZero() {
			break
		}
		take := lvl.Size.Decimal()
		if take.GreaterThan(remaining) {
			take = remaining
		}
		if take.IsZero() {
			continue
		}
		cost = cost.Add(lvl.Price.Mul(take))
		fills = append(fills, types.Fill{Price: lvl.Price, Size: types.NewSizeFromDecimal(take)})
		remaining = remaining.Sub(take)
	}

	result.Fills = fills
	result.DepthUsed = len(fills)
	result.TotalCost = cost
	result.LiquiditySufficient = remaining.IsZero()

	filled := target.Decimal().Sub(remaining)
	if filled.IsPositive() {
		result.VWAPPrice = types.NewPriceFromDecimal(cost.Div(filled))
	}

	result.SlippageFraction = slippageFraction(side, result.VWAPPrice, quotedPrice)
	result.Quality = classify(result.LiquiditySufficient, result.SlippageFraction)
	return result
}

// slippageFraction computes (vwap - quoted)/quoted for BUY, sign-flipped
// for SELL (spec §4.3). Non-monetary ratio: float64 is acceptable (spec §9).
func slippageFraction(side types.Side, vwap, quoted types.Price) float64 {
	if quoted.IsZero() {
		return 0
	}
	diff := vwap.Decimal().Sub(quoted.Decimal())
	frac, _ := diff.Div(quoted.Decimal()).Float64()
	if side == types.SideSell {
		frac = -frac
	}
	return frac
}

func classify(liquiditySufficient bool, slippage float64) types.Quality {
	if !liquiditySufficient {
		return types.QualityInsufficientLiquidity
	}
	abs := slippage
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs <= 0.005:
		return types.QualityExcellent
	case abs <= 0.02:
		return types.QualityGood
	case abs <= 0.05:
		return types.QualityFair
	default:
		return types.QualityPoor
	}
}

// LiquidityMetrics computes the book-health summary of spec §4.3 over the
// top depthK levels (0 means all levels present in the snapshot).
func LiquidityMetrics(book types.ReadOnlyBook, depthK int, th Thresholds) types.LiquidityMetrics {
	bestBid, hasBid := book.BestBid()
	bestAsk, hasAsk := book.BestAsk()

	var spread types.Price
	var spreadBps float64
	if hasBid && hasAsk {
		spread = bestAsk.Price.Sub(bestBid.Price)
		mid := bestBid.Price.Decimal().Add(bestAsk.Price.Decimal()).Div(decimal.NewFromInt(2))
		if !mid.IsZero() {
			bps, _ := spread.Decimal().Div(mid).Mul(decimal.NewFromInt(10000)).Float64()
			spreadBps = bps
		}
	}

	bidDepth := sumTopK(book.Bids, depthK)
	askDepth := sumTopK(book.Asks, depthK)

	var imbalance float64
	totalDepth := bidDepth.Decimal().Add(askDepth.Decimal())
	if totalDepth.IsPositive() {
		imbalance, _ = bidDepth.Decimal().Div(totalDepth).Float64()
	}

	healthy := totalDepth.GreaterThanOrEqual(decimal.NewFromInt(th.MinDepthContracts)) &&
		(spreadBps <= th.MaxSpreadBps || !hasBid || !hasAsk)

	return types.LiquidityMetrics{
		Spread:         spread,
		SpreadBps:      spreadBps,
		BidDepth:       bidDepth,
		AskDepth:       askDepth,
		DepthImbalance: imbalance,
		Healthy:        healthy,
	}
}

func sumTopK(levels []types.BookLevel, k int) types.Size {
	n := len(levels)
	if k > 0 && k < n {
		n = k
	}
	total := types.NewSize(0)
	for i := 0; i < n; i++ {
		total = total.Add(levels[i].Size)
	}
	return total
}

// SplitOrder produces up to maxChunks sub-order sizes whose individual
// VWAPs are each at least GOOD, by binary-searching the largest size with
// GOOD quality and repeating against the residual (spec §4.3). The sum of
// returned chunk sizes equals target when liquidity allows; a final
// residual chunk (possibly POOR) absorbs whatever full book depth cannot
// satisfy at GOOD quality.
func SplitOrder(book types.ReadOnlyBook, side types.Side, target types.Size, quotedPrice types.Price, maxChunks int) []types.Size {
	var chunks []types.Size
	remaining := target.Int64()

	for i := 0; i < maxChunks && remaining > 0; i++ {
		chunk := largestGoodSize(book, side, remaining, quotedPrice)
		if chunk <= 0 {
			break
		}
		chunks = append(chunks, types.NewSize(chunk))
		remaining -= chunk
	}
	if remaining > 0 {
		chunks = append(chunks, types.NewSize(remaining))
	}
	return chunks
}

// largestGoodSize binary-searches [0, cap] for the largest quantity whose
// VWAP walk is EXCELLENT or GOOD.
func largestGoodSize(book types.ReadOnlyBook, side types.Side, cap int64, quotedPrice types.Price) int64 {
	isGood := func(qty int64) bool {
		r := Walk(book, side, types.NewSize(qty), quotedPrice)
		return r.Quality == types.QualityExcellent || r.Quality == types.QualityGood
	}

	if cap <= 0 || !isGood(1) {
		return 0
	}

	lo, hi := int64(1), cap
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if isGood(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
