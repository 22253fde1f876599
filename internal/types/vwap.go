package types

import "github.com/shopspring/decimal"

// Quality is the VWAP execution-cost verdict (spec §4.3).
type Quality string

const (
	QualityExcellent           Quality = "EXCELLENT"
	QualityGood                Quality = "GOOD"
	QualityFair                Quality = "FAIR"
	QualityPoor                Quality = "POOR"
	QualityInsufficientLiquidity Quality = "INSUFFICIENT_LIQUIDITY"
)

// Fill is a single level consumed while walking the book for a VWAP
// computation.
type Fill struct {
	Price Price
	Size  Size
}

// VWAPResult is the computed execution-cost snapshot for a (asset, side,
// quantity) tuple (spec §3). It refers to the book snapshot it was computed
// on and is stale after any subsequent update to that asset's book.
type VWAPResult struct {
	Asset             Asset
	Side              Side
	TargetQuantity    Size
	ReferencePrice    Price
	VWAPPrice         Price
	TotalCost         decimal.Decimal
	SlippageFraction  float64 // non-monetary metric: float is acceptable here (spec §9)
	Fills             []Fill
	DepthUsed         int
	LiquiditySufficient bool
	Quality           Quality
}

// FilledSize sums the sizes across Fills.
func (r VWAPResult) FilledSize() Size {
	total := NewSize(0)
	for _, f := range r.Fills {
		total = total.Add(f.Size)
	}
	return total
}

// LiquidityMetrics summarizes book health for a point-in-time snapshot
// (spec §4.3).
type LiquidityMetrics struct {
	Spread          Price
	SpreadBps       float64
	BidDepth        Size
	AskDepth        Size
	DepthImbalance  float64
	Healthy         bool
}
