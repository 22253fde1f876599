package execution

import (
	"github.com/shopspring/decimal"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

// adjustForAggression nudges a limit order's target price toward the touch
// by aggressionTicks * tickSize, clamped to the valid [0,1] price range and
// rounded to PriceScale (SPEC_FULL §4 supplement, grounded on the
// polymarket-arb executor's adjustPriceForAggression). aggressionTicks=0
// (the spec's conservative default) leaves targetPrice unchanged.
func adjustForAggression(targetPrice types.Price, tickSize decimal.Decimal, aggressionTicks int, side types.Side) types.Price {
	if aggressionTicks == 0 || tickSize.IsZero() {
		return targetPrice
	}

	delta := tickSize.Mul(decimal.NewFromInt(int64(aggressionTicks)))
	adjusted := targetPrice.Decimal()
	if side == types.SideBuy {
		adjusted = adjusted.Add(delta)
	} else {
		adjusted = adjusted.Sub(delta)
	}

	if adjusted.GreaterThan(types.MaxPrice) {
		adjusted = types.MaxPrice
	}
	if adjusted.LessThan(types.MinPrice) {
		adjusted = types.MinPrice
	}
	return types.NewPriceFromDecimal(adjusted)
}
