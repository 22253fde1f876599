package vwap

import (
	"testing"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

func lvl(price string, size int64) types.BookLevel {
	return types.BookLevel{Price: types.MustPrice(price), Size: types.NewSize(size)}
}

// Scenario 3 (spec §8): VWAP walk-up blocks trade.
func TestWalkScenario3PoorQuality(t *testing.T) {
	book := types.ReadOnlyBook{
		Asset: types.Asset{ID: "YES"},
		Asks:  []types.BookLevel{lvl("0.52", 200), lvl("0.54", 300), lvl("0.58", 500)},
	}
	result := Walk(book, types.SideBuy, types.NewSize(1000), types.MustPrice("0.52"))

	if !result.LiquiditySufficient {
		t.Fatal("expected liquidity sufficient")
	}
	wantCost := types.MustPrice("0.52").Mul(types.NewSize(200).Decimal()).
		Add(types.MustPrice("0.54").Mul(types.NewSize(300).Decimal())).
		Add(types.MustPrice("0.58").Mul(types.NewSize(500).Decimal()))
	if !result.TotalCost.Equal(wantCost) {
		t.Fatalf("total cost = %s, want %s", result.TotalCost, wantCost)
	}
	if result.Quality != types.QualityPoor {
		t.Fatalf("quality = %s, want POOR (slippage=%.4f)", result.Quality, result.SlippageFraction)
	}
}

func TestWalkEmptyBookInsufficientLiquidity(t *testing.T) {
	book := types.ReadOnlyBook{Asset: types.Asset{ID: "YES"}}
	result := Walk(book, types.SideBuy, types.NewSize(100), types.MustPrice("0.50"))
	if result.Quality != types.QualityInsufficientLiquidity {
		t.Fatalf("quality = %s, want INSUFFICIENT_LIQUIDITY", result.Quality)
	}
	if len(result.Fills) != 0 {
		t.Fatalf("expected no fills, got %+v", result.Fills)
	}
}

func TestWalkZeroQuantityExcellent(t *testing.T) {
	book := types.ReadOnlyBook{
		Asset: types.Asset{ID: "YES"},
		Asks:  []types.BookLevel{lvl("0.50", 100)},
	}
	result := Walk(book, types.SideBuy, types.NewSize(0), types.MustPrice("0.50"))
	if result.Quality != types.QualityExcellent {
		t.Fatalf("quality = %s, want EXCELLENT", result.Quality)
	}
	if !result.TotalCost.IsZero() {
		t.Fatalf("expected zero cost, got %s", result.TotalCost)
	}
}

// Invariant 3 (spec §8): liquidity_sufficient=true implies
// sum(filled)=target and vwap=total_cost/target.
func TestWalkInvariantSufficientLiquidity(t *testing.T) {
	book := types.ReadOnlyBook{
		Asset: types.Asset{ID: "YES"},
		Asks:  []types.BookLevel{lvl("0.50", 1000)},
	}
	result := Walk(book, types.SideBuy, types.NewSize(400), types.MustPrice("0.50"))
	if !result.LiquiditySufficient {
		t.Fatal("expected sufficient liquidity")
	}
	if !result.FilledSize().Equal(types.NewSize(400)) {
		t.Fatalf("filled size = %s, want 400", result.FilledSize())
	}
	wantVWAP := result.TotalCost.Div(types.NewSize(400).Decimal())
	if !result.VWAPPrice.Decimal().Equal(wantVWAP) {
		t.Fatalf("vwap = %s, want %s", result.VWAPPrice, wantVWAP)
	}
}

// Order-split preservation law (spec §8): chunk sizes sum to target.
func TestSplitOrderPreservesQuantity(t *testing.T) {
	book := types.ReadOnlyBook{
		Asset: types.Asset{ID: "YES"},
		Asks: []types.BookLevel{
			lvl("0.50", 50), lvl("0.505", 50), lvl("0.51", 50),
			lvl("0.60", 500), lvl("0.70", 1000),
		},
	}
	chunks := SplitOrder(book, types.SideBuy, types.NewSize(600), types.MustPrice("0.50"), 4)

	var sum int64
	for _, c := range chunks {
		sum += c.Int64()
	}
	if sum != 600 {
		t.Fatalf("chunk sizes sum to %d, want 600", sum)
	}
}

func TestLiquidityMetricsHealthy(t *testing.T) {
	book := types.ReadOnlyBook{
		Bids: []types.BookLevel{lvl("0.49", 600)},
		Asks: []types.BookLevel{lvl("0.50", 600)},
	}
	m := LiquidityMetrics(book, 0, DefaultThresholds())
	if !m.Healthy {
		t.Fatalf("expected healthy book, got %+v", m)
	}
	if m.BidDepth.Int64() != 600 || m.AskDepth.Int64() != 600 {
		t.Fatalf("unexpected depths: %+v", m)
	}
}

func TestLiquidityMetricsUnhealthyWideSpread(t *testing.T) {
	book := types.ReadOnlyBook{
		Bids: []types.BookLevel{lvl("0.10", 200)},
		Asks: []types.BookLevel{lvl("0.90", 200)},
	}
	m := LiquidityMetrics(book, 0, DefaultThresholds())
	if m.Healthy {
		t.Fatalf("expected unhealthy book due to wide spread, got %+v", m)
	}
}
