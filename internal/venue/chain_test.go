package venue

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

func TestChainVenueDelegatesOrderLifecycleToInner(t *testing.T) {
	inner := NewMockVenue(decimal.NewFromInt(1_000))
	cv := NewChainVenue(inner, "0xabc", nil, 0.9)

	if !cv.Connected() {
		t.Fatal("Connected() = false, want true (delegates to inner)")
	}

	asset := types.Asset{ID: "YES", Venue: types.VenueChainCLOB}
	result, err := cv.PlaceOrder(context.Background(), asset, types.SideBuy, OrderMarket, decimal.NewFromInt(10), types.MustPrice("0.50"))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.OrderID == "" {
		t.Fatal("PlaceOrder returned empty OrderID")
	}
}

func TestChainVenueGetOrderStatusSkipsRPCWhenNotFilled(t *testing.T) {
	inner := NewMockVenue(decimal.NewFromInt(1_000))
	asset := types.Asset{ID: "YES", Venue: types.VenueChainCLOB}
	inner.Behavior[asset.Key()] = OrderBehavior{Status: StatusResting, FilledFraction: 0}

	// No endpoints configured: any attempt to dial an RPC endpoint for a
	// non-terminal order would surface here as an error, since Pool.Select
	// has nothing to select.
	cv := NewChainVenue(inner, "0xabc", nil, 0.9)

	result, err := cv.PlaceOrder(context.Background(), asset, types.SideBuy, OrderMarket, decimal.NewFromInt(10), types.MustPrice("0.50"))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	status, err := cv.GetOrderStatus(context.Background(), result.OrderID)
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if status.BlockNumber != 0 {
		t.Fatalf("BlockNumber = %d, want 0 for a RESTING order (no RPC lookup attempted)", status.BlockNumber)
	}
}
