package venue

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

func TestRateLimitedVenueBurstThenThrottles(t *testing.T) {
	inner := NewMockVenue(decimal.NewFromInt(100_000))
	rl := NewRateLimitedVenue(inner, 1000, 2, nil)

	asset := types.Asset{ID: "YES", Venue: types.VenueCentralizedCLOB}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		if _, err := rl.PlaceOrder(ctx, asset, types.SideBuy, OrderMarket, decimal.NewFromInt(10), types.MustPrice("0.50")); err != nil {
			t.Fatalf("PlaceOrder %d: %v", i, err)
		}
	}
}

func TestRateLimitedVenueRespectsContextCancellation(t *testing.T) {
	inner := NewMockVenue(decimal.NewFromInt(100_000))
	rl := NewRateLimitedVenue(inner, 0.001, 1, nil) // practically never refills within the test window

	asset := types.Asset{ID: "YES", Venue: types.VenueCentralizedCLOB}

	ctx := context.Background()
	if _, err := rl.PlaceOrder(ctx, asset, types.SideBuy, OrderMarket, decimal.NewFromInt(10), types.MustPrice("0.50")); err != nil {
		t.Fatalf("first PlaceOrder (burst): %v", err)
	}

	shortCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := rl.PlaceOrder(shortCtx, asset, types.SideBuy, OrderMarket, decimal.NewFromInt(10), types.MustPrice("0.50")); err == nil {
		t.Fatal("expected a context-deadline error once the burst allowance is exhausted")
	}
}
