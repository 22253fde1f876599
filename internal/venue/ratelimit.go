package venue

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

// RateLimitedVenue wraps a Venue with a token-bucket limit on outbound
// order actions, grounded on the teacher's mitigation.RateLimiter
// (internal/trading/mitigation/rate_limiter.go), adapted from a generic
// named-callable gate to wrap PlaceOrder/CancelOrder directly so a single
// venue adapter can't exceed the exchange's own rate policy regardless of
// how many legs C5 fans out concurrently.
type RateLimitedVenue struct {
	inner   Venue
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewRateLimitedVenue constructs a RateLimitedVenue allowing ratePerSecond
// sustained requests with the given burst, matching the teacher's
// token-bucket shape (RateLimiterConfig.Rate/Burst).
func NewRateLimitedVenue(inner Venue, ratePerSecond float64, burst int, log *zap.Logger) *RateLimitedVenue {
	return &RateLimitedVenue{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		log:     log,
	}
}

func (r *RateLimitedVenue) Connected() bool { return r.inner.Connected() }

func (r *RateLimitedVenue) PlaceOrder(ctx context.Context, asset types.Asset, side types.Side, kind OrderKind, quantity decimal.Decimal, price types.Price) (PlaceResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return PlaceResult{}, err
	}
	return r.inner.PlaceOrder(ctx, asset, side, kind, quantity, price)
}

func (r *RateLimitedVenue) CancelOrder(ctx context.Context, orderID string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.inner.CancelOrder(ctx, orderID)
}

func (r *RateLimitedVenue) GetOrderStatus(ctx context.Context, orderID string) (StatusResult, error) {
	return r.inner.GetOrderStatus(ctx, orderID)
}

func (r *RateLimitedVenue) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return r.inner.GetBalance(ctx)
}

var _ Venue = (*RateLimitedVenue)(nil)
