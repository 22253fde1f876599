package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

// BreakerVenue wraps a Venue with a per-venue github.com/sony/gobreaker
// circuit breaker, grounded on the teacher's CircuitBreakerFactory
// (internal/architecture/fx/resilience/circuit_breaker.go): the same
// ReadyToTrip failure-ratio policy and OnStateChange logging, adapted to
// wrap individual Venue operations instead of generic named callables.
type BreakerVenue struct {
	inner Venue
	cb    *gobreaker.CircuitBreaker
	log   *zap.Logger
}

// NewBreakerVenue constructs a BreakerVenue named name, tripping after 10
// requests with a >=50% failure ratio within a 30s window, matching the
// teacher's DefaultSettings.
func NewBreakerVenue(name string, inner Venue, log *zap.Logger) *BreakerVenue {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.Info("venue circuit breaker state changed",
					zap.String("venue", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		},
	}
	return &BreakerVenue{inner: inner, cb: gobreaker.NewCircuitBreaker(settings), log: log}
}

func (b *BreakerVenue) Connected() bool { return b.inner.Connected() }

func (b *BreakerVenue) PlaceOrder(ctx context.Context, asset types.Asset, side types.Side, kind OrderKind, quantity decimal.Decimal, price types.Price) (PlaceResult, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.PlaceOrder(ctx, asset, side, kind, quantity, price)
	})
	if err != nil {
		return PlaceResult{}, err
	}
	return result.(PlaceResult), nil
}

func (b *BreakerVenue) CancelOrder(ctx context.Context, orderID string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.CancelOrder(ctx, orderID)
	})
	return err
}

func (b *BreakerVenue) GetOrderStatus(ctx context.Context, orderID string) (StatusResult, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetOrderStatus(ctx, orderID)
	})
	if err != nil {
		return StatusResult{}, err
	}
	return result.(StatusResult), nil
}

func (b *BreakerVenue) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetBalance(ctx)
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return result.(decimal.Decimal), nil
}
