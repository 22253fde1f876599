package venue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

// MockVenue is an in-memory Venue for tests and paper-trading. Each order
// is resolved deterministically according to the Behavior table registered
// against its asset, letting tests script exact fills, partial fills,
// rejections, or failures per scenario (spec §8 end-to-end scenarios).
type MockVenue struct {
	mu        sync.Mutex
	connected bool
	orders    map[string]*mockOrder
	balance   decimal.Decimal

	// Behavior maps an asset key to the fill outcome PlaceOrder should
	// produce for it; defaults to an immediate full fill at the
	// requested price when absent.
	Behavior map[string]OrderBehavior
}

// OrderBehavior scripts a deterministic venue response for one asset.
type OrderBehavior struct {
	Status         OrderStatus
	FilledFraction float64 // fraction of requested quantity filled
	FillPrice      types.Price
	RejectReason   string
}

type mockOrder struct {
	asset    types.Asset
	side     types.Side
	kind     OrderKind
	quantity decimal.Decimal
	price    types.Price
	behavior OrderBehavior
}

// NewMockVenue constructs a connected MockVenue with the given starting
// balance.
func NewMockVenue(balance decimal.Decimal) *MockVenue {
	return &MockVenue{
		connected: true,
		orders:    make(map[string]*mockOrder),
		balance:   balance,
		Behavior:  make(map[string]OrderBehavior),
	}
}

func (m *MockVenue) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *MockVenue) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockVenue) PlaceOrder(ctx context.Context, asset types.Asset, side types.Side, kind OrderKind, quantity decimal.Decimal, price types.Price) (PlaceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	behavior, ok := m.Behavior[asset.Key()]
	if !ok {
		behavior = OrderBehavior{Status: StatusFilled, FilledFraction: 1.0, FillPrice: price}
	}
	if behavior.Status == StatusRejected {
		return PlaceResult{Status: StatusRejected}, nil
	}

	orderID := uuid.NewString()
	m.orders[orderID] = &mockOrder{asset: asset, side: side, kind: kind, quantity: quantity, price: price, behavior: behavior}

	status := behavior.Status
	if status == "" {
		status = StatusResting
	}
	return PlaceResult{OrderID: orderID, Status: status}, nil
}

func (m *MockVenue) CancelOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.behavior.Status = StatusCancelled
	}
	return nil
}

func (m *MockVenue) GetOrderStatus(ctx context.Context, orderID string) (StatusResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return StatusResult{}, nil
	}

	filledQty := o.quantity.Mul(decimal.NewFromFloat(o.behavior.FilledFraction))
	fillPrice := o.behavior.FillPrice
	if fillPrice.IsZero() {
		fillPrice = o.price
	}
	return StatusResult{
		Status:         o.behavior.Status,
		FilledQuantity: filledQty,
		AvgFillPrice:   fillPrice,
	}, nil
}

func (m *MockVenue) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}
