// Package venue defines the Venue capability (place/cancel/status/balance)
// that C5 executes against, grounded on the teacher's small capability-set
// pattern (spec §9: "deep class hierarchies ... small trait-like capability
// sets") and wrapped per-venue with github.com/sony/gobreaker the way the
// teacher's CircuitBreakerFactory wraps external calls
// (internal/architecture/fx/resilience/circuit_breaker.go).
package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

// OrderKind is the order type placed at a venue (spec §6).
type OrderKind string

const (
	OrderMarket OrderKind = "MARKET"
	OrderLimit  OrderKind = "LIMIT"
)

// OrderStatus is the venue's response status code space (spec §6).
type OrderStatus string

const (
	StatusResting         OrderStatus = "RESTING"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusFailed          OrderStatus = "FAILED"
)

// PlaceResult is the venue's response to place_order (spec §6).
type PlaceResult struct {
	OrderID string
	Status  OrderStatus
}

// StatusResult is the venue's response to get_order_status (spec §6).
type StatusResult struct {
	Status         OrderStatus
	FilledQuantity decimal.Decimal
	AvgFillPrice   types.Price

	// BlockNumber is the chain block a FILLED/PARTIALLY_FILLED chain-venue
	// order was observed confirmed in; zero for a centralized venue or an
	// unconfirmed order (spec §4.5 within_block).
	BlockNumber uint64
}

// Venue is the capability set C5 executes legs through (spec §9). Each
// venue implementation (centralized CLOB, blockchain CLOB) satisfies this
// narrow interface; C5 never depends on a concrete venue type.
type Venue interface {
	Connected() bool
	PlaceOrder(ctx context.Context, asset types.Asset, side types.Side, kind OrderKind, quantity decimal.Decimal, price types.Price) (PlaceResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (StatusResult, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// HealthScore tracks a round-robin-weighted health score for an RPC
// endpoint (blockchain venue), decaying exponentially with observed
// latency and failure rate (spec §4.5 Gas/cost optimization). No example
// repo in the pack implements endpoint health scoring; this is grounded on
// the teacher's CircuitBreakerMetrics' own exponential-decay-free counters,
// generalized here to a continuous score per SPEC_FULL §4.
type HealthScore struct {
	score      float64
	decay      float64
	lastUpdate time.Time
}

// NewHealthScore constructs a HealthScore starting at 1.0 (perfectly
// healthy) with the given decay factor per observation (0 < decay < 1).
func NewHealthScore(decay float64) *HealthScore {
	return &HealthScore{score: 1.0, decay: decay, lastUpdate: time.Now()}
}

// Observe folds in a new latency sample (seconds) and success flag,
// penalizing failures and high latency, with exponential weighting toward
// recent observations.
func (h *HealthScore) Observe(latency time.Duration, success bool) {
	sample := 1.0
	if !success {
		sample = 0.0
	} else {
		// Penalize latency above 200ms, linearly, floored at 0.
		penalty := latency.Seconds() / 0.2
		if penalty > 1 {
			penalty = 1
		}
		sample = 1.0 - penalty
	}
	h.score = h.decay*h.score + (1-h.decay)*sample
	h.lastUpdate = time.Now()
}

// Score returns the current health score in [0, 1].
func (h *HealthScore) Score() float64 { return h.score }

// Pool round-robin selects among scored RPC endpoints, weighted by health
// score (spec §4.5: blockchain venue RPC endpoint selection).
type Pool struct {
	endpoints []string
	scores    []*HealthScore
	next      int
}

// NewPool constructs a Pool over the given endpoints, each starting at
// full health.
func NewPool(endpoints []string, decay float64) *Pool {
	p := &Pool{endpoints: endpoints}
	for range endpoints {
		p.scores = append(p.scores, NewHealthScore(decay))
	}
	return p
}

// Select returns the highest-scoring endpoint starting from a round-robin
// cursor, so that among near-equal scores load still distributes evenly.
func (p *Pool) Select() (endpoint string, idx int) {
	if len(p.endpoints) == 0 {
		return "", -1
	}
	bestIdx := 0
	bestScore := -1.0
	for offset := 0; offset < len(p.endpoints); offset++ {
		i := (p.next + offset) % len(p.endpoints)
		if p.scores[i].Score() > bestScore {
			bestScore = p.scores[i].Score()
			bestIdx = i
		}
	}
	p.next = (bestIdx + 1) % len(p.endpoints)
	return p.endpoints[bestIdx], bestIdx
}

// Observe records a latency/success sample against endpoint idx.
func (p *Pool) Observe(idx int, latency time.Duration, success bool) {
	if idx < 0 || idx >= len(p.scores) {
		return
	}
	p.scores[idx].Observe(latency, success)
}

// GasOracle is the external gas-price collaborator for the blockchain
// venue (spec §6: "GasOracle.price(urgency) -> decimal").
type GasOracle interface {
	Price(ctx context.Context, urgency string) (decimal.Decimal, error)
}
