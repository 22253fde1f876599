package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/arbicore/internal/config"
	"github.com/abdoElHodaky/arbicore/internal/riskgate"
	"github.com/abdoElHodaky/arbicore/internal/types"
	"github.com/abdoElHodaky/arbicore/internal/venue"
)

func testLeg(assetID string, side types.Side, price, qty string) types.Leg {
	return types.Leg{
		Asset:          types.Asset{ID: assetID, Venue: types.VenueCentralizedCLOB},
		Side:           side,
		TargetPrice:    types.MustPrice(price),
		TargetQuantity: decimal.RequireFromString(qty),
		Venue:          types.VenueCentralizedCLOB,
	}
}

func newTestExecutor(t *testing.T, v venue.Venue, cfg config.ExecutionConfig) *Executor {
	t.Helper()
	rg := riskgate.NewInMemory(decimal.NewFromInt(1_000_000), decimal.NewFromInt(1_000_000))
	exec, err := NewExecutor(cfg, map[types.Venue]venue.Venue{types.VenueCentralizedCLOB: v}, rg, 4, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return exec
}

// Scenario 1 (spec §8): binary complement buy-both, HYBRID, commit.
func TestExecuteScenario1ComplementBuyBothCommits(t *testing.T) {
	mv := venue.NewMockVenue(decimal.NewFromInt(100_000))
	legs := []types.Leg{
		testLeg("YES", types.SideBuy, "0.48", "500"),
		testLeg("NO", types.SideBuy, "0.50", "500"),
	}

	exec := newTestExecutor(t, mv, config.Default().Execution)
	trade, err := exec.Execute(context.Background(), legs, StrategyHybrid)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if trade.OverallState != types.TradeCommitted {
		t.Fatalf("overall_state = %s, want COMMITTED", trade.OverallState)
	}
	if !trade.RealizedProfit.IsPositive() {
		t.Fatalf("realized_profit = %s, want > 0", trade.RealizedProfit)
	}
	if trade.AnySubmitted() {
		t.Fatalf("committed trade must have no SUBMITTED legs")
	}
	if trade.EndTime.Before(trade.StartTime) {
		t.Fatalf("end_time %v before start_time %v", trade.EndTime, trade.StartTime)
	}
}

// Scenario 2 (spec §8): insufficient liquidity causes a slippage-guard
// failure on one leg, forcing rollback of the other.
func TestExecuteScenario2InsufficientLiquidityRollsBack(t *testing.T) {
	mv := venue.NewMockVenue(decimal.NewFromInt(100_000))
	yesAsset := types.Asset{ID: "YES", Venue: types.VenueCentralizedCLOB}
	mv.Behavior[yesAsset.Key()] = venue.OrderBehavior{
		Status:         venue.StatusFilled,
		FilledFraction: 1.0,
		FillPrice:      types.MustPrice("0.60"), // walked up through thin book, well past target 0.48
	}

	legs := []types.Leg{
		testLeg("YES", types.SideBuy, "0.48", "500"),
		testLeg("NO", types.SideBuy, "0.50", "500"),
	}

	exec := newTestExecutor(t, mv, config.Default().Execution)
	trade, err := exec.Execute(context.Background(), legs, StrategyMarket)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if trade.OverallState != types.TradeRolledBack {
		t.Fatalf("overall_state = %s, want ROLLED_BACK", trade.OverallState)
	}
	if trade.AnySubmitted() {
		t.Fatalf("rolled-back trade must have no SUBMITTED legs")
	}
	if trade.RealizedProfit.IsPositive() {
		t.Fatalf("realized_profit = %s, want <= 0", trade.RealizedProfit)
	}
}

// scenario6Venue lets one asset "stick" in RESTING forever while every
// other asset fills immediately, to drive a deadline-triggered rollback.
type scenario6Venue struct {
	mu          sync.Mutex
	stuck       map[string]bool
	orders      map[string]venue.OrderStatus
	orderAssets map[string]string
}

func newScenario6Venue(stuckAssets ...string) *scenario6Venue {
	stuck := make(map[string]bool, len(stuckAssets))
	for _, a := range stuckAssets {
		stuck[a] = true
	}
	return &scenario6Venue{stuck: stuck, orders: make(map[string]venue.OrderStatus), orderAssets: make(map[string]string)}
}

func (v *scenario6Venue) Connected() bool { return true }

func (v *scenario6Venue) PlaceOrder(ctx context.Context, asset types.Asset, side types.Side, kind venue.OrderKind, quantity decimal.Decimal, price types.Price) (venue.PlaceResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := uuid.NewString()
	status := venue.StatusFilled
	if v.stuck[asset.Key()] {
		status = venue.StatusResting
	}
	v.orders[id] = status
	v.orderAssets[id] = asset.Key()
	return venue.PlaceResult{OrderID: id, Status: status}, nil
}

func (v *scenario6Venue) CancelOrder(ctx context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orders[orderID] = venue.StatusCancelled
	return nil
}

func (v *scenario6Venue) GetOrderStatus(ctx context.Context, orderID string) (venue.StatusResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	status := v.orders[orderID]
	filled := decimal.Zero
	if status == venue.StatusFilled {
		filled = decimal.NewFromInt(500)
	}
	return venue.StatusResult{Status: status, FilledQuantity: filled, AvgFillPrice: types.MustPrice("0.50")}, nil
}

func (v *scenario6Venue) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(1_000_000), nil
}

// Scenario 6 (spec §8): HYBRID plan whose third leg never fills under
// either LIMIT or the Phase 2 MARKET resubmission; the execution budget
// elapses and the two filled legs roll back.
func TestExecuteScenario6DeadlineCancelsAndRollsBack(t *testing.T) {
	sv := newScenario6Venue("C")
	legs := []types.Leg{
		testLeg("A", types.SideBuy, "0.50", "500"),
		testLeg("B", types.SideBuy, "0.50", "500"),
		testLeg("C", types.SideBuy, "0.50", "500"),
	}

	cfg := config.Default().Execution
	cfg.HybridFallback = 8 * time.Millisecond
	cfg.ExecutionBudget = 16 * time.Millisecond
	cfg.RollbackBudget = 30 * time.Millisecond
	cfg.PollInterval = time.Millisecond

	exec := newTestExecutor(t, sv, cfg)
	trade, err := exec.Execute(context.Background(), legs, StrategyHybrid)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if trade.OverallState != types.TradeRolledBack {
		t.Fatalf("overall_state = %s, want ROLLED_BACK", trade.OverallState)
	}
	if trade.AnySubmitted() {
		t.Fatalf("rolled-back trade must have no SUBMITTED legs")
	}
}

// Boundary case (spec §8): a single-leg plan commits identically under all
// three strategies.
func TestExecuteSingleLegPlanConsistentAcrossStrategies(t *testing.T) {
	for _, strategy := range []Strategy{StrategyMarket, StrategyLimit, StrategyHybrid} {
		strategy := strategy
		t.Run(string(strategy), func(t *testing.T) {
			mv := venue.NewMockVenue(decimal.NewFromInt(100_000))
			legs := []types.Leg{testLeg("SOLO", types.SideBuy, "0.50", "100")}

			exec := newTestExecutor(t, mv, config.Default().Execution)
			trade, err := exec.Execute(context.Background(), legs, strategy)
			if err != nil {
				t.Fatalf("Execute(%s): %v", strategy, err)
			}
			if trade.OverallState != types.TradeCommitted {
				t.Fatalf("Execute(%s) overall_state = %s, want COMMITTED", strategy, trade.OverallState)
			}
		})
	}
}

// Pre-flight rejection: a disconnected venue must reject before any order
// reaches it, leaving the plan un-submitted.
func TestExecutePreflightRejectsDisconnectedVenue(t *testing.T) {
	mv := venue.NewMockVenue(decimal.NewFromInt(100_000))
	mv.SetConnected(false)
	legs := []types.Leg{testLeg("SOLO", types.SideBuy, "0.50", "100")}

	exec := newTestExecutor(t, mv, config.Default().Execution)
	_, err := exec.Execute(context.Background(), legs, StrategyMarket)
	if err == nil {
		t.Fatalf("expected pre-flight rejection for disconnected venue")
	}
}

// Kill switch: three consecutive rollbacks must halt further execution
// until manually cleared (spec §7).
func TestExecuteKillSwitchEngagesAfterConsecutiveFailures(t *testing.T) {
	mv := venue.NewMockVenue(decimal.NewFromInt(100_000))
	yesAsset := types.Asset{ID: "YES", Venue: types.VenueCentralizedCLOB}
	mv.Behavior[yesAsset.Key()] = venue.OrderBehavior{Status: venue.StatusRejected, RejectReason: "no liquidity"}

	cfg := config.Default().Execution
	cfg.ConsecutiveFailureHalt = 2
	cfg.MaxRetries = 0
	exec := newTestExecutor(t, mv, cfg)

	legs := []types.Leg{
		testLeg("YES", types.SideBuy, "0.48", "500"),
		testLeg("NO", types.SideBuy, "0.50", "500"),
	}

	for i := 0; i < 2; i++ {
		if _, err := exec.Execute(context.Background(), legs, StrategyMarket); err != nil {
			t.Fatalf("Execute iteration %d: %v", i, err)
		}
	}
	if !exec.KillSwitchEngaged() {
		t.Fatalf("expected kill switch engaged after %d consecutive failures", cfg.ConsecutiveFailureHalt)
	}

	if _, err := exec.Execute(context.Background(), legs, StrategyMarket); err == nil {
		t.Fatalf("expected kill switch to block further execution")
	}

	exec.ClearKillSwitch()
	if exec.KillSwitchEngaged() {
		t.Fatalf("ClearKillSwitch did not clear the switch")
	}
}

// hybridPartialFillVenue scripts a leg that partially fills under its
// Phase 1 LIMIT order (and never progresses further), then fully absorbs
// the Phase 2 MARKET residual once cancelled and resubmitted.
type hybridPartialFillVenue struct {
	mu          sync.Mutex
	limitOrder  string
	marketOrder string
}

func (v *hybridPartialFillVenue) Connected() bool { return true }

func (v *hybridPartialFillVenue) PlaceOrder(ctx context.Context, asset types.Asset, side types.Side, kind venue.OrderKind, quantity decimal.Decimal, price types.Price) (venue.PlaceResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := uuid.NewString()
	if kind == venue.OrderLimit {
		v.limitOrder = id
	} else {
		v.marketOrder = id
	}
	return venue.PlaceResult{OrderID: id, Status: venue.StatusPartiallyFilled}, nil
}

func (v *hybridPartialFillVenue) CancelOrder(ctx context.Context, orderID string) error {
	return nil
}

func (v *hybridPartialFillVenue) GetOrderStatus(ctx context.Context, orderID string) (venue.StatusResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch orderID {
	case v.limitOrder:
		return venue.StatusResult{
			Status:         venue.StatusPartiallyFilled,
			FilledQuantity: decimal.NewFromInt(200),
			AvgFillPrice:   types.MustPrice("0.50"),
		}, nil
	case v.marketOrder:
		return venue.StatusResult{
			Status:         venue.StatusFilled,
			FilledQuantity: decimal.NewFromInt(300),
			AvgFillPrice:   types.MustPrice("0.51"),
		}, nil
	default:
		return venue.StatusResult{}, nil
	}
}

func (v *hybridPartialFillVenue) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(1_000_000), nil
}

// Regression test: a leg partially filled (200/500) by HYBRID Phase 1 must
// have its Phase 2 MARKET residual fill (300) accumulate onto that 200,
// not replace it, so FilledQuantity reaches the full 500 and the trade
// commits.
func TestExecuteHybridPhase2AccumulatesOntoPhase1PartialFill(t *testing.T) {
	hv := &hybridPartialFillVenue{}
	legs := []types.Leg{testLeg("X", types.SideBuy, "0.50", "500")}

	cfg := config.Default().Execution
	cfg.HybridFallback = 5 * time.Millisecond
	cfg.ExecutionBudget = 40 * time.Millisecond
	cfg.RollbackBudget = 20 * time.Millisecond
	cfg.PollInterval = time.Millisecond

	exec := newTestExecutor(t, hv, cfg)
	trade, err := exec.Execute(context.Background(), legs, StrategyHybrid)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := trade.Legs[0].FilledQuantity
	want := decimal.NewFromInt(500)
	if !got.Equal(want) {
		t.Fatalf("FilledQuantity = %s, want %s (200 from Phase 1 + 300 from Phase 2)", got, want)
	}
	if trade.OverallState != types.TradeCommitted {
		t.Fatalf("overall_state = %s, want COMMITTED", trade.OverallState)
	}
}
