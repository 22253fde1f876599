// Package execution implements the Atomic Executor (C5): parallel
// multi-leg submission, per-leg state tracking, slippage guard, and
// commit-or-rollback, grounded on the teacher's
// internal/trading/execution/engine.go (ExecutionEngine struct shape,
// atomic counters, zap logging) and on the polymarket-arb executor example
// for the aggression/fill-verification/error-classification helpers.
// Per-leg fan-out uses github.com/sourcegraph/conc's WaitGroup (structured
// concurrency, panic-safe); the rollback reversing-order path runs through
// a bounded github.com/panjf2000/ants/v2 pool, mirroring spec §5's "pool of
// executor tasks (C5)".
package execution

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/segmentio/ksuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/arbicore/internal/config"
	"github.com/abdoElHodaky/arbicore/internal/coreerrors"
	"github.com/abdoElHodaky/arbicore/internal/metrics"
	"github.com/abdoElHodaky/arbicore/internal/notify"
	"github.com/abdoElHodaky/arbicore/internal/riskgate"
	"github.com/abdoElHodaky/arbicore/internal/types"
	"github.com/abdoElHodaky/arbicore/internal/venue"
)

// Executor executes multi-leg plans against a registry of per-venue
// capabilities, atomically committing or rolling back (spec §2 C5).
type Executor struct {
	cfg       config.ExecutionConfig
	venues    map[types.Venue]venue.Venue
	riskGate  riskgate.RiskGate
	workers   *ants.Pool
	metrics   *metrics.Core
	log       *zap.Logger

	mu                  sync.Mutex
	consecutiveFailures int
	killSwitch          bool

	gasOracle venue.GasOracle
	notifier  *notify.Publisher
}

// SetGasOracle attaches the chain venue's gas price collaborator. When
// set, preflight rejects any plan touching VenueChainCLOB whose current
// gas price exceeds cfg.MaxGasGwei (spec §4.5 Gas/cost optimization).
func (e *Executor) SetGasOracle(o venue.GasOracle) { e.gasOracle = o }

// SetNotifier attaches an external outcome broadcaster. Every terminal
// trade is published to it after finalize (spec §4.5 terminal outcomes).
func (e *Executor) SetNotifier(n *notify.Publisher) { e.notifier = n }

// NewExecutor constructs an Executor. workerPoolSize bounds the number of
// concurrent rollback reversing-order submissions (spec §5: "a pool of
// executor tasks").
func NewExecutor(cfg config.ExecutionConfig, venues map[types.Venue]venue.Venue, riskGate riskgate.RiskGate, workerPoolSize int, m *metrics.Core, log *zap.Logger) (*Executor, error) {
	pool, err := ants.NewPool(workerPoolSize)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.KindConfigError, "construct executor worker pool")
	}
	return &Executor{cfg: cfg, venues: venues, riskGate: riskGate, workers: pool, metrics: m, log: log}, nil
}

// KillSwitchEngaged reports whether consecutive execution failures have
// tripped the global trading halt (spec §7: cleared only manually).
func (e *Executor) KillSwitchEngaged() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killSwitch
}

// ClearKillSwitch manually resets the consecutive-failure halt (spec §7).
func (e *Executor) ClearKillSwitch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killSwitch = false
	e.consecutiveFailures = 0
}

// Execute runs legs atomically under strategy, returning the terminal
// MultiLegTrade. An engaged kill switch or a failed pre-flight check returns
// a zero-value trade and an error without submitting anything: the kill
// switch an InvariantViolation, pre-flight whatever kind its failing check
// reports (for example VenueRejection for a risk-gate denial).
func (e *Executor) Execute(ctx context.Context, legs []types.Leg, strategy Strategy) (types.MultiLegTrade, error) {
	if e.KillSwitchEngaged() {
		return types.MultiLegTrade{}, coreerrors.New(coreerrors.KindInvariantViolation, "kill switch engaged, refusing to execute")
	}

	if err := e.preflight(ctx, legs); err != nil {
		return types.MultiLegTrade{}, err
	}

	trade := types.MultiLegTrade{
		ID:           ksuid.New().String(),
		StartTime:    time.Now(),
		OverallState: types.TradeExecuting,
	}
	for _, leg := range legs {
		trade.Legs = append(trade.Legs, types.LegExecutionState{Leg: leg, State: types.LegPending})
	}

	deadline := trade.StartTime.Add(e.cfg.ExecutionBudget)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	switch strategy {
	case StrategyMarket:
		e.runMarket(runCtx, &trade, deadline)
	case StrategyLimit:
		e.runLimit(runCtx, &trade, deadline)
	default:
		e.runHybrid(runCtx, &trade, deadline)
	}

	e.finalize(ctx, &trade)
	return trade, nil
}

// preflight validates venue connectivity, capital, and position caps
// before any venue submission (spec §4.5 Pre-flight checks).
func (e *Executor) preflight(ctx context.Context, legs []types.Leg) error {
	if len(legs) == 0 {
		return coreerrors.New(coreerrors.KindVenueRejection, "empty plan")
	}
	for _, leg := range legs {
		v, ok := e.venues[leg.Venue]
		if !ok || !v.Connected() {
			return coreerrors.Newf(coreerrors.KindVenueRejection, "venue %s not connected", leg.Venue)
		}
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		if e.cfg.ExecutionBudget <= 0 {
			return coreerrors.New(coreerrors.KindConfigError, "no execution budget configured")
		}
	}

	capitalNeeded := decimal.Zero
	for _, leg := range legs {
		capitalNeeded = capitalNeeded.Add(leg.TargetPrice.Mul(leg.TargetQuantity))
	}
	check := e.riskGate.CheckTrade(legs, capitalNeeded)
	if !check.Allowed {
		return coreerrors.Newf(coreerrors.KindVenueRejection, "rejected by risk gate: %s", check.Reason)
	}

	if e.gasOracle != nil && e.cfg.MaxGasGwei > 0 {
		touchesChain := false
		for _, leg := range legs {
			if leg.Venue == types.VenueChainCLOB {
				touchesChain = true
				break
			}
		}
		if touchesChain {
			gwei, err := e.gasOracle.Price(ctx, "normal")
			if err != nil {
				return coreerrors.Wrap(err, coreerrors.KindTransientNetwork, "query gas oracle")
			}
			if gwei.GreaterThan(decimal.NewFromFloat(e.cfg.MaxGasGwei)) {
				return coreerrors.Newf(coreerrors.KindVenueRejection, "gas price %s gwei exceeds max %v gwei", gwei, e.cfg.MaxGasGwei)
			}
		}
	}
	return nil
}

// runMarket submits every leg as a market order in parallel, polling until
// all terminal or the deadline elapses (spec §4.5 MARKET).
func (e *Executor) runMarket(ctx context.Context, trade *types.MultiLegTrade, deadline time.Time) {
	var wg conc.WaitGroup
	for i := range trade.Legs {
		i := i
		wg.Go(func() {
			e.submitAndPoll(ctx, &trade.Legs[i], venue.OrderMarket, trade.Legs[i].Leg.TargetPrice, trade.Legs[i].Leg.TargetQuantity, decimal.Zero, decimal.Zero, deadline)
		})
	}
	wg.Wait()
}

// runLimit submits every leg as a limit order at target_price, polling
// until all FILLED or the deadline elapses; unfilled legs are cancelled on
// timeout (spec §4.5 LIMIT).
func (e *Executor) runLimit(ctx context.Context, trade *types.MultiLegTrade, deadline time.Time) {
	var wg conc.WaitGroup
	for i := range trade.Legs {
		i := i
		wg.Go(func() {
			e.submitAndPoll(ctx, &trade.Legs[i], venue.OrderLimit, e.limitPrice(trade.Legs[i]), trade.Legs[i].Leg.TargetQuantity, decimal.Zero, decimal.Zero, deadline)
		})
	}
	wg.Wait()

	for i := range trade.Legs {
		ls := &trade.Legs[i]
		if !ls.State.Terminal() {
			e.cancelLeg(ctx, ls)
		}
	}
}

// limitPrice applies the configured price-aggression nudge to a leg's
// limit order (SPEC_FULL §4 supplement; no-op at the spec's default
// aggression_ticks=0).
func (e *Executor) limitPrice(ls types.LegExecutionState) types.Price {
	return adjustForAggression(ls.Leg.TargetPrice, defaultTickSize, e.cfg.AggressionTicks, ls.Leg.Side)
}

// defaultTickSize matches types.PriceScale (4 fractional digits) absent a
// venue-reported tick size.
var defaultTickSize = decimal.New(1, -4)

// runHybrid runs Phase 1 (LIMIT at target_price for hybrid_fallback_ms)
// then Phase 2 (residual quantity at MARKET for any unfilled leg) until the
// total execution budget elapses (spec §4.5 HYBRID).
func (e *Executor) runHybrid(ctx context.Context, trade *types.MultiLegTrade, deadline time.Time) {
	phase1Deadline := trade.StartTime.Add(e.cfg.HybridFallback)
	if phase1Deadline.After(deadline) {
		phase1Deadline = deadline
	}

	var wg conc.WaitGroup
	for i := range trade.Legs {
		i := i
		wg.Go(func() {
			e.submitAndPoll(ctx, &trade.Legs[i], venue.OrderLimit, e.limitPrice(trade.Legs[i]), trade.Legs[i].Leg.TargetQuantity, decimal.Zero, decimal.Zero, phase1Deadline)
		})
	}
	wg.Wait()

	var wg2 conc.WaitGroup
	for i := range trade.Legs {
		ls := &trade.Legs[i]
		if ls.State.Terminal() {
			continue
		}
		i := i
		wg2.Go(func() {
			e.cancelLeg(ctx, &trade.Legs[i])
			// Phase 1 may have left a PARTIALLY_FILLED leg; the residual
			// order's own fill must add to, not replace, that progress.
			phase1Filled := trade.Legs[i].FilledQuantity
			phase1Cost := trade.Legs[i].AvgFillPrice.Decimal().Mul(phase1Filled)
			residual := trade.Legs[i].Leg.TargetQuantity.Sub(phase1Filled)
			if residual.IsPositive() {
				e.submitAndPoll(ctx, &trade.Legs[i], venue.OrderMarket, trade.Legs[i].Leg.TargetPrice, residual, phase1Filled, phase1Cost, deadline)
			}
		})
		_ = ls
	}
	wg2.Wait()
}

// submitAndPoll submits one leg with retry-on-transient-error, then polls
// its status every PollInterval until terminal or deadline. baseFilled and
// baseCost carry forward quantity already filled by an earlier phase of the
// same leg (HYBRID Phase 1) so this order's own fill accumulates onto it
// instead of replacing it; both are zero for a leg's first submission.
func (e *Executor) submitAndPoll(ctx context.Context, ls *types.LegExecutionState, kind venue.OrderKind, price types.Price, qty decimal.Decimal, baseFilled, baseCost decimal.Decimal, deadline time.Time) {
	v := e.venues[ls.Leg.Venue]

	orderID, err := e.submitWithRetry(ctx, v, ls.Leg.Asset, ls.Leg.Side, kind, qty, price)
	if err != nil {
		ls.State = types.LegFailed
		if e.log != nil {
			e.log.Warn("leg submission failed", zap.String("asset", ls.Leg.Asset.Key()), zap.Error(err))
		}
		return
	}
	ls.State = types.LegSubmitted
	ls.SubmittedAt = time.Now()
	ls.VenueOrderID = orderID

	ticker := time.NewTicker(e.pollInterval())
	defer ticker.Stop()
	for {
		if time.Now().After(deadline) {
			return
		}
		status, err := v.GetOrderStatus(ctx, orderID)
		if err == nil {
			applyStatus(ls, status, baseFilled, baseCost)
			if ls.State.Terminal() {
				return
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Executor) pollInterval() time.Duration {
	if e.cfg.PollInterval <= 0 {
		return 5 * time.Millisecond
	}
	return e.cfg.PollInterval
}

// applyStatus folds a venue status poll into the leg's running state.
// status.FilledQuantity/AvgFillPrice are this order's own cumulative fill
// (repolling the same order is idempotent); baseFilled/baseCost add in
// whatever an earlier phase of this leg already filled, so FilledQuantity
// and AvgFillPrice reflect the leg's total progress, not just this order's.
func applyStatus(ls *types.LegExecutionState, status venue.StatusResult, baseFilled, baseCost decimal.Decimal) {
	next := legStateFromVenue(status.Status)
	if !ls.State.CanTransitionTo(next) && ls.State != next {
		return
	}
	ls.State = next
	ls.FilledQuantity = baseFilled.Add(status.FilledQuantity)
	totalCost := baseCost.Add(status.AvgFillPrice.Decimal().Mul(status.FilledQuantity))
	if ls.FilledQuantity.IsPositive() {
		ls.AvgFillPrice = types.NewPriceFromDecimal(totalCost.Div(ls.FilledQuantity))
	}
	if status.BlockNumber > 0 {
		ls.BlockNumber = status.BlockNumber
	}
}

func legStateFromVenue(status venue.OrderStatus) types.LegState {
	switch status {
	case venue.StatusFilled:
		return types.LegFilled
	case venue.StatusPartiallyFilled:
		return types.LegPartiallyFilled
	case venue.StatusCancelled:
		return types.LegCancelled
	case venue.StatusRejected, venue.StatusFailed:
		return types.LegFailed
	default:
		return types.LegSubmitted
	}
}

// submitWithRetry retries SUBMIT (never any other phase) up to MaxRetries
// times with exponential backoff plus jitter (spec §4.5 Retry policy).
func (e *Executor) submitWithRetry(ctx context.Context, v venue.Venue, asset types.Asset, side types.Side, kind venue.OrderKind, qty decimal.Decimal, price types.Price) (string, error) {
	backoffs := e.cfg.RetryBackoff
	if len(backoffs) == 0 {
		backoffs = []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond}
	}
	maxRetries := e.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := v.PlaceOrder(ctx, asset, side, kind, qty, price)
		if err == nil && result.Status != venue.StatusRejected {
			return result.OrderID, nil
		}
		if err == nil {
			return "", coreerrors.New(coreerrors.KindVenueRejection, "order rejected by venue")
		}
		lastErr = err
		if classifyError(err) != "network" || attempt == maxRetries {
			break
		}
		idx := attempt
		if idx >= len(backoffs) {
			idx = len(backoffs) - 1
		}
		jitter := time.Duration(rand.Int63n(int64(backoffs[idx] / 2)))
		select {
		case <-time.After(backoffs[idx] + jitter):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", coreerrors.Wrap(lastErr, coreerrors.KindTransientNetwork, "order submission failed after retries")
}

func (e *Executor) cancelLeg(ctx context.Context, ls *types.LegExecutionState) {
	if ls.VenueOrderID == "" || ls.State.Terminal() {
		return
	}
	v := e.venues[ls.Leg.Venue]
	if err := v.CancelOrder(ctx, ls.VenueOrderID); err == nil {
		ls.State = types.LegCancelled
	}
}

// finalize evaluates commit-or-rollback, updates the kill-switch streak,
// and emits terminal metrics (spec §4.5 Commit-or-rollback).
func (e *Executor) finalize(ctx context.Context, trade *types.MultiLegTrade) {
	committed := trade.AllLegsFilled() && allWithinSlippage(trade.Legs, e.maxSlippage())

	if committed {
		trade.OverallState = types.TradeCommitted
		trade.RealizedProfit = realizedProfit(trade.Legs)
		trade.WithinBlock = withinBlock(trade.Legs)
		e.recordOutcome(true)
	} else {
		e.rollback(ctx, trade)
		trade.OverallState = types.TradeRolledBack
		trade.RealizedProfit = rollbackLoss(trade.Legs)
		e.recordOutcome(false)
	}

	trade.EndTime = time.Now()
	trade.ExecutionTimeMS = trade.EndTime.Sub(trade.StartTime).Milliseconds()
	e.riskGate.RecordFill(*trade)

	if e.metrics != nil {
		e.metrics.ExecutionLatency.Observe(trade.EndTime.Sub(trade.StartTime).Seconds())
		e.metrics.ExecutionOutcomes.WithLabelValues(string(trade.OverallState)).Inc()
		for _, ls := range trade.Legs {
			e.metrics.LegFillRate.Observe(ls.FillRate())
		}
		if trade.OverallState == types.TradeRolledBack {
			e.metrics.RollbackTotal.Inc()
		}
	}

	e.notifier.PublishOutcome(*trade)
}

func (e *Executor) maxSlippage() float64 {
	if e.cfg.MaxSlippageFraction <= 0 {
		return 0.03
	}
	return e.cfg.MaxSlippageFraction
}

func allWithinSlippage(legs []types.LegExecutionState, maxSlippage float64) bool {
	for _, ls := range legs {
		if !withinSlippage(ls, maxSlippage) {
			return false
		}
	}
	return true
}

// withinSlippage reports whether a filled leg's avg_fill_price deviates
// from target_price by no more than maxSlippage (spec §4.5 Slippage
// guard). A leg not in FILLED never passes.
func withinSlippage(ls types.LegExecutionState, maxSlippage float64) bool {
	if ls.State != types.LegFilled {
		return false
	}
	target := ls.Leg.TargetPrice.Decimal()
	if target.IsZero() {
		return true
	}
	dev := ls.AvgFillPrice.Decimal().Sub(target).Abs()
	frac, _ := dev.Div(target).Float64()
	return frac <= maxSlippage
}

// realizedProfit computes the signed P&L of a terminal trade (spec §3,
// §4.5). A complement set bought entirely on one side (every leg BUY)
// redeems for exactly 1.0 per matched contract; profit is that guaranteed
// payout less the combined fill cost (500 contracts filled at 0.49+0.49:
// 500 − 490 = 10). Fees are not deducted. Any trade touching a SELL leg
// instead nets signed cash flow directly.
func realizedProfit(legs []types.LegExecutionState) decimal.Decimal {
	allBuy := len(legs) > 0
	for _, ls := range legs {
		if ls.Leg.Side != types.SideBuy {
			allBuy = false
			break
		}
	}

	if allBuy {
		cost := decimal.Zero
		matched := legs[0].FilledQuantity
		for _, ls := range legs {
			cost = cost.Add(ls.AvgFillPrice.Decimal().Mul(ls.FilledQuantity))
			if ls.FilledQuantity.LessThan(matched) {
				matched = ls.FilledQuantity
			}
		}
		return matched.Sub(cost)
	}

	net := decimal.Zero
	for _, ls := range legs {
		proceeds := ls.AvgFillPrice.Decimal().Mul(ls.FilledQuantity)
		if ls.Leg.Side == types.SideBuy {
			net = net.Sub(proceeds)
		} else {
			net = net.Add(proceeds)
		}
	}
	return net
}

// withinBlock reports whether every chain-venue leg of a committed trade
// confirmed in the same block (spec §4.5 within_block). A trade touching
// no chain venue, or one whose chain legs never got a block number stamped
// (e.g. a centralized-only execution path), reports false.
func withinBlock(legs []types.LegExecutionState) bool {
	var block uint64
	seen := false
	for _, ls := range legs {
		if ls.Leg.Venue != types.VenueChainCLOB {
			continue
		}
		if ls.BlockNumber == 0 {
			return false
		}
		if !seen {
			block = ls.BlockNumber
			seen = true
			continue
		}
		if ls.BlockNumber != block {
			return false
		}
	}
	return seen
}

// rollbackLoss approximates the net loss of a rolled-back trade as the
// sunk cost of every BUY leg with a non-zero filled quantity before
// rollback; SELL legs are not counted (spec §8 scenario 2: realized_profit <= 0). The reversing
// market order's own fill price is not fed back into the leg record, so
// this is a conservative lower bound rather than the exact round-trip
// loss including reverse-leg slippage.
func rollbackLoss(legs []types.LegExecutionState) decimal.Decimal {
	loss := decimal.Zero
	for _, ls := range legs {
		if ls.Leg.Side != types.SideBuy || ls.FilledQuantity.IsZero() {
			continue
		}
		loss = loss.Sub(ls.AvgFillPrice.Decimal().Mul(ls.FilledQuantity))
	}
	return loss
}

// rollback cancels every SUBMITTED leg and exits every FILLED/
// PARTIALLY_FILLED leg with a reversing market order, awaiting termination
// within the rollback budget (spec §4.5 Commit-or-rollback: Rollback).
func (e *Executor) rollback(ctx context.Context, trade *types.MultiLegTrade) {
	rollbackDeadline := time.Now().Add(e.rollbackBudget())
	rollbackCtx, cancel := context.WithDeadline(ctx, rollbackDeadline)
	defer cancel()

	var wg conc.WaitGroup
	for i := range trade.Legs {
		i := i
		ls := &trade.Legs[i]
		switch ls.State {
		case types.LegSubmitted:
			wg.Go(func() { e.cancelLeg(rollbackCtx, ls) })
		case types.LegFilled, types.LegPartiallyFilled:
			wg.Go(func() { e.submitWorker(rollbackCtx, ls, rollbackDeadline) })
		}
	}
	wg.Wait()
}

// submitWorker runs a reversing-order submission through the bounded ants
// worker pool (spec §5 "pool of executor tasks"), falling back to an
// inline call if the pool is saturated so rollback latency never depends
// on pool headroom.
func (e *Executor) submitWorker(ctx context.Context, ls *types.LegExecutionState, deadline time.Time) {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		reverseSide := types.SideSell
		if ls.Leg.Side == types.SideSell {
			reverseSide = types.SideBuy
		}
		reversed := types.LegExecutionState{
			Leg: types.Leg{
				Asset:          ls.Leg.Asset,
				Side:           reverseSide,
				Venue:          ls.Leg.Venue,
				TargetPrice:    ls.AvgFillPrice,
				TargetQuantity: ls.FilledQuantity,
			},
			State: types.LegPending,
		}
		e.submitAndPoll(ctx, &reversed, venue.OrderMarket, ls.Leg.TargetPrice, ls.FilledQuantity, decimal.Zero, decimal.Zero, deadline)
	}
	if err := e.workers.Submit(task); err != nil {
		task()
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (e *Executor) recordOutcome(success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if success {
		e.consecutiveFailures = 0
		return
	}
	e.consecutiveFailures++
	if e.metrics != nil {
		e.metrics.ConsecutiveFailures.Set(float64(e.consecutiveFailures))
	}
	if e.consecutiveFailures >= e.haltThreshold() {
		e.killSwitch = true
	}
}

func (e *Executor) rollbackBudget() time.Duration {
	if e.cfg.RollbackBudget <= 0 {
		return 60 * time.Millisecond
	}
	return e.cfg.RollbackBudget
}

func (e *Executor) haltThreshold() int {
	if e.cfg.ConsecutiveFailureHalt <= 0 {
		return 3
	}
	return e.cfg.ConsecutiveFailureHalt
}
