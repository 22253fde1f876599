package riskgate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

func testLeg(assetID, price, qty string) types.Leg {
	return types.Leg{
		Asset:          types.Asset{ID: assetID, Venue: types.VenueCentralizedCLOB},
		Side:           types.SideBuy,
		TargetPrice:    types.MustPrice(price),
		TargetQuantity: decimal.RequireFromString(qty),
		Venue:          types.VenueCentralizedCLOB,
	}
}

func TestCheckTradeAllowsWithinCapitalAndPositionCap(t *testing.T) {
	gate := NewInMemory(decimal.NewFromInt(10_000), decimal.NewFromInt(5_000))
	legs := []types.Leg{testLeg("YES", "0.48", "500")}

	result := gate.CheckTrade(legs, decimal.NewFromInt(240))

	require.True(t, result.Allowed)
	assert.Empty(t, result.Reason)
}

func TestCheckTradeRejectsOverAvailableCapital(t *testing.T) {
	gate := NewInMemory(decimal.NewFromInt(100), decimal.NewFromInt(5_000))
	legs := []types.Leg{testLeg("YES", "0.48", "500")}

	result := gate.CheckTrade(legs, decimal.NewFromInt(240))

	require.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "available capital")
}

func TestCheckTradeRejectsOverPerAssetPositionCap(t *testing.T) {
	gate := NewInMemory(decimal.NewFromInt(10_000), decimal.NewFromInt(100))
	legs := []types.Leg{testLeg("YES", "0.48", "500")}

	result := gate.CheckTrade(legs, decimal.NewFromInt(240))

	require.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "position cap")
}

func TestRecordFillAccumulatesAndSetAvailableCapitalOverrides(t *testing.T) {
	gate := NewInMemory(decimal.NewFromInt(1_000), decimal.NewFromInt(1_000))
	trade := types.MultiLegTrade{ID: "t1", OverallState: types.TradeCommitted}

	gate.RecordFill(trade)
	require.Len(t, gate.Fills(), 1)
	assert.Equal(t, "t1", gate.Fills()[0].ID)

	gate.SetAvailableCapital(decimal.NewFromInt(50))
	result := gate.CheckTrade([]types.Leg{testLeg("YES", "0.48", "500")}, decimal.NewFromInt(240))
	assert.False(t, result.Allowed)
}
