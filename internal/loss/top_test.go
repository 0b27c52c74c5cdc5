package loss

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueloss/internal/domain"
)

func TestIdentifyTopLossPoint(t *testing.T) {
	losses := map[string]domain.FinancialLoss{
		"lobby":      {LocationID: "lobby", WaitTimeCost: 50, IdleTimeCost: 10},
		"front_desk": {LocationID: "front_desk", LostThroughputRevenue: 300, WaitTimeCost: 20},
		"spa":        {LocationID: "spa", IdleTimeCost: 5},
	}

	top := IdentifyTopLossPoint(losses)
	require.True(t, top.Found)
	assert.Equal(t, "front_desk", top.LocationID)
	assert.Equal(t, 320.0, top.Amount)
	assert.Equal(t, domain.LossThroughput, top.Category)
	assert.Equal(t, "Demand exceeding capacity", top.PrimaryCause)
	assert.Equal(t, 300.0, top.Breakdown["lost_throughput_revenue"])
}

func TestIdentifyTopLossPoint_TieGoesToSmallestID(t *testing.T) {
	losses := map[string]domain.FinancialLoss{
		"valet":      {WalkawayCost: 100},
		"concierge":  {WalkawayCost: 100},
		"restaurant": {WalkawayCost: 100},
	}
	for i := 0; i < 20; i++ {
		top := IdentifyTopLossPoint(losses)
		assert.Equal(t, "concierge", top.LocationID)
		assert.Equal(t, "Customers leaving before service", top.PrimaryCause)
	}
}

func TestIdentifyTopLossPoint_NoLoss(t *testing.T) {
	assert.False(t, IdentifyTopLossPoint(nil).Found)
	assert.False(t, IdentifyTopLossPoint(map[string]domain.FinancialLoss{"gym": {}}).Found)
}

func TestMarginalLoss(t *testing.T) {
	c := newCalc(t, nil)

	m := c.MarginalLoss(10, 0.5)
	assert.False(t, m.AtCapacity)
	assert.InDelta(t, 4.0, m.MarginalMultiplier, 1e-12)
	// $2/min · 5 min · 4
	assert.InDelta(t, 40.0, m.MarginalCostPerArrival, 1e-9)
	assert.InDelta(t, 400.0, m.TotalMarginalCost, 1e-9)

	full := c.MarginalLoss(10, 1.0)
	assert.True(t, full.AtCapacity)
	assert.True(t, math.IsInf(full.TotalMarginalCost, 1))
}

func TestCalculateActionROI(t *testing.T) {
	before := domain.FinancialLoss{WaitTimeCost: 1000}
	after := domain.FinancialLoss{WaitTimeCost: 400}

	r := CalculateActionROI(200, before, after)
	assert.Equal(t, 600.0, r.LossReduction)
	assert.Equal(t, 400.0, r.NetBenefit)
	assert.Equal(t, 3.0, r.ROIRatio)
	assert.Equal(t, 200.0, r.ROIPercentage)
	assert.True(t, r.Profitable)
	require.NotNil(t, r.PaybackDays)
	assert.InDelta(t, 10.0, *r.PaybackDays, 1e-9)

	free := CalculateActionROI(0, before, after)
	assert.True(t, math.IsInf(free.ROIRatio, 1))

	worse := CalculateActionROI(50, after, before)
	assert.False(t, worse.Profitable)
	assert.Nil(t, worse.PaybackDays)
	assert.Less(t, worse.ROIRatio, 0.0)

	none := CalculateActionROI(0, before, before)
	assert.Zero(t, none.ROIRatio)
}

func TestProjectRecovery(t *testing.T) {
	current := domain.FinancialLoss{WaitTimeCost: 1000, IdleTimeCost: 200}

	p := ProjectRecovery(current, []ImprovementAction{
		{TargetCategory: domain.LossWaitTime, ImprovementFactor: 0.4, Cost: 75},
		{TargetCategory: domain.LossIdleTime, ImprovementFactor: 1.5, Cost: 0},
	})

	assert.Equal(t, 1200.0, p.TotalCurrentLoss)
	assert.InDelta(t, 600.0, p.TotalProjectedRecovery, 1e-9)
	assert.Equal(t, 75.0, p.TotalActionCost)
	assert.InDelta(t, 525.0, p.TotalNetBenefit, 1e-9)
	assert.InDelta(t, 600.0, p.ProjectedRemainingLoss, 1e-9)
	require.Len(t, p.Details, 2)
	assert.Equal(t, 1.0, p.Details[1].ImprovementFactor)
}
