package loss

import (
	"math"

	"queueloss/internal/domain"
)

// MarginalEstimate is the projected cost of extra arrivals at the current load.
type MarginalEstimate struct {
	AtCapacity             bool    `json:"at_capacity"`
	Utilization            float64 `json:"utilization"`
	AdditionalArrivals     int     `json:"additional_arrivals"`
	MarginalMultiplier     float64 `json:"marginal_multiplier"`
	MarginalCostPerArrival float64 `json:"marginal_cost_per_arrival"`
	TotalMarginalCost      float64 `json:"total_marginal_cost"`
}

// MarginalLoss prices extra arrivals with the M/M/1 wait derivative 1/(1−ρ)².
// At ρ ≥ 1 every extra arrival is a loss and AtCapacity is set.
func (c *Calculator) MarginalLoss(additionalArrivals int, utilization float64) MarginalEstimate {
	m := MarginalEstimate{Utilization: utilization, AdditionalArrivals: additionalArrivals}
	if utilization >= 1 {
		m.AtCapacity = true
		m.MarginalMultiplier = math.Inf(1)
		m.MarginalCostPerArrival = math.Inf(1)
		m.TotalMarginalCost = math.Inf(1)
		return m
	}

	m.MarginalMultiplier = 1 / ((1 - utilization) * (1 - utilization))
	base := c.params.CustomerTimeValuePerMinute * c.params.AcceptableWaitMinutes
	m.MarginalCostPerArrival = base * m.MarginalMultiplier
	m.TotalMarginalCost = m.MarginalCostPerArrival * float64(additionalArrivals)
	return m
}

// ActionROI is the realized return of an action from a before/after comparison.
type ActionROI struct {
	BeforeLoss    float64  `json:"before_loss"`
	AfterLoss     float64  `json:"after_loss"`
	LossReduction float64  `json:"loss_reduction"`
	ActionCost    float64  `json:"action_cost"`
	NetBenefit    float64  `json:"net_benefit"`
	ROIRatio      float64  `json:"roi_ratio"`      // +Inf for a free action with positive reduction
	ROIPercentage float64  `json:"roi_percentage"` // +Inf for a free action with positive reduction
	Profitable    bool     `json:"profitable"`
	PaybackDays   *float64 `json:"payback_days,omitempty"` // nil without a reduction
}

// CalculateActionROI compares two losses against the action's cost.
// Payback assumes the reduction is a daily figure measured over 30 days.
func CalculateActionROI(actionCost float64, before, after domain.FinancialLoss) ActionROI {
	reduction := before.TotalLoss() - after.TotalLoss()
	net := reduction - actionCost

	r := ActionROI{
		BeforeLoss:    before.TotalLoss(),
		AfterLoss:     after.TotalLoss(),
		LossReduction: reduction,
		ActionCost:    actionCost,
		NetBenefit:    net,
		Profitable:    net > 0,
	}

	switch {
	case actionCost > 0:
		r.ROIRatio = reduction / actionCost
		r.ROIPercentage = net / actionCost * 100
	case reduction > 0:
		r.ROIRatio = math.Inf(1)
		r.ROIPercentage = math.Inf(1)
	}

	if reduction > 0 {
		days := actionCost / (reduction / 30)
		r.PaybackDays = &days
	}
	return r
}

// ImprovementAction is a candidate action for recovery projection.
type ImprovementAction struct {
	TargetCategory    domain.LossCategory `json:"target_category"`
	ImprovementFactor float64             `json:"improvement_factor"` // fraction of the category recovered, [0,1]
	Cost              float64             `json:"cost"`
}

// RecoveryDetail is the projection for one action.
type RecoveryDetail struct {
	Category          domain.LossCategory `json:"category"`
	CurrentLoss       float64             `json:"current_loss"`
	ImprovementFactor float64             `json:"improvement_factor"`
	ProjectedRecovery float64             `json:"projected_recovery"`
	ActionCost        float64             `json:"action_cost"`
	NetBenefit        float64             `json:"net_benefit"`
}

// RecoveryProjection sums the projected recovery of a set of actions.
type RecoveryProjection struct {
	TotalCurrentLoss       float64          `json:"total_current_loss"`
	TotalProjectedRecovery float64          `json:"total_projected_recovery"`
	TotalActionCost        float64          `json:"total_action_cost"`
	TotalNetBenefit        float64          `json:"total_net_benefit"`
	ProjectedRemainingLoss float64          `json:"projected_remaining_loss"`
	Details                []RecoveryDetail `json:"details"`
}

// ProjectRecovery applies each action's improvement factor to its category's loss.
// Factors are clamped to [0,1].
func ProjectRecovery(current domain.FinancialLoss, actions []ImprovementAction) RecoveryProjection {
	p := RecoveryProjection{
		TotalCurrentLoss: current.TotalLoss(),
		Details:          make([]RecoveryDetail, 0, len(actions)),
	}

	for _, a := range actions {
		factor := math.Min(1, math.Max(0, a.ImprovementFactor))
		cur := current.Component(a.TargetCategory)
		recovery := cur * factor

		p.TotalProjectedRecovery += recovery
		p.TotalActionCost += a.Cost
		p.Details = append(p.Details, RecoveryDetail{
			Category:          a.TargetCategory,
			CurrentLoss:       cur,
			ImprovementFactor: factor,
			ProjectedRecovery: recovery,
			ActionCost:        a.Cost,
			NetBenefit:        recovery - a.Cost,
		})
	}

	p.TotalNetBenefit = p.TotalProjectedRecovery - p.TotalActionCost
	p.ProjectedRemainingLoss = p.TotalCurrentLoss - p.TotalProjectedRecovery
	return p
}
