package engine

import (
	"fmt"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/idhash"
	"queueloss/internal/loss"
)

// Band is a recovery range expressed as fractions of a loss amount.
type Band struct {
	Min float64 `mapstructure:"min" json:"min"`
	Max float64 `mapstructure:"max" json:"max"`
}

// Policy holds the cause → action table parameters.
type Policy struct {
	PeakStaffHourlyCost float64 `mapstructure:"peak_staff_hourly_cost" json:"peak_staff_hourly_cost"`
	DefaultPeakHours    int     `mapstructure:"default_peak_hours" json:"default_peak_hours"`
	AddCapacityCost     float64 `mapstructure:"add_capacity_cost" json:"add_capacity_cost"`
	QueueManagementCost float64 `mapstructure:"queue_management_cost" json:"queue_management_cost"`

	WaitRecovery     Band `mapstructure:"wait_recovery" json:"wait_recovery"`
	CapacityRecovery Band `mapstructure:"capacity_recovery" json:"capacity_recovery"`
	WalkawayRecovery Band `mapstructure:"walkaway_recovery" json:"walkaway_recovery"`
	IdleRecovery     Band `mapstructure:"idle_recovery" json:"idle_recovery"`
	GeneralRecovery  Band `mapstructure:"general_recovery" json:"general_recovery"`

	WaitConfidence     float64 `mapstructure:"wait_confidence" json:"wait_confidence"`
	CapacityConfidence float64 `mapstructure:"capacity_confidence" json:"capacity_confidence"`
	WalkawayConfidence float64 `mapstructure:"walkaway_confidence" json:"walkaway_confidence"`
	IdleConfidence     float64 `mapstructure:"idle_confidence" json:"idle_confidence"`
	GeneralConfidence  float64 `mapstructure:"general_confidence" json:"general_confidence"`
}

// DefaultPolicy returns the standard recommendation table.
// Peak staffing is priced at the given hourly labor rate.
func DefaultPolicy(laborCostPerHour float64) Policy {
	return Policy{
		PeakStaffHourlyCost: laborCostPerHour,
		DefaultPeakHours:    3,
		AddCapacityCost:     200,
		QueueManagementCost: 50,

		WaitRecovery:     Band{Min: 0.30, Max: 0.50},
		CapacityRecovery: Band{Min: 0.40, Max: 0.70},
		WalkawayRecovery: Band{Min: 0.40, Max: 0.60},
		IdleRecovery:     Band{Min: 0.30, Max: 0.50},
		GeneralRecovery:  Band{Min: 0.10, Max: 0.20},

		WaitConfidence:     0.8,
		CapacityConfidence: 0.85,
		WalkawayConfidence: 0.75,
		IdleConfidence:     0.7,
		GeneralConfidence:  0.5,
	}
}

// recommend picks the single action for the day's top loss point.
func (e *Engine) recommend(date time.Time, top loss.TopLoss, analyses map[string]LocationAnalysis) domain.ActionRecommendation {
	a, ok := analyses[top.LocationID]
	if !top.Found || !ok {
		return e.dataQualityAction(date)
	}

	switch top.Category {
	case domain.LossWaitTime:
		return e.peakStaffAction(date, a)
	case domain.LossThroughput:
		if a.Queue != nil && a.Queue.IsUnstable() {
			return e.capacityAction(date, a)
		}
		return e.generalAction(date, a)
	case domain.LossWalkaway:
		return e.queueManagementAction(date, a)
	case domain.LossIdleTime:
		return e.scheduleAction(date, a)
	default:
		return e.generalAction(date, a)
	}
}

func (e *Engine) newAction(date time.Time, location string, actionType domain.ActionType) domain.ActionRecommendation {
	return domain.ActionRecommendation{
		RecommendationID: idhash.ComputeRecommendationID(date, location, actionType),
		Date:             date,
		LocationID:       location,
		ActionType:       actionType,
		Status:           domain.ActionPending,
	}
}

func (e *Engine) peakStaffAction(date time.Time, a LocationAnalysis) domain.ActionRecommendation {
	p := e.policy
	waitLoss := a.Loss.WaitTimeCost

	peakHours := a.Patterns.PeakHours
	hours := len(peakHours)
	if hours == 0 {
		hours = p.DefaultPeakHours
	}

	r := e.newAction(date, a.LocationID, domain.ActionAddStaffPeak)
	r.TargetCategory = domain.LossWaitTime
	r.Description = fmt.Sprintf("Add 1 staff member during peak hours %v to reduce wait times", peakHours)
	r.MinRecoverable = waitLoss * p.WaitRecovery.Min
	r.MaxRecoverable = waitLoss * p.WaitRecovery.Max
	r.ActionCost = p.PeakStaffHourlyCost * float64(hours)
	r.ConfidenceScore = p.WaitConfidence
	r.Justification = fmt.Sprintf(
		"Little's Law: adding service capacity lowers utilization ρ, and queue wait "+
			"Wq grows as ρ/(μ(1−ρ)), so a small capacity gain at peak removes a large share of waiting. "+
			"Peak hours identified: %v.", peakHours)
	r.Supporting = map[string]float64{
		"current_wait_loss": waitLoss,
		"peak_hours_count":  float64(hours),
	}
	if a.Queue != nil {
		r.Supporting["utilization"] = a.DisplayRho
		r.Supporting["avg_wait_seconds"] = a.Queue.Wq
	}
	return r
}

func (e *Engine) capacityAction(date time.Time, a LocationAnalysis) domain.ActionRecommendation {
	p := e.policy
	throughputLoss := a.Loss.LostThroughputRevenue

	r := e.newAction(date, a.LocationID, domain.ActionAddCapacity)
	r.TargetCategory = domain.LossThroughput
	r.Description = "Add temporary service capacity during peak demand periods"
	r.MinRecoverable = throughputLoss * p.CapacityRecovery.Min
	r.MaxRecoverable = throughputLoss * p.CapacityRecovery.Max
	r.ActionCost = p.AddCapacityCost
	r.ConfidenceScore = p.CapacityConfidence
	r.Justification = fmt.Sprintf(
		"Utilization ρ = %.2f >= 1.0: the queue grows without bound at current capacity. "+
			"Adding servers brings ρ = λ/(c·μ) below 1.0 and stabilizes the system.", a.DisplayRho)
	r.Supporting = map[string]float64{
		"current_utilization": a.DisplayRho,
		"throughput_loss":     throughputLoss,
		"lost_customers":      float64(a.Loss.LostCustomers),
	}
	return r
}

func (e *Engine) queueManagementAction(date time.Time, a LocationAnalysis) domain.ActionRecommendation {
	p := e.policy
	walkawayLoss := a.Loss.WalkawayCost

	r := e.newAction(date, a.LocationID, domain.ActionQueueManagement)
	r.TargetCategory = domain.LossWalkaway
	r.Description = "Implement virtual queue notification to reduce walkaway rate"
	r.MinRecoverable = walkawayLoss * p.WalkawayRecovery.Min
	r.MaxRecoverable = walkawayLoss * p.WalkawayRecovery.Max
	r.ActionCost = p.QueueManagementCost
	r.ConfidenceScore = p.WalkawayConfidence
	r.Justification = fmt.Sprintf(
		"Estimated %d customers walked away. Virtual queuing gives waiting customers certainty "+
			"and lowers abandonment probability as in the Erlang-A model.", a.Loss.Walkaways)
	r.Supporting = map[string]float64{
		"estimated_walkaways": float64(a.Loss.Walkaways),
		"walkaway_loss":       walkawayLoss,
	}
	return r
}

func (e *Engine) scheduleAction(date time.Time, a LocationAnalysis) domain.ActionRecommendation {
	p := e.policy
	idleLoss := a.Loss.IdleTimeCost

	predictability := string(a.Patterns.Predictability)
	if predictability == "" {
		predictability = "unknown"
	}

	r := e.newAction(date, a.LocationID, domain.ActionScheduleOptimization)
	r.TargetCategory = domain.LossIdleTime
	r.Description = "Adjust staff scheduling to match demand patterns"
	r.MinRecoverable = idleLoss * p.IdleRecovery.Min
	r.MaxRecoverable = idleLoss * p.IdleRecovery.Max
	r.ActionCost = 0
	r.ConfidenceScore = p.IdleConfidence
	r.Justification = fmt.Sprintf(
		"Utilization well below target means capacity does not follow demand. "+
			"Demand predictability: %s. Shifting staff to demand patterns reduces idle cost.", predictability)
	r.Supporting = map[string]float64{
		"idle_loss":         idleLoss,
		"idle_server_hours": a.Loss.IdleServerSeconds / 3600,
		"avg_hourly_cv":     a.Patterns.AvgCV,
	}
	return r
}

func (e *Engine) generalAction(date time.Time, a LocationAnalysis) domain.ActionRecommendation {
	p := e.policy
	total := a.TotalLoss

	r := e.newAction(date, a.LocationID, domain.ActionOperationalReview)
	r.TargetCategory = a.Loss.PrimaryCategory()
	r.Description = "Review operations during highest-loss periods"
	r.MinRecoverable = total * p.GeneralRecovery.Min
	r.MaxRecoverable = total * p.GeneralRecovery.Max
	r.ActionCost = 0
	r.ConfidenceScore = p.GeneralConfidence
	r.Justification = fmt.Sprintf(
		"Total calculated loss: $%.2f. No single queueing lever dominates; "+
			"a detailed operational review is needed to target improvements.", total)
	r.Supporting = a.Loss.Breakdown()
	r.Supporting["total_loss"] = total
	return r
}

func (e *Engine) dataQualityAction(date time.Time) domain.ActionRecommendation {
	r := e.newAction(date, "general", domain.ActionDataQuality)
	r.Description = "Improve data collection to enable analysis"
	r.Justification = "Insufficient data for a queueing-based recommendation"
	return r
}
