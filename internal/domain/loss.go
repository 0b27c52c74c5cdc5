package domain

import "time"

// LossCategory names one of the five loss components.
type LossCategory string

const (
	LossWaitTime   LossCategory = "wait_time_cost"
	LossThroughput LossCategory = "lost_throughput_revenue"
	LossWalkaway   LossCategory = "walkaway_cost"
	LossIdleTime   LossCategory = "idle_time_cost"
	LossOvertime   LossCategory = "overtime_cost"
)

// LossCategories is the fixed component order used for breakdowns and tie-breaks.
var LossCategories = []LossCategory{
	LossWaitTime,
	LossThroughput,
	LossWalkaway,
	LossIdleTime,
	LossOvertime,
}

// String returns the string representation of LossCategory.
func (c LossCategory) String() string {
	return string(c)
}

// Cause returns the human-readable cause used in insights.
func (c LossCategory) Cause() string {
	switch c {
	case LossWaitTime:
		return "Excessive customer wait time"
	case LossThroughput:
		return "Demand exceeding capacity"
	case LossWalkaway:
		return "Customers leaving before service"
	case LossIdleTime:
		return "Underutilized capacity"
	case LossOvertime:
		return "Staff overtime from overload"
	default:
		return "Unknown"
	}
}

// FinancialLoss is the conservative money lost at one location for one batch.
// All components are non-negative and already scaled by the conservative factor.
type FinancialLoss struct {
	LocationID      string    `json:"location_id"`
	CalculationDate time.Time `json:"calculation_date"`

	WaitTimeCost          float64 `json:"wait_time_cost"`
	LostThroughputRevenue float64 `json:"lost_throughput_revenue"`
	WalkawayCost          float64 `json:"walkaway_cost"`
	IdleTimeCost          float64 `json:"idle_time_cost"`
	OvertimeCost          float64 `json:"overtime_cost"`

	ExcessWaitSeconds   float64 `json:"excess_wait_seconds"`
	LostCustomers       int     `json:"lost_customers"`
	Walkaways           int     `json:"walkaways"`
	IdleServerSeconds   float64 `json:"idle_server_seconds"`
	OvertimeServerHours float64 `json:"overtime_server_hours"`
}

// TotalLoss returns the sum of the five components.
func (l FinancialLoss) TotalLoss() float64 {
	return l.WaitTimeCost + l.LostThroughputRevenue + l.WalkawayCost + l.IdleTimeCost + l.OvertimeCost
}

// Component returns the value of one category.
func (l FinancialLoss) Component(c LossCategory) float64 {
	switch c {
	case LossWaitTime:
		return l.WaitTimeCost
	case LossThroughput:
		return l.LostThroughputRevenue
	case LossWalkaway:
		return l.WalkawayCost
	case LossIdleTime:
		return l.IdleTimeCost
	case LossOvertime:
		return l.OvertimeCost
	}
	return 0
}

// Breakdown returns the components keyed by category name.
func (l FinancialLoss) Breakdown() map[string]float64 {
	out := make(map[string]float64, len(LossCategories))
	for _, c := range LossCategories {
		out[string(c)] = l.Component(c)
	}
	return out
}

// PrimaryCategory returns the largest component.
// Ties go to the earlier category in LossCategories.
func (l FinancialLoss) PrimaryCategory() LossCategory {
	best := LossCategories[0]
	bestVal := l.Component(best)
	for _, c := range LossCategories[1:] {
		if v := l.Component(c); v > bestVal {
			best, bestVal = c, v
		}
	}
	return best
}
