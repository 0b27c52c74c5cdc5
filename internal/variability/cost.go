package variability

import (
	"math"

	"queueloss/internal/domain"
)

// VariabilityCost estimates what disorder above the Poisson baseline costs per day.
type VariabilityCost struct {
	ActualMultiplier         float64 `json:"actual_multiplier"`
	IdealMultiplier          float64 `json:"ideal_multiplier"`
	ExtraMultiplier          float64 `json:"extra_multiplier"`
	ExtraWaitPerCustomerMins float64 `json:"extra_wait_per_customer_minutes"`
	DailyCustomers           int     `json:"daily_customers"`
	TotalExtraWaitMinutes    float64 `json:"total_extra_wait_minutes"`
	Cost                     float64 `json:"variability_cost"`
	Severity                 string  `json:"severity"`
}

// EstimateVariabilityCost prices the extra wait caused by variance above the ideal multiplier of 1.
func EstimateVariabilityCost(e domain.EntropyMeasurement, costPerMinute float64, dailyCustomers int, baseWaitMinutes float64) VariabilityCost {
	const ideal = 1.0

	extra := math.Max(0, e.VarianceImpactMultiplier-ideal)
	perCustomer := baseWaitMinutes * extra
	total := perCustomer * float64(dailyCustomers)
	cost := total * costPerMinute

	perHead := 0.0
	if dailyCustomers > 0 {
		perHead = cost / float64(dailyCustomers)
	}

	severity := "very_high"
	switch {
	case perHead < 0.5:
		severity = "low"
	case perHead < 2.0:
		severity = "moderate"
	case perHead < 5.0:
		severity = "high"
	}

	return VariabilityCost{
		ActualMultiplier:         e.VarianceImpactMultiplier,
		IdealMultiplier:          ideal,
		ExtraMultiplier:          extra,
		ExtraWaitPerCustomerMins: perCustomer,
		DailyCustomers:           dailyCustomers,
		TotalExtraWaitMinutes:    total,
		Cost:                     cost,
		Severity:                 severity,
	}
}
