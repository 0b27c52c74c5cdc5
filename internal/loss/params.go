package loss

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("invalid loss parameters")

// Params are the financial rates, thresholds and heuristics used by Calculator.
// The clamps at the bottom are business heuristics, not physical constants.
type Params struct {
	AvgRevenuePerCustomer      float64 `mapstructure:"avg_revenue_per_customer" json:"avg_revenue_per_customer"`
	CustomerLifetimeValue      float64 `mapstructure:"customer_lifetime_value" json:"customer_lifetime_value"`
	CustomerTimeValuePerMinute float64 `mapstructure:"customer_time_value_per_minute" json:"customer_time_value_per_minute"`
	AcceptableWaitMinutes      float64 `mapstructure:"acceptable_wait_minutes" json:"acceptable_wait_minutes"`

	LaborCostPerHour   float64 `mapstructure:"labor_cost_per_hour" json:"labor_cost_per_hour"`
	OvertimeMultiplier float64 `mapstructure:"overtime_multiplier" json:"overtime_multiplier"`

	WalkawayThresholdMinutes     float64 `mapstructure:"walkaway_threshold_minutes" json:"walkaway_threshold_minutes"`
	WalkawayProbabilityPerMinute float64 `mapstructure:"walkaway_probability_per_minute" json:"walkaway_probability_per_minute"`

	ConservativeFactor float64 `mapstructure:"conservative_factor" json:"conservative_factor"`

	WalkawayProbabilityCap float64 `mapstructure:"walkaway_probability_cap" json:"walkaway_probability_cap"`
	EntropyMultiplierCap   float64 `mapstructure:"entropy_multiplier_cap" json:"entropy_multiplier_cap"`
	ThroughputBuffer       float64 `mapstructure:"throughput_buffer" json:"throughput_buffer"`
	IdleUtilizationBand    float64 `mapstructure:"idle_utilization_band" json:"idle_utilization_band"`
	UnknownUtilization     float64 `mapstructure:"unknown_utilization" json:"unknown_utilization"`
	LifetimeValueShare     float64 `mapstructure:"lifetime_value_share" json:"lifetime_value_share"`
}

// DefaultParams returns the conservative defaults.
func DefaultParams() Params {
	return Params{
		AvgRevenuePerCustomer:      150.0,
		CustomerLifetimeValue:      500.0,
		CustomerTimeValuePerMinute: 2.0,
		AcceptableWaitMinutes:      5.0,

		LaborCostPerHour:   25.0,
		OvertimeMultiplier: 1.5,

		WalkawayThresholdMinutes:     15.0,
		WalkawayProbabilityPerMinute: 0.02,

		ConservativeFactor: 0.7,

		WalkawayProbabilityCap: 0.5,
		EntropyMultiplierCap:   2.0,
		ThroughputBuffer:       1.2,
		IdleUtilizationBand:    0.7,
		UnknownUtilization:     0.5,
		LifetimeValueShare:     0.1,
	}
}

// Validate checks that every rate is usable.
func (p Params) Validate() error {
	nonNegative := []struct {
		name  string
		value float64
	}{
		{"avg_revenue_per_customer", p.AvgRevenuePerCustomer},
		{"customer_lifetime_value", p.CustomerLifetimeValue},
		{"customer_time_value_per_minute", p.CustomerTimeValuePerMinute},
		{"acceptable_wait_minutes", p.AcceptableWaitMinutes},
		{"labor_cost_per_hour", p.LaborCostPerHour},
		{"walkaway_threshold_minutes", p.WalkawayThresholdMinutes},
		{"walkaway_probability_per_minute", p.WalkawayProbabilityPerMinute},
		{"lifetime_value_share", p.LifetimeValueShare},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %g", ErrInvalidParams, f.name, f.value)
		}
	}
	if p.OvertimeMultiplier < 1 {
		return fmt.Errorf("%w: overtime_multiplier must be >= 1, got %g", ErrInvalidParams, p.OvertimeMultiplier)
	}
	if !(p.ConservativeFactor > 0 && p.ConservativeFactor <= 1) {
		return fmt.Errorf("%w: conservative_factor must be in (0, 1], got %g", ErrInvalidParams, p.ConservativeFactor)
	}
	if !(p.WalkawayProbabilityCap >= 0 && p.WalkawayProbabilityCap <= 1) {
		return fmt.Errorf("%w: walkaway_probability_cap must be in [0, 1], got %g", ErrInvalidParams, p.WalkawayProbabilityCap)
	}
	if p.EntropyMultiplierCap < 1 {
		return fmt.Errorf("%w: entropy_multiplier_cap must be >= 1, got %g", ErrInvalidParams, p.EntropyMultiplierCap)
	}
	if p.ThroughputBuffer < 1 {
		return fmt.Errorf("%w: throughput_buffer must be >= 1, got %g", ErrInvalidParams, p.ThroughputBuffer)
	}
	if !(p.IdleUtilizationBand > 0 && p.IdleUtilizationBand <= 1) {
		return fmt.Errorf("%w: idle_utilization_band must be in (0, 1], got %g", ErrInvalidParams, p.IdleUtilizationBand)
	}
	if p.UnknownUtilization < 0 {
		return fmt.Errorf("%w: unknown_utilization must be >= 0, got %g", ErrInvalidParams, p.UnknownUtilization)
	}
	return nil
}
