package domain

import "math"

// DefaultMinDataPoints is the smallest batch Little's Law is computed on.
const DefaultMinDataPoints = 10

// DefaultDisplayRhoCap bounds utilization in human-facing views.
const DefaultDisplayRhoCap = 2.0

// LittlesLawResult holds one Little's Law solution for a batch.
// Rho is the raw utilization; use DisplayRho for presentation.
type LittlesLawResult struct {
	L          float64 `json:"avg_in_system"`   // mean customers in system
	LambdaRate float64 `json:"arrival_rate"`    // arrivals per second
	W          float64 `json:"avg_system_time"` // seconds in system
	Lq         float64 `json:"avg_queue_length"`
	Wq         float64 `json:"avg_wait_time"` // seconds waiting
	Rho        float64 `json:"utilization"`
	Mu         float64 `json:"service_rate"` // per-server completions per second, 0 if unknown

	DataPointsUsed int     `json:"data_points_used"`
	MinDataPoints  int     `json:"min_data_points"`
	CILower        float64 `json:"ci_lower"`
	CIUpper        float64 `json:"ci_upper"`
	CILevel        float64 `json:"ci_level"`
}

// IsValid reports whether the result is backed by enough data.
func (r LittlesLawResult) IsValid() bool {
	return r.DataPointsUsed >= r.MinDataPoints && r.LambdaRate > 0
}

// IsUnstable reports whether the queue grows without bound (ρ ≥ 1).
func (r LittlesLawResult) IsUnstable() bool {
	return r.Rho >= 1.0
}

// DisplayRho returns Rho capped at limit (DefaultDisplayRhoCap when limit ≤ 0).
func (r LittlesLawResult) DisplayRho(limit float64) float64 {
	if limit <= 0 {
		limit = DefaultDisplayRhoCap
	}
	return math.Min(r.Rho, limit)
}
