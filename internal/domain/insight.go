package domain

import "time"

// DailyInsight is the one-per-day summary produced by the engine.
type DailyInsight struct {
	Date        time.Time `json:"date"`
	GeneratedAt time.Time `json:"generated_at"`

	TopLossLocation string  `json:"top_loss_location"`
	TopLossAmount   float64 `json:"top_loss_amount"`
	TopLossCause    string  `json:"top_loss_cause"`

	Recommendation ActionRecommendation `json:"recommendation"`

	TotalLoss         float64            `json:"total_loss"`
	TotalObservations int                `json:"total_observations"`
	LossByLocation    map[string]float64 `json:"loss_by_location"`

	DataCompleteness      float64 `json:"data_completeness"`      // [0,1]
	CalculationConfidence float64 `json:"calculation_confidence"` // [0,1]
	CalculationHash       string  `json:"calculation_hash"`
}

// LossSnapshot is one location's daily loss, as stored for analytics.
type LossSnapshot struct {
	Date         time.Time     `json:"date"`
	LocationID   string        `json:"location_id"`
	LocationType LocationType  `json:"location_type"`
	Loss         FinancialLoss `json:"loss"`
	Utilization  float64       `json:"utilization"`
	EntropyScore float64       `json:"entropy_score"`
	DataPoints   int           `json:"data_points"`
	AuditHash    string        `json:"audit_hash"`
}
