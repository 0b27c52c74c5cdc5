package reporting

import (
	"sort"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/ledger"
)

// TrendDirection classifies the slope of daily loss.
type TrendDirection string

const (
	TrendImproving        TrendDirection = "improving"
	TrendWorsening        TrendDirection = "worsening"
	TrendStable           TrendDirection = "stable"
	TrendInsufficientData TrendDirection = "insufficient_data"
)

// RecommendationView is a recommendation rounded for output.
type RecommendationView struct {
	RecommendationID string            `json:"recommendation_id"`
	LocationID       string            `json:"location_id"`
	ActionType       domain.ActionType `json:"action_type"`
	Description      string            `json:"description"`
	MinRecoverable   float64           `json:"min_recoverable"`
	MaxRecoverable   float64           `json:"max_recoverable"`
	ActionCost       float64           `json:"action_cost"`
	NetBenefit       float64           `json:"net_benefit"`
	// ROIRatio is nil for a free action with positive recovery.
	ROIRatio      *float64            `json:"roi_ratio"`
	Confidence    float64             `json:"confidence_score"`
	Justification string              `json:"justification"`
	Status        domain.ActionStatus `json:"status"`
}

// LocationRow is one location's loss breakdown for a day.
type LocationRow struct {
	LocationID   string              `json:"location_id"`
	LocationType domain.LocationType `json:"location_type"`
	WaitTime     float64             `json:"wait_time_cost"`
	Throughput   float64             `json:"lost_throughput_revenue"`
	Walkaway     float64             `json:"walkaway_cost"`
	IdleTime     float64             `json:"idle_time_cost"`
	Overtime     float64             `json:"overtime_cost"`
	Total        float64             `json:"total_loss"`
	Utilization  float64             `json:"utilization"`
	Entropy      float64             `json:"entropy_score"`
	DataPoints   int                 `json:"data_points"`
	AuditHash    string              `json:"audit_hash"`
}

// DailyReport is one day's insight rounded for output.
type DailyReport struct {
	Date                  string             `json:"date"`
	GeneratedAt           time.Time          `json:"generated_at"`
	TotalLoss             float64            `json:"total_loss"`
	TopLossLocation       string             `json:"top_loss_location"`
	TopLossAmount         float64            `json:"top_loss_amount"`
	TopLossCause          string             `json:"top_loss_cause"`
	TotalObservations     int                `json:"total_observations"`
	DataCompleteness      float64            `json:"data_completeness"`
	CalculationConfidence float64            `json:"calculation_confidence"`
	LossByLocation        map[string]float64 `json:"loss_by_location"`
	Recommendation        RecommendationView `json:"recommendation"`
	Locations             []LocationRow      `json:"locations,omitempty"`
	CalculationHash       string             `json:"calculation_hash"`
}

// DayLoss is one day's total in a summary.
type DayLoss struct {
	Date        string  `json:"date"`
	TotalLoss   float64 `json:"total_loss"`
	TopLocation string  `json:"top_location"`
	TopCause    string  `json:"top_cause,omitempty"`
}

// LocationLoss is one location's total over a period.
type LocationLoss struct {
	LocationID string  `json:"location_id"`
	TotalLoss  float64 `json:"total_loss"`
	Share      float64 `json:"share"` // of period total, [0,1]
}

// WeeklySummary aggregates the seven days ending at End.
type WeeklySummary struct {
	Start        string         `json:"start"`
	End          string         `json:"end"`
	DaysWithData int            `json:"days_with_data"`
	TotalLoss    float64        `json:"total_loss"`
	AvgDailyLoss float64        `json:"avg_daily_loss"`
	P90DailyLoss float64        `json:"p90_daily_loss"`
	StddevLoss   float64        `json:"stddev_daily_loss"`
	LongestRise  int            `json:"longest_rise_days"`
	WorstDay     *DayLoss       `json:"worst_day,omitempty"`
	TopLocations []LocationLoss `json:"top_loss_locations"`
	Daily        []DayLoss      `json:"daily_breakdown"`
}

// TrendAnalysis is the least-squares trend of daily loss over a period.
type TrendAnalysis struct {
	Start          string         `json:"start"`
	End            string         `json:"end"`
	DaysAnalyzed   int            `json:"days_analyzed"`
	Direction      TrendDirection `json:"direction"`
	SlopePerDay    float64        `json:"slope_per_day"`
	RSquared       float64        `json:"r_squared"`
	Interpretation string         `json:"interpretation"`
	OverallAvg     float64        `json:"overall_avg_daily_loss"`

	// Week-over-week, present with at least 14 days of data.
	LastWeekAvg  *float64       `json:"last_7_days_avg,omitempty"`
	PrevWeekAvg  *float64       `json:"previous_7_days_avg,omitempty"`
	WoWChangePct *float64       `json:"week_over_week_change_pct,omitempty"`
	WoWDirection TrendDirection `json:"week_over_week,omitempty"`
}

// Summary bundles the period views the CLI renders together.
type Summary struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Weekly      *WeeklySummary        `json:"weekly"`
	Trend       *TrendAnalysis        `json:"trend"`
	ROI         *ledger.CumulativeROI `json:"roi,omitempty"`
}

// NewDailyReport rounds an insight and its snapshots for output.
func NewDailyReport(in *domain.DailyInsight, snapshots []*domain.LossSnapshot) *DailyReport {
	r := &DailyReport{
		Date:                  in.Date.Format(time.DateOnly),
		GeneratedAt:           in.GeneratedAt,
		TotalLoss:             Money(in.TotalLoss),
		TopLossLocation:       in.TopLossLocation,
		TopLossAmount:         Money(in.TopLossAmount),
		TopLossCause:          in.TopLossCause,
		TotalObservations:     in.TotalObservations,
		DataCompleteness:      Rate(in.DataCompleteness),
		CalculationConfidence: Rate(in.CalculationConfidence),
		LossByLocation:        make(map[string]float64, len(in.LossByLocation)),
		Recommendation:        NewRecommendationView(in.Recommendation),
		CalculationHash:       in.CalculationHash,
	}
	for id, l := range in.LossByLocation {
		r.LossByLocation[id] = Money(l)
	}
	for _, s := range snapshots {
		r.Locations = append(r.Locations, newLocationRow(s))
	}
	sort.Slice(r.Locations, func(i, j int) bool { return r.Locations[i].LocationID < r.Locations[j].LocationID })
	return r
}

// NewRecommendationView rounds a recommendation for output.
func NewRecommendationView(a domain.ActionRecommendation) RecommendationView {
	return RecommendationView{
		RecommendationID: a.RecommendationID,
		LocationID:       a.LocationID,
		ActionType:       a.ActionType,
		Description:      a.Description,
		MinRecoverable:   Money(a.MinRecoverable),
		MaxRecoverable:   Money(a.MaxRecoverable),
		ActionCost:       Money(a.ActionCost),
		NetBenefit:       Money(a.NetBenefit()),
		ROIRatio:         finiteOrNil(a.ROIRatio()),
		Confidence:       Rate(a.ConfidenceScore),
		Justification:    a.Justification,
		Status:           a.Status,
	}
}

func newLocationRow(s *domain.LossSnapshot) LocationRow {
	return LocationRow{
		LocationID:   s.LocationID,
		LocationType: s.LocationType,
		WaitTime:     Money(s.Loss.WaitTimeCost),
		Throughput:   Money(s.Loss.LostThroughputRevenue),
		Walkaway:     Money(s.Loss.WalkawayCost),
		IdleTime:     Money(s.Loss.IdleTimeCost),
		Overtime:     Money(s.Loss.OvertimeCost),
		Total:        Money(s.Loss.TotalLoss()),
		Utilization:  Rate(s.Utilization),
		Entropy:      Rate(s.EntropyScore),
		DataPoints:   s.DataPoints,
		AuditHash:    s.AuditHash,
	}
}
