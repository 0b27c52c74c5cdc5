package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

// ConfidenceSampleSize is the per-period measurement count at which
// verification confidence saturates.
const ConfidenceSampleSize = 100

// Period is an inclusive range of UTC days.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod creates a Period, truncating both bounds to UTC days.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: truncDay(start), End: truncDay(end)}
	if p.End.Before(p.Start) {
		return Period{}, fmt.Errorf("%w: period ends %s before it starts %s",
			storage.ErrInvalidInput, p.End.Format(time.DateOnly), p.Start.Format(time.DateOnly))
	}
	return p, nil
}

// Days returns the number of days in the period.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// Verification is the before/after comparison of one action's location.
// Losses are per-day averages over each period.
type Verification struct {
	ActionID   string `json:"action_id"`
	LocationID string `json:"location_id"`
	Before     Period `json:"before"`
	After      Period `json:"after"`

	Valid                 bool    `json:"valid"`
	BeforeDailyLoss       float64 `json:"before_daily_loss"`
	AfterDailyLoss        float64 `json:"after_daily_loss"`
	LossReduction         float64 `json:"loss_reduction"`
	ImprovementPercentage float64 `json:"improvement_percentage"`
	Confidence            float64 `json:"confidence"`
	BeforeDataPoints      int     `json:"before_data_points"`
	AfterDataPoints       int     `json:"after_data_points"`
	Notes                 string  `json:"notes"`
}

// VerifyImprovement prices the action's location over both periods and
// compares the per-day losses. Missing data on either side is an invalid
// verification, not an error.
func (s *Service) VerifyImprovement(ctx context.Context, actionID string, before, after Period) (Verification, error) {
	if s.measurements == nil || s.calc == nil {
		return Verification{}, fmt.Errorf("ledger: measurement store and loss calculator are required to verify")
	}

	action, err := s.actions.GetByID(ctx, actionID)
	if err != nil {
		return Verification{}, fmt.Errorf("get action %s: %w", actionID, err)
	}

	v := Verification{
		ActionID:   actionID,
		LocationID: action.LocationID,
		Before:     before,
		After:      after,
	}

	beforeData, err := s.periodData(ctx, action.LocationID, before)
	if err != nil {
		return v, err
	}
	afterData, err := s.periodData(ctx, action.LocationID, after)
	if err != nil {
		return v, err
	}
	v.BeforeDataPoints = len(beforeData)
	v.AfterDataPoints = len(afterData)

	if len(beforeData) == 0 || len(afterData) == 0 {
		v.Notes = "insufficient data for comparison"
		return v, nil
	}

	capacity := s.capacities(action.LocationID, beforeData[0].LocationType)
	beforeLoss := s.calc.Calculate(beforeData, nil, capacity, before.Start)
	afterLoss := s.calc.Calculate(afterData, nil, capacity, after.Start)

	v.BeforeDailyLoss = beforeLoss.TotalLoss() / float64(before.Days())
	v.AfterDailyLoss = afterLoss.TotalLoss() / float64(after.Days())
	v.LossReduction = v.BeforeDailyLoss - v.AfterDailyLoss
	v.ImprovementPercentage = improvementPercentage(v.BeforeDailyLoss, v.LossReduction)
	v.Confidence = math.Min(1, math.Min(
		float64(len(beforeData))/ConfidenceSampleSize,
		float64(len(afterData))/ConfidenceSampleSize,
	))
	v.Valid = true
	v.Notes = fmt.Sprintf("compared %d days before vs %d days after", before.Days(), after.Days())

	s.logger.Debug("improvement verified",
		"action_id", actionID,
		"before_daily_loss", v.BeforeDailyLoss,
		"after_daily_loss", v.AfterDailyLoss,
	)
	return v, nil
}

func (s *Service) periodData(ctx context.Context, locationID string, p Period) ([]domain.FlowMeasurement, error) {
	ms, err := s.measurements.GetByLocationRange(ctx, locationID, p.Start, p.End.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load measurements %s %s..%s: %w", locationID,
			p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly), err)
	}
	return ms, nil
}

func truncDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
