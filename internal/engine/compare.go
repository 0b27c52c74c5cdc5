package engine

import (
	"time"

	"queueloss/internal/domain"
)

// PeriodSummary describes one side of a before/after comparison.
type PeriodSummary struct {
	DataPoints  int      `json:"data_points"`
	TotalLoss   float64  `json:"total_loss"`
	AvgWait     *float64 `json:"avg_wait_time,omitempty"` // Wq, seconds
	Utilization *float64 `json:"utilization,omitempty"`   // display ρ
	Verified    bool     `json:"verified"`
}

// Comparison is the loss change between two measurement periods.
type Comparison struct {
	Compared bool          `json:"compared"`
	Before   PeriodSummary `json:"before"`
	After    PeriodSummary `json:"after"`

	LossChange           float64 `json:"loss_change"`            // after - before
	LossChangePercentage float64 `json:"loss_change_percentage"` // 0 when before is 0
	Improved             bool    `json:"improved"`

	BeforeAnalysis LocationAnalysis `json:"-"`
	AfterAnalysis  LocationAnalysis `json:"-"`
}

// CompareBeforeAfter reruns the location analysis on two batches.
// Compared is false when either batch is empty.
func (e *Engine) CompareBeforeAfter(before, after []domain.FlowMeasurement, capacity *domain.CapacityConstraint) (Comparison, error) {
	if len(before) == 0 || len(after) == 0 {
		return Comparison{}, nil
	}

	b, err := e.AnalyzeLocation(before, capacity, time.Time{})
	if err != nil {
		return Comparison{}, err
	}
	a, err := e.AnalyzeLocation(after, capacity, time.Time{})
	if err != nil {
		return Comparison{}, err
	}

	c := Comparison{
		Compared:       true,
		Before:         summarize(b),
		After:          summarize(a),
		LossChange:     a.TotalLoss - b.TotalLoss,
		BeforeAnalysis: b,
		AfterAnalysis:  a,
	}
	if b.TotalLoss > 0 {
		c.LossChangePercentage = c.LossChange / b.TotalLoss * 100
	}
	c.Improved = c.LossChange < 0
	return c, nil
}

func summarize(a LocationAnalysis) PeriodSummary {
	s := PeriodSummary{
		DataPoints: a.DataPoints,
		TotalLoss:  a.TotalLoss,
		Verified:   a.Verified(),
	}
	if a.Queue != nil {
		wq := a.Queue.Wq
		rho := a.DisplayRho
		s.AvgWait = &wq
		s.Utilization = &rho
	}
	return s
}
