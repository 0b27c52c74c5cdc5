package variability

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"queueloss/internal/domain"
	"queueloss/internal/queueing"
)

// DefaultWindowSize is one hour of 5-minute intervals.
const DefaultWindowSize = 12

// maxReportedPeriods bounds the per-window detail kept in a report.
const maxReportedPeriods = 20

// StabilityState classifies one rolling window.
type StabilityState string

const (
	StateStable     StabilityState = "stable"
	StateTransition StabilityState = "transition"
	StateDegrading  StabilityState = "degrading"
	StateRecovering StabilityState = "recovering"
	StateCrisis     StabilityState = "crisis"
)

// StabilityPeriod is the classification of the window starting at Index.
type StabilityPeriod struct {
	Index        int            `json:"index"`
	Timestamp    string         `json:"timestamp"`
	State        StabilityState `json:"state"`
	ArrivalTrend float64        `json:"arrival_trend"`
	QueueTrend   float64        `json:"queue_trend"`
	ArrivalCV    float64        `json:"arrival_cv"`
}

// StabilityReport summarises rolling-window states over a batch.
type StabilityReport struct {
	Analyzed          bool                       `json:"analyzed"`
	TotalPeriods      int                        `json:"total_periods"`
	StateDistribution map[StabilityState]float64 `json:"state_distribution"`
	CrisisPeriods     int                        `json:"crisis_periods"`
	StablePercentage  float64                    `json:"stable_percentage"`
	Periods           []StabilityPeriod          `json:"periods"`
}

// StabilityAnalyzer classifies rolling windows of a time-ordered batch.
type StabilityAnalyzer struct {
	WindowSize int
}

// NewStabilityAnalyzer creates an analyzer; window ≤ 0 uses DefaultWindowSize.
func NewStabilityAnalyzer(window int) StabilityAnalyzer {
	if window <= 0 {
		window = DefaultWindowSize
	}
	return StabilityAnalyzer{WindowSize: window}
}

// Analyze needs at least two windows of data; ms must be in time order.
//
// Trends are least-squares slopes normalized by the window mean.
// stable: |arrival| < 0.1 and |queue| < 0.2; degrading: queue > 0.5;
// recovering: queue < −0.5; otherwise transition. A window with mean
// queue > 10 and queue trend > 0.3 is a crisis regardless.
func (a StabilityAnalyzer) Analyze(ms []domain.FlowMeasurement) StabilityReport {
	w := a.WindowSize
	if w <= 0 {
		w = DefaultWindowSize
	}
	if len(ms) < 2*w {
		return StabilityReport{}
	}

	arrivals := make([]float64, len(ms))
	queues := make([]float64, len(ms))
	for i, m := range ms {
		arrivals[i] = float64(m.ArrivalCount)
		queues[i] = float64(m.QueueLength)
	}

	periods := make([]StabilityPeriod, 0, len(ms)-w)
	counts := make(map[StabilityState]int)
	for i := 0; i < len(ms)-w; i++ {
		wa := arrivals[i : i+w]
		wq := queues[i : i+w]

		at := trend(wa)
		qt := trend(wq)

		arrivalCV := 0.0
		if mean, std := stat.PopMeanStdDev(wa, nil); mean > 0 {
			arrivalCV = std / mean
		}

		state := classifyWindow(at, qt)
		if queueing.Mean(wq) > 10 && qt > 0.3 {
			state = StateCrisis
		}
		counts[state]++

		periods = append(periods, StabilityPeriod{
			Index:        i,
			Timestamp:    ms[i].Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			State:        state,
			ArrivalTrend: at,
			QueueTrend:   qt,
			ArrivalCV:    arrivalCV,
		})
	}

	total := len(periods)
	dist := make(map[StabilityState]float64, len(counts))
	for s, n := range counts {
		dist[s] = float64(n) / float64(total)
	}

	detail := periods
	if len(detail) > maxReportedPeriods {
		detail = detail[:maxReportedPeriods]
	}

	return StabilityReport{
		Analyzed:          true,
		TotalPeriods:      total,
		StateDistribution: dist,
		CrisisPeriods:     counts[StateCrisis],
		StablePercentage:  float64(counts[StateStable]) / float64(total) * 100,
		Periods:           detail,
	}
}

func classifyWindow(arrivalTrend, queueTrend float64) StabilityState {
	switch {
	case math.Abs(arrivalTrend) < 0.1 && math.Abs(queueTrend) < 0.2:
		return StateStable
	case queueTrend > 0.5:
		return StateDegrading
	case queueTrend < -0.5:
		return StateRecovering
	default:
		return StateTransition
	}
}

// trend returns the least-squares slope of ys over 0..n-1 divided by mean(ys).
func trend(ys []float64) float64 {
	if len(ys) < 2 {
		return 0
	}
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)

	mean := stat.Mean(ys, nil)
	if mean > 0 {
		return slope / mean
	}
	return 0
}
