package variability

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"queueloss/internal/domain"
	"queueloss/internal/queueing"
)

// Predictability buckets the mean hourly arrival CV.
type Predictability string

const (
	PredictabilityHigh   Predictability = "high"
	PredictabilityMedium Predictability = "medium"
	PredictabilityLow    Predictability = "low"
)

// HourStats summarises arrivals observed in one hour of day.
type HourStats struct {
	Hour  int     `json:"hour"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"` // population
	CV    float64 `json:"cv"`  // sample
	Count int     `json:"count"`
}

// PatternAnalysis describes hour-of-day structure in a batch.
type PatternAnalysis struct {
	Analyzed             bool           `json:"analyzed"`
	PeakHours            []int          `json:"peak_hours"`
	HighVariabilityHours []int          `json:"high_variability_hours"`
	Predictability       Predictability `json:"predictability,omitempty"`
	AvgCV                float64        `json:"avg_cv"`
	Hourly               []HourStats    `json:"hourly"` // ascending by hour
}

// minHourSamples is the sample count an hour needs to count toward variability.
const minHourSamples = 3

// AnalyzePatterns groups arrivals by UTC hour of day.
// Peak hours are the top three by mean (ties to the earlier hour, mean > 0).
func (c Calculator) AnalyzePatterns(ms []domain.FlowMeasurement) PatternAnalysis {
	c = NewCalculator(c.MinDataPoints, c.ServiceCVFallback)
	if len(ms) < c.MinDataPoints {
		return PatternAnalysis{}
	}

	byHour := make(map[int][]float64)
	for _, m := range ms {
		h := m.Timestamp.UTC().Hour()
		byHour[h] = append(byHour[h], float64(m.ArrivalCount))
	}

	hourly := make([]HourStats, 0, len(byHour))
	for h := 0; h < 24; h++ {
		xs, ok := byHour[h]
		if !ok {
			continue
		}
		s := HourStats{Hour: h, Mean: queueing.Mean(xs), Count: len(xs)}
		if len(xs) > 1 {
			_, s.Std = stat.PopMeanStdDev(sortedCopy(xs), nil)
			s.CV = CV(xs)
		}
		hourly = append(hourly, s)
	}

	byMean := make([]HourStats, len(hourly))
	copy(byMean, hourly)
	sort.SliceStable(byMean, func(i, j int) bool {
		return byMean[i].Mean > byMean[j].Mean
	})

	peaks := make([]int, 0, 3)
	for i := 0; i < len(byMean) && i < 3; i++ {
		if byMean[i].Mean > 0 {
			peaks = append(peaks, byMean[i].Hour)
		}
	}

	highVar := make([]int, 0)
	cvs := make([]float64, 0, len(hourly))
	for _, s := range hourly {
		if s.Count < minHourSamples {
			continue
		}
		cvs = append(cvs, s.CV)
		if s.CV > 1.0 {
			highVar = append(highVar, s.Hour)
		}
	}

	avgCV := queueing.Mean(cvs)
	predictability := PredictabilityLow
	switch {
	case avgCV < 0.5:
		predictability = PredictabilityHigh
	case avgCV < 1.0:
		predictability = PredictabilityMedium
	}

	return PatternAnalysis{
		Analyzed:             true,
		PeakHours:            peaks,
		HighVariabilityHours: highVar,
		Predictability:       predictability,
		AvgCV:                avgCV,
		Hourly:               hourly,
	}
}

func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}
