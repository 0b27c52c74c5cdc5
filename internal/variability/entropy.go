package variability

import (
	"math"
	"sort"

	"queueloss/internal/domain"
	"queueloss/internal/queueing"
)

// Defaults for the entropy calculator.
const (
	DefaultMinDataPoints    = 10
	DefaultServiceCV        = 0.5
	DefaultMaxHistogramBins = 10
)

// Calculator measures arrival and service variability for a batch.
// It holds configuration only and is safe for concurrent use.
type Calculator struct {
	MinDataPoints int
	// ServiceCVFallback is used when fewer than MinDataPoints service durations exist.
	ServiceCVFallback float64
}

// NewCalculator creates a calculator; zero values fall back to defaults.
func NewCalculator(minDataPoints int, serviceCVFallback float64) Calculator {
	if minDataPoints <= 0 {
		minDataPoints = DefaultMinDataPoints
	}
	if serviceCVFallback <= 0 {
		serviceCVFallback = DefaultServiceCV
	}
	return Calculator{MinDataPoints: minDataPoints, ServiceCVFallback: serviceCVFallback}
}

// CalculateEntropy returns the variability of ms.
// ok is false when ms holds fewer than MinDataPoints measurements.
func (c Calculator) CalculateEntropy(ms []domain.FlowMeasurement) (domain.EntropyMeasurement, bool) {
	c = NewCalculator(c.MinDataPoints, c.ServiceCVFallback)
	if len(ms) < c.MinDataPoints {
		return domain.NeutralEntropy(), false
	}

	arrivals := make([]float64, len(ms))
	services := make([]float64, 0, len(ms))
	for i, m := range ms {
		arrivals[i] = float64(m.ArrivalCount)
		if m.AvgServiceDuration != nil {
			services = append(services, *m.AvgServiceDuration)
		}
	}

	arrivalCV := CV(arrivals)

	serviceCV := c.ServiceCVFallback
	assumed := true
	if len(services) >= c.MinDataPoints {
		serviceCV = CV(services)
		assumed = false
	}

	impact := (arrivalCV*arrivalCV + serviceCV*serviceCV) / 2

	return domain.EntropyMeasurement{
		ArrivalCV:                arrivalCV,
		ServiceCV:                serviceCV,
		ServiceCVAssumed:         assumed,
		EntropyScore:             EntropyScore(arrivals),
		VarianceImpactMultiplier: math.Max(1, 1+impact),
	}, true
}

// CV returns the coefficient of variation (sample std / mean).
// Returns 0 when n < 2 or mean ≤ 0.
func CV(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := queueing.Mean(xs)
	if mean <= 0 {
		return 0
	}
	return queueing.SampleStdDev(xs) / mean
}

// EntropyScore returns the normalized Shannon entropy of xs in [0,1].
//
// Data is split into min(10, n/2) equal-width bins over [min, max] (last bin closed;
// a constant series uses [v−0.5, v+0.5]). Entropy over non-empty bins is divided
// by log2(bins). Fewer than two bins yields 0.
func EntropyScore(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	bins := n / 2
	if bins > DefaultMaxHistogramBins {
		bins = DefaultMaxHistogramBins
	}
	if bins < 2 {
		return 0
	}

	counts := histogram(xs, bins)

	h := 0.0
	for _, count := range counts {
		if count == 0 {
			continue
		}
		p := float64(count) / float64(n)
		h -= p * math.Log2(p)
	}

	score := h / math.Log2(float64(bins))
	// guard against -0 and rounding just above 1
	return math.Min(1, math.Max(0, score))
}

// histogram counts xs into equal-width bins.
func histogram(xs []float64, bins int) []int {
	data := make([]float64, len(xs))
	copy(data, xs)
	sort.Float64s(data)

	lo, hi := data[0], data[len(data)-1]
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	width := (hi - lo) / float64(bins)

	counts := make([]int, bins)
	for _, x := range data {
		idx := int((x - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}
	return counts
}
