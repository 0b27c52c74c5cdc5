package queueing

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// sorted returns an ascending copy of xs.
// Reductions run over sorted copies so that batch order never changes a result bit.
func sorted(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// Mean returns the arithmetic mean of xs, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(sorted(xs), nil)
}

// SampleStdDev returns the unbiased (n-1) standard deviation, 0 when n < 2.
func SampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(sorted(xs), nil)
}

// Sum returns the sum of xs in ascending order.
func Sum(xs []float64) float64 {
	total := 0.0
	for _, x := range sorted(xs) {
		total += x
	}
	return total
}

// MeanCI returns a Student-t confidence interval for the mean of xs.
// With fewer than two samples the interval collapses to the point estimate.
func MeanCI(xs []float64, level float64) (lower, upper float64) {
	mean := Mean(xs)
	n := len(xs)
	if n < 2 {
		return mean, mean
	}
	sem := SampleStdDev(xs) / math.Sqrt(float64(n))
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}.Quantile((1 + level) / 2)
	margin := t * sem
	return mean - margin, mean + margin
}
