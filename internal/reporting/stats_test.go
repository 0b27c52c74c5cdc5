package reporting

import (
	"math"
	"testing"
)

func TestComputeMean(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"empty", nil, 0},
		{"single", []float64{5}, 5},
		{"mixed", []float64{10, 20, 30, 40}, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeMean(tt.values)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("computeMean(%v) = %v, want %v", tt.values, got, tt.expected)
			}
		})
	}
}

func TestComputeStddev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	got := computeStddev(values, computeMean(values))
	// Sample variance = 32/7
	want := math.Sqrt(32.0 / 7.0)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("computeStddev = %v, want %v", got, want)
	}
	if computeStddev([]float64{1}, 1) != 0 {
		t.Errorf("single value should have zero stddev")
	}
}

func TestComputePercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}
	tests := []struct {
		p        float64
		expected float64
	}{
		{0, 10},
		{0.5, 30},
		{0.9, 46},
		{1, 50},
	}
	for _, tt := range tests {
		got := computePercentile(sorted, tt.p)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("computePercentile(%v) = %v, want %v", tt.p, got, tt.expected)
		}
	}
	if computePercentile(nil, 0.5) != 0 {
		t.Errorf("empty percentile should be 0")
	}
}

func TestComputeLongestRise(t *testing.T) {
	tests := []struct {
		values   []float64
		expected int
	}{
		{nil, 0},
		{[]float64{5, 4, 3}, 0},
		{[]float64{1, 2, 3, 1, 2}, 2},
		{[]float64{1, 1, 2, 3, 4}, 3},
	}
	for _, tt := range tests {
		if got := computeLongestRise(tt.values); got != tt.expected {
			t.Errorf("computeLongestRise(%v) = %d, want %d", tt.values, got, tt.expected)
		}
	}
}

func TestMoney(t *testing.T) {
	if got := Money(1234.5678); got != 1234.57 {
		t.Errorf("Money = %v, want 1234.57", got)
	}
	if got := Rate(0.123456); got != 0.1235 {
		t.Errorf("Rate = %v, want 0.1235", got)
	}
	if !math.IsInf(Money(math.Inf(1)), 1) {
		t.Errorf("Money should pass +Inf through")
	}
	if formatMoney(math.Inf(1)) != "∞" {
		t.Errorf("formatMoney(+Inf) = %q", formatMoney(math.Inf(1)))
	}
	if formatMoney(12.5) != "$12.50" {
		t.Errorf("formatMoney(12.5) = %q", formatMoney(12.5))
	}
}
