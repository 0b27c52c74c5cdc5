package reporting

import (
	"math"

	"github.com/shopspring/decimal"
)

// Money rounds v to cents. Non-finite values pass through.
func Money(v float64) float64 {
	return roundTo(v, 2)
}

// Rate rounds a ratio to 4 decimals.
func Rate(v float64) float64 {
	return roundTo(v, 4)
}

// FineRate rounds a rate to 6 decimals.
func FineRate(v float64) float64 {
	return roundTo(v, 6)
}

func roundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// formatMoney renders v as dollars with two decimals.
func formatMoney(v float64) string {
	if math.IsInf(v, 1) {
		return "∞"
	}
	if math.IsNaN(v) || math.IsInf(v, -1) {
		return "n/a"
	}
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

// finiteOrNil maps non-finite values to nil for JSON output.
func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := Rate(v)
	return &r
}
