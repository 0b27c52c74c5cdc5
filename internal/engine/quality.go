package engine

import (
	"fmt"

	"queueloss/internal/domain"
)

// Quality thresholds below which an issue is reported.
const (
	MinCompleteness = 0.5
	MinConsistency  = 0.9
)

// QualityReport summarises how usable a batch is.
type QualityReport struct {
	Records      int      `json:"total_records"`
	Days         int      `json:"days"`
	Completeness float64  `json:"completeness_score"` // [0,1]
	Consistency  float64  `json:"consistency_score"`  // [0,1]
	Issues       []string `json:"issues"`
}

// OK reports whether no issue was found.
func (r QualityReport) OK() bool {
	return len(r.Issues) == 0
}

// CheckDataQuality scores a batch spanning days days.
// A record is inconsistent when departures exceed twice the arrivals or a
// count is negative.
func (e *Engine) CheckDataQuality(ms []domain.FlowMeasurement, days int) QualityReport {
	if days < 1 {
		days = 1
	}
	r := QualityReport{Records: len(ms), Days: days, Issues: []string{}}
	if len(ms) == 0 {
		r.Issues = append(r.Issues, "No data found for period")
		return r
	}

	expected := float64(days * e.expectedPerDay)
	r.Completeness = min(1, float64(len(ms))/expected)
	if r.Completeness < MinCompleteness {
		r.Issues = append(r.Issues, fmt.Sprintf("Low data completeness: %.1f%%", r.Completeness*100))
	}

	bad := 0
	for _, m := range ms {
		if m.DepartureCount > 2*m.ArrivalCount {
			bad++
		}
		if m.QueueLength < 0 || m.InServiceCount < 0 || m.ArrivalCount < 0 || m.DepartureCount < 0 {
			bad++
		}
	}
	r.Consistency = max(0, 1-float64(bad)/float64(len(ms)))
	if r.Consistency < MinConsistency {
		r.Issues = append(r.Issues, fmt.Sprintf("Data consistency issues found: %d records", bad))
	}
	return r
}
