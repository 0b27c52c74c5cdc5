package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RenderDailyMarkdown renders a daily report as Markdown string.
func RenderDailyMarkdown(r *DailyReport) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Daily Loss Report: %s\n\n", r.Date))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Loss | %s |\n", formatMoney(r.TotalLoss)))
	sb.WriteString(fmt.Sprintf("| Top Loss Location | %s |\n", r.TopLossLocation))
	sb.WriteString(fmt.Sprintf("| Top Loss Amount | %s |\n", formatMoney(r.TopLossAmount)))
	sb.WriteString(fmt.Sprintf("| Top Loss Cause | %s |\n", r.TopLossCause))
	sb.WriteString(fmt.Sprintf("| Observations | %d |\n", r.TotalObservations))
	sb.WriteString(fmt.Sprintf("| Data Completeness | %.1f%% |\n", r.DataCompleteness*100))
	sb.WriteString(fmt.Sprintf("| Calculation Confidence | %.1f%% |\n", r.CalculationConfidence*100))
	sb.WriteString("\n")

	// Recommendation
	rec := r.Recommendation
	sb.WriteString("## Recommended Action\n\n")
	sb.WriteString(fmt.Sprintf("**%s** (%s, %s)\n\n", rec.Description, rec.ActionType, rec.LocationID))
	sb.WriteString(fmt.Sprintf("- Recoverable: %s to %s\n", formatMoney(rec.MinRecoverable), formatMoney(rec.MaxRecoverable)))
	sb.WriteString(fmt.Sprintf("- Cost: %s (net benefit %s)\n", formatMoney(rec.ActionCost), formatMoney(rec.NetBenefit)))
	if rec.ROIRatio != nil {
		sb.WriteString(fmt.Sprintf("- ROI ratio: %.2f\n", *rec.ROIRatio))
	} else {
		sb.WriteString("- ROI ratio: unbounded (no cost)\n")
	}
	sb.WriteString(fmt.Sprintf("- Confidence: %.0f%%\n", rec.Confidence*100))
	sb.WriteString(fmt.Sprintf("- Justification: %s\n\n", rec.Justification))

	// Locations
	sb.WriteString("## Loss by Location\n\n")
	if len(r.Locations) > 0 {
		sb.WriteString("| Location | Type | Wait | Throughput | Walkaway | Idle | Overtime | Total | ρ | Entropy | Points |\n")
		sb.WriteString("|----------|------|------|------------|----------|------|----------|-------|---|---------|--------|\n")
		for _, l := range r.Locations {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %.4f | %.4f | %d |\n",
				l.LocationID, l.LocationType,
				l.WaitTime, l.Throughput, l.Walkaway, l.IdleTime, l.Overtime, l.Total,
				l.Utilization, l.Entropy, l.DataPoints))
		}
	} else if len(r.LossByLocation) > 0 {
		ids := make([]string, 0, len(r.LossByLocation))
		for id := range r.LossByLocation {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		sb.WriteString("| Location | Total |\n")
		sb.WriteString("|----------|-------|\n")
		for _, id := range ids {
			sb.WriteString(fmt.Sprintf("| %s | %.2f |\n", id, r.LossByLocation[id]))
		}
	} else {
		sb.WriteString("No location data available.\n")
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Calculation hash: `%s`\n", r.CalculationHash))
	return sb.String()
}

// RenderSummaryMarkdown renders the weekly, trend and ROI views.
func RenderSummaryMarkdown(s *Summary) string {
	var sb strings.Builder
	w := s.Weekly

	// Header
	sb.WriteString("# Loss Summary Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", s.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Period: %s to %s\n\n", w.Start, w.End))

	// Financial summary
	sb.WriteString("## Financial Summary\n\n")
	if w.DaysWithData == 0 {
		sb.WriteString("No data available for this period.\n\n")
	} else {
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Total Loss | %s |\n", formatMoney(w.TotalLoss)))
		sb.WriteString(fmt.Sprintf("| Average Daily Loss | %s |\n", formatMoney(w.AvgDailyLoss)))
		sb.WriteString(fmt.Sprintf("| P90 Daily Loss | %s |\n", formatMoney(w.P90DailyLoss)))
		sb.WriteString(fmt.Sprintf("| Days Analyzed | %d |\n", w.DaysWithData))
		sb.WriteString(fmt.Sprintf("| Worst Day | %s (%s at %s) |\n", w.WorstDay.Date, formatMoney(w.WorstDay.TotalLoss), w.WorstDay.TopLocation))
		sb.WriteString("\n")

		sb.WriteString("### Top Loss Locations\n\n")
		sb.WriteString("| Location | Total | Share |\n")
		sb.WriteString("|----------|-------|-------|\n")
		for _, l := range w.TopLocations {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.1f%% |\n", l.LocationID, formatMoney(l.TotalLoss), l.Share*100))
		}
		sb.WriteString("\n")
	}

	// Trend
	sb.WriteString("## Trend\n\n")
	if t := s.Trend; t != nil {
		sb.WriteString(fmt.Sprintf("Direction: **%s** over %d days", t.Direction, t.DaysAnalyzed))
		if t.Direction != TrendInsufficientData {
			sb.WriteString(fmt.Sprintf(" (slope %s/day, R² %.2f)", formatMoney(t.SlopePerDay), t.RSquared))
		}
		sb.WriteString("\n\n")
		sb.WriteString(t.Interpretation + "\n\n")
		if t.WoWChangePct != nil {
			sb.WriteString(fmt.Sprintf("Week over week: %+.1f%% (%s)\n\n", *t.WoWChangePct, t.WoWDirection))
		}
	}

	// ROI
	sb.WriteString("## ROI Summary\n\n")
	if r := s.ROI; r != nil && r.TotalEntries > 0 {
		sb.WriteString(fmt.Sprintf("- Total Verified Savings: %s\n", formatMoney(Money(r.TotalSavings))))
		sb.WriteString(fmt.Sprintf("- Total Action Cost: %s\n", formatMoney(Money(r.TotalCost))))
		sb.WriteString(fmt.Sprintf("- Net Benefit: %s\n", formatMoney(Money(r.TotalNetBenefit))))
		if r.OverallROI != nil {
			sb.WriteString(fmt.Sprintf("- Overall ROI: %.1f%%\n", *r.OverallROI))
		} else {
			sb.WriteString("- Overall ROI: N/A\n")
		}
		chain := "valid"
		if !r.ChainValid {
			chain = "BROKEN"
		}
		sb.WriteString(fmt.Sprintf("- Chain integrity: %s\n", chain))
	} else {
		sb.WriteString("No verified improvements yet.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
