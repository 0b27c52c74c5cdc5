package reporting

import (
	"fmt"
	"strings"
)

// RenderLocationsCSV renders a day's location rows as CSV string.
func RenderLocationsCSV(date string, rows []LocationRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("date,location_id,location_type,wait_time_cost,lost_throughput_revenue,walkaway_cost,")
	sb.WriteString("idle_time_cost,overtime_cost,total_loss,utilization,entropy_score,data_points,audit_hash\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.6f,%.6f,%d,%s\n",
			date,
			r.LocationID,
			r.LocationType,
			r.WaitTime,
			r.Throughput,
			r.Walkaway,
			r.IdleTime,
			r.Overtime,
			r.Total,
			r.Utilization,
			r.Entropy,
			r.DataPoints,
			r.AuditHash,
		))
	}

	return sb.String()
}

// RenderDailyCSV renders a period's daily totals as CSV string.
func RenderDailyCSV(days []DayLoss) string {
	var sb strings.Builder
	sb.WriteString("date,total_loss,top_location,top_cause\n")
	for _, d := range days {
		sb.WriteString(fmt.Sprintf("%s,%.2f,%s,%s\n", d.Date, d.TotalLoss, d.TopLocation, d.TopCause))
	}
	return sb.String()
}
