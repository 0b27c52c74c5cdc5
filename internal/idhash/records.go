package idhash

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"queueloss/internal/domain"
)

// recommendationNamespace scopes UUIDv5 recommendation ids.
var recommendationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("queueloss/recommendation"))

// ComputeLossHash computes the content hash of a FinancialLoss.
// Every component and raw count participates; any change alters the hash.
func ComputeLossHash(l domain.FinancialLoss) string {
	return mustHash(Fields{
		"location_id":             l.LocationID,
		"calculation_date":        l.CalculationDate,
		"wait_time_cost":          l.WaitTimeCost,
		"lost_throughput_revenue": l.LostThroughputRevenue,
		"walkaway_cost":           l.WalkawayCost,
		"idle_time_cost":          l.IdleTimeCost,
		"overtime_cost":           l.OvertimeCost,
		"excess_wait_seconds":     l.ExcessWaitSeconds,
		"lost_customers":          l.LostCustomers,
		"walkaways":               l.Walkaways,
		"idle_server_seconds":     l.IdleServerSeconds,
		"overtime_server_hours":   l.OvertimeServerHours,
		"total_loss":              l.TotalLoss(),
	})
}

// ComputeEntryHash computes the chain hash of a ledger entry.
// Every stored field participates except EntryHash itself and SequenceNumber,
// which the chain walk checks on its own.
func ComputeEntryHash(e domain.ROILogEntry) string {
	return mustHash(Fields{
		"entry_id":               e.EntryID,
		"timestamp":              e.Timestamp,
		"action_id":              e.ActionID,
		"action_type":            string(e.ActionType),
		"location_id":            e.LocationID,
		"action_cost":            e.ActionCost,
		"before_date":            e.BeforeDate,
		"before_loss":            e.BeforeLoss,
		"after_date":             e.AfterDate,
		"after_loss":             e.AfterLoss,
		"loss_reduction":         e.LossReduction,
		"improvement_percentage": e.ImprovementPercentage,
		"net_benefit":            e.NetBenefit,
		"previous_entry_hash":    e.PreviousEntryHash,
	})
}

// ComputeAuditHash binds a location analysis to its inputs and loss.
func ComputeAuditHash(locationID string, date time.Time, dataPoints int, lossHash string) string {
	return mustHash(Fields{
		"location_id": locationID,
		"date":        date,
		"data_points": dataPoints,
		"loss_hash":   lossHash,
	})
}

// ComputeCalculationHash fingerprints a day's aggregate result.
func ComputeCalculationHash(date time.Time, totalLoss float64, observations int, lossByLocation map[string]float64, topLocation string) string {
	return mustHash(Fields{
		"date":               date,
		"total_loss":         totalLoss,
		"total_observations": observations,
		"loss_by_location":   lossByLocation,
		"top_loss_location":  topLocation,
	})
}

// ComputeRecommendationID derives a deterministic UUIDv5 for a recommendation.
// Formula: UUIDv5(ns, date|location_id|action_type)
func ComputeRecommendationID(date time.Time, locationID string, actionType domain.ActionType) string {
	data := fmt.Sprintf("%s|%s|%s",
		date.UTC().Format("2006-01-02"),
		locationID,
		string(actionType),
	)
	return uuid.NewSHA1(recommendationNamespace, []byte(data)).String()
}
