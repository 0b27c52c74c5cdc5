package loss

import (
	"sort"

	"queueloss/internal/domain"
)

// TopLoss identifies the location losing the most money.
type TopLoss struct {
	Found        bool                `json:"found"`
	LocationID   string              `json:"location_id,omitempty"`
	Amount       float64             `json:"amount"`
	Category     domain.LossCategory `json:"category,omitempty"`
	PrimaryCause string              `json:"primary_cause,omitempty"`
	Breakdown    map[string]float64  `json:"breakdown,omitempty"`
}

// IdentifyTopLossPoint returns the location with the largest positive total loss.
// Ties go to the lexicographically smallest location id. Found is false when no
// location has a positive loss.
func IdentifyTopLossPoint(losses map[string]domain.FinancialLoss) TopLoss {
	ids := make([]string, 0, len(losses))
	for id := range losses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var top TopLoss
	for _, id := range ids {
		total := losses[id].TotalLoss()
		if total > top.Amount {
			top.LocationID = id
			top.Amount = total
			top.Found = true
		}
	}
	if !top.Found {
		return TopLoss{}
	}

	l := losses[top.LocationID]
	top.Category = l.PrimaryCategory()
	top.PrimaryCause = top.Category.Cause()
	top.Breakdown = l.Breakdown()
	return top
}
