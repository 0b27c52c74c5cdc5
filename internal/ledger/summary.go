package ledger

import (
	"context"
	"fmt"
	"sort"

	"queueloss/internal/domain"
	"queueloss/internal/queueing"
)

// TypeROI aggregates ledger entries of one action type.
type TypeROI struct {
	Count   int     `json:"count"`
	Savings float64 `json:"total_savings"`
	Cost    float64 `json:"total_cost"`
	// ROI is (savings/cost − 1)·100, nil when cost is zero.
	ROI *float64 `json:"roi,omitempty"`
}

// CumulativeROI aggregates the whole ledger.
type CumulativeROI struct {
	TotalEntries    int                           `json:"total_entries"`
	TotalSavings    float64                       `json:"total_savings"`
	TotalCost       float64                       `json:"total_cost"`
	TotalNetBenefit float64                       `json:"total_net_benefit"`
	OverallROI      *float64                      `json:"overall_roi,omitempty"`
	ByActionType    map[domain.ActionType]TypeROI `json:"by_action_type"`
	ChainValid      bool                          `json:"chain_valid"`
}

// Page is one page of entries in descending sequence order with page totals.
type Page struct {
	Entries []*domain.ROILogEntry `json:"entries"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`

	// Savings counts only positive reductions on the page.
	Savings    float64 `json:"total_verified_savings"`
	Cost       float64 `json:"total_action_cost"`
	NetBenefit float64 `json:"total_net_benefit"`
	ChainValid bool    `json:"chain_valid"`
}

// CumulativeROI sums savings, cost and net benefit across the ledger.
func (s *Service) CumulativeROI(ctx context.Context) (CumulativeROI, error) {
	entries, err := s.entries.ListAscending(ctx)
	if err != nil {
		return CumulativeROI{}, fmt.Errorf("list roi entries: %w", err)
	}

	out := CumulativeROI{
		TotalEntries: len(entries),
		ByActionType: make(map[domain.ActionType]TypeROI),
		ChainValid:   checkChain(entries).Valid,
	}

	savings := make([]float64, 0, len(entries))
	costs := make([]float64, 0, len(entries))
	nets := make([]float64, 0, len(entries))
	typed := make(map[domain.ActionType][]*domain.ROILogEntry)
	for _, e := range entries {
		savings = append(savings, e.LossReduction)
		costs = append(costs, e.ActionCost)
		nets = append(nets, e.NetBenefit)
		typed[e.ActionType] = append(typed[e.ActionType], e)
	}
	out.TotalSavings = queueing.Sum(savings)
	out.TotalCost = queueing.Sum(costs)
	out.TotalNetBenefit = queueing.Sum(nets)
	out.OverallROI = roiPercent(out.TotalSavings, out.TotalCost)

	types := make([]domain.ActionType, 0, len(typed))
	for t := range typed {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		group := typed[t]
		sv := make([]float64, len(group))
		cs := make([]float64, len(group))
		for i, e := range group {
			sv[i] = e.LossReduction
			cs[i] = e.ActionCost
		}
		agg := TypeROI{Count: len(group), Savings: queueing.Sum(sv), Cost: queueing.Sum(cs)}
		agg.ROI = roiPercent(agg.Savings, agg.Cost)
		out.ByActionType[t] = agg
	}
	return out, nil
}

// Entries returns a page of the ledger, newest first.
func (s *Service) Entries(ctx context.Context, limit, offset int) (Page, error) {
	if limit < 0 || offset < 0 {
		return Page{}, fmt.Errorf("ledger: limit and offset must be >= 0")
	}

	entries, err := s.entries.ListDescending(ctx, limit, offset)
	if err != nil {
		return Page{}, fmt.Errorf("list roi entries: %w", err)
	}
	total, err := s.entries.Count(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("count roi entries: %w", err)
	}
	report, err := s.VerifyChainIntegrity(ctx)
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Entries:    entries,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		ChainValid: report.Valid,
	}
	var savings, costs, nets []float64
	for _, e := range entries {
		if e.LossReduction > 0 {
			savings = append(savings, e.LossReduction)
		}
		costs = append(costs, e.ActionCost)
		nets = append(nets, e.NetBenefit)
	}
	page.Savings = queueing.Sum(savings)
	page.Cost = queueing.Sum(costs)
	page.NetBenefit = queueing.Sum(nets)
	return page, nil
}

func roiPercent(savings, cost float64) *float64 {
	if cost <= 0 {
		return nil
	}
	r := (savings/cost - 1) * 100
	return &r
}
