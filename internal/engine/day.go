package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"queueloss/internal/domain"
	"queueloss/internal/idhash"
	"queueloss/internal/loss"
	"queueloss/internal/queueing"
)

// unknownLocation is reported when no location shows a positive loss.
const unknownLocation = "unknown"

// DayReport is the result of a full-day run.
type DayReport struct {
	Insight   domain.DailyInsight `json:"insight"`
	Locations []LocationAnalysis  `json:"locations"` // ascending by location id
}

// Snapshots returns the per-location loss rows of analyzed locations.
func (r DayReport) Snapshots() []domain.LossSnapshot {
	out := make([]domain.LossSnapshot, 0, len(r.Locations))
	for _, a := range r.Locations {
		if a.Status != StatusAnalyzed {
			continue
		}
		out = append(out, domain.LossSnapshot{
			Date:         r.Insight.Date,
			LocationID:   a.LocationID,
			LocationType: a.LocationType,
			Loss:         a.Loss,
			Utilization:  a.DisplayRho,
			EntropyScore: a.Entropy.EntropyScore,
			DataPoints:   a.DataPoints,
			AuditHash:    a.AuditHash,
		})
	}
	return out
}

// AnalyzeDay analyzes every location for one day and selects one recommendation.
//
// Locations run concurrently; results merge in location id order so the
// output does not depend on scheduling. capacities may miss locations.
// When the engine has a budget and the run overruns it, ErrBudgetExceeded is
// returned and the run can be retried.
func (e *Engine) AnalyzeDay(ctx context.Context, byLocation map[string][]domain.FlowMeasurement, capacities map[string]domain.CapacityConstraint, date time.Time) (DayReport, error) {
	date = date.UTC().Truncate(24 * time.Hour)
	generatedAt := e.clock()
	start := time.Now()

	runCtx := ctx
	if e.budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.budget)
		defer cancel()
	}

	ids := make([]string, 0, len(byLocation))
	for id := range byLocation {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	analyses := make([]LocationAnalysis, len(ids))
	g, gctx := errgroup.WithContext(runCtx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var capacity *domain.CapacityConstraint
			if c, ok := capacities[id]; ok {
				capacity = &c
			}
			a, err := e.AnalyzeLocation(byLocation[id], capacity, date)
			if err != nil {
				return fmt.Errorf("location %s: %w", id, err)
			}
			if a.Status == StatusNoData {
				a.LocationID = id
			}
			analyses[i] = a
			return nil
		})
	}
	err := g.Wait()

	if ctx.Err() != nil {
		return DayReport{}, fmt.Errorf("analyze day: %w", ctx.Err())
	}
	if e.budget > 0 && (errors.Is(runCtx.Err(), context.DeadlineExceeded) || time.Since(start) > e.budget) {
		e.logger.Warn("day run over budget", "date", date.Format(time.DateOnly), "budget", e.budget)
		return DayReport{}, fmt.Errorf("analyze day %s: %w", date.Format(time.DateOnly), ErrBudgetExceeded)
	}
	if err != nil {
		return DayReport{}, fmt.Errorf("analyze day: %w", err)
	}

	report := DayReport{Locations: analyses}
	report.Insight = e.buildInsight(date, generatedAt, ids, byLocation, analyses)

	e.logger.Info("day analyzed",
		"date", date.Format(time.DateOnly),
		"locations", len(ids),
		"total_loss", report.Insight.TotalLoss,
		"top_location", report.Insight.TopLossLocation,
		"action", report.Insight.Recommendation.ActionType,
	)
	return report, nil
}

func (e *Engine) buildInsight(date, generatedAt time.Time, ids []string, byLocation map[string][]domain.FlowMeasurement, analyses []LocationAnalysis) domain.DailyInsight {
	losses := make(map[string]domain.FinancialLoss)
	lossByLocation := make(map[string]float64)
	analyzed := make(map[string]LocationAnalysis)
	totals := make([]float64, 0, len(analyses))
	verified := 0

	for _, a := range analyses {
		if a.Verified() {
			verified++
		}
		if a.Status != StatusAnalyzed {
			continue
		}
		losses[a.LocationID] = a.Loss
		lossByLocation[a.LocationID] = a.TotalLoss
		analyzed[a.LocationID] = a
		totals = append(totals, a.TotalLoss)
	}

	observations := 0
	for _, id := range ids {
		observations += len(byLocation[id])
	}

	top := loss.IdentifyTopLossPoint(losses)
	rec := e.recommend(date, top, analyzed)

	in := domain.DailyInsight{
		Date:              date,
		GeneratedAt:       generatedAt,
		TopLossLocation:   unknownLocation,
		TopLossCause:      "Unknown",
		Recommendation:    rec,
		TotalLoss:         queueing.Sum(totals),
		TotalObservations: observations,
		LossByLocation:    lossByLocation,
	}
	if top.Found {
		in.TopLossLocation = top.LocationID
		in.TopLossAmount = top.Amount
		in.TopLossCause = top.PrimaryCause
	}
	if len(ids) > 0 {
		expected := float64(e.expectedPerDay * len(ids))
		in.DataCompleteness = min(1, float64(observations)/expected)
		in.CalculationConfidence = float64(verified) / float64(len(ids))
	}
	in.CalculationHash = idhash.ComputeCalculationHash(date, in.TotalLoss, observations, lossByLocation, in.TopLossLocation)
	return in
}
