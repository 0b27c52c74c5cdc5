package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"queueloss/internal/domain"
	"queueloss/internal/ledger"
	"queueloss/internal/storage"
)

const (
	// MinTrendDays is the fewest days of insights a trend is fitted on.
	MinTrendDays = 7

	// trendBand is the slope, as a fraction of mean daily loss, below which
	// the trend is stable.
	trendBand = 0.05

	// wowBand is the week-over-week change percentage within which losses are stable.
	wowBand = 5.0

	topLocations = 5
)

// Generator produces reports from stored insights.
type Generator struct {
	insights  storage.InsightStore
	snapshots storage.LossSnapshotStore // optional
	ledger    *ledger.Service           // optional
	now       func() time.Time          // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. snapshots and ledger may be nil.
func NewGenerator(insights storage.InsightStore, snapshots storage.LossSnapshotStore, l *ledger.Service) *Generator {
	return &Generator{
		insights:  insights,
		snapshots: snapshots,
		ledger:    l,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Daily loads one day's insight and per-location rows.
// Returns storage.ErrNotFound when the day has not been analyzed.
func (g *Generator) Daily(ctx context.Context, day time.Time) (*DailyReport, error) {
	in, err := g.insights.GetByDate(ctx, day)
	if err != nil {
		return nil, err
	}
	var snaps []*domain.LossSnapshot
	if g.snapshots != nil {
		snaps, err = g.snapshots.GetByDate(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("load snapshots: %w", err)
		}
	}
	return NewDailyReport(in, snaps), nil
}

// Weekly summarizes the seven days ending at end.
func (g *Generator) Weekly(ctx context.Context, end time.Time) (*WeeklySummary, error) {
	end = end.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -6)
	insights, err := g.insights.GetRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load insights: %w", err)
	}
	return WeeklySummaryOf(start, end, insights), nil
}

// Trend fits the daily loss of the days in the window ending at end.
func (g *Generator) Trend(ctx context.Context, end time.Time, days int) (*TrendAnalysis, error) {
	if days < 1 {
		return nil, fmt.Errorf("%w: days must be >= 1", storage.ErrInvalidInput)
	}
	end = end.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(days - 1))
	insights, err := g.insights.GetRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load insights: %w", err)
	}
	return TrendOf(start, end, insights), nil
}

// Summary builds the weekly view, a trend over trendDays and, when a ledger
// is configured, the cumulative ROI.
func (g *Generator) Summary(ctx context.Context, end time.Time, trendDays int) (*Summary, error) {
	weekly, err := g.Weekly(ctx, end)
	if err != nil {
		return nil, err
	}
	trend, err := g.Trend(ctx, end, trendDays)
	if err != nil {
		return nil, err
	}
	s := &Summary{GeneratedAt: g.now(), Weekly: weekly, Trend: trend}
	if g.ledger != nil {
		roi, err := g.ledger.CumulativeROI(ctx)
		if err != nil {
			return nil, fmt.Errorf("cumulative roi: %w", err)
		}
		s.ROI = &roi
	}
	return s, nil
}

// WeeklySummaryOf aggregates insights (ascending by date) of [start, end].
func WeeklySummaryOf(start, end time.Time, insights []*domain.DailyInsight) *WeeklySummary {
	s := &WeeklySummary{
		Start:        start.Format(time.DateOnly),
		End:          end.Format(time.DateOnly),
		DaysWithData: len(insights),
		TopLocations: []LocationLoss{},
		Daily:        []DayLoss{},
	}
	if len(insights) == 0 {
		return s
	}

	losses := make([]float64, len(insights))
	byLocation := make(map[string][]float64)
	var worst *domain.DailyInsight
	for i, in := range insights {
		losses[i] = in.TotalLoss
		if worst == nil || in.TotalLoss > worst.TotalLoss {
			worst = in
		}
		for id, l := range in.LossByLocation {
			byLocation[id] = append(byLocation[id], l)
		}
		s.Daily = append(s.Daily, DayLoss{
			Date:        in.Date.Format(time.DateOnly),
			TotalLoss:   Money(in.TotalLoss),
			TopLocation: in.TopLossLocation,
			TopCause:    in.TopLossCause,
		})
	}

	total := computeSum(losses)
	mean := total / float64(len(losses))
	s.TotalLoss = Money(total)
	s.AvgDailyLoss = Money(mean)
	s.P90DailyLoss = Money(computePercentile(sortedCopy(losses), 0.90))
	s.StddevLoss = Money(computeStddev(losses, mean))
	s.LongestRise = computeLongestRise(losses)
	s.WorstDay = &DayLoss{
		Date:        worst.Date.Format(time.DateOnly),
		TotalLoss:   Money(worst.TotalLoss),
		TopLocation: worst.TopLossLocation,
		TopCause:    worst.TopLossCause,
	}

	locs := make([]LocationLoss, 0, len(byLocation))
	for id, ls := range byLocation {
		sum := computeSum(ls)
		ll := LocationLoss{LocationID: id, TotalLoss: sum}
		if total > 0 {
			ll.Share = sum / total
		}
		locs = append(locs, ll)
	}
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].TotalLoss != locs[j].TotalLoss {
			return locs[i].TotalLoss > locs[j].TotalLoss
		}
		return locs[i].LocationID < locs[j].LocationID
	})
	if len(locs) > topLocations {
		locs = locs[:topLocations]
	}
	for i := range locs {
		locs[i].TotalLoss = Money(locs[i].TotalLoss)
		locs[i].Share = Rate(locs[i].Share)
	}
	s.TopLocations = locs
	return s
}

// TrendOf fits loss = a + b·day over insights (ascending by date) of
// [start, end], with day counted from the first insight.
func TrendOf(start, end time.Time, insights []*domain.DailyInsight) *TrendAnalysis {
	t := &TrendAnalysis{
		Start:        start.Format(time.DateOnly),
		End:          end.Format(time.DateOnly),
		DaysAnalyzed: len(insights),
	}
	if len(insights) < MinTrendDays {
		t.Direction = TrendInsufficientData
		t.Interpretation = fmt.Sprintf("need at least %d days of data for trend analysis", MinTrendDays)
		return t
	}

	first := insights[0].Date
	xs := make([]float64, len(insights))
	ys := make([]float64, len(insights))
	for i, in := range insights {
		xs[i] = in.Date.Sub(first).Hours() / 24
		ys[i] = in.TotalLoss
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	mean := computeMean(ys)
	t.SlopePerDay = Money(beta)
	t.OverallAvg = Money(mean)
	if r2 := stat.RSquared(xs, ys, nil, alpha, beta); !math.IsNaN(r2) {
		t.RSquared = Rate(r2)
	}

	switch {
	case beta < -trendBand*mean:
		t.Direction = TrendImproving
		t.Interpretation = fmt.Sprintf("Losses decreasing by ~$%.0f/day. Keep current improvements.", math.Abs(beta))
	case beta > trendBand*mean:
		t.Direction = TrendWorsening
		t.Interpretation = fmt.Sprintf("Losses increasing by ~$%.0f/day. Action recommended.", beta)
	default:
		t.Direction = TrendStable
		t.Interpretation = "Losses stable. Focus on top loss points for improvement."
	}

	if n := len(ys); n >= 14 {
		last := computeMean(ys[n-7:])
		prev := computeMean(ys[n-14 : n-7])
		lastR, prevR := Money(last), Money(prev)
		t.LastWeekAvg = &lastR
		t.PrevWeekAvg = &prevR
		if prev > 0 {
			change := (last - prev) / prev * 100
			rounded := roundTo(change, 1)
			t.WoWChangePct = &rounded
			switch {
			case change < -wowBand:
				t.WoWDirection = TrendImproving
			case change > wowBand:
				t.WoWDirection = TrendWorsening
			default:
				t.WoWDirection = TrendStable
			}
		}
	}
	return t
}
