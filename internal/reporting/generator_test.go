package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
	"queueloss/internal/storage/memory"
)

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func insightOn(d time.Time, total float64, byLoc map[string]float64) *domain.DailyInsight {
	top, amount := "unknown", 0.0
	for id, l := range byLoc {
		if l > amount || (l == amount && id < top) {
			top, amount = id, l
		}
	}
	return &domain.DailyInsight{
		Date:            d,
		GeneratedAt:     d.Add(23 * time.Hour),
		TopLossLocation: top,
		TopLossAmount:   amount,
		TopLossCause:    "wait_time",
		TotalLoss:       total,
		LossByLocation:  byLoc,
		Recommendation: domain.ActionRecommendation{
			RecommendationID: "rec",
			ActionType:       domain.ActionScheduleOptimization,
			MinRecoverable:   30,
			MaxRecoverable:   50,
			Status:           domain.ActionPending,
		},
	}
}

func seed(t *testing.T, store *memory.InsightStore, insights ...*domain.DailyInsight) {
	t.Helper()
	for _, in := range insights {
		require.NoError(t, store.Insert(context.Background(), in))
	}
}

func TestGenerator_Daily(t *testing.T) {
	ctx := context.Background()
	insights := memory.NewInsightStore()
	snapshots := memory.NewLossSnapshotStore()

	seed(t, insights, insightOn(day, 1234.5678, map[string]float64{"front_desk_1": 1000.004, "lobby_1": 234.5638}))
	require.NoError(t, snapshots.InsertBulk(ctx, []*domain.LossSnapshot{
		{Date: day, LocationID: "lobby_1", Loss: domain.FinancialLoss{IdleTimeCost: 234.5638}, Utilization: 0.333333},
		{Date: day, LocationID: "front_desk_1", Loss: domain.FinancialLoss{WaitTimeCost: 1000.004}},
	}))

	g := NewGenerator(insights, snapshots, nil)
	r, err := g.Daily(ctx, day)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-15", r.Date)
	assert.Equal(t, 1234.57, r.TotalLoss)
	assert.Equal(t, 1000.0, r.LossByLocation["front_desk_1"])
	require.Len(t, r.Locations, 2)
	assert.Equal(t, "front_desk_1", r.Locations[0].LocationID)
	assert.Equal(t, 0.3333, r.Locations[1].Utilization)
	// Free action with recovery has an unbounded ratio.
	assert.Nil(t, r.Recommendation.ROIRatio)

	md := RenderDailyMarkdown(r)
	assert.Contains(t, md, "# Daily Loss Report: 2024-01-15")
	assert.Contains(t, md, "| Total Loss | $1234.57 |")
	assert.Contains(t, md, "unbounded")

	csv := RenderLocationsCSV(r.Date, r.Locations)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "2024-01-15,front_desk_1,"))

	_, err = g.Daily(ctx, day.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGenerator_Weekly(t *testing.T) {
	ctx := context.Background()
	insights := memory.NewInsightStore()
	seed(t, insights,
		insightOn(day.AddDate(0, 0, -7), 9999, map[string]float64{"old": 9999}), // outside the week
		insightOn(day.AddDate(0, 0, -6), 100, map[string]float64{"a": 60, "b": 40}),
		insightOn(day.AddDate(0, 0, -3), 300, map[string]float64{"a": 100, "b": 200}),
		insightOn(day, 200, map[string]float64{"a": 150, "c": 50}),
	)

	w, err := NewGenerator(insights, nil, nil).Weekly(ctx, day.Add(15*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "2024-01-09", w.Start)
	assert.Equal(t, "2024-01-15", w.End)
	assert.Equal(t, 3, w.DaysWithData)
	assert.Equal(t, 600.0, w.TotalLoss)
	assert.Equal(t, 200.0, w.AvgDailyLoss)
	require.NotNil(t, w.WorstDay)
	assert.Equal(t, "2024-01-12", w.WorstDay.Date)
	assert.Equal(t, 1, w.LongestRise)

	require.Len(t, w.TopLocations, 3)
	assert.Equal(t, "a", w.TopLocations[0].LocationID)
	assert.Equal(t, 310.0, w.TopLocations[0].TotalLoss)
	assert.Equal(t, 0.5167, w.TopLocations[0].Share)
	assert.Equal(t, "b", w.TopLocations[1].LocationID)
	assert.Len(t, w.Daily, 3)
}

func TestWeeklySummaryOf_Empty(t *testing.T) {
	w := WeeklySummaryOf(day.AddDate(0, 0, -6), day, nil)
	assert.Equal(t, 0, w.DaysWithData)
	assert.Nil(t, w.WorstDay)
	assert.Empty(t, w.TopLocations)
}

func linearInsights(n int, start, slope float64) []*domain.DailyInsight {
	out := make([]*domain.DailyInsight, n)
	for i := range out {
		total := start + slope*float64(i)
		out[i] = insightOn(day.AddDate(0, 0, i), total, map[string]float64{"a": total})
	}
	return out
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		name      string
		insights  []*domain.DailyInsight
		direction TrendDirection
		wow       TrendDirection
	}{
		{"too few days", linearInsights(6, 1000, -50), TrendInsufficientData, ""},
		{"improving", linearInsights(14, 1000, -50), TrendImproving, TrendImproving},
		{"worsening", linearInsights(10, 100, 50), TrendWorsening, ""},
		{"stable", linearInsights(14, 1000, 1), TrendStable, TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end := day.AddDate(0, 0, 29)
			tr := TrendOf(day, end, tt.insights)
			assert.Equal(t, tt.direction, tr.Direction)
			assert.Equal(t, tt.wow, tr.WoWDirection)
			assert.NotEmpty(t, tr.Interpretation)
		})
	}
}

func TestTrendOf_Values(t *testing.T) {
	tr := TrendOf(day, day.AddDate(0, 0, 13), linearInsights(14, 1000, -50))

	assert.InDelta(t, -50.0, tr.SlopePerDay, 0.01)
	assert.InDelta(t, 1.0, tr.RSquared, 1e-4)
	assert.Equal(t, 675.0, tr.OverallAvg)
	require.NotNil(t, tr.LastWeekAvg)
	assert.Equal(t, 500.0, *tr.LastWeekAvg)
	assert.Equal(t, 850.0, *tr.PrevWeekAvg)
	require.NotNil(t, tr.WoWChangePct)
	assert.Equal(t, -41.2, *tr.WoWChangePct)
}

func TestGenerator_Summary(t *testing.T) {
	ctx := context.Background()
	insights := memory.NewInsightStore()
	seed(t, insights, linearInsights(14, 1000, -50)...)
	fixed := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	g := NewGenerator(insights, nil, nil).WithClock(func() time.Time { return fixed })
	s, err := g.Summary(ctx, day.AddDate(0, 0, 13), 30)
	require.NoError(t, err)
	assert.Equal(t, fixed, s.GeneratedAt)
	assert.Equal(t, 7, s.Weekly.DaysWithData)
	assert.Equal(t, TrendImproving, s.Trend.Direction)
	assert.Nil(t, s.ROI)

	md := RenderSummaryMarkdown(s)
	assert.Contains(t, md, "# Loss Summary Report")
	assert.Contains(t, md, "Direction: **improving** over 14 days")
	assert.Contains(t, md, "No verified improvements yet.")

	_, err = g.Trend(ctx, day, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
