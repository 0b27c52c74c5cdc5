package engine

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueloss/internal/domain"
	"queueloss/internal/loss"
	"queueloss/internal/queueing"
)

var (
	day   = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	fixed = time.Date(2024, 1, 16, 6, 0, 0, 0, time.UTC)
)

type interval struct {
	arrivals, departures, queue, inService int
	wait                                   *float64
}

func batch(location string, locType domain.LocationType, n int, s interval) []domain.FlowMeasurement {
	ms := make([]domain.FlowMeasurement, n)
	for i := range ms {
		ms[i] = domain.FlowMeasurement{
			Timestamp:                day.Add(8*time.Hour + time.Duration(i)*5*time.Minute),
			LocationID:               location,
			LocationType:             locType,
			ArrivalCount:             s.arrivals,
			DepartureCount:           s.departures,
			QueueLength:              s.queue,
			InServiceCount:           s.inService,
			AvgWaitTime:              s.wait,
			ObservationPeriodSeconds: 300,
		}
	}
	return ms
}

func f(v float64) *float64 { return &v }

// overloaded: λ exceeds three servers, long waits.
func overloaded() []domain.FlowMeasurement {
	return batch("front_desk_1", domain.LocationFrontDesk, 20, interval{20, 10, 15, 3, f(1200)})
}

// quiet: a third of capacity used, no wait data.
func quiet() []domain.FlowMeasurement {
	return batch("lobby_1", domain.LocationLobby, 20, interval{2, 2, 0, 1, nil})
}

// waiting: stable but customers wait 10 minutes.
func waiting() []domain.FlowMeasurement {
	return batch("restaurant_1", domain.LocationRestaurant, 20, interval{4, 4, 5, 2, f(600)})
}

func threeServers(locType domain.LocationType) domain.CapacityConstraint {
	return domain.MustCapacityConstraint(locType, 3, 30, 0.85)
}

func newEngine(t *testing.T, mutate func(*Options)) *Engine {
	t.Helper()
	calc, err := loss.NewCalculator(loss.DefaultParams())
	require.NoError(t, err)
	opts := Options{
		Loss:  calc,
		Clock: func() time.Time { return fixed },
	}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func TestNew_RequiresLossCalculator(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestAnalyzeLocation_EmptyBatch(t *testing.T) {
	e := newEngine(t, nil)
	a, err := e.AnalyzeLocation(nil, nil, day)
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, a.Status)
	assert.Nil(t, a.Queue)
}

func TestAnalyzeLocation_RejectsNegativeCounts(t *testing.T) {
	e := newEngine(t, nil)
	ms := quiet()
	ms[3].QueueLength = -1

	_, err := e.AnalyzeLocation(ms, nil, day)
	assert.ErrorIs(t, err, domain.ErrNegativeCount)
}

func TestAnalyzeLocation_Overloaded(t *testing.T) {
	e := newEngine(t, nil)
	c := threeServers(domain.LocationFrontDesk)

	a, err := e.AnalyzeLocation(overloaded(), &c, day)
	require.NoError(t, err)

	assert.Equal(t, StatusAnalyzed, a.Status)
	assert.Equal(t, "front_desk_1", a.LocationID)
	assert.Equal(t, queueing.OutcomeUnstable, a.Outcome)
	require.NotNil(t, a.Queue)
	assert.InDelta(t, 2.0, a.Queue.Rho, 1e-9)
	assert.InDelta(t, 2.0, a.DisplayRho, 1e-9)

	require.NotNil(t, a.ErlangC)
	assert.False(t, a.ErlangC.Stable)

	require.NotNil(t, a.Kingman)
	assert.False(t, a.Kingman.Stable)

	assert.Greater(t, a.Loss.LostThroughputRevenue, 0.0)
	assert.Greater(t, a.Loss.OvertimeCost, 0.0)
	assert.Equal(t, domain.LossThroughput, a.Loss.PrimaryCategory())
	assert.False(t, a.Verified())
	assert.Len(t, a.AuditHash, 64)
}

func TestAnalyzeLocation_StableCrossChecksErlangC(t *testing.T) {
	e := newEngine(t, nil)
	c := threeServers(domain.LocationRestaurant)

	a, err := e.AnalyzeLocation(waiting(), &c, day)
	require.NoError(t, err)

	require.NotNil(t, a.Queue)
	require.NotNil(t, a.ErlangC)
	assert.True(t, a.ErlangC.Stable)
	assert.InDelta(t, a.Queue.Rho, a.ErlangC.Rho, 1e-12)
	assert.True(t, a.Verified())
	assert.True(t, a.EntropyMeasured)
}

func TestAnalyzeLocation_Deterministic(t *testing.T) {
	e := newEngine(t, nil)
	c := threeServers(domain.LocationFrontDesk)

	ms := overloaded()
	for i := range ms {
		ms[i].ArrivalCount += i % 4
		ms[i].QueueLength += i % 3
	}
	shuffled := make([]domain.FlowMeasurement, len(ms))
	copy(shuffled, ms)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	a, err := e.AnalyzeLocation(ms, &c, day)
	require.NoError(t, err)
	b, err := e.AnalyzeLocation(shuffled, &c, day)
	require.NoError(t, err)

	assert.Equal(t, a.AuditHash, b.AuditHash)
	assert.Equal(t, a.Loss, b.Loss)
	assert.Equal(t, *a.Queue, *b.Queue)
}

func TestAnalyzeLocation_IsJSONSerializable(t *testing.T) {
	e := newEngine(t, nil)
	c := threeServers(domain.LocationFrontDesk)

	for _, ms := range [][]domain.FlowMeasurement{overloaded(), quiet(), waiting()} {
		a, err := e.AnalyzeLocation(ms, &c, day)
		require.NoError(t, err)
		_, err = json.Marshal(a)
		assert.NoError(t, err, ms[0].LocationID)
	}
}

func dayInput() (map[string][]domain.FlowMeasurement, map[string]domain.CapacityConstraint) {
	byLocation := map[string][]domain.FlowMeasurement{
		"front_desk_1": overloaded(),
		"lobby_1":      quiet(),
		"restaurant_1": waiting(),
	}
	capacities := map[string]domain.CapacityConstraint{
		"front_desk_1": threeServers(domain.LocationFrontDesk),
		"lobby_1":      threeServers(domain.LocationLobby),
	}
	return byLocation, capacities
}

func TestAnalyzeDay(t *testing.T) {
	e := newEngine(t, nil)
	byLocation, capacities := dayInput()

	report, err := e.AnalyzeDay(context.Background(), byLocation, capacities, day.Add(13*time.Hour))
	require.NoError(t, err)

	in := report.Insight
	assert.Equal(t, day, in.Date)
	assert.Equal(t, fixed, in.GeneratedAt)
	assert.Equal(t, "front_desk_1", in.TopLossLocation)
	assert.Equal(t, domain.LossThroughput.Cause(), in.TopLossCause)
	assert.Equal(t, 60, in.TotalObservations)
	assert.InDelta(t, 60.0/(288*3), in.DataCompleteness, 1e-12)
	assert.InDelta(t, 2.0/3.0, in.CalculationConfidence, 1e-12)
	assert.Len(t, in.CalculationHash, 64)

	sum := 0.0
	for _, v := range in.LossByLocation {
		sum += v
	}
	assert.InDelta(t, in.TotalLoss, sum, 1e-9)
	assert.InDelta(t, in.LossByLocation["front_desk_1"], in.TopLossAmount, 1e-12)

	rec := in.Recommendation
	assert.Equal(t, domain.ActionAddCapacity, rec.ActionType)
	assert.Equal(t, "front_desk_1", rec.LocationID)
	assert.Equal(t, domain.ActionPending, rec.Status)
	assert.Equal(t, 200.0, rec.ActionCost)
	assert.InDelta(t, report.Locations[0].Loss.LostThroughputRevenue*0.4, rec.MinRecoverable, 1e-9)
	assert.Contains(t, rec.Justification, "ρ = 2.00")

	require.Len(t, report.Locations, 3)
	assert.Equal(t, "front_desk_1", report.Locations[0].LocationID)
	assert.Equal(t, "lobby_1", report.Locations[1].LocationID)
	assert.Equal(t, "restaurant_1", report.Locations[2].LocationID)
	assert.Len(t, report.Snapshots(), 3)

	_, err = json.Marshal(report)
	assert.NoError(t, err)
}

func TestAnalyzeDay_DeterministicAcrossConcurrency(t *testing.T) {
	byLocation, capacities := dayInput()

	serial := newEngine(t, func(o *Options) { o.Concurrency = 1 })
	parallel := newEngine(t, func(o *Options) { o.Concurrency = 8 })

	a, err := serial.AnalyzeDay(context.Background(), byLocation, capacities, day)
	require.NoError(t, err)
	b, err := parallel.AnalyzeDay(context.Background(), byLocation, capacities, day)
	require.NoError(t, err)

	assert.Equal(t, a.Insight.CalculationHash, b.Insight.CalculationHash)
	assert.Equal(t, a.Insight.Recommendation, b.Insight.Recommendation)
}

func TestAnalyzeDay_NoLoss(t *testing.T) {
	e := newEngine(t, nil)

	report, err := e.AnalyzeDay(context.Background(), map[string][]domain.FlowMeasurement{
		"spa_1": nil,
	}, nil, day)
	require.NoError(t, err)

	in := report.Insight
	assert.Equal(t, "unknown", in.TopLossLocation)
	assert.Zero(t, in.TotalLoss)
	assert.Zero(t, in.DataCompleteness)
	assert.Equal(t, domain.ActionDataQuality, in.Recommendation.ActionType)
	assert.Equal(t, "general", in.Recommendation.LocationID)
	assert.Zero(t, in.Recommendation.MinRecoverable)
	assert.Zero(t, in.Recommendation.ActionCost)
	assert.Equal(t, StatusNoData, report.Locations[0].Status)
	assert.Equal(t, "spa_1", report.Locations[0].LocationID)
	assert.Empty(t, report.Snapshots())
}

func TestAnalyzeDay_BudgetExceeded(t *testing.T) {
	e := newEngine(t, func(o *Options) { o.Budget = time.Nanosecond })
	byLocation, capacities := dayInput()

	_, err := e.AnalyzeDay(context.Background(), byLocation, capacities, day)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestAnalyzeDay_ParentCancelled(t *testing.T) {
	e := newEngine(t, nil)
	byLocation, capacities := dayInput()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.AnalyzeDay(ctx, byLocation, capacities, day)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrBudgetExceeded)
}

func TestAnalyzeDay_PropagatesValidationError(t *testing.T) {
	e := newEngine(t, nil)
	bad := quiet()
	bad[0].ArrivalCount = -3

	_, err := e.AnalyzeDay(context.Background(), map[string][]domain.FlowMeasurement{"lobby_1": bad}, nil, day)
	assert.ErrorIs(t, err, domain.ErrNegativeCount)
}

func TestSafely_RecoversPanic(t *testing.T) {
	e := newEngine(t, nil)
	err := e.safely("boom", func() error { panic("divide by zero") })
	assert.ErrorIs(t, err, ErrInternal)
}
