package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueloss/internal/domain"
	"queueloss/internal/idhash"
	"queueloss/internal/loss"
	"queueloss/internal/storage"
	"queueloss/internal/storage/memory"
)

var (
	day   = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	fixed = time.Date(2024, 1, 25, 9, 30, 0, 123456789, time.UTC)
)

type fixture struct {
	svc          *Service
	actions      *memory.ActionStore
	entries      *memory.RoiEntryStore
	measurements *memory.MeasurementStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	calc, err := loss.NewCalculator(loss.DefaultParams())
	require.NoError(t, err)

	fx := fixture{
		actions:      memory.NewActionStore(),
		entries:      memory.NewRoiEntryStore(),
		measurements: memory.NewMeasurementStore(),
	}
	fx.svc, err = NewService(Options{
		Actions:      fx.actions,
		Entries:      fx.entries,
		Measurements: fx.measurements,
		Calculator:   calc,
		Clock:        func() time.Time { return fixed },
	})
	require.NoError(t, err)
	return fx
}

func (fx fixture) addAction(t *testing.T, location string, cost float64) *domain.ActionRecommendation {
	t.Helper()
	a := &domain.ActionRecommendation{
		RecommendationID: idhash.ComputeRecommendationID(day, location, domain.ActionAddStaffPeak),
		Date:             day,
		LocationID:       location,
		ActionType:       domain.ActionAddStaffPeak,
		ActionCost:       cost,
		MinRecoverable:   100,
		Status:           domain.ActionPending,
	}
	require.NoError(t, fx.actions.Insert(context.Background(), a))
	return a
}

// addDay stores ten 5-minute intervals with queue 5 and the given wait.
func (fx fixture) addDay(t *testing.T, location string, d time.Time, waitSeconds float64) {
	t.Helper()
	ms := make([]domain.FlowMeasurement, 10)
	for i := range ms {
		w := waitSeconds
		ms[i] = domain.FlowMeasurement{
			Timestamp:                d.Add(9*time.Hour + time.Duration(i)*5*time.Minute),
			LocationID:               location,
			LocationType:             domain.LocationFrontDesk,
			ArrivalCount:             4,
			DepartureCount:           4,
			QueueLength:              5,
			InServiceCount:           2,
			AvgWaitTime:              &w,
			ObservationPeriodSeconds: 300,
		}
	}
	require.NoError(t, fx.measurements.InsertBulk(context.Background(), ms))
}

func periods(t *testing.T) (Period, Period) {
	t.Helper()
	before, err := NewPeriod(day, day)
	require.NoError(t, err)
	after, err := NewPeriod(day.AddDate(0, 0, 7), day.AddDate(0, 0, 8))
	require.NoError(t, err)
	return before, after
}

func TestNewService_RequiresStores(t *testing.T) {
	_, err := NewService(Options{Actions: memory.NewActionStore()})
	assert.Error(t, err)
}

func TestNewPeriod(t *testing.T) {
	p, err := NewPeriod(day.Add(5*time.Hour), day.AddDate(0, 0, 6).Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, day, p.Start)
	assert.Equal(t, 7, p.Days())

	_, err = NewPeriod(day, day.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestImplement(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.addAction(t, "front_desk_1", 200)

	cost := 150.0
	got, err := fx.svc.Implement(ctx, a.RecommendationID, &cost)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionImplemented, got.Status)
	require.NotNil(t, got.ImplementedCost)
	assert.Equal(t, 150.0, *got.ImplementedCost)
	require.NotNil(t, got.ImplementedAt)
	assert.True(t, got.ImplementedAt.Equal(fixed.Truncate(time.Microsecond)))

	stored, err := fx.actions.GetByID(ctx, a.RecommendationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionImplemented, stored.Status)

	_, err = fx.svc.Implement(ctx, a.RecommendationID, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestImplement_DefaultsToRecommendedCost(t *testing.T) {
	fx := newFixture(t)
	a := fx.addAction(t, "front_desk_1", 75)

	got, err := fx.svc.Implement(context.Background(), a.RecommendationID, nil)
	require.NoError(t, err)
	assert.Equal(t, 75.0, *got.ImplementedCost)
}

func TestImplement_Errors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Implement(ctx, "missing", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	a := fx.addAction(t, "front_desk_1", 75)
	neg := -1.0
	_, err = fx.svc.Implement(ctx, a.RecommendationID, &neg)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestVerifyImprovement(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.addAction(t, "front_desk_1", 200)

	// Before: 10 × (600−300)s × 5 waiting = 15000s → 250 min × $2 × 0.7 = 350/day.
	fx.addDay(t, "front_desk_1", day, 600)
	// After: 10 × (420−300)s × 5 = 6000s → 140 over a 2-day period = 70/day.
	fx.addDay(t, "front_desk_1", day.AddDate(0, 0, 7), 420)
	// Another location is ignored.
	fx.addDay(t, "lobby_1", day, 3000)

	before, after := periods(t)
	v, err := fx.svc.VerifyImprovement(ctx, a.RecommendationID, before, after)
	require.NoError(t, err)

	assert.True(t, v.Valid)
	assert.Equal(t, "front_desk_1", v.LocationID)
	assert.InDelta(t, 350.0, v.BeforeDailyLoss, 1e-9)
	assert.InDelta(t, 70.0, v.AfterDailyLoss, 1e-9)
	assert.InDelta(t, 280.0, v.LossReduction, 1e-9)
	assert.InDelta(t, 80.0, v.ImprovementPercentage, 1e-9)
	assert.InDelta(t, 0.1, v.Confidence, 1e-12)
	assert.Equal(t, 10, v.BeforeDataPoints)
	assert.Equal(t, 10, v.AfterDataPoints)
}

func TestVerifyImprovement_InsufficientData(t *testing.T) {
	fx := newFixture(t)
	a := fx.addAction(t, "front_desk_1", 200)
	fx.addDay(t, "front_desk_1", day, 600)

	before, after := periods(t)
	v, err := fx.svc.VerifyImprovement(context.Background(), a.RecommendationID, before, after)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "insufficient data for comparison", v.Notes)
	assert.Zero(t, v.LossReduction)
}

func TestVerifyImprovement_ConfidenceSaturates(t *testing.T) {
	fx := newFixture(t)
	a := fx.addAction(t, "front_desk_1", 200)
	for i := 0; i < 11; i++ {
		fx.addDay(t, "front_desk_1", day.AddDate(0, 0, -i), 600)
		fx.addDay(t, "front_desk_1", day.AddDate(0, 0, 7+i), 420)
	}

	before, err := NewPeriod(day.AddDate(0, 0, -10), day)
	require.NoError(t, err)
	after, err := NewPeriod(day.AddDate(0, 0, 7), day.AddDate(0, 0, 17))
	require.NoError(t, err)

	v, err := fx.svc.VerifyImprovement(context.Background(), a.RecommendationID, before, after)
	require.NoError(t, err)
	assert.Equal(t, 110, v.BeforeDataPoints)
	assert.Equal(t, 1.0, v.Confidence)
	assert.InDelta(t, 350.0, v.BeforeDailyLoss, 1e-9)
	assert.InDelta(t, 140.0, v.AfterDailyLoss, 1e-9)
}

func TestRecord_FullLifecycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.addAction(t, "front_desk_1", 200)
	fx.addDay(t, "front_desk_1", day, 600)
	fx.addDay(t, "front_desk_1", day.AddDate(0, 0, 7), 420)
	before, after := periods(t)

	// Pending actions cannot be recorded.
	_, _, err := fx.svc.VerifyAndRecord(ctx, a.RecommendationID, before, after)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	cost := 150.0
	_, err = fx.svc.Implement(ctx, a.RecommendationID, &cost)
	require.NoError(t, err)

	entry, v, err := fx.svc.VerifyAndRecord(ctx, a.RecommendationID, before, after)
	require.NoError(t, err)
	require.True(t, v.Valid)

	assert.Equal(t, int64(1), entry.SequenceNumber)
	assert.Equal(t, domain.GenesisHash, entry.PreviousEntryHash)
	assert.Equal(t, idhash.ComputeEntryHash(*entry), entry.EntryHash)
	assert.Equal(t, a.RecommendationID, entry.ActionID)
	assert.Equal(t, domain.ActionAddStaffPeak, entry.ActionType)
	assert.Equal(t, 150.0, entry.ActionCost)
	assert.InDelta(t, 130.0, entry.NetBenefit, 1e-9)
	assert.Equal(t, before.Start, entry.BeforeDate)
	assert.Equal(t, after.Start, entry.AfterDate)
	assert.Equal(t, fixed.Truncate(time.Microsecond), entry.Timestamp)

	stored, err := fx.actions.GetByID(ctx, a.RecommendationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionVerified, stored.Status)

	// Verified is terminal.
	_, err = fx.svc.Record(ctx, a.RecommendationID, v)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecord_RejectsInvalidVerification(t *testing.T) {
	fx := newFixture(t)
	a := fx.addAction(t, "front_desk_1", 200)
	_, err := fx.svc.Implement(context.Background(), a.RecommendationID, nil)
	require.NoError(t, err)

	_, err = fx.svc.Record(context.Background(), a.RecommendationID, Verification{Notes: "insufficient data for comparison"})
	assert.ErrorIs(t, err, ErrUnverified)

	stored, err := fx.actions.GetByID(context.Background(), a.RecommendationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionImplemented, stored.Status)
}

// failingEntries rejects every append.
type failingEntries struct {
	*memory.RoiEntryStore
}

func (failingEntries) AppendNext(context.Context, storage.BuildEntryFunc) (*domain.ROILogEntry, error) {
	return nil, storage.ErrSequenceConflict
}

func TestRecord_ReleasesClaimOnAppendFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	svc, err := NewService(Options{
		Actions: fx.actions,
		Entries: failingEntries{memory.NewRoiEntryStore()},
	})
	require.NoError(t, err)

	a := fx.addAction(t, "front_desk_1", 200)
	spent := 180.0
	_, err = svc.Implement(ctx, a.RecommendationID, &spent)
	require.NoError(t, err)
	implemented, err := fx.actions.GetByID(ctx, a.RecommendationID)
	require.NoError(t, err)

	_, err = svc.Record(ctx, a.RecommendationID, verificationFor(a, 30, 20))
	assert.ErrorIs(t, err, storage.ErrSequenceConflict)

	stored, err := fx.actions.GetByID(ctx, a.RecommendationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionImplemented, stored.Status)
	assert.Equal(t, implemented, stored, "release restores the implemented record unchanged")

	// the released action can be recorded once the ledger accepts writes
	retry, err := NewService(Options{Actions: fx.actions, Entries: memory.NewRoiEntryStore()})
	require.NoError(t, err)
	entry, err := retry.Record(ctx, a.RecommendationID, verificationFor(a, 30, 20))
	require.NoError(t, err)
	assert.Equal(t, spent, entry.ActionCost)
	assert.Equal(t, -170.0, entry.NetBenefit)
}

// verificationFor builds a passing verification of a with consistent savings.
func verificationFor(a *domain.ActionRecommendation, beforeLoss, afterLoss float64) Verification {
	v := Verification{
		ActionID:        a.RecommendationID,
		LocationID:      a.LocationID,
		Before:          Period{Start: day, End: day},
		After:           Period{Start: day.AddDate(0, 0, 7), End: day.AddDate(0, 0, 7)},
		Valid:           true,
		BeforeDailyLoss: beforeLoss,
		AfterDailyLoss:  afterLoss,
		LossReduction:   beforeLoss - afterLoss,
	}
	if beforeLoss > 0 {
		v.ImprovementPercentage = v.LossReduction / beforeLoss * 100
	}
	return v
}

// recordN implements and records n actions at distinct locations.
// Entry i drops the daily loss from 100+50(i+1) to 100.
func recordN(t *testing.T, fx fixture, n int) []*domain.ROILogEntry {
	t.Helper()
	ctx := context.Background()
	out := make([]*domain.ROILogEntry, n)
	for i := 0; i < n; i++ {
		a := fx.addAction(t, fmt.Sprintf("desk_%d", i), 100)
		_, err := fx.svc.Implement(ctx, a.RecommendationID, nil)
		require.NoError(t, err)
		out[i], err = fx.svc.Record(ctx, a.RecommendationID, verificationFor(a, float64(100+50*(i+1)), 100))
		require.NoError(t, err)
	}
	return out
}

func TestRecord_RejectsInconsistentVerification(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Verification)
	}{
		{"other action", func(v *Verification) { v.ActionID = "other" }},
		{"other location", func(v *Verification) { v.LocationID = "forged" }},
		{"inflated reduction", func(v *Verification) { v.LossReduction = 1e6 }},
		{"reduction without losses", func(v *Verification) { v.BeforeDailyLoss, v.AfterDailyLoss = 0, 0 }},
		{"wrong percentage", func(v *Verification) { v.ImprovementPercentage = 99 }},
		{"nan loss", func(v *Verification) { v.AfterDailyLoss = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			ctx := context.Background()
			a := fx.addAction(t, "front_desk_1", 100)
			_, err := fx.svc.Implement(ctx, a.RecommendationID, nil)
			require.NoError(t, err)

			v := verificationFor(a, 300, 100)
			tt.mutate(&v)
			_, err = fx.svc.Record(ctx, a.RecommendationID, v)
			assert.ErrorIs(t, err, ErrInconsistentVerification)

			stored, err := fx.actions.GetByID(ctx, a.RecommendationID)
			require.NoError(t, err)
			assert.Equal(t, domain.ActionImplemented, stored.Status)

			head, err := fx.entries.Head(ctx)
			require.NoError(t, err)
			assert.Zero(t, head.SequenceNumber)
		})
	}
}

func TestRecord_EntryValuesFollowFromLosses(t *testing.T) {
	fx := newFixture(t)
	entries := recordN(t, fx, 1)

	e := entries[0]
	assert.Equal(t, 150.0, e.BeforeLoss)
	assert.Equal(t, 100.0, e.AfterLoss)
	assert.InDelta(t, 50.0, e.LossReduction, 1e-9)
	assert.InDelta(t, 100.0/3, e.ImprovementPercentage, 1e-9)
	assert.InDelta(t, -50.0, e.NetBenefit, 1e-9)
}

func TestRecord_ConcurrentAppendsFormOneChain(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	const n = 20
	vs := make([]Verification, n)
	for i := range vs {
		a := fx.addAction(t, fmt.Sprintf("desk_%d", i), 10)
		_, err := fx.svc.Implement(ctx, a.RecommendationID, nil)
		require.NoError(t, err)
		vs[i] = verificationFor(a, 1, 0)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, v := range vs {
		wg.Add(1)
		go func(i int, v Verification) {
			defer wg.Done()
			_, errs[i] = fx.svc.Record(ctx, v.ActionID, v)
		}(i, v)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	report, err := fx.svc.VerifyChainIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, n, report.Entries)
}
