package clickhouse

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
	"queueloss/internal/storage/migrations"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestLossSnapshotStore(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLossSnapshotStore(conn)
	ctx := context.Background()

	snaps := []*domain.LossSnapshot{
		{
			Date:         day,
			LocationID:   "lobby_1",
			LocationType: domain.LocationLobby,
			Loss:         domain.FinancialLoss{IdleTimeCost: 10, IdleServerSeconds: 2400},
			Utilization:  0.33,
			DataPoints:   3,
			AuditHash:    "h1",
		},
		{
			Date:         day,
			LocationID:   "front_desk_1",
			LocationType: domain.LocationFrontDesk,
			Loss:         domain.FinancialLoss{WaitTimeCost: 50, LostCustomers: 4, Walkaways: 2},
			Utilization:  1.8,
			DataPoints:   3,
			AuditHash:    "h2",
		},
		{Date: day.AddDate(0, 0, 1), LocationID: "front_desk_1", LocationType: domain.LocationFrontDesk},
	}
	require.NoError(t, store.InsertBulk(ctx, snaps))

	err := store.InsertBulk(ctx, snaps[:1])
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	byDay, err := store.GetByDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, byDay, 2)
	assert.Equal(t, "front_desk_1", byDay[0].LocationID)
	assert.Equal(t, domain.LocationFrontDesk, byDay[0].LocationType)
	assert.Equal(t, 4, byDay[0].Loss.LostCustomers)
	assert.Equal(t, 2, byDay[0].Loss.Walkaways)
	assert.InDelta(t, 50.0, byDay[0].Loss.TotalLoss(), 1e-9)
	assert.True(t, day.Equal(byDay[0].Date))

	byLoc, err := store.GetByLocation(ctx, "front_desk_1", day, day.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, byLoc, 2)
	assert.True(t, byLoc[0].Date.Before(byLoc[1].Date))
}

func TestInsightStore(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewInsightStore(conn)
	ctx := context.Background()

	in := &domain.DailyInsight{
		Date:            day,
		GeneratedAt:     day.Add(23 * time.Hour),
		TopLossLocation: "front_desk_1",
		TopLossAmount:   1234.5,
		TopLossCause:    "lost_throughput",
		Recommendation: domain.ActionRecommendation{
			RecommendationID: "rec-1",
			Date:             day,
			LocationID:       "front_desk_1",
			ActionType:       domain.ActionAddCapacity,
			MinRecoverable:   100,
			MaxRecoverable:   200,
			ActionCost:       50,
			Status:           domain.ActionPending,
			Supporting:       map[string]float64{"utilization": 2},
		},
		TotalLoss:         1500,
		TotalObservations: 9,
		LossByLocation:    map[string]float64{"front_desk_1": 1234.5, "lobby_1": 265.5},
		DataCompleteness:  0.01,
		CalculationHash:   "abc",
	}
	require.NoError(t, store.Insert(ctx, in))

	err := store.Insert(ctx, &domain.DailyInsight{Date: day})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "front_desk_1", got.TopLossLocation)
	assert.Equal(t, 9, got.TotalObservations)
	assert.Equal(t, in.LossByLocation, got.LossByLocation)
	assert.Equal(t, domain.ActionAddCapacity, got.Recommendation.ActionType)
	assert.Equal(t, 2.0, got.Recommendation.Supporting["utilization"])
	assert.True(t, in.GeneratedAt.Equal(got.GeneratedAt))

	_, err = store.GetByDate(ctx, day.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Insert(ctx, &domain.DailyInsight{Date: day.AddDate(0, 0, 2), GeneratedAt: day}))
	rng, err := store.GetRange(ctx, day, day.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.Len(t, rng, 2)
	assert.True(t, rng[0].Date.Before(rng[1].Date))
}

func TestMigrations_SecondRunIsNoop(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	ran, err := migrations.ApplyClickhouse(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, ran)

	var recorded uint64
	require.NoError(t, conn.QueryRow(ctx, `SELECT count() FROM schema_migrations`).Scan(&recorded))
	all, err := migrations.Load(os.DirFS("../migrations"), "clickhouse")
	require.NoError(t, err)
	assert.Equal(t, uint64(len(all)), recorded)
}
