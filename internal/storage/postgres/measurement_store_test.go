package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func measurementAt(location string, offset time.Duration, arrivals int) domain.FlowMeasurement {
	return domain.FlowMeasurement{
		Timestamp:                day.Add(offset),
		LocationID:               location,
		LocationType:             domain.LocationFrontDesk,
		ArrivalCount:             arrivals,
		DepartureCount:           arrivals,
		QueueLength:              2,
		InServiceCount:           1,
		AvgWaitTime:              f(240.5),
		ObservationPeriodSeconds: 300,
	}
}

func TestMeasurementStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMeasurementStore(pool)
	ctx := context.Background()

	ms := []domain.FlowMeasurement{
		measurementAt("front_desk_1", 10*time.Minute, 3),
		measurementAt("front_desk_1", 5*time.Minute, 2),
		measurementAt("lobby_1", 5*time.Minute, 1),
		measurementAt("front_desk_1", 25*time.Hour, 9),
	}
	require.NoError(t, store.InsertBulk(ctx, ms))

	t.Run("range is ordered and half-open", func(t *testing.T) {
		got, err := store.GetByLocationRange(ctx, "front_desk_1", day, day.Add(10*time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 2, got[0].ArrivalCount)
		assert.Equal(t, domain.LocationFrontDesk, got[0].LocationType)
		require.NotNil(t, got[0].AvgWaitTime)
		assert.Equal(t, 240.5, *got[0].AvgWaitTime)
		assert.Nil(t, got[0].AvgServiceDuration)
		assert.True(t, got[0].Timestamp.Equal(day.Add(5*time.Minute)))
	})

	t.Run("day grouping", func(t *testing.T) {
		byLocation, err := store.GetByDay(ctx, day)
		require.NoError(t, err)
		assert.Len(t, byLocation["front_desk_1"], 2)
		assert.Len(t, byLocation["lobby_1"], 1)
	})

	t.Run("locations", func(t *testing.T) {
		ids, err := store.Locations(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"front_desk_1", "lobby_1"}, ids)
	})

	t.Run("duplicate rolls back the batch", func(t *testing.T) {
		err := store.InsertBulk(ctx, []domain.FlowMeasurement{
			measurementAt("spa_1", 0, 1),
			measurementAt("front_desk_1", 5*time.Minute, 2),
		})
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)

		got, err := store.GetByLocationRange(ctx, "spa_1", day, day.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
