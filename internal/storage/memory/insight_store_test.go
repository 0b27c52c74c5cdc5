package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

func TestInsightStore(t *testing.T) {
	store := NewInsightStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		in := &domain.DailyInsight{
			Date:           day.AddDate(0, 0, i),
			TotalLoss:      float64(100 * (i + 1)),
			LossByLocation: map[string]float64{"a": float64(i)},
		}
		if err := store.Insert(ctx, in); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	if err := store.Insert(ctx, &domain.DailyInsight{Date: day.Add(3 * time.Hour)}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByDate(ctx, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	if got.TotalLoss != 200 {
		t.Errorf("Expected 200, got %f", got.TotalLoss)
	}

	rng, _ := store.GetRange(ctx, day.AddDate(0, 0, 1), day.AddDate(0, 0, 5))
	if len(rng) != 2 || !rng[0].Date.Before(rng[1].Date) {
		t.Errorf("Unexpected range result")
	}

	if _, err := store.GetByDate(ctx, day.AddDate(0, 0, -1)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLossSnapshotStore(t *testing.T) {
	store := NewLossSnapshotStore()
	ctx := context.Background()

	snaps := []*domain.LossSnapshot{
		{Date: day, LocationID: "lobby_1", Loss: domain.FinancialLoss{IdleTimeCost: 10}},
		{Date: day, LocationID: "front_desk_1", Loss: domain.FinancialLoss{WaitTimeCost: 50}},
		{Date: day.AddDate(0, 0, 1), LocationID: "front_desk_1"},
	}
	if err := store.InsertBulk(ctx, snaps); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, snaps[:1]); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	byDay, _ := store.GetByDate(ctx, day)
	if len(byDay) != 2 || byDay[0].LocationID != "front_desk_1" {
		t.Errorf("Expected two snapshots sorted by location")
	}

	byLoc, _ := store.GetByLocation(ctx, "front_desk_1", day, day.AddDate(0, 0, 7))
	if len(byLoc) != 2 || !byLoc[0].Date.Before(byLoc[1].Date) {
		t.Errorf("Expected two snapshots in date order")
	}
}

func TestRunProgressStore(t *testing.T) {
	store := NewRunProgressStore()
	ctx := context.Background()

	if _, err := store.GetLastProcessed(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.SetLastProcessed(ctx, &storage.RunProgress{Day: day, CalculationHash: "abc"}); err != nil {
		t.Fatalf("SetLastProcessed failed: %v", err)
	}
	got, err := store.GetLastProcessed(ctx)
	if err != nil || !got.Day.Equal(day) || got.CalculationHash != "abc" {
		t.Errorf("Unexpected progress: %+v, %v", got, err)
	}
}
