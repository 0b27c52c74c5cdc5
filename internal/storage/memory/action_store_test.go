package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

func TestActionStore_InsertAndGet(t *testing.T) {
	store := NewActionStore()
	ctx := context.Background()

	a := &domain.ActionRecommendation{
		RecommendationID: "rec1",
		Date:             day,
		LocationID:       "front_desk_1",
		ActionType:       domain.ActionAddStaffPeak,
		MinRecoverable:   300,
		Supporting:       map[string]float64{"peak_hours_count": 3},
		Status:           domain.ActionPending,
	}
	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	a.Supporting["peak_hours_count"] = 9

	got, err := store.GetByID(ctx, "rec1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Supporting["peak_hours_count"] != 3 {
		t.Errorf("Stored map aliased caller memory")
	}

	if err := store.Insert(ctx, a); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	list, err := store.GetByDate(ctx, day.Add(5*time.Hour))
	if err != nil || len(list) != 1 {
		t.Errorf("GetByDate: got %d, err %v", len(list), err)
	}
}

func TestActionStore_UpdateStatusIsConditional(t *testing.T) {
	store := NewActionStore()
	ctx := context.Background()

	a := &domain.ActionRecommendation{RecommendationID: "rec1", Date: day, Status: domain.ActionPending}
	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	now := day.Add(30 * time.Hour)
	cost := 120.0
	update := &domain.ActionRecommendation{
		RecommendationID: "rec1",
		Status:           domain.ActionImplemented,
		ImplementedAt:    &now,
		ImplementedCost:  &cost,
	}
	if err := store.UpdateStatus(ctx, update, domain.ActionPending); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "rec1")
	if got.Status != domain.ActionImplemented || got.ImplementedCost == nil || *got.ImplementedCost != 120 {
		t.Errorf("Unexpected stored action: %+v", got)
	}

	if err := store.UpdateStatus(ctx, update, domain.ActionPending); !errors.Is(err, storage.ErrStatusConflict) {
		t.Errorf("Expected ErrStatusConflict, got %v", err)
	}

	update.RecommendationID = "missing"
	if err := store.UpdateStatus(ctx, update, domain.ActionPending); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
