package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

// ActionStore is an in-memory implementation of storage.ActionStore.
type ActionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ActionRecommendation // keyed by recommendation_id
}

// NewActionStore creates a new in-memory action store.
func NewActionStore() *ActionStore {
	return &ActionStore{
		data: make(map[string]*domain.ActionRecommendation),
	}
}

// Insert adds a new recommendation. Returns ErrDuplicateKey if recommendation_id exists.
func (s *ActionStore) Insert(_ context.Context, a *domain.ActionRecommendation) error {
	if a == nil || a.RecommendationID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.RecommendationID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[a.RecommendationID] = cloneAction(a)
	return nil
}

// GetByID retrieves a recommendation. Returns ErrNotFound if not exists.
func (s *ActionStore) GetByID(_ context.Context, recommendationID string) (*domain.ActionRecommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[recommendationID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneAction(a), nil
}

// GetByDate retrieves recommendations made for a UTC day, ordered by recommendation_id.
func (s *ActionStore) GetByDate(_ context.Context, day time.Time) ([]*domain.ActionRecommendation, error) {
	day = day.UTC().Truncate(24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ActionRecommendation
	for _, a := range s.data {
		if a.Date.UTC().Truncate(24 * time.Hour).Equal(day) {
			result = append(result, cloneAction(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RecommendationID < result[j].RecommendationID
	})
	return result, nil
}

// UpdateStatus stores a's status fields if the stored status still equals expected.
func (s *ActionStore) UpdateStatus(_ context.Context, a *domain.ActionRecommendation, expected domain.ActionStatus) error {
	if a == nil || a.RecommendationID == "" || !a.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.data[a.RecommendationID]
	if !exists {
		return storage.ErrNotFound
	}
	if stored.Status != expected {
		return storage.ErrStatusConflict
	}

	updated := cloneAction(stored)
	updated.Status = a.Status
	updated.ImplementedAt = cloneTime(a.ImplementedAt)
	updated.ImplementedCost = cloneFloat(a.ImplementedCost)
	s.data[a.RecommendationID] = updated
	return nil
}

func cloneAction(a *domain.ActionRecommendation) *domain.ActionRecommendation {
	c := *a
	if a.Supporting != nil {
		c.Supporting = make(map[string]float64, len(a.Supporting))
		for k, v := range a.Supporting {
			c.Supporting[k] = v
		}
	}
	c.ImplementedAt = cloneTime(a.ImplementedAt)
	c.ImplementedCost = cloneFloat(a.ImplementedCost)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

var _ storage.ActionStore = (*ActionStore)(nil)
