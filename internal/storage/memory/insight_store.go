package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

// InsightStore is an in-memory implementation of storage.InsightStore.
type InsightStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.DailyInsight // keyed by unix day start
}

// NewInsightStore creates a new in-memory insight store.
func NewInsightStore() *InsightStore {
	return &InsightStore{
		data: make(map[int64]*domain.DailyInsight),
	}
}

func dayKey(t time.Time) int64 {
	return t.UTC().Truncate(24 * time.Hour).Unix()
}

// Insert adds a day's insight. Returns ErrDuplicateKey if the date exists.
func (s *InsightStore) Insert(_ context.Context, in *domain.DailyInsight) error {
	if in == nil || in.Date.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := dayKey(in.Date)
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[k] = cloneInsight(in)
	return nil
}

// GetByDate retrieves a day's insight. Returns ErrNotFound if not exists.
func (s *InsightStore) GetByDate(_ context.Context, day time.Time) (*domain.DailyInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, exists := s.data[dayKey(day)]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneInsight(in), nil
}

// GetRange retrieves insights for days in [start, end], ordered by date ASC.
func (s *InsightStore) GetRange(_ context.Context, start, end time.Time) ([]*domain.DailyInsight, error) {
	lo, hi := dayKey(start), dayKey(end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DailyInsight
	for k, in := range s.data {
		if k >= lo && k <= hi {
			result = append(result, cloneInsight(in))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func cloneInsight(in *domain.DailyInsight) *domain.DailyInsight {
	c := *in
	if in.LossByLocation != nil {
		c.LossByLocation = make(map[string]float64, len(in.LossByLocation))
		for k, v := range in.LossByLocation {
			c.LossByLocation[k] = v
		}
	}
	c.Recommendation = *cloneAction(&in.Recommendation)
	return &c
}

var _ storage.InsightStore = (*InsightStore)(nil)
