package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

type snapshotKey struct {
	day        int64
	locationID string
}

// LossSnapshotStore is an in-memory implementation of storage.LossSnapshotStore.
type LossSnapshotStore struct {
	mu   sync.RWMutex
	data map[snapshotKey]*domain.LossSnapshot
}

// NewLossSnapshotStore creates a new in-memory loss snapshot store.
func NewLossSnapshotStore() *LossSnapshotStore {
	return &LossSnapshotStore{
		data: make(map[snapshotKey]*domain.LossSnapshot),
	}
}

// InsertBulk adds snapshots atomically. Fails entire batch on any duplicate.
func (s *LossSnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.LossSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[snapshotKey]struct{}, len(snapshots))
	for _, sn := range snapshots {
		if sn == nil || sn.LocationID == "" || sn.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		k := snapshotKey{day: dayKey(sn.Date), locationID: sn.LocationID}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, sn := range snapshots {
		c := *sn
		s.data[snapshotKey{day: dayKey(sn.Date), locationID: sn.LocationID}] = &c
	}
	return nil
}

// GetByDate retrieves a day's snapshots ordered by location_id ASC.
func (s *LossSnapshotStore) GetByDate(_ context.Context, day time.Time) ([]*domain.LossSnapshot, error) {
	k := dayKey(day)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LossSnapshot
	for key, sn := range s.data {
		if key.day == k {
			c := *sn
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LocationID < result[j].LocationID
	})
	return result, nil
}

// GetByLocation retrieves a location's snapshots for days in [start, end], ordered by date ASC.
func (s *LossSnapshotStore) GetByLocation(_ context.Context, locationID string, start, end time.Time) ([]*domain.LossSnapshot, error) {
	lo, hi := dayKey(start), dayKey(end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LossSnapshot
	for key, sn := range s.data {
		if key.locationID == locationID && key.day >= lo && key.day <= hi {
			c := *sn
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

var _ storage.LossSnapshotStore = (*LossSnapshotStore)(nil)
