package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

type measurementKey struct {
	locationID string
	ts         int64 // unix nanos
}

// MeasurementStore is an in-memory implementation of storage.MeasurementStore.
type MeasurementStore struct {
	mu   sync.RWMutex
	data map[measurementKey]domain.FlowMeasurement
}

// NewMeasurementStore creates a new in-memory measurement store.
func NewMeasurementStore() *MeasurementStore {
	return &MeasurementStore{
		data: make(map[measurementKey]domain.FlowMeasurement),
	}
}

func keyOf(m domain.FlowMeasurement) measurementKey {
	return measurementKey{locationID: m.LocationID, ts: m.Timestamp.UnixNano()}
}

// InsertBulk adds measurements atomically. Fails entire batch on any duplicate.
func (s *MeasurementStore) InsertBulk(_ context.Context, ms []domain.FlowMeasurement) error {
	if len(ms) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[measurementKey]struct{}, len(ms))
	for _, m := range ms {
		if m.LocationID == "" || m.Timestamp.IsZero() {
			return storage.ErrInvalidInput
		}
		if err := m.Validate(); err != nil {
			return storage.ErrInvalidInput
		}
		k := keyOf(m)
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, m := range ms {
		s.data[keyOf(m)] = cloneMeasurement(m)
	}
	return nil
}

// GetByLocationRange retrieves measurements for a location within [start, end).
func (s *MeasurementStore) GetByLocationRange(_ context.Context, locationID string, start, end time.Time) ([]domain.FlowMeasurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.FlowMeasurement
	for k, m := range s.data {
		if k.locationID != locationID {
			continue
		}
		if m.Timestamp.Before(start) || !m.Timestamp.Before(end) {
			continue
		}
		result = append(result, cloneMeasurement(m))
	}

	sortMeasurements(result)
	return result, nil
}

// GetByDay retrieves one UTC day of measurements grouped by location.
func (s *MeasurementStore) GetByDay(_ context.Context, day time.Time) (map[string][]domain.FlowMeasurement, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string][]domain.FlowMeasurement)
	for _, m := range s.data {
		if m.Timestamp.Before(start) || !m.Timestamp.Before(end) {
			continue
		}
		result[m.LocationID] = append(result[m.LocationID], cloneMeasurement(m))
	}
	for _, ms := range result {
		sortMeasurements(ms)
	}
	return result, nil
}

// Locations returns every known location id, sorted ASC.
func (s *MeasurementStore) Locations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for k := range s.data {
		seen[k.locationID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func sortMeasurements(ms []domain.FlowMeasurement) {
	sort.Slice(ms, func(i, j int) bool {
		return ms[i].Timestamp.Before(ms[j].Timestamp)
	})
}

func cloneMeasurement(m domain.FlowMeasurement) domain.FlowMeasurement {
	if m.AvgServiceDuration != nil {
		v := *m.AvgServiceDuration
		m.AvgServiceDuration = &v
	}
	if m.AvgWaitTime != nil {
		v := *m.AvgWaitTime
		m.AvgWaitTime = &v
	}
	return m
}

var _ storage.MeasurementStore = (*MeasurementStore)(nil)
