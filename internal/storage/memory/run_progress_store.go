package memory

import (
	"context"
	"sync"

	"queueloss/internal/storage"
)

// RunProgressStore is an in-memory implementation of storage.RunProgressStore.
type RunProgressStore struct {
	mu       sync.RWMutex
	progress *storage.RunProgress
}

// NewRunProgressStore creates a new in-memory run progress store.
func NewRunProgressStore() *RunProgressStore {
	return &RunProgressStore{}
}

// GetLastProcessed returns the last completed day.
func (s *RunProgressStore) GetLastProcessed(_ context.Context) (*storage.RunProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.progress == nil {
		return nil, storage.ErrNotFound
	}
	p := *s.progress
	return &p, nil
}

// SetLastProcessed saves the last completed day.
func (s *RunProgressStore) SetLastProcessed(_ context.Context, progress *storage.RunProgress) error {
	if progress == nil || progress.Day.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := *progress
	s.progress = &p
	return nil
}

var _ storage.RunProgressStore = (*RunProgressStore)(nil)
