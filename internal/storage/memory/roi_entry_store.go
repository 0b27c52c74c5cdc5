package memory

import (
	"context"
	"sync"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

// RoiEntryStore is an in-memory implementation of storage.RoiEntryStore.
// The mutex is held across reading the head and writing the entry, so
// concurrent appends serialize and cannot fork the chain.
type RoiEntryStore struct {
	mu      sync.RWMutex
	entries []*domain.ROILogEntry // ascending by sequence_number
	byID    map[string]int
	byHash  map[string]int
}

// NewRoiEntryStore creates a new in-memory ledger store.
func NewRoiEntryStore() *RoiEntryStore {
	return &RoiEntryStore{
		byID:   make(map[string]int),
		byHash: make(map[string]int),
	}
}

// AppendNext reads the head and writes the built entry atomically.
func (s *RoiEntryStore) AppendNext(_ context.Context, build storage.BuildEntryFunc) (*domain.ROILogEntry, error) {
	if build == nil {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	head := s.head()
	e, err := build(head)
	if err != nil {
		return nil, err
	}
	if e == nil || e.EntryID == "" || e.EntryHash == "" {
		return nil, storage.ErrInvalidInput
	}
	if e.SequenceNumber != head.NextSequence() || e.PreviousEntryHash != head.PreviousHash() {
		return nil, storage.ErrSequenceConflict
	}
	if _, exists := s.byID[e.EntryID]; exists {
		return nil, storage.ErrDuplicateKey
	}
	if _, exists := s.byHash[e.EntryHash]; exists {
		return nil, storage.ErrDuplicateKey
	}

	stored := *e
	s.entries = append(s.entries, &stored)
	s.byID[e.EntryID] = len(s.entries) - 1
	s.byHash[e.EntryHash] = len(s.entries) - 1

	out := stored
	return &out, nil
}

// Head returns the current chain head.
func (s *RoiEntryStore) Head(_ context.Context) (domain.LedgerHead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head(), nil
}

func (s *RoiEntryStore) head() domain.LedgerHead {
	if len(s.entries) == 0 {
		return domain.LedgerHead{}
	}
	last := s.entries[len(s.entries)-1]
	return domain.LedgerHead{SequenceNumber: last.SequenceNumber, EntryHash: last.EntryHash}
}

// GetByID retrieves an entry. Returns ErrNotFound if not exists.
func (s *RoiEntryStore) GetByID(_ context.Context, entryID string) (*domain.ROILogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, exists := s.byID[entryID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	e := *s.entries[i]
	return &e, nil
}

// ListAscending returns every entry ordered by sequence_number ASC.
func (s *RoiEntryStore) ListAscending(_ context.Context) ([]*domain.ROILogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ROILogEntry, len(s.entries))
	for i, e := range s.entries {
		c := *e
		result[i] = &c
	}
	return result, nil
}

// ListDescending returns a page of entries ordered by sequence_number DESC.
func (s *RoiEntryStore) ListDescending(_ context.Context, limit, offset int) ([]*domain.ROILogEntry, error) {
	if limit < 0 || offset < 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ROILogEntry
	for i := len(s.entries) - 1 - offset; i >= 0 && (limit == 0 || len(result) < limit); i-- {
		c := *s.entries[i]
		result = append(result, &c)
	}
	return result, nil
}

// Count returns the number of entries.
func (s *RoiEntryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Tamper overwrites a stored entry in place. It exists so integrity
// checks can be exercised against a corrupted ledger.
func (s *RoiEntryStore) Tamper(entryID string, mutate func(*domain.ROILogEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, exists := s.byID[entryID]
	if !exists {
		return storage.ErrNotFound
	}
	mutate(s.entries[i])
	return nil
}

var _ storage.RoiEntryStore = (*RoiEntryStore)(nil)
