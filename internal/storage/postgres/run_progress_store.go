package postgres

import (
	"context"
	"fmt"

	"queueloss/internal/storage"
)

// RunProgressStore is a PostgreSQL implementation of storage.RunProgressStore.
// The run_progress table holds a single row.
type RunProgressStore struct {
	pool *Pool
}

// NewRunProgressStore creates a new PostgreSQL run progress store.
func NewRunProgressStore(pool *Pool) *RunProgressStore {
	return &RunProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunProgressStore = (*RunProgressStore)(nil)

// GetLastProcessed returns the last completed day.
func (s *RunProgressStore) GetLastProcessed(ctx context.Context) (*storage.RunProgress, error) {
	var p storage.RunProgress
	err := s.pool.QueryRow(ctx, `
		SELECT day, calculation_hash
		FROM run_progress
		WHERE id = 1
	`).Scan(&p.Day, &p.CalculationHash)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run progress: %w", err)
	}
	p.Day = p.Day.UTC()
	return &p, nil
}

// SetLastProcessed saves the last completed day.
// Uses upsert to handle initial insert and subsequent updates.
func (s *RunProgressStore) SetLastProcessed(ctx context.Context, progress *storage.RunProgress) error {
	if progress == nil || progress.Day.IsZero() {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_progress (id, day, calculation_hash, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET day = EXCLUDED.day,
		    calculation_hash = EXCLUDED.calculation_hash,
		    updated_at = NOW()
	`, progress.Day.UTC(), progress.CalculationHash)
	if err != nil {
		return fmt.Errorf("set run progress: %w", err)
	}
	return nil
}
