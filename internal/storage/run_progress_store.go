package storage

import (
	"context"
	"time"
)

// RunProgress is the last day the daily pipeline completed.
type RunProgress struct {
	Day             time.Time // UTC midnight
	CalculationHash string    // hash of that day's insight
}

// RunProgressStore persists pipeline progress so a restart resumes after the
// last completed day instead of recomputing it.
type RunProgressStore interface {
	// GetLastProcessed returns the last completed day.
	// Returns ErrNotFound if no progress has been saved yet.
	GetLastProcessed(ctx context.Context) (*RunProgress, error)

	// SetLastProcessed saves the last completed day.
	SetLastProcessed(ctx context.Context, progress *RunProgress) error
}
