package storage

import (
	"context"
	"time"

	"queueloss/internal/domain"
)

// MeasurementStore provides access to flow_measurements storage.
// Measurements are keyed by (location_id, timestamp).
type MeasurementStore interface {
	// InsertBulk adds measurements atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, ms []domain.FlowMeasurement) error

	// GetByLocationRange retrieves measurements for a location within [start, end),
	// ordered by timestamp ASC.
	GetByLocationRange(ctx context.Context, locationID string, start, end time.Time) ([]domain.FlowMeasurement, error)

	// GetByDay retrieves one UTC day of measurements grouped by location.
	GetByDay(ctx context.Context, day time.Time) (map[string][]domain.FlowMeasurement, error)

	// Locations returns every known location id, sorted ASC.
	Locations(ctx context.Context) ([]string, error)
}

// ActionStore provides access to action_recommendations storage.
type ActionStore interface {
	// Insert adds a new recommendation. Returns ErrDuplicateKey if recommendation_id exists.
	Insert(ctx context.Context, a *domain.ActionRecommendation) error

	// GetByID retrieves a recommendation. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, recommendationID string) (*domain.ActionRecommendation, error)

	// GetByDate retrieves recommendations made for a UTC day.
	GetByDate(ctx context.Context, day time.Time) ([]*domain.ActionRecommendation, error)

	// UpdateStatus stores a's status fields if the stored status still equals
	// expected. Returns ErrNotFound or ErrStatusConflict.
	UpdateStatus(ctx context.Context, a *domain.ActionRecommendation, expected domain.ActionStatus) error
}

// BuildEntryFunc builds the next ledger entry from the current chain head.
// It must set every field except SequenceNumber and PreviousEntryHash, which
// it must take from head, and EntryHash, which it must compute.
type BuildEntryFunc func(head domain.LedgerHead) (*domain.ROILogEntry, error)

// RoiEntryStore provides access to the append-only roi_log storage.
type RoiEntryStore interface {
	// AppendNext reads the chain head and writes the entry built from it as
	// one atomic operation. Returns ErrDuplicateKey if entry_id or entry_hash
	// exists and ErrSequenceConflict if another writer won the head.
	AppendNext(ctx context.Context, build BuildEntryFunc) (*domain.ROILogEntry, error)

	// Head returns the current chain head; zero when the ledger is empty.
	Head(ctx context.Context) (domain.LedgerHead, error)

	// GetByID retrieves an entry. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, entryID string) (*domain.ROILogEntry, error)

	// ListAscending returns every entry ordered by sequence_number ASC.
	ListAscending(ctx context.Context) ([]*domain.ROILogEntry, error)

	// ListDescending returns a page of entries ordered by sequence_number DESC.
	// A zero limit returns every entry after offset.
	ListDescending(ctx context.Context, limit, offset int) ([]*domain.ROILogEntry, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)
}

// InsightStore provides access to daily_insights storage.
type InsightStore interface {
	// Insert adds a day's insight. Returns ErrDuplicateKey if the date exists.
	Insert(ctx context.Context, in *domain.DailyInsight) error

	// GetByDate retrieves a day's insight. Returns ErrNotFound if not exists.
	GetByDate(ctx context.Context, day time.Time) (*domain.DailyInsight, error)

	// GetRange retrieves insights for days in [start, end] (inclusive), ordered by date ASC.
	GetRange(ctx context.Context, start, end time.Time) ([]*domain.DailyInsight, error)
}

// LossSnapshotStore provides access to loss_snapshots storage.
// Snapshots are keyed by (date, location_id).
type LossSnapshotStore interface {
	// InsertBulk adds snapshots atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, snapshots []*domain.LossSnapshot) error

	// GetByDate retrieves a day's snapshots ordered by location_id ASC.
	GetByDate(ctx context.Context, day time.Time) ([]*domain.LossSnapshot, error)

	// GetByLocation retrieves a location's snapshots for days in [start, end],
	// ordered by date ASC.
	GetByLocation(ctx context.Context, locationID string, start, end time.Time) ([]*domain.LossSnapshot, error)
}
