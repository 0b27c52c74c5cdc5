package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

// RoiEntryStore implements storage.RoiEntryStore using PostgreSQL.
//
// Appends lock the single roi_log_head row FOR UPDATE, insert the entry and
// advance the head in one transaction. UNIQUE(sequence_number) backs the lock
// as a conditional write.
type RoiEntryStore struct {
	pool *Pool
}

// NewRoiEntryStore creates a new RoiEntryStore.
func NewRoiEntryStore(pool *Pool) *RoiEntryStore {
	return &RoiEntryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RoiEntryStore = (*RoiEntryStore)(nil)

const roiColumns = `
	entry_id, sequence_number, entry_hash, previous_entry_hash, ts,
	action_id, action_type, location_id, action_cost,
	before_date, before_loss, after_date, after_loss,
	loss_reduction, improvement_percentage, net_benefit`

const roiSequenceConstraint = "roi_log_sequence_key"

// AppendNext reads the head and writes the built entry atomically.
func (s *RoiEntryStore) AppendNext(ctx context.Context, build storage.BuildEntryFunc) (*domain.ROILogEntry, error) {
	if build == nil {
		return nil, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var head domain.LedgerHead
	err = tx.QueryRow(ctx, `
		SELECT sequence_number, entry_hash
		FROM roi_log_head
		WHERE id = 1
		FOR UPDATE
	`).Scan(&head.SequenceNumber, &head.EntryHash)
	if err != nil {
		return nil, fmt.Errorf("lock ledger head: %w", err)
	}

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

	_, err = tx.Exec(ctx, `
		INSERT INTO roi_log (`+roiColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		e.EntryID, e.SequenceNumber, e.EntryHash, e.PreviousEntryHash, e.Timestamp.UTC(),
		e.ActionID, string(e.ActionType), e.LocationID, e.ActionCost,
		e.BeforeDate.UTC(), e.BeforeLoss, e.AfterDate.UTC(), e.AfterLoss,
		e.LossReduction, e.ImprovementPercentage, e.NetBenefit,
	)
	if err != nil {
		switch {
		case violatedConstraint(err) == roiSequenceConstraint:
			return nil, storage.ErrSequenceConflict
		case isDuplicateKeyError(err):
			return nil, storage.ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE roi_log_head
		SET sequence_number = $1, entry_hash = $2
		WHERE id = 1 AND sequence_number = $3
	`, e.SequenceNumber, e.EntryHash, head.SequenceNumber)
	if err != nil {
		return nil, fmt.Errorf("advance ledger head: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, storage.ErrSequenceConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	out := *e
	return &out, nil
}

// Head returns the current chain head.
func (s *RoiEntryStore) Head(ctx context.Context) (domain.LedgerHead, error) {
	var head domain.LedgerHead
	err := s.pool.QueryRow(ctx, `
		SELECT sequence_number, entry_hash FROM roi_log_head WHERE id = 1
	`).Scan(&head.SequenceNumber, &head.EntryHash)
	if err != nil {
		return domain.LedgerHead{}, fmt.Errorf("read ledger head: %w", err)
	}
	return head, nil
}

// GetByID retrieves an entry. Returns ErrNotFound if not exists.
func (s *RoiEntryStore) GetByID(ctx context.Context, entryID string) (*domain.ROILogEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+roiColumns+`
		FROM roi_log
		WHERE entry_id = $1
	`, entryID)

	e, err := scanEntry(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get ledger entry by id: %w", err)
	}
	return e, nil
}

// ListAscending returns every entry ordered by sequence_number ASC.
func (s *RoiEntryStore) ListAscending(ctx context.Context) ([]*domain.ROILogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+roiColumns+`
		FROM roi_log
		ORDER BY sequence_number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListDescending returns a page of entries ordered by sequence_number DESC.
func (s *RoiEntryStore) ListDescending(ctx context.Context, limit, offset int) ([]*domain.ROILogEntry, error) {
	if limit < 0 || offset < 0 {
		return nil, storage.ErrInvalidInput
	}

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+roiColumns+`
		FROM roi_log
		ORDER BY sequence_number DESC
		LIMIT $1 OFFSET $2
	`, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("query ledger page: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of entries.
func (s *RoiEntryStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM roi_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger: %w", err)
	}
	return n, nil
}

func scanEntry(row pgx.Row) (*domain.ROILogEntry, error) {
	var (
		e          domain.ROILogEntry
		actionType string
	)
	err := row.Scan(
		&e.EntryID, &e.SequenceNumber, &e.EntryHash, &e.PreviousEntryHash, &e.Timestamp,
		&e.ActionID, &actionType, &e.LocationID, &e.ActionCost,
		&e.BeforeDate, &e.BeforeLoss, &e.AfterDate, &e.AfterLoss,
		&e.LossReduction, &e.ImprovementPercentage, &e.NetBenefit,
	)
	if err != nil {
		return nil, err
	}
	e.ActionType = domain.ActionType(actionType)
	e.Timestamp = e.Timestamp.UTC()
	e.BeforeDate = e.BeforeDate.UTC()
	e.AfterDate = e.AfterDate.UTC()
	return &e, nil
}

func scanEntries(rows pgx.Rows) ([]*domain.ROILogEntry, error) {
	var result []*domain.ROILogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return result, nil
}
