package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

// ActionStore implements storage.ActionStore using PostgreSQL.
type ActionStore struct {
	pool *Pool
}

// NewActionStore creates a new ActionStore.
func NewActionStore(pool *Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ActionStore = (*ActionStore)(nil)

const actionColumns = `
	recommendation_id, date, location_id, description, action_type, target_category,
	min_recoverable, max_recoverable, action_cost, confidence_score,
	justification, supporting, status, implemented_at, implemented_cost`

// Insert adds a new recommendation. Returns ErrDuplicateKey if recommendation_id exists.
func (s *ActionStore) Insert(ctx context.Context, a *domain.ActionRecommendation) error {
	if a == nil || a.RecommendationID == "" || !a.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	supporting := a.Supporting
	if supporting == nil {
		supporting = map[string]float64{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO action_recommendations (`+actionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		a.RecommendationID, a.Date.UTC(), a.LocationID, a.Description, string(a.ActionType), string(a.TargetCategory),
		a.MinRecoverable, a.MaxRecoverable, a.ActionCost, a.ConfidenceScore,
		a.Justification, supporting, string(a.Status), a.ImplementedAt, a.ImplementedCost,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// GetByID retrieves a recommendation. Returns ErrNotFound if not exists.
func (s *ActionStore) GetByID(ctx context.Context, recommendationID string) (*domain.ActionRecommendation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+actionColumns+`
		FROM action_recommendations
		WHERE recommendation_id = $1
	`, recommendationID)

	a, err := scanAction(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get action by id: %w", err)
	}
	return a, nil
}

// GetByDate retrieves recommendations made for a UTC day, ordered by recommendation_id.
func (s *ActionStore) GetByDate(ctx context.Context, day time.Time) ([]*domain.ActionRecommendation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+actionColumns+`
		FROM action_recommendations
		WHERE date = $1
		ORDER BY recommendation_id ASC
	`, day.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query actions by date: %w", err)
	}
	defer rows.Close()

	var result []*domain.ActionRecommendation
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return result, nil
}

// UpdateStatus stores a's status fields if the stored status still equals expected.
func (s *ActionStore) UpdateStatus(ctx context.Context, a *domain.ActionRecommendation, expected domain.ActionStatus) error {
	if a == nil || a.RecommendationID == "" || !a.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE action_recommendations
		SET status = $2, implemented_at = $3, implemented_cost = $4
		WHERE recommendation_id = $1 AND status = $5
	`, a.RecommendationID, string(a.Status), a.ImplementedAt, a.ImplementedCost, string(expected))
	if err != nil {
		return fmt.Errorf("update action status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM action_recommendations WHERE recommendation_id = $1)
	`, a.RecommendationID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check action exists: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrStatusConflict
}

func scanAction(row pgx.Row) (*domain.ActionRecommendation, error) {
	var (
		a                                  domain.ActionRecommendation
		actionType, targetCategory, status string
	)
	err := row.Scan(
		&a.RecommendationID, &a.Date, &a.LocationID, &a.Description, &actionType, &targetCategory,
		&a.MinRecoverable, &a.MaxRecoverable, &a.ActionCost, &a.ConfidenceScore,
		&a.Justification, &a.Supporting, &status, &a.ImplementedAt, &a.ImplementedCost,
	)
	if err != nil {
		return nil, err
	}
	a.Date = a.Date.UTC()
	a.ActionType = domain.ActionType(actionType)
	a.TargetCategory = domain.LossCategory(targetCategory)
	a.Status = domain.ActionStatus(status)
	if a.ImplementedAt != nil {
		t := a.ImplementedAt.UTC()
		a.ImplementedAt = &t
	}
	return &a, nil
}
