package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

// InsightStore implements storage.InsightStore using ClickHouse.
type InsightStore struct {
	conn *Conn
}

// NewInsightStore creates a new InsightStore.
func NewInsightStore(conn *Conn) *InsightStore {
	return &InsightStore{conn: conn}
}

// Compile-time interface check.
var _ storage.InsightStore = (*InsightStore)(nil)

const insightColumns = `
	date, generated_at, top_loss_location, top_loss_amount, top_loss_cause,
	recommendation, total_loss, total_observations, loss_by_location,
	data_completeness, calculation_confidence, calculation_hash`

// Insert adds a day's insight. Returns ErrDuplicateKey if the date exists.
func (s *InsightStore) Insert(ctx context.Context, in *domain.DailyInsight) error {
	if in == nil || in.Date.IsZero() {
		return storage.ErrInvalidInput
	}

	day := in.Date.UTC().Truncate(24 * time.Hour)
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM daily_insights FINAL WHERE date = ?`, day).Scan(&count); err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	rec, err := json.Marshal(in.Recommendation)
	if err != nil {
		return fmt.Errorf("encode recommendation: %w", err)
	}
	lossByLocation := in.LossByLocation
	if lossByLocation == nil {
		lossByLocation = map[string]float64{}
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO daily_insights (`+insightColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		day, in.GeneratedAt.UTC(), in.TopLossLocation, in.TopLossAmount, in.TopLossCause,
		string(rec), in.TotalLoss, uint32(in.TotalObservations), lossByLocation,
		in.DataCompleteness, in.CalculationConfidence, in.CalculationHash,
	)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	return nil
}

// GetByDate retrieves a day's insight. Returns ErrNotFound if not exists.
func (s *InsightStore) GetByDate(ctx context.Context, day time.Time) (*domain.DailyInsight, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+insightColumns+`
		FROM daily_insights FINAL
		WHERE date = ?
		LIMIT 1
	`, day.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query insight by date: %w", err)
	}
	defer rows.Close()

	result, err := scanInsights(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result[0], nil
}

// GetRange retrieves insights for days in [start, end], ordered by date ASC.
func (s *InsightStore) GetRange(ctx context.Context, start, end time.Time) ([]*domain.DailyInsight, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+insightColumns+`
		FROM daily_insights FINAL
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`, start.UTC().Truncate(24*time.Hour), end.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query insight range: %w", err)
	}
	defer rows.Close()

	return scanInsights(rows)
}

func scanInsights(rows chRows) ([]*domain.DailyInsight, error) {
	var result []*domain.DailyInsight
	for rows.Next() {
		var (
			in           domain.DailyInsight
			rec          string
			observations uint32
		)
		err := rows.Scan(
			&in.Date, &in.GeneratedAt, &in.TopLossLocation, &in.TopLossAmount, &in.TopLossCause,
			&rec, &in.TotalLoss, &observations, &in.LossByLocation,
			&in.DataCompleteness, &in.CalculationConfidence, &in.CalculationHash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan insight row: %w", err)
		}
		if err := json.Unmarshal([]byte(rec), &in.Recommendation); err != nil {
			return nil, fmt.Errorf("decode recommendation: %w", err)
		}
		in.Date = in.Date.UTC()
		in.GeneratedAt = in.GeneratedAt.UTC()
		in.TotalObservations = int(observations)
		result = append(result, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate insight rows: %w", err)
	}
	return result, nil
}
