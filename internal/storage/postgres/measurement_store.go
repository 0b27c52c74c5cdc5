package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

// MeasurementStore implements storage.MeasurementStore using PostgreSQL.
type MeasurementStore struct {
	pool *Pool
}

// NewMeasurementStore creates a new MeasurementStore.
func NewMeasurementStore(pool *Pool) *MeasurementStore {
	return &MeasurementStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MeasurementStore = (*MeasurementStore)(nil)

const measurementColumns = `
	location_id, ts, location_type,
	arrival_count, departure_count, queue_length, in_service_count,
	avg_service_duration, avg_wait_time, observation_period_seconds`

// InsertBulk adds measurements atomically. Fails entire batch on any duplicate.
func (s *MeasurementStore) InsertBulk(ctx context.Context, ms []domain.FlowMeasurement) error {
	if len(ms) == 0 {
		return nil
	}
	for _, m := range ms {
		if m.LocationID == "" || m.Timestamp.IsZero() || m.Validate() != nil {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range ms {
		batch.Queue(`
			INSERT INTO flow_measurements (`+measurementColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			m.LocationID, m.Timestamp.UTC(), string(m.LocationType),
			m.ArrivalCount, m.DepartureCount, m.QueueLength, m.InServiceCount,
			m.AvgServiceDuration, m.AvgWaitTime, m.ObservationPeriodSeconds,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range ms {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert measurement in bulk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByLocationRange retrieves measurements for a location within [start, end).
func (s *MeasurementStore) GetByLocationRange(ctx context.Context, locationID string, start, end time.Time) ([]domain.FlowMeasurement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+measurementColumns+`
		FROM flow_measurements
		WHERE location_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC
	`, locationID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query measurements by location: %w", err)
	}
	defer rows.Close()

	return scanMeasurements(rows)
}

// GetByDay retrieves one UTC day of measurements grouped by location.
func (s *MeasurementStore) GetByDay(ctx context.Context, day time.Time) (map[string][]domain.FlowMeasurement, error) {
	start := day.UTC().Truncate(24 * time.Hour)

	rows, err := s.pool.Query(ctx, `
		SELECT `+measurementColumns+`
		FROM flow_measurements
		WHERE ts >= $1 AND ts < $2
		ORDER BY location_id ASC, ts ASC
	`, start, start.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query measurements by day: %w", err)
	}
	defer rows.Close()

	ms, err := scanMeasurements(rows)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]domain.FlowMeasurement)
	for _, m := range ms {
		result[m.LocationID] = append(result[m.LocationID], m)
	}
	return result, nil
}

// Locations returns every known location id, sorted ASC.
func (s *MeasurementStore) Locations(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT location_id FROM flow_measurements ORDER BY location_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan locations: %w", err)
	}
	return ids, nil
}

func scanMeasurements(rows pgx.Rows) ([]domain.FlowMeasurement, error) {
	var result []domain.FlowMeasurement
	for rows.Next() {
		var (
			m       domain.FlowMeasurement
			locType string
		)
		err := rows.Scan(
			&m.LocationID, &m.Timestamp, &locType,
			&m.ArrivalCount, &m.DepartureCount, &m.QueueLength, &m.InServiceCount,
			&m.AvgServiceDuration, &m.AvgWaitTime, &m.ObservationPeriodSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("scan measurement row: %w", err)
		}
		m.Timestamp = m.Timestamp.UTC()
		m.LocationType = domain.LocationType(locType)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurement rows: %w", err)
	}
	return result, nil
}
