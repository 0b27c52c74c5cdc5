package clickhouse

import (
	"context"
	"fmt"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

// LossSnapshotStore implements storage.LossSnapshotStore using ClickHouse.
type LossSnapshotStore struct {
	conn *Conn
}

// NewLossSnapshotStore creates a new LossSnapshotStore.
func NewLossSnapshotStore(conn *Conn) *LossSnapshotStore {
	return &LossSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.LossSnapshotStore = (*LossSnapshotStore)(nil)

const snapshotColumns = `
	date, location_id, location_type,
	wait_time_cost, lost_throughput_revenue, walkaway_cost, idle_time_cost, overtime_cost, total_loss,
	excess_wait_seconds, lost_customers, walkaways, idle_server_seconds, overtime_server_hours,
	utilization, entropy_score, data_points, audit_hash`

// InsertBulk adds snapshots atomically. Fails entire batch on any duplicate.
func (s *LossSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.LossSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	// ReplacingMergeTree would silently replace; enforce append-only here.
	seen := make(map[string]struct{})
	for _, sn := range snapshots {
		if sn == nil || sn.LocationID == "" || sn.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		key := sn.Date.UTC().Format(time.DateOnly) + "|" + sn.LocationID
		if _, exists := seen[key]; exists {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
	}
	for _, sn := range snapshots {
		exists, err := s.exists(ctx, sn.Date, sn.LocationID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO loss_snapshots (`+snapshotColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sn := range snapshots {
		l := sn.Loss
		err = batch.Append(
			sn.Date.UTC().Truncate(24*time.Hour), sn.LocationID, string(sn.LocationType),
			l.WaitTimeCost, l.LostThroughputRevenue, l.WalkawayCost, l.IdleTimeCost, l.OvertimeCost, l.TotalLoss(),
			l.ExcessWaitSeconds, int64(l.LostCustomers), int64(l.Walkaways), l.IdleServerSeconds, l.OvertimeServerHours,
			sn.Utilization, sn.EntropyScore, uint32(sn.DataPoints), sn.AuditHash,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByDate retrieves a day's snapshots ordered by location_id ASC.
func (s *LossSnapshotStore) GetByDate(ctx context.Context, day time.Time) ([]*domain.LossSnapshot, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM loss_snapshots FINAL
		WHERE date = ?
		ORDER BY location_id ASC
	`, day.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query snapshots by date: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetByLocation retrieves a location's snapshots for days in [start, end], ordered by date ASC.
func (s *LossSnapshotStore) GetByLocation(ctx context.Context, locationID string, start, end time.Time) ([]*domain.LossSnapshot, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM loss_snapshots FINAL
		WHERE location_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, locationID, start.UTC().Truncate(24*time.Hour), end.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query snapshots by location: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func (s *LossSnapshotStore) exists(ctx context.Context, day time.Time, locationID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM loss_snapshots FINAL
		WHERE date = ? AND location_id = ?
	`, day.UTC().Truncate(24*time.Hour), locationID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanSnapshots(rows chRows) ([]*domain.LossSnapshot, error) {
	var result []*domain.LossSnapshot
	for rows.Next() {
		var (
			sn                  domain.LossSnapshot
			locType             string
			total               float64
			lostCustomers, walk int64
			dataPoints          uint32
		)
		l := &sn.Loss
		err := rows.Scan(
			&sn.Date, &sn.LocationID, &locType,
			&l.WaitTimeCost, &l.LostThroughputRevenue, &l.WalkawayCost, &l.IdleTimeCost, &l.OvertimeCost, &total,
			&l.ExcessWaitSeconds, &lostCustomers, &walk, &l.IdleServerSeconds, &l.OvertimeServerHours,
			&sn.Utilization, &sn.EntropyScore, &dataPoints, &sn.AuditHash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		sn.Date = sn.Date.UTC()
		sn.LocationType = domain.LocationType(locType)
		l.LocationID = sn.LocationID
		l.CalculationDate = sn.Date
		l.LostCustomers = int(lostCustomers)
		l.Walkaways = int(walk)
		sn.DataPoints = int(dataPoints)
		result = append(result, &sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return result, nil
}
