package ingestion

import (
	"context"
	"sort"
	"time"

	"queueloss/internal/domain"
)

// MeasurementSource provides flow measurements from an external collaborator
// (counter export, sensor feed, sample generator).
type MeasurementSource interface {
	// Fetch returns measurements with timestamps in [from, to).
	// A zero range returns everything the source holds.
	// Records may be unordered; Ingester enforces deterministic ordering.
	Fetch(ctx context.Context, from, to time.Time) ([]domain.FlowMeasurement, error)
}

// SortMeasurements orders measurements by (timestamp ASC, location_id ASC).
func SortMeasurements(ms []domain.FlowMeasurement) {
	sort.SliceStable(ms, func(i, j int) bool {
		return compareMeasurements(ms[i], ms[j]) < 0
	})
}

func compareMeasurements(a, b domain.FlowMeasurement) int {
	if !a.Timestamp.Equal(b.Timestamp) {
		if a.Timestamp.Before(b.Timestamp) {
			return -1
		}
		return 1
	}
	switch {
	case a.LocationID < b.LocationID:
		return -1
	case a.LocationID > b.LocationID:
		return 1
	}
	return 0
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
