// Package ingestion validates flow measurements from external sources and
// writes them to the measurement store.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/observability"
	"queueloss/internal/storage"
)

// Observation period bounds in seconds.
const (
	MinObservationPeriod = 60.0
	MaxObservationPeriod = 3600.0
)

// DefaultBatchSize is the number of measurements written per InsertBulk.
const DefaultBatchSize = 1000

// Rejection reasons, also used as the ingestion error metric label.
const (
	ReasonObservationPeriod = "observation_period"
	ReasonNegativeCount     = "negative_count"
	ReasonInvalidDuration   = "invalid_duration"
	ReasonMissingField      = "missing_field"
	ReasonLocationType      = "location_type"
	ReasonDuplicate         = "duplicate"
)

// ErrRejected marks a measurement that failed validation.
var ErrRejected = errors.New("measurement rejected")

// Rejection describes one record that was not stored.
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

// Result summarizes an ingestion run.
type Result struct {
	Processed  int         `json:"records_processed"`
	Failed     int         `json:"records_failed"`
	Rejections []Rejection `json:"rejections,omitempty"`
}

// Ingester validates measurements and writes them in batches.
type Ingester struct {
	store     storage.MeasurementStore
	metrics   *observability.Metrics
	logger    *slog.Logger
	batchSize int
}

// Options for creating Ingester.
type Options struct {
	Store     storage.MeasurementStore // required
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	BatchSize int
}

// NewIngester creates a new Ingester.
func NewIngester(opts Options) (*Ingester, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("ingestion: measurement store is required")
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		store:     opts.Store,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "ingestion"),
		batchSize: batchSize,
	}, nil
}

// RejectError is returned by Check.
type RejectError struct {
	Reason string
	Detail string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrRejected, e.Reason, e.Detail)
}

// Is makes errors.Is(err, ErrRejected) hold.
func (e *RejectError) Is(target error) bool {
	return target == ErrRejected
}

func rejected(reason, format string, args ...any) *RejectError {
	return &RejectError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Check validates one measurement for ingestion.
func Check(m domain.FlowMeasurement) error {
	if strings.TrimSpace(m.LocationID) == "" || m.Timestamp.IsZero() {
		return rejected(ReasonMissingField, "location_id and timestamp are required")
	}
	if !m.LocationType.IsValid() {
		return rejected(ReasonLocationType, "unknown location type %q", m.LocationType)
	}
	if !(m.ObservationPeriodSeconds >= MinObservationPeriod && m.ObservationPeriodSeconds <= MaxObservationPeriod) {
		return rejected(ReasonObservationPeriod, "%g not in [%g, %g]",
			m.ObservationPeriodSeconds, MinObservationPeriod, MaxObservationPeriod)
	}
	if err := m.Validate(); err != nil {
		if errors.Is(err, domain.ErrInvalidDuration) {
			return rejected(ReasonInvalidDuration, "%v", err)
		}
		return rejected(ReasonNegativeCount, "%v", err)
	}
	return nil
}

// Ingest validates ms, drops invalid and repeated (location, timestamp)
// records, and stores the rest in timestamp order. A store failure aborts
// the run; batches already written stay written.
func (i *Ingester) Ingest(ctx context.Context, ms []domain.FlowMeasurement) (Result, error) {
	var res Result

	type key struct {
		location string
		ts       int64
	}
	seen := make(map[key]struct{}, len(ms))
	accepted := make([]domain.FlowMeasurement, 0, len(ms))
	for idx, m := range ms {
		m.Timestamp = m.Timestamp.UTC()
		if err := Check(m); err != nil {
			var re *RejectError
			errors.As(err, &re)
			i.reject(&res, idx, re.Reason, re.Detail)
			continue
		}
		k := key{m.LocationID, m.Timestamp.UnixNano()}
		if _, dup := seen[k]; dup {
			i.reject(&res, idx, ReasonDuplicate, fmt.Sprintf("%s at %s repeated", m.LocationID, m.Timestamp.Format(time.RFC3339)))
			continue
		}
		seen[k] = struct{}{}
		accepted = append(accepted, m)
	}
	SortMeasurements(accepted)

	for start := 0; start < len(accepted); start += i.batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+i.batchSize, len(accepted))
		batch := accepted[start:end]
		if err := i.store.InsertBulk(ctx, batch); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				i.metrics.RecordIngestError(ReasonDuplicate)
			}
			return res, fmt.Errorf("insert batch %d-%d: %w", start, end, err)
		}
		res.Processed += len(batch)
		i.metrics.RecordIngested(len(batch))
	}

	i.logger.Info("ingested measurements", "processed", res.Processed, "failed", res.Failed)
	return res, nil
}

// IngestFrom fetches [from, to) from src and ingests it.
func (i *Ingester) IngestFrom(ctx context.Context, src MeasurementSource, from, to time.Time) (Result, error) {
	ms, err := src.Fetch(ctx, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("fetch measurements: %w", err)
	}
	return i.Ingest(ctx, ms)
}

func (i *Ingester) reject(res *Result, idx int, reason, detail string) {
	res.Failed++
	res.Rejections = append(res.Rejections, Rejection{Index: idx, Reason: reason, Detail: detail})
	i.metrics.RecordIngestError(reason)
	i.logger.Debug("measurement rejected", "index", idx, "reason", reason)
}
