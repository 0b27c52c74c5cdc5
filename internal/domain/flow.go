package domain

import (
	"fmt"
	"math"
	"time"
)

// DefaultObservationPeriodSeconds is the interval length used by counting
// collaborators when none is specified (5 minutes).
const DefaultObservationPeriodSeconds = 300.0

// FlowMeasurement is one aggregated observation of a service point over a
// fixed interval. It is produced by the ingestion collaborator and is
// read-only to the calculation core.
type FlowMeasurement struct {
	Timestamp    time.Time    // interval start (UTC)
	LocationID   string       // service point identifier
	LocationType LocationType // kind of service point

	ArrivalCount   int // arrivals during the interval
	DepartureCount int // service completions during the interval
	QueueLength    int // people waiting at observation time
	InServiceCount int // people being served at observation time

	AvgServiceDuration *float64 // seconds, nil when not measured
	AvgWaitTime        *float64 // seconds, nil when not measured

	ObservationPeriodSeconds float64 // interval length
}

// ArrivalRate returns arrivals per second (λ for this interval).
func (m FlowMeasurement) ArrivalRate() float64 {
	if m.ObservationPeriodSeconds <= 0 {
		return 0
	}
	return float64(m.ArrivalCount) / m.ObservationPeriodSeconds
}

// DepartureRate returns completions per second for this interval.
func (m FlowMeasurement) DepartureRate() float64 {
	if m.ObservationPeriodSeconds <= 0 {
		return 0
	}
	return float64(m.DepartureCount) / m.ObservationPeriodSeconds
}

// TotalInSystem returns queue + in-service.
func (m FlowMeasurement) TotalInSystem() int {
	return m.QueueLength + m.InServiceCount
}

// HasWaitTime reports whether a positive wait time sample is present.
func (m FlowMeasurement) HasWaitTime() bool {
	return m.AvgWaitTime != nil && *m.AvgWaitTime > 0
}

// Validate rejects records that violate the input contract.
// Negative counts or durations are never produced by a sane counter, and a
// non-positive or non-finite period leaves every rate undefined.
func (m FlowMeasurement) Validate() error {
	if !(m.ObservationPeriodSeconds > 0) || math.IsInf(m.ObservationPeriodSeconds, 0) {
		return fmt.Errorf("%w: observation period %g at %s", ErrInvalidPeriod, m.ObservationPeriodSeconds, m.Timestamp.Format(time.RFC3339))
	}
	if m.ArrivalCount < 0 || m.DepartureCount < 0 || m.QueueLength < 0 || m.InServiceCount < 0 {
		return fmt.Errorf("%w: location %s at %s", ErrNegativeCount, m.LocationID, m.Timestamp.Format(time.RFC3339))
	}
	if err := validDuration("service duration", m.AvgServiceDuration, m.Timestamp); err != nil {
		return err
	}
	return validDuration("wait time", m.AvgWaitTime, m.Timestamp)
}

func validDuration(name string, d *float64, at time.Time) error {
	switch {
	case d == nil:
		return nil
	case math.IsNaN(*d) || math.IsInf(*d, 0):
		return fmt.Errorf("%w: non-finite %s at %s", ErrInvalidDuration, name, at.Format(time.RFC3339))
	case *d < 0:
		return fmt.Errorf("%w: negative %s at %s", ErrNegativeCount, name, at.Format(time.RFC3339))
	}
	return nil
}

// ValidateBatch validates every measurement in a batch.
func ValidateBatch(ms []FlowMeasurement) error {
	for i := range ms {
		if err := ms[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
