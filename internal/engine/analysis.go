package engine

import (
	"sort"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/idhash"
	"queueloss/internal/queueing"
	"queueloss/internal/variability"
)

// Status of a location analysis.
type Status string

const (
	StatusAnalyzed Status = "analyzed"
	StatusNoData   Status = "no_data"
)

// LocationAnalysis is the immutable snapshot of one location's batch.
type LocationAnalysis struct {
	Status       Status              `json:"status"`
	LocationID   string              `json:"location_id"`
	LocationType domain.LocationType `json:"location_type,omitempty"`
	Date         time.Time           `json:"date"`
	DataPoints   int                 `json:"data_points"`

	Outcome      queueing.OutcomeKind       `json:"-"`
	OutcomeName  string                     `json:"queue_outcome"`
	Queue        *domain.LittlesLawResult   `json:"queue_metrics,omitempty"`
	DisplayRho   float64                    `json:"display_rho"`
	Verification queueing.Verification      `json:"littles_law_verification"`
	ErlangC      *queueing.ErlangCMetrics   `json:"erlang_c,omitempty"`
	Kingman      *variability.KingmanResult `json:"kingman,omitempty"`

	Entropy         domain.EntropyMeasurement   `json:"entropy"`
	EntropyMeasured bool                        `json:"entropy_measured"`
	Patterns        variability.PatternAnalysis `json:"patterns"`
	Stability       variability.StabilityReport `json:"stability"`

	Loss      domain.FinancialLoss `json:"financial_loss"`
	TotalLoss float64              `json:"total_loss"`
	LossHash  string               `json:"loss_hash"`
	AuditHash string               `json:"audit_hash"`
}

// Verified reports whether Little's Law verification passed.
func (a LocationAnalysis) Verified() bool {
	return a.Verification.Verified
}

// AnalyzeLocation runs every calculator over one location's batch.
//
// capacity may be nil. date is the calculation day; a zero date uses the UTC
// day of the earliest measurement. An empty batch yields StatusNoData.
// Records that break the input contract return domain.ErrNegativeCount,
// domain.ErrInvalidPeriod or domain.ErrInvalidDuration.
func (e *Engine) AnalyzeLocation(ms []domain.FlowMeasurement, capacity *domain.CapacityConstraint, date time.Time) (LocationAnalysis, error) {
	var out LocationAnalysis
	err := e.safely("analyze location", func() error {
		var err error
		out, err = e.analyzeLocation(ms, capacity, date)
		return err
	})
	return out, err
}

func (e *Engine) analyzeLocation(ms []domain.FlowMeasurement, capacity *domain.CapacityConstraint, date time.Time) (LocationAnalysis, error) {
	if len(ms) == 0 {
		return LocationAnalysis{Status: StatusNoData, Date: date}, nil
	}
	if err := domain.ValidateBatch(ms); err != nil {
		return LocationAnalysis{}, err
	}

	ordered := timeOrdered(ms)
	if date.IsZero() {
		date = ordered[0].Timestamp.UTC().Truncate(24 * time.Hour)
	}

	a := LocationAnalysis{
		Status:       StatusAnalyzed,
		LocationID:   ordered[0].LocationID,
		LocationType: ordered[0].LocationType,
		Date:         date,
		DataPoints:   len(ordered),
	}

	outcome := e.littles.Calculate(ordered, capacity)
	a.Outcome = outcome.Kind
	a.OutcomeName = outcome.Kind.String()
	a.Verification = e.littles.VerifyLittlesLaw(ordered, e.tolerance)

	entropy, measured := e.entropy.CalculateEntropy(ordered)
	a.Entropy = entropy
	a.EntropyMeasured = measured
	a.Patterns = e.entropy.AnalyzePatterns(ordered)
	a.Stability = e.stability.Analyze(ordered)

	if r, ok := outcome.Ok(); ok {
		result := r
		a.Queue = &result
		a.DisplayRho = r.DisplayRho(e.displayRhoCap)

		k := variability.KingmanImpact(entropy.ArrivalCV, entropy.ServiceCV, r.Rho)
		a.Kingman = &k

		if capacity != nil && !capacity.IsZero() && r.Mu > 0 {
			if q, err := queueing.NewMultiServer(capacity.MaxServers(), r.Mu); err == nil {
				m := q.Metrics(r.LambdaRate)
				a.ErlangC = &m
			}
		}
	}

	var entropyPtr *domain.EntropyMeasurement
	if measured {
		entropyPtr = &entropy
	}
	a.Loss = e.loss.Calculate(ordered, entropyPtr, capacity, date)
	a.TotalLoss = a.Loss.TotalLoss()
	a.LossHash = idhash.ComputeLossHash(a.Loss)
	a.AuditHash = idhash.ComputeAuditHash(a.LocationID, date, a.DataPoints, a.LossHash)

	e.logger.Debug("location analyzed",
		"location", a.LocationID,
		"points", a.DataPoints,
		"outcome", a.OutcomeName,
		"total_loss", a.TotalLoss,
	)
	return a, nil
}

// timeOrdered returns ms sorted by timestamp; ties keep input order after a
// secondary sort on the count fields so equal batches sort identically.
func timeOrdered(ms []domain.FlowMeasurement) []domain.FlowMeasurement {
	out := make([]domain.FlowMeasurement, len(ms))
	copy(out, ms)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.ArrivalCount != b.ArrivalCount {
			return a.ArrivalCount < b.ArrivalCount
		}
		if a.DepartureCount != b.DepartureCount {
			return a.DepartureCount < b.DepartureCount
		}
		if a.QueueLength != b.QueueLength {
			return a.QueueLength < b.QueueLength
		}
		return a.InServiceCount < b.InServiceCount
	})
	return out
}
