package queueing

import (
	"fmt"
	"math"

	"queueloss/internal/domain"
)

// Defaults for the Little's Law calculator.
const (
	DefaultConfidenceLevel       = 0.95
	DefaultVerificationTolerance = 0.15
	DefaultStressedRho           = 0.85
)

// OutcomeKind tags the variant of a LittlesOutcome.
type OutcomeKind int

const (
	// OutcomeInsufficientData means too few samples or no arrivals; no result.
	OutcomeInsufficientData OutcomeKind = iota
	// OutcomeCalculated is a valid result with ρ < 1.
	OutcomeCalculated
	// OutcomeUnstable is a valid result with ρ ≥ 1.
	OutcomeUnstable
)

// String returns the variant name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCalculated:
		return "calculated"
	case OutcomeUnstable:
		return "unstable"
	default:
		return "insufficient_data"
	}
}

// LittlesOutcome is the result of LittlesLawCalculator.Calculate.
// Result is meaningful only when Kind is not OutcomeInsufficientData.
type LittlesOutcome struct {
	Kind       OutcomeKind
	Result     domain.LittlesLawResult
	DataPoints int
	Reason     string
}

// Ok returns the result and whether one was produced.
func (o LittlesOutcome) Ok() (domain.LittlesLawResult, bool) {
	return o.Result, o.Kind != OutcomeInsufficientData
}

// ServiceRateEstimator names the way μ is derived from a batch of measurements.
type ServiceRateEstimator string

const (
	// ServiceRateBusyServer divides completions by busy-server-seconds:
	// μ = Σdepartures / Σ(in_service·period). An overloaded station keeps
	// every server busy, so λ/(c·μ) can exceed 1.
	ServiceRateBusyServer ServiceRateEstimator = "busy_server"
	// ServiceRateDeparture takes μ = mean(departure_rate), the station's
	// completion rate. Departures never outrun arrivals for long, so with
	// this μ a saturated multi-server station reads ρ ≈ 1/c and never
	// reports unstable.
	ServiceRateDeparture ServiceRateEstimator = "departure_rate"
)

// DefaultServiceRateEstimator is used when none is configured.
const DefaultServiceRateEstimator = ServiceRateBusyServer

// IsValid reports whether e names a known estimator.
func (e ServiceRateEstimator) IsValid() bool {
	return e == ServiceRateBusyServer || e == ServiceRateDeparture
}

// Estimate returns μ in completions per second. Unknown names use the default.
func (e ServiceRateEstimator) Estimate(ms []domain.FlowMeasurement) float64 {
	if e == ServiceRateDeparture {
		return MeanDepartureRate(ms)
	}
	return EstimateServiceRate(ms)
}

// LittlesLawCalculator applies L = λW to a batch of flow measurements.
// It holds configuration only and is safe for concurrent use.
type LittlesLawCalculator struct {
	ConfidenceLevel float64
	MinDataPoints   int
	ServiceRate     ServiceRateEstimator
}

// NewLittlesLawCalculator creates a calculator with the given settings.
// Zero values fall back to defaults.
func NewLittlesLawCalculator(confidenceLevel float64, minDataPoints int) LittlesLawCalculator {
	if confidenceLevel <= 0 || confidenceLevel >= 1 {
		confidenceLevel = DefaultConfidenceLevel
	}
	if minDataPoints <= 0 {
		minDataPoints = domain.DefaultMinDataPoints
	}
	return LittlesLawCalculator{
		ConfidenceLevel: confidenceLevel,
		MinDataPoints:   minDataPoints,
		ServiceRate:     DefaultServiceRateEstimator,
	}
}

// WithServiceRate returns a copy of c that estimates μ with e.
func (c LittlesLawCalculator) WithServiceRate(e ServiceRateEstimator) LittlesLawCalculator {
	c.ServiceRate = e
	return c
}

func (c LittlesLawCalculator) withDefaults() LittlesLawCalculator {
	estimator := c.ServiceRate
	if !estimator.IsValid() {
		estimator = DefaultServiceRateEstimator
	}
	return NewLittlesLawCalculator(c.ConfidenceLevel, c.MinDataPoints).WithServiceRate(estimator)
}

// Calculate solves Little's Law for ms.
// capacity may be nil, in which case a single server is assumed.
//
// λ = mean(arrival_rate), L = mean(queue+in_service), Lq = mean(queue),
// W = L/λ, Wq = Lq/λ, ρ = λ/(c·μ) with μ from the configured estimator (ρ = 1 when μ = 0).
func (c LittlesLawCalculator) Calculate(ms []domain.FlowMeasurement, capacity *domain.CapacityConstraint) LittlesOutcome {
	c = c.withDefaults()

	n := len(ms)
	if n < c.MinDataPoints {
		return LittlesOutcome{
			Kind:       OutcomeInsufficientData,
			DataPoints: n,
			Reason:     fmt.Sprintf("insufficient data points: %d < %d", n, c.MinDataPoints),
		}
	}

	arrivalRates := make([]float64, n)
	inSystem := make([]float64, n)
	queue := make([]float64, n)
	for i, m := range ms {
		arrivalRates[i] = m.ArrivalRate()
		inSystem[i] = float64(m.TotalInSystem())
		queue[i] = float64(m.QueueLength)
	}

	lambda := Mean(arrivalRates)
	if lambda <= 0 {
		return LittlesOutcome{
			Kind:       OutcomeInsufficientData,
			DataPoints: n,
			Reason:     "arrival rate is zero",
		}
	}

	L := Mean(inSystem)
	Lq := Mean(queue)
	W := L / lambda
	Wq := Lq / lambda

	servers := 1
	if capacity != nil && !capacity.IsZero() {
		servers = capacity.MaxServers()
	}

	mu := c.ServiceRate.Estimate(ms)
	rho := 1.0
	if mu > 0 {
		rho = lambda / (float64(servers) * mu)
	}

	lower, upper := MeanCI(inSystem, c.ConfidenceLevel)

	result := domain.LittlesLawResult{
		L:              L,
		LambdaRate:     lambda,
		W:              W,
		Lq:             Lq,
		Wq:             Wq,
		Rho:            rho,
		Mu:             mu,
		DataPointsUsed: n,
		MinDataPoints:  c.MinDataPoints,
		CILower:        lower,
		CIUpper:        upper,
		CILevel:        c.ConfidenceLevel,
	}

	kind := OutcomeCalculated
	if result.IsUnstable() {
		kind = OutcomeUnstable
	}
	return LittlesOutcome{Kind: kind, Result: result, DataPoints: n}
}

// EstimateServiceRate returns the per-server service rate μ in completions per second.
//
// μ = Σdepartures / Σ(in_service·period), i.e. completions per busy-server-second.
// When no server was ever observed busy, the mean departure rate is used.
func EstimateServiceRate(ms []domain.FlowMeasurement) float64 {
	departures := make([]float64, 0, len(ms))
	busy := make([]float64, 0, len(ms))
	for _, m := range ms {
		departures = append(departures, float64(m.DepartureCount))
		busy = append(busy, float64(m.InServiceCount)*m.ObservationPeriodSeconds)
	}

	busySeconds := Sum(busy)
	if busySeconds > 0 {
		return Sum(departures) / busySeconds
	}
	return MeanDepartureRate(ms)
}

// MeanDepartureRate returns mean(departures/period), in completions per second.
func MeanDepartureRate(ms []domain.FlowMeasurement) float64 {
	rates := make([]float64, len(ms))
	for i, m := range ms {
		rates[i] = m.DepartureRate()
	}
	return Mean(rates)
}

// IntervalUtilization returns the utilization of one interval for a station of servers.
//
// The interval's per-server rate is departures/(in_service·period); with nobody in
// service it falls back to the interval departure rate. ok is false when the
// interval had no departures and utilization cannot be observed.
func IntervalUtilization(m domain.FlowMeasurement, servers int) (util float64, ok bool) {
	if servers < 1 || m.DepartureCount <= 0 || m.ObservationPeriodSeconds <= 0 {
		return 0, false
	}
	mu := m.DepartureRate()
	if m.InServiceCount > 0 {
		mu = float64(m.DepartureCount) / (float64(m.InServiceCount) * m.ObservationPeriodSeconds)
	}
	return m.ArrivalRate() / (float64(servers) * mu), true
}

// DeviationCategory classifies how far observed L strays from λW.
type DeviationCategory string

const (
	DeviationSteadyState DeviationCategory = "steady_state"
	DeviationMinor       DeviationCategory = "minor"
	DeviationModerate    DeviationCategory = "moderate"
	DeviationLarge       DeviationCategory = "large"
)

// Diagnosis returns a short human explanation of the category.
func (d DeviationCategory) Diagnosis() string {
	switch d {
	case DeviationSteadyState:
		return "System appears to be in steady state"
	case DeviationMinor:
		return "Minor deviation, possible transient effects or measurement noise"
	case DeviationModerate:
		return "Moderate deviation, system may not be in steady state"
	default:
		return "Large deviation, check data quality or system stability"
	}
}

// VerificationMethod says how Little's Law was checked.
type VerificationMethod string

const (
	MethodDirect     VerificationMethod = "direct_comparison"
	MethodEstimation VerificationMethod = "estimation"
	MethodNone       VerificationMethod = "none"
)

// Verification is the outcome of VerifyLittlesLaw.
type Verification struct {
	Verified   bool               `json:"verified"`
	Method     VerificationMethod `json:"method"`
	Reason     string             `json:"reason,omitempty"`
	DataPoints int                `json:"data_points"`

	LObserved  float64           `json:"l_observed"`
	LExpected  float64           `json:"l_expected"`
	Lambda     float64           `json:"lambda"`
	WObserved  float64           `json:"w_observed"`
	WEstimated float64           `json:"w_estimated"`
	Deviation  float64           `json:"deviation"`
	Tolerance  float64           `json:"tolerance"`
	Category   DeviationCategory `json:"category,omitempty"`
}

// VerifyLittlesLaw checks L ≈ λW against observed wait times.
// Without wait samples it runs in estimation mode and reports verified.
func (c LittlesLawCalculator) VerifyLittlesLaw(ms []domain.FlowMeasurement, tolerance float64) Verification {
	c = c.withDefaults()
	if tolerance <= 0 {
		tolerance = DefaultVerificationTolerance
	}

	n := len(ms)
	if n < c.MinDataPoints {
		return Verification{
			Method:     MethodNone,
			Reason:     "insufficient data points",
			DataPoints: n,
			Tolerance:  tolerance,
		}
	}

	arrivalRates := make([]float64, n)
	inSystem := make([]float64, n)
	waits := make([]float64, 0, n)
	for i, m := range ms {
		arrivalRates[i] = m.ArrivalRate()
		inSystem[i] = float64(m.TotalInSystem())
		if m.HasWaitTime() {
			waits = append(waits, *m.AvgWaitTime)
		}
	}

	lambda := Mean(arrivalRates)
	lObserved := Mean(inSystem)

	if len(waits) == 0 {
		wEst := 0.0
		if lambda > 0 {
			wEst = lObserved / lambda
		}
		return Verification{
			Verified:   true,
			Method:     MethodEstimation,
			Reason:     "W estimated from L/λ, no direct wait time data",
			DataPoints: n,
			LObserved:  lObserved,
			Lambda:     lambda,
			WEstimated: wEst,
			Tolerance:  tolerance,
		}
	}

	if lambda <= 0 {
		return Verification{
			Method:     MethodNone,
			Reason:     "arrival rate is zero",
			DataPoints: n,
			LObserved:  lObserved,
			Tolerance:  tolerance,
		}
	}

	wObserved := Mean(waits)
	lExpected := lambda * wObserved
	if lExpected <= 0 {
		return Verification{
			Method:     MethodNone,
			Reason:     "observed wait time is zero",
			DataPoints: n,
			LObserved:  lObserved,
			Lambda:     lambda,
			Tolerance:  tolerance,
		}
	}
	deviation := math.Abs(lObserved-lExpected) / lExpected

	return Verification{
		Verified:   deviation <= tolerance,
		Method:     MethodDirect,
		DataPoints: n,
		LObserved:  lObserved,
		LExpected:  lExpected,
		Lambda:     lambda,
		WObserved:  wObserved,
		Deviation:  deviation,
		Tolerance:  tolerance,
		Category:   classifyDeviation(deviation, tolerance),
	}
}

func classifyDeviation(deviation, tolerance float64) DeviationCategory {
	switch {
	case deviation <= tolerance:
		return DeviationSteadyState
	case deviation <= tolerance*2:
		return DeviationMinor
	case deviation <= tolerance*4:
		return DeviationModerate
	default:
		return DeviationLarge
	}
}

// LoadStatus classifies a projected utilization.
type LoadStatus string

const (
	LoadStable   LoadStatus = "stable"
	LoadStressed LoadStatus = "stressed"
	LoadUnstable LoadStatus = "unstable"
)

// MarginalImpact projects the effect of extra arrivals on waiting.
type MarginalImpact struct {
	Status               LoadStatus `json:"status"`
	CurrentLambdaPerHour float64    `json:"current_lambda_per_hour"`
	NewLambdaPerHour     float64    `json:"new_lambda_per_hour"`
	CurrentRho           float64    `json:"current_rho"`
	NewRho               float64    `json:"new_rho"`
	WaitMultiplier       float64    `json:"wait_multiplier"` // +Inf when unstable
	CurrentWq            float64    `json:"current_wq"`
	EstimatedNewWq       float64    `json:"estimated_new_wq"`
}

// MarginalWaitImpact projects utilization and wait after adding arrivals per hour.
// The wait multiplier is ρ'/(1−ρ') ÷ ρ/(1−ρ), the M/M/1 waiting factor ratio.
func MarginalWaitImpact(current domain.LittlesLawResult, additionalPerHour float64) MarginalImpact {
	lambda := current.LambdaRate
	rho := current.Rho
	newLambda := lambda + additionalPerHour/3600

	newRho := rho
	if lambda > 0 && rho > 0 {
		capacity := lambda / rho
		newRho = newLambda / capacity
	}

	impact := MarginalImpact{
		CurrentLambdaPerHour: lambda * 3600,
		NewLambdaPerHour:     newLambda * 3600,
		CurrentRho:           rho,
		NewRho:               newRho,
		CurrentWq:            current.Wq,
	}

	if newRho >= 1 || rho >= 1 {
		impact.Status = LoadUnstable
		impact.WaitMultiplier = math.Inf(1)
		impact.EstimatedNewWq = math.Inf(1)
		return impact
	}

	currentFactor := rho / (1 - rho)
	newFactor := newRho / (1 - newRho)
	switch {
	case currentFactor > 0:
		impact.WaitMultiplier = newFactor / currentFactor
	case newFactor == 0:
		impact.WaitMultiplier = 1
	default:
		impact.WaitMultiplier = math.Inf(1)
	}
	impact.EstimatedNewWq = current.Wq * impact.WaitMultiplier

	impact.Status = LoadStable
	if newRho >= DefaultStressedRho {
		impact.Status = LoadStressed
	}
	return impact
}
