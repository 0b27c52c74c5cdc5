// Package engine combines the queueing, variability and loss calculators into
// per-location analyses and one ranked recommendation per day.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/loss"
	"queueloss/internal/queueing"
	"queueloss/internal/variability"
)

// DefaultExpectedObservationsPerDay is one measurement every 5 minutes.
const DefaultExpectedObservationsPerDay = 288

var (
	// ErrBudgetExceeded is returned when a day run overruns its wall-clock budget.
	// The run may be retried.
	ErrBudgetExceeded = errors.New("analysis budget exceeded")

	// ErrInternal is returned when a calculator fails unexpectedly.
	ErrInternal = errors.New("internal calculation failure")
)

// Engine runs the full analysis for locations and days.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	littles   queueing.LittlesLawCalculator
	entropy   variability.Calculator
	stability variability.StabilityAnalyzer
	loss      *loss.Calculator
	policy    Policy

	tolerance      float64
	expectedPerDay int
	displayRhoCap  float64
	budget         time.Duration
	concurrency    int

	logger *slog.Logger
	clock  func() time.Time
}

// Options for creating Engine. Zero values take defaults.
type Options struct {
	Littles   queueing.LittlesLawCalculator
	Entropy   variability.Calculator
	Stability variability.StabilityAnalyzer
	Loss      *loss.Calculator // required
	Policy    *Policy

	VerificationTolerance      float64
	ExpectedObservationsPerDay int
	DisplayRhoCap              float64
	Budget                     time.Duration // 0 disables the day budget
	Concurrency                int           // max locations analyzed at once, 0 = unlimited

	Logger *slog.Logger
	Clock  func() time.Time
}

// New creates a new Engine.
func New(opts Options) (*Engine, error) {
	if opts.Loss == nil {
		return nil, fmt.Errorf("engine: loss calculator is required")
	}

	policy := DefaultPolicy(opts.Loss.Params().LaborCostPerHour)
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	e := &Engine{
		littles: queueing.NewLittlesLawCalculator(opts.Littles.ConfidenceLevel, opts.Littles.MinDataPoints).
			WithServiceRate(opts.Littles.ServiceRate),
		entropy:        variability.NewCalculator(opts.Entropy.MinDataPoints, opts.Entropy.ServiceCVFallback),
		stability:      variability.NewStabilityAnalyzer(opts.Stability.WindowSize),
		loss:           opts.Loss,
		policy:         policy,
		tolerance:      opts.VerificationTolerance,
		expectedPerDay: opts.ExpectedObservationsPerDay,
		displayRhoCap:  opts.DisplayRhoCap,
		budget:         opts.Budget,
		concurrency:    opts.Concurrency,
		logger:         opts.Logger,
		clock:          opts.Clock,
	}
	if e.tolerance <= 0 {
		e.tolerance = queueing.DefaultVerificationTolerance
	}
	if e.expectedPerDay <= 0 {
		e.expectedPerDay = DefaultExpectedObservationsPerDay
	}
	if e.displayRhoCap <= 0 {
		e.displayRhoCap = domain.DefaultDisplayRhoCap
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "engine")
	if e.clock == nil {
		e.clock = func() time.Time { return time.Now().UTC() }
	}
	return e, nil
}

// safely runs fn and converts a panic into ErrInternal.
func (e *Engine) safely(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("calculation panicked", "op", op, "panic", r)
			err = fmt.Errorf("%s: %w: %v", op, ErrInternal, r)
		}
	}()
	return fn()
}
