// Package orchestrator runs the daily pipeline.
// It coordinates: load measurements → analyze day → store insight, snapshots
// and recommendation → record progress
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/engine"
	"queueloss/internal/observability"
	"queueloss/internal/storage"
)

// Orchestrator coordinates daily pipeline execution.
// Flow: measurements → engine → insight/snapshot/action stores
type Orchestrator struct {
	engine *engine.Engine

	// Stores
	measurements storage.MeasurementStore
	actions      storage.ActionStore
	insights     storage.InsightStore
	snapshots    storage.LossSnapshotStore
	progress     storage.RunProgressStore

	capacities domain.CapacityLookup
	metrics    *observability.Metrics
	logger     *slog.Logger
	clock      func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	Engine *engine.Engine // required

	// Required stores
	Measurements storage.MeasurementStore
	Actions      storage.ActionStore
	Insights     storage.InsightStore

	// Optional stores
	Snapshots storage.LossSnapshotStore
	Progress  storage.RunProgressStore

	Capacities domain.CapacityLookup
	Metrics    *observability.Metrics
	Logger     *slog.Logger
	Clock      func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("orchestrator: engine is required")
	}
	if opts.Measurements == nil || opts.Actions == nil || opts.Insights == nil {
		return nil, fmt.Errorf("orchestrator: measurement, action and insight stores are required")
	}

	o := &Orchestrator{
		engine:       opts.Engine,
		measurements: opts.Measurements,
		actions:      opts.Actions,
		insights:     opts.Insights,
		snapshots:    opts.Snapshots,
		progress:     opts.Progress,
		capacities:   opts.Capacities,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		clock:        opts.Clock,
	}
	if o.capacities == nil {
		o.capacities = func(string, domain.LocationType) *domain.CapacityConstraint { return nil }
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	if o.clock == nil {
		o.clock = time.Now
	}
	return o, nil
}

// DayResult summarizes one processed day.
type DayResult struct {
	Day       time.Time
	Skipped   bool // insight already stored
	Report    *engine.DayReport
	Snapshots int
}

// RunResult contains results from a multi-day run.
type RunResult struct {
	DaysProcessed int
	DaysSkipped   int
	Days          []DayResult
	Errors        []string
}

// RunDay analyzes one UTC day and stores its outputs.
// A day whose insight already exists is skipped, not recomputed.
func (o *Orchestrator) RunDay(ctx context.Context, day time.Time) (*DayResult, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	result := &DayResult{Day: day}

	if _, err := o.insights.GetByDate(ctx, day); err == nil {
		result.Skipped = true
		return result, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("check insight %s: %w", day.Format(time.DateOnly), err)
	}

	// Phase 1: Load measurements
	loadStart := time.Now()
	byLocation, err := o.measurements.GetByDay(ctx, day)
	o.metrics.RecordDBQuery("measurements", "get_by_day", time.Since(loadStart), err)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (load measurements) failed: %w", err)
	}

	// Phase 2: Analyze
	start := time.Now()
	report, err := o.engine.AnalyzeDay(ctx, byLocation, o.capacitiesFor(byLocation), day)
	if err != nil {
		o.metrics.RecordDayRun(runStatus(err), time.Since(start))
		return nil, fmt.Errorf("phase 2 (analyze %s) failed: %w", day.Format(time.DateOnly), err)
	}
	o.metrics.RecordDayRun("ok", time.Since(start))
	for _, a := range report.Locations {
		o.metrics.RecordLocation(a.OutcomeName)
	}
	result.Report = &report

	// Phase 3: Store
	if err := o.store(ctx, &report, result); err != nil {
		return nil, fmt.Errorf("phase 3 (store %s) failed: %w", day.Format(time.DateOnly), err)
	}
	o.metrics.RecordInsight(&report.Insight, o.clock())

	o.logger.Info("day processed",
		"day", day.Format(time.DateOnly),
		"locations", len(report.Locations),
		"total_loss", report.Insight.TotalLoss,
		"action", report.Insight.Recommendation.ActionType,
	)
	return result, nil
}

func (o *Orchestrator) store(ctx context.Context, report *engine.DayReport, result *DayResult) error {
	if o.snapshots != nil {
		snaps := report.Snapshots()
		ptrs := make([]*domain.LossSnapshot, len(snaps))
		for i := range snaps {
			ptrs[i] = &snaps[i]
		}
		err := o.timed("snapshots", "insert_bulk", func() error { return o.snapshots.InsertBulk(ctx, ptrs) })
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("insert snapshots: %w", err)
		}
		result.Snapshots = len(ptrs)
	}

	rec := report.Insight.Recommendation
	err := o.timed("actions", "insert", func() error { return o.actions.Insert(ctx, &rec) })
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("insert recommendation: %w", err)
	}

	// The insight is written last; its presence marks the day complete.
	err = o.timed("insights", "insert", func() error { return o.insights.Insert(ctx, &report.Insight) })
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("insert insight: %w", err)
	}

	if o.progress != nil {
		err := o.progress.SetLastProcessed(ctx, &storage.RunProgress{
			Day:             report.Insight.Date,
			CalculationHash: report.Insight.CalculationHash,
		})
		if err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
	}
	return nil
}

// Run processes every day in [from, to]. A failing day is recorded and the
// run continues, except on context cancellation.
func (o *Orchestrator) Run(ctx context.Context, from, to time.Time) (*RunResult, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range ends before it starts", storage.ErrInvalidInput)
	}

	result := &RunResult{}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		dr, err := o.RunDay(ctx, day)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return result, err
			}
			o.logger.Error("day failed", "day", day.Format(time.DateOnly), "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", day.Format(time.DateOnly), err))
			continue
		}
		if dr.Skipped {
			result.DaysSkipped++
		} else {
			result.DaysProcessed++
		}
		result.Days = append(result.Days, *dr)
	}
	return result, nil
}

// Resume processes days after the last completed one through to.
// Without saved progress it starts at from.
func (o *Orchestrator) Resume(ctx context.Context, from, to time.Time) (*RunResult, error) {
	if o.progress == nil {
		return o.Run(ctx, from, to)
	}
	last, err := o.progress.GetLastProcessed(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load progress: %w", err)
	default:
		if next := last.Day.AddDate(0, 0, 1); next.After(from) {
			from = next
		}
	}
	if from.After(to) {
		return &RunResult{}, nil
	}
	return o.Run(ctx, from, to)
}

// capacitiesFor resolves the capacity of every location in the batch.
func (o *Orchestrator) capacitiesFor(byLocation map[string][]domain.FlowMeasurement) map[string]domain.CapacityConstraint {
	out := make(map[string]domain.CapacityConstraint, len(byLocation))
	for id, ms := range byLocation {
		if len(ms) == 0 {
			continue
		}
		if c := o.capacities(id, ms[0].LocationType); c != nil {
			out[id] = *c
		}
	}
	return out
}

func (o *Orchestrator) timed(store, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.RecordDBQuery(store, op, time.Since(start), err)
	return err
}

func runStatus(err error) string {
	switch {
	case errors.Is(err, engine.ErrBudgetExceeded):
		return "budget_exceeded"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
