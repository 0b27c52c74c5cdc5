// Package ledger tracks recommendations from implementation to verified,
// hash-chained ROI entries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"queueloss/internal/domain"
	"queueloss/internal/idhash"
	"queueloss/internal/loss"
	"queueloss/internal/observability"
	"queueloss/internal/storage"
)

var (
	// ErrInvalidTransition is returned when an action is not in the state
	// the requested step requires.
	ErrInvalidTransition = errors.New("invalid action status transition")

	// ErrUnverified is returned when recording a verification that did not pass.
	ErrUnverified = errors.New("improvement not verified")

	// ErrInconsistentVerification is returned when a verification belongs to
	// another action or its savings do not follow from its losses.
	ErrInconsistentVerification = errors.New("inconsistent verification")
)

// Service owns the action lifecycle and the ROI chain.
type Service struct {
	actions      storage.ActionStore
	entries      storage.RoiEntryStore
	measurements storage.MeasurementStore
	calc         *loss.Calculator
	capacities   domain.CapacityLookup
	metrics      *observability.Metrics

	logger *slog.Logger
	clock  func() time.Time
}

// Options for creating Service.
type Options struct {
	Actions      storage.ActionStore      // required
	Entries      storage.RoiEntryStore    // required
	Measurements storage.MeasurementStore // required by VerifyImprovement
	Calculator   *loss.Calculator         // required by VerifyImprovement
	Capacities   domain.CapacityLookup
	Metrics      *observability.Metrics

	Logger *slog.Logger
	Clock  func() time.Time
}

// NewService creates a new Service.
func NewService(opts Options) (*Service, error) {
	if opts.Actions == nil || opts.Entries == nil {
		return nil, fmt.Errorf("ledger: action and entry stores are required")
	}
	s := &Service{
		actions:      opts.Actions,
		entries:      opts.Entries,
		measurements: opts.Measurements,
		calc:         opts.Calculator,
		capacities:   opts.Capacities,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		clock:        opts.Clock,
	}
	if s.capacities == nil {
		s.capacities = func(string, domain.LocationType) *domain.CapacityConstraint { return nil }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "ledger")
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

// now returns the clock in UTC at microsecond precision, which every store
// round-trips exactly.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// Implement moves a pending action to implemented and records its real cost.
// A nil cost keeps the recommended cost.
func (s *Service) Implement(ctx context.Context, actionID string, cost *float64) (*domain.ActionRecommendation, error) {
	action, err := s.actions.GetByID(ctx, actionID)
	if err != nil {
		return nil, fmt.Errorf("get action %s: %w", actionID, err)
	}
	if action.Status != domain.ActionPending {
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrInvalidTransition, actionID, action.Status, domain.ActionPending)
	}
	if cost != nil && *cost < 0 {
		return nil, fmt.Errorf("%w: negative cost %g", storage.ErrInvalidInput, *cost)
	}

	at := s.now()
	actual := action.ActionCost
	if cost != nil {
		actual = *cost
	}
	action.Status = domain.ActionImplemented
	action.ImplementedAt = &at
	action.ImplementedCost = &actual

	if err := s.actions.UpdateStatus(ctx, action, domain.ActionPending); err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, actionID)
		}
		return nil, fmt.Errorf("update action %s: %w", actionID, err)
	}

	s.metrics.RecordTransition(domain.ActionImplemented)
	s.logger.Info("action implemented", "action_id", actionID, "cost", actual)
	return action, nil
}

// Record appends a verified improvement to the chain and marks the action
// verified. The action must be implemented and v must be valid and
// consistent: LossReduction and ImprovementPercentage must follow from the
// before and after losses, which are what the entry stores.
func (s *Service) Record(ctx context.Context, actionID string, v Verification) (*domain.ROILogEntry, error) {
	if !v.Valid {
		return nil, fmt.Errorf("%w: %s", ErrUnverified, v.Notes)
	}
	if v.ActionID != actionID {
		return nil, fmt.Errorf("%w: verification is for action %q, not %q", ErrInconsistentVerification, v.ActionID, actionID)
	}
	if err := checkDerived(v); err != nil {
		return nil, err
	}

	action, err := s.actions.GetByID(ctx, actionID)
	if err != nil {
		return nil, fmt.Errorf("get action %s: %w", actionID, err)
	}
	if action.Status != domain.ActionImplemented {
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrInvalidTransition, actionID, action.Status, domain.ActionImplemented)
	}
	if v.LocationID != action.LocationID {
		return nil, fmt.Errorf("%w: verification is for location %q, action is at %q", ErrInconsistentVerification, v.LocationID, action.LocationID)
	}

	// Claim the action first so two recorders cannot both append for it.
	claimed := *action
	claimed.Status = domain.ActionVerified
	if err := s.actions.UpdateStatus(ctx, &claimed, domain.ActionImplemented); err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, actionID)
		}
		return nil, fmt.Errorf("update action %s: %w", actionID, err)
	}

	cost := action.ActionCost
	if action.ImplementedCost != nil {
		cost = *action.ImplementedCost
	}
	reduction := v.BeforeDailyLoss - v.AfterDailyLoss

	entry, err := s.entries.AppendNext(ctx, func(head domain.LedgerHead) (*domain.ROILogEntry, error) {
		e := &domain.ROILogEntry{
			EntryID:    uuid.NewString(),
			Timestamp:  s.now(),
			ActionID:   action.RecommendationID,
			ActionType: action.ActionType,
			LocationID: action.LocationID,
			ActionCost: cost,

			BeforeDate: v.Before.Start,
			BeforeLoss: v.BeforeDailyLoss,
			AfterDate:  v.After.Start,
			AfterLoss:  v.AfterDailyLoss,

			LossReduction:         reduction,
			ImprovementPercentage: improvementPercentage(v.BeforeDailyLoss, reduction),
			NetBenefit:            reduction - cost,

			PreviousEntryHash: head.PreviousHash(),
			SequenceNumber:    head.NextSequence(),
		}
		e.EntryHash = idhash.ComputeEntryHash(*e)
		return e, nil
	})
	if err != nil {
		// Release the claim so the verification can be retried.
		released := claimed
		released.Status = domain.ActionImplemented
		if rbErr := s.actions.UpdateStatus(ctx, &released, domain.ActionVerified); rbErr != nil {
			s.logger.Error("release action claim", "action_id", actionID, "error", rbErr)
		}
		return nil, fmt.Errorf("append roi entry: %w", err)
	}

	s.metrics.RecordAppend()
	s.metrics.RecordTransition(domain.ActionVerified)
	s.logger.Info("roi entry appended",
		"entry_id", entry.EntryID,
		"sequence", entry.SequenceNumber,
		"action_id", actionID,
		"loss_reduction", entry.LossReduction,
	)
	return entry, nil
}

// VerifyAndRecord runs VerifyImprovement and, when it passes, Record.
func (s *Service) VerifyAndRecord(ctx context.Context, actionID string, before, after Period) (*domain.ROILogEntry, Verification, error) {
	v, err := s.VerifyImprovement(ctx, actionID, before, after)
	if err != nil {
		return nil, v, err
	}
	entry, err := s.Record(ctx, actionID, v)
	return entry, v, err
}

// derivedTolerance bounds float drift between a verification's stored and
// recomputed savings.
const derivedTolerance = 1e-9

// checkDerived rejects a verification whose savings do not follow from its
// before and after losses.
func checkDerived(v Verification) error {
	for name, x := range map[string]float64{
		"before_daily_loss":      v.BeforeDailyLoss,
		"after_daily_loss":       v.AfterDailyLoss,
		"loss_reduction":         v.LossReduction,
		"improvement_percentage": v.ImprovementPercentage,
	} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s is %g", ErrInconsistentVerification, name, x)
		}
	}

	reduction := v.BeforeDailyLoss - v.AfterDailyLoss
	if !approxEqual(v.LossReduction, reduction) {
		return fmt.Errorf("%w: loss_reduction %g, before-after is %g", ErrInconsistentVerification, v.LossReduction, reduction)
	}
	if pct := improvementPercentage(v.BeforeDailyLoss, reduction); !approxEqual(v.ImprovementPercentage, pct) {
		return fmt.Errorf("%w: improvement_percentage %g, losses give %g", ErrInconsistentVerification, v.ImprovementPercentage, pct)
	}
	return nil
}

// improvementPercentage is reduction as a share of before, or 0 with no before loss.
func improvementPercentage(before, reduction float64) float64 {
	if before > 0 {
		return reduction / before * 100
	}
	return 0
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= derivedTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
