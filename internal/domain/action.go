package domain

import (
	"math"
	"time"
)

// ActionStatus is the lifecycle state of a recommendation.
type ActionStatus string

const (
	ActionPending     ActionStatus = "pending"
	ActionImplemented ActionStatus = "implemented"
	ActionVerified    ActionStatus = "verified"
)

// String returns the string representation of ActionStatus.
func (s ActionStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known value.
func (s ActionStatus) IsValid() bool {
	switch s {
	case ActionPending, ActionImplemented, ActionVerified:
		return true
	}
	return false
}

// ActionType names a kind of corrective action.
type ActionType string

const (
	ActionAddStaffPeak         ActionType = "add_staff_peak"
	ActionAddCapacity          ActionType = "add_capacity"
	ActionQueueManagement      ActionType = "queue_management"
	ActionScheduleOptimization ActionType = "schedule_optimization"
	ActionOperationalReview    ActionType = "operational_review"
	ActionDataQuality          ActionType = "data_quality"
)

// ActionRecommendation is the single action proposed for a day.
type ActionRecommendation struct {
	RecommendationID string       `json:"recommendation_id"`
	Date             time.Time    `json:"date"`
	LocationID       string       `json:"location_id"`
	Description      string       `json:"description"`
	ActionType       ActionType   `json:"action_type"`
	TargetCategory   LossCategory `json:"target_category,omitempty"`

	MinRecoverable  float64 `json:"min_recoverable"`
	MaxRecoverable  float64 `json:"max_recoverable"`
	ActionCost      float64 `json:"action_cost"`
	ConfidenceScore float64 `json:"confidence_score"` // [0,1]

	Justification string             `json:"justification"`
	Supporting    map[string]float64 `json:"supporting,omitempty"`

	Status          ActionStatus `json:"status"`
	ImplementedAt   *time.Time   `json:"implemented_at,omitempty"`
	ImplementedCost *float64     `json:"implemented_cost,omitempty"`
}

// NetBenefit is the conservative benefit: minimum recovery less cost.
func (a ActionRecommendation) NetBenefit() float64 {
	return a.MinRecoverable - a.ActionCost
}

// ROIRatio returns min recovery / cost.
// A free action with positive recovery yields +Inf; a free action with none yields 0.
func (a ActionRecommendation) ROIRatio() float64 {
	if a.ActionCost <= 0 {
		if a.MinRecoverable > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return a.MinRecoverable / a.ActionCost
}
