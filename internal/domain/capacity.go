package domain

import "fmt"

// DefaultTargetUtilization is the utilization a service point is staffed for.
const DefaultTargetUtilization = 0.85

// CapacityConstraint is the fixed physical capacity of a service point.
// It is immutable once constructed; use NewCapacityConstraint.
type CapacityConstraint struct {
	locationType      LocationType
	maxServers        int
	maxQueueCapacity  int
	targetUtilization float64
}

// NewCapacityConstraint validates and builds a capacity constraint.
// Invalid values fail fast with ErrInvalidCapacity; nothing is clamped.
func NewCapacityConstraint(locationType LocationType, maxServers, maxQueueCapacity int, targetUtilization float64) (CapacityConstraint, error) {
	if maxServers < 1 {
		return CapacityConstraint{}, fmt.Errorf("%w: max_servers must be >= 1, got %d", ErrInvalidCapacity, maxServers)
	}
	if maxQueueCapacity < 1 {
		return CapacityConstraint{}, fmt.Errorf("%w: max_queue_capacity must be >= 1, got %d", ErrInvalidCapacity, maxQueueCapacity)
	}
	if !(targetUtilization > 0 && targetUtilization <= 1) {
		return CapacityConstraint{}, fmt.Errorf("%w: target_utilization must be in (0, 1], got %g", ErrInvalidCapacity, targetUtilization)
	}
	return CapacityConstraint{
		locationType:      locationType,
		maxServers:        maxServers,
		maxQueueCapacity:  maxQueueCapacity,
		targetUtilization: targetUtilization,
	}, nil
}

// MustCapacityConstraint is NewCapacityConstraint for static configuration; it panics on error.
func MustCapacityConstraint(locationType LocationType, maxServers, maxQueueCapacity int, targetUtilization float64) CapacityConstraint {
	c, err := NewCapacityConstraint(locationType, maxServers, maxQueueCapacity, targetUtilization)
	if err != nil {
		panic(err)
	}
	return c
}

// LocationType returns the kind of service point.
func (c CapacityConstraint) LocationType() LocationType {
	return c.locationType
}

// MaxServers returns the number of parallel servers.
func (c CapacityConstraint) MaxServers() int {
	return c.maxServers
}

// MaxQueueCapacity returns the maximum number of waiting customers.
func (c CapacityConstraint) MaxQueueCapacity() int {
	return c.maxQueueCapacity
}

// TargetUtilization returns the planned utilization.
func (c CapacityConstraint) TargetUtilization() float64 {
	return c.targetUtilization
}

// IsZero reports whether c was never constructed.
func (c CapacityConstraint) IsZero() bool {
	return c.maxServers == 0
}

// CapacityLookup resolves the capacity of a service point, or nil when unknown.
type CapacityLookup func(locationID string, locationType LocationType) *CapacityConstraint
