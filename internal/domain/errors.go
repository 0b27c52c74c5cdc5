package domain

import "errors"

// Contract violations. Insufficient data is never reported through these.
var (
	// ErrInvalidCapacity is returned when a capacity constraint is built
	// with non-positive servers/queue capacity or utilization outside (0,1].
	ErrInvalidCapacity = errors.New("invalid capacity constraint")

	// ErrNegativeCount is returned when a measurement carries a negative
	// count or duration.
	ErrNegativeCount = errors.New("negative count in flow measurement")

	// ErrInvalidPeriod is returned when a measurement's observation period
	// is not a positive finite number of seconds.
	ErrInvalidPeriod = errors.New("invalid observation period in flow measurement")

	// ErrInvalidDuration is returned when a service or wait duration is NaN or infinite.
	ErrInvalidDuration = errors.New("non-finite duration in flow measurement")
)
