package loss

import (
	"math"
	"sort"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/queueing"
)

// Calculator derives conservative lower-bound losses from a batch.
// It holds configuration only and is safe for concurrent use.
type Calculator struct {
	params Params
}

// NewCalculator creates a calculator. Invalid params are rejected.
func NewCalculator(params Params) (*Calculator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{params: params}, nil
}

// Params returns the calculator's parameters.
func (c *Calculator) Params() Params {
	return c.params
}

// Calculate computes the five loss components for one location's batch.
//
// entropy may be nil (no variability scaling). capacity may be nil, in which
// case throughput, idle and overtime losses are zero. date defaults to the
// UTC day of the earliest measurement.
func (c *Calculator) Calculate(ms []domain.FlowMeasurement, entropy *domain.EntropyMeasurement, capacity *domain.CapacityConstraint, date time.Time) domain.FinancialLoss {
	if len(ms) == 0 {
		return domain.FinancialLoss{CalculationDate: date}
	}

	if date.IsZero() {
		date = earliestDay(ms)
	}
	result := domain.FinancialLoss{
		LocationID:      ms[0].LocationID,
		CalculationDate: date,
	}

	excessSeconds, waitCost := c.waitTimeLoss(ms)
	if entropy != nil && entropy.VarianceImpactMultiplier > 1 {
		factor := math.Min(entropy.VarianceImpactMultiplier, c.params.EntropyMultiplierCap)
		excessSeconds *= factor
		waitCost *= factor
	}
	result.ExcessWaitSeconds = excessSeconds
	result.WaitTimeCost = waitCost

	result.Walkaways, result.WalkawayCost = c.walkawayLoss(ms)

	if capacity != nil && !capacity.IsZero() {
		result.LostCustomers, result.LostThroughputRevenue = c.throughputLoss(ms, *capacity)
		result.IdleServerSeconds, result.IdleTimeCost = c.idleTimeLoss(ms, *capacity)
		result.OvertimeServerHours, result.OvertimeCost = c.overtimeLoss(ms, *capacity)
	}

	return result
}

// waitTimeLoss prices wait beyond the acceptable threshold, using queue length
// as the number of affected customers.
func (c *Calculator) waitTimeLoss(ms []domain.FlowMeasurement) (excessSeconds, cost float64) {
	threshold := c.params.AcceptableWaitMinutes * 60

	terms := make([]float64, 0, len(ms))
	for _, m := range ms {
		if !m.HasWaitTime() || *m.AvgWaitTime <= threshold {
			continue
		}
		terms = append(terms, (*m.AvgWaitTime-threshold)*float64(m.QueueLength))
	}

	excessSeconds = queueing.Sum(terms)
	cost = excessSeconds / 60 * c.params.CustomerTimeValuePerMinute * c.params.ConservativeFactor
	return excessSeconds, cost
}

// throughputLoss counts arrivals beyond servers·period/60 in intervals where
// demand exceeded that throughput by more than the buffer.
func (c *Calculator) throughputLoss(ms []domain.FlowMeasurement, capacity domain.CapacityConstraint) (int, float64) {
	lost := 0
	for _, m := range ms {
		maxThroughput := float64(capacity.MaxServers()) * m.ObservationPeriodSeconds / 60
		arrivals := float64(m.ArrivalCount)
		if arrivals > maxThroughput*c.params.ThroughputBuffer {
			if n := int(arrivals - maxThroughput); n > 0 {
				lost += n
			}
		}
	}
	revenue := float64(lost) * c.params.AvgRevenuePerCustomer * c.params.ConservativeFactor
	return lost, revenue
}

// walkawayLoss estimates abandonment from queues that waited past the walkaway threshold.
func (c *Calculator) walkawayLoss(ms []domain.FlowMeasurement) (int, float64) {
	threshold := c.params.WalkawayThresholdMinutes * 60

	walkaways := 0
	for _, m := range ms {
		if !m.HasWaitTime() || *m.AvgWaitTime <= threshold {
			continue
		}
		excessMinutes := (*m.AvgWaitTime - threshold) / 60
		p := math.Min(c.params.WalkawayProbabilityCap, excessMinutes*c.params.WalkawayProbabilityPerMinute)
		walkaways += int(float64(m.QueueLength) * p)
	}

	w := float64(walkaways)
	direct := w * c.params.AvgRevenuePerCustomer
	future := w * c.params.CustomerLifetimeValue * c.params.LifetimeValueShare
	return walkaways, (direct + future) * c.params.ConservativeFactor
}

// idleTimeLoss prices server time when interval utilization falls well below target.
func (c *Calculator) idleTimeLoss(ms []domain.FlowMeasurement, capacity domain.CapacityConstraint) (float64, float64) {
	target := capacity.TargetUtilization()
	servers := capacity.MaxServers()

	terms := make([]float64, 0, len(ms))
	for _, m := range ms {
		util, ok := queueing.IntervalUtilization(m, servers)
		if !ok {
			util = c.params.UnknownUtilization
		}
		if util < target*c.params.IdleUtilizationBand {
			terms = append(terms, (target-util)*m.ObservationPeriodSeconds*float64(servers))
		}
	}

	idleSeconds := queueing.Sum(terms)
	cost := idleSeconds / 3600 * c.params.LaborCostPerHour * c.params.ConservativeFactor
	return idleSeconds, cost
}

// overtimeLoss prices the overtime premium for intervals with utilization above 1.
func (c *Calculator) overtimeLoss(ms []domain.FlowMeasurement, capacity domain.CapacityConstraint) (float64, float64) {
	servers := capacity.MaxServers()

	terms := make([]float64, 0, len(ms))
	for _, m := range ms {
		util, ok := queueing.IntervalUtilization(m, servers)
		if !ok || util <= 1 {
			continue
		}
		terms = append(terms, (util-1)*m.ObservationPeriodSeconds*float64(servers))
	}

	hours := queueing.Sum(terms) / 3600
	premium := hours * c.params.LaborCostPerHour * (c.params.OvertimeMultiplier - 1)
	return hours, premium * c.params.ConservativeFactor
}

func earliestDay(ms []domain.FlowMeasurement) time.Time {
	ts := make([]time.Time, len(ms))
	for i, m := range ms {
		ts[i] = m.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	return ts[0].UTC().Truncate(24 * time.Hour)
}
