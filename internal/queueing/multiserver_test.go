package queueing

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedFormErlangC evaluates the textbook formulas directly with Pow and Gamma.
func closedFormErlangC(lambda, mu float64, c int) (rho, lq, wq float64) {
	a := lambda / mu
	rho = a / float64(c)
	sum := 0.0
	for n := 0; n < c; n++ {
		sum += math.Pow(a, float64(n)) / math.Gamma(float64(n+1))
	}
	top := math.Pow(a, float64(c)) / math.Gamma(float64(c+1)) / (1 - rho)
	pWait := top / (sum + top)
	lq = pWait * rho / (1 - rho)
	wq = lq / lambda
	return rho, lq, wq
}

func TestNewMultiServer_Validation(t *testing.T) {
	_, err := NewMultiServer(0, 1)
	assert.ErrorIs(t, err, ErrInvalidQueue)

	_, err = NewMultiServer(2, 0)
	assert.ErrorIs(t, err, ErrInvalidQueue)

	_, err = NewMultiServer(2, -1)
	assert.ErrorIs(t, err, ErrInvalidQueue)

	q, err := NewMultiServer(2, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Servers())
	assert.Equal(t, 0.5, q.ServiceRate())
}

func TestMetrics_MatchesClosedForm(t *testing.T) {
	configs := []struct {
		lambda float64
		mu     float64
		c      int
	}{
		// ρ = 0.3
		{0.9, 1.0, 3},
		{0.06, 0.05, 4},
		{1.5, 1.0, 5},
		// ρ = 0.6
		{1.2, 0.5, 4},
		{0.06, 1.0 / 60, 6},
		{1.8, 1.0, 3},
		// ρ = 0.9
		{4.5, 1.0, 5},
		{0.018, 0.01, 2},
		{7.2, 0.8, 10},
	}

	for _, cfg := range configs {
		t.Run(fmt.Sprintf("lambda=%g,mu=%g,c=%d", cfg.lambda, cfg.mu, cfg.c), func(t *testing.T) {
			q, err := NewMultiServer(cfg.c, cfg.mu)
			require.NoError(t, err)

			m := q.Metrics(cfg.lambda)
			require.True(t, m.Stable)

			rho, lq, wq := closedFormErlangC(cfg.lambda, cfg.mu, cfg.c)
			assert.InDelta(t, rho, m.Rho, 1e-3)
			assert.InDelta(t, lq, m.Lq, 1e-3)
			assert.InDelta(t, wq, m.Wq, 1e-3)

			assert.InDelta(t, m.L, m.ArrivalRate*m.W, 1e-9)
			assert.InDelta(t, m.W, m.Wq+1/cfg.mu, 1e-9)
			assert.GreaterOrEqual(t, m.ErlangC, 0.0)
			assert.LessOrEqual(t, m.ErlangC, 1.0)
		})
	}
}

func TestMetrics_SingleServerReducesToMM1(t *testing.T) {
	q, err := NewMultiServer(1, 1.0)
	require.NoError(t, err)

	m := q.Metrics(0.5)
	// M/M/1: Lq = ρ²/(1−ρ), P(wait) = ρ
	assert.InDelta(t, 0.5, m.ErlangC, 1e-12)
	assert.InDelta(t, 0.5, m.Lq, 1e-12)
	assert.InDelta(t, 0.5, m.P0, 1e-12)
}

func TestMetrics_Unstable(t *testing.T) {
	q, err := NewMultiServer(2, 1.0)
	require.NoError(t, err)

	m := q.Metrics(2.0)
	assert.False(t, m.Stable)
	assert.Equal(t, 1.0, m.Rho)
	assert.Zero(t, m.Lq)
}

func TestMetrics_LargeServerCountDoesNotOverflow(t *testing.T) {
	q, err := NewMultiServer(170, 1.0)
	require.NoError(t, err)

	m := q.Metrics(150)
	require.True(t, m.Stable)
	assert.False(t, math.IsNaN(m.Wq))
	assert.False(t, math.IsInf(m.Wq, 0))
	assert.GreaterOrEqual(t, m.Wq, 0.0)
}

func TestFindOptimalServers(t *testing.T) {
	q, err := NewMultiServer(1, 1.0/120)
	require.NoError(t, err)
	lambda := 1.0 / 30

	sizing := q.FindOptimalServers(lambda, 60, 20)
	require.True(t, sizing.Feasible)
	require.NotNil(t, sizing.Metrics)
	assert.LessOrEqual(t, sizing.AchievedWq, 60.0)
	assert.Less(t, sizing.Utilization, 1.0)

	// one fewer server must miss the target or be unstable
	prev := MultiServer{servers: sizing.Servers - 1, serviceRate: q.ServiceRate()}.Metrics(lambda)
	assert.True(t, !prev.Stable || prev.Wq > 60)

	infeasible := q.FindOptimalServers(lambda, 0, 3)
	assert.False(t, infeasible.Feasible)
	assert.NotEmpty(t, infeasible.Message)
}

func TestWqCurve_NonIncreasing(t *testing.T) {
	cases := []struct {
		lambda float64
		mu     float64
	}{
		{1.0 / 30, 1.0 / 120},
		{4.5, 1.0},
		{0.9, 0.1},
	}

	for _, tc := range cases {
		q, err := NewMultiServer(1, tc.mu)
		require.NoError(t, err)

		curve := q.WqCurve(tc.lambda, 25)
		require.Len(t, curve, 25)
		for i := 1; i < len(curve); i++ {
			assert.LessOrEqual(t, curve[i], curve[i-1], "Wq increased at c=%d", i+1)
		}
	}
}
