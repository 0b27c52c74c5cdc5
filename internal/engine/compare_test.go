package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueloss/internal/domain"
)

func TestCompareBeforeAfter(t *testing.T) {
	e := newEngine(t, nil)
	c := threeServers(domain.LocationFrontDesk)

	after := batch("front_desk_1", domain.LocationFrontDesk, 20, interval{12, 12, 4, 3, f(400)})

	cmp, err := e.CompareBeforeAfter(overloaded(), after, &c)
	require.NoError(t, err)

	require.True(t, cmp.Compared)
	assert.True(t, cmp.Improved)
	assert.Less(t, cmp.LossChange, 0.0)
	assert.Less(t, cmp.After.TotalLoss, cmp.Before.TotalLoss)
	assert.InDelta(t, cmp.LossChange/cmp.Before.TotalLoss*100, cmp.LossChangePercentage, 1e-9)
	assert.Equal(t, 20, cmp.Before.DataPoints)

	require.NotNil(t, cmp.Before.Utilization)
	require.NotNil(t, cmp.After.Utilization)
	assert.Greater(t, *cmp.Before.Utilization, *cmp.After.Utilization)
	require.NotNil(t, cmp.After.AvgWait)
}

func TestCompareBeforeAfter_EmptySide(t *testing.T) {
	e := newEngine(t, nil)

	cmp, err := e.CompareBeforeAfter(overloaded(), nil, nil)
	require.NoError(t, err)
	assert.False(t, cmp.Compared)
}

func TestCompareBeforeAfter_ZeroBeforeLoss(t *testing.T) {
	e := newEngine(t, nil)

	cmp, err := e.CompareBeforeAfter(quiet(), waiting(), nil)
	require.NoError(t, err)

	assert.Zero(t, cmp.Before.TotalLoss)
	assert.Zero(t, cmp.LossChangePercentage)
	assert.False(t, cmp.Improved)
}
