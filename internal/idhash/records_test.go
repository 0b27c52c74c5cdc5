package idhash

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueloss/internal/domain"
)

func sampleLoss() domain.FinancialLoss {
	return domain.FinancialLoss{
		LocationID:            "front_desk_1",
		CalculationDate:       time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		WaitTimeCost:          120.5,
		LostThroughputRevenue: 300,
		WalkawayCost:          42,
		IdleTimeCost:          10,
		OvertimeCost:          0,
		ExcessWaitSeconds:     3600,
		LostCustomers:         2,
		Walkaways:             1,
	}
}

func sampleEntry() domain.ROILogEntry {
	return domain.ROILogEntry{
		EntryID:               "entry-1",
		Timestamp:             time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC),
		ActionID:              "action-1",
		ActionType:            domain.ActionAddStaffPeak,
		LocationID:            "front_desk_1",
		ActionCost:            150,
		BeforeDate:            time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		BeforeLoss:            1000,
		AfterDate:             time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC),
		AfterLoss:             600,
		LossReduction:         400,
		ImprovementPercentage: 40,
		NetBenefit:            250,
		PreviousEntryHash:     domain.GenesisHash,
	}
}

func TestComputeLossHash_Deterministic(t *testing.T) {
	l := sampleLoss()
	results := make([]string, 10)
	for i := range results {
		results[i] = ComputeLossHash(l)
	}
	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i])
	}
	assert.Len(t, results[0], 64)
}

func TestComputeLossHash_FieldSensitive(t *testing.T) {
	base := ComputeLossHash(sampleLoss())

	mutations := []struct {
		name   string
		mutate func(*domain.FinancialLoss)
	}{
		{"location", func(l *domain.FinancialLoss) { l.LocationID = "front_desk_2" }},
		{"date", func(l *domain.FinancialLoss) { l.CalculationDate = l.CalculationDate.AddDate(0, 0, 1) }},
		{"wait cost", func(l *domain.FinancialLoss) { l.WaitTimeCost += 0.01 }},
		{"throughput", func(l *domain.FinancialLoss) { l.LostThroughputRevenue++ }},
		{"walkaway", func(l *domain.FinancialLoss) { l.WalkawayCost++ }},
		{"idle", func(l *domain.FinancialLoss) { l.IdleTimeCost++ }},
		{"overtime", func(l *domain.FinancialLoss) { l.OvertimeCost++ }},
		{"lost customers", func(l *domain.FinancialLoss) { l.LostCustomers++ }},
		{"walkaways", func(l *domain.FinancialLoss) { l.Walkaways++ }},
		{"excess wait", func(l *domain.FinancialLoss) { l.ExcessWaitSeconds++ }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			l := sampleLoss()
			tt.mutate(&l)
			assert.NotEqual(t, base, ComputeLossHash(l))
		})
	}
}

func TestComputeEntryHash_IgnoresOwnHashAndSequence(t *testing.T) {
	e := sampleEntry()
	base := ComputeEntryHash(e)

	e.EntryHash = "whatever"
	e.SequenceNumber = 42
	assert.Equal(t, base, ComputeEntryHash(e))
}

func TestComputeEntryHash_FieldSensitive(t *testing.T) {
	base := ComputeEntryHash(sampleEntry())

	mutations := []struct {
		name   string
		mutate func(*domain.ROILogEntry)
	}{
		{"entry id", func(e *domain.ROILogEntry) { e.EntryID = "entry-2" }},
		{"timestamp", func(e *domain.ROILogEntry) { e.Timestamp = e.Timestamp.Add(time.Second) }},
		{"action id", func(e *domain.ROILogEntry) { e.ActionID = "action-2" }},
		{"action type", func(e *domain.ROILogEntry) { e.ActionType = domain.ActionAddCapacity }},
		{"location", func(e *domain.ROILogEntry) { e.LocationID = "forged" }},
		{"action cost", func(e *domain.ROILogEntry) { e.ActionCost = 0 }},
		{"before date", func(e *domain.ROILogEntry) { e.BeforeDate = e.BeforeDate.AddDate(0, 0, -1) }},
		{"before loss", func(e *domain.ROILogEntry) { e.BeforeLoss += 0.01 }},
		{"after date", func(e *domain.ROILogEntry) { e.AfterDate = e.AfterDate.AddDate(0, 0, 1) }},
		{"after loss", func(e *domain.ROILogEntry) { e.AfterLoss = 599.99 }},
		{"loss reduction", func(e *domain.ROILogEntry) { e.LossReduction = 1e6 }},
		{"improvement percentage", func(e *domain.ROILogEntry) { e.ImprovementPercentage = 99 }},
		{"net benefit", func(e *domain.ROILogEntry) { e.NetBenefit = 1e6 }},
		{"previous hash", func(e *domain.ROILogEntry) { e.PreviousEntryHash = "abc" }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			e := sampleEntry()
			tt.mutate(&e)
			assert.NotEqual(t, base, ComputeEntryHash(e))
		})
	}
}

func TestComputeRecommendationID(t *testing.T) {
	day := time.Date(2024, 1, 15, 17, 30, 0, 0, time.UTC)

	id1 := ComputeRecommendationID(day, "lobby", domain.ActionAddStaffPeak)
	id2 := ComputeRecommendationID(day.Add(-time.Hour), "lobby", domain.ActionAddStaffPeak)
	assert.Equal(t, id1, id2, "same calendar day must produce same id")

	parsed, err := uuid.Parse(id1)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())

	other := ComputeRecommendationID(day, "lobby", domain.ActionQueueManagement)
	assert.NotEqual(t, id1, other)
}

func TestComputeCalculationHash_MapOrderIndependent(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	m1 := map[string]float64{"a": 1, "b": 2}
	m2 := map[string]float64{"b": 2, "a": 1}

	assert.Equal(t,
		ComputeCalculationHash(day, 3, 10, m1, "b"),
		ComputeCalculationHash(day, 3, 10, m2, "b"),
	)
}
