package ingestion

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueloss/internal/domain"
	"queueloss/internal/observability"
	"queueloss/internal/storage"
	"queueloss/internal/storage/memory"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }

func measurement(loc string, offset time.Duration) domain.FlowMeasurement {
	return domain.FlowMeasurement{
		Timestamp:                day.Add(offset),
		LocationID:               loc,
		LocationType:             domain.LocationFrontDesk,
		ArrivalCount:             10,
		DepartureCount:           9,
		QueueLength:              2,
		InServiceCount:           1,
		AvgServiceDuration:       f64(180),
		AvgWaitTime:              f64(240),
		ObservationPeriodSeconds: 300,
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.FlowMeasurement)
		reason string
	}{
		{"valid", func(*domain.FlowMeasurement) {}, ""},
		{"period too short", func(m *domain.FlowMeasurement) { m.ObservationPeriodSeconds = 59 }, ReasonObservationPeriod},
		{"period too long", func(m *domain.FlowMeasurement) { m.ObservationPeriodSeconds = 3601 }, ReasonObservationPeriod},
		{"period not a number", func(m *domain.FlowMeasurement) { m.ObservationPeriodSeconds = math.NaN() }, ReasonObservationPeriod},
		{"period bounds inclusive", func(m *domain.FlowMeasurement) { m.ObservationPeriodSeconds = 3600 }, ""},
		{"negative queue", func(m *domain.FlowMeasurement) { m.QueueLength = -1 }, ReasonNegativeCount},
		{"negative wait", func(m *domain.FlowMeasurement) { m.AvgWaitTime = f64(-3) }, ReasonNegativeCount},
		{"infinite service duration", func(m *domain.FlowMeasurement) { m.AvgServiceDuration = f64(math.Inf(1)) }, ReasonInvalidDuration},
		{"missing location", func(m *domain.FlowMeasurement) { m.LocationID = " " }, ReasonMissingField},
		{"missing timestamp", func(m *domain.FlowMeasurement) { m.Timestamp = time.Time{} }, ReasonMissingField},
		{"unknown type", func(m *domain.FlowMeasurement) { m.LocationType = "ballroom" }, ReasonLocationType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := measurement("fd", 0)
			tt.mutate(&m)
			err := Check(m)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrRejected)
			var re *RejectError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.reason, re.Reason)
		})
	}
}

func TestIngester_Ingest(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMeasurementStore()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("", reg)

	ing, err := NewIngester(Options{Store: store, Metrics: metrics, BatchSize: 2})
	require.NoError(t, err)

	bad := measurement("fd", 10*time.Minute)
	bad.ObservationPeriodSeconds = 30
	input := []domain.FlowMeasurement{
		measurement("fd", 5*time.Minute),
		measurement("fd", 0),
		bad,
		measurement("fd", 0), // repeated key
		measurement("lobby", 0),
	}

	res, err := ing.Ingest(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Rejections, 2)
	assert.Equal(t, Rejection{Index: 2, Reason: ReasonObservationPeriod, Detail: res.Rejections[0].Detail}, res.Rejections[0])
	assert.Equal(t, 3, res.Rejections[1].Index)
	assert.Equal(t, ReasonDuplicate, res.Rejections[1].Reason)

	stored, err := store.GetByLocationRange(ctx, "fd", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.True(t, stored[0].Timestamp.Before(stored[1].Timestamp))

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.MeasurementsIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IngestionErrors.WithLabelValues(ReasonObservationPeriod)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IngestionErrors.WithLabelValues(ReasonDuplicate)))
}

func TestIngester_StoreDuplicate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMeasurementStore()
	ing, err := NewIngester(Options{Store: store})
	require.NoError(t, err)

	_, err = ing.Ingest(ctx, []domain.FlowMeasurement{measurement("fd", 0)})
	require.NoError(t, err)

	res, err := ing.Ingest(ctx, []domain.FlowMeasurement{measurement("fd", 0)})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Equal(t, 0, res.Processed)
}

func TestNewIngester_RequiresStore(t *testing.T) {
	_, err := NewIngester(Options{})
	require.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	input := `location_id,timestamp,location_type,arrival_count,departure_count,queue_length,in_service_count,avg_wait_time_seconds
fd,2026-03-02T08:00:00Z,front_desk,12,10,3,2,420.5
fd,2026-03-02 08:05:00,FRONT_DESK,8,9,1,2,
`
	ms, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ms, 2)

	assert.Equal(t, day.Add(8*time.Hour), ms[0].Timestamp)
	assert.Equal(t, "fd", ms[0].LocationID)
	assert.Equal(t, domain.LocationFrontDesk, ms[0].LocationType)
	assert.Equal(t, 12, ms[0].ArrivalCount)
	assert.Equal(t, 3, ms[0].QueueLength)
	require.NotNil(t, ms[0].AvgWaitTime)
	assert.Equal(t, 420.5, *ms[0].AvgWaitTime)
	assert.Nil(t, ms[0].AvgServiceDuration)
	assert.Equal(t, domain.DefaultObservationPeriodSeconds, ms[0].ObservationPeriodSeconds)

	assert.Equal(t, day.Add(8*time.Hour+5*time.Minute), ms[1].Timestamp)
	assert.Equal(t, domain.LocationFrontDesk, ms[1].LocationType)
	assert.Nil(t, ms[1].AvgWaitTime)
}

func TestReadCSV_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing column", "timestamp,location_id\n2026-03-02T08:00:00Z,fd\n"},
		{"bad count", "timestamp,location_id,location_type,arrival_count,departure_count,queue_length,in_service_count\n2026-03-02T08:00:00Z,fd,lobby,x,1,1,1\n"},
		{"bad timestamp", "timestamp,location_id,location_type,arrival_count,departure_count,queue_length,in_service_count\n02/03/2026,fd,lobby,1,1,1,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrMalformedCSV)
		})
	}
}

func TestCSVSource_FetchRange(t *testing.T) {
	ms := []domain.FlowMeasurement{
		measurement("fd", 0),
		measurement("fd", 24*time.Hour),
		measurement("fd", 48*time.Hour),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ms))

	path := filepath.Join(t.TempDir(), "measurements.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	got, err := NewCSVSource(path).Fetch(context.Background(), day.Add(24*time.Hour), day.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ms[1].Timestamp, got[0].Timestamp)
	assert.Equal(t, *ms[1].AvgWaitTime, *got[0].AvgWaitTime)
	assert.Equal(t, ms[1].ObservationPeriodSeconds, got[0].ObservationPeriodSeconds)
}

func TestSampleSource(t *testing.T) {
	src := NewSampleSource(42, nil)

	a, err := src.Fetch(context.Background(), day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, a, 288*len(DefaultSampleLocations))

	b := NewSampleSource(42, nil).Day(day)
	assert.Equal(t, a, b, "same seed and day give the same data")

	for _, m := range a {
		require.NoError(t, Check(m))
		assert.Equal(t, day, m.Timestamp.Truncate(24*time.Hour))
	}

	_, err = src.Fetch(context.Background(), time.Time{}, day)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSortMeasurements(t *testing.T) {
	ms := []domain.FlowMeasurement{
		measurement("b", time.Minute),
		measurement("b", 0),
		measurement("a", time.Minute),
	}
	SortMeasurements(ms)
	assert.Equal(t, "b", ms[0].LocationID)
	assert.Equal(t, "a", ms[1].LocationID)
	assert.Equal(t, "b", ms[2].LocationID)
	assert.Equal(t, day.Add(time.Minute), ms[2].Timestamp)
}
