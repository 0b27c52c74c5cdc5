package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"queueloss/internal/domain"
)

// CSV column names. Columns may appear in any order; the optional ones may be
// missing or empty.
const (
	ColTimestamp         = "timestamp"
	ColLocationID        = "location_id"
	ColLocationType      = "location_type"
	ColArrivals          = "arrival_count"
	ColDepartures        = "departure_count"
	ColQueueLength       = "queue_length"
	ColInService         = "in_service_count"
	ColServiceDuration   = "avg_service_duration_seconds"
	ColWaitTime          = "avg_wait_time_seconds"
	ColObservationPeriod = "observation_period_seconds"
)

// CSVHeader is the column order written by WriteCSV.
var CSVHeader = []string{
	ColTimestamp, ColLocationID, ColLocationType,
	ColArrivals, ColDepartures, ColQueueLength, ColInService,
	ColServiceDuration, ColWaitTime, ColObservationPeriod,
}

var requiredColumns = []string{
	ColTimestamp, ColLocationID, ColLocationType,
	ColArrivals, ColDepartures, ColQueueLength, ColInService,
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ErrMalformedCSV is returned for unreadable headers or cells.
var ErrMalformedCSV = errors.New("malformed measurement csv")

// ReadCSV parses measurements from r. Timestamps without a zone are UTC.
// A missing observation period defaults to 300 seconds.
// Range validation is left to Check.
func ReadCSV(r io.Reader) ([]domain.FlowMeasurement, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrMalformedCSV)
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedCSV, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedCSV, c)
		}
	}

	var out []domain.FlowMeasurement
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedCSV, err)
		}
		line, _ := cr.FieldPos(0)
		m, err := parseRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedCSV, line, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func parseRow(rec []string, cols map[string]int) (domain.FlowMeasurement, error) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var m domain.FlowMeasurement
	ts, err := parseTimestamp(cell(ColTimestamp))
	if err != nil {
		return m, err
	}
	m.Timestamp = ts
	m.LocationID = cell(ColLocationID)
	m.LocationType = domain.LocationType(strings.ToLower(cell(ColLocationType)))

	ints := []struct {
		name string
		dst  *int
	}{
		{ColArrivals, &m.ArrivalCount},
		{ColDepartures, &m.DepartureCount},
		{ColQueueLength, &m.QueueLength},
		{ColInService, &m.InServiceCount},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(cell(f.name))
		if err != nil {
			return m, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}

	if m.AvgServiceDuration, err = optionalFloat(cell(ColServiceDuration)); err != nil {
		return m, fmt.Errorf("%s: %w", ColServiceDuration, err)
	}
	if m.AvgWaitTime, err = optionalFloat(cell(ColWaitTime)); err != nil {
		return m, fmt.Errorf("%s: %w", ColWaitTime, err)
	}

	m.ObservationPeriodSeconds = domain.DefaultObservationPeriodSeconds
	if s := cell(ColObservationPeriod); s != "" {
		if m.ObservationPeriodSeconds, err = strconv.ParseFloat(s, 64); err != nil {
			return m, fmt.Errorf("%s: %w", ColObservationPeriod, err)
		}
	}
	return m, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q: unsupported format", s)
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// WriteCSV writes ms with CSVHeader.
func WriteCSV(w io.Writer, ms []domain.FlowMeasurement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, m := range ms {
		rec := []string{
			m.Timestamp.UTC().Format(time.RFC3339),
			m.LocationID,
			string(m.LocationType),
			strconv.Itoa(m.ArrivalCount),
			strconv.Itoa(m.DepartureCount),
			strconv.Itoa(m.QueueLength),
			strconv.Itoa(m.InServiceCount),
			formatOptional(m.AvgServiceDuration),
			formatOptional(m.AvgWaitTime),
			strconv.FormatFloat(m.ObservationPeriodSeconds, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// CSVSource serves measurements from a CSV file.
type CSVSource struct {
	path string
}

// NewCSVSource creates a source reading path on every Fetch.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Fetch implements MeasurementSource.
func (s *CSVSource) Fetch(_ context.Context, from, to time.Time) ([]domain.FlowMeasurement, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ms, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	out := ms[:0]
	for _, m := range ms {
		if inRange(m.Timestamp, from, to) {
			out = append(out, m)
		}
	}
	return out, nil
}
