package ingestion

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"queueloss/internal/domain"
	"queueloss/internal/storage"
)

// SampleLocation is a service point produced by SampleSource.
type SampleLocation struct {
	ID   string
	Type domain.LocationType
}

// DefaultSampleLocations are the hotel service points used for demos.
var DefaultSampleLocations = []SampleLocation{
	{ID: "front_desk_main", Type: domain.LocationFrontDesk},
	{ID: "restaurant_main", Type: domain.LocationRestaurant},
	{ID: "lobby_entrance", Type: domain.LocationLobby},
}

// SampleSource generates hotel traffic with daily peaks, one record per
// location every 5 minutes. Output depends only on the seed and the range.
type SampleSource struct {
	seed      uint64
	locations []SampleLocation
}

// NewSampleSource creates a generator. Nil locations use DefaultSampleLocations.
func NewSampleSource(seed uint64, locations []SampleLocation) *SampleSource {
	if len(locations) == 0 {
		locations = DefaultSampleLocations
	}
	return &SampleSource{seed: seed, locations: locations}
}

// Fetch implements MeasurementSource. Both bounds are required and are
// truncated to whole days.
func (s *SampleSource) Fetch(ctx context.Context, from, to time.Time) ([]domain.FlowMeasurement, error) {
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("%w: sample range needs both bounds", storage.ErrInvalidInput)
	}
	var out []domain.FlowMeasurement
	for day := from.UTC().Truncate(24 * time.Hour); day.Before(to); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, s.Day(day)...)
	}
	return out, nil
}

// Day generates one UTC day. Each day has its own stream so days can be
// generated independently.
func (s *SampleSource) Day(day time.Time) []domain.FlowMeasurement {
	day = day.UTC().Truncate(24 * time.Hour)
	r := rand.New(rand.NewPCG(s.seed, uint64(day.Unix())))
	weekend := day.Weekday() == time.Saturday || day.Weekday() == time.Sunday

	out := make([]domain.FlowMeasurement, 0, 288*len(s.locations))
	for slot := 0; slot < 288; slot++ {
		ts := day.Add(time.Duration(slot) * 5 * time.Minute)
		for _, loc := range s.locations {
			out = append(out, samplePoint(r, ts, loc, weekend))
		}
	}
	return out
}

func samplePoint(r *rand.Rand, ts time.Time, loc SampleLocation, weekend bool) domain.FlowMeasurement {
	hour := ts.Hour()

	var base, service float64
	switch loc.Type {
	case domain.LocationFrontDesk:
		base = frontDeskArrivals(hour, weekend)
		service = gauss(r, 180, 30)
	case domain.LocationRestaurant:
		base = restaurantArrivals(hour, weekend)
		service = gauss(r, 1800, 300)
	default:
		base = lobbyArrivals(hour)
		service = gauss(r, 60, 20)
	}

	arrivals := max(0, int(base*uniform(r, 0.7, 1.3)))
	departures := max(0, int(float64(arrivals)*uniform(r, 0.8, 1.0)))
	queue := max(0, int(gauss(r, float64(arrivals)*0.3, 2)))
	inService := min(3, max(0, int(gauss(r, 2, 0.5))))

	wait := gauss(r, 30, 10)
	if queue > 0 {
		wait += float64(queue) * service / 3
	}
	service = math.Max(30, service)
	wait = math.Max(0, wait)

	return domain.FlowMeasurement{
		Timestamp:                ts,
		LocationID:               loc.ID,
		LocationType:             loc.Type,
		ArrivalCount:             arrivals,
		DepartureCount:           departures,
		QueueLength:              queue,
		InServiceCount:           inService,
		AvgServiceDuration:       &service,
		AvgWaitTime:              &wait,
		ObservationPeriodSeconds: domain.DefaultObservationPeriodSeconds,
	}
}

func frontDeskArrivals(hour int, weekend bool) float64 {
	var base float64
	switch {
	case hour >= 14 && hour <= 18: // check-in
		base = 10
		if weekend {
			base = 12
		}
	case hour >= 10 && hour <= 12: // check-out
		base = 8
	case hour >= 8 && hour <= 22:
		base = 3
	default:
		base = 1
	}
	if weekend {
		base *= 1.2
	}
	return base
}

func restaurantArrivals(hour int, weekend bool) float64 {
	var base float64
	switch {
	case hour >= 7 && hour <= 9:
		base = 15
	case hour >= 12 && hour <= 14:
		base = 20
	case hour >= 18 && hour <= 21:
		base = 25
	default:
		base = 2
	}
	if weekend {
		base *= 1.3
	}
	return base
}

func lobbyArrivals(hour int) float64 {
	if hour >= 8 && hour <= 22 {
		return 8
	}
	return 2
}

func gauss(r *rand.Rand, mean, sd float64) float64 {
	return r.NormFloat64()*sd + mean
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}
