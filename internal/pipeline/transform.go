package pipeline

import (
	"math"

	"go-trip-pipeline/internal/geo"
	"go-trip-pipeline/internal/model"
)

// Enricher defaults.
const (
	DefaultMinDistanceKM = 0.1
	DefaultMaxSpeedKMH   = 120.0
)

// Enricher derives distance, speed, and calendar features for a validated trip.
type Enricher struct {
	MinDistanceKM float64
	MaxSpeedKMH   float64
	CellPrecision uint
}

// NewEnricher returns an Enricher with the default thresholds.
func NewEnricher() Enricher {
	return Enricher{
		MinDistanceKM: DefaultMinDistanceKM,
		MaxSpeedKMH:   DefaultMaxSpeedKMH,
		CellPrecision: geo.DefaultCellPrecision,
	}
}

// Enrich computes the derived features of c. It returns a non-empty reason when the trip
// is too short or implausibly fast. c must already have a positive duration.
func (e Enricher) Enrich(c model.CandidateRecord) (model.EnrichedRecord, model.Reason) {
	distance := geo.Haversine(c.Pickup.Lat, c.Pickup.Lon, c.Dropoff.Lat, c.Dropoff.Lon)
	if distance < e.MinDistanceKM {
		return model.EnrichedRecord{}, model.ReasonTripTooShort
	}

	seconds := c.DurationSeconds()
	if seconds <= 0 {
		return model.EnrichedRecord{}, model.ReasonInvalidTemporal
	}
	speed := distance / (float64(seconds) / 3600)
	if speed > e.MaxSpeedKMH {
		return model.EnrichedRecord{}, model.ReasonSpeedOutlier
	}

	pickup := c.PickupAt
	return model.EnrichedRecord{
		CandidateRecord:  c,
		DurationSeconds:  seconds,
		DistanceKM:       round(distance, 3),
		SpeedKMH:         round(speed, 2),
		TimeOfDay:        model.TimeOfDayFor(pickup.Hour()),
		DistanceCategory: model.DistanceCategoryFor(distance),
		Hour:             pickup.Hour(),
		DayOfWeek:        (int(pickup.Weekday()) + 6) % 7,
		Month:            int(pickup.Month()),
		PickupGeohash:    geo.Cell(c.Pickup.Lat, c.Pickup.Lon, e.CellPrecision),
		DropoffGeohash:   geo.Cell(c.Dropoff.Lat, c.Dropoff.Lon, e.CellPrecision),
	}, ""
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
