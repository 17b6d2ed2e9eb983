package model

import "time"

// RawRecord is one input row keyed by header name. It is discarded after parsing.
type RawRecord map[string]string

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether c is the (0,0) sentinel upstream systems emit on GPS failure.
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// CandidateRecord is a typed trip that has been parsed but not yet validated.
type CandidateRecord struct {
	TripID         string     `json:"trip_id"`
	VendorID       int        `json:"vendor_id"`
	PickupAt       time.Time  `json:"pickup_datetime"`
	DropoffAt      time.Time  `json:"dropoff_datetime"`
	PassengerCount int        `json:"passenger_count"`
	Pickup         Coordinate `json:"pickup"`
	Dropoff        Coordinate `json:"dropoff"`
	StoreAndFwd    *string    `json:"store_and_fwd_flag,omitempty"`

	// ReportedDuration is the raw trip_duration column, when the source carries one.
	// It is never used for computation; duration is always derived from the timestamps.
	ReportedDuration *int `json:"reported_duration,omitempty"`
}

// Duration is the elapsed time between pickup and dropoff.
func (c CandidateRecord) Duration() time.Duration {
	return c.DropoffAt.Sub(c.PickupAt)
}

// DurationSeconds is Duration truncated to whole seconds.
func (c CandidateRecord) DurationSeconds() int {
	return int(c.Duration() / time.Second)
}

// EnrichedRecord is a CandidateRecord that passed every validation stage, plus its
// derived features. It is not mutated after the enricher returns it.
type EnrichedRecord struct {
	CandidateRecord

	DurationSeconds  int              `json:"trip_duration"`
	DistanceKM       float64          `json:"distance_km"`
	SpeedKMH         float64          `json:"speed_kmh"`
	TimeOfDay        TimeOfDay        `json:"time_of_day"`
	DistanceCategory DistanceCategory `json:"trip_distance_category"`
	Hour             int              `json:"hour"`
	DayOfWeek        int              `json:"day_of_week"` // 0 = Monday
	Month            int              `json:"month"`
	PickupGeohash    string           `json:"pickup_geohash,omitempty"`
	DropoffGeohash   string           `json:"dropoff_geohash,omitempty"`
}

// StoreAndFwdFlag returns the flag or "" when the source left it null.
func (r EnrichedRecord) StoreAndFwdFlag() string {
	if r.StoreAndFwd == nil {
		return ""
	}
	return *r.StoreAndFwd
}
