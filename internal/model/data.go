package model

import "time"

// Reason is a rejection reason. The set is closed; every reason belongs to exactly one stage.
type Reason string

const (
	ReasonMalformedInput        Reason = "malformed_input"
	ReasonMissingField          Reason = "missing_field"
	ReasonInvalidPassengerCount Reason = "invalid_passenger_count"
	ReasonInvalidCoordinates    Reason = "invalid_coordinates"
	ReasonInvalidTemporal       Reason = "invalid_temporal_sequence"
	ReasonDurationSanityBand    Reason = "duration_out_of_sanity_band"
	ReasonDurationOutlier       Reason = "duration_outlier"
	ReasonTripTooShort          Reason = "trip_too_short"
	ReasonSpeedOutlier          Reason = "speed_outlier"
)

// Reasons lists the taxonomy in pipeline order.
var Reasons = []Reason{
	ReasonMalformedInput,
	ReasonMissingField,
	ReasonInvalidPassengerCount,
	ReasonInvalidCoordinates,
	ReasonInvalidTemporal,
	ReasonDurationSanityBand,
	ReasonDurationOutlier,
	ReasonTripTooShort,
	ReasonSpeedOutlier,
}

// Valid reports whether r is part of the taxonomy.
func (r Reason) Valid() bool {
	for _, known := range Reasons {
		if r == known {
			return true
		}
	}
	return false
}

func (r Reason) String() string { return string(r) }

// Verdict is the outcome of validating one record.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason,omitempty"`
}

// Accept is the passing verdict.
func Accept() Verdict { return Verdict{Accepted: true} }

// Reject builds a failing verdict for reason.
func Reject(reason Reason) Verdict { return Verdict{Reason: reason} }

// BatchResult describes one flush to a sink.
type BatchResult struct {
	Sink        string    `json:"sink"`
	Batch       int       `json:"batch"`
	RecordCount int       `json:"record_count"`
	Written     int       `json:"written"`
	Attempts    int       `json:"attempts"`
	FlushedAt   time.Time `json:"flushed_at"`
}
