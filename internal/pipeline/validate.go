package pipeline

import (
	"go-trip-pipeline/internal/model"
)

// Limits are the validation thresholds. Bounds are inclusive.
type Limits struct {
	MinPassengers int
	MaxPassengers int
	MinLat        float64
	MaxLat        float64
	MinLon        float64
	MaxLon        float64
	MinDuration   int // seconds
	MaxDuration   int // seconds
}

// DefaultLimits covers the New York City area and plausible taxi trips.
var DefaultLimits = Limits{
	MinPassengers: 1,
	MaxPassengers: 9,
	MinLat:        40.0,
	MaxLat:        41.0,
	MinLon:        -75.0,
	MaxLon:        -73.0,
	MinDuration:   30,
	MaxDuration:   7200,
}

// Validator applies the ordered field checks to a CandidateRecord. It keeps no state
// between records.
type Validator struct {
	Limits Limits
}

// NewValidator returns a Validator using limits.
func NewValidator(limits Limits) Validator {
	return Validator{Limits: limits}
}

// Validate runs every check in order and stops at the first failure:
// presence, passenger count, coordinates, temporal order, duration sanity band.
func (v Validator) Validate(c model.CandidateRecord) model.Verdict {
	if verdict := v.ValidateStructure(c); !verdict.Accepted {
		return verdict
	}
	d := c.DurationSeconds()
	if d < v.Limits.MinDuration || d > v.Limits.MaxDuration {
		return model.Reject(model.ReasonDurationSanityBand)
	}
	return model.Accept()
}

// ValidateStructure runs the checks that do not depend on duration limits. The sample
// pass uses it so that bounds are derived from structurally sound records only.
func (v Validator) ValidateStructure(c model.CandidateRecord) model.Verdict {
	switch {
	case c.TripID == "" || c.PickupAt.IsZero() || c.DropoffAt.IsZero():
		return model.Reject(model.ReasonMissingField)
	case c.PassengerCount < v.Limits.MinPassengers || c.PassengerCount > v.Limits.MaxPassengers:
		return model.Reject(model.ReasonInvalidPassengerCount)
	case !v.inArea(c.Pickup) || !v.inArea(c.Dropoff):
		return model.Reject(model.ReasonInvalidCoordinates)
	case !c.DropoffAt.After(c.PickupAt):
		return model.Reject(model.ReasonInvalidTemporal)
	}
	return model.Accept()
}

func (v Validator) inArea(p model.Coordinate) bool {
	if p.IsZero() {
		return false
	}
	return p.Lat >= v.Limits.MinLat && p.Lat <= v.Limits.MaxLat &&
		p.Lon >= v.Limits.MinLon && p.Lon <= v.Limits.MaxLon
}
