package pipeline

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"go-trip-pipeline/internal/model"
)

// Column names of the trip source.
const (
	ColID              = "id"
	ColVendorID        = "vendor_id"
	ColPickupDatetime  = "pickup_datetime"
	ColDropoffDatetime = "dropoff_datetime"
	ColPassengerCount  = "passenger_count"
	ColPickupLat       = "pickup_latitude"
	ColPickupLon       = "pickup_longitude"
	ColDropoffLat      = "dropoff_latitude"
	ColDropoffLon      = "dropoff_longitude"
	ColStoreAndFwd     = "store_and_fwd_flag"
	ColTripDuration    = "trip_duration"
)

// RequiredColumns must be present and non-blank in every row.
var RequiredColumns = []string{
	ColID,
	ColVendorID,
	ColPickupDatetime,
	ColDropoffDatetime,
	ColPassengerCount,
	ColPickupLat,
	ColPickupLon,
	ColDropoffLat,
	ColDropoffLon,
}

// TimestampLayouts are tried in order for each timestamp field.
var TimestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02 15:04",
}

// ParseRecord coerces a raw row into a CandidateRecord. On failure it returns the
// rejection reason (missing_field or malformed_input) and an error naming the field.
func ParseRecord(raw model.RawRecord) (model.CandidateRecord, model.Reason, error) {
	var c model.CandidateRecord

	for _, col := range RequiredColumns {
		if strings.TrimSpace(raw[col]) == "" {
			return c, model.ReasonMissingField, errors.Errorf("missing %s", col)
		}
	}

	var err error
	c.TripID = strings.TrimSpace(raw[ColID])
	if c.VendorID, err = parseInt(raw[ColVendorID]); err != nil {
		return c, model.ReasonMalformedInput, errors.Wrap(err, ColVendorID)
	}
	if c.PickupAt, err = parseTimestamp(raw[ColPickupDatetime]); err != nil {
		return c, model.ReasonMalformedInput, errors.Wrap(err, ColPickupDatetime)
	}
	if c.DropoffAt, err = parseTimestamp(raw[ColDropoffDatetime]); err != nil {
		return c, model.ReasonMalformedInput, errors.Wrap(err, ColDropoffDatetime)
	}
	if c.PassengerCount, err = parseInt(raw[ColPassengerCount]); err != nil {
		return c, model.ReasonMalformedInput, errors.Wrap(err, ColPassengerCount)
	}

	coords := []struct {
		col string
		dst *float64
	}{
		{ColPickupLat, &c.Pickup.Lat},
		{ColPickupLon, &c.Pickup.Lon},
		{ColDropoffLat, &c.Dropoff.Lat},
		{ColDropoffLon, &c.Dropoff.Lon},
	}
	for _, f := range coords {
		if *f.dst, err = parseFloat(raw[f.col]); err != nil {
			return c, model.ReasonMalformedInput, errors.Wrap(err, f.col)
		}
	}

	if v := strings.TrimSpace(raw[ColStoreAndFwd]); v != "" {
		c.StoreAndFwd = &v
	}
	if v := strings.TrimSpace(raw[ColTripDuration]); v != "" {
		d, err := parseInt(v)
		if err != nil {
			return c, model.ReasonMalformedInput, errors.Wrap(err, ColTripDuration)
		}
		c.ReportedDuration = &d
	}

	return c, "", nil
}

// parseInt accepts plain integers and integral floats such as "2.0".
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Errorf("not an integer: %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, errors.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("not a finite number: %q", s)
	}
	return f, nil
}

// parseTimestamp reads a naive timestamp as UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range TimestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized timestamp: %q", s)
}
