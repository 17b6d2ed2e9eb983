// Package store persists cleaned trips and the run ledger.
package store

import (
	"strings"
	"time"

	"go-trip-pipeline/internal/model"
)

// TripTable is the table every SQL sink writes to.
const TripTable = "taxi_trips"

// TimestampFormat is how text-typed timestamp columns are written.
const TimestampFormat = "2006-01-02 15:04:05"

var tripColumns = []string{
	"trip_id", "vendor_id", "pickup_datetime", "dropoff_datetime", "passenger_count",
	"pickup_longitude", "pickup_latitude", "dropoff_longitude", "dropoff_latitude",
	"store_and_fwd_flag", "trip_duration", "distance_km", "speed_kmh", "time_of_day",
	"trip_distance_category", "hour", "day_of_week", "month", "pickup_geohash", "dropoff_geohash",
}

// tripIndexes maps index name to column.
var tripIndexes = [][2]string{
	{"idx_pickup_datetime", "pickup_datetime"},
	{"idx_vendor_id", "vendor_id"},
	{"idx_time_of_day", "time_of_day"},
	{"idx_distance_category", "trip_distance_category"},
	{"idx_hour", "hour"},
	{"idx_day_of_week", "day_of_week"},
	{"idx_month", "month"},
	{"idx_duration", "trip_duration"},
	{"idx_distance", "distance_km"},
	{"idx_speed", "speed_kmh"},
}

func columnList() string {
	return strings.Join(tripColumns, ", ")
}

// placeholders returns "(?, ?, ...)" for one row.
func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

// tripArgs lists the column values of r in tripColumns order. ts renders timestamps for
// the target driver.
func tripArgs(r model.EnrichedRecord, ts func(time.Time) any) []any {
	var flag any
	if r.StoreAndFwd != nil {
		flag = *r.StoreAndFwd
	}
	return []any{
		r.TripID,
		r.VendorID,
		ts(r.PickupAt),
		ts(r.DropoffAt),
		r.PassengerCount,
		r.Pickup.Lon,
		r.Pickup.Lat,
		r.Dropoff.Lon,
		r.Dropoff.Lat,
		flag,
		r.DurationSeconds,
		r.DistanceKM,
		r.SpeedKMH,
		string(r.TimeOfDay),
		string(r.DistanceCategory),
		r.Hour,
		r.DayOfWeek,
		r.Month,
		r.PickupGeohash,
		r.DropoffGeohash,
	}
}

func textTime(t time.Time) any { return t.UTC().Format(TimestampFormat) }

func nativeTime(t time.Time) any { return t.UTC() }
