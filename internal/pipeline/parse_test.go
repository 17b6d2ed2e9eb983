package pipeline

import (
	"testing"
	"time"

	"go-trip-pipeline/internal/model"
)

// tripRaw returns a valid raw row (scenario A) with overrides applied. An override of
// "<absent>" deletes the column.
func tripRaw(overrides map[string]string) model.RawRecord {
	raw := model.RawRecord{
		ColID:              "id2875421",
		ColVendorID:        "2",
		ColPickupDatetime:  "2016-03-14 08:00:00",
		ColDropoffDatetime: "2016-03-14 08:15:00",
		ColPassengerCount:  "1",
		ColPickupLat:       "40.7128",
		ColPickupLon:       "-74.0060",
		ColDropoffLat:      "40.7580",
		ColDropoffLon:      "-73.9855",
		ColStoreAndFwd:     "N",
		ColTripDuration:    "900",
	}
	for k, v := range overrides {
		if v == "<absent>" {
			delete(raw, k)
			continue
		}
		raw[k] = v
	}
	return raw
}

func TestParseRecord(t *testing.T) {
	c, reason, err := ParseRecord(tripRaw(nil))
	if err != nil || reason != "" {
		t.Fatalf("unexpected failure %q: %v", reason, err)
	}
	want := time.Date(2016, 3, 14, 8, 0, 0, 0, time.UTC)
	if !c.PickupAt.Equal(want) {
		t.Fatalf("pickup: got %v, want %v", c.PickupAt, want)
	}
	if c.TripID != "id2875421" || c.VendorID != 2 || c.PassengerCount != 1 {
		t.Fatalf("unexpected record %+v", c)
	}
	if c.Pickup.Lat != 40.7128 || c.Dropoff.Lon != -73.9855 {
		t.Fatalf("unexpected coordinates %+v %+v", c.Pickup, c.Dropoff)
	}
	if c.StoreAndFwd == nil || *c.StoreAndFwd != "N" {
		t.Fatalf("unexpected flag %v", c.StoreAndFwd)
	}
	if c.ReportedDuration == nil || *c.ReportedDuration != 900 {
		t.Fatalf("unexpected reported duration %v", c.ReportedDuration)
	}
	if c.DurationSeconds() != 900 {
		t.Fatalf("duration: got %d", c.DurationSeconds())
	}
}

func TestParseRecordFailures(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		want      model.Reason
	}{
		{name: "absent id", overrides: map[string]string{ColID: "<absent>"}, want: model.ReasonMissingField},
		{name: "blank pickup time", overrides: map[string]string{ColPickupDatetime: "   "}, want: model.ReasonMissingField},
		{name: "blank latitude", overrides: map[string]string{ColDropoffLat: ""}, want: model.ReasonMissingField},
		{name: "word passenger count", overrides: map[string]string{ColPassengerCount: "two"}, want: model.ReasonMalformedInput},
		{name: "fractional passenger count", overrides: map[string]string{ColPassengerCount: "1.5"}, want: model.ReasonMalformedInput},
		{name: "bad vendor", overrides: map[string]string{ColVendorID: "v2"}, want: model.ReasonMalformedInput},
		{name: "unknown timestamp layout", overrides: map[string]string{ColDropoffDatetime: "14 March 2016"}, want: model.ReasonMalformedInput},
		{name: "nan coordinate", overrides: map[string]string{ColPickupLon: "NaN"}, want: model.ReasonMalformedInput},
		{name: "infinite coordinate", overrides: map[string]string{ColPickupLat: "+Inf"}, want: model.ReasonMalformedInput},
		{name: "text coordinate", overrides: map[string]string{ColPickupLat: "north"}, want: model.ReasonMalformedInput},
		{name: "text trip duration", overrides: map[string]string{ColTripDuration: "long"}, want: model.ReasonMalformedInput},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, reason, err := ParseRecord(tripRaw(test.overrides))
			if reason != test.want {
				t.Fatalf("got reason %q, want %q", reason, test.want)
			}
			if err == nil {
				t.Fatal("expected an error describing the field")
			}
		})
	}
}

func TestParseRecordLenient(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		check     func(c model.CandidateRecord) bool
	}{
		{
			name:      "integral float count",
			overrides: map[string]string{ColPassengerCount: "2.0"},
			check:     func(c model.CandidateRecord) bool { return c.PassengerCount == 2 },
		},
		{
			name:      "iso timestamp",
			overrides: map[string]string{ColPickupDatetime: "2016-03-14T08:00:00"},
			check:     func(c model.CandidateRecord) bool { return c.PickupAt.Hour() == 8 },
		},
		{
			name:      "us timestamp",
			overrides: map[string]string{ColPickupDatetime: "03/14/2016 07:59:30"},
			check:     func(c model.CandidateRecord) bool { return c.PickupAt.Minute() == 59 && c.PickupAt.Second() == 30 },
		},
		{
			name:      "minute timestamp",
			overrides: map[string]string{ColDropoffDatetime: "2016-03-14 08:15"},
			check:     func(c model.CandidateRecord) bool { return c.DurationSeconds() == 900 },
		},
		{
			name:      "padded values",
			overrides: map[string]string{ColPickupLat: " 40.7128 ", ColVendorID: " 1"},
			check:     func(c model.CandidateRecord) bool { return c.Pickup.Lat == 40.7128 && c.VendorID == 1 },
		},
		{
			name:      "optional columns absent",
			overrides: map[string]string{ColStoreAndFwd: "<absent>", ColTripDuration: "<absent>"},
			check:     func(c model.CandidateRecord) bool { return c.StoreAndFwd == nil && c.ReportedDuration == nil },
		},
		{
			name:      "zero coordinates still parse",
			overrides: map[string]string{ColPickupLat: "0", ColPickupLon: "0"},
			check:     func(c model.CandidateRecord) bool { return c.Pickup.IsZero() },
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, reason, err := ParseRecord(tripRaw(test.overrides))
			if err != nil || reason != "" {
				t.Fatalf("unexpected failure %q: %v", reason, err)
			}
			if !test.check(c) {
				t.Fatalf("unexpected record %+v", c)
			}
		})
	}
}
