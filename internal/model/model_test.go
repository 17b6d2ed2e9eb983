package model

import (
	"math"
	"testing"
	"time"
)

func TestTimeOfDayFor(t *testing.T) {
	tests := []struct {
		hour int
		want TimeOfDay
	}{
		{0, Night}, {4, Night}, {5, Morning}, {11, Morning}, {12, Afternoon},
		{16, Afternoon}, {17, Evening}, {20, Evening}, {21, Night}, {23, Night},
	}
	for _, test := range tests {
		if got := TimeOfDayFor(test.hour); got != test.want {
			t.Fatalf("hour %d: got %s, want %s", test.hour, got, test.want)
		}
	}
}

func TestDistanceCategoryFor(t *testing.T) {
	tests := []struct {
		km   float64
		want DistanceCategory
	}{
		{0, Short}, {1.999, Short}, {2, Medium}, {9.99, Medium}, {10, Long}, {42, Long},
	}
	for _, test := range tests {
		if got := DistanceCategoryFor(test.km); got != test.want {
			t.Fatalf("%v km: got %s, want %s", test.km, got, test.want)
		}
	}
}

func TestRejectionReport(t *testing.T) {
	r := NewRejectionReport()
	r.Accept()
	r.Reject(ReasonSpeedOutlier)
	r.Reject(ReasonMissingField)
	r.Reject(ReasonMissingField)
	r.Reject(ReasonSpeedOutlier)
	r.Reject(ReasonTripTooShort)

	if r.Processed != 6 || r.Accepted != 1 || r.TotalRejected() != 5 {
		t.Fatalf("unexpected counts %+v", r)
	}
	if r.Processed != r.Accepted+r.TotalRejected() {
		t.Fatal("counts do not add up")
	}
	summary := r.Summary()
	want := []ReasonCount{{ReasonMissingField, 2}, {ReasonSpeedOutlier, 2}, {ReasonTripTooShort, 1}}
	if len(summary) != len(want) {
		t.Fatalf("got %v", summary)
	}
	for i := range want {
		if summary[i] != want[i] {
			t.Fatalf("summary[%d] = %v, want %v", i, summary[i], want[i])
		}
	}

	if empty := NewRejectionReport(); empty.TotalRejected() != 0 || len(empty.Summary()) != 0 {
		t.Fatalf("new report not empty: %+v", empty)
	}
}

func TestReasonValid(t *testing.T) {
	for _, r := range Reasons {
		if !r.Valid() {
			t.Fatalf("%s should be valid", r)
		}
	}
	if Reason("bad_vibes").Valid() || Reason("").Valid() {
		t.Fatal("unknown reason reported valid")
	}
	if v := Reject(ReasonInvalidCoordinates); v.Accepted || v.Reason != ReasonInvalidCoordinates {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if v := Accept(); !v.Accepted || v.Reason != "" {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestFeatureSummary(t *testing.T) {
	s := NewFeatureSummary()
	s.Add(EnrichedRecord{DistanceKM: 2, SpeedKMH: 20, DurationSeconds: 360, TimeOfDay: Morning, DistanceCategory: Medium})
	s.Add(EnrichedRecord{DistanceKM: 4, SpeedKMH: 40, DurationSeconds: 360, TimeOfDay: Night, DistanceCategory: Medium})
	s.Add(EnrichedRecord{DistanceKM: 12, SpeedKMH: 30, DurationSeconds: 1440, TimeOfDay: Morning, DistanceCategory: Long})

	if s.Count() != 3 || s.ByTimeOfDay[Morning] != 2 || s.ByDistanceCategory[Long] != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if math.Abs(s.AvgDistanceKM-6) > 1e-9 || math.Abs(s.AvgSpeedKMH-30) > 1e-9 || math.Abs(s.AvgDurationSeconds-720) > 1e-9 {
		t.Fatalf("unexpected means %+v", s)
	}
}

func TestCandidateDuration(t *testing.T) {
	pickup := time.Date(2016, 3, 14, 17, 24, 55, 0, time.UTC)
	c := CandidateRecord{PickupAt: pickup, DropoffAt: pickup.Add(455 * time.Second)}
	if c.Duration() != 455*time.Second || c.DurationSeconds() != 455 {
		t.Fatalf("got %v / %d", c.Duration(), c.DurationSeconds())
	}
	if !(Coordinate{}).IsZero() || (Coordinate{Lat: 40.7}).IsZero() {
		t.Fatal("unexpected IsZero")
	}
}

func TestBoundsContains(t *testing.T) {
	b := Bounds{Lower: 30, Upper: 7200}
	for _, s := range []float64{30, 600, 7200} {
		if !b.Contains(s) {
			t.Fatalf("%v should be inside", s)
		}
	}
	for _, s := range []float64{29.9, 7200.1} {
		if b.Contains(s) {
			t.Fatalf("%v should be outside", s)
		}
	}
}
