package geo_test

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"go-trip-pipeline/internal/geo"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tol                    float64
	}{
		{name: "lower manhattan to times square", lat1: 40.7128, lon1: -74.0060, lat2: 40.7580, lon2: -73.9855, want: 5.3145, tol: 0.001},
		{name: "about 11 meters", lat1: 40.7128, lon1: -74.0060, lat2: 40.7129, lon2: -74.0060, want: 0.01112, tol: 0.0001},
		{name: "bounding box diagonal", lat1: 40.0, lon1: -75.0, lat2: 41.0, lon2: -73.0, want: 202.38, tol: 0.01},
		{name: "zero sentinel", lat1: 0, lon1: 0, lat2: 40.75, lon2: -73.98, want: 0},
		{name: "single zero coordinate", lat1: 40.75, lon1: 0, lat2: 40.75, lon2: -73.98, want: 0},
		{name: "nan", lat1: math.NaN(), lon1: -74, lat2: 40.75, lon2: -73.98, want: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := geo.Haversine(test.lat1, test.lon1, test.lat2, test.lon2)
			if math.Abs(got-test.want) > test.tol {
				t.Fatalf("got %v, want %v ± %v", got, test.want, test.tol)
			}
		})
	}
}

func TestHaversineProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(17, 23))
	point := func() (float64, float64) {
		return 40 + rng.Float64(), -75 + 2*rng.Float64()
	}
	for i := 0; i < 500; i++ {
		lat1, lon1 := point()
		lat2, lon2 := point()

		ab := geo.Haversine(lat1, lon1, lat2, lon2)
		ba := geo.Haversine(lat2, lon2, lat1, lon1)
		if ab < 0 {
			t.Fatalf("negative distance %v", ab)
		}
		if math.Abs(ab-ba) > 1e-9 {
			t.Fatalf("asymmetric: %v vs %v", ab, ba)
		}
		if d := geo.Haversine(lat1, lon1, lat1, lon1); d != 0 {
			t.Fatalf("distance to self: %v", d)
		}
	}
}

func TestCell(t *testing.T) {
	hash := geo.Cell(40.7580, -73.9855, geo.DefaultCellPrecision)
	if len(hash) != geo.DefaultCellPrecision {
		t.Fatalf("unexpected length of hash %q", hash)
	}
	if !strings.HasPrefix(hash, "dr5") {
		t.Fatalf("midtown should fall in dr5, got %q", hash)
	}
	if got := geo.Cell(0, 0, 6); got != "" {
		t.Fatalf("sentinel should have no cell, got %q", got)
	}
	if got := geo.Cell(40.7580, -73.9855, 0); got != "" {
		t.Fatalf("zero precision should have no cell, got %q", got)
	}
	if got := geo.Cell(40.7580, -73.9855, 20); len(got) != 12 {
		t.Fatalf("precision should cap at 12, got %q", got)
	}
}
