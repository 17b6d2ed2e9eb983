// Package geo computes distances and cells for trip coordinates.
package geo

import "math"

// EarthRadiusKM is the mean Earth radius.
const EarthRadiusKM = 6371.0

// Haversine returns the great-circle distance in kilometers between two points given in
// decimal degrees:
//
//	a = sin²(Δφ/2) + cos φ1 · cos φ2 · sin²(Δλ/2)
//	d = 2R · asin(√a)
//
// Any coordinate that is exactly zero (the GPS-failure sentinel) or NaN yields 0.
// Accuracy is within about 0.5% for distances under 1000 km.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	for _, v := range [...]float64{lat1, lon1, lat2, lon2} {
		if v == 0 || math.IsNaN(v) {
			return 0
		}
	}

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	// rounding can push a a hair past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))

	return 2 * EarthRadiusKM * math.Asin(math.Sqrt(a))
}
