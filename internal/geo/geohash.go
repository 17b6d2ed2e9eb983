package geo

import "github.com/mmcloughlin/geohash"

// DefaultCellPrecision is a ~1.2km x 0.6km cell, fine enough to group pickups by block.
const DefaultCellPrecision = 6

// Cell returns the geohash of a point at the given precision (1-12 characters).
// A zero-sentinel point or a non-positive precision yields "".
func Cell(lat, lon float64, precision uint) string {
	if precision == 0 || (lat == 0 && lon == 0) {
		return ""
	}
	if precision > 12 {
		precision = 12
	}
	return geohash.EncodeWithPrecision(lat, lon, precision)
}
