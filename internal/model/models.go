package model

// TimeOfDay buckets the pickup hour.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"   // [5,12)
	Afternoon TimeOfDay = "afternoon" // [12,17)
	Evening   TimeOfDay = "evening"   // [17,21)
	Night     TimeOfDay = "night"
)

// TimeOfDayFor maps an hour (0-23) to its bucket.
func TimeOfDayFor(hour int) TimeOfDay {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 17:
		return Afternoon
	case hour >= 17 && hour < 21:
		return Evening
	default:
		return Night
	}
}

// DistanceCategory buckets trip distance.
type DistanceCategory string

const (
	Short  DistanceCategory = "short"  // < 2 km
	Medium DistanceCategory = "medium" // [2,10) km
	Long   DistanceCategory = "long"   // >= 10 km
)

// DistanceCategoryFor maps a distance in kilometers to its bucket.
func DistanceCategoryFor(km float64) DistanceCategory {
	switch {
	case km < 2:
		return Short
	case km < 10:
		return Medium
	default:
		return Long
	}
}
