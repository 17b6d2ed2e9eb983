package stats

import (
	"math"

	"go-trip-pipeline/internal/model"
)

// Default detector settings, in seconds.
const (
	DefaultMinDuration   = 30
	DefaultMaxDuration   = 7200
	DefaultIQRMultiplier = 1.5
	DefaultMinSample     = 10
)

// DurationSample is an unordered set of trip durations in seconds used only to derive bounds.
type DurationSample []float64

// Detector derives IQR fences over a DurationSample, clamped to an absolute band.
type Detector struct {
	Min        float64 // absolute floor, seconds
	Max        float64 // absolute ceiling, seconds
	Multiplier float64 // IQR fence multiplier
	MinSample  int     // below this sample size only [Min, Max] applies
}

// NewDetector returns a Detector with the default band and multiplier.
func NewDetector() Detector {
	return Detector{
		Min:        DefaultMinDuration,
		Max:        DefaultMaxDuration,
		Multiplier: DefaultIQRMultiplier,
		MinSample:  DefaultMinSample,
	}
}

// Fallback is the absolute band with no statistical narrowing.
func (d Detector) Fallback(sampleSize int) model.Bounds {
	return model.Bounds{Lower: d.Min, Upper: d.Max, SampleSize: sampleSize}
}

// Bounds computes
//
//	lower = max(Min, Q1 - k*IQR)
//	upper = min(Max, Q3 + k*IQR)
//
// from the sample's 25th and 75th percentiles. Samples smaller than MinSample (or
// never fewer than two values) fall back to [Min, Max]. When the fences lie entirely
// outside [Min, Max] the window is empty (Lower > Upper) and Contains rejects everything.
func (d Detector) Bounds(sample DurationSample) model.Bounds {
	minSample := d.MinSample
	if minSample < 2 {
		minSample = 2
	}
	if len(sample) < minSample {
		return d.Fallback(len(sample))
	}

	qs, err := Percentiles(sample, 25, 75)
	if err != nil {
		return d.Fallback(len(sample))
	}
	q1, q3 := qs[0], qs[1]
	iqr := q3 - q1

	lower := math.Max(d.Min, q1-d.Multiplier*iqr)
	upper := math.Min(d.Max, q3+d.Multiplier*iqr)
	return model.Bounds{
		Lower:       lower,
		Upper:       upper,
		Statistical: true,
		Q1:          q1,
		Q3:          q3,
		IQR:         iqr,
		SampleSize:  len(sample),
	}
}
