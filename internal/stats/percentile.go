package stats

import (
	"math"

	"github.com/pkg/errors"
)

var (
	ErrEmptySample     = errors.New("stats: empty sample")
	ErrPercentileRange = errors.New("stats: percentile must be within [0, 100]")
)

// Percentile returns the p-th percentile (0 <= p <= 100) of xs without modifying xs.
//
// The rank is zero-based: r = p/100 * (n-1). When r is whole the value at that rank is
// returned; otherwise the result is interpolated linearly between ranks floor(r) and
// ceil(r):
//
//	s[floor(r)] + (r - floor(r)) * (s[ceil(r)] - s[floor(r)])
//
// This matches the "linear" method of most numeric libraries, so for n = 5 the 25th
// percentile is exactly s[1].
func Percentile(xs []float64, p float64) (float64, error) {
	out, err := Percentiles(xs, p)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// Percentiles sorts one copy of xs and reads every requested percentile from it.
func Percentiles(xs []float64, ps ...float64) ([]float64, error) {
	if len(xs) == 0 {
		return nil, ErrEmptySample
	}
	for _, p := range ps {
		if math.IsNaN(p) || p < 0 || p > 100 {
			return nil, errors.Wrapf(ErrPercentileRange, "got %v", p)
		}
	}

	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	Sort(sorted)

	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = rankValue(sorted, p)
	}
	return out, nil
}

// rankValue reads percentile p from an already sorted, non-empty slice.
func rankValue(sorted []float64, p float64) float64 {
	r := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(r))
	hi := int(math.Ceil(r))
	if lo == hi {
		return sorted[lo]
	}
	frac := r - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
