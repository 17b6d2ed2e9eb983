package stats

import (
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"
)

// SampleStrategy selects how durations are drawn from the stream.
type SampleStrategy string

const (
	// SamplePrefix keeps the first Cap values seen.
	SamplePrefix SampleStrategy = "prefix"
	// SampleReservoir keeps a uniform random subset of the whole stream (algorithm R),
	// seeded so that a run over the same input draws the same sample.
	SampleReservoir SampleStrategy = "reservoir"
)

// ParseSampleStrategy normalizes and validates a strategy name.
func ParseSampleStrategy(s string) (SampleStrategy, error) {
	switch st := SampleStrategy(strings.ToLower(strings.TrimSpace(s))); st {
	case SamplePrefix, SampleReservoir:
		return st, nil
	case "":
		return SampleReservoir, nil
	default:
		return "", errors.Errorf("unknown sample strategy %q", s)
	}
}

// Sampler accumulates a bounded DurationSample.
type Sampler struct {
	strategy SampleStrategy
	cap      int
	seen     int
	values   DurationSample
	rng      *rand.Rand
}

// NewSampler returns a sampler holding at most capacity values.
func NewSampler(strategy SampleStrategy, capacity int, seed uint64) *Sampler {
	if capacity < 0 {
		capacity = 0
	}
	return &Sampler{
		strategy: strategy,
		cap:      capacity,
		values:   make(DurationSample, 0, min(capacity, 1<<16)),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Add offers one value to the sample.
func (s *Sampler) Add(v float64) {
	s.seen++
	if len(s.values) < s.cap {
		s.values = append(s.values, v)
		return
	}
	if s.strategy != SampleReservoir || s.cap == 0 {
		return
	}
	if j := s.rng.IntN(s.seen); j < s.cap {
		s.values[j] = v
	}
}

// Full reports whether a prefix sampler has stopped accepting values.
func (s *Sampler) Full() bool {
	return s.strategy == SamplePrefix && len(s.values) >= s.cap
}

// Seen is the number of values offered so far.
func (s *Sampler) Seen() int { return s.seen }

// Sample returns the collected values.
func (s *Sampler) Sample() DurationSample { return s.values }
