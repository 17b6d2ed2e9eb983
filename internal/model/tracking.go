package model

import (
	"sort"
	"time"
)

// Bounds is the accepted trip-duration window in seconds.
type Bounds struct {
	Lower       float64 `json:"lower_bound"`
	Upper       float64 `json:"upper_bound"`
	Statistical bool    `json:"statistical"` // false when the sample was too small and only the sanity band applies
	Q1          float64 `json:"q1,omitempty"`
	Q3          float64 `json:"q3,omitempty"`
	IQR         float64 `json:"iqr,omitempty"`
	SampleSize  int     `json:"sample_size"`
}

// Contains reports whether seconds lies inside the closed interval [Lower, Upper].
func (b Bounds) Contains(seconds float64) bool {
	return seconds >= b.Lower && seconds <= b.Upper
}

// RejectionReport counts outcomes for one run.
type RejectionReport struct {
	Processed int            `json:"total_processed"`
	Accepted  int            `json:"total_accepted"`
	Rejected  map[Reason]int `json:"rejected"`
}

// NewRejectionReport returns an empty report.
func NewRejectionReport() *RejectionReport {
	return &RejectionReport{Rejected: make(map[Reason]int)}
}

// Accept records an accepted record.
func (r *RejectionReport) Accept() {
	r.Processed++
	r.Accepted++
}

// Reject records a rejected record under reason.
func (r *RejectionReport) Reject(reason Reason) {
	r.Processed++
	r.Rejected[reason]++
}

// TotalRejected sums every reason counter.
func (r *RejectionReport) TotalRejected() int {
	total := 0
	for _, n := range r.Rejected {
		total += n
	}
	return total
}

// ReasonCount is one row of a sorted summary.
type ReasonCount struct {
	Reason Reason `json:"reason"`
	Count  int    `json:"count"`
}

// Summary lists non-zero reasons, most frequent first, ties in taxonomy order.
func (r *RejectionReport) Summary() []ReasonCount {
	out := make([]ReasonCount, 0, len(r.Rejected))
	for _, reason := range Reasons {
		if n := r.Rejected[reason]; n > 0 {
			out = append(out, ReasonCount{Reason: reason, Count: n})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// FeatureSummary aggregates accepted records for the run report.
type FeatureSummary struct {
	ByTimeOfDay        map[TimeOfDay]int        `json:"by_time_of_day"`
	ByDistanceCategory map[DistanceCategory]int `json:"by_distance_category"`
	AvgDistanceKM      float64                  `json:"avg_distance_km"`
	AvgSpeedKMH        float64                  `json:"avg_speed_kmh"`
	AvgDurationSeconds float64                  `json:"avg_duration_seconds"`

	count int
}

// NewFeatureSummary returns an empty summary.
func NewFeatureSummary() *FeatureSummary {
	return &FeatureSummary{
		ByTimeOfDay:        make(map[TimeOfDay]int),
		ByDistanceCategory: make(map[DistanceCategory]int),
	}
}

// Add folds rec into the running means and bucket counts.
func (s *FeatureSummary) Add(rec EnrichedRecord) {
	s.count++
	n := float64(s.count)
	s.ByTimeOfDay[rec.TimeOfDay]++
	s.ByDistanceCategory[rec.DistanceCategory]++
	s.AvgDistanceKM += (rec.DistanceKM - s.AvgDistanceKM) / n
	s.AvgSpeedKMH += (rec.SpeedKMH - s.AvgSpeedKMH) / n
	s.AvgDurationSeconds += (float64(rec.DurationSeconds) - s.AvgDurationSeconds) / n
}

// Count is the number of records folded in.
func (s *FeatureSummary) Count() int { return s.count }

// RunStatus tracks a run through its phases.
type RunStatus string

const (
	RunSampling   RunStatus = "sampling"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
)

// RunReport is what a run hands to the reporting collaborator.
type RunReport struct {
	RunID      string           `json:"run_id"`
	Source     string           `json:"source"`
	Sink       string           `json:"sink"`
	Status     RunStatus        `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Bounds     Bounds           `json:"bounds"`
	Report     *RejectionReport `json:"report"`
	Features   *FeatureSummary  `json:"features"`
	Batches    int              `json:"batches"`
	Written    int              `json:"written"`
	Error      string           `json:"error,omitempty"`
}

// Duration is the wall-clock length of the run.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
