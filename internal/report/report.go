// Package report delivers the summary of a finished run.
package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
)

// Publisher is anything that accepts a run report.
type Publisher interface {
	Publish(ctx context.Context, run model.RunReport) error
}

// LogReporter writes the report as a structured log line.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) Publish(ctx context.Context, run model.RunReport) error {
	log := r.Logger
	if log == nil {
		log = logger.Discard()
	}
	args := []any{
		"status", string(run.Status),
		"source", run.Source,
		"sink", run.Sink,
		"written", run.Written,
		"batches", run.Batches,
		"lower_bound", run.Bounds.Lower,
		"upper_bound", run.Bounds.Upper,
		"duration", run.Duration().String(),
	}
	if run.Report != nil {
		rejected := make(map[string]int, len(run.Report.Rejected))
		for _, rc := range run.Report.Summary() {
			rejected[string(rc.Reason)] = rc.Count
		}
		args = append(args,
			"processed", run.Report.Processed,
			"accepted", run.Report.Accepted,
			"rejected", rejected)
	}
	logger.Info(ctx, log, "run_report", "run report", args...)
	return nil
}

// Multi publishes to each publisher in turn and returns the first error after trying all.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, run model.RunReport) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, run); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WriteSummary renders run as a human-readable table.
func WriteSummary(w io.Writer, run model.RunReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", run.RunID)
	fmt.Fprintf(tw, "status\t%s\n", run.Status)
	fmt.Fprintf(tw, "source\t%s\n", run.Source)
	fmt.Fprintf(tw, "sink\t%s\n", run.Sink)
	fmt.Fprintf(tw, "duration bounds\t[%.1f, %.1f] s (%s, sample %d)\n",
		run.Bounds.Lower, run.Bounds.Upper, boundsKind(run.Bounds), run.Bounds.SampleSize)
	if rep := run.Report; rep != nil {
		fmt.Fprintf(tw, "processed\t%d\n", rep.Processed)
		fmt.Fprintf(tw, "accepted\t%d\n", rep.Accepted)
		fmt.Fprintf(tw, "rejected\t%d\n", rep.TotalRejected())
		for _, rc := range rep.Summary() {
			fmt.Fprintf(tw, "  %s\t%d\t%s\n", rc.Reason, rc.Count, percent(rc.Count, rep.Processed))
		}
	}
	fmt.Fprintf(tw, "written\t%d in %d batches\n", run.Written, run.Batches)
	if f := run.Features; f != nil && run.Report != nil && run.Report.Accepted > 0 {
		fmt.Fprintf(tw, "avg distance\t%.2f km\n", f.AvgDistanceKM)
		fmt.Fprintf(tw, "avg speed\t%.2f km/h\n", f.AvgSpeedKMH)
		fmt.Fprintf(tw, "avg duration\t%.0f s\n", f.AvgDurationSeconds)
		fmt.Fprintf(tw, "time of day\t%s\n", counts(f.ByTimeOfDay, model.Morning, model.Afternoon, model.Evening, model.Night))
		fmt.Fprintf(tw, "distance\t%s\n", counts(f.ByDistanceCategory, model.Short, model.Medium, model.Long))
	}
	if run.Error != "" {
		fmt.Fprintf(tw, "error\t%s\n", run.Error)
	}
	return tw.Flush()
}

func boundsKind(b model.Bounds) string {
	if b.Statistical {
		return "iqr"
	}
	return "fallback"
}

func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}

func counts[K ~string](m map[K]int, keys ...K) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}
