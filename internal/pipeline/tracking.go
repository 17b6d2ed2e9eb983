package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
)

// RunTracker persists the lifecycle of a run: one row per run, status transitions, and
// the final report.
type RunTracker interface {
	StartRun(ctx context.Context, run model.RunReport) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, run model.RunReport) error
}

// Reporter receives the final report of every run.
type Reporter interface {
	Publish(ctx context.Context, run model.RunReport) error
}

// runTracking wraps the optional tracker and reporter. Failures here are logged and
// never fail the run.
type runTracking struct {
	run      model.RunReport
	tracker  RunTracker
	reporter Reporter
	log      *slog.Logger
}

func newRunTracking(run model.RunReport, tracker RunTracker, reporter Reporter, log *slog.Logger) *runTracking {
	return &runTracking{run: run, tracker: tracker, reporter: reporter, log: log}
}

func (t *runTracking) start(ctx context.Context) {
	if t.tracker == nil {
		return
	}
	if err := t.tracker.StartRun(ctx, t.run); err != nil {
		logger.Error(ctx, t.log, "run_tracking", "failed to record run start", err)
	}
}

func (t *runTracking) status(ctx context.Context, status model.RunStatus) {
	t.run.Status = status
	logger.Info(ctx, t.log, "run_status", "run status changed", "status", string(status))
	if t.tracker == nil {
		return
	}
	if err := t.tracker.UpdateRunStatus(ctx, t.run.RunID, status); err != nil {
		logger.Error(ctx, t.log, "run_tracking", "failed to record run status", err, "status", string(status))
	}
}

// finish records the terminal state and publishes the report. It runs on a context
// detached from cancellation so a cancelled run still leaves a trace.
func (t *runTracking) finish(ctx context.Context, res *Result, runErr error) model.RunReport {
	ctx = context.WithoutCancel(ctx)

	t.run.FinishedAt = time.Now().UTC()
	t.run.Bounds = res.Bounds
	t.run.Report = res.Report
	t.run.Features = res.Features
	t.run.Batches = len(res.Batches)
	t.run.Written = res.Written
	switch {
	case runErr == nil:
		t.run.Status = model.RunCompleted
	case res.Cancelled:
		t.run.Status = model.RunCancelled
		t.run.Error = runErr.Error()
	default:
		t.run.Status = model.RunFailed
		t.run.Error = runErr.Error()
	}

	if t.tracker != nil {
		if err := t.tracker.FinishRun(ctx, t.run); err != nil {
			logger.Error(ctx, t.log, "run_tracking", "failed to record run result", err)
		}
	}
	if t.reporter != nil {
		if err := t.reporter.Publish(ctx, t.run); err != nil {
			logger.Error(ctx, t.log, "report_publish", "failed to publish run report", err)
		}
	}
	return t.run
}
