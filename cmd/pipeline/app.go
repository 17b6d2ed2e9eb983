package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go-trip-pipeline/internal/config"
	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/internal/pipeline"
	"go-trip-pipeline/internal/report"
	"go-trip-pipeline/internal/store"
	"go-trip-pipeline/pkg/utils"
)

// app holds what one command invocation builds from its configuration.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	outputs *utils.OutputManager
	stdout  io.Writer
}

func newApp(cfg *config.Config, stdout, stderr io.Writer) (*app, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		log:     logger.New(stderr, "tripclean", level),
		outputs: utils.NewOutputManager(cfg.OutputDir),
		stdout:  stdout,
	}, nil
}

// runContext applies --timeout to ctx.
func (a *app) runContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	timeout, err := a.cfg.TimeoutDuration()
	if err != nil {
		return nil, nil, err
	}
	if timeout == 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

func (a *app) source() (pipeline.Source, error) {
	return pipeline.NewSource(a.cfg.Source,
		pipeline.OptS3Region(a.cfg.S3Region),
		pipeline.OptS3Endpoint(a.cfg.S3Endpoint))
}

// sink opens the configured sink. File sinks without an explicit path are written into
// the run's output directory.
func (a *app) sink(ctx context.Context, runID string) (pipeline.Sink, string, error) {
	kind, target, err := a.cfg.SinkTarget()
	if err != nil {
		return nil, "", err
	}
	switch kind {
	case config.SinkSQLite:
		s, err := store.NewSQLiteSink(ctx, target, a.cfg.Reset)
		return s, kind, err
	case config.SinkPostgres:
		pool, err := store.NewPostgresPool(ctx, target, a.log)
		if err != nil {
			return nil, kind, err
		}
		s, err := store.NewPostgresSink(ctx, pool, a.cfg.Reset)
		if err != nil {
			pool.Close()
			return nil, kind, err
		}
		return s, kind, nil
	case config.SinkMySQL:
		s, err := store.NewMySQLSink(ctx, target, a.cfg.Reset)
		return s, kind, err
	case config.SinkCSV, config.SinkJSONL:
		if target == "" {
			if target, err = a.outputs.FilePath(runID, "trips."+kind); err != nil {
				return nil, kind, err
			}
		}
		s, err := pipeline.NewFileSink(target)
		return s, kind, err
	case config.SinkDiscard:
		return pipeline.NewDiscardSink(), kind, nil
	}
	return nil, kind, errors.Errorf("unsupported sink %q", kind)
}

// ledger opens the run ledger. It is optional: failures are logged and the run goes on
// without it.
func (a *app) ledger(ctx context.Context) *store.RunStore {
	if a.cfg.Ledger == "" {
		return nil
	}
	runs, err := store.NewRunStore(ctx, a.cfg.Ledger)
	if err != nil {
		logger.Warn(ctx, a.log, "ledger_unavailable", "continuing without run ledger",
			"ledger", a.cfg.Ledger, "error", err.Error())
		return nil
	}
	return runs
}

// reporter always logs the report and writes report.json; a RabbitMQ publisher is
// added when --amqp-url is set and reachable. The returned func releases connections.
func (a *app) reporter(ctx context.Context) (report.Publisher, func()) {
	reporters := report.Multi{
		report.LogReporter{Logger: a.log},
		report.FileReporter{Outputs: a.outputs},
	}
	if a.cfg.AMQPURL == "" {
		return reporters, func() {}
	}
	pub, err := report.DialAMQP(ctx, a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPRoutingKey, a.log)
	if err != nil {
		logger.Warn(ctx, a.log, "rabbitmq_unavailable", "run reports will not be published",
			"error", err.Error())
		return reporters, func() {}
	}
	return append(reporters, pub), func() { pub.Close() }
}

func (a *app) run(ctx context.Context) (err error) {
	pc, err := a.cfg.Pipeline()
	if err != nil {
		return err
	}
	src, err := a.source()
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	sink, sinkName, err := a.sink(ctx, runID)
	if err != nil {
		logger.Error(ctx, a.log, "sink_open_failed", "cannot open sink", err, "sink", a.cfg.Redacted())
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing sink")
		}
	}()

	p := pipeline.New(pc, src, sink)
	p.RunID = runID
	p.SinkName = sinkName
	p.Logger = a.log

	if runs := a.ledger(ctx); runs != nil {
		defer runs.Close()
		p.Tracker = runs
	}
	rep, closeReporter := a.reporter(ctx)
	defer closeReporter()
	p.Reporter = rep

	res, err := p.Run(ctx)
	if res != nil {
		if werr := report.WriteSummary(a.stdout, res.Run); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (a *app) bounds(ctx context.Context) error {
	pc, err := a.cfg.Pipeline()
	if err != nil {
		return err
	}
	src, err := a.source()
	if err != nil {
		return err
	}
	p := pipeline.New(pc, src, nil)
	p.Logger = a.log
	b, err := p.SampleBounds(ctx)
	if err != nil {
		return err
	}
	return writeBounds(a.stdout, b)
}

func writeBounds(w io.Writer, b model.Bounds) error {
	kind := "fallback (sample too small, sanity band only)"
	if b.Statistical {
		kind = "iqr"
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "sample size\t%d\n", b.SampleSize)
	fmt.Fprintf(tw, "q1\t%.1f s\n", b.Q1)
	fmt.Fprintf(tw, "q3\t%.1f s\n", b.Q3)
	fmt.Fprintf(tw, "iqr\t%.1f s\n", b.IQR)
	fmt.Fprintf(tw, "lower\t%.1f s\n", b.Lower)
	fmt.Fprintf(tw, "upper\t%.1f s\n", b.Upper)
	fmt.Fprintf(tw, "kind\t%s\n", kind)
	return tw.Flush()
}

func showRun(ctx context.Context, runs *store.RunStore, runID string, w io.Writer) error {
	run, err := runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	return report.WriteSummary(w, run)
}
