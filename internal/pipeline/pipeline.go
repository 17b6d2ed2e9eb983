// Package pipeline cleans raw taxi trip rows into enriched trip records.
//
// A run makes two passes over its Source. The sample pass parses and structurally
// validates rows to collect trip durations, from which the outlier bounds are derived.
// The full pass then runs every row through parsing, validation, the outlier check, and
// enrichment, and writes accepted trips to the Sink in batches. Rejected rows are counted
// by reason and never stop the run.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/internal/stats"
)

// Defaults for Config.
const (
	DefaultBatchSize  = 5000
	DefaultSampleSize = 50000
	DefaultSampleSeed = 42
)

// Config tunes a run.
type Config struct {
	BatchSize      int
	SampleSize     int
	SampleStrategy stats.SampleStrategy
	SampleSeed     uint64
	MaxRecords     int // rows read per pass; 0 means all

	Limits   Limits
	Detector stats.Detector
	Enricher Enricher
	Retry    model.RetryConfig
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:      DefaultBatchSize,
		SampleSize:     DefaultSampleSize,
		SampleStrategy: stats.SampleReservoir,
		SampleSeed:     DefaultSampleSeed,
		Limits:         DefaultLimits,
		Detector:       stats.NewDetector(),
		Enricher:       NewEnricher(),
		Retry:          model.DefaultRetryConfig,
	}
}

// normalized fills zero values and ties the detector band to the duration limits.
func (c Config) normalized() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.SampleSize <= 0 {
		c.SampleSize = DefaultSampleSize
	}
	if c.SampleStrategy == "" {
		c.SampleStrategy = stats.SampleReservoir
	}
	if c.Limits == (Limits{}) {
		c.Limits = DefaultLimits
	}
	if c.Detector.Multiplier <= 0 {
		c.Detector.Multiplier = stats.DefaultIQRMultiplier
	}
	if c.Detector.MinSample <= 0 {
		c.Detector.MinSample = stats.DefaultMinSample
	}
	c.Detector.Min = float64(c.Limits.MinDuration)
	c.Detector.Max = float64(c.Limits.MaxDuration)
	if c.Enricher == (Enricher{}) {
		c.Enricher = NewEnricher()
	}
	return c
}

// Pipeline wires a Source to a Sink. Tracker, Reporter, and Logger are optional.
// RunID is generated per run when empty.
type Pipeline struct {
	RunID    string
	Source   Source
	Sink     Sink
	SinkName string
	Tracker  RunTracker
	Reporter Reporter
	Logger   *slog.Logger
	Config   Config
}

// New returns a Pipeline reading from src and writing to sink.
func New(cfg Config, src Source, sink Sink) *Pipeline {
	return &Pipeline{Source: src, Sink: sink, Config: cfg}
}

// Result is the outcome of a run. It is returned even when the run fails, holding the
// counts reached so far.
type Result struct {
	RunID     string
	Bounds    model.Bounds
	Report    *model.RejectionReport
	Features  *model.FeatureSummary
	Batches   []model.BatchResult
	Written   int
	Cancelled bool
	Run       model.RunReport
}

func (p *Pipeline) slogger() *slog.Logger {
	if p.Logger == nil {
		return logger.Discard()
	}
	return p.Logger
}

func (p *Pipeline) sinkName() string {
	if p.SinkName == "" {
		return "sink"
	}
	return p.SinkName
}

// Run executes both passes. Source and sink failures are returned as errors; if ctx is
// cancelled the unflushed batch is dropped and ctx.Err() is returned. In every case the
// Result carries the rejection report as far as the run got.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.Source == nil || p.Sink == nil {
		return nil, errors.New("pipeline needs a source and a sink")
	}
	cfg := p.Config.normalized()
	log := p.slogger()

	runID := p.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	res := &Result{
		RunID:    runID,
		Report:   model.NewRejectionReport(),
		Features: model.NewFeatureSummary(),
	}
	ctx = logger.WithRunID(ctx, res.RunID)

	tr := newRunTracking(model.RunReport{
		RunID:     res.RunID,
		Source:    p.Source.Name(),
		Sink:      p.sinkName(),
		Status:    model.RunSampling,
		StartedAt: time.Now().UTC(),
	}, p.Tracker, p.Reporter, log)
	tr.start(ctx)
	logger.Info(ctx, log, "run_started", "starting run",
		"source", p.Source.Name(), "sink", p.sinkName(), "batch_size", cfg.BatchSize,
		"sample_size", cfg.SampleSize, "sample_strategy", string(cfg.SampleStrategy))

	bounds, err := p.sampleBounds(ctx, cfg)
	if err == nil {
		res.Bounds = bounds
		tr.status(ctx, model.RunProcessing)
		err = p.process(ctx, cfg, bounds, res)
	}
	if err != nil && ctx.Err() != nil {
		res.Cancelled = true
		err = ctx.Err()
	}

	res.Run = tr.finish(ctx, res, err)
	if err != nil {
		logger.Error(ctx, log, "run_failed", "run stopped", err,
			"cancelled", res.Cancelled, "processed", res.Report.Processed, "written", res.Written)
		return res, err
	}
	logger.Info(ctx, log, "run_completed", "run completed",
		"processed", res.Report.Processed,
		"accepted", res.Report.Accepted,
		"rejected", res.Report.TotalRejected(),
		"written", res.Written,
		"batches", len(res.Batches),
		"duration", res.Run.Duration().String())
	return res, nil
}

// SampleBounds runs only the sample pass and returns the derived duration bounds.
func (p *Pipeline) SampleBounds(ctx context.Context) (model.Bounds, error) {
	if p.Source == nil {
		return model.Bounds{}, errors.New("pipeline needs a source")
	}
	return p.sampleBounds(ctx, p.Config.normalized())
}

func (p *Pipeline) sampleBounds(ctx context.Context, cfg Config) (model.Bounds, error) {
	log := p.slogger()
	logger.Info(ctx, log, "sample_started", "sampling trip durations", "source", p.Source.Name())

	r, err := p.Source.Open(ctx)
	if err != nil {
		return model.Bounds{}, err
	}
	defer r.Close()

	validator := NewValidator(cfg.Limits)
	sampler := stats.NewSampler(cfg.SampleStrategy, cfg.SampleSize, cfg.SampleSeed)
	rows := 0
	for cfg.MaxRecords <= 0 || rows < cfg.MaxRecords {
		if err := ctx.Err(); err != nil {
			return model.Bounds{}, err
		}
		raw, err := r.Next()
		if err == io.EOF {
			break
		}
		rows++
		if errors.Is(err, ErrMalformedRow) {
			continue
		}
		if err != nil {
			return model.Bounds{}, errors.Wrap(err, "sample pass")
		}
		c, reason, _ := ParseRecord(raw)
		if reason != "" || !validator.ValidateStructure(c).Accepted {
			continue
		}
		sampler.Add(float64(c.DurationSeconds()))
		if sampler.Full() {
			break
		}
	}

	bounds := cfg.Detector.Bounds(sampler.Sample())
	logger.Info(ctx, log, "bounds_computed", "duration bounds derived",
		"rows_read", rows,
		"sample_size", bounds.SampleSize,
		"statistical", bounds.Statistical,
		"lower", bounds.Lower,
		"upper", bounds.Upper,
		"q1", bounds.Q1,
		"q3", bounds.Q3)
	if bounds.Lower > bounds.Upper {
		logger.Warn(ctx, log, "bounds_empty", "duration fences lie outside the sanity band; every trip will be a duration outlier",
			"lower", bounds.Lower, "upper", bounds.Upper)
	}
	return bounds, nil
}

func (p *Pipeline) process(ctx context.Context, cfg Config, bounds model.Bounds, res *Result) error {
	log := p.slogger()
	r, err := p.Source.Open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	stages := NewStages(cfg)
	retrier := NewRetrier(cfg.Retry, log)
	buf := make([]model.EnrichedRecord, 0, cfg.BatchSize)

	flush := func() error {
		batch, err := flushBatch(ctx, p.Sink, p.sinkName(), retrier, len(res.Batches)+1, buf)
		if err != nil {
			return err
		}
		res.Batches = append(res.Batches, batch)
		res.Written += batch.Written
		logger.Info(ctx, log, "batch_flushed", "batch written",
			"batch", batch.Batch,
			"records", batch.RecordCount,
			"written", batch.Written,
			"attempts", batch.Attempts,
			"processed", res.Report.Processed)
		buf = buf[:0]
		return nil
	}

	rows := 0
	for cfg.MaxRecords <= 0 || rows < cfg.MaxRecords {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := r.Next()
		if err == io.EOF {
			break
		}
		rows++
		if errors.Is(err, ErrMalformedRow) {
			res.Report.Reject(model.ReasonMalformedInput)
			continue
		}
		if err != nil {
			return errors.Wrap(err, "full pass")
		}

		rec, reason := stages.Evaluate(raw, bounds)
		if reason != "" {
			res.Report.Reject(reason)
			continue
		}
		res.Report.Accept()
		res.Features.Add(rec)
		buf = append(buf, rec)
		if len(buf) >= cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(buf) > 0 {
		return flush()
	}
	return nil
}

// Stages is the per-record chain of the full pass.
type Stages struct {
	Validator Validator
	Enricher  Enricher
}

// NewStages builds the per-record chain from cfg.
func NewStages(cfg Config) Stages {
	cfg = cfg.normalized()
	return Stages{Validator: NewValidator(cfg.Limits), Enricher: cfg.Enricher}
}

// Evaluate parses, validates, checks duration against bounds, and enriches one row.
// It returns the first rejection reason hit, or the enriched record.
func (s Stages) Evaluate(raw model.RawRecord, bounds model.Bounds) (model.EnrichedRecord, model.Reason) {
	c, reason, _ := ParseRecord(raw)
	if reason != "" {
		return model.EnrichedRecord{}, reason
	}
	if v := s.Validator.Validate(c); !v.Accepted {
		return model.EnrichedRecord{}, v.Reason
	}
	if !bounds.Contains(float64(c.DurationSeconds())) {
		return model.EnrichedRecord{}, model.ReasonDurationOutlier
	}
	return s.Enricher.Enrich(c)
}
