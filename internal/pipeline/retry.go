package pipeline

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
)

// ErrPermanent marks an error that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so that Retrier.Do gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
func (e *permanentError) Is(target error) bool {
	return target == ErrPermanent
}

// Retrier runs an operation with exponential backoff between attempts.
type Retrier struct {
	Config model.RetryConfig
	Logger *slog.Logger

	// sleep waits for d or until ctx is done. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier returns a Retrier for cfg. Zero fields fall back to DefaultRetryConfig.
func NewRetrier(cfg model.RetryConfig, log *slog.Logger) *Retrier {
	def := model.DefaultRetryConfig
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Retrier{Config: cfg, Logger: log, sleep: sleepContext}
}

// Do calls op until it succeeds, returns a Permanent error, the context ends, or
// MaxAttempts is reached. It returns the number of attempts made.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	var err error
	for attempt := 1; attempt <= r.Config.MaxAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return attempt - 1, cerr
		}
		if err = op(ctx); err == nil {
			return attempt, nil
		}
		if errors.Is(err, ErrPermanent) || ctx.Err() != nil {
			return attempt, err
		}
		if attempt == r.Config.MaxAttempts {
			break
		}
		delay := r.NextDelay(attempt)
		logger.Warn(ctx, r.Logger, "retry_scheduled", "operation failed, retrying",
			"attempt", attempt, "max_attempts", r.Config.MaxAttempts, "delay", delay.String(), "error", err.Error())
		if serr := r.sleep(ctx, delay); serr != nil {
			return attempt, serr
		}
	}
	return r.Config.MaxAttempts, errors.Wrapf(err, "giving up after %d attempts", r.Config.MaxAttempts)
}

// NextDelay is the wait after the given failed attempt (1-based):
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay, with up to ±5% jitter.
func (r *Retrier) NextDelay(attempt int) time.Duration {
	c := r.Config
	delay := time.Duration(float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(attempt-1)))
	if delay > c.MaxDelay || delay <= 0 {
		delay = c.MaxDelay
	}
	if c.Jitter {
		jitter := time.Duration(float64(delay) * 0.1 * (rand.Float64() - 0.5))
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
