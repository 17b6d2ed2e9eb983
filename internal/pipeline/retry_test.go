package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"go-trip-pipeline/internal/model"
)

func fastRetrier(maxAttempts int) (*Retrier, *[]time.Duration) {
	r := NewRetrier(model.RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialDelay:      time.Second,
		MaxDelay:          3 * time.Second,
		BackoffMultiplier: 2,
	}, nil)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return r, &slept
}

func TestRetrierSucceedsAfterFailures(t *testing.T) {
	r, slept := fastRetrier(4)
	calls := 0
	attempts, err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 3 || calls != 3 {
		t.Fatalf("attempts=%d calls=%d", attempts, calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("slept %v, want %v", *slept, want)
		}
	}
}

func TestRetrierGivesUp(t *testing.T) {
	r, slept := fastRetrier(3)
	boom := errors.New("disk full")
	attempts, err := r.Do(context.Background(), func(ctx context.Context) error { return boom })
	if errors.Cause(err) != boom {
		t.Fatalf("got %v, want cause %v", err, boom)
	}
	if attempts != 3 || len(*slept) != 2 {
		t.Fatalf("attempts=%d sleeps=%d", attempts, len(*slept))
	}
}

func TestRetrierPermanent(t *testing.T) {
	r, slept := fastRetrier(5)
	calls := 0
	_, err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("permission denied"))
	})
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("got %v", err)
	}
	if calls != 1 || len(*slept) != 0 {
		t.Fatalf("calls=%d sleeps=%d", calls, len(*slept))
	}
}

func TestRetrierStopsOnCancel(t *testing.T) {
	r, _ := fastRetrier(5)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})
	if err == nil {
		t.Fatalf("expected an error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestNextDelay(t *testing.T) {
	r := NewRetrier(model.RetryConfig{
		MaxAttempts:       10,
		InitialDelay:      time.Second,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	}, nil)
	for attempt := 1; attempt <= 8; attempt++ {
		base := time.Second << (attempt - 1)
		if base > 5*time.Second {
			base = 5 * time.Second
		}
		d := r.NextDelay(attempt)
		lo := time.Duration(float64(base) * 0.95)
		hi := time.Duration(float64(base) * 1.05)
		if d < lo || d > hi {
			t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, lo, hi)
		}
	}
}
