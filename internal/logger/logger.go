// Package logger builds the JSON slog logger every command writes through.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

type ctxKey string

const ctxKeyRunID ctxKey = "tripclean_run_id"

// New returns a JSON logger on w tagged with service and hostname.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				a.Key = "timestamp"
			case slog.MessageKey:
				a.Key = "message"
			}
			return a
		},
	})
	return slog.New(handler).With("service", service, "hostname", hostname())
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// WithRunID returns a context carrying the run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	if strings.TrimSpace(runID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRunID, runID)
}

// RunID extracts the run id from ctx (if any).
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKeyRunID).(string); ok {
		return v
	}
	return ""
}

// Info writes an INFO line for action with optional key/value details.
func Info(ctx context.Context, log *slog.Logger, action, message string, args ...any) {
	log.InfoContext(ctx, message, append([]any{"action", action, "run_id", RunID(ctx)}, args...)...)
}

// Debug writes a DEBUG line for action.
func Debug(ctx context.Context, log *slog.Logger, action, message string, args ...any) {
	log.DebugContext(ctx, message, append([]any{"action", action, "run_id", RunID(ctx)}, args...)...)
}

// Warn writes a WARN line for action.
func Warn(ctx context.Context, log *slog.Logger, action, message string, args ...any) {
	log.WarnContext(ctx, message, append([]any{"action", action, "run_id", RunID(ctx)}, args...)...)
}

// Error writes an ERROR line with the error message and a short stack.
func Error(ctx context.Context, log *slog.Logger, action, message string, err error, args ...any) {
	attrs := []any{"action", action, "run_id", RunID(ctx)}
	if err != nil {
		attrs = append(attrs, slog.Group("error",
			"msg", err.Error(),
			"stack", shortStack(3, 8),
		))
	}
	log.ErrorContext(ctx, message, append(attrs, args...)...)
}

func shortStack(skip, max int) string {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	count := 0
	for {
		f, more := frames.Next()
		fn := f.Function
		if strings.HasPrefix(fn, "runtime.") || strings.Contains(fn, "/logger.") {
			if !more {
				break
			}
			continue
		}
		file := filepath.Base(f.File)
		if i := strings.LastIndex(fn, "."); i >= 0 && i+1 < len(fn) {
			fn = fn[i+1:]
		}
		fmt.Fprintf(&b, "%s %s:%d\n", fn, file, f.Line)
		count++
		if count >= max || !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || strings.TrimSpace(name) == "" {
		return "unknown-hostname"
	}
	return name
}
