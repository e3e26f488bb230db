package infrastructure

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type contextKey string

// Context keys read by the trace handler
const (
	TraceIDContextKey contextKey = "trace_id"
	RunIDContextKey   contextKey = "run_id"
)

// GenerateTraceID returns a random UUID v4
func GenerateTraceID() string {
	return uuid.New().String()
}

// NewRunContext returns a context carrying a fresh run ID and trace ID
func NewRunContext(ctx context.Context) (context.Context, string) {
	runID := uuid.New().String()
	ctx = WithRunID(ctx, runID)
	return EnsureTraceID(ctx), runID
}

// EnsureTraceID adds a trace ID unless ctx already carries one
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		return WithTraceID(ctx, GenerateTraceID())
	}
	return ctx
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDContextKey).(string)
	return id
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDContextKey, runID)
}

func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(RunIDContextKey).(string)
	return id
}

// WithComponent tags logger with a component name.
// A nil logger falls back to the global one.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = GetLogger()
	}
	return logger.With(slog.String("component", component))
}

// WithError adds the error text to logger
func WithError(logger *slog.Logger, err error) *slog.Logger {
	if err == nil {
		return logger
	}
	return logger.With(slog.String("error", err.Error()))
}
