package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"roadrisk/internal/infrastructure"
)

const (
	TracerName = "roadrisk.pipeline"
)

// OperationTracer provides OpenTelemetry instrumentation for pipeline runs.
// A nil tracer provider falls back to the global one.
type OperationTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewOperationTracer creates a new pipeline tracer
func NewOperationTracer(tp trace.TracerProvider, metrics *infrastructure.PipelineMetrics) *OperationTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OperationTracer{
		tracer:  tp.Tracer(TracerName),
		metrics: metrics,
	}
}

// TraceOperationExecution creates a span for the entire run
func (pt *OperationTracer) TraceOperationExecution(ctx context.Context, operationID string, req OperationRequest) (context.Context, trace.Span) {
	step := req.Step
	if step == "" {
		step = "all"
	}
	return pt.tracer.Start(ctx, "pipeline.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.run_id", operationID),
			attribute.String("pipeline.step", step),
		),
	)
}

// TraceStageExecution creates a span for one step attempt
func (pt *OperationTracer) TraceStageExecution(ctx context.Context, operationID, stageID string, attempt int) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, fmt.Sprintf("pipeline.step.%s", stageID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.run_id", operationID),
			attribute.String("step.id", stageID),
			attribute.Int("step.attempt", attempt),
		),
	)
}

// RecordOperationCompletion sets the final run status on the span
func (pt *OperationTracer) RecordOperationCompletion(span trace.Span, status OperationStatusValue, duration time.Duration) {
	span.SetAttributes(
		attribute.String("pipeline.status", string(status)),
		attribute.Float64("pipeline.duration_seconds", duration.Seconds()),
	)
	if status == OperationStatusCompleted {
		span.SetStatus(codes.Ok, "run completed")
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("run finished with status %s", status))
	}
}

// RecordStageCompletion records step outcome on the span and in metrics
func (pt *OperationTracer) RecordStageCompletion(ctx context.Context, span trace.Span, stageID string, duration time.Duration, err error) {
	pt.metrics.RecordStep(ctx, stageID, duration, err == nil)

	span.SetAttributes(attribute.Float64("step.duration_seconds", duration.Seconds()))
	if err != nil {
		infrastructure.RecordError(ctx, err)
		span.SetAttributes(attribute.String("error.type", string(GetErrorType(err))))
		return
	}
	span.SetStatus(codes.Ok, "step completed")
}
