package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics are the counters a pipeline run reports. All methods are
// safe on a nil receiver so stages can run without telemetry.
type PipelineMetrics struct {
	RowsLoaded      metric.Int64Counter
	RowsDropped     metric.Int64Counter
	UnmatchedPoints metric.Int64Counter
	DistrictsLoaded metric.Int64Gauge
	StepExecutions  metric.Int64Counter
	StepDuration    metric.Float64Histogram
	FilesWritten    metric.Int64Counter
}

// CreatePipelineMetrics registers the pipeline instruments on meter
func CreatePipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	rowsLoaded, err := meter.Int64Counter(
		"roadrisk_rows_loaded",
		metric.WithDescription("Rows read into a pipeline stage"),
	)
	if err != nil {
		return nil, err
	}

	rowsDropped, err := meter.Int64Counter(
		"roadrisk_rows_dropped",
		metric.WithDescription("Rows removed by a pipeline stage, by reason"),
	)
	if err != nil {
		return nil, err
	}

	unmatched, err := meter.Int64Counter(
		"roadrisk_unmatched_points",
		metric.WithDescription("Accident points that fell within no district"),
	)
	if err != nil {
		return nil, err
	}

	districts, err := meter.Int64Gauge(
		"roadrisk_districts_loaded",
		metric.WithDescription("District polygons loaded for the spatial join"),
	)
	if err != nil {
		return nil, err
	}

	steps, err := meter.Int64Counter(
		"roadrisk_step_executions",
		metric.WithDescription("Pipeline step executions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"roadrisk_step_duration",
		metric.WithDescription("Pipeline step duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	files, err := meter.Int64Counter(
		"roadrisk_files_written",
		metric.WithDescription("Output files written, by kind"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		RowsLoaded:      rowsLoaded,
		RowsDropped:     rowsDropped,
		UnmatchedPoints: unmatched,
		DistrictsLoaded: districts,
		StepExecutions:  steps,
		StepDuration:    duration,
		FilesWritten:    files,
	}, nil
}

func (m *PipelineMetrics) RecordRowsLoaded(ctx context.Context, stage string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RowsLoaded.Add(ctx, int64(n), metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *PipelineMetrics) RecordRowsDropped(ctx context.Context, stage, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RowsDropped.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("reason", reason),
	))
}

func (m *PipelineMetrics) RecordUnmatched(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.UnmatchedPoints.Add(ctx, int64(n))
}

func (m *PipelineMetrics) RecordDistricts(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.DistrictsLoaded.Record(ctx, int64(n))
}

func (m *PipelineMetrics) RecordStep(ctx context.Context, step string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	attrs := metric.WithAttributes(attribute.String("step", step), attribute.String("status", status))
	m.StepExecutions.Add(ctx, 1, attrs)
	m.StepDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *PipelineMetrics) RecordFileWritten(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.FilesWritten.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
