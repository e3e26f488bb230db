package exporter

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/twpayne/go-geom/xy"

	"roadrisk/internal/config"
	"roadrisk/internal/errors"
	"roadrisk/internal/infrastructure"
	"roadrisk/pkg/contracts/domain"
)

// Output kinds reported to metrics
const (
	KindAggregated = "aggregated_geojson"
	KindNormalized = "normalized_geojson"
	KindWorkbook   = "normalized_workbook"
	KindGWRDesign  = "gwr_design"
)

// Exporter writes the pipeline's output files
type Exporter struct {
	csv     *CSVWriter
	metrics *infrastructure.PipelineMetrics
	logger  *slog.Logger
}

// NewExporter creates an exporter. Metrics may be nil.
func NewExporter(paths *config.Paths, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		csv:     NewCSVWriter(paths),
		metrics: metrics,
		logger:  logger.With(slog.String("component", "exporter")),
	}
}

// WriteAggregated writes one year's aggregated table as GeoJSON in EPSG:27700
func (e *Exporter) WriteAggregated(ctx context.Context, path string, table domain.AggregatedTable) error {
	if err := writeFeatures(path, aggregatedFeatures(table)); err != nil {
		return err
	}
	e.metrics.RecordFileWritten(ctx, KindAggregated)
	e.logger.InfoContext(ctx, "Aggregated file written",
		slog.String("path", path),
		slog.Int("year", table.Year),
		slog.Int("districts", len(table.Rows)),
		slog.Int("columns", len(table.Columns)))
	return nil
}

// WriteNormalized writes the normalized table as GeoJSON in EPSG:27700
func (e *Exporter) WriteNormalized(ctx context.Context, path string, table domain.NormalizedTable) error {
	if err := writeFeatures(path, normalizedFeatures(table)); err != nil {
		return err
	}
	e.metrics.RecordFileWritten(ctx, KindNormalized)
	e.logger.InfoContext(ctx, "Normalized file written",
		slog.String("path", path),
		slog.Int("rows", len(table.Rows)))
	return nil
}

// WriteGWRDesign writes the regression design matrix: one row per
// normalized record with its district centroid, the dependent rate and
// each independent rate.
func (e *Exporter) WriteGWRDesign(ctx context.Context, path string, table domain.NormalizedTable, dependent string, independent []string) error {
	present := make(map[string]bool, len(table.Columns))
	for _, col := range table.Columns {
		present[col] = true
	}
	variables := append([]string{dependent}, independent...)
	for _, v := range variables {
		if !present[v] {
			return errors.NewSchemaError(v, "normalized table")
		}
	}

	headers := append([]string{PropDistrict, PropCode, PropYear, "x", "y"}, variables...)
	stream, err := e.csv.CreateStreamWriter(path, headers, false)
	if err != nil {
		return err
	}

	for i, row := range table.Rows {
		if row.Geometry == nil {
			stream.Close()
			return errors.NewGeometryError("normalized record has no geometry", nil).WithContext("district", row.District)
		}
		c, err := xy.Centroid(row.Geometry)
		if err != nil {
			stream.Close()
			return errors.NewGeometryError("cannot compute district centroid", err).WithContext("district", row.District)
		}

		record := make([]string, 0, len(headers))
		record = append(record, row.District, row.Code, strconv.Itoa(row.Year), formatCoord(c.X()), formatCoord(c.Y()))
		for _, v := range variables {
			record = append(record, formatRate(row.Rates[v]))
		}
		if err := stream.WriteRecord(record); err != nil {
			stream.Close()
			return errors.NewIOError(stream.Path(), err).WithContext("row", i)
		}
	}
	if err := stream.Close(); err != nil {
		return err
	}

	e.metrics.RecordFileWritten(ctx, KindGWRDesign)
	e.logger.InfoContext(ctx, "GWR design written",
		slog.String("path", stream.Path()),
		slog.Int("rows", stream.Rows()),
		slog.String("dependent", dependent),
		slog.Any("independent", independent))
	return nil
}
