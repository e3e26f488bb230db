// Package exporter writes the pipeline's output files.
//
// Exporter produces:
//
//	aggregated_<year>.geojson  per-year district counts, EPSG:27700
//	normalized.geojson         per-capita rates, EPSG:27700
//	normalized.xlsx            the same table without geometry
//	gwr_design.csv             centroids plus regression variables
//
// CSVWriter is the low-level CSV writer with streaming support and an
// optional UTF-8 BOM for Excel compatibility.
//
// Example usage:
//
//	exp := exporter.NewExporter(paths, metrics, logger)
//	err := exp.WriteAggregated(ctx, paths.AggregatedPath(2015), table)
//
//	table, err := exporter.ReadAggregated(paths.AggregatedPath(2015))
package exporter
