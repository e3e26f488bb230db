package exporter

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"roadrisk/internal/errors"
	"roadrisk/pkg/contracts/domain"
)

// WorkbookSheet is the sheet holding the normalized table
const WorkbookSheet = "normalized"

// WriteWorkbook writes the normalized table, without geometry, as a
// spreadsheet with a frozen bold header row.
func (e *Exporter) WriteWorkbook(ctx context.Context, path string, table domain.NormalizedTable) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewIOError(path, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), WorkbookSheet); err != nil {
		return errors.NewIOError(path, err)
	}

	header := []interface{}{PropDistrict, PropCode, PropYear, domain.PopulationColumn}
	for _, col := range table.Columns {
		header = append(header, col)
	}
	if err := f.SetSheetRow(WorkbookSheet, "A1", &header); err != nil {
		return errors.NewIOError(path, err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.NewIOError(path, err)
	}
	if err := f.SetRowStyle(WorkbookSheet, 1, 1, bold); err != nil {
		return errors.NewIOError(path, err)
	}
	if err := f.SetPanes(WorkbookSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return errors.NewIOError(path, err)
	}

	for i, row := range table.Rows {
		values := make([]interface{}, 0, len(header))
		values = append(values, row.District, row.Code, row.Year, row.Population)
		for _, col := range table.Columns {
			values = append(values, row.Rates[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.NewIOError(path, err)
		}
		if err := f.SetSheetRow(WorkbookSheet, cell, &values); err != nil {
			return errors.NewIOError(path, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.NewIOError(path, err)
	}

	e.metrics.RecordFileWritten(ctx, KindWorkbook)
	e.logger.InfoContext(ctx, "Workbook written",
		slog.String("path", path),
		slog.Int("rows", len(table.Rows)))
	return nil
}
