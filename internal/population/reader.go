package population

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"

	"roadrisk/internal/cleaning"
	"roadrisk/internal/config"
	"roadrisk/internal/errors"
	"roadrisk/internal/files"
)

// Reader loads yearly population files. CSV and XLSX are supported; the
// year is taken from the file name.
type Reader struct {
	cfg       config.PopulationConfig
	nanValues []string
	logger    *slog.Logger
}

// NewReader creates a population reader
func NewReader(cfg config.PopulationConfig, nanValues []string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		cfg:       cfg,
		nanValues: nanValues,
		logger:    logger.With(slog.String("component", "population_reader")),
	}
}

// Row is one line of a population file. Population is NaN when the cell
// is missing or unreadable.
type Row struct {
	District   string
	Code       string
	Year       int
	Population float64
}

// valueColumn picks the configured value column, or the column named after
// the file stem (population_2015 in population_2015.csv) when the configured
// one is absent.
func (r *Reader) valueColumn(df dataframe.DataFrame, path string) string {
	stem := files.Stem(path)
	hasStem := false
	for _, name := range df.Names() {
		if name == r.cfg.ValueColumn {
			return name
		}
		if name == stem {
			hasStem = true
		}
	}
	if hasStem {
		return stem
	}
	return r.cfg.ValueColumn
}

// ReadFile returns every row of one population file
func (r *Reader) ReadFile(path string) ([]Row, error) {
	year, err := files.YearFromName(path)
	if err != nil {
		return nil, errors.NewValueError("file name", -1, filepath.Base(path)).WithContext("path", path)
	}

	var df dataframe.DataFrame
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		df, err = cleaning.ReadTable(path, r.nanValues)
	case ".xlsx":
		df, err = r.readWorkbook(path)
	default:
		return nil, errors.NewIOError(path, fmt.Errorf("unsupported population file type %q", filepath.Ext(path)))
	}
	if err != nil {
		return nil, err
	}

	table := filepath.Base(path)
	valueColumn := r.valueColumn(df, path)
	required := []string{r.cfg.DistrictColumn, valueColumn}
	if r.cfg.CodeColumn != "" {
		required = append(required, r.cfg.CodeColumn)
	}
	if err := cleaning.RequireColumns(df, table, required...); err != nil {
		return nil, err
	}

	districts := df.Col(r.cfg.DistrictColumn).Records()
	districtNaN := df.Col(r.cfg.DistrictColumn).IsNaN()
	values := df.Col(valueColumn).Records()
	valueNaN := df.Col(valueColumn).IsNaN()
	var codes []string
	var codeNaN []bool
	if r.cfg.CodeColumn != "" {
		codes = df.Col(r.cfg.CodeColumn).Records()
		codeNaN = df.Col(r.cfg.CodeColumn).IsNaN()
	}

	rows := make([]Row, 0, len(districts))
	for i := range districts {
		if districtNaN[i] || strings.TrimSpace(districts[i]) == "" {
			continue
		}
		row := Row{District: strings.TrimSpace(districts[i]), Year: year, Population: math.NaN()}
		if codes != nil && !codeNaN[i] {
			row.Code = strings.TrimSpace(codes[i])
		}
		if !valueNaN[i] {
			if v, ok := parseCount(values[i]); ok {
				row.Population = v
			}
		}
		rows = append(rows, row)
	}

	r.logger.Debug("Population file read",
		slog.String("path", path),
		slog.Int("year", year),
		slog.Int("rows", len(rows)))

	return rows, nil
}

// readWorkbook loads the configured sheet, or the first sheet whose header
// row names the district column, into a string table.
func (r *Reader) readWorkbook(path string) (dataframe.DataFrame, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return dataframe.DataFrame{}, errors.NewIOError(path, err)
	}
	defer f.Close()

	var rows [][]string
	if r.cfg.Sheet != "" {
		rows, err = f.GetRows(r.cfg.Sheet)
		if err != nil {
			return dataframe.DataFrame{}, errors.NewIOError(path, err)
		}
	} else {
		for _, name := range f.GetSheetList() {
			candidate, err := f.GetRows(name)
			if err != nil || len(candidate) == 0 {
				continue
			}
			if contains(candidate[0], r.cfg.DistrictColumn) {
				rows = candidate
				break
			}
		}
	}
	if len(rows) == 0 {
		return dataframe.DataFrame{}, errors.NewSchemaError(r.cfg.DistrictColumn, filepath.Base(path))
	}

	// GetRows trims trailing empty cells
	width := len(rows[0])
	for i, row := range rows {
		if len(row) < width {
			padded := make([]string, width)
			copy(padded, row)
			rows[i] = padded
		} else if len(row) > width {
			rows[i] = row[:width]
		}
	}

	opts := []dataframe.LoadOption{
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	}
	if len(r.nanValues) > 0 {
		opts = append(opts, dataframe.NaNValues(r.nanValues))
	}
	df := dataframe.LoadRecords(rows, opts...)
	if df.Err != nil {
		return dataframe.DataFrame{}, errors.NewIOError(path, df.Err)
	}
	return df, nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == want {
			return true
		}
	}
	return false
}

// parseCount accepts plain and thousands-separated numbers
func parseCount(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
