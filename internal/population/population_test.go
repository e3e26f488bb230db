package population

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"roadrisk/internal/cleaning"
	"roadrisk/internal/config"
	"roadrisk/internal/errors"
	"roadrisk/internal/shared/testutil"
	"roadrisk/pkg/contracts/domain"
)

var nanValues = []string{"", "NA", "NaN"}

func populationConfig() config.PopulationConfig {
	return config.PopulationConfig{
		FilePrefix:     "population_2",
		DistrictColumn: "auth",
		CodeColumn:     "code",
		ValueColumn:    "population",
	}
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestMerge_SumsSubtotalsAndAverages(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeCSV(t, dir, "population_2015.csv",
			"auth,code,population\nYork,E06000014,100000\nYork,E06000014,25000\nLeeds,E08000035,NA\nHull,,\"1,000\"\n"),
		writeCSV(t, dir, "population_2016.csv",
			"auth,code,population\nYork,E06000014,130000\nLeeds,E08000035,0\nHull,E06000010,3000\n"),
	}

	logger, handler := testutil.NewTestLogger(t)
	result, err := NewReader(populationConfig(), nanValues, logger).Merge(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Files)
	assert.Equal(t, 2, result.Excluded)
	assert.Equal(t, []domain.PopulationRecord{
		{District: "Hull", Code: "E06000010", Year: 2015, Population: 1000},
		{District: "Hull", Code: "E06000010", Year: 2016, Population: 3000},
		{District: "York", Code: "E06000014", Year: 2015, Population: 125000},
		{District: "York", Code: "E06000014", Year: 2016, Population: 130000},
	}, result.Yearly)
	assert.Equal(t, []domain.PopulationRecord{
		{District: "Hull", Code: "E06000010", Population: 2000},
		{District: "York", Code: "E06000014", Population: 127500},
	}, result.ByDistrict)

	testutil.AssertLogAttr(t, handler, "excluded", int64(2))
}

func TestMerge_NoFiles(t *testing.T) {
	_, err := NewReader(populationConfig(), nanValues, nil).Merge(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeIO))
}

func TestReadFile_MissingColumn(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "population_2015.csv", "district,population\nYork,1\n")

	_, err := NewReader(populationConfig(), nanValues, nil).ReadFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSchema))
	col, _ := errors.ContextValue(err, "column")
	assert.Equal(t, "auth", col)
}

func TestReadFile_ValueColumnNamedAfterFile(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "population_2015.csv", "auth,code,population_2015\nYork,E06000014,125000\n")

	rows, err := NewReader(populationConfig(), nanValues, nil).ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []Row{{District: "York", Code: "E06000014", Year: 2015, Population: 125000}}, rows)
}

func TestReadFile_MissingValueColumn(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "population_2015.csv", "auth,code,population_2016\nYork,E1,1\n")

	_, err := NewReader(populationConfig(), nanValues, nil).ReadFile(path)
	require.Error(t, err)
	col, _ := errors.ContextValue(err, "column")
	assert.Equal(t, "population", col)
}

func TestReadFile_NoYearInName(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "population.csv", "auth,code,population\nYork,E1,1\n")

	_, err := NewReader(populationConfig(), nanValues, nil).ReadFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValue))
}

func TestReadFile_Workbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	// the first sheet has no population header and must be skipped
	require.NoError(t, f.SetSheetName(f.GetSheetName(0), "Notes"))
	require.NoError(t, f.SetCellValue("Notes", "A1", "Mid-year estimates"))

	_, err := f.NewSheet("Data")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Data", "A1", &[]interface{}{"auth", "code", "population"}))
	require.NoError(t, f.SetSheetRow("Data", "A2", &[]interface{}{"York", "E06000014", 125000}))
	require.NoError(t, f.SetSheetRow("Data", "A3", &[]interface{}{"Hull", "E06000010"}))

	path := filepath.Join(t.TempDir(), "population_2017.xlsx")
	require.NoError(t, f.SaveAs(path))

	rows, err := NewReader(populationConfig(), nanValues, nil).ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, Row{District: "York", Code: "E06000014", Year: 2017, Population: 125000}, rows[0])
	assert.Equal(t, "Hull", rows[1].District)
	assert.True(t, rows[1].Population != rows[1].Population, "missing value reads as NaN")
}

func TestReadFile_UnsupportedType(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "population_2015.json", "{}")

	_, err := NewReader(populationConfig(), nanValues, nil).ReadFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeIO))
}

func TestWriteAndReadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work", "population_by_district.csv")
	records := []domain.PopulationRecord{
		{District: "Hull", Population: 2000.5},
		{District: "York", Code: "E06000014", Year: 2016, Population: 130000},
	}

	require.NoError(t, WriteRecords(path, records))

	got, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestWriteRecords_ByDistrictHasNoYear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "population_by_district.csv")
	records := []domain.PopulationRecord{
		{District: "Hull", Code: "E06000010", Population: 2000},
		{District: "York", Code: "E06000014", Population: 127500},
	}

	require.NoError(t, WriteRecords(path, records))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "district,code,population\nHull,E06000010,2000\nYork,E06000014,127500\n", string(content))

	got, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestSplitAnnual(t *testing.T) {
	df := dataframe.LoadRecords([][]string{
		{"auth", "sex", "population_2015", "population_2016"},
		{"York", "m", "60000", "61000"},
		{"York", "f", "65000", "NA"},
		{"Bath", "m", "40000", "41000"},
		{"", "f", "1", "1"},
	},
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nanValues),
	)
	require.NoError(t, df.Err)

	out := t.TempDir()
	logger, handler := testutil.NewTestLogger(t)
	written, err := SplitAnnual(df, SplitOptions{GroupBy: []string{"auth"}, MinYear: 2015, MaxYear: 2017}, out, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "population_2015.csv"),
		filepath.Join(out, "population_2016.csv"),
	}, written)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "Population column missing, year skipped")

	y2015, err := cleaning.ReadTable(written[0], nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"auth", "population"},
		{"Bath", "40000"},
		{"York", "125000"},
	}, y2015.Records())

	y2016, err := cleaning.ReadTable(written[1], nil)
	require.NoError(t, err)
	assert.Equal(t, "61000", y2016.Col("population").Records()[1])
}

func TestSplitAnnual_Errors(t *testing.T) {
	df := dataframe.LoadRecords([][]string{{"auth", "population_2015"}, {"York", "1"}},
		dataframe.DetectTypes(false), dataframe.DefaultType(series.String))

	_, err := SplitAnnual(df, SplitOptions{}, t.TempDir(), nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = SplitAnnual(df, SplitOptions{GroupBy: []string{"auth"}, MinYear: 2016, MaxYear: 2015}, t.TempDir(), nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = SplitAnnual(df, SplitOptions{GroupBy: []string{"region"}, MinYear: 2015, MaxYear: 2015}, t.TempDir(), nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeSchema))

	_, err = SplitAnnual(df, SplitOptions{GroupBy: []string{"auth"}, MinYear: 2020, MaxYear: 2021}, t.TempDir(), nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeSchema))
}
