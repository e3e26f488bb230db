package exporter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/xuri/excelize/v2"

	"roadrisk/internal/config"
	"roadrisk/internal/errors"
	"roadrisk/internal/shared/testutil"
	"roadrisk/pkg/contracts/domain"
)

func square(x0, y0, size float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0},
	}})
}

func newTestExporter(t *testing.T) (*Exporter, string) {
	t.Helper()
	dir := t.TempDir()
	logger, _ := testutil.NewTestLogger(t)
	return NewExporter(&config.Paths{BaseDir: dir, OutputDir: dir}, nil, logger), dir
}

func normalizedFixture() domain.NormalizedTable {
	return domain.NormalizedTable{
		Columns: []string{"severity_0", "casualties"},
		Rows: []domain.NormalizedRecord{
			{
				District: "Bath", Code: "E06000022", Year: 2015, Population: 50000,
				Geometry: square(0, 0, 10),
				Rates:    map[string]float64{"severity_0": 0.4, "casualties": 1.6},
			},
			{
				District: "York", Code: "E06000014", Year: 2015, Population: 100000,
				Geometry: square(100, 0, 20),
				Rates:    map[string]float64{"severity_0": 4, "casualties": 2},
			},
		},
	}
}

func TestWriteAggregated_RoundTrip(t *testing.T) {
	exp, dir := newTestExporter(t)
	path := filepath.Join(dir, "aggregated_2015.geojson")

	table := domain.AggregatedTable{
		Year:    2015,
		Columns: []string{"road_class_1", "severity_2", "casualties"},
		Rows: []domain.DistrictYear{
			{District: "York", Code: "E06000014", Year: 2015, Geometry: square(100, 0, 20),
				Counts: map[string]int64{"road_class_1": 3, "severity_2": 0, "casualties": 5}},
			{District: "Bath", Code: "E06000022", Year: 2015, Geometry: square(0, 0, 10),
				Counts: map[string]int64{"road_class_1": 1, "severity_2": 2, "casualties": 4}},
		},
	}

	require.NoError(t, exp.WriteAggregated(context.Background(), path, table))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err := ReadAggregated(path)
	require.NoError(t, err)

	assert.Equal(t, 2015, got.Year)
	assert.Equal(t, table.Columns, got.Columns)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "Bath", got.Rows[0].District)
	assert.Equal(t, "E06000022", got.Rows[0].Code)
	assert.Equal(t, int64(2), got.Rows[0].Counts["severity_2"])
	assert.Equal(t, "York", got.Rows[1].District)
	assert.Equal(t, int64(5), got.Rows[1].Counts["casualties"])

	poly, ok := got.Rows[1].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, square(100, 0, 20).FlatCoords(), poly.FlatCoords())
}

func TestReadAggregated_FillsMissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aggregated_2016.geojson")
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":null,"properties":{"district":"York","code":"E1","year":2016,"casualties":3,"severity_1":1}},
		{"type":"Feature","geometry":null,"properties":{"district":"Bath","code":"E2","year":2016,"casualties":2}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	got, err := ReadAggregated(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"severity_1", "casualties"}, got.Columns)
	assert.Equal(t, "Bath", got.Rows[0].District)
	assert.Equal(t, int64(0), got.Rows[0].Counts["severity_1"])
}

func TestReadAggregated_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		errType errors.ErrorType
	}{
		{
			name:    "not json",
			doc:     "{",
			errType: errors.ErrTypeGeometry,
		},
		{
			name:    "missing district",
			doc:     `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":null,"properties":{"year":2015}}]}`,
			errType: errors.ErrTypeSchema,
		},
		{
			name:    "fractional count",
			doc:     `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":null,"properties":{"district":"York","year":2015,"casualties":1.5}}]}`,
			errType: errors.ErrTypeValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "aggregated_2015.geojson")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0644))

			_, err := ReadAggregated(path)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.errType), err.Error())
		})
	}

	_, err := ReadAggregated(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.True(t, errors.IsType(err, errors.ErrTypeIO))
}

func TestWriteNormalized_CRSAndProperties(t *testing.T) {
	exp, dir := newTestExporter(t)
	path := filepath.Join(dir, "normalized.geojson")

	require.NoError(t, exp.WriteNormalized(context.Background(), path, normalizedFixture()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Type string `json:"type"`
		CRS  struct {
			Properties struct {
				Name string `json:"name"`
			} `json:"properties"`
		} `json:"crs"`
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "FeatureCollection", doc.Type)
	assert.Equal(t, "urn:ogc:def:crs:EPSG::27700", doc.CRS.Properties.Name)
	require.Len(t, doc.Features, 2)
	assert.Equal(t, "York", doc.Features[1].Properties[PropDistrict])
	assert.Equal(t, 100000.0, doc.Features[1].Properties[domain.PopulationColumn])
	assert.Equal(t, 4.0, doc.Features[1].Properties["severity_0"])
}

func TestReadNormalized_RoundTrip(t *testing.T) {
	exp, dir := newTestExporter(t)
	path := filepath.Join(dir, "normalized.geojson")
	want := normalizedFixture()

	require.NoError(t, exp.WriteNormalized(context.Background(), path, want))

	got, err := ReadNormalized(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, want.Columns, got.Columns)
	require.Len(t, got.Rows, len(want.Rows))
	for i := range want.Rows {
		assert.Equal(t, want.Rows[i].District, got.Rows[i].District)
		assert.Equal(t, want.Rows[i].Code, got.Rows[i].Code)
		assert.Equal(t, want.Rows[i].Population, got.Rows[i].Population)
		assert.Equal(t, want.Rows[i].Rates, got.Rows[i].Rates)
		assert.NotNil(t, got.Rows[i].Geometry)
	}
}

func TestReadNormalized_MissingPopulation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "normalized.geojson")
	doc := `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":null,"properties":{"district":"York","year":2015,"casualties":1.5}}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	_, err := ReadNormalized(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValue))
}

func TestWriteGWRDesign(t *testing.T) {
	exp, dir := newTestExporter(t)

	require.NoError(t, exp.WriteGWRDesign(context.Background(), "gwr_design.csv", normalizedFixture(), "casualties", []string{"severity_0"}))

	data, err := os.ReadFile(filepath.Join(dir, "gwr_design.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	assert.Equal(t, []string{
		"district,code,year,x,y,casualties,severity_0",
		"Bath,E06000022,2015,5.000,5.000,1.6,0.4",
		"York,E06000014,2015,110.000,10.000,2,4",
	}, lines)
}

func TestWriteGWRDesign_Errors(t *testing.T) {
	exp, dir := newTestExporter(t)
	ctx := context.Background()

	err := exp.WriteGWRDesign(ctx, filepath.Join(dir, "gwr.csv"), normalizedFixture(), "casualties", []string{"speed_2"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSchema))
	column, _ := errors.ContextValue(err, "column")
	assert.Equal(t, "speed_2", column)

	table := normalizedFixture()
	table.Rows[0].Geometry = nil
	err = exp.WriteGWRDesign(ctx, filepath.Join(dir, "gwr.csv"), table, "casualties", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeGeometry))
}

func TestWriteWorkbook(t *testing.T) {
	exp, dir := newTestExporter(t)
	path := filepath.Join(dir, "normalized.xlsx")

	require.NoError(t, exp.WriteWorkbook(context.Background(), path, normalizedFixture()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{WorkbookSheet}, f.GetSheetList())

	rows, err := f.GetRows(WorkbookSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"district", "code", "year", "population", "severity_0", "casualties"}, rows[0])
	assert.Equal(t, "Bath", rows[1][0])
	assert.Equal(t, "2015", rows[1][2])
	assert.Equal(t, "York", rows[2][0])
	assert.Equal(t, "4", rows[2][4])
}
