package spatial

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"roadrisk/internal/config"
	"roadrisk/internal/errors"
)

const bngDistricts = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::27700"}},
  "features": [
    {"type": "Feature", "properties": {"LAD21NM": "York", "LAD21CD": "E06000014"},
     "geometry": {"type": "Polygon", "coordinates": [[[455000,445000],[465000,445000],[465000,458000],[455000,458000],[455000,445000]]]}},
    {"type": "Feature", "properties": {"LAD21NM": "Isles", "LAD21CD": 42},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[0,0],[10,0],[10,10],[0,10],[0,0]]],[[[20,20],[30,20],[30,30],[20,30],[20,20]]]]}}
  ]
}`

const wgsDistricts = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"LAD21NM": "York"},
     "geometry": {"type": "Polygon", "coordinates": [[[-1.2,53.9],[-1.0,53.9],[-1.0,54.0],[-1.2,54.0],[-1.2,53.9]]]}}
  ]
}`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "districts.geojson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func spatialConfig(crs string) config.SpatialConfig {
	return config.SpatialConfig{NameProperty: "LAD21NM", CodeProperty: "LAD21CD", DistrictsCRS: crs}
}

func TestLoadDistricts_BritishNationalGrid(t *testing.T) {
	districts, err := LoadDistricts(writeFile(t, bngDistricts), spatialConfig(config.CRSBritishNationalGrid), nil)
	require.NoError(t, err)
	require.Len(t, districts, 2)

	assert.Equal(t, "York", districts[0].Name)
	assert.Equal(t, "E06000014", districts[0].Code)
	assert.IsType(t, &geom.Polygon{}, districts[0].Geometry)

	assert.Equal(t, "Isles", districts[1].Name)
	assert.Equal(t, "42", districts[1].Code)
	assert.IsType(t, &geom.MultiPolygon{}, districts[1].Geometry)
}

func TestLoadDistricts_ReprojectsWGS84(t *testing.T) {
	districts, err := LoadDistricts(writeFile(t, wgsDistricts), spatialConfig(config.CRSWGS84), nil)
	require.NoError(t, err)
	require.Len(t, districts, 1)

	e, n, err := OSGBProjector{}.Project(53.959, -1.0815)
	require.NoError(t, err)
	assert.True(t, Contains(districts[0].Geometry, geom.Coord{e, n}))

	b := districts[0].Geometry.Bounds()
	assert.Greater(t, b.Min(0), 400000.0)
	assert.Greater(t, b.Min(1), 400000.0)
}

func TestLoadDistricts_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errType errors.ErrorType
	}{
		{
			name:    "not a collection",
			content: `{"type": "Feature", "features": []}`,
			errType: errors.ErrTypeGeometry,
		},
		{
			name:    "empty collection",
			content: `{"type": "FeatureCollection", "features": []}`,
			errType: errors.ErrTypeGeometry,
		},
		{
			name: "missing name",
			content: `{"type": "FeatureCollection", "features": [
			  {"type": "Feature", "properties": {"OTHER": "York"},
			   "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}}]}`,
			errType: errors.ErrTypeSchema,
		},
		{
			name: "duplicate name",
			content: `{"type": "FeatureCollection", "features": [
			  {"type": "Feature", "properties": {"LAD21NM": "York"},
			   "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}},
			  {"type": "Feature", "properties": {"LAD21NM": "York"},
			   "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}}]}`,
			errType: errors.ErrTypeGeometry,
		},
		{
			name: "open ring",
			content: `{"type": "FeatureCollection", "features": [
			  {"type": "Feature", "properties": {"LAD21NM": "York"},
			   "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1]]]}}]}`,
			errType: errors.ErrTypeGeometry,
		},
		{
			name: "point geometry",
			content: `{"type": "FeatureCollection", "features": [
			  {"type": "Feature", "properties": {"LAD21NM": "York"},
			   "geometry": {"type": "Point", "coordinates": [0,0]}}]}`,
			errType: errors.ErrTypeGeometry,
		},
		{
			name:    "malformed json",
			content: `{"type": "FeatureCollection", "features": [`,
			errType: errors.ErrTypeGeometry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDistricts(writeFile(t, tt.content), spatialConfig(config.CRSBritishNationalGrid), nil)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.errType), "got %v", err)
		})
	}
}

func TestLoadDistricts_MissingFile(t *testing.T) {
	_, err := LoadDistricts(filepath.Join(t.TempDir(), "absent.geojson"), spatialConfig(config.CRSBritishNationalGrid), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeIO))
}
