package exporter

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/twpayne/go-geom/encoding/geojson"

	"roadrisk/internal/errors"
	"roadrisk/pkg/contracts/domain"
)

// Feature property names shared by every geospatial output
const (
	PropDistrict = "district"
	PropCode     = "code"
	PropYear     = "year"
)

// bngCRS is the named CRS member for EPSG:27700 output
var bngCRS = crsMember{Type: "name", Properties: crsName{Name: "urn:ogc:def:crs:EPSG::27700"}}

type crsName struct {
	Name string `json:"name"`
}

type crsMember struct {
	Type       string  `json:"type"`
	Properties crsName `json:"properties"`
}

// featureCollection carries the "crs" member that go-geom's
// FeatureCollection does not model.
type featureCollection struct {
	Type     string             `json:"type"`
	CRS      *crsMember         `json:"crs,omitempty"`
	Features []*geojson.Feature `json:"features"`
}

func writeFeatures(path string, features []*geojson.Feature) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewIOError(path, err)
	}

	crs := bngCRS
	data, err := json.Marshal(featureCollection{Type: "FeatureCollection", CRS: &crs, Features: features})
	if err != nil {
		return errors.NewGeometryError(fmt.Sprintf("cannot encode %s", path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.NewIOError(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.NewIOError(path, err)
	}
	return nil
}

func aggregatedFeatures(table domain.AggregatedTable) []*geojson.Feature {
	features := make([]*geojson.Feature, 0, len(table.Rows))
	for _, row := range table.Rows {
		props := make(map[string]interface{}, len(table.Columns)+3)
		props[PropDistrict] = row.District
		props[PropCode] = row.Code
		props[PropYear] = row.Year
		for _, col := range table.Columns {
			props[col] = row.Counts[col]
		}
		features = append(features, &geojson.Feature{Geometry: row.Geometry, Properties: props})
	}
	return features
}

func normalizedFeatures(table domain.NormalizedTable) []*geojson.Feature {
	features := make([]*geojson.Feature, 0, len(table.Rows))
	for _, row := range table.Rows {
		props := make(map[string]interface{}, len(table.Columns)+4)
		props[PropDistrict] = row.District
		props[PropCode] = row.Code
		props[PropYear] = row.Year
		props[domain.PopulationColumn] = row.Population
		for _, col := range table.Columns {
			props[col] = row.Rates[col]
		}
		features = append(features, &geojson.Feature{Geometry: row.Geometry, Properties: props})
	}
	return features
}

// ReadAggregated loads a file written by WriteAggregated. Columns are the
// union of feature properties in canonical order; counts missing from a
// feature read as zero.
func ReadAggregated(path string) (domain.AggregatedTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AggregatedTable{}, errors.NewIOError(path, err)
	}

	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return domain.AggregatedTable{}, errors.NewGeometryError(fmt.Sprintf("cannot decode %s", path), err)
	}

	table := domain.AggregatedTable{Rows: make([]domain.DistrictYear, 0, len(fc.Features))}
	seen := make(map[string]struct{})
	years := make(map[int]struct{})

	for i, f := range fc.Features {
		district, ok := f.Properties[PropDistrict].(string)
		if !ok || district == "" {
			return domain.AggregatedTable{}, errors.NewSchemaError(PropDistrict, fmt.Sprintf("%s feature %d", filepath.Base(path), i))
		}
		year, ok := wholeNumber(f.Properties[PropYear])
		if !ok {
			return domain.AggregatedTable{}, errors.NewValueError(PropYear, i, fmt.Sprint(f.Properties[PropYear]))
		}
		code, _ := f.Properties[PropCode].(string)

		row := domain.DistrictYear{
			District: district,
			Code:     code,
			Year:     int(year),
			Geometry: f.Geometry,
			Counts:   make(map[string]int64, len(f.Properties)),
		}
		for key, v := range f.Properties {
			if key == PropDistrict || key == PropCode || key == PropYear {
				continue
			}
			n, ok := wholeNumber(v)
			if !ok {
				return domain.AggregatedTable{}, errors.NewValueError(key, i, fmt.Sprint(v))
			}
			row.Counts[key] = n
			seen[key] = struct{}{}
		}
		table.Rows = append(table.Rows, row)
		years[row.Year] = struct{}{}
	}

	for col := range seen {
		table.Columns = append(table.Columns, col)
	}
	domain.SortColumns(table.Columns)
	for i := range table.Rows {
		for _, col := range table.Columns {
			if _, ok := table.Rows[i].Counts[col]; !ok {
				table.Rows[i].Counts[col] = 0
			}
		}
	}
	if len(years) == 1 {
		for y := range years {
			table.Year = y
		}
	}
	sort.SliceStable(table.Rows, func(i, j int) bool {
		if table.Rows[i].Year != table.Rows[j].Year {
			return table.Rows[i].Year < table.Rows[j].Year
		}
		return table.Rows[i].District < table.Rows[j].District
	})

	return table, nil
}

func wholeNumber(v interface{}) (int64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// ReadNormalized loads a file written by WriteNormalized. Every property
// other than the district keys and the population is read as a rate.
func ReadNormalized(path string) (domain.NormalizedTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.NormalizedTable{}, errors.NewIOError(path, err)
	}

	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return domain.NormalizedTable{}, errors.NewGeometryError(fmt.Sprintf("cannot decode %s", path), err)
	}

	table := domain.NormalizedTable{Rows: make([]domain.NormalizedRecord, 0, len(fc.Features))}
	seen := make(map[string]struct{})

	for i, f := range fc.Features {
		district, ok := f.Properties[PropDistrict].(string)
		if !ok || district == "" {
			return domain.NormalizedTable{}, errors.NewSchemaError(PropDistrict, fmt.Sprintf("%s feature %d", filepath.Base(path), i))
		}
		year, ok := wholeNumber(f.Properties[PropYear])
		if !ok {
			return domain.NormalizedTable{}, errors.NewValueError(PropYear, i, fmt.Sprint(f.Properties[PropYear]))
		}
		pop, ok := f.Properties[domain.PopulationColumn].(float64)
		if !ok {
			return domain.NormalizedTable{}, errors.NewValueError(domain.PopulationColumn, i, fmt.Sprint(f.Properties[domain.PopulationColumn]))
		}
		code, _ := f.Properties[PropCode].(string)

		row := domain.NormalizedRecord{
			District:   district,
			Code:       code,
			Year:       int(year),
			Population: pop,
			Geometry:   f.Geometry,
			Rates:      make(map[string]float64, len(f.Properties)),
		}
		for key, v := range f.Properties {
			if key == PropDistrict || key == PropCode || key == PropYear || key == domain.PopulationColumn {
				continue
			}
			rate, ok := v.(float64)
			if !ok {
				return domain.NormalizedTable{}, errors.NewValueError(key, i, fmt.Sprint(v))
			}
			row.Rates[key] = rate
			seen[key] = struct{}{}
		}
		table.Rows = append(table.Rows, row)
	}

	for col := range seen {
		table.Columns = append(table.Columns, col)
	}
	domain.SortColumns(table.Columns)

	return table, nil
}
