package spatial

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"roadrisk/internal/config"
	"roadrisk/internal/errors"
	"roadrisk/pkg/contracts/domain"
)

// featureCollection is a GeoJSON FeatureCollection with the legacy "crs"
// member that boundary files from ONS still carry.
type featureCollection struct {
	Type     string             `json:"type"`
	CRS      *crsMember         `json:"crs,omitempty"`
	Features []*geojson.Feature `json:"features"`
}

type crsMember struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

// LoadDistricts reads district polygons from a GeoJSON file. Every feature
// must carry a polygon or multipolygon and a unique name. Boundaries in
// EPSG:4326 are projected to EPSG:27700 on load.
func LoadDistricts(path string, cfg config.SpatialConfig, logger *slog.Logger) ([]*domain.District, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(path, err)
	}

	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, errors.NewGeometryError(fmt.Sprintf("cannot decode district file %s", path), err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, errors.NewGeometryError(fmt.Sprintf("district file %s is a %q, not a FeatureCollection", path, fc.Type), nil)
	}
	if len(fc.Features) == 0 {
		return nil, errors.NewGeometryError(fmt.Sprintf("district file %s has no features", path), nil)
	}

	crs := cfg.DistrictsCRS
	if fc.CRS != nil {
		if declared := crsFromURN(fc.CRS.Properties.Name); declared != "" && declared != crs {
			logger.Warn("District file declares a different CRS than configured",
				slog.String("declared", declared),
				slog.String("configured", crs))
		}
	}

	districts := make([]*domain.District, 0, len(fc.Features))
	names := make(map[string]int, len(fc.Features))
	codes := make(map[string]int, len(fc.Features))

	for i, f := range fc.Features {
		name := propertyString(f.Properties, cfg.NameProperty)
		if name == "" {
			return nil, errors.NewSchemaError(cfg.NameProperty, fmt.Sprintf("district feature %d", i))
		}
		if prev, dup := names[name]; dup {
			return nil, errors.NewGeometryError(fmt.Sprintf("district %q appears in features %d and %d", name, prev, i), nil)
		}
		names[name] = i

		var code string
		if cfg.CodeProperty != "" {
			code = propertyString(f.Properties, cfg.CodeProperty)
			if code != "" {
				if prev, dup := codes[code]; dup {
					return nil, errors.NewGeometryError(fmt.Sprintf("district code %q appears in features %d and %d", code, prev, i), nil)
				}
				codes[code] = i
			}
		}

		g, err := districtGeometry(f.Geometry, crs)
		if err != nil {
			return nil, errors.NewGeometryError(fmt.Sprintf("district %q has an invalid boundary", name), err).
				WithContext("district", name)
		}

		districts = append(districts, &domain.District{Name: name, Code: code, Geometry: g})
	}

	logger.Info("Districts loaded",
		slog.String("path", path),
		slog.Int("districts", len(districts)),
		slog.String("crs", crs))

	return districts, nil
}

func crsFromURN(urn string) string {
	switch urn {
	case "urn:ogc:def:crs:EPSG::27700", "EPSG:27700":
		return config.CRSBritishNationalGrid
	case "urn:ogc:def:crs:OGC:1.3:CRS84", "urn:ogc:def:crs:EPSG::4326", "EPSG:4326":
		return config.CRSWGS84
	}
	return ""
}

func propertyString(props map[string]interface{}, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// districtGeometry validates g and returns it in EPSG:27700.
func districtGeometry(g geom.T, crs string) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		if err := validPolygon(t.Coords()); err != nil {
			return nil, err
		}
		if crs == config.CRSWGS84 {
			coords, err := projectRings(t.Coords())
			if err != nil {
				return nil, err
			}
			return geom.NewPolygon(geom.XY).SetCoords(coords)
		}
		return t, nil
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return nil, fmt.Errorf("empty multipolygon")
		}
		polys := t.Coords()
		for _, p := range polys {
			if err := validPolygon(p); err != nil {
				return nil, err
			}
		}
		if crs == config.CRSWGS84 {
			projected := make([][][]geom.Coord, len(polys))
			for i, p := range polys {
				coords, err := projectRings(p)
				if err != nil {
					return nil, err
				}
				projected[i] = coords
			}
			return geom.NewMultiPolygon(geom.XY).SetCoords(projected)
		}
		return t, nil
	case nil:
		return nil, fmt.Errorf("missing geometry")
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
}

func validPolygon(rings [][]geom.Coord) error {
	if len(rings) == 0 {
		return fmt.Errorf("polygon has no rings")
	}
	for i, ring := range rings {
		if len(ring) < 4 {
			return fmt.Errorf("ring %d has %d positions, need at least 4", i, len(ring))
		}
		first, last := ring[0], ring[len(ring)-1]
		if first.X() != last.X() || first.Y() != last.Y() {
			return fmt.Errorf("ring %d is not closed", i)
		}
		for _, c := range ring {
			if !finite(c.X()) || !finite(c.Y()) {
				return fmt.Errorf("ring %d has a non-finite position", i)
			}
		}
	}
	return nil
}

func projectRings(rings [][]geom.Coord) ([][]geom.Coord, error) {
	var p OSGBProjector
	out := make([][]geom.Coord, len(rings))
	for i, ring := range rings {
		out[i] = make([]geom.Coord, len(ring))
		for j, c := range ring {
			e, n, err := p.Project(c.Y(), c.X())
			if err != nil {
				return nil, err
			}
			out[i][j] = geom.Coord{e, n}
		}
	}
	return out, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
