package spatial

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"

	"roadrisk/internal/errors"
	"roadrisk/internal/infrastructure"
	"roadrisk/pkg/contracts/domain"
)

// JoinStats reports how many accident points found a district
type JoinStats struct {
	Points    int
	Matched   int
	Unmatched int
	Pairs     int
}

type indexedDistrict struct {
	district *domain.District
	bounds   *geom.Bounds
}

// Joiner pairs accident points with the districts containing them.
// A point exactly on a shared boundary is contained by both districts and
// is emitted once for each.
type Joiner struct {
	districts []indexedDistrict
	projector Projector
	metrics   *infrastructure.PipelineMetrics
	logger    *slog.Logger
}

// NewJoiner indexes districts by bounding box. Metrics may be nil.
func NewJoiner(districts []*domain.District, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) (*Joiner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(districts) == 0 {
		return nil, errors.NewGeometryError("no districts to join against", nil)
	}

	indexed := make([]indexedDistrict, 0, len(districts))
	for _, d := range districts {
		if d == nil || d.Geometry == nil {
			return nil, errors.NewGeometryError("district without geometry", nil)
		}
		switch d.Geometry.(type) {
		case *geom.Polygon, *geom.MultiPolygon:
		default:
			return nil, errors.NewGeometryError(fmt.Sprintf("district %q geometry is %T", d.Name, d.Geometry), nil)
		}
		indexed = append(indexed, indexedDistrict{district: d, bounds: d.Geometry.Bounds()})
	}

	return &Joiner{
		districts: indexed,
		projector: OSGBProjector{},
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "spatial_joiner")),
	}, nil
}

// Join projects every accident into EPSG:27700 and emits one joined record
// per containing district. Points inside no district are dropped and
// counted. The input slice is not modified.
func (j *Joiner) Join(ctx context.Context, accidents []domain.Accident) ([]domain.JoinedAccident, JoinStats, error) {
	stats := JoinStats{Points: len(accidents)}
	joined := make([]domain.JoinedAccident, 0, len(accidents))

	for i, a := range accidents {
		if i%50000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}

		e, n, err := j.projector.Project(a.Latitude, a.Longitude)
		if err != nil {
			return nil, stats, fmt.Errorf("accident %d: %w", i, err)
		}
		pt := geom.Coord{e, n}

		hits := 0
		for _, d := range j.districts {
			if !d.bounds.OverlapsPoint(geom.XY, pt) {
				continue
			}
			if !Contains(d.district.Geometry, pt) {
				continue
			}
			hits++
			joined = append(joined, domain.JoinedAccident{
				District:   d.district,
				Year:       a.Year,
				Casualties: a.Casualties,
				Codes:      a.Codes(),
			})
		}

		if hits == 0 {
			stats.Unmatched++
			continue
		}
		stats.Matched++
	}
	stats.Pairs = len(joined)

	j.metrics.RecordDistricts(ctx, len(j.districts))
	j.metrics.RecordRowsLoaded(ctx, "join", stats.Points)
	j.metrics.RecordUnmatched(ctx, stats.Unmatched)

	level := slog.LevelInfo
	if stats.Unmatched > 0 {
		level = slog.LevelWarn
	}
	j.logger.Log(ctx, level, "Spatial join complete",
		slog.Int("points", stats.Points),
		slog.Int("matched", stats.Matched),
		slog.Int("unmatched", stats.Unmatched),
		slog.Int("pairs", stats.Pairs))

	return joined, stats, nil
}

// Contains reports whether pt lies inside g or on its boundary.
// Points inside a hole are outside.
func Contains(g geom.T, pt geom.Coord) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, pt)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), pt) {
				return true
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, pt geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	layout := p.Layout()
	if !xy.IsPointInRing(layout, pt, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(layout, pt, p.LinearRing(i).FlatCoords()) && !onRing(layout, pt, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

func onRing(layout geom.Layout, pt geom.Coord, ring []float64) bool {
	return xy.LocatePointInRing(layout, pt, ring) == location.Boundary
}
