package spatial

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"roadrisk/internal/errors"
	"roadrisk/internal/shared/testutil"
	"roadrisk/pkg/contracts/domain"
)

const refLat, refLon = 53.96, -1.08

func square(t *testing.T, minX, minY, maxX, maxY float64) *geom.Polygon {
	t.Helper()
	p, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}})
	require.NoError(t, err)
	return p
}

// adjacentDistricts returns two districts sharing the vertical edge through
// the projected reference point.
func adjacentDistricts(t *testing.T) []*domain.District {
	t.Helper()
	e0, n0, err := OSGBProjector{}.Project(refLat, refLon)
	require.NoError(t, err)

	return []*domain.District{
		{Name: "West", Code: "E01", Geometry: square(t, e0-1000, n0-500, e0, n0+500)},
		{Name: "East", Code: "E02", Geometry: square(t, e0, n0-500, e0+1000, n0+500)},
	}
}

func accident(lat, lon float64, year, casualties int) domain.Accident {
	return domain.Accident{
		Vehicles: 1, Year: year, Casualties: casualties,
		Latitude: lat, Longitude: lon,
	}
}

func TestJoin(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	j, err := NewJoiner(adjacentDistricts(t), nil, logger)
	require.NoError(t, err)

	accidents := []domain.Accident{
		accident(refLat, refLon-0.005, 2015, 1), // west
		accident(refLat, refLon+0.005, 2015, 2), // east
		accident(51.5, -0.12, 2016, 3),          // london
		accident(refLat, refLon, 2016, 4),       // shared edge
	}
	before := append([]domain.Accident(nil), accidents...)

	joined, stats, err := j.Join(context.Background(), accidents)
	require.NoError(t, err)

	assert.Equal(t, JoinStats{Points: 4, Matched: 3, Unmatched: 1, Pairs: 4}, stats)
	require.Len(t, joined, 4)

	got := make([]string, len(joined))
	for i, ja := range joined {
		got[i] = ja.District.Name
	}
	assert.Equal(t, []string{"West", "East", "West", "East"}, got)
	assert.Equal(t, 1, joined[0].Casualties)
	assert.Equal(t, 2015, joined[0].Year)
	assert.Equal(t, 4, joined[2].Casualties)
	assert.Equal(t, 4, joined[3].Casualties)

	assert.Equal(t, before, accidents)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "Spatial join complete")
	testutil.AssertLogAttr(t, handler, "unmatched", int64(1))
}

func TestJoin_CarriesCodes(t *testing.T) {
	j, err := NewJoiner(adjacentDistricts(t), nil, nil)
	require.NoError(t, err)

	a := accident(refLat, refLon-0.005, 2017, 0)
	a.RoadClass, a.Severity, a.Speed, a.Vehicles = 3, 2, 1, 5

	joined, _, err := j.Join(context.Background(), []domain.Accident{a})
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, a.Codes(), joined[0].Codes)
}

func TestJoin_InvalidPoint(t *testing.T) {
	j, err := NewJoiner(adjacentDistricts(t), nil, nil)
	require.NoError(t, err)

	_, _, err = j.Join(context.Background(), []domain.Accident{accident(123, 0, 2015, 1)})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeGeometry))
}

func TestJoin_Cancelled(t *testing.T) {
	j, err := NewJoiner(adjacentDistricts(t), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = j.Join(ctx, []domain.Accident{accident(refLat, refLon, 2015, 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewJoiner_Errors(t *testing.T) {
	_, err := NewJoiner(nil, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeGeometry))

	_, err = NewJoiner([]*domain.District{{Name: "Point", Geometry: geom.NewPointFlat(geom.XY, []float64{0, 0})}}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeGeometry))

	_, err = NewJoiner([]*domain.District{{Name: "Empty"}}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeGeometry))
}

func TestContains(t *testing.T) {
	withHole, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}},
	})
	require.NoError(t, err)

	multi, err := geom.NewMultiPolygon(geom.XY).SetCoords([][][]geom.Coord{
		{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}},
		{{{5, 5}, {6, 5}, {6, 6}, {5, 6}, {5, 5}}},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		g    geom.T
		pt   geom.Coord
		want bool
	}{
		{"interior", withHole, geom.Coord{2, 2}, true},
		{"outer boundary", withHole, geom.Coord{0, 5}, true},
		{"inside hole", withHole, geom.Coord{5, 5}, false},
		{"hole boundary", withHole, geom.Coord{4, 5}, true},
		{"outside", withHole, geom.Coord{11, 5}, false},
		{"second part", multi, geom.Coord{5.5, 5.5}, true},
		{"between parts", multi, geom.Coord{3, 3}, false},
		{"unsupported", geom.NewPointFlat(geom.XY, []float64{0, 0}), geom.Coord{0, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Contains(tt.g, tt.pt))
		})
	}
}
