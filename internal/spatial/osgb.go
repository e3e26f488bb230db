package spatial

import (
	"fmt"
	"math"

	"github.com/wroge/wgs84"

	"roadrisk/internal/errors"
)

// EPSG code of the British National Grid
const epsgBritishNationalGrid = 27700

// Projector converts WGS84 coordinates to British National Grid.
type Projector interface {
	Project(lat, lon float64) (easting, northing float64, err error)
}

// toNationalGrid transforms lon/lat/height on WGS84 to easting/northing on
// OSGB36 National Grid, including the Helmert datum shift.
var toNationalGrid = wgs84.LonLat().To(wgs84.EPSG().Code(epsgBritishNationalGrid))

// OSGBProjector implements EPSG:4326 to EPSG:27700.
type OSGBProjector struct{}

// Project returns the easting and northing for a WGS84 latitude/longitude
func (OSGBProjector) Project(lat, lon float64) (float64, float64, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, errors.NewGeometryError(fmt.Sprintf("coordinate (%g, %g) is not a valid WGS84 position", lat, lon), nil)
	}

	e, n, _ := toNationalGrid(lon, lat, 0)
	if !finite(e) || !finite(n) {
		return 0, 0, errors.NewGeometryError(fmt.Sprintf("coordinate (%g, %g) does not project to the National Grid", lat, lon), nil)
	}
	return e, n, nil
}
