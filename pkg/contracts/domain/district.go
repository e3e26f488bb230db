package domain

import (
	"github.com/twpayne/go-geom"
)

// District is one local-authority boundary in EPSG:27700.
// Geometry is a *geom.Polygon or *geom.MultiPolygon and is never modified
// after loading.
type District struct {
	Name     string `json:"name" validate:"required"`
	Code     string `json:"code"`
	Geometry geom.T `json:"-"`
}

// Key returns the district join key for the given mode ("name" or "code")
func (d *District) Key(joinOn string) string {
	if joinOn == "code" {
		return d.Code
	}
	return d.Name
}
