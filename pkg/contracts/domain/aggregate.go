package domain

import (
	"github.com/twpayne/go-geom"
)

// DistrictYear is one aggregated (district, year) record. Counts holds the
// summed indicator columns and casualties.
type DistrictYear struct {
	District string           `json:"district" db:"district"`
	Code     string           `json:"code" db:"code"`
	Year     int              `json:"year" db:"year"`
	Geometry geom.T           `json:"-"`
	Counts   map[string]int64 `json:"counts"`
}

// Key returns the join key for the given mode ("name" or "code")
func (r DistrictYear) Key(joinOn string) string {
	if joinOn == "code" {
		return r.Code
	}
	return r.District
}

// AggregatedTable is a set of DistrictYear rows sharing one column set.
// Year is zero for a table concatenated across years.
type AggregatedTable struct {
	Year    int            `json:"year"`
	Columns []string       `json:"columns"`
	Rows    []DistrictYear `json:"rows"`
}
