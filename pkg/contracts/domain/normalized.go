package domain

import (
	"github.com/twpayne/go-geom"
)

// PopulationColumn carries the divisor population into normalized output.
const PopulationColumn = "population"

// NormalizedRecord is an aggregated record with every count expressed as a
// rate per PerCapitaBase residents.
type NormalizedRecord struct {
	District   string             `json:"district" db:"district"`
	Code       string             `json:"code" db:"code"`
	Year       int                `json:"year" db:"year"`
	Population float64            `json:"population" db:"population"`
	Geometry   geom.T             `json:"-"`
	Rates      map[string]float64 `json:"rates"`
}

// NormalizedTable is the normalized output with its rate column order.
type NormalizedTable struct {
	Columns []string           `json:"columns"`
	Rows    []NormalizedRecord `json:"rows"`
}
