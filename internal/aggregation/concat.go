package aggregation

import (
	"sort"

	"roadrisk/pkg/contracts/domain"
)

type districtYearKey struct {
	district string
	year     int
}

// Concat merges yearly tables into one. Columns are the union of all input
// columns, absent counts become 0, and rows sharing (district, year) are
// summed keeping the first geometry and code seen. Inputs are not modified.
func Concat(tables []domain.AggregatedTable) domain.AggregatedTable {
	union := make(map[string]struct{})
	for _, t := range tables {
		for _, col := range t.Columns {
			union[col] = struct{}{}
		}
	}
	columns := make([]string, 0, len(union))
	for col := range union {
		columns = append(columns, col)
	}
	domain.SortColumns(columns)

	merged := make(map[districtYearKey]*domain.DistrictYear)
	for _, t := range tables {
		for _, r := range t.Rows {
			key := districtYearKey{r.District, r.Year}
			row, ok := merged[key]
			if !ok {
				row = &domain.DistrictYear{
					District: r.District,
					Code:     r.Code,
					Year:     r.Year,
					Geometry: r.Geometry,
					Counts:   make(map[string]int64, len(columns)),
				}
				merged[key] = row
			}
			for col, v := range r.Counts {
				row.Counts[col] += v
			}
		}
	}

	rows := make([]domain.DistrictYear, 0, len(merged))
	for _, row := range merged {
		fill(row.Counts, columns)
		rows = append(rows, *row)
	}
	SortRows(rows)

	return domain.AggregatedTable{Columns: columns, Rows: rows}
}

// SortRows orders rows by year then district name
func SortRows(rows []domain.DistrictYear) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Year != rows[j].Year {
			return rows[i].Year < rows[j].Year
		}
		return rows[i].District < rows[j].District
	})
}
