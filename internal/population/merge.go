package population

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"roadrisk/internal/cleaning"
	"roadrisk/internal/errors"
	"roadrisk/pkg/contracts/domain"
)

// Merged table columns
const (
	ColDistrict   = "district"
	ColCode       = "code"
	ColYear       = "year"
	ColPopulation = domain.PopulationColumn
)

// MergeResult holds the population totals built from every yearly file
type MergeResult struct {
	// Yearly has one record per (district, year) with a positive total
	Yearly []domain.PopulationRecord
	// ByDistrict has one record per district, the mean of its yearly
	// totals, with Year 0
	ByDistrict []domain.PopulationRecord
	// Excluded counts (district, year) totals that were missing or not positive
	Excluded int
	Files    int
}

type districtYear struct {
	district string
	year     int
}

// Merge reads every population file, sums subtotal rows per (district,
// year), drops missing and non-positive totals and averages the remaining
// yearly totals per district. A district takes the first code seen for it
// in any file.
func (r *Reader) Merge(ctx context.Context, paths []string) (*MergeResult, error) {
	if len(paths) == 0 {
		return nil, errors.NewIOError(r.cfg.FilePrefix+"*", fmt.Errorf("no population files found"))
	}

	type total struct {
		sum   float64
		valid bool
	}
	totals := make(map[districtYear]*total)
	codes := make(map[string]string)
	var order []districtYear

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := r.ReadFile(path)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			key := districtYear{row.District, row.Year}
			t, ok := totals[key]
			if !ok {
				t = &total{}
				totals[key] = t
				order = append(order, key)
			}
			if codes[row.District] == "" {
				codes[row.District] = row.Code
			}
			if !math.IsNaN(row.Population) {
				t.sum += row.Population
				t.valid = true
			}
		}
	}

	result := &MergeResult{Files: len(paths)}

	type mean struct {
		sum   float64
		years int
	}
	means := make(map[string]*mean)

	for _, key := range order {
		t := totals[key]
		if !t.valid || t.sum <= 0 {
			result.Excluded++
			r.logger.Debug("Population total excluded",
				slog.String("district", key.district),
				slog.Int("year", key.year))
			continue
		}
		result.Yearly = append(result.Yearly, domain.PopulationRecord{
			District:   key.district,
			Code:       codes[key.district],
			Year:       key.year,
			Population: t.sum,
		})

		m, ok := means[key.district]
		if !ok {
			m = &mean{}
			means[key.district] = m
		}
		m.sum += t.sum
		m.years++
	}

	for district, m := range means {
		result.ByDistrict = append(result.ByDistrict, domain.PopulationRecord{
			District:   district,
			Code:       codes[district],
			Population: m.sum / float64(m.years),
		})
	}

	SortRecords(result.Yearly)
	SortRecords(result.ByDistrict)

	r.logger.InfoContext(ctx, "Population merged",
		slog.Int("files", result.Files),
		slog.Int("district_years", len(result.Yearly)),
		slog.Int("districts", len(result.ByDistrict)),
		slog.Int("excluded", result.Excluded))

	return result, nil
}

// SortRecords orders records by district then year
func SortRecords(records []domain.PopulationRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].District != records[j].District {
			return records[i].District < records[j].District
		}
		return records[i].Year < records[j].Year
	})
}

// WriteRecords saves records as a CSV table with district, code and
// population columns. A year column is added when the records are per year;
// by-district records (Year 0) are written without it.
func WriteRecords(path string, records []domain.PopulationRecord) error {
	yearly := false
	for _, rec := range records {
		if rec.Year != 0 {
			yearly = true
			break
		}
	}

	header := []string{ColDistrict, ColCode, ColPopulation}
	if yearly {
		header = []string{ColDistrict, ColCode, ColYear, ColPopulation}
	}
	table := [][]string{header}
	for _, rec := range records {
		pop := strconv.FormatFloat(rec.Population, 'f', -1, 64)
		if yearly {
			table = append(table, []string{rec.District, rec.Code, strconv.Itoa(rec.Year), pop})
			continue
		}
		table = append(table, []string{rec.District, rec.Code, pop})
	}
	df := dataframe.LoadRecords(table,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return errors.NewIOError(path, df.Err)
	}
	return cleaning.Save(df, path)
}

// ReadRecords loads a table written by WriteRecords. Without a year
// column every record has Year 0.
func ReadRecords(path string) ([]domain.PopulationRecord, error) {
	df, err := cleaning.ReadTable(path, []string{"NaN"})
	if err != nil {
		return nil, err
	}
	if err := cleaning.RequireColumns(df, path, ColDistrict, ColCode, ColPopulation); err != nil {
		return nil, err
	}

	districts := df.Col(ColDistrict).Records()
	codes := df.Col(ColCode).Records()
	pops := df.Col(ColPopulation).Records()
	var years []string
	if slices.Contains(df.Names(), ColYear) {
		years = df.Col(ColYear).Records()
	}

	records := make([]domain.PopulationRecord, 0, len(districts))
	for i := range districts {
		var year int
		if years != nil {
			if year, err = strconv.Atoi(years[i]); err != nil {
				return nil, errors.NewValueError(ColYear, i, years[i])
			}
		}
		pop, err := strconv.ParseFloat(pops[i], 64)
		if err != nil {
			return nil, errors.NewValueError(ColPopulation, i, pops[i])
		}
		records = append(records, domain.PopulationRecord{
			District:   districts[i],
			Code:       codes[i],
			Year:       year,
			Population: pop,
		})
	}
	return records, nil
}
