package aggregation

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"roadrisk/pkg/contracts/domain"
)

// Aggregator sums joined accidents into one record per (district, year).
type Aggregator struct {
	workers int
	logger  *slog.Logger
}

// NewAggregator creates an aggregator that builds up to workers year tables
// concurrently.
func NewAggregator(workers int, logger *slog.Logger) *Aggregator {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		workers: workers,
		logger:  logger.With(slog.String("component", "aggregator")),
	}
}

// Aggregate groups joined accidents by year and district. Each categorical
// code is expanded to an indicator column "<attribute>_<code>"; only codes
// observed within the year get a column. Tables come back ordered by year
// with rows ordered by district name.
func (a *Aggregator) Aggregate(ctx context.Context, joined []domain.JoinedAccident) ([]domain.AggregatedTable, error) {
	byYear := make(map[int][]domain.JoinedAccident)
	for _, j := range joined {
		byYear[j.Year] = append(byYear[j.Year], j)
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	tables := make([]domain.AggregatedTable, len(years))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, year := range years {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tables[i] = aggregateYear(year, byYear[year])
			a.logger.DebugContext(gctx, "Year aggregated",
				slog.Int("year", year),
				slog.Int("accidents", len(byYear[year])),
				slog.Int("districts", len(tables[i].Rows)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "Aggregation complete",
		slog.Int("accidents", len(joined)),
		slog.Int("years", len(tables)))

	return tables, nil
}

func aggregateYear(year int, joined []domain.JoinedAccident) domain.AggregatedTable {
	observed := make(map[string]struct{})
	groups := make(map[string]*domain.DistrictYear)
	order := make([]string, 0)

	for _, j := range joined {
		name := j.District.Name
		row, ok := groups[name]
		if !ok {
			row = &domain.DistrictYear{
				District: name,
				Code:     j.District.Code,
				Year:     year,
				Geometry: j.District.Geometry,
				Counts:   make(map[string]int64),
			}
			groups[name] = row
			order = append(order, name)
		}

		for i, attr := range domain.Categorical {
			col := domain.IndicatorColumn(attr.Name, j.Codes[i])
			row.Counts[col]++
			observed[col] = struct{}{}
		}
		row.Counts[domain.CasualtiesColumn] += int64(j.Casualties)
	}

	columns := make([]string, 0, len(observed)+1)
	for col := range observed {
		columns = append(columns, col)
	}
	columns = append(columns, domain.CasualtiesColumn)
	domain.SortColumns(columns)

	sort.Strings(order)
	rows := make([]domain.DistrictYear, 0, len(order))
	for _, name := range order {
		row := groups[name]
		fill(row.Counts, columns)
		rows = append(rows, *row)
	}

	return domain.AggregatedTable{Year: year, Columns: columns, Rows: rows}
}

// fill sets every missing column to zero
func fill(counts map[string]int64, columns []string) {
	for _, col := range columns {
		if _, ok := counts[col]; !ok {
			counts[col] = 0
		}
	}
}
