package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"roadrisk/internal/config"
	"roadrisk/internal/errors"
	"roadrisk/internal/infrastructure"
	"roadrisk/pkg/contracts/domain"
)

// Options controls how aggregated rows find their population
type Options struct {
	// JoinOn is "name" or "code"
	JoinOn string
	// PerCapitaBase is the number of residents a rate is expressed per
	PerCapitaBase float64
	// MatchYear joins on (district, year) instead of district alone
	MatchYear bool
}

// OptionsFrom builds Options from configuration
func OptionsFrom(cfg config.NormalizeConfig) Options {
	return Options{JoinOn: cfg.JoinOn, PerCapitaBase: cfg.PerCapitaBase, MatchYear: cfg.MatchYear}
}

// Stats reports the outcome of the population join
type Stats struct {
	Rows      int
	Matched   int
	Unmatched int
}

type popKey struct {
	district string
	year     int
}

// Normalizer rescales aggregated counts to rates per resident population
type Normalizer struct {
	opts    Options
	metrics *infrastructure.PipelineMetrics
	logger  *slog.Logger
}

// NewNormalizer validates opts and creates a normalizer. Metrics may be nil.
func NewNormalizer(opts Options, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) (*Normalizer, error) {
	if opts.JoinOn == "" {
		opts.JoinOn = "name"
	}
	if opts.JoinOn != "name" && opts.JoinOn != "code" {
		return nil, errors.NewConfigError(fmt.Sprintf("unknown join key %q", opts.JoinOn), nil)
	}
	if opts.PerCapitaBase == 0 {
		opts.PerCapitaBase = config.PerCapitaBase
	}
	if opts.PerCapitaBase < 0 || math.IsNaN(opts.PerCapitaBase) {
		return nil, errors.NewConfigError(fmt.Sprintf("per-capita base must be positive, got %g", opts.PerCapitaBase), nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		opts:    opts,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "normalizer")),
	}, nil
}

// Normalize inner-joins table with population and divides every count
// column by population / PerCapitaBase. Aggregated rows without a
// population are dropped and counted. A matched population that is zero,
// negative or NaN fails the whole table. Inputs are not modified.
func (n *Normalizer) Normalize(ctx context.Context, table domain.AggregatedTable, population []domain.PopulationRecord) (domain.NormalizedTable, Stats, error) {
	stats := Stats{Rows: len(table.Rows)}

	lookup := make(map[popKey]float64, len(population))
	for _, p := range population {
		key := n.key(p.Key(n.opts.JoinOn), p.Year)
		if key.district == "" {
			continue
		}
		if _, dup := lookup[key]; dup {
			return domain.NormalizedTable{}, stats, errors.NewValueError(domain.PopulationColumn, -1, key.district).
				WithContext("reason", "duplicate population record")
		}
		lookup[key] = p.Population
	}

	out := domain.NormalizedTable{
		Columns: append([]string(nil), table.Columns...),
		Rows:    make([]domain.NormalizedRecord, 0, len(table.Rows)),
	}

	for i, row := range table.Rows {
		pop, ok := lookup[n.key(row.Key(n.opts.JoinOn), row.Year)]
		if !ok {
			stats.Unmatched++
			n.logger.DebugContext(ctx, "No population for district",
				slog.String("district", row.District),
				slog.Int("year", row.Year))
			continue
		}
		if math.IsNaN(pop) || pop <= 0 {
			return domain.NormalizedTable{}, stats, errors.NewValueError(domain.PopulationColumn, i, strconv.FormatFloat(pop, 'g', -1, 64)).
				WithContext("district", row.District)
		}

		scale := pop / n.opts.PerCapitaBase
		rates := make(map[string]float64, len(table.Columns))
		for _, col := range table.Columns {
			rates[col] = float64(row.Counts[col]) / scale
		}

		out.Rows = append(out.Rows, domain.NormalizedRecord{
			District:   row.District,
			Code:       row.Code,
			Year:       row.Year,
			Population: pop,
			Geometry:   row.Geometry,
			Rates:      rates,
		})
		stats.Matched++
	}

	n.metrics.RecordRowsDropped(ctx, "normalize", "no_population", stats.Unmatched)

	level := slog.LevelInfo
	if stats.Unmatched > 0 {
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "Normalization complete",
		slog.Int("rows", stats.Rows),
		slog.Int("matched", stats.Matched),
		slog.Int("unmatched", stats.Unmatched),
		slog.String("join_on", n.opts.JoinOn),
		slog.Bool("match_year", n.opts.MatchYear))

	return out, stats, nil
}

func (n *Normalizer) key(district string, year int) popKey {
	if !n.opts.MatchYear {
		year = 0
	}
	return popKey{district: district, year: year}
}
