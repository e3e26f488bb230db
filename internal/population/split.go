package population

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"roadrisk/internal/cleaning"
	"roadrisk/internal/errors"
)

// DefaultColumnPrefix names the yearly columns of a wide population table
const DefaultColumnPrefix = "population_"

// SplitOptions controls SplitAnnual
type SplitOptions struct {
	GroupBy      []string
	MinYear      int
	MaxYear      int
	ColumnPrefix string
}

// SplitAnnual turns a wide table with one population_<year> column per year
// into one file per year, population_<year>.csv, holding the group columns
// and the summed population. Missing values count as zero. It returns the
// written paths in year order.
func SplitAnnual(df dataframe.DataFrame, opts SplitOptions, outDir string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.GroupBy) == 0 {
		return nil, errors.NewConfigError("population split needs at least one grouping column", nil)
	}
	if opts.MinYear > opts.MaxYear {
		return nil, errors.NewConfigError(fmt.Sprintf("min year %d is after max year %d", opts.MinYear, opts.MaxYear), nil)
	}
	prefix := opts.ColumnPrefix
	if prefix == "" {
		prefix = DefaultColumnPrefix
	}
	if err := cleaning.RequireColumns(df, "population table", opts.GroupBy...); err != nil {
		return nil, err
	}

	df = dropMissingKeys(df, opts.GroupBy)
	if df.Nrow() == 0 {
		return nil, errors.NewValueError(strings.Join(opts.GroupBy, ","), -1, "no rows with complete group keys")
	}

	present := make(map[string]bool, df.Ncol())
	for _, name := range df.Names() {
		present[name] = true
	}

	var written []string
	for year := opts.MinYear; year <= opts.MaxYear; year++ {
		col := prefix + strconv.Itoa(year)
		if !present[col] {
			logger.Warn("Population column missing, year skipped",
				slog.String("column", col),
				slog.Int("year", year))
			continue
		}

		annual, err := sumByGroup(df, opts.GroupBy, col)
		if err != nil {
			return written, err
		}

		path := filepath.Join(outDir, DefaultColumnPrefix+strconv.Itoa(year)+".csv")
		if err := cleaning.Save(annual, path); err != nil {
			return written, err
		}
		written = append(written, path)

		logger.Info("Annual population written",
			slog.Int("year", year),
			slog.Int("groups", annual.Nrow()),
			slog.String("path", path))
	}

	if len(written) == 0 {
		return nil, errors.NewSchemaError(prefix+"<year>", "population table")
	}
	return written, nil
}

func dropMissingKeys(df dataframe.DataFrame, keys []string) dataframe.DataFrame {
	keep := make([]int, 0, df.Nrow())
	nan := make([][]bool, len(keys))
	for i, k := range keys {
		nan[i] = df.Col(k).IsNaN()
	}
	for row := 0; row < df.Nrow(); row++ {
		ok := true
		for i := range keys {
			if nan[i][row] {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, row)
		}
	}
	if len(keep) == df.Nrow() {
		return df
	}
	return df.Subset(keep)
}

func sumByGroup(df dataframe.DataFrame, groupBy []string, col string) (dataframe.DataFrame, error) {
	raw := df.Col(col).Records()
	nan := df.Col(col).IsNaN()
	values := make([]float64, len(raw))
	for i, s := range raw {
		if nan[i] {
			continue
		}
		if v, ok := parseCount(s); ok {
			values[i] = v
		}
	}

	sub := df.Select(append(append([]string(nil), groupBy...), col))
	sub = sub.Mutate(series.New(values, series.Float, col))
	if sub.Err != nil {
		return dataframe.DataFrame{}, errors.NewValueError(col, -1, sub.Err.Error())
	}

	groups := sub.GroupBy(groupBy...)
	if groups.Err != nil {
		return dataframe.DataFrame{}, errors.NewValueError(strings.Join(groupBy, ","), -1, groups.Err.Error())
	}
	agg := groups.Aggregation([]dataframe.AggregationType{dataframe.Aggregation_SUM}, []string{col})
	if agg.Err != nil {
		return dataframe.DataFrame{}, errors.NewValueError(col, -1, agg.Err.Error())
	}

	sums := agg.Col(col + "_SUM").Float()
	whole := make([]int, len(sums))
	for i, v := range sums {
		whole[i] = int(math.Round(v))
	}
	agg = agg.Mutate(series.New(whole, series.Int, ColPopulation))

	order := make([]dataframe.Order, len(groupBy))
	for i, g := range groupBy {
		order[i] = dataframe.Sort(g)
	}
	out := agg.Select(append(append([]string(nil), groupBy...), ColPopulation)).Arrange(order...)
	if out.Err != nil {
		return dataframe.DataFrame{}, errors.NewValueError(col, -1, out.Err.Error())
	}
	return out, nil
}
