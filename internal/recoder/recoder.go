package recoder

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"

	"roadrisk/internal/cleaning"
	"roadrisk/internal/errors"
	"roadrisk/pkg/contracts/domain"
)

const tableName = "accident dataset"

// Stats describes what recoding removed
type Stats struct {
	RowsIn         int
	RowsOut        int
	DroppedNoSpeed int
	PrunedColumns  []string
}

// Recoder maps raw accident attributes to integer codes
type Recoder struct {
	logger *slog.Logger
}

// NewRecoder creates a recoder
func NewRecoder(logger *slog.Logger) *Recoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recoder{logger: logger.With(slog.String("component", "recoder"))}
}

type columns struct {
	values map[string][]string
	nan    map[string][]bool
}

func (c columns) cell(col string, row int) (string, bool) {
	if c.nan[col][row] {
		return "", false
	}
	return strings.TrimSpace(c.values[col][row]), true
}

// Recode converts the raw table into accident records. The input is never
// modified. Rows without a usable speed limit are dropped and counted; any
// other unreadable cell fails the whole table with a ValueError.
func (r *Recoder) Recode(ctx context.Context, df dataframe.DataFrame) ([]domain.Accident, Stats, error) {
	stats := Stats{RowsIn: df.Nrow()}

	if err := cleaning.RequireColumns(df, tableName, RequiredColumns...); err != nil {
		return nil, stats, err
	}

	names := make(map[string]bool, df.Ncol())
	for _, name := range df.Names() {
		names[name] = true
	}
	for _, col := range PrunedColumns {
		if names[col] {
			stats.PrunedColumns = append(stats.PrunedColumns, col)
		}
	}

	wanted := append([]string(nil), RequiredColumns...)
	hasTime := names[ColTime]
	if hasTime {
		wanted = append(wanted, ColTime)
	}

	cols := columns{values: make(map[string][]string, len(wanted)), nan: make(map[string][]bool, len(wanted))}
	for _, name := range wanted {
		s := df.Col(name)
		cols.values[name] = s.Records()
		cols.nan[name] = s.IsNaN()
	}

	accidents := make([]domain.Accident, 0, stats.RowsIn)
	for row := 0; row < stats.RowsIn; row++ {
		if row%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}

		speedRaw, ok := cols.cell(ColSpeed, row)
		if !ok {
			stats.DroppedNoSpeed++
			continue
		}
		speed, err := strconv.ParseFloat(speedRaw, 64)
		if err != nil || math.IsNaN(speed) {
			stats.DroppedNoSpeed++
			continue
		}

		a, err := recodeRow(cols, row)
		if err != nil {
			return nil, stats, err
		}
		a.Speed = SpeedBand(speed)
		if hasTime {
			a.Time, _ = cols.cell(ColTime, row)
		}
		accidents = append(accidents, a)
	}

	stats.RowsOut = len(accidents)

	r.logger.InfoContext(ctx, "Attributes recoded",
		slog.Int("rows_in", stats.RowsIn),
		slog.Int("rows_out", stats.RowsOut),
		slog.Int("dropped_no_speed", stats.DroppedNoSpeed),
		slog.Any("pruned_columns", stats.PrunedColumns))

	return accidents, stats, nil
}

func recodeRow(cols columns, row int) (domain.Accident, error) {
	var a domain.Accident

	text := func(col string) (string, error) {
		v, ok := cols.cell(col, row)
		if !ok {
			return "", errors.NewValueError(col, row, "NaN")
		}
		return v, nil
	}

	enum := func(col string, lookup func(string) (int, bool)) (int, error) {
		v, err := text(col)
		if err != nil {
			return 0, err
		}
		code, ok := lookup(v)
		if !ok {
			return 0, errors.NewValueError(col, row, v)
		}
		return code, nil
	}

	flag := func(col string, baseline []string) (int, error) {
		v, err := text(col)
		if err != nil {
			return 0, err
		}
		return Flag(v, baseline), nil
	}

	count := func(col string, min int) (int, error) {
		v, err := text(col)
		if err != nil {
			return 0, err
		}
		n, err := parseWhole(v)
		if err != nil || n < min {
			return 0, errors.NewValueError(col, row, v)
		}
		return n, nil
	}

	coord := func(col string) (float64, error) {
		v, err := text(col)
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.NewValueError(col, row, v)
		}
		return f, nil
	}

	var err error
	if a.RoadClass, err = enum(ColRoadClass, RoadClassCode); err != nil {
		return a, err
	}
	if a.Severity, err = enum(ColSeverity, SeverityCode); err != nil {
		return a, err
	}
	if a.Urban, err = enum(ColUrban, UrbanCode); err != nil {
		return a, err
	}
	if a.Hazards, err = flag(ColHazards, hazardsBaseline); err != nil {
		return a, err
	}
	if a.Junction, err = flag(ColJunction, junctionBaseline); err != nil {
		return a, err
	}
	if a.Dark, err = flag(ColLight, lightBaseline); err != nil {
		return a, err
	}
	if a.Wet, err = flag(ColSurface, surfaceBaseline); err != nil {
		return a, err
	}
	if a.Special, err = flag(ColSpecial, specialBaseline); err != nil {
		return a, err
	}
	if a.Weather, err = flag(ColWeather, weatherBaseline); err != nil {
		return a, err
	}

	roadType, err := text(ColRoadType)
	if err != nil {
		return a, err
	}
	a.RoadType = RoadTypeCode(roadType)

	vehicles, err := count(ColVehicles, 1)
	if err != nil {
		return a, err
	}
	a.Vehicles = VehicleBucket(vehicles)

	if a.Casualties, err = count(ColCasualties, 0); err != nil {
		return a, err
	}
	if a.Year, err = count(ColYear, 1); err != nil {
		return a, err
	}
	if a.Latitude, err = coord(ColLatitude); err != nil {
		return a, err
	}
	if a.Longitude, err = coord(ColLongitude); err != nil {
		return a, err
	}

	return a, nil
}

// parseWhole accepts "3" and "3.0" but not "3.5"
func parseWhole(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, strconv.ErrSyntax
	}
	return int(f), nil
}
