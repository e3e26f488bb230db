package recoder

import (
	"context"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadrisk/internal/errors"
	"roadrisk/internal/shared/testutil"
)

var header = []string{
	"Accident_Index", ColRoadClass, ColSeverity, ColHazards, ColJunction, ColLight,
	ColCasualties, ColVehicles, ColSurface, ColRoadType, ColSpecial,
	ColSpeed, ColTime, ColUrban, ColWeather, ColYear, ColLatitude, ColLongitude,
}

// row builds a raw record with baseline values; overrides are keyed by column.
func row(overrides map[string]string) []string {
	base := map[string]string{
		"Accident_Index": "201501",
		ColRoadClass:     "A",
		ColSeverity:      "Slight",
		ColHazards:       "None",
		ColJunction:      "Not at junction or within 20 metres",
		ColLight:         "Daylight",
		ColCasualties:    "1",
		ColVehicles:      "2",
		ColSurface:       "Dry",
		ColRoadType:      "Single carriageway",
		ColSpecial:       "None",
		ColSpeed:         "30",
		ColTime:          "17:42",
		ColUrban:         "Urban",
		ColWeather:       "Fine no high winds",
		ColYear:          "2015",
		ColLatitude:      "53.959",
		ColLongitude:     "-1.0815",
	}
	for k, v := range overrides {
		base[k] = v
	}
	out := make([]string, len(header))
	for i, col := range header {
		out[i] = base[col]
	}
	return out
}

func frame(t *testing.T, head []string, rows ...[]string) dataframe.DataFrame {
	t.Helper()
	records := append([][]string{head}, rows...)
	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{"", "NA"}),
	)
	require.NoError(t, df.Err)
	return df
}

func TestRecode_BaselineRow(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	r := NewRecoder(logger)

	accidents, stats, err := r.Recode(context.Background(), frame(t, header, row(nil)))
	require.NoError(t, err)
	require.Len(t, accidents, 1)

	a := accidents[0]
	assert.Equal(t, 0, a.RoadClass)
	assert.Equal(t, 0, a.Severity)
	assert.Equal(t, 0, a.Hazards)
	assert.Equal(t, 0, a.Junction)
	assert.Equal(t, 0, a.Dark)
	assert.Equal(t, 2, a.Vehicles)
	assert.Equal(t, 0, a.Wet)
	assert.Equal(t, 0, a.RoadType)
	assert.Equal(t, 0, a.Special)
	assert.Equal(t, 0, a.Speed)
	assert.Equal(t, 1, a.Urban)
	assert.Equal(t, 0, a.Weather)
	assert.Equal(t, 1, a.Casualties)
	assert.Equal(t, 2015, a.Year)
	assert.InDelta(t, 53.959, a.Latitude, 1e-9)
	assert.Equal(t, "17:42", a.Time)

	assert.Equal(t, []string{"Accident_Index"}, stats.PrunedColumns)
	testutil.AssertLogAttr(t, handler, "rows_out", int64(1))
}

func TestRecode_CodeTables(t *testing.T) {
	cases := []struct {
		col   string
		value string
		pick  func(r []int) int
		want  int
	}{
		{ColRoadClass, "A(M)", pickRoadClass, 0},
		{ColRoadClass, "Motorway", pickRoadClass, 0},
		{ColRoadClass, "B", pickRoadClass, 1},
		{ColRoadClass, "C", pickRoadClass, 2},
		{ColRoadClass, "Unclassified", pickRoadClass, 3},
		{ColSeverity, "Serious", pickSeverity, 1},
		{ColSeverity, "Fatal", pickSeverity, 2},
		{ColUrban, "Rural", pickUrban, 0},
		{ColUrban, "Unallocated", pickUrban, 1},
		{ColRoadType, "Dual carriageway", pickRoadType, 1},
		{ColRoadType, "Roundabout", pickRoadType, 2},
		{ColRoadType, "Slip road", pickRoadType, 2},
		{ColHazards, "Previous accident", pickHazards, 1},
		{ColJunction, "T or staggered junction", pickJunction, 1},
		{ColLight, "Darkness - lights lit", pickDark, 1},
		{ColSurface, "Data missing or out of range", pickWet, 0},
		{ColSurface, "Wet or damp", pickWet, 1},
		{ColSurface, "Snow", pickWet, 1},
		{ColSpecial, "Roadworks", pickSpecial, 1},
		{ColWeather, "Unknown", pickWeather, 0},
		{ColWeather, "Data missing or out of range", pickWeather, 0},
		{ColWeather, "Raining no high winds", pickWeather, 1},
		{ColWeather, "Fog or mist", pickWeather, 1},
		{ColVehicles, "1", pickVehicles, 1},
		{ColVehicles, "4", pickVehicles, 4},
		{ColVehicles, "5", pickVehicles, 5},
		{ColVehicles, "7", pickVehicles, 5},
		{ColVehicles, "12.0", pickVehicles, 5},
	}

	r := NewRecoder(nil)
	for _, tc := range cases {
		t.Run(tc.col+"="+tc.value, func(t *testing.T) {
			accidents, _, err := r.Recode(context.Background(), frame(t, header, row(map[string]string{tc.col: tc.value})))
			require.NoError(t, err)
			require.Len(t, accidents, 1)
			codes := accidents[0].Codes()
			assert.Equal(t, tc.want, tc.pick(codes[:]))
		})
	}
}

func pickRoadClass(c []int) int { return c[0] }
func pickSeverity(c []int) int  { return c[1] }
func pickHazards(c []int) int   { return c[2] }
func pickJunction(c []int) int  { return c[3] }
func pickDark(c []int) int      { return c[4] }
func pickVehicles(c []int) int  { return c[5] }
func pickWet(c []int) int       { return c[6] }
func pickRoadType(c []int) int  { return c[7] }
func pickSpecial(c []int) int   { return c[8] }
func pickUrban(c []int) int     { return c[10] }
func pickWeather(c []int) int   { return c[11] }

func TestRecode_SpeedBandsAndDrops(t *testing.T) {
	df := frame(t, header,
		row(map[string]string{ColSpeed: "20"}),
		row(map[string]string{ColSpeed: "30"}),
		row(map[string]string{ColSpeed: "31"}),
		row(map[string]string{ColSpeed: "59"}),
		row(map[string]string{ColSpeed: "60"}),
		row(map[string]string{ColSpeed: "70"}),
		row(map[string]string{ColSpeed: ""}),
		row(map[string]string{ColSpeed: "NA"}),
		row(map[string]string{ColSpeed: "unknown"}),
	)

	accidents, stats, err := NewRecoder(nil).Recode(context.Background(), df)
	require.NoError(t, err)

	var bands []int
	for _, a := range accidents {
		bands = append(bands, a.Speed)
	}
	assert.Equal(t, []int{0, 0, 1, 1, 2, 2}, bands)
	assert.Equal(t, 9, stats.RowsIn)
	assert.Equal(t, 6, stats.RowsOut)
	assert.Equal(t, 3, stats.DroppedNoSpeed)
}

func TestRecode_DomainClosure(t *testing.T) {
	df := frame(t, header,
		row(map[string]string{ColRoadClass: "Unclassified", ColVehicles: "9", ColSpeed: "40"}),
		row(map[string]string{ColSeverity: "Fatal", ColLight: "Darkness - no lighting", ColSpeed: "60"}),
		row(map[string]string{ColRoadType: "One way street", ColUrban: "Rural", ColWeather: "Other"}),
	)

	accidents, _, err := NewRecoder(nil).Recode(context.Background(), df)
	require.NoError(t, err)
	for _, a := range accidents {
		attr, ok := a.Codes().InDomain()
		assert.True(t, ok, "attribute %s out of domain", attr)
	}
}

func TestRecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		df      func(t *testing.T) dataframe.DataFrame
		errType errors.ErrorType
		column  string
	}{
		{
			name: "missing required column",
			df: func(t *testing.T) dataframe.DataFrame {
				head := []string{ColRoadClass, ColSeverity}
				return frame(t, head, []string{"A", "Slight"})
			},
			errType: errors.ErrTypeSchema,
			column:  ColHazards,
		},
		{
			name: "unknown severity",
			df: func(t *testing.T) dataframe.DataFrame {
				return frame(t, header, row(map[string]string{ColSeverity: "Minor"}))
			},
			errType: errors.ErrTypeValue,
			column:  ColSeverity,
		},
		{
			name: "unknown road class",
			df: func(t *testing.T) dataframe.DataFrame {
				return frame(t, header, row(map[string]string{ColRoadClass: "D"}))
			},
			errType: errors.ErrTypeValue,
			column:  ColRoadClass,
		},
		{
			name: "zero vehicles",
			df: func(t *testing.T) dataframe.DataFrame {
				return frame(t, header, row(map[string]string{ColVehicles: "0"}))
			},
			errType: errors.ErrTypeValue,
			column:  ColVehicles,
		},
		{
			name: "negative casualties",
			df: func(t *testing.T) dataframe.DataFrame {
				return frame(t, header, row(map[string]string{ColCasualties: "-1"}))
			},
			errType: errors.ErrTypeValue,
			column:  ColCasualties,
		},
		{
			name: "missing weather",
			df: func(t *testing.T) dataframe.DataFrame {
				return frame(t, header, row(map[string]string{ColWeather: ""}))
			},
			errType: errors.ErrTypeValue,
			column:  ColWeather,
		},
		{
			name: "bad latitude",
			df: func(t *testing.T) dataframe.DataFrame {
				return frame(t, header, row(map[string]string{ColLatitude: "north"}))
			},
			errType: errors.ErrTypeValue,
			column:  ColLatitude,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewRecoder(nil).Recode(context.Background(), tt.df(t))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.errType), "got %v", err)
			col, _ := errors.ContextValue(err, "column")
			assert.Equal(t, tt.column, col)
		})
	}
}

func TestRecode_AlreadyRecodedTableFailsCleanly(t *testing.T) {
	recoded := []string{"road_class", "severity", "hazards", "junction", "dark", "casualties",
		"vehicles", "wet", "road_type", "special", "speed", "urban", "weather", "year"}
	df := frame(t, recoded, []string{"0", "0", "0", "0", "0", "1", "2", "0", "0", "0", "0", "1", "0", "2015"})

	_, _, err := NewRecoder(nil).Recode(context.Background(), df)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSchema))
	col, _ := errors.ContextValue(err, "column")
	assert.Equal(t, ColRoadClass, col)
}

func TestRecode_DoesNotMutateInput(t *testing.T) {
	df := frame(t, header, row(map[string]string{ColSeverity: "Fatal"}))
	before := df.Records()

	_, _, err := NewRecoder(nil).Recode(context.Background(), df)
	require.NoError(t, err)
	assert.Equal(t, before, df.Records())
}

func TestRecode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewRecoder(nil).Recode(ctx, frame(t, header, row(nil)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpeedBand(t *testing.T) {
	assert.Equal(t, 0, SpeedBand(30))
	assert.Equal(t, 1, SpeedBand(31))
	assert.Equal(t, 1, SpeedBand(59))
	assert.Equal(t, 2, SpeedBand(60))
}

func TestVehicleBucket(t *testing.T) {
	assert.Equal(t, 3, VehicleBucket(3))
	assert.Equal(t, 5, VehicleBucket(5))
	assert.Equal(t, 5, VehicleBucket(6))
}
