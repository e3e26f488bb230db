package cleaning

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadrisk/internal/errors"
	"roadrisk/internal/shared/testutil"
)

var nanTokens = []string{"", "NA", "NaN"}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAttributes(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "attributes.txt", "Speed_limit\n\n  Year  \nAccident_Severity\n")
	attrs, err := LoadAttributes(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Speed_limit", "Year", "Accident_Severity"}, attrs)

	_, err = LoadAttributes(filepath.Join(dir, "absent.txt"))
	assert.True(t, errors.IsType(err, errors.ErrTypeIO))

	empty := writeFile(t, dir, "empty.txt", "\n\n")
	_, err = LoadAttributes(empty)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestCleaner_Run(t *testing.T) {
	dir := t.TempDir()
	attrs := writeFile(t, dir, "attributes.txt", "Speed_limit\nYear\nAccident_Severity\n")
	chunk1 := writeFile(t, dir, "Accident_Information_1.csv",
		"Accident_Index,Speed_limit,Year,Accident_Severity\n"+
			"A1,30,2015,Slight\n"+
			"A2,,2015,Serious\n")
	chunk2 := writeFile(t, dir, "Accident_Information_2.csv",
		"Accident_Index,Speed_limit,Year,Accident_Severity\n"+
			"A3,70,2016,Fatal\n"+
			"A4,60,2016,NA\n")

	logger, handler := testutil.NewTestLogger(t)
	c, err := NewCleaner(attrs, nanTokens, logger)
	require.NoError(t, err)

	report := filepath.Join(dir, "out", "Missing-values-report.txt")
	output := filepath.Join(dir, "work", "Optimized_Accidents_UK.csv")

	result, err := c.Run(context.Background(), []string{chunk1, chunk2}, report, output)
	require.NoError(t, err)

	assert.Equal(t, 4, result.RowsLoaded)
	assert.Equal(t, 2, result.RowsDropped)
	assert.Equal(t, 2, result.RowsKept)

	content, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Equal(t,
		"Missing Values in the dataset:\n"+
			"[ MISSING VALUES ] Speed_limit : 1. Ratio to all records: 0.25\n"+
			"Year : 0\n"+
			"[ MISSING VALUES ] Accident_Severity : 1. Ratio to all records: 0.25\n",
		string(content))

	cleaned, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(cleaned)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Speed_limit,Year,Accident_Severity", lines[0])
	assert.Equal(t, "30,2015,Slight", lines[1])
	assert.Equal(t, "70,2016,Fatal", lines[2])

	testutil.AssertLogAttr(t, handler, "rows_dropped", int64(2))
}

func TestCleaner_SelectAttributesMissingColumn(t *testing.T) {
	dir := t.TempDir()
	attrs := writeFile(t, dir, "attributes.txt", "Speed_limit\nWeather_Conditions\n")
	chunk := writeFile(t, dir, "chunk.csv", "Speed_limit,Year\n30,2015\n")

	c, err := NewCleaner(attrs, nanTokens, nil)
	require.NoError(t, err)

	df, err := c.Load([]string{chunk})
	require.NoError(t, err)

	_, err = c.SelectAttributes(df)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSchema))
	col, _ := errors.ContextValue(err, "column")
	assert.Equal(t, "Weather_Conditions", col)
}

func TestCleaner_LoadKeepsMissingAcrossChunks(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "a.csv", "Speed_limit,Year\n30,2015\n")
	second := writeFile(t, dir, "b.csv", "Speed_limit,Year\nNA,2016\n,2017\n")

	c := &Cleaner{nanValues: nanTokens, logger: testLogger(t)}
	df, err := c.Load([]string{first, second})
	require.NoError(t, err)
	require.Equal(t, 3, df.Nrow())

	assert.Equal(t, []bool{false, true, true}, df.Col("Speed_limit").IsNaN())
	counts := CountMissing(df)
	assert.Equal(t, 2, counts[0].Missing)
	assert.Equal(t, 0, counts[1].Missing)

	kept, dropped, err := DropMissing(df)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []string{"30"}, kept.Col("Speed_limit").Records())
}

func TestCleaner_LoadChunkColumnMismatch(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "a.csv", "Speed_limit,Year\n30,2015\n")
	second := writeFile(t, dir, "b.csv", "Year,Speed_limit\n2016,40\n")

	c := &Cleaner{nanValues: nanTokens, logger: testLogger(t)}
	_, err := c.Load([]string{first, second})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeIO))
}

func TestCleaner_LoadNoInputs(t *testing.T) {
	c := &Cleaner{logger: testLogger(t)}
	_, err := c.Load(nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeIO))
}

func TestMissingReport_RatioRounding(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatMissingReport(&buf, []ColumnMissing{
		{Column: "Speed_limit", Missing: 10, Total: 200},
		{Column: "Time", Missing: 1, Total: 3},
		{Column: "Year", Missing: 0, Total: 200},
	}))

	assert.Equal(t,
		"Missing Values in the dataset:\n"+
			"[ MISSING VALUES ] Speed_limit : 10. Ratio to all records: 0.05\n"+
			"[ MISSING VALUES ] Time : 1. Ratio to all records: 0.333\n"+
			"Year : 0\n",
		buf.String())
}

func TestCountMissing_LargeTable(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	sb.WriteString("Speed_limit,Year\n")
	for i := 0; i < 200; i++ {
		speed := "30"
		if i%20 == 0 {
			speed = ""
		}
		sb.WriteString(fmt.Sprintf("%s,2015\n", speed))
	}
	path := writeFile(t, dir, "big.csv", sb.String())

	df, err := ReadTable(path, nanTokens)
	require.NoError(t, err)

	counts := CountMissing(df)
	require.Len(t, counts, 2)
	assert.Equal(t, 10, counts[0].Missing)
	assert.Equal(t, 0.05, counts[0].Ratio())
	assert.Equal(t, 0, counts[1].Missing)
}

func TestDropMissing_AllRowsMissing(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.csv", "Speed_limit,Year\n,2015\nNA,2016\n")

	df, err := ReadTable(path, nanTokens)
	require.NoError(t, err)

	_, dropped, err := DropMissing(df)
	assert.Equal(t, 2, dropped)
	assert.True(t, errors.IsType(err, errors.ErrTypeValue))
}

func testLogger(t *testing.T) *slog.Logger {
	logger, _ := testutil.NewTestLogger(t)
	return logger
}
