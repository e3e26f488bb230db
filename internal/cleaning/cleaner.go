package cleaning

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"roadrisk/internal/errors"
)

// Result summarises one cleaning run
type Result struct {
	RowsLoaded  int
	RowsDropped int
	RowsKept    int
	Missing     []ColumnMissing
	OutputPath  string
}

// Cleaner selects the configured attributes from the raw accident table,
// reports missing values and drops incomplete rows.
type Cleaner struct {
	attributes []string
	nanValues  []string
	logger     *slog.Logger
}

// NewCleaner reads the attribute list from attributesFile. A missing or
// empty list is a construction error.
func NewCleaner(attributesFile string, nanValues []string, logger *slog.Logger) (*Cleaner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	attributes, err := LoadAttributes(attributesFile)
	if err != nil {
		return nil, err
	}

	return &Cleaner{
		attributes: attributes,
		nanValues:  nanValues,
		logger:     logger.With(slog.String("component", "cleaner")),
	}, nil
}

// LoadAttributes reads one attribute name per line, skipping blank lines
func LoadAttributes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError(path, err)
	}
	defer f.Close()

	var attributes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if attr := strings.TrimSpace(scanner.Text()); attr != "" {
			attributes = append(attributes, attr)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewIOError(path, err)
	}
	if len(attributes) == 0 {
		return nil, errors.NewConfigError(fmt.Sprintf("attribute list %s is empty", path), nil)
	}

	return attributes, nil
}

// Attributes returns a copy of the selected attribute names
func (c *Cleaner) Attributes() []string {
	return append([]string(nil), c.attributes...)
}

// Load reads every chunk as an all-string table and concatenates them.
// The chunks are merged as records and reloaded once so that missing cells
// from every chunk keep their missing flag.
func (c *Cleaner) Load(paths []string) (dataframe.DataFrame, error) {
	if len(paths) == 0 {
		return dataframe.DataFrame{}, errors.NewIOError("accident dataset", fmt.Errorf("no input files"))
	}

	var (
		header  []string
		records [][]string
	)
	for i, path := range paths {
		df, err := ReadTable(path, c.nanValues)
		if err != nil {
			return dataframe.DataFrame{}, err
		}

		c.logger.Debug("Loaded dataset chunk",
			slog.String("file", filepath.Base(path)),
			slog.Int("rows", df.Nrow()))

		if len(paths) == 1 {
			return df, nil
		}

		chunk := df.Records()
		if i == 0 {
			header = chunk[0]
			records = append(records, header)
		} else if !slices.Equal(header, chunk[0]) {
			return dataframe.DataFrame{}, errors.NewIOError(path,
				fmt.Errorf("chunk columns %v do not match %v", chunk[0], header))
		}
		records = append(records, chunk[1:]...)
	}

	combined := dataframe.LoadRecords(records, loadOptions(append(slices.Clone(c.nanValues), missingMarker))...)
	if combined.Err != nil {
		return dataframe.DataFrame{}, errors.NewIOError(paths[0], fmt.Errorf("concatenate chunks: %w", combined.Err))
	}
	return combined, nil
}

// missingMarker is how a missing string cell renders in df.Records()
const missingMarker = "NaN"

func loadOptions(nanValues []string) []dataframe.LoadOption {
	opts := []dataframe.LoadOption{
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	}
	if len(nanValues) > 0 {
		opts = append(opts, dataframe.NaNValues(nanValues))
	}
	return opts
}

// ReadTable loads a CSV file without type detection; every column is a
// string series and nanValues mark missing cells.
func ReadTable(path string, nanValues []string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, errors.NewIOError(path, err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(bufio.NewReader(f), loadOptions(nanValues)...)
	if df.Err != nil {
		return dataframe.DataFrame{}, errors.NewIOError(path, df.Err)
	}
	return df, nil
}

// SelectAttributes keeps only the configured attributes, in list order
func (c *Cleaner) SelectAttributes(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if err := RequireColumns(df, "accident dataset", c.attributes...); err != nil {
		return dataframe.DataFrame{}, err
	}

	selected := df.Select(c.attributes)
	if selected.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("select attributes: %w", selected.Err)
	}
	return selected, nil
}

// RequireColumns returns a SchemaError naming the first absent column
func RequireColumns(df dataframe.DataFrame, table string, columns ...string) error {
	present := make(map[string]bool, df.Ncol())
	for _, name := range df.Names() {
		present[name] = true
	}
	for _, col := range columns {
		if !present[col] {
			return errors.NewSchemaError(col, table)
		}
	}
	return nil
}

// DropMissing removes every row holding at least one missing cell.
// It returns the kept table and the number of rows removed.
func DropMissing(df dataframe.DataFrame) (dataframe.DataFrame, int, error) {
	total := df.Nrow()
	missing := make([]bool, total)
	for _, name := range df.Names() {
		for i, isNaN := range df.Col(name).IsNaN() {
			if isNaN {
				missing[i] = true
			}
		}
	}

	keep := make([]int, 0, total)
	for i, m := range missing {
		if !m {
			keep = append(keep, i)
		}
	}

	if len(keep) == total {
		return df, 0, nil
	}
	if len(keep) == 0 {
		return dataframe.DataFrame{}, total, errors.NewValueError("*", -1, "every row has a missing value")
	}

	kept := df.Subset(keep)
	if kept.Err != nil {
		return dataframe.DataFrame{}, 0, fmt.Errorf("drop missing rows: %w", kept.Err)
	}
	return kept, total - len(keep), nil
}

// Save writes the table as CSV with a header row
func Save(df dataframe.DataFrame, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewIOError(path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.NewIOError(path, err)
	}

	w := bufio.NewWriter(f)
	if err := df.WriteCSV(w); err != nil {
		f.Close()
		return errors.NewIOError(path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.NewIOError(path, err)
	}
	return f.Close()
}

// Run loads, selects, reports, drops and saves in one pass
func (c *Cleaner) Run(ctx context.Context, inputs []string, reportPath, outputPath string) (*Result, error) {
	raw, err := c.Load(inputs)
	if err != nil {
		return nil, err
	}

	selected, err := c.SelectAttributes(raw)
	if err != nil {
		return nil, err
	}

	missing := CountMissing(selected)
	if err := WriteMissingReport(reportPath, missing); err != nil {
		return nil, err
	}

	cleaned, dropped, err := DropMissing(selected)
	if err != nil {
		return nil, err
	}

	if err := Save(cleaned, outputPath); err != nil {
		return nil, err
	}

	result := &Result{
		RowsLoaded:  selected.Nrow(),
		RowsDropped: dropped,
		RowsKept:    cleaned.Nrow(),
		Missing:     missing,
		OutputPath:  outputPath,
	}

	c.logger.InfoContext(ctx, "Dataset cleaned",
		slog.Int("files", len(inputs)),
		slog.Int("attributes", len(c.attributes)),
		slog.Int("rows_loaded", result.RowsLoaded),
		slog.Int("rows_dropped", result.RowsDropped),
		slog.String("output", outputPath))

	return result, nil
}
