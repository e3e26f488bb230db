package cleaning

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-gota/gota/dataframe"

	"roadrisk/internal/errors"
)

const reportHeader = "Missing Values in the dataset:"

// ColumnMissing is the missing-value count of one column
type ColumnMissing struct {
	Column  string
	Missing int
	Total   int
}

// Ratio is Missing/Total rounded to three decimals
func (m ColumnMissing) Ratio() float64 {
	if m.Total == 0 {
		return 0
	}
	return math.Round(float64(m.Missing)/float64(m.Total)*1000) / 1000
}

// CountMissing counts missing cells per column, in column order
func CountMissing(df dataframe.DataFrame) []ColumnMissing {
	total := df.Nrow()
	counts := make([]ColumnMissing, 0, df.Ncol())
	for _, name := range df.Names() {
		n := 0
		for _, isNaN := range df.Col(name).IsNaN() {
			if isNaN {
				n++
			}
		}
		counts = append(counts, ColumnMissing{Column: name, Missing: n, Total: total})
	}
	return counts
}

// FormatMissingReport writes the plain-text report to w
func FormatMissingReport(w io.Writer, counts []ColumnMissing) error {
	if _, err := fmt.Fprintln(w, reportHeader); err != nil {
		return err
	}
	for _, c := range counts {
		var err error
		if c.Missing > 0 {
			_, err = fmt.Fprintf(w, "[ MISSING VALUES ] %s : %d. Ratio to all records: %s\n",
				c.Column, c.Missing, strconv.FormatFloat(c.Ratio(), 'f', -1, 64))
		} else {
			_, err = fmt.Fprintf(w, "%s : 0\n", c.Column)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteMissingReport writes the report to path, replacing any previous one
func WriteMissingReport(path string, counts []ColumnMissing) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewIOError(path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.NewIOError(path, err)
	}

	w := bufio.NewWriter(f)
	if err := FormatMissingReport(w, counts); err != nil {
		f.Close()
		return errors.NewIOError(path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.NewIOError(path, err)
	}
	return f.Close()
}
