package validation

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadrisk/internal/errors"
	"roadrisk/internal/shared/testutil"
)

func TestValidateInputDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Accident_Information_1.csv"), []byte("a"), 0644))

	logger, _ := testutil.NewTestLogger(t)
	v := NewFileValidator(logger)

	assert.NoError(t, v.ValidateInputDirectory(dir, "Accident_Information"))
	assert.NoError(t, v.ValidateInputDirectory(dir, ""))

	err := v.ValidateInputDirectory(dir, "population_2")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeIO))

	err = v.ValidateInputDirectory(filepath.Join(dir, "missing"), "x")
	assert.True(t, errors.IsType(err, errors.ErrTypeIO))

	err = v.ValidateInputDirectory(filepath.Join(dir, "Accident_Information_1.csv"), "")
	assert.True(t, errors.IsType(err, errors.ErrTypeIO))
}

func TestValidateOutputDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	v := NewFileValidator(nil)

	require.NoError(t, v.ValidateOutputDirectory(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "districts.geojson")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0644))

	logger, handler := testutil.NewTestLogger(t)
	v := NewFileValidator(logger)

	assert.NoError(t, v.ValidateFile(file))
	assert.Error(t, v.ValidateFile(dir))

	err := v.ValidateFile(filepath.Join(dir, "absent.geojson"))
	require.Error(t, err)
	testutil.AssertLogContains(t, handler, slog.LevelError, "Input file not accessible")
}

func TestGlobEscape(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[`, globEscape("a*b?c["))
}
