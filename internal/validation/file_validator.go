package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"roadrisk/internal/errors"
)

// FileValidator checks pipeline inputs and outputs before a step runs
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger.With(slog.String("component", "file_validator")),
	}
}

// ValidateInputDirectory checks that dir exists and holds at least one file
// whose name starts with prefix.
func (v *FileValidator) ValidateInputDirectory(dir, prefix string) error {
	info, err := os.Stat(dir)
	if err != nil {
		v.logger.Error("Input directory not accessible",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return errors.NewIOError(dir, err)
	}
	if !info.IsDir() {
		return errors.NewIOError(dir, fmt.Errorf("not a directory"))
	}

	if prefix == "" {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, globEscape(prefix)+"*"))
	if err != nil {
		return errors.NewIOError(dir, err)
	}
	if len(matches) == 0 {
		v.logger.Error("No input files found",
			slog.String("directory", dir),
			slog.String("prefix", prefix))
		return errors.NewIOError(dir, fmt.Errorf("no files starting with %q", prefix))
	}

	v.logger.Debug("Input directory validated",
		slog.String("directory", dir),
		slog.Int("files_found", len(matches)))
	return nil
}

// ValidateOutputDirectory ensures dir exists and is writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return errors.NewIOError(dir, err)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return errors.NewIOError(dir, err)
	}
	file.Close()
	os.Remove(testFile)

	return nil
}

// ValidateFile checks that path exists and is a regular file
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		v.logger.Error("Input file not accessible",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return errors.NewIOError(path, err)
	}
	if info.IsDir() {
		return errors.NewIOError(path, fmt.Errorf("is a directory, not a file"))
	}
	return nil
}

func globEscape(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
