package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// Paths contains every file location the pipeline reads or writes.
// It is built once from PathsConfig; stages never assemble paths themselves.
type Paths struct {
	BaseDir        string
	InputDir       string
	AttributesFile string
	DistrictsFile  string
	PopulationDir  string
	WorkDir        string
	OutputDir      string
	ReportFile     string
	LogsDir        string

	AccidentsPrefix string
}

// NewPaths resolves the configured locations against BaseDir.
// An empty BaseDir means the current working directory.
func NewPaths(cfg PathsConfig) (*Paths, error) {
	base := cfg.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		base = wd
	}

	base, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	p := &Paths{BaseDir: base, AccidentsPrefix: cfg.AccidentsPrefix}
	p.InputDir = p.Join(cfg.InputDir)
	p.AttributesFile = p.Join(cfg.AttributesFile)
	p.DistrictsFile = p.Join(cfg.DistrictsFile)
	p.PopulationDir = p.Join(cfg.PopulationDir)
	p.WorkDir = p.Join(cfg.WorkDir)
	p.OutputDir = p.Join(cfg.OutputDir)
	p.ReportFile = p.Join(cfg.ReportFile)
	if cfg.LogsDir != "" {
		p.LogsDir = p.Join(cfg.LogsDir)
	}

	return p, nil
}

// Join resolves elem against BaseDir. Absolute elements are returned cleaned.
func (p *Paths) Join(elem ...string) string {
	joined := filepath.Join(elem...)
	if filepath.IsAbs(joined) {
		return filepath.Clean(joined)
	}
	return filepath.Join(p.BaseDir, joined)
}

// EnsureDirectories creates the writable directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{p.WorkDir, p.OutputDir, filepath.Dir(p.ReportFile)}
	if p.LogsDir != "" {
		directories = append(directories, p.LogsDir)
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("Ensured directory exists", slog.String("directory", dir))
	}

	return nil
}

// CleanedDatasetPath returns the cleaned accident table written by the cleaning step
func (p *Paths) CleanedDatasetPath(datasetName string) string {
	return filepath.Join(p.WorkDir, CleanedFilePrefix+datasetName+".csv")
}

// AggregatedPath returns the per-year aggregated geospatial file
func (p *Paths) AggregatedPath(year int) string {
	return filepath.Join(p.OutputDir, AggregatedFilePrefix+strconv.Itoa(year)+GeoJSONExt)
}

// PopulationByDistrictPath returns the merged population table
func (p *Paths) PopulationByDistrictPath() string {
	return filepath.Join(p.WorkDir, PopulationMergedFile)
}

// NormalizedPath returns the normalized geospatial output
func (p *Paths) NormalizedPath() string {
	return filepath.Join(p.OutputDir, NormalizedFileStem+GeoJSONExt)
}

// NormalizedWorkbookPath returns the spreadsheet copy of the normalized table
func (p *Paths) NormalizedWorkbookPath() string {
	return filepath.Join(p.OutputDir, NormalizedFileStem+".xlsx")
}

// GWRDesignPath returns the regression design matrix consumed by the GWR calibrator
func (p *Paths) GWRDesignPath() string {
	return filepath.Join(p.OutputDir, GWRDesignFile)
}

// LogPathResolution logs all resolved paths for debugging
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Path resolution",
		slog.String("base_dir", p.BaseDir),
		slog.String("input_dir", p.InputDir),
		slog.String("districts_file", p.DistrictsFile),
		slog.String("population_dir", p.PopulationDir),
		slog.String("work_dir", p.WorkDir),
		slog.String("output_dir", p.OutputDir),
		slog.String("report_file", p.ReportFile),
	)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
