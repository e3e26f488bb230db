package files

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Discovery provides file discovery operations
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

// FindByPrefix lists regular files in dir whose name starts with prefix and,
// when extensions are given, ends with one of them (case-insensitive).
// Results are sorted by name so chunk order is stable.
func (d *Discovery) FindByPrefix(dir, prefix string, extensions ...string) ([]FileInfo, error) {
	fullPath := d.resolve(dir)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !hasExtension(name, extensions) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, FileInfo{
			Path:    filepath.Join(fullPath, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})

	return files, nil
}

// FindPopulationFiles finds yearly population tables (CSV or XLSX)
func (d *Discovery) FindPopulationFiles(dir, prefix string) ([]FileInfo, error) {
	return d.FindByPrefix(dir, prefix, ".csv", ".xlsx")
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}

func hasExtension(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

var digitRun = regexp.MustCompile(`[0-9]+`)

// YearFromName returns the first run of digits in a file name as a year,
// e.g. population_2015.csv -> 2015.
func YearFromName(name string) (int, error) {
	match := digitRun.FindString(filepath.Base(name))
	if match == "" {
		return 0, fmt.Errorf("no year in file name %q", name)
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0, fmt.Errorf("invalid year in file name %q: %w", name, err)
	}
	return year, nil
}

// Stem returns the file name without directory and extension
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
