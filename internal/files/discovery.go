package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"repgap/internal/ingest"
)

// FileInfo represents information about a discovered input file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	Format  ingest.Format
}

// Stem returns the file name without its extension.
func (f FileInfo) Stem() string {
	return strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
}

// Discovery provides input discovery relative to a base path
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

// FindInputs lists the analyzable files in dir, sorted by name.
func (d *Discovery) FindInputs(dir string) ([]FileInfo, error) {
	return d.find(dir, func(name string) bool { return true })
}

// FindByPattern lists the analyzable files in dir whose name matches a glob pattern.
func (d *Discovery) FindByPattern(dir, pattern string) ([]FileInfo, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return d.find(dir, func(name string) bool {
		ok, _ := filepath.Match(pattern, name)
		return ok
	})
}

func (d *Discovery) find(dir string, keep func(name string) bool) ([]FileInfo, error) {
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
		if IsTemporary(name) || !keep(name) {
			continue
		}
		format, err := ingest.DetectFormat(name)
		if err != nil {
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
			Format:  format,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// IsTemporary reports hidden files and office lock files.
func IsTemporary(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$")
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) || d.basePath == "" {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}
