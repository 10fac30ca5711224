package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"repgap/internal/gapanalysis"
)

//go:embed catalog.default.yaml
var defaultCatalogYAML []byte

// CatalogFile is the on-disk shape of a demographic catalog.
type CatalogFile struct {
	DefaultTarget *float64      `yaml:"default_target" validate:"omitempty,gte=0,lte=100"`
	Fields        []CatalogItem `yaml:"fields" validate:"required,min=1,dive"`
}

// CatalogItem is one demographic entry in a catalog file.
type CatalogItem struct {
	Name        string   `yaml:"name" validate:"required,max=64"`
	Label       string   `yaml:"label" validate:"required,max=128"`
	ShortLabel  string   `yaml:"short_label" validate:"omitempty,max=16"`
	Target      *float64 `yaml:"target" validate:"omitempty,gte=0,lte=100"`
	Aliases     []string `yaml:"aliases" validate:"omitempty,dive,required"`
	Group       string   `yaml:"group" validate:"omitempty,max=64"`
	Independent bool     `yaml:"independent"`
}

var catalogValidator = validator.New()

// DefaultCatalogYAML returns the embedded default catalog.
func DefaultCatalogYAML() []byte {
	return append([]byte(nil), defaultCatalogYAML...)
}

// LoadCatalog reads the catalog at path, or the embedded default when path
// is empty. fallbackTarget applies when the file sets no default_target.
func LoadCatalog(path string, fallbackTarget float64) (*gapanalysis.Catalog, error) {
	data := defaultCatalogYAML
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read catalog file: %w", err)
		}
	}
	return ParseCatalog(data, fallbackTarget)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte, fallbackTarget float64) (*gapanalysis.Catalog, error) {
	var file CatalogFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := catalogValidator.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	target := fallbackTarget
	if file.DefaultTarget != nil {
		target = *file.DefaultTarget
	}

	fields := make([]gapanalysis.DemographicField, len(file.Fields))
	for i, item := range file.Fields {
		fields[i] = gapanalysis.DemographicField{
			Name:        item.Name,
			Label:       item.Label,
			ShortLabel:  item.ShortLabel,
			Target:      item.Target,
			Aliases:     item.Aliases,
			Group:       item.Group,
			Independent: item.Independent,
		}
	}

	catalog, err := gapanalysis.NewCatalog(fields, target)
	if err != nil {
		return nil, err
	}
	// Alias collisions only surface when the registry is built.
	if _, err := gapanalysis.NewRegistry(catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}
