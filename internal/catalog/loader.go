package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogFile represents the structure of a catalog YAML file.
type CatalogFile struct {
	Shapes      []Shape           `yaml:"shapes"`
	Algorithms  []Algorithm       `yaml:"algorithms"`
	ExitConfigs []ExitConfig      `yaml:"exit_configs"`
	Presets     map[string]string `yaml:"presets"`
}

// LoadFromYAML loads a catalog from a YAML file, replacing the built-in
// definitions wholesale. The file must pass the same consistency checks
// the defaults do.
func LoadFromYAML(filename string) (*Catalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	c := &Catalog{
		shapes:     file.Shapes,
		algorithms: file.Algorithms,
		exits:      file.ExitConfigs,
		presets:    file.Presets,
	}
	if c.presets == nil {
		c.presets = make(map[string]string)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", filename, err)
	}
	return c, nil
}
