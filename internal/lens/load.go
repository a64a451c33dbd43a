package lens

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a lens configuration from a JSON or YAML file and validates it.
func Load(path string) (*Config, error) {
	var parser koanf.Parser = kyaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parser = kjson.Parser()
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to read lens config %s: %w", path, err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode lens config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lens config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the configuration as YAML when path ends in .yaml or .yml and
// as indented JSON otherwise.
func (c *Config) Save(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "    ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to serialize lens config: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write lens config: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename lens config: %w", err)
	}
	return nil
}

// MergedPath returns where merged measured data for the configuration at
// path is written by default: next to it, with ".new" before the extension.
func MergedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".new" + ext
}

// Validate checks the configuration for values the harness cannot work with.
func (c *Config) Validate() error {
	if len(c.Lenses) == 0 {
		return fmt.Errorf("at least one lens must be defined")
	}

	labels := make(map[string]bool, len(c.Lenses))
	for _, l := range c.Lenses {
		if l.Label == "" {
			return fmt.Errorf("lens label cannot be empty")
		}
		if labels[l.Label] {
			return fmt.Errorf("duplicate lens label: %s", l.Label)
		}
		labels[l.Label] = true

		if l.StartSurface < 1 {
			return fmt.Errorf("lens %s: start_surface_number must be positive", l.Label)
		}
		if l.EndSurface < l.StartSurface {
			return fmt.Errorf("lens %s: end_surface_number %d is before start_surface_number %d", l.Label, l.EndSurface, l.StartSurface)
		}
		if l.MinAirGap > l.MaxAirGap {
			return fmt.Errorf("lens %s: min_air_gap %g exceeds max_air_gap %g", l.Label, l.MinAirGap, l.MaxAirGap)
		}

		positions := make(map[int]bool, len(l.Data))
		for _, m := range l.Data {
			if m.Position < 1 {
				return fmt.Errorf("lens %s: mount_position must be positive, got %d", l.Label, m.Position)
			}
			if positions[m.Position] {
				return fmt.Errorf("lens %s: duplicate mount_position %d", l.Label, m.Position)
			}
			positions[m.Position] = true

			for _, a := range m.Axes {
				if a.Type == "" {
					return fmt.Errorf("lens %s mount %d: axis_type cannot be empty", l.Label, m.Position)
				}
			}
		}
	}

	sorted := c.SortedByStart()
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.StartSurface <= prev.EndSurface {
			return fmt.Errorf("lens %s surfaces %d-%d overlap lens %s surfaces %d-%d",
				cur.Label, cur.StartSurface, cur.EndSurface, prev.Label, prev.StartSurface, prev.EndSurface)
		}
	}
	return nil
}
