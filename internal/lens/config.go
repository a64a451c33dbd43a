// Package lens holds the lens assembly configuration: which surfaces belong
// to which lens, the allowed air gaps, and the measured decentres and tilts
// of every mount position.
package lens

import (
	"sort"

	"github.com/cwbudde/lensmount/internal/mount"
)

// DefaultAxisType is the axis type used when none is requested.
const DefaultAxisType = "OPTICAL"

// Config is the lens assembly configuration file.
type Config struct {
	General General `koanf:"GENERAL" json:"GENERAL" yaml:"GENERAL"`
	Lenses  []Lens  `koanf:"LENSES" json:"LENSES" yaml:"LENSES"`
}

// General points at the optical model and merit function files.
type General struct {
	ModelFile string `koanf:"zmx_file" json:"zmx_file" yaml:"zmx_file"`
	MeritDir  string `koanf:"zpl_path" json:"zpl_path,omitempty" yaml:"zpl_path,omitempty"`
	MeritFile string `koanf:"zpl_filename" json:"zpl_filename,omitempty" yaml:"zpl_filename,omitempty"`
}

// Lens describes one mounted element and its measured mount positions.
type Lens struct {
	Label        string  `koanf:"label" json:"label" yaml:"label"`
	StartSurface int     `koanf:"start_surface_number" json:"start_surface_number" yaml:"start_surface_number"`
	EndSurface   int     `koanf:"end_surface_number" json:"end_surface_number" yaml:"end_surface_number"`
	MinAirGap    float64 `koanf:"min_air_gap" json:"min_air_gap" yaml:"min_air_gap"`
	MaxAirGap    float64 `koanf:"max_air_gap" json:"max_air_gap" yaml:"max_air_gap"`
	Data         []Mount `koanf:"data" json:"data" yaml:"data"`
}

// Mount is one measured mount position.
type Mount struct {
	Position int    `koanf:"mount_position" json:"mount_position" yaml:"mount_position"`
	Axes     []Axis `koanf:"axis" json:"axis" yaml:"axis"`
}

// Axis is a decentre/tilt record for one axis type.
type Axis struct {
	Type      string  `koanf:"axis_type" json:"axis_type" yaml:"axis_type"`
	XDecentre float64 `koanf:"x_decentre" json:"x_decentre" yaml:"x_decentre"`
	YDecentre float64 `koanf:"y_decentre" json:"y_decentre" yaml:"y_decentre"`
	XTilt     float64 `koanf:"x_tilt" json:"x_tilt" yaml:"x_tilt"`
	YTilt     float64 `koanf:"y_tilt" json:"y_tilt" yaml:"y_tilt"`
}

// Params converts the record to selector parameters.
func (a Axis) Params() mount.Params {
	return mount.Params{
		XDecentre: a.XDecentre,
		YDecentre: a.YDecentre,
		XTilt:     a.XTilt,
		YTilt:     a.YTilt,
	}
}

// Entry returns the lens with the given label.
func (c *Config) Entry(label string) (*Lens, bool) {
	for i := range c.Lenses {
		if c.Lenses[i].Label == label {
			return &c.Lenses[i], true
		}
	}
	return nil, false
}

// Labels returns the lens labels in configuration order.
func (c *Config) Labels() []string {
	labels := make([]string, len(c.Lenses))
	for i, l := range c.Lenses {
		labels[i] = l.Label
	}
	return labels
}

// Lookup returns the axis parameters of a lens at a mount position.
func (c *Config) Lookup(label string, position int, axisType string) (mount.Params, error) {
	notFound := &mount.AxisDataNotFoundError{
		Tag:      mount.Tag{Label: label, Position: position},
		AxisType: axisType,
	}

	l, ok := c.Entry(label)
	if !ok {
		return mount.Params{}, notFound
	}
	for _, m := range l.Data {
		if m.Position != position {
			continue
		}
		for _, a := range m.Axes {
			if a.Type == axisType {
				return a.Params(), nil
			}
		}
	}
	return mount.Params{}, notFound
}

// Groups converts the lenses into selector groups, one per lens, in
// configuration order. If a mount lists an axis type twice the first record wins.
func (c *Config) Groups() []mount.Group {
	groups := make([]mount.Group, len(c.Lenses))
	for i, l := range c.Lenses {
		groups[i].Label = l.Label
		for _, m := range l.Data {
			axes := make(map[string]mount.Params, len(m.Axes))
			for _, a := range m.Axes {
				if _, dup := axes[a.Type]; !dup {
					axes[a.Type] = a.Params()
				}
			}
			groups[i].Candidates = append(groups[i].Candidates, mount.Candidate{
				Tag:  mount.Tag{Label: l.Label, Position: m.Position},
				Axes: axes,
			})
		}
	}
	return groups
}

// SortedByStart returns the lenses ordered by their first surface.
func (c *Config) SortedByStart() []Lens {
	sorted := make([]Lens, len(c.Lenses))
	copy(sorted, c.Lenses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartSurface < sorted[j].StartSurface
	})
	return sorted
}
