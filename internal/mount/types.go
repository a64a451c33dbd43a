// Package mount enumerates lens mount-position combinations, scores them
// against an external model and picks the best one.
package mount

import (
	"context"
	"fmt"
)

// Tag identifies one candidate: a group label and a mount position.
type Tag struct {
	Label    string `json:"label" yaml:"label"`
	Position int    `json:"position" yaml:"position"`
}

func (t Tag) String() string {
	return fmt.Sprintf("%s@%d", t.Label, t.Position)
}

// Params holds the axis parameters of a mounted element.
// Decentres are in lens units, tilts in degrees.
type Params struct {
	XDecentre float64 `json:"xDecentre" yaml:"x_decentre"`
	YDecentre float64 `json:"yDecentre" yaml:"y_decentre"`
	XTilt     float64 `json:"xTilt" yaml:"x_tilt"`
	YTilt     float64 `json:"yTilt" yaml:"y_tilt"`
}

// Candidate is one mount position of a group. Axes is keyed by axis type.
type Candidate struct {
	Tag
	Axes map[string]Params
}

// Group is a labeled set of candidate mount positions.
type Group struct {
	Label      string
	Candidates []Candidate
}

// Combination holds exactly one candidate per group, in group order.
type Combination []Candidate

// Tags returns the (label, position) pairs of the combination.
func (c Combination) Tags() []Tag {
	tags := make([]Tag, len(c))
	for i, cand := range c {
		tags[i] = cand.Tag
	}
	return tags
}

func (c Combination) String() string {
	return describeTags(c.Tags())
}

// State is a handle on the external model that combinations are applied to.
// Implementations are not expected to be safe for concurrent use.
type State interface {
	// Apply overwrites the axis parameters of the element with the given label.
	Apply(ctx context.Context, label string, p Params) error

	// Evaluate returns the merit value of the current model state. Lower is better.
	Evaluate(ctx context.Context) (float64, error)
}
