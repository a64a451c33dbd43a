// Package model drives an optical model: the external design application
// through its automation bridge, or the built-in simulated model.
package model

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cwbudde/lensmount/internal/mount"
)

// Optimisation cycle settings accepted by Optimise.
const (
	// CyclesNone evaluates the merit function without optimising.
	CyclesNone = -1
	// CyclesAuto lets the optimiser decide when to stop.
	CyclesAuto = 0
)

var (
	// ErrMeritRowNotFound is returned when no merit function row matches.
	ErrMeritRowNotFound = errors.New("merit function row not found")

	// ErrSurfaceNotFound is returned when no surface carries a comment.
	ErrSurfaceNotFound = errors.New("surface not found")
)

// MeritKind selects what the default merit function optimises for.
type MeritKind string

const (
	MeritSpot MeritKind = "SPOT"
	MeritWave MeritKind = "WAVE"
)

// ParseMeritKind accepts SPOT or WAVE in any case.
func ParseMeritKind(s string) (MeritKind, error) {
	switch MeritKind(strings.ToUpper(s)) {
	case MeritSpot:
		return MeritSpot, nil
	case MeritWave:
		return MeritWave, nil
	default:
		return "", fmt.Errorf("unknown merit function kind %q (want SPOT or WAVE)", s)
	}
}

// Breaks are the surfaces inserted around a tilted and decentred element.
type Breaks struct {
	Coord  int `json:"coord"`  // coordinate break carrying the decentres and tilts
	Return int `json:"return"` // return coordinate break (pickup of Coord)
	Dummy  int `json:"dummy"`  // dummy surface carrying the following air gap
}

// Model is the optical model the harness mutates. Surface numbers follow the
// design application: 0 is the object surface.
//
// Implementations hold a single shared model and are not safe for concurrent use.
type Model interface {
	Load(ctx context.Context, path string) error
	SurfaceCount(ctx context.Context) (int, error)

	Comment(ctx context.Context, surface int) (string, error)
	// SetComment replaces the comment, or prepends to it with ";" when appendTo is set.
	SetComment(ctx context.Context, surface int, comment string, appendTo bool) error

	InsertTiltDecentre(ctx context.Context, start, end int, p mount.Params) (Breaks, error)
	SetTiltDecentre(ctx context.Context, surface int, p mount.Params) error
	TiltDecentre(ctx context.Context, surface int) (mount.Params, error)

	Thickness(ctx context.Context, surface int) (float64, error)
	SetThicknessVariable(ctx context.Context, surface int) error

	CreateMerit(ctx context.Context, kind MeritKind) error
	FindMeritRow(ctx context.Context, op, comment string) (int, error)
	DeleteMeritRow(ctx context.Context, row int) error
	// InsertAirGapConstraint inserts minimum and maximum air gap rows at row.
	InsertAirGapConstraint(ctx context.Context, row, surface int, minGap, maxGap float64) error

	// Push commits pending edits to the model.
	Push(ctx context.Context) error
	// Optimise runs the optimiser for cycles and returns the merit value.
	Optimise(ctx context.Context, cycles int) (float64, error)

	Close() error
}

// FindSurfaceByComment returns the first surface with comment among its
// ";"-separated comment entries.
func FindSurfaceByComment(ctx context.Context, m Model, comment string) (int, error) {
	n, err := m.SurfaceCount(ctx)
	if err != nil {
		return 0, err
	}
	for surf := 1; surf < n; surf++ {
		c, err := m.Comment(ctx, surf)
		if err != nil {
			return 0, err
		}
		if slices.Contains(strings.Split(c, ";"), comment) {
			return surf, nil
		}
	}
	return 0, fmt.Errorf("%w: comment %q", ErrSurfaceNotFound, comment)
}
