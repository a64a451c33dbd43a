package model

import (
	"context"
	"fmt"

	"github.com/cwbudde/lensmount/internal/mount"
)

// Session applies mount combinations to a model. It implements mount.State.
type Session struct {
	model  Model
	breaks map[string]int
	cycles int
}

// NewSession binds a model to the coordinate break surface of every lens label.
func NewSession(m Model, breaks map[string]int, cycles int) *Session {
	return &Session{
		model:  m,
		breaks: breaks,
		cycles: cycles,
	}
}

// Apply writes all four axis parameters of a lens.
func (s *Session) Apply(ctx context.Context, label string, p mount.Params) error {
	surf, ok := s.breaks[label]
	if !ok {
		return fmt.Errorf("no coordinate break for lens %s", label)
	}
	return s.model.SetTiltDecentre(ctx, surf, p)
}

// Evaluate pushes the model and runs the configured optimisation cycles.
func (s *Session) Evaluate(ctx context.Context) (float64, error) {
	if err := s.model.Push(ctx); err != nil {
		return 0, fmt.Errorf("push: %w", err)
	}
	value, err := s.model.Optimise(ctx, s.cycles)
	if err != nil {
		return 0, fmt.Errorf("optimise: %w", err)
	}
	return value, nil
}
