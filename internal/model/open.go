package model

import (
	"context"
	"fmt"

	"github.com/cwbudde/lensmount/internal/opt"
)

// Backend kinds accepted by Open.
const (
	BackendSim    = "sim"
	BackendBridge = "bridge"
)

// Backend describes which model to open.
type Backend struct {
	Kind string

	// Bridge command line, used by BackendBridge.
	Command string
	Args    []string

	// Optimiser settings of the simulated model.
	Iterations int
	Population int
	Seed       int64
}

// Open creates the model selected by b.
func Open(ctx context.Context, b Backend) (Model, error) {
	switch b.Kind {
	case BackendSim, "":
		var opts []SimOption
		if b.Iterations > 0 {
			opts = append(opts, WithAutoCycles(b.Iterations))
		}
		if b.Population > 0 {
			pop, seed := b.Population, b.Seed
			opts = append(opts, WithOptimizer(func(iters int) opt.Optimizer {
				return opt.NewMayfly(iters, pop, seed)
			}))
		}
		return NewSim(opts...), nil
	case BackendBridge:
		if b.Command == "" {
			return nil, fmt.Errorf("bridge backend requires a command")
		}
		return StartBridge(ctx, b.Command, b.Args...)
	default:
		return nil, fmt.Errorf("unknown model backend %q (want %s or %s)", b.Kind, BackendSim, BackendBridge)
	}
}
