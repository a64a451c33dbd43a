package opt

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// minPopulation is the smallest population the mayfly library accepts.
const minPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	if popSize < minPopulation {
		popSize = minPopulation
	}
	if maxIters < 1 {
		maxIters = 1
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
//
// The library only takes scalar bounds, so the search runs in the unit cube
// and positions are mapped onto [lower[i], upper[i]] before every evaluation.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	scale := func(unit []float64) []float64 {
		x := make([]float64, dim)
		for i := 0; i < dim; i++ {
			u := unit[i]
			if u < 0 {
				u = 0
			} else if u > 1 {
				u = 1
			}
			x[i] = lower[i] + u*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 {
		return eval(scale(unit))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the lower corner so callers always get a feasible point.
		slog.Warn("Mayfly optimization failed, using lower bounds", "error", err)
		start := make([]float64, dim)
		copy(start, lower)
		return start, eval(start)
	}

	return scale(result.GlobalBest.Position), result.GlobalBest.Cost
}
