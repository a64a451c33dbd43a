// Package opt wraps continuous optimisers behind a small interface.
package opt

// Optimizer minimises an objective over a bounded box.
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: per-dimension parameter bounds
	// dim: dimensionality of parameter space
	// Returns: best parameters and best cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}
