package opt

import (
	"log/slog"
	"math"
)

// ConvergenceConfig decides when repeated optimiser passes stop paying off.
type ConvergenceConfig struct {
	// Patience is the number of passes without significant improvement
	// before the tracker reports convergence.
	Patience int

	// Threshold is the minimum relative improvement that counts as progress,
	// measured against the last significant value.
	Threshold float64
}

// DefaultConvergenceConfig returns the settings used for automatic cycles.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Patience:  2,
		Threshold: 0.001,
	}
}

// ConvergenceTracker records the merit value after each pass and detects
// when it has stopped improving.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	best            float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a tracker with the given config.
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records the value of one pass and reports whether to stop.
// A value of zero cannot be improved on and converges immediately.
func (c *ConvergenceTracker) Update(value float64) bool {
	c.history = append(c.history, value)
	c.best = math.Min(c.best, value)

	if value <= 0 {
		return true
	}
	if len(c.history) == 1 {
		c.lastSignificant = value
		return false
	}

	improvement := (c.lastSignificant - value) / c.lastSignificant
	if improvement >= c.config.Threshold {
		c.lastSignificant = value
		c.staleCount = 0
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Debug("Optimisation converged",
			"passes", len(c.history),
			"best", c.best,
			"patience", c.config.Patience,
		)
		return true
	}
	return false
}

// Best returns the lowest value seen.
func (c *ConvergenceTracker) Best() float64 {
	return c.best
}

// History returns a copy of the recorded values.
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64(nil), c.history...)
}

// Passes returns the number of recorded passes.
func (c *ConvergenceTracker) Passes() int {
	return len(c.history)
}
