package main

import (
	"context"

	"github.com/cwbudde/lensmount/internal/model"
)

// openModel opens the optical model named by backend, falling back to the
// configured backend when it is empty.
func openModel(ctx context.Context, backend string) (model.Model, error) {
	if backend == "" {
		backend = settings.Backend
	}
	command, args := settings.BridgeArgs()
	return model.Open(ctx, model.Backend{
		Kind:       backend,
		Command:    command,
		Args:       args,
		Iterations: settings.Iterations,
		Population: settings.Population,
		Seed:       settings.Seed,
	})
}

// dataDir returns the run store root, preferring an explicit flag value.
func dataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return settings.DataDir
}
