package api

import (
	"context"

	"github.com/ritzau/module-graph/pkg/model"
)

// FactSource produces the dependency facts the module graph is built from.
// Implementations encapsulate file discovery and parsing; malformed input is
// skipped by the source and never reaches the graph builder.
type FactSource interface {
	// Name returns the name of the source (e.g., "DDI")
	Name() string

	// Load returns the facts found below root.
	// It should respect the context for cancellation.
	Load(ctx context.Context, root string) (*FactSet, error)
}

// FactSet is the output of one FactSource run
type FactSet struct {
	Facts   []model.Fact // Only facts with at least one provide
	Files   int          // Number of input files found
	Skipped int          // Number of input files that failed to load
}

// Invalidator is implemented by sources that cache per-file results
type Invalidator interface {
	// Forget drops any cached data for the given paths
	Forget(paths []string)
}
