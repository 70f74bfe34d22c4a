package model

import "context"

// Loader is the interface for a format-specific definition loader. It reads
// component manifests and a pipeline definition from the given paths and
// translates them into the format-agnostic model.
type Loader interface {
	// LoadComponents reads every component manifest under the given paths.
	LoadComponents(ctx context.Context, paths ...string) (map[string]*Component, error)

	// LoadPipeline reads a single pipeline definition file.
	LoadPipeline(ctx context.Context, path string) (*Pipeline, error)
}
