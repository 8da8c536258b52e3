package ingest

import (
	"context"

	"museum-discovery/models"
)

// Runner resolves a trigger into configured sources and runs them under the
// ingestion lock. It is shared by the HTTP trigger, the queue worker and the
// CLI.
type Runner struct {
	Sources  []SourceConfig
	Registry *Registry
	Deps     Deps
	Pipeline *Pipeline
	Lock     *Lock
}

// Run ingests the named source, or the default feed sources when name is
// empty. Unknown names are a validation error.
func (r *Runner) Run(ctx context.Context, name string) (models.IngestionSummary, error) {
	cfgs, err := Select(r.Sources, name)
	if err != nil {
		return models.IngestionSummary{}, err
	}
	registry := r.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	sources, err := registry.BuildAll(cfgs, r.Deps)
	if err != nil {
		return models.IngestionSummary{}, err
	}
	return r.Lock.RunExclusive(ctx, r.Pipeline, sources)
}
