package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"auraforce/backend/internal/repository"
	"auraforce/backend/pkg/models"
)

// Resolver cross-references parsed dependencies against deployed workflow
// records and the bundle's local directories.
type Resolver struct {
	store repository.Store
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store repository.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve attempts to bind every declared dependency to a physical path, in
// declaration order and without deduplication. Failure to resolve one
// dependency is recorded on its entry and never aborts the pass: the result
// always has exactly one entry per declared dependency.
func (r *Resolver) Resolve(ctx context.Context, parsed *ParsedWorkflow, bundleDir string) []models.DependencyResolution {
	results := make([]models.DependencyResolution, 0, len(parsed.Dependencies))

	for _, dep := range parsed.Dependencies {
		res := models.DependencyResolution{Name: dep.Name, Type: dep.Type}

		switch dep.Type {
		case models.NodeTypeSubWorkflow:
			w, err := r.store.GetWorkflowByName(ctx, dep.Name)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				res.Error = fmt.Sprintf("no deployed workflow named %q", dep.Name)
			case err != nil:
				res.Error = fmt.Sprintf("lookup failed: %v", err)
			case w.Status != models.WorkflowStatusDeployed:
				res.Error = fmt.Sprintf("workflow %q is not deployed (status %s)", dep.Name, w.Status)
			default:
				res.Resolved = true
				res.PhysicalPath = w.CCPath
			}
		default:
			full := filepath.Join(bundleDir, filepath.FromSlash(dep.Path))
			if _, err := os.Stat(full); err != nil {
				res.Error = fmt.Sprintf("%s file not found at %s", dep.Type, dep.Path)
			} else {
				res.Resolved = true
				res.PhysicalPath = full
			}
		}

		results = append(results, res)
	}

	return results
}
