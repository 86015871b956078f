package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/janelia-flyem/omerokv/memstore"
	"github.com/janelia-flyem/omerokv/omerokv"
)

// Seed creates a project and its datasets from a "project:dataset,dataset" spec.
func Seed(ctx context.Context, store *memstore.Store, spec string) error {
	parts := strings.SplitN(spec, ":", 2)
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return fmt.Errorf("seed %q has no project name", spec)
	}
	project, err := store.CreateProject(ctx, name)
	if err != nil {
		return err
	}
	omerokv.Infof("Seeded project %q (%d)\n", name, project)
	if len(parts) == 1 {
		return nil
	}
	for _, dataset := range strings.Split(parts[1], ",") {
		dataset = strings.TrimSpace(dataset)
		if dataset == "" {
			continue
		}
		id, err := store.CreateDataset(ctx, dataset, project)
		if err != nil {
			return err
		}
		omerokv.Infof("Seeded dataset %q (%d) in project %d\n", dataset, id, project)
	}
	return nil
}
