package cmd

import (
	"context"

	"github.com/kyleking/d3-pipeline/internal/config"
	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/storage"
)

// pipelineDeps bundles the collaborators a build needs. Commands accept
// it so tests can substitute fakes.
type pipelineDeps struct {
	metadata  storage.MetadataStore
	sources   storage.SourceOpener
	deliverer storage.Deliverer
	publisher storage.MetadataPublisher
	closers   []func() error
}

func (d *pipelineDeps) Close() error {
	var first error

	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// initializeMetadataStore connects to the workspace database
func initializeMetadataStore(ctx context.Context, cfg *config.Config) (*storage.SQLMetadataStore, error) {
	db, err := storage.Open(ctx, cfg.Workspace, cfg.Workspace.DBName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to connect to workspace database")
	}

	return storage.NewSQLMetadataStore(db), nil
}

// initializeStorage opens the workspace and destination databases. Source
// connections are opened per edition during the build.
func initializeStorage(ctx context.Context, cfg *config.Config) (*pipelineDeps, error) {
	store, err := initializeMetadataStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps := &pipelineDeps{
		metadata: store,
		sources:  storage.NewSQLSourceOpener(cfg.Source),
		closers:  []func() error{store.Close},
	}

	dest, err := storage.Open(ctx, cfg.Destination, cfg.Destination.DBName)
	if err != nil {
		_ = deps.Close()
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to connect to destination database")
	}

	deps.deliverer = storage.NewSQLDeliverer(dest, cfg.Delivery.BatchSize)
	deps.publisher = storage.NewCRPublisher(dest)
	deps.closers = append(deps.closers, dest.Close)

	return deps, nil
}
