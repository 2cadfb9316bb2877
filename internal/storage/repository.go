package storage

import (
	"context"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/rowset"
)

// MetadataStore reads table build recipes from the workspace database
type MetadataStore interface {
	GetTable(ctx context.Context, name string) (*catalog.Table, error)
	GetVariables(ctx context.Context, table string) ([]catalog.Variable, error)
	GetEdition(ctx context.Context, table, edition string) (*catalog.Edition, error)
	GetLatestEdition(ctx context.Context, table string) (*catalog.Edition, error)
	Close() error
}

// Aggregator runs a composed statement against a source database
type Aggregator interface {
	Aggregate(ctx context.Context, query string, columns []string) (*rowset.RowSet, error)
	Close() error
}

// SourceOpener connects to the source database an edition names
type SourceOpener interface {
	OpenSource(ctx context.Context, dbname string) (Aggregator, error)
}

// Deliverer replaces a destination table with the contents of a RowSet
type Deliverer interface {
	Deliver(ctx context.Context, schema, table string, rs *rowset.RowSet) error
}

// MetadataPublisher publishes table metadata to the public API catalog
type MetadataPublisher interface {
	Publish(ctx context.Context, table catalog.Table, variables []catalog.Variable) error
}
