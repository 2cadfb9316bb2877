package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/config"
)

// NewTestDB opens an in-memory DuckDB database with the metadata schema
// applied. Returns the store and a cleanup function that should be deferred.
func NewTestDB(t *testing.T) (*SQLMetadataStore, func()) {
	t.Helper()

	cfg := config.DefaultConfig().Workspace
	cfg.Driver = config.DriverDuckDB
	cfg.Path = ":memory:"

	db, err := Open(context.Background(), cfg, "")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	store := NewSQLMetadataStore(db)
	if err := store.Initialize(context.Background()); err != nil {
		db.Close()
		t.Fatalf("failed to initialize test database: %v", err)
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	}

	return store, cleanup
}

// SeedTable writes a table recipe, its variables and editions
func SeedTable(t *testing.T, db *sql.DB, table catalog.Table, variables []catalog.Variable, editions ...catalog.Edition) {
	t.Helper()

	ctx := context.Background()

	var threshold interface{}
	if table.SuppressionThreshold != nil {
		threshold = *table.SuppressionThreshold
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO d3_table_metadata (
			table_name, category, description, description_simple, table_topics,
			universe, subject_area, source, suppression_threshold, tool, documentation
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		table.Name, table.Category, table.Description, table.DescriptionSimple, table.Topics,
		table.Universe, table.SubjectArea, table.Source, threshold, table.Tool, table.Documentation)
	if err != nil {
		t.Fatalf("failed to seed table %s: %v", table.Name, err)
	}

	for _, v := range variables {
		_, err := db.ExecContext(ctx, `
			INSERT INTO d3_variable_metadata (
				variable_name, table_name, indentation, description, parent_column,
				sql_aggregation_phrase, documentation
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			v.Name, table.Name, v.Indentation, v.Description, nullString(v.ParentName),
			v.AggregationExpression, v.Documentation)
		if err != nil {
			t.Fatalf("failed to seed variable %s: %v", v.Name, err)
		}
	}

	for _, e := range editions {
		timeFrame := e.TimeFrame
		if timeFrame == "" {
			timeFrame = catalog.TimeFrameUndesignated
		}

		_, err := db.ExecContext(ctx, `
			INSERT INTO d3_edition_metadata (
				table_name, edition, documentation, raw_table_db, raw_table_schema,
				raw_table_name, time_frame
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			table.Name, e.Edition, e.Documentation, nullString(e.RawTableDB), nullString(e.RawTableSchema),
			nullString(e.RawTableName), string(timeFrame))
		if err != nil {
			t.Fatalf("failed to seed edition %s of %s: %v", e.Edition, table.Name, err)
		}
	}
}
