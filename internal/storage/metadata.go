package storage

import (
	"context"
	"database/sql"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/errors"
)

// SQLMetadataStore reads the d3_* metadata tables
type SQLMetadataStore struct {
	db *sql.DB
}

// NewSQLMetadataStore wraps an open workspace connection
func NewSQLMetadataStore(db *sql.DB) *SQLMetadataStore {
	return &SQLMetadataStore{db: db}
}

// DB exposes the underlying connection for migrations
func (s *SQLMetadataStore) DB() *sql.DB {
	return s.db
}

// Initialize brings the metadata schema up to date
func (s *SQLMetadataStore) Initialize(ctx context.Context) error {
	if err := NewMigrationManager(s.db).MigrateUp(ctx); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to migrate metadata schema")
	}

	return nil
}

const tableColumns = `table_name, category, description, description_simple, table_topics,
	universe, subject_area, source, suppression_threshold, tool, documentation`

// GetTable loads a table's recipe header
func (s *SQLMetadataStore) GetTable(ctx context.Context, name string) (*catalog.Table, error) {
	query := "SELECT " + tableColumns + " FROM d3_table_metadata WHERE table_name = $1"

	var (
		t                                                        catalog.Table
		category, description, simple, topics, universe, subject sql.NullString
		source, tool, documentation                              sql.NullString
		threshold                                                sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&t.Name, &category, &description, &simple, &topics,
		&universe, &subject, &source, &threshold, &tool, &documentation,
	)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrTypeNotFound, "table %s not found in d3_table_metadata", name).
			WithSuggestion("check the table name or add it to d3_table_metadata")
	}

	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to load table %s", name)
	}

	t.Category = category.String
	t.Description = description.String
	t.DescriptionSimple = simple.String
	t.Topics = topics.String
	t.Universe = universe.String
	t.SubjectArea = subject.String
	t.Source = source.String
	t.Tool = tool.String
	t.Documentation = documentation.String

	if threshold.Valid {
		n := int(threshold.Int64)
		t.SuppressionThreshold = &n
	}

	return &t, nil
}

// GetVariables loads a table's variables ordered by name
func (s *SQLMetadataStore) GetVariables(ctx context.Context, table string) ([]catalog.Variable, error) {
	query := `
		SELECT variable_name, table_name, indentation, description, parent_column,
			sql_aggregation_phrase, documentation
		FROM d3_variable_metadata
		WHERE table_name = $1
		ORDER BY variable_name`

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to load variables for %s", table)
	}

	defer rows.Close()

	var variables []catalog.Variable

	for rows.Next() {
		var (
			v                                          catalog.Variable
			indentation                                sql.NullInt64
			description, parent, phrase, documentation sql.NullString
		)

		if err := rows.Scan(&v.Name, &v.TableName, &indentation, &description, &parent, &phrase, &documentation); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan variable")
		}

		v.Indentation = int(indentation.Int64)
		v.Description = description.String
		v.ParentName = parent.String
		v.AggregationExpression = phrase.String
		v.Documentation = documentation.String

		variables = append(variables, v)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to read variables")
	}

	return variables, nil
}

const editionColumns = `table_name, edition, documentation, raw_table_db, raw_table_schema,
	raw_table_name, time_frame`

// GetEdition loads one named edition of a table
func (s *SQLMetadataStore) GetEdition(ctx context.Context, table, edition string) (*catalog.Edition, error) {
	query := "SELECT " + editionColumns + " FROM d3_edition_metadata WHERE table_name = $1 AND edition = $2"

	e, err := s.scanEdition(s.db.QueryRowContext(ctx, query, table, edition))
	if err == sql.ErrNoRows {
		return nil, errors.NewEditionError(table, edition, "is not a valid edition")
	}

	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to load edition %s of %s", edition, table)
	}

	return e, nil
}

// GetLatestEdition loads the edition that sorts last
func (s *SQLMetadataStore) GetLatestEdition(ctx context.Context, table string) (*catalog.Edition, error) {
	query := "SELECT " + editionColumns + " FROM d3_edition_metadata WHERE table_name = $1 ORDER BY edition DESC LIMIT 1"

	e, err := s.scanEdition(s.db.QueryRowContext(ctx, query, table))
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrTypeMetadata, "'%s' has no editions available", table).
			WithSuggestion("update d3_edition_metadata to fix")
	}

	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to load latest edition of %s", table)
	}

	return e, nil
}

func (s *SQLMetadataStore) scanEdition(row *sql.Row) (*catalog.Edition, error) {
	var (
		e                                          catalog.Edition
		documentation, db, schema, name, timeFrame sql.NullString
	)

	if err := row.Scan(&e.TableName, &e.Edition, &documentation, &db, &schema, &name, &timeFrame); err != nil {
		return nil, err
	}

	e.Documentation = documentation.String
	e.RawTableDB = db.String
	e.RawTableSchema = schema.String
	e.RawTableName = name.String
	e.TimeFrame = catalog.ParseTimeFrame(timeFrame.String)

	return &e, nil
}

// Close closes the workspace connection
func (s *SQLMetadataStore) Close() error {
	return s.db.Close()
}
