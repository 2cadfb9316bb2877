package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/kyleking/d3-pipeline/internal/logging"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// MigrationManager handles the workspace metadata schema
type MigrationManager struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db, logger: logging.GetLogger()}
}

// WithLogger replaces the logger used to report applied migrations
func (m *MigrationManager) WithLogger(logger *logging.Logger) *MigrationManager {
	m.logger = logger
	return m
}

// GetMigrations returns all available migrations in order
func (m *MigrationManager) GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Table, variable and edition metadata",
			Up: `
				CREATE TABLE IF NOT EXISTS d3_table_metadata (
					table_name VARCHAR PRIMARY KEY,
					category VARCHAR,
					description VARCHAR,
					description_simple VARCHAR,
					table_topics VARCHAR,
					universe VARCHAR,
					subject_area VARCHAR,
					source TEXT,
					suppression_threshold INTEGER,
					tool VARCHAR,
					documentation TEXT
				);

				CREATE TABLE IF NOT EXISTS d3_variable_metadata (
					variable_name VARCHAR PRIMARY KEY,
					table_name VARCHAR NOT NULL REFERENCES d3_table_metadata(table_name),
					indentation INTEGER,
					description VARCHAR,
					parent_column VARCHAR,
					sql_aggregation_phrase TEXT,
					documentation TEXT
				);

				CREATE TABLE IF NOT EXISTS d3_edition_metadata (
					table_name VARCHAR NOT NULL REFERENCES d3_table_metadata(table_name),
					edition VARCHAR NOT NULL,
					documentation TEXT,
					raw_table_db VARCHAR,
					raw_table_schema VARCHAR,
					raw_table_name VARCHAR,
					time_frame VARCHAR NOT NULL DEFAULT 'UNDESIGNATED',
					PRIMARY KEY (table_name, edition)
				);

				CREATE INDEX IF NOT EXISTS idx_d3_variable_metadata_table ON d3_variable_metadata(table_name);
			`,
			Down: `
				DROP INDEX IF EXISTS idx_d3_variable_metadata_table;
				DROP TABLE IF EXISTS d3_edition_metadata;
				DROP TABLE IF EXISTS d3_variable_metadata;
				DROP TABLE IF EXISTS d3_table_metadata;
			`,
		},
		{
			Version:     2,
			Description: "Variable groups for lighter-touch suppression",
			Up: `
				CREATE TABLE IF NOT EXISTS d3_variable_groups (
					id INTEGER PRIMARY KEY,
					table_name VARCHAR NOT NULL,
					description VARCHAR NOT NULL,
					documentation TEXT,
					parent_variable_name VARCHAR
				);

				CREATE TABLE IF NOT EXISTS d3_variable_group_membership (
					group_id INTEGER NOT NULL,
					variable_id VARCHAR NOT NULL,
					PRIMARY KEY (group_id, variable_id)
				);
			`,
			Down: `
				DROP TABLE IF EXISTS d3_variable_group_membership;
				DROP TABLE IF EXISTS d3_variable_groups;
			`,
		},
	}
}

// InitializeMigrationTable creates the migration tracking table
func (m *MigrationManager) InitializeMigrationTable(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	_, err := m.db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	return nil
}

// GetAppliedMigrations returns a list of applied migration versions
func (m *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	query := "SELECT version FROM schema_migrations ORDER BY version"

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	defer rows.Close()

	var versions []int

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}

		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// IsMigrationApplied checks if a specific migration version has been applied
func (m *MigrationManager) IsMigrationApplied(ctx context.Context, version int) (bool, error) {
	query := "SELECT COUNT(*) FROM schema_migrations WHERE version = $1"

	var count int

	err := m.db.QueryRowContext(ctx, query, version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}

	return count > 0, nil
}

// ApplyMigration applies a single migration
func (m *MigrationManager) ApplyMigration(ctx context.Context, migration Migration) error {
	applied, err := m.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}

	if applied {
		return fmt.Errorf("migration %d already applied", migration.Version)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, migration.Up)
	if err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
		migration.Version, migration.Description)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// RollbackMigration rolls back a single migration
func (m *MigrationManager) RollbackMigration(ctx context.Context, migration Migration) error {
	applied, err := m.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}

	if !applied {
		return fmt.Errorf("migration %d not applied", migration.Version)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, migration.Down)
	if err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", migration.Version)
	if err != nil {
		return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// MigrateUp applies all pending migrations
func (m *MigrationManager) MigrateUp(ctx context.Context) error {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return err
	}

	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	appliedMap := make(map[int]bool)
	for _, version := range appliedVersions {
		appliedMap[version] = true
	}

	migrations := m.GetMigrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if appliedMap[migration.Version] {
			continue
		}

		m.logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if err := m.ApplyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// MigrateDown rolls back migrations to a specific version
func (m *MigrationManager) MigrateDown(ctx context.Context, targetVersion int) error {
	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	migrationMap := make(map[int]Migration)
	for _, migration := range m.GetMigrations() {
		migrationMap[migration.Version] = migration
	}

	sort.Sort(sort.Reverse(sort.IntSlice(appliedVersions)))

	for _, version := range appliedVersions {
		if version <= targetVersion {
			break
		}

		migration, exists := migrationMap[version]
		if !exists {
			return fmt.Errorf("migration %d not found", version)
		}

		m.logger.WithField("version", version).Info("Rolling back migration")

		if err := m.RollbackMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", version, err)
		}
	}

	return nil
}

// NeedsMigration reports whether pending migrations exist, with the current
// and latest versions
func (m *MigrationManager) NeedsMigration(ctx context.Context) (bool, int, int, error) {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return false, 0, 0, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return false, 0, 0, err
	}

	current := 0
	if len(applied) > 0 {
		current = applied[len(applied)-1]
	}

	latest := 0
	for _, migration := range m.GetMigrations() {
		latest = max(latest, migration.Version)
	}

	return current < latest, current, latest, nil
}

// GetMigrationStatus returns the current migration status
func (m *MigrationManager) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return nil, err
	}

	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	appliedMap := make(map[int]bool)
	for _, version := range appliedVersions {
		appliedMap[version] = true
	}

	migrations := m.GetMigrations()
	status := make([]MigrationStatus, 0, len(migrations))

	for _, migration := range migrations {
		status = append(status, MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
			Applied:     appliedMap[migration.Version],
		})
	}

	return status, nil
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
	Applied     bool   `json:"applied"`
}
