package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// The schema sticks to types both PostgreSQL and SQLite accept: timestamps
// are fixed-width text and booleans are integers.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_watchdog_scans_table",
		Up: `
			CREATE TABLE IF NOT EXISTS watchdog_scans (
				id TEXT PRIMARY KEY,
				url TEXT NOT NULL,
				platform TEXT NOT NULL,
				status TEXT NOT NULL,
				label TEXT NOT NULL,
				flagged INTEGER NOT NULL DEFAULT 0,
				route TEXT NOT NULL DEFAULT '',
				data TEXT NOT NULL,
				created_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_watchdog_scans_url ON watchdog_scans(url);
			CREATE INDEX IF NOT EXISTS idx_watchdog_scans_created_at ON watchdog_scans(created_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_watchdog_scans_created_at;
			DROP INDEX IF EXISTS idx_watchdog_scans_url;
			DROP TABLE IF EXISTS watchdog_scans;
		`,
	},
	{
		Version: 2,
		Name:    "create_watchdog_settings_table",
		Up: `
			CREATE TABLE IF NOT EXISTS watchdog_settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);
		`,
		Down: `
			DROP TABLE IF EXISTS watchdog_settings;
		`,
	},
	{
		Version: 3,
		Name:    "add_archive_key_and_flagged_index",
		Up: `
			ALTER TABLE watchdog_scans ADD COLUMN archive_key TEXT NOT NULL DEFAULT '';
			CREATE INDEX IF NOT EXISTS idx_watchdog_scans_flagged ON watchdog_scans(flagged, created_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_watchdog_scans_flagged;
			ALTER TABLE watchdog_scans DROP COLUMN archive_key;
		`,
	},
}

// Migrate runs all pending migrations
func Migrate(db *sql.DB, driver string) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	// Sort migrations by version
	sortedMigrations := make([]Migration, len(migrations))
	copy(sortedMigrations, migrations)
	sort.Slice(sortedMigrations, func(i, j int) bool {
		return sortedMigrations[i].Version < sortedMigrations[j].Version
	})

	for _, m := range sortedMigrations {
		if m.Version <= currentVersion {
			continue
		}

		slog.Info("applying migration", "version", m.Version, "name", m.Name, "driver", driver)
		if err := runMigration(db, driver, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the watchdog_schema_version table if it doesn't exist
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS watchdog_schema_version (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// getCurrentVersion returns the current migration version
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM watchdog_schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration executes a single migration
func runMigration(db *sql.DB, driver string, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec(
		rebind(driver, "INSERT INTO watchdog_schema_version (version, name) VALUES ($1, $2)"),
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// Rollback rolls back the last migration
func Rollback(db *sql.DB, driver string) error {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	// Find the migration to rollback
	var targetMigration *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			targetMigration = &migrations[i]
			break
		}
	}

	if targetMigration == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(targetMigration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	if _, err := tx.Exec(rebind(driver, "DELETE FROM watchdog_schema_version WHERE version = $1"), currentVersion); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}

// GetMigrationStatus returns the current migration status
func GetMigrationStatus(db *sql.DB) ([]MigrationStatus, error) {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return nil, err
	}

	var status []MigrationStatus
	for _, m := range migrations {
		status = append(status, MigrationStatus{
			Version: m.Version,
			Name:    m.Name,
			Applied: m.Version <= currentVersion,
		})
	}

	sort.Slice(status, func(i, j int) bool {
		return status[i].Version < status[j].Version
	})

	return status, nil
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version int
	Name    string
	Applied bool
}
