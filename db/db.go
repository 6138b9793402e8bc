package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/docutag/watchdog/models"
	"github.com/docutag/watchdog/settings"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// timestamps are stored as fixed-width UTC text so they sort lexically in both dialects
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// DB wraps the database connection and provides data access methods
type DB struct {
	conn   *sql.DB
	driver string
}

// Config contains database configuration
type Config struct {
	Driver string // "postgres" (default) or "sqlite"
	DSN    string // PostgreSQL connection string or SQLite file path
}

// New creates a new database connection and runs pending migrations
func New(config Config) (*DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = DriverPostgres
	}

	dsn := config.DSN
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		dsn += "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	if driver == DriverSQLite {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
	}
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, driver: driver}

	if err := Migrate(conn, driver); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// Driver returns the name of the SQL driver in use
func (db *DB) Driver() string {
	return db.driver
}

// rebind converts $N placeholders for drivers that expect ?N
func (db *DB) rebind(query string) string {
	return rebind(db.driver, query)
}

func rebind(driver, query string) string {
	if driver != DriverSQLite {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?${1}")
}

// SaveScan persists a scan record. An empty ID is assigned a new UUID and
// a zero CreatedAt is set to now.
func (db *DB) SaveScan(ctx context.Context, record *models.ScanRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Result != nil {
		record.Platform = record.Result.Platform
		record.Status = record.Result.Status
		record.Label = record.Result.Label
		record.Flagged = record.Result.Flagged
		record.Route = record.Result.Route
	}

	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal scan: %w", err)
	}

	query := `
		INSERT INTO watchdog_scans (id, url, platform, status, label, flagged, route, archive_key, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = db.conn.ExecContext(ctx, db.rebind(query),
		record.ID,
		record.URL,
		string(record.Platform),
		string(record.Status),
		record.Label,
		boolToInt(record.Flagged),
		string(record.Route),
		record.ArchiveKey,
		string(jsonData),
		record.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}
	return nil
}

// GetScan retrieves a scan by ID. It returns nil, nil when no scan matches.
func (db *DB) GetScan(ctx context.Context, id string) (*models.ScanRecord, error) {
	var jsonData string
	query := "SELECT data FROM watchdog_scans WHERE id = $1"

	err := db.conn.QueryRowContext(ctx, db.rebind(query), id).Scan(&jsonData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scan: %w", err)
	}

	var record models.ScanRecord
	if err := json.Unmarshal([]byte(jsonData), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan: %w", err)
	}
	return &record, nil
}

// ListFilter narrows ListScans
type ListFilter struct {
	FlaggedOnly bool
	URL         string
}

// ListScans returns scans newest first with pagination
func (db *DB) ListScans(ctx context.Context, filter ListFilter, limit, offset int) ([]*models.ScanRecord, error) {
	query := `
		SELECT data FROM watchdog_scans
		WHERE ($1 = 0 OR flagged = 1) AND ($2 = '' OR url = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), boolToInt(filter.FlaggedOnly), filter.URL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	results := []*models.ScanRecord{}
	for rows.Next() {
		var jsonData string
		if err := rows.Scan(&jsonData); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		var record models.ScanRecord
		if err := json.Unmarshal([]byte(jsonData), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scan: %w", err)
		}
		results = append(results, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// CountScans returns the number of scans matching filter
func (db *DB) CountScans(ctx context.Context, filter ListFilter) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM watchdog_scans WHERE ($1 = 0 OR flagged = 1) AND ($2 = '' OR url = $2)"
	err := db.conn.QueryRowContext(ctx, db.rebind(query), boolToInt(filter.FlaggedOnly), filter.URL).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return count, nil
}

// DeleteScan deletes a scan by ID
func (db *DB) DeleteScan(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM watchdog_scans WHERE id = $1"), id)
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no scan found with id: %s", id)
	}
	return nil
}

// LoadSettings implements settings.Store. Missing keys take their defaults.
func (db *DB) LoadSettings(ctx context.Context) (models.Settings, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT key, value FROM watchdog_settings")
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return models.Settings{}, fmt.Errorf("failed to scan row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return models.Settings{}, fmt.Errorf("error iterating rows: %w", err)
	}

	return settings.FromValues(values), nil
}

// SaveSettings implements settings.Saver. The whole record is written in
// one transaction.
func (db *DB) SaveSettings(ctx context.Context, s models.Settings) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO watchdog_settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Format(timeLayout)
	for key, value := range settings.ToValues(s) {
		if _, err := tx.ExecContext(ctx, db.rebind(query), key, value, now); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
