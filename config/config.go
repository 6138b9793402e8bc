// Package config loads process configuration from a .env file and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/docutag/watchdog/db"
	"github.com/docutag/watchdog/storage"
)

// Cfg holds all runtime configuration loaded from environment variables.
type Cfg struct {
	ListenAddr  string // e.g. :8080
	CORSEnabled bool

	// Database. DB_HOST selects PostgreSQL, otherwise SQLITE_PATH is used.
	DB db.Config

	// Evidence archive. S3 is set when S3_BUCKET is present.
	StoragePath string
	S3          *storage.S3Config

	// Pipeline
	HTTPTimeout    time.Duration
	CaptionBaseURL string
	RemoteTimeout  time.Duration
	PollInterval   time.Duration
	WatchDelay     time.Duration

	// SettingsFile is re-read on every scan by the CLI settings store
	SettingsFile string

	ServiceName string
}

// Load reads .env (if present) then environment variables and returns Cfg.
func Load() (*Cfg, error) {
	// Best-effort: load .env from current directory
	_ = godotenv.Load()

	cfg := &Cfg{
		ListenAddr:     ":" + getEnv("PORT", "8080"),
		CORSEnabled:    !isTrue(os.Getenv("DISABLE_CORS")),
		StoragePath:    getEnv("STORAGE_BASE_PATH", "./storage"),
		CaptionBaseURL: strings.TrimRight(getEnv("CAPTION_BASE_URL", "https://www.youtube.com"), "/"),
		SettingsFile:   getEnv("WATCHDOG_SETTINGS_FILE", ".env"),
		ServiceName:    getEnv("OTEL_SERVICE_NAME", "watchdog"),
	}

	var err error
	if cfg.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RemoteTimeout, err = getDuration("REMOTE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.WatchDelay, err = getDuration("WATCH_DELAY", 1500*time.Millisecond); err != nil {
		return nil, err
	}

	// PostgreSQL when DB_HOST is set, SQLite otherwise
	if dbHost := getEnv("DB_HOST", ""); dbHost != "" {
		cfg.DB = db.Config{
			Driver: db.DriverPostgres,
			DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				dbHost,
				getEnv("DB_PORT", "5432"),
				getEnv("DB_USER", "docutag"),
				getEnv("DB_PASSWORD", ""),
				getEnv("DB_NAME", "watchdog"),
				getEnv("DB_SSLMODE", "disable"),
			),
		}
	} else {
		cfg.DB = db.Config{Driver: db.DriverSQLite, DSN: getEnv("SQLITE_PATH", "./watchdog.db")}
	}

	if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
		cfg.S3 = &storage.S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          bucket,
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    isTrue(os.Getenv("S3_USE_PATH_STYLE")),
		}
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go durations ("750ms") or whole seconds ("30")
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func isTrue(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw == "1" || strings.EqualFold(raw, "true")
}
