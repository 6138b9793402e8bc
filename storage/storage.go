// Package storage archives evidence for flagged scans on the local
// filesystem or in S3-compatible object storage.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/docutag/watchdog/models"
	"github.com/docutag/watchdog/slug"
)

// Archive stores evidence objects by key
type Archive interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Evidence is the archived document for one flagged scan
type Evidence struct {
	ScanID     string                 `json:"scan_id"`
	URL        string                 `json:"url"`
	Headline   string                 `json:"headline,omitempty"`
	Result     *models.AnalysisResult `json:"result"`
	ArchivedAt time.Time              `json:"archived_at"`
}

// EvidenceKey builds an object key of the form scans/YYYY/MM/<slug>-<ulid>.json.
// The ULID keeps keys unique and time ordered within a month.
func EvidenceKey(headline, rawURL string, now time.Time) string {
	name := slug.FromPage(headline, rawURL)
	if name == "" {
		name = "scan"
	}
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()

	year := fmt.Sprintf("%04d", now.Year())
	month := fmt.Sprintf("%02d", int(now.Month()))
	return path.Join("scans", year, month, name+"-"+strings.ToLower(id)+".json")
}

// SaveEvidence writes ev to archive and returns its key
func SaveEvidence(ctx context.Context, archive Archive, ev Evidence) (string, error) {
	if ev.ArchivedAt.IsZero() {
		ev.ArchivedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal evidence: %w", err)
	}

	key := EvidenceKey(ev.Headline, ev.URL, ev.ArchivedAt)
	if err := archive.Save(ctx, key, data, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// Config contains storage configuration
type Config struct {
	BasePath string // Base directory for all stored files
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// Storage is a filesystem Archive
type Storage struct {
	config Config
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
	}, nil
}

// Save implements Archive
func (s *Storage) Save(_ context.Context, key string, data []byte, _ string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create evidence directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write evidence file: %w", err)
	}
	return nil
}

// Read implements Archive
func (s *Storage) Read(_ context.Context, key string) ([]byte, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence file: %w", err)
	}
	return data, nil
}

// Delete implements Archive. Deleting a missing key is not an error.
func (s *Storage) Delete(_ context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete evidence file: %w", err)
	}
	return nil
}

// GetFullPath returns the full filesystem path for a key
func (s *Storage) GetFullPath(key string) string {
	return filepath.Join(s.config.BasePath, filepath.FromSlash(key))
}

// resolve maps key below the base path, rejecting keys that escape it
func (s *Storage) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return s.GetFullPath(strings.TrimPrefix(clean, "/")), nil
}
