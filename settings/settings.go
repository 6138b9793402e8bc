// Package settings loads the user-facing pipeline settings (enabled, remote
// routing, remote endpoint) from a persistent store and hands out immutable
// snapshots of them.
package settings

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"

	"github.com/docutag/watchdog/models"
)

// Persisted setting keys
const (
	KeyEnabled        = "watchdog_enabled"
	KeyUseRemote      = "watchdog_cloud"
	KeyRemoteEndpoint = "watchdog_backend"
)

// Store reads the current settings from wherever they are persisted
type Store interface {
	LoadSettings(ctx context.Context) (models.Settings, error)
}

// Saver persists settings
type Saver interface {
	SaveSettings(ctx context.Context, s models.Settings) error
}

// FromValues builds settings from persisted key/value pairs. Enabled
// defaults to true and is only false when explicitly disabled.
func FromValues(values map[string]string) models.Settings {
	s := models.DefaultSettings()
	if raw, ok := values[KeyEnabled]; ok {
		s.Enabled = !isFalse(raw)
	}
	s.UseRemote = isTrue(values[KeyUseRemote])
	s.RemoteEndpoint = values[KeyRemoteEndpoint]
	return s.Normalize()
}

// ToValues is the inverse of FromValues
func ToValues(s models.Settings) map[string]string {
	s = s.Normalize()
	return map[string]string{
		KeyEnabled:        formatBool(s.Enabled),
		KeyUseRemote:      formatBool(s.UseRemote),
		KeyRemoteEndpoint: s.RemoteEndpoint,
	}
}

func isTrue(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw == "1" || strings.EqualFold(raw, "true") || strings.EqualFold(raw, "yes")
}

func isFalse(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw == "0" || strings.EqualFold(raw, "false") || strings.EqualFold(raw, "no")
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// StaticStore always returns the same settings
type StaticStore struct {
	Settings models.Settings
}

// LoadSettings implements Store
func (s StaticStore) LoadSettings(context.Context) (models.Settings, error) {
	return s.Settings.Normalize(), nil
}

// EnvStore reads settings from a dotenv file and the process environment on
// every load, so edits to either take effect on the next evaluation.
// Environment variables win over the file. Keys are the upper-cased
// persisted keys (WATCHDOG_ENABLED, WATCHDOG_CLOUD, WATCHDOG_BACKEND).
type EnvStore struct {
	Path string // optional dotenv file; a missing file is not an error

	lookup func(string) (string, bool)
}

// NewEnvStore creates an EnvStore reading path and os environment
func NewEnvStore(path string) *EnvStore {
	return &EnvStore{Path: path, lookup: os.LookupEnv}
}

// LoadSettings implements Store
func (e *EnvStore) LoadSettings(context.Context) (models.Settings, error) {
	values := map[string]string{}

	if e.Path != "" {
		fileValues, err := godotenv.Read(e.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return models.Settings{}, err
		}
		for _, key := range []string{KeyEnabled, KeyUseRemote, KeyRemoteEndpoint} {
			if v, ok := fileValues[strings.ToUpper(key)]; ok {
				values[key] = v
			}
		}
	}

	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range []string{KeyEnabled, KeyUseRemote, KeyRemoteEndpoint} {
		if v, ok := lookup(strings.ToUpper(key)); ok {
			values[key] = v
		}
	}

	return FromValues(values), nil
}

// Manager holds the most recently loaded settings. Refresh swaps the whole
// record atomically so an evaluation never observes a partial update.
type Manager struct {
	store   Store
	current atomic.Pointer[models.Settings]
}

// NewManager creates a manager over store. Until the first successful
// refresh Current returns the defaults.
func NewManager(store Store) *Manager {
	m := &Manager{store: store}
	defaults := models.DefaultSettings()
	m.current.Store(&defaults)
	return m
}

// Refresh re-reads the store. On failure the previous settings are kept and
// returned along with the error.
func (m *Manager) Refresh(ctx context.Context) (models.Settings, error) {
	if m.store == nil {
		return m.Current(), nil
	}
	s, err := m.store.LoadSettings(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to load settings, keeping previous values", "error", err)
		return m.Current(), err
	}
	s = s.Normalize()
	m.current.Store(&s)
	return s, nil
}

// Current returns the last loaded settings
func (m *Manager) Current() models.Settings {
	return *m.current.Load()
}
