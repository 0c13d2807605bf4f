package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"

	"github.com/reelscout/reelscout/internal/profile"
)

// SettingsFileName is the settings file inside the config directory.
const SettingsFileName = "settings.json"

// DefaultVersion is the version created when the settings file has none.
const DefaultVersion = "default"

// ErrUnknownVersion is returned for a version name the settings do not define.
var ErrUnknownVersion = errors.New("unknown version")

// Settings is the user-editable settings file.
type Settings struct {
	Versions               map[string]profile.VersionProfile `json:"versions"`
	StalenessThresholdDays int                               `json:"staleness_threshold_days"`
	// Aliases are extra titles per IMDb id, merged with the ones from metadata.
	Aliases map[string][]string `json:"aliases,omitempty"`
}

// SettingsStore owns the settings file. It is the only source of the
// staleness threshold once loaded.
type SettingsStore struct {
	path   string
	logger zerolog.Logger

	mu       sync.RWMutex
	settings Settings
	compiled map[string]*profile.Compiled
}

// LoadSettings reads dir/settings.json, creating it when missing.
// defaultStaleness fills the threshold when the file has none.
func LoadSettings(dir string, defaultStaleness int, logger zerolog.Logger) (*SettingsStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: config", ErrMissingBasePath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	s := &SettingsStore{
		path:   filepath.Join(dir, SettingsFileName),
		logger: logger.With().Str("component", "settings").Logger(),
	}

	var settings Settings
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.logger.Info().Str("path", s.path).Msg("Settings file not found, writing defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read settings: %w", err)
	default:
		if err := json.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("failed to parse settings %s: %w", s.path, err)
		}
	}

	dirty := err != nil
	if len(settings.Versions) == 0 {
		settings.Versions = map[string]profile.VersionProfile{DefaultVersion: profile.Default()}
		dirty = true
	}
	if settings.StalenessThresholdDays < 1 {
		if defaultStaleness < 1 {
			defaultStaleness = 7
		}
		settings.StalenessThresholdDays = defaultStaleness
		dirty = true
	}

	compiled, err := compileVersions(settings.Versions)
	if err != nil {
		return nil, err
	}
	s.settings = settings
	s.compiled = compiled

	if dirty {
		if err := s.write(settings); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the settings file path.
func (s *SettingsStore) Path() string {
	return s.path
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.settings)
}

// Version returns the compiled profile for name. An empty name selects the
// default version, or the only one when just one exists.
func (s *SettingsStore) Version(name string) (*profile.Compiled, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name == "" {
		if c, ok := s.compiled[DefaultVersion]; ok {
			return c, nil
		}
		if len(s.compiled) == 1 {
			for _, c := range s.compiled {
				return c, nil
			}
		}
	}
	c, ok := s.compiled[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, name)
	}
	return c, nil
}

// VersionNames returns the defined versions in sorted order.
func (s *SettingsStore) VersionNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.compiled))
	for name := range s.compiled {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StalenessThresholdDays returns the current staleness threshold.
func (s *SettingsStore) StalenessThresholdDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.StalenessThresholdDays
}

// Aliases returns the configured aliases for an IMDb id.
func (s *SettingsStore) Aliases(imdbID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.settings.Aliases[imdbID]...)
}

// SetStalenessThreshold updates and persists the staleness threshold.
func (s *SettingsStore) SetStalenessThreshold(days int) error {
	if days < 1 {
		return fmt.Errorf("staleness threshold must be at least 1 day, got %d", days)
	}
	settings := s.Get()
	settings.StalenessThresholdDays = days
	return s.Save(settings)
}

// SaveVersion adds or replaces a version and persists the file.
func (s *SettingsStore) SaveVersion(name string, v profile.VersionProfile) error {
	settings := s.Get()
	settings.Versions[name] = v
	return s.Save(settings)
}

// Save validates settings and replaces the file atomically, keeping a .bak
// copy of the previous contents.
func (s *SettingsStore) Save(settings Settings) error {
	if settings.StalenessThresholdDays < 1 {
		return fmt.Errorf("staleness threshold must be at least 1 day, got %d", settings.StalenessThresholdDays)
	}
	compiled, err := compileVersions(settings.Versions)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(settings); err != nil {
		return err
	}
	s.settings = cloneSettings(settings)
	s.compiled = compiled

	s.logger.Info().Int("versions", len(compiled)).Msg("Settings saved")
	return nil
}

func (s *SettingsStore) write(settings Settings) error {
	if current, err := os.ReadFile(s.path); err == nil {
		if err := atomic.WriteFile(s.path+".bak", bytes.NewReader(current)); err != nil {
			return fmt.Errorf("failed to back up settings: %w", err)
		}
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

func compileVersions(versions map[string]profile.VersionProfile) (map[string]*profile.Compiled, error) {
	out := make(map[string]*profile.Compiled, len(versions))
	for name, v := range versions {
		c, err := profile.Compile(name, v)
		if err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, nil
}

func cloneSettings(in Settings) Settings {
	out := Settings{
		StalenessThresholdDays: in.StalenessThresholdDays,
		Versions:               make(map[string]profile.VersionProfile, len(in.Versions)),
	}
	for k, v := range in.Versions {
		out.Versions[k] = v
	}
	if in.Aliases != nil {
		out.Aliases = make(map[string][]string, len(in.Aliases))
		for k, v := range in.Aliases {
			out.Aliases[k] = append([]string(nil), v...)
		}
	}
	return out
}
