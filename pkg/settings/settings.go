// Package settings manages persistent user settings for upllctl.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings holds persistent user preferences
type Settings struct {
	// ConfigPath is the daemon configuration used when --config is not
	// given.
	ConfigPath string `json:"config_path,omitempty"`

	// User is recorded in journal events.
	User string `json:"user,omitempty"`

	// Output selects "table" (default) or "json" for show and diff.
	Output string `json:"output,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "upll_settings.json"
	}
	return filepath.Join(home, ".upll", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the configuration path (with fallback)
func (s *Settings) GetConfigPath() string {
	if s.ConfigPath != "" {
		return s.ConfigPath
	}
	return "/etc/upll/upll.yaml"
}

// GetUser returns the journal user, falling back to $USER
func (s *Settings) GetUser() string {
	if s.User != "" {
		return s.User
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// Set assigns a setting by its JSON name.
func (s *Settings) Set(name, value string) error {
	switch name {
	case "config_path":
		s.ConfigPath = value
	case "user":
		s.User = value
	case "output":
		if value != "" && value != "table" && value != "json" {
			return fmt.Errorf("output must be table or json, got %q", value)
		}
		s.Output = value
	default:
		return fmt.Errorf("unknown setting %q", name)
	}
	return nil
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
