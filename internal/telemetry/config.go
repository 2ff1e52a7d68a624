package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ConfigFileName is the name of the telemetry consent file.
const ConfigFileName = "telemetry.json"

// Config holds the consent state, stored at ~/.kindred/telemetry.json
// apart from the main configuration so wiping one never clobbers the
// other.
type Config struct {
	// Enabled reports whether the user opted in.
	Enabled bool `json:"enabled"`

	// ConsentAsked records that the first-run prompt was shown. Once
	// true the user is never prompted again.
	ConsentAsked bool `json:"consent_asked"`

	// AnonymousID is a random UUID generated on first load. It carries
	// no relation to the user, their machine, or their tracker account.
	AnonymousID string `json:"anonymous_id"`
}

var (
	configDirOverride   string
	configDirOverrideMu sync.RWMutex
)

// SetConfigDir points the package at a custom consent directory (for
// testing). Pass the empty string to restore the default.
func SetConfigDir(dir string) {
	configDirOverrideMu.Lock()
	defer configDirOverrideMu.Unlock()
	configDirOverride = dir
}

func getConfigDir() (string, error) {
	configDirOverrideMu.RLock()
	override := configDirOverride
	configDirOverrideMu.RUnlock()

	if override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".kindred"), nil
}

// GetConfigPath returns the full path of the consent file.
func GetConfigPath() (string, error) {
	dir, err := getConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// Load reads the consent state from disk. A missing file yields the
// defaults: disabled, consent not yet asked, fresh anonymous ID.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}

	cfg := &Config{}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.AnonymousID = uuid.New().String()
			return cfg, nil
		}
		return nil, fmt.Errorf("read consent file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse consent file: %w", err)
	}

	// Older files may predate the anonymous ID.
	if cfg.AnonymousID == "" {
		cfg.AnonymousID = uuid.New().String()
	}

	return cfg, nil
}

// Save writes the consent state with owner-only permissions, creating
// the directory on first use.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal consent: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("write consent file: %w", err)
	}

	return nil
}

// Enable opts in and records that consent was resolved.
func (c *Config) Enable() {
	c.Enabled = true
	c.ConsentAsked = true
}

// Disable opts out and records that consent was resolved.
func (c *Config) Disable() {
	c.Enabled = false
	c.ConsentAsked = true
}

// NeedsConsent reports whether the first-run prompt is still owed.
func (c *Config) NeedsConsent() bool {
	return !c.ConsentAsked
}

// IsEnabled reports whether the user opted in.
func (c *Config) IsEnabled() bool {
	return c.Enabled
}
