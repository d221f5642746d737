// Package config loads the YAML application configuration, creating a
// default file on first run.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GoogleConfig holds the OAuth client identity and the path to the stored
// token. Token acquisition happens externally; this only points at the
// result.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenFile    string `yaml:"token_file"`
}

// SyncConfig tunes the sync engine's cadence and event window.
type SyncConfig struct {
	IncrementalSeconds int `yaml:"incremental_seconds"`
	FullHours          int `yaml:"full_hours"`
	WindowBackDays     int `yaml:"window_back_days"`
	WindowForwardDays  int `yaml:"window_forward_days"`
}

// ConnectivityConfig tunes the reachability monitor.
type ConnectivityConfig struct {
	ProbeHost       string `yaml:"probe_host"`
	ProbePort       string `yaml:"probe_port"`
	DebounceSeconds int    `yaml:"debounce_seconds"`
	OnlineSeconds   int    `yaml:"online_interval_seconds"`
	OfflineSeconds  int    `yaml:"offline_interval_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen       string             `yaml:"listen"`
	Google       GoogleConfig       `yaml:"google"`
	Sync         SyncConfig         `yaml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8712"
	}
	if c.Google.TokenFile == "" {
		c.Google.TokenFile = "token.json"
	}
	if c.Sync.IncrementalSeconds <= 0 {
		c.Sync.IncrementalSeconds = 60
	}
	if c.Sync.FullHours <= 0 {
		c.Sync.FullHours = 8
	}
	if c.Sync.WindowBackDays <= 0 {
		c.Sync.WindowBackDays = 30
	}
	if c.Sync.WindowForwardDays <= 0 {
		c.Sync.WindowForwardDays = 90
	}
	if c.Connectivity.ProbeHost == "" {
		c.Connectivity.ProbeHost = "www.googleapis.com"
	}
	if c.Connectivity.ProbePort == "" {
		c.Connectivity.ProbePort = "443"
	}
	if c.Connectivity.DebounceSeconds <= 0 {
		c.Connectivity.DebounceSeconds = 3
	}
	if c.Connectivity.OnlineSeconds <= 0 {
		c.Connectivity.OnlineSeconds = 30
	}
	if c.Connectivity.OfflineSeconds <= 0 {
		c.Connectivity.OfflineSeconds = 5
	}
}

// Load loads configuration from the given YAML path. If the file does not
// exist, a default config is written there (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calmirror-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
