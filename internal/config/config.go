// Package config stores the persistent otflash settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Environment overrides applied by Load.
const (
	EnvAccessToken = "OTFLASH_ACCESS_TOKEN"
	EnvAPIURL      = "OTFLASH_API_URL"
)

const (
	DefaultAPIURL     = "https://api.particle.io"
	DefaultSerialBaud = 28800
	DefaultDeviceWait = Duration(10 * time.Second)
)

// Config stores persistent application settings
type Config struct {
	APIURL      string `json:"api_url,omitempty"`
	AccessToken string `json:"access_token,omitempty"`

	// KnownAppsDir holds <platform>/<app>.bin; KnownAppsURL is where
	// missing apps are downloaded from
	KnownAppsDir string `json:"known_apps_dir,omitempty"`
	KnownAppsURL string `json:"known_apps_url,omitempty"`

	DFUUtil    string   `json:"dfu_util,omitempty"`
	SerialBaud int      `json:"serial_baud,omitempty"`
	DeviceWait Duration `json:"device_wait,omitempty"`
}

// Duration is a time.Duration written as "10s" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Dir returns the platform config directory
func Dir() (string, error) {
	if appData := os.Getenv("APPDATA"); appData != "" {
		// Windows: use %APPDATA%\OpenTraceFlash
		return filepath.Join(appData, "OpenTraceFlash"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "otflash"), nil
}

// DefaultPath returns the path to the config file
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Default returns the settings used when no file exists.
func Default() *Config {
	c := &Config{
		APIURL:     DefaultAPIURL,
		DFUUtil:    "dfu-util",
		SerialBaud: DefaultSerialBaud,
		DeviceWait: DefaultDeviceWait,
	}
	if dir, err := Dir(); err == nil {
		c.KnownAppsDir = filepath.Join(dir, "known_apps")
	}
	return c
}

// Load reads the config at path, or the default location if path is empty.
// A missing file yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// unset keys keep their defaults
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	if v := os.Getenv(EnvAccessToken); v != "" {
		cfg.AccessToken = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.APIURL = v
	}
	return cfg, nil
}

// Save writes cfg to path, or the default location if path is empty. The
// file may hold a token so it is only readable by the user.
func Save(path string, cfg *Config) error {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
