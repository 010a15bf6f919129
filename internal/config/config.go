// Package config loads the chatlink configuration from a YAML file with
// environment overrides. A .env file in the working directory is honored for
// local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape.
type Config struct {
	// Backend is the account/organization/agent API base URL.
	Backend BackendConfig `yaml:"backend"`

	// App describes the chatlink web application used for external login.
	App AppConfig `yaml:"app"`

	// Browser configures the CDP connection to the user's browser.
	Browser BrowserConfig `yaml:"browser"`

	// StorePath overrides the sqlite store location.
	StorePath string `yaml:"storePath,omitempty"`
}

// BackendConfig configures the REST API client.
type BackendConfig struct {
	BaseURL string `yaml:"baseUrl,omitempty"`
}

// AppConfig describes the external web application.
type AppConfig struct {
	BaseURL string `yaml:"baseUrl,omitempty"`

	// LoginPath is the path opened for external login.
	LoginPath string `yaml:"loginPath,omitempty"`

	// DashboardPath marks the post-login destination.
	DashboardPath string `yaml:"dashboardPath,omitempty"`
}

// BrowserConfig configures browser access.
type BrowserConfig struct {
	// CDPURL is the DevTools endpoint of a running Chrome.
	CDPURL string `yaml:"cdpUrl,omitempty"`
}

// Defaults for a local development setup.
const (
	DefaultBackendURL    = "http://localhost:8080/api"
	DefaultAppURL        = "http://localhost:3000"
	DefaultLoginPath     = "/auth/login"
	DefaultDashboardPath = "/dashboard"
	DefaultCDPURL        = "http://localhost:9222"
)

// Load reads the config file at path (missing file is not an error), applies
// .env and environment overrides, and resolves defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	c.applyEnv()
	if err := c.resolve(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyEnv lets environment variables override file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("CHATLINK_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("CHATLINK_APP_URL"); v != "" {
		c.App.BaseURL = v
	}
	if v := os.Getenv("CHATLINK_CDP_URL"); v != "" {
		c.Browser.CDPURL = v
	}
	if v := os.Getenv("CHATLINK_STORE_PATH"); v != "" {
		c.StorePath = v
	}
}

// resolve fills unset fields with defaults.
func (c *Config) resolve() error {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBackendURL
	}
	if c.App.BaseURL == "" {
		c.App.BaseURL = DefaultAppURL
	}
	if c.App.LoginPath == "" {
		c.App.LoginPath = DefaultLoginPath
	}
	if c.App.DashboardPath == "" {
		c.App.DashboardPath = DefaultDashboardPath
	}
	if c.Browser.CDPURL == "" {
		c.Browser.CDPURL = DefaultCDPURL
	}
	if c.StorePath == "" {
		dir, err := DataDir()
		if err != nil {
			return err
		}
		c.StorePath = filepath.Join(dir, "chatlink.db")
	}
	return nil
}

// LoginURL is the full URL opened for external login.
func (c *Config) LoginURL() string {
	return c.App.BaseURL + c.App.LoginPath
}

// DataDir returns the platform data directory.
//
//	macOS:   ~/Library/Application Support/Chatlink/
//	Windows: %AppData%\Chatlink\
//	Linux:   ~/.config/chatlink/
//
// Set CHATLINK_DATA_DIR to override.
func DataDir() (string, error) {
	if dir := os.Getenv("CHATLINK_DATA_DIR"); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}

	// Linux: lowercase per XDG convention
	if runtime.GOOS == "linux" {
		return filepath.Join(configDir, "chatlink"), nil
	}
	return filepath.Join(configDir, "Chatlink"), nil
}

// EnsureDataDir creates the data directory if needed and returns it.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}
