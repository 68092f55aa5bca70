package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix is prepended to every variable name, e.g. BROWSERSHELL_DB_PATH or
// BROWSERSHELL_TEXT_ZOOM_DEFAULT for nested sections.
const envPrefix = "BROWSERSHELL"

const dbFileName = "browsershell.db"

// Config holds application configuration
type Config struct {
	DBPath  string `envconfig:"DB_PATH"`
	DataDir string `envconfig:"DATA_DIR"`

	Logging   LogConfig       `envconfig:"LOG"`
	Pixel     PixelConfig     `envconfig:"PIXEL"`
	Blocking  BlockingConfig  `envconfig:"BLOCKING"`
	Downloads DownloadsConfig `envconfig:"DOWNLOADS"`
	TextZoom  TextZoomConfig  `envconfig:"TEXT_ZOOM"`

	// dbDerived is set while DBPath follows DataDir.
	dbDerived bool
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// PixelConfig holds telemetry endpoint configuration.
type PixelConfig struct {
	Endpoint   string  `envconfig:"ENDPOINT" default:"https://improving.duckduckgo.com/t"`
	FormFactor string  `envconfig:"FORM_FACTOR" default:"desktop"`
	RatePerSec float64 `envconfig:"RATE" default:"5"`
	Disabled   bool    `envconfig:"DISABLED" default:"false"`
}

// BlockingConfig points at the tracker data set and user filter lists.
type BlockingConfig struct {
	TrackerDataPath string   `envconfig:"TRACKER_DATA"`
	TempListPath    string   `envconfig:"TEMP_LIST"`
	AllowlistPath   string   `envconfig:"ALLOWLIST"`
	Unprotected     []string `envconfig:"UNPROTECTED"`
	FilterLists     []string `envconfig:"FILTER_LISTS"`
}

// DownloadsConfig holds the download destination.
type DownloadsConfig struct {
	Dir string `envconfig:"DIR"`
}

// TextZoomConfig holds text zoom defaults.
type TextZoomConfig struct {
	Enabled      bool `envconfig:"ENABLED" default:"true"`
	DefaultLevel int  `envconfig:"DEFAULT" default:"100"`
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	return Default()
}

// Load loads configuration from environment variables, filling the
// directory fields that have no explicit value.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.fillPaths()
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	cfg := &Config{
		Logging: LogConfig{
			Level: "info",
		},
		Pixel: PixelConfig{
			Endpoint:   "https://improving.duckduckgo.com/t",
			FormFactor: "desktop",
			RatePerSec: 5,
		},
		TextZoom: TextZoomConfig{
			Enabled:      true,
			DefaultLevel: 100,
		},
	}
	cfg.fillPaths()
	return cfg
}

// WithDBPath sets a custom database path
func (c *Config) WithDBPath(path string) *Config {
	c.DBPath = path
	c.dbDerived = false
	return c
}

// WithDataDir sets the directory for caches and queues. A database path that
// was not set explicitly moves along with it.
func (c *Config) WithDataDir(dir string) *Config {
	c.DataDir = dir
	if c.dbDerived {
		c.DBPath = filepath.Join(dir, dbFileName)
	}
	return c
}

func (c *Config) fillPaths() {
	if c.DataDir == "" {
		c.DataDir = getDefaultDataDir()
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, dbFileName)
		c.dbDerived = true
	}
	if c.Downloads.Dir == "" {
		c.Downloads.Dir = getDefaultDownloadsDir()
	}
}

// EnsureDataDir creates the data directory and the parent of the database.
func (c *Config) EnsureDataDir() error {
	for _, dir := range []string{c.DataDir, filepath.Dir(c.DBPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func getDefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".browsershell"
	}
	return filepath.Join(homeDir, ".browsershell")
}

func getDefaultDownloadsDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "downloads"
	}
	return filepath.Join(homeDir, "Downloads")
}
