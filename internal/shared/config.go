package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	EnvLedgerPath    = "DB_FILENAME"
	EnvDownloadDest  = "DOWNLOAD_DEST"
	EnvDownloadLimit = "DOWNLOAD_PARALLEL_VIDEOS"
	EnvAccessToken   = "VIMEO_ACCESS_TOKEN"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Download DownloadConfig `toml:"download"`
	Catalog  CatalogConfig  `toml:"catalog"`
}

// LedgerConfig contains database connection settings.
type LedgerConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

// DownloadConfig controls the transfer pipeline.
type DownloadConfig struct {
	Dest               string `toml:"dest"`
	Limit              int    `toml:"limit"`
	Concurrency        int    `toml:"concurrency"`
	LargeFileThreshold int64  `toml:"large_file_threshold"`
	MaxAttempts        int    `toml:"max_attempts"`
}

// CatalogConfig contains remote catalog API settings.
type CatalogConfig struct {
	BaseURL           string  `toml:"base_url"`
	AccessToken       string  `toml:"access_token"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	PageSize          int     `toml:"page_size"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides configuration values from environment variables.
//
// getenv defaults to [os.Getenv].
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv(EnvLedgerPath); v != "" {
		abs, err := filepath.Abs(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvLedgerPath, err)
		}
		c.Ledger.Path = abs
	}

	if v := getenv(EnvDownloadDest); v != "" {
		abs, err := filepath.Abs(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvDownloadDest, err)
		}
		c.Download.Dest = abs
	}

	if v := getenv(EnvDownloadLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidConfig, EnvDownloadLimit, v)
		}
		c.Download.Limit = n
	}

	if v := getenv(EnvAccessToken); v != "" {
		c.Catalog.AccessToken = v
	}

	return nil
}

// Resolve fills empty paths with locations under the user's home directory and
// validates the numeric settings.
func (c *Config) Resolve() error {
	if c.Ledger.Path == "" || c.Download.Dest == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		if c.Ledger.Path == "" {
			c.Ledger.Path = filepath.Join(home, "vmx", "db", "items.db")
		}
		if c.Download.Dest == "" {
			c.Download.Dest = filepath.Join(home, "vmx", "files")
		}
	}

	switch {
	case c.Download.Limit <= 0:
		return fmt.Errorf("%w: download.limit must be positive", ErrInvalidConfig)
	case c.Download.Concurrency <= 0:
		return fmt.Errorf("%w: download.concurrency must be positive", ErrInvalidConfig)
	case c.Download.MaxAttempts <= 0:
		return fmt.Errorf("%w: download.max_attempts must be positive", ErrInvalidConfig)
	case c.Download.LargeFileThreshold < 0:
		return fmt.Errorf("%w: download.large_file_threshold must not be negative", ErrInvalidConfig)
	}

	if c.Ledger.MaxOpenConns <= 0 {
		c.Ledger.MaxOpenConns = 1
	}

	return nil
}
