package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for drive-sync.
type Config struct {
	// Drive API host, e.g. "drive-api.proton.me".
	APIHost string `env:"DRIVE_API_HOST"`

	// Session token used to authenticate against the API.
	SessionToken string `env:"DRIVE_SESSION_TOKEN"`

	// Address identity used to sign re-encrypted node material.
	AddressEmail string `env:"DRIVE_ADDRESS_EMAIL"`

	// Passphrase the address key is derived from.
	AddressPassphrase string `env:"DRIVE_ADDRESS_PASSPHRASE"`

	// Share whose tree this client replicates.
	ShareID string `env:"DRIVE_SHARE_ID"`

	// Directory holding the metadata and event databases. Defaults to
	// ~/.drive-sync/.
	DataDir string `env:"DRIVE_DATA_DIR"`

	// Directory shared with the file-presentation process. The
	// reenumeration flags file lives here. Defaults to DataDir.
	AppGroupDir string `env:"DRIVE_APP_GROUP_DIR"`

	// How long the resync coordinator waits for the file-presentation
	// process to react to an enumeration signal before reporting a
	// degraded completion.
	EnumerationTimeout time.Duration `env:"DRIVE_ENUMERATION_TIMEOUT" envDefault:"15s"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Optional rotated log file path.
	LogFile string `env:"LOG_FILE"`
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}

	// Resolve directories to absolute paths at startup. The recovery
	// store renames files next to each other, and the flags watcher
	// observes a directory; both rely on stable absolute paths.
	absData, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir to absolute path: %w", err)
	}
	cfg.DataDir = absData

	if cfg.AppGroupDir == "" {
		cfg.AppGroupDir = cfg.DataDir
	}
	absGroup, err := filepath.Abs(cfg.AppGroupDir)
	if err != nil {
		return nil, fmt.Errorf("resolving app group dir to absolute path: %w", err)
	}
	cfg.AppGroupDir = absGroup

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIHost == "" {
		return fmt.Errorf("DRIVE_API_HOST is required")
	}

	if c.SessionToken == "" {
		return fmt.Errorf("DRIVE_SESSION_TOKEN is required")
	}

	if c.AddressEmail == "" {
		return fmt.Errorf("DRIVE_ADDRESS_EMAIL is required")
	}

	if c.AddressPassphrase == "" {
		return fmt.Errorf("DRIVE_ADDRESS_PASSPHRASE is required")
	}

	if c.ShareID == "" {
		return fmt.Errorf("DRIVE_SHARE_ID is required")
	}

	if c.EnumerationTimeout <= 0 {
		return fmt.Errorf("DRIVE_ENUMERATION_TIMEOUT must be positive")
	}

	return nil
}

// MetadataDBPath returns the path of the node metadata database.
func (c *Config) MetadataDBPath() string {
	return filepath.Join(c.DataDir, "metadata.db")
}

// EventDBPath returns the path of the event-cursor database.
func (c *Config) EventDBPath() string {
	return filepath.Join(c.DataDir, "events.db")
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".drive-sync"), nil
}
