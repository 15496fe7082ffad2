package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/yegors/glidepath/internal/adsb"
	"github.com/yegors/glidepath/internal/batch"
	"github.com/yegors/glidepath/internal/feed"
	"github.com/yegors/glidepath/internal/ingest"
	"github.com/yegors/glidepath/internal/scoring"
	"github.com/yegors/glidepath/internal/segment"
	"github.com/yegors/glidepath/internal/storage/clickhouse"
	"github.com/yegors/glidepath/internal/storage/postgres"
	"github.com/yegors/glidepath/internal/weather"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig       `toml:"server"`
	Logging   LoggingConfig      `toml:"logging"`
	Storage   StorageConfig      `toml:"storage"`
	Feed      feed.Config        `toml:"feed"`
	ADSB      adsb.Config        `toml:"adsb"`
	Ingest    ingest.Config      `toml:"ingest"`
	Segmenter segment.Thresholds `toml:"segmenter"`
	Scoring   ScoringConfig      `toml:"scoring"`
	Weather   weather.Config     `toml:"weather"`
	Batch     batch.Config       `toml:"batch"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `toml:"idle_timeout_seconds"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	FilePath   string `toml:"file_path"` // empty logs to stderr only
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// StorageConfig selects the primary store and the optional analytics mirror
type StorageConfig struct {
	Backend    string           `toml:"backend"` // sqlite or postgres
	SQLite     SQLiteConfig     `toml:"sqlite"`
	Postgres   postgres.Config  `toml:"postgres"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
}

// SQLiteConfig represents the embedded database configuration
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// ClickHouseConfig represents the score mirror configuration
type ClickHouseConfig struct {
	Enabled bool `toml:"enabled"`
	clickhouse.Config
}

// ScoringConfig holds scoring constant overrides keyed by name
type ScoringConfig struct {
	Overrides map[string]float64 `toml:"overrides"`
}

// Storage backends
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Default returns a configuration with every section at its default
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 60,
			IdleTimeoutSeconds:  60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			SQLite:  SQLiteConfig{Path: "data/glidepath.db"},
			Postgres: postgres.Config{
				Host:     "localhost",
				Port:     5432,
				Database: "glidepath",
				SSLMode:  "disable",
				MaxConns: 10,
			},
			ClickHouse: ClickHouseConfig{
				Config: clickhouse.Config{
					Host:     "localhost",
					Port:     9000,
					Database: "glidepath",
					User:     "default",
				},
			},
		},
		Feed:      feed.DefaultConfig(),
		ADSB:      adsb.DefaultConfig(),
		Ingest:    ingest.DefaultConfig(),
		Segmenter: segment.DefaultThresholds(),
		Weather:   weather.DefaultConfig(),
		Batch:     batch.DefaultConfig(),
	}
}

// Load loads the configuration from a TOML file. Keys missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	config := Default()

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback attempts to load configuration from multiple locations
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and fills in derived values
func (c *Config) Validate() error {
	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 60
	}
	if c.Server.IdleTimeoutSeconds <= 0 {
		c.Server.IdleTimeoutSeconds = 60
	}

	// Logging
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	if err := c.ValidateStorage(); err != nil {
		return err
	}
	if err := c.Feed.Validate(); err != nil {
		return fmt.Errorf("invalid feed config: %w", err)
	}
	if err := c.ADSB.Validate(); err != nil {
		return fmt.Errorf("invalid adsb config: %w", err)
	}
	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("invalid ingest config: %w", err)
	}
	if err := c.Weather.Validate(); err != nil {
		return fmt.Errorf("invalid weather config: %w", err)
	}

	// The batch scorer segments with the [segmenter] section
	c.Segmenter = c.Segmenter.WithDefaults()
	c.Batch.Segmenter = c.Segmenter
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch config: %w", err)
	}

	if _, err := scoring.DefaultConfig().With(c.Scoring.Overrides); err != nil {
		return fmt.Errorf("invalid scoring overrides: %w", err)
	}

	return nil
}

// ValidateStorage validates the storage configuration
func (c *Config) ValidateStorage() error {
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	switch c.Storage.Backend {
	case "":
		c.Storage.Backend = BackendSQLite
		fallthrough
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required")
		}
	case BackendPostgres:
		if c.Storage.Postgres.Host == "" || c.Storage.Postgres.Database == "" {
			return fmt.Errorf("storage.postgres host and database are required")
		}
		if c.Storage.Postgres.MaxConns <= 0 {
			c.Storage.Postgres.MaxConns = 10
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	if c.Storage.ClickHouse.Enabled && c.Storage.ClickHouse.Host == "" {
		return fmt.Errorf("storage.clickhouse.host is required when the mirror is enabled")
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
