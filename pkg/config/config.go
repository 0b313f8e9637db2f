// Package config provides the configuration of a simpleorm database.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SettingsType selects where schema snapshots are kept.
type SettingsType string

const (
	// SettingsSQLite keeps snapshots in a table of the database file itself
	SettingsSQLite SettingsType = "sqlite"

	// SettingsBolt keeps snapshots in a separate bbolt file
	SettingsBolt SettingsType = "bolt"

	// SettingsMemory keeps snapshots in process memory only
	SettingsMemory SettingsType = "memory"
)

// Config holds the configuration of a simpleorm database.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// DatabaseFile is the SQLite file holding the mapped tables
	DatabaseFile string `json:"database_file" yaml:"database_file"`

	// Namespace prefixes the settings keys of every table
	Namespace string `json:"namespace" yaml:"namespace"`

	// Settings store configuration
	Settings SettingsConfig `json:"settings" yaml:"settings"`

	// SQLite engine configuration
	SQLite SQLiteConfig `json:"sqlite" yaml:"sqlite"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SettingsConfig holds schema snapshot store configuration.
type SettingsConfig struct {
	// Type is the store type: sqlite, bolt, memory
	Type SettingsType `json:"type" yaml:"type"`

	// Path is the store file (defaults to the database file for sqlite,
	// <data_dir>/settings.bolt for bolt)
	Path string `json:"path" yaml:"path"`
}

// SQLiteConfig holds SQLite connection configuration.
type SQLiteConfig struct {
	// JournalMode is the SQLite journal mode
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`

	// BusyTimeoutMs is how long statements wait on a locked database
	BusyTimeoutMs int `json:"busy_timeout_ms" yaml:"busy_timeout_ms"`

	// StmtCacheSize bounds the prepared statement cache
	StmtCacheSize int `json:"stmt_cache_size" yaml:"stmt_cache_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Quiet discards the log output of the DB opened with this config;
	// other DBs in the process keep logging
	Quiet bool `json:"quiet" yaml:"quiet"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir:   "./data/simpleorm",
		Namespace: "simpleorm",
		Settings: SettingsConfig{
			Type: SettingsSQLite,
		},
		SQLite: SQLiteConfig{
			JournalMode:   "WAL",
			BusyTimeoutMs: 5000,
			StmtCacheSize: 64,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/simpleorm"
	}
	if c.DatabaseFile == "" {
		c.DatabaseFile = "simpleorm.db"
	}
	if c.Namespace == "" {
		c.Namespace = "simpleorm"
	}
	if c.Settings.Type == "" {
		c.Settings.Type = SettingsSQLite
	}

	if c.Settings.Path == "" {
		switch c.Settings.Type {
		case SettingsSQLite:
			c.Settings.Path = c.DatabasePath()
		case SettingsBolt:
			c.Settings.Path = filepath.Join(c.DataDir, "settings.bolt")
		}
	}
}

// DatabasePath returns the path to the SQLite database file.
func (c *Config) DatabasePath() string {
	if c.DatabaseFile == ":memory:" || filepath.IsAbs(c.DatabaseFile) {
		return c.DatabaseFile
	}
	return filepath.Join(c.DataDir, c.DatabaseFile)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Settings.Type {
	case SettingsSQLite, SettingsBolt, SettingsMemory:
		// Valid types
	default:
		return fmt.Errorf("invalid settings type: %s (must be sqlite, bolt, or memory)", c.Settings.Type)
	}

	if c.Settings.Type == SettingsSQLite && c.DatabaseFile == ":memory:" && c.Settings.Path == c.DatabaseFile {
		return fmt.Errorf("settings type sqlite cannot share an in-memory database, use memory settings instead")
	}

	// Settings keys join namespace and table with "_", so a namespace
	// holding one could claim another namespace's keys.
	if strings.ContainsAny(c.Namespace, " \t\n_") {
		return fmt.Errorf("namespace must not contain whitespace or underscores, got %q", c.Namespace)
	}

	switch strings.ToUpper(c.SQLite.JournalMode) {
	case "", "WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "OFF":
		// Valid modes
	default:
		return fmt.Errorf("invalid sqlite.journal_mode: %s", c.SQLite.JournalMode)
	}

	if c.SQLite.BusyTimeoutMs < 0 {
		return fmt.Errorf("sqlite.busy_timeout_ms must not be negative, got %d", c.SQLite.BusyTimeoutMs)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SIMPLEORM_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SIMPLEORM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SIMPLEORM_DATABASE_FILE"); v != "" {
		cfg.DatabaseFile = v
	}
	if v := os.Getenv("SIMPLEORM_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}

	// Settings configuration
	if v := os.Getenv("SIMPLEORM_SETTINGS_TYPE"); v != "" {
		cfg.Settings.Type = SettingsType(v)
	}
	if v := os.Getenv("SIMPLEORM_SETTINGS_PATH"); v != "" {
		cfg.Settings.Path = v
	}

	// SQLite configuration
	if v := os.Getenv("SIMPLEORM_SQLITE_JOURNAL_MODE"); v != "" {
		cfg.SQLite.JournalMode = v
	}
	if v := os.Getenv("SIMPLEORM_SQLITE_BUSY_TIMEOUT_MS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.SQLite.BusyTimeoutMs)
	}
	if v := os.Getenv("SIMPLEORM_SQLITE_STMT_CACHE_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.SQLite.StmtCacheSize)
	}

	// Logging configuration
	if v := os.Getenv("SIMPLEORM_LOG_QUIET"); v != "" {
		cfg.Logging.Quiet = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.DatabaseFile != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.DatabasePath()))
	}
	if c.Settings.Path != "" && c.Settings.Path != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.Settings.Path))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
