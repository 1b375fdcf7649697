// Package config loads indexer settings from .semindex/config.yml with
// SEMINDEX_* environment overrides.
package config

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Dir is the per-project settings and data directory.
const Dir = ".semindex"

// Config is the complete indexer configuration.
type Config struct {
	Paths  PathsConfig  `yaml:"paths" mapstructure:"paths"`
	Oracle OracleConfig `yaml:"oracle" mapstructure:"oracle"`
	Index  IndexConfig  `yaml:"index" mapstructure:"index"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// PathsConfig selects the files to index.
type PathsConfig struct {
	Include      []string `yaml:"include" mapstructure:"include"`             // globs; empty keeps everything
	Exclude      []string `yaml:"exclude" mapstructure:"exclude"`             // globs to drop
	IncludeTests bool     `yaml:"include_tests" mapstructure:"include_tests"` // keep test paths
}

// OracleConfig selects the resolution oracle. An empty command uses the
// built-in static oracle.
type OracleConfig struct {
	Command   []string      `yaml:"command" mapstructure:"command"`
	CacheSize int           `yaml:"cache_size" mapstructure:"cache_size"` // 0 disables caching
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`       // per-call, command oracle only
}

// IndexConfig tunes the pipeline and persistence.
type IndexConfig struct {
	Workers  int    `yaml:"workers" mapstructure:"workers"` // 0 means one per CPU
	Parallel bool   `yaml:"parallel" mapstructure:"parallel"`
	Database string `yaml:"database" mapstructure:"database"` // relative to the project root; empty disables
}

// OutputConfig controls the project record encoding.
type OutputConfig struct {
	Format string `yaml:"format" mapstructure:"format"` // json or yaml
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"` // debug, info, warn, error
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Include: []string{},
			Exclude: []string{},
		},
		Oracle: OracleConfig{
			Command:   []string{},
			CacheSize: 100_000,
			Timeout:   10 * time.Second,
		},
		Index: IndexConfig{
			Parallel: true,
			Database: filepath.Join(Dir, "index.db"),
		},
		Output: OutputConfig{Format: "json"},
		Log:    LogConfig{Level: "info"},
	}
}

// DatabasePath resolves the database path against root. Returns "" when
// persistence is disabled.
func (c *Config) DatabasePath(root string) string {
	db := strings.TrimSpace(c.Index.Database)
	if db == "" {
		return ""
	}
	if filepath.IsAbs(db) {
		return db
	}
	return filepath.Join(root, db)
}

// SlogLevel maps the configured level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
