package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a configuration loader for the given project root.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (SEMINDEX_*)
// 2. Config file (.semindex/config.yml or .semindex/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(l.rootDir, Dir))

	// SEMINDEX_ORACLE_CACHE_SIZE overrides oracle.cache_size.
	v.SetEnvPrefix("SEMINDEX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"paths.include", "paths.exclude", "paths.include_tests",
		"oracle.command", "oracle.cache_size", "oracle.timeout",
		"index.workers", "index.parallel", "index.database",
		"output.format",
		"log.level",
	} {
		_ = v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Oracle.Command = SplitCommand(cfg.Oracle.Command)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("paths.include", d.Paths.Include)
	v.SetDefault("paths.exclude", d.Paths.Exclude)
	v.SetDefault("paths.include_tests", d.Paths.IncludeTests)

	v.SetDefault("oracle.command", d.Oracle.Command)
	v.SetDefault("oracle.cache_size", d.Oracle.CacheSize)
	v.SetDefault("oracle.timeout", d.Oracle.Timeout)

	v.SetDefault("index.workers", d.Index.Workers)
	v.SetDefault("index.parallel", d.Index.Parallel)
	v.SetDefault("index.database", d.Index.Database)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("log.level", d.Log.Level)
}

// LoadFromDir loads configuration for a project root.
func LoadFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}

// SplitCommand splits a single space-separated command string, as set
// through the environment, into program and arguments.
func SplitCommand(cmd []string) []string {
	if len(cmd) == 1 {
		return strings.Fields(cmd[0])
	}
	return cmd
}
