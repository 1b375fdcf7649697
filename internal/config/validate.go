package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidFormat indicates an unsupported output format.
	ErrInvalidFormat = errors.New("invalid output format")

	// ErrInvalidLevel indicates an unknown log level.
	ErrInvalidLevel = errors.New("invalid log level")

	// ErrInvalidWorkers indicates a negative worker count.
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidOracle indicates invalid oracle settings.
	ErrInvalidOracle = errors.New("invalid oracle settings")

	// ErrEmptyPattern indicates a blank include or exclude glob.
	ErrEmptyPattern = errors.New("empty path pattern")
)

// Validate checks that the configuration is valid and complete. Every
// problem is reported, not just the first.
func Validate(cfg *Config) error {
	var errs []error

	switch strings.ToLower(cfg.Output.Format) {
	case "json", "yaml", "yml":
	default:
		errs = append(errs, fmt.Errorf("%w: must be json or yaml, got %q", ErrInvalidFormat, cfg.Output.Format))
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLevel, cfg.Log.Level))
	}

	if cfg.Index.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: must be >= 0, got %d", ErrInvalidWorkers, cfg.Index.Workers))
	}

	if cfg.Oracle.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("%w: cache_size must be >= 0, got %d", ErrInvalidOracle, cfg.Oracle.CacheSize))
	}
	if cfg.Oracle.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: timeout must be >= 0, got %s", ErrInvalidOracle, cfg.Oracle.Timeout))
	}
	if len(cfg.Oracle.Command) > 0 && strings.TrimSpace(cfg.Oracle.Command[0]) == "" {
		errs = append(errs, fmt.Errorf("%w: command has an empty program", ErrInvalidOracle))
	}

	for _, p := range cfg.Paths.Include {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("%w in paths.include", ErrEmptyPattern))
		}
	}
	for _, p := range cfg.Paths.Exclude {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("%w in paths.exclude", ErrEmptyPattern))
		}
	}

	return errors.Join(errs...)
}
