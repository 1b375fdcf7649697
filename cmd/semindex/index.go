package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/semindex"
	"github.com/jward/semindex/internal/config"
)

var (
	flagOut          string
	flagInclude      []string
	flagExclude      []string
	flagIncludeTests bool
	flagOracleCmd    string
	flagWorkers      int
	flagNoProgress   bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a Python project",
	Long:  "Discovers the .py files under path, extracts definitions, resolves references and writes the project record. The record goes to stdout unless --out is given; the SQLite index is refreshed when a database is configured.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&flagOut, "out", "o", "", "write the project record to a file instead of stdout")
	indexCmd.Flags().StringSliceVar(&flagInclude, "include", nil, "only index paths matching these globs (* also matches /)")
	indexCmd.Flags().StringSliceVar(&flagExclude, "exclude", nil, "skip paths matching these globs (* also matches /)")
	indexCmd.Flags().BoolVar(&flagIncludeTests, "include-tests", false, "index test directories and test files")
	indexCmd.Flags().StringVar(&flagOracleCmd, "oracle-cmd", "", "resolve through an external JSON-lines oracle command")
	indexCmd.Flags().IntVar(&flagWorkers, "workers", 0, "files processed concurrently (default: one per CPU)")
	indexCmd.Flags().BoolVar(&flagNoProgress, "no-progress", false, "hide progress bars")
}

// applyIndexFlags overrides config values with the flags the user set.
func applyIndexFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("include") {
		cfg.Paths.Include = flagInclude
	}
	if flags.Changed("exclude") {
		cfg.Paths.Exclude = flagExclude
	}
	if flags.Changed("include-tests") {
		cfg.Paths.IncludeTests = flagIncludeTests
	}
	if flags.Changed("oracle-cmd") {
		cfg.Oracle.Command = strings.Fields(flagOracleCmd)
	}
	if flags.Changed("workers") {
		cfg.Index.Workers = flagWorkers
	}
	if flagFormat != "" {
		cfg.Output.Format = flagFormat
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return config.Validate(cfg)
}

// engineOptions translates a configuration into engine options.
func engineOptions(cfg *config.Config) []semindex.Option {
	opts := []semindex.Option{
		semindex.WithWorkers(cfg.Index.Workers),
		semindex.WithParallel(cfg.Index.Parallel),
		semindex.WithOracleCache(cfg.Oracle.CacheSize),
	}
	if len(cfg.Oracle.Command) > 0 {
		opts = append(opts, semindex.WithOracleCommand(cfg.Oracle.Command, cfg.Oracle.Timeout))
	}
	return opts
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	repoRoot := findRepoRoot(targetDir)

	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return err
	}
	if err := applyIndexFlags(cmd, cfg); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	logger := setupLogger(cfg)

	format, err := semindex.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	opts := append(engineOptions(cfg), semindex.WithLogger(logger))
	if !flagNoProgress {
		opts = append(opts, semindex.WithProgress(newPassProgress(os.Stderr).update))
	}

	dbPath := resolveDBPath(repoRoot, cfg)
	if dbPath != "" {
		s, err := semindex.OpenStore(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()
		opts = append(opts, semindex.WithStore(s))
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt)
	defer stop()

	engine := semindex.New(opts...)
	res, err := engine.IndexDirectory(ctx, targetDir, semindex.DiscoverOptions{
		Include:      cfg.Paths.Include,
		Exclude:      cfg.Paths.Exclude,
		IncludeTests: cfg.Paths.IncludeTests,
	})
	if err != nil {
		if res == nil || ctx.Err() != nil {
			return fmt.Errorf("indexing: %w", err)
		}
		// The record is complete; only persistence failed.
		logger.Error("store.save.err", "db", dbPath, "err", err)
	}

	if err := writeRecord(cmd.OutOrStdout(), res.Data, format); err != nil {
		return err
	}

	st := res.Data.Stats()
	fmt.Fprintf(os.Stderr, "Indexed %d files in %s (definitions: %s, references: %s)\n",
		len(res.Files),
		time.Since(start).Round(time.Millisecond),
		res.DefinitionsElapsed.Round(time.Millisecond),
		res.ReferencesElapsed.Round(time.Millisecond),
	)
	fmt.Fprintf(os.Stderr, "%d definitions, %d references (%d unresolved), %d external symbols\n",
		st.Definitions, st.References, st.Unresolved, st.Externals)
	if dbPath != "" && err == nil {
		fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)
	}
	return err
}

// writeRecord encodes data to --out, or to stdout when no file was given.
func writeRecord(stdout io.Writer, data *semindex.SemanticData, format semindex.Format) error {
	if flagOut == "" {
		return semindex.Encode(stdout, data, format)
	}
	f, err := os.Create(flagOut)
	if err != nil {
		return fmt.Errorf("creating %s: %w", flagOut, err)
	}
	if err := semindex.Encode(f, data, format); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", flagOut, err)
	}
	return f.Close()
}

// contextOrBackground guards against commands run without a context.
func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
