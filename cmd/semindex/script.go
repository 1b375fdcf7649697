package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/risor-io/risor/object"
	"github.com/spf13/cobra"

	"github.com/jward/semindex"
	"github.com/jward/semindex/internal/runtime"
	"github.com/jward/semindex/scripts"
)

var flagScriptsDir string

var scriptCmd = &cobra.Command{
	Use:   "script <name|file.risor> [args...]",
	Short: "Run a Risor report script against the index",
	Long: `Runs a bundled report (summary, unresolved, hotspots) or a .risor file
from disk. Remaining arguments are visible to the script as the "args" list.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScript,
}

func init() {
	scriptCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load scripts from this directory instead of the bundled set")
}

func runScript(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	var s *semindex.Store
	if dbPath := resolveDBPath(repoRoot, cfg); dbPath != "" {
		if _, err := os.Stat(dbPath); err == nil {
			s, err = semindex.OpenStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
		} else {
			logger.Warn("script.no_index", "db", dbPath)
		}
	}

	name := args[0]
	opts := []runtime.RuntimeOption{
		runtime.WithLogger(logger),
		runtime.WithOutput(cmd.OutOrStdout()),
	}
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		// A file on disk always wins over a bundled script of the same name.
		if name, err = filepath.Abs(name); err != nil {
			return fmt.Errorf("resolving %s: %w", args[0], err)
		}
	} else if flagScriptsDir == "" {
		opts = append(opts, runtime.WithRuntimeFS(scripts.FS))
	}

	scriptArgs := make([]object.Object, 0, len(args)-1)
	for _, a := range args[1:] {
		scriptArgs = append(scriptArgs, object.NewString(a))
	}

	rt := runtime.NewRuntime(s, flagScriptsDir, opts...)
	return rt.RunScript(contextOrBackground(cmd.Context()), name, map[string]any{
		"args": object.NewList(scriptArgs),
	})
}
