package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/semindex"
)

var flagDepth int

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the semantic index",
	Long:  "Run queries against the SQLite index written by 'semindex index'. Symbols are addressed by their dotted id (pkg.mod.Class.method). All line and column numbers are 0-based.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagFormat == "" {
			flagFormat = "json"
		}
		return checkFormat(flagFormat, "json", "text")
	},
}

func init() {
	queryCmd.AddCommand(symbolCmd)
	queryCmd.AddCommand(symbolsCmd)
	queryCmd.AddCommand(findCmd)
	queryCmd.AddCommand(definitionCmd)
	queryCmd.AddCommand(refsCmd)
	queryCmd.AddCommand(refsFromCmd)
	queryCmd.AddCommand(callersCmd)
	queryCmd.AddCommand(calleesCmd)
	queryCmd.AddCommand(unresolvedCmd)
	queryCmd.AddCommand(externalsCmd)
	queryCmd.AddCommand(summaryCmd)

	for _, c := range []*cobra.Command{callersCmd, calleesCmd} {
		c.Flags().IntVar(&flagDepth, "depth", 1, "follow calls transitively up to this depth (max 100)")
	}
}

// --- Helpers ---

// openStore opens the index for the repository containing the current
// directory.
func openStore() (*semindex.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return nil, err
	}
	setupLogger(cfg)

	dbPath := resolveDBPath(repoRoot, cfg)
	if dbPath == "" {
		return nil, fmt.Errorf("no database configured (set index.database or pass --db)")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'semindex index' first)", dbPath)
	}
	return semindex.OpenStore(dbPath)
}

// parseIntArg parses a positional argument as a non-negative integer.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(cmd.OutOrStdout(), result)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// runQuery opens the store, runs fn and writes its result. A nil result
// with a nil error means "nothing found".
func runQuery(cmd *cobra.Command, command string, fn func(q *semindex.QueryBuilder) (any, int, error)) error {
	s, err := openStore()
	if err != nil {
		return outputError(cmd, command, err)
	}
	defer s.Close()

	results, count, err := fn(semindex.NewQueryBuilder(s))
	if err != nil {
		return outputError(cmd, command, err)
	}
	out := CLIResult{Command: command, Results: results}
	if results != nil {
		out.TotalCount = &count
	}
	return outputResult(cmd, out)
}

// --- Symbol Commands ---

var symbolCmd = &cobra.Command{
	Use:   "symbol <id>",
	Short: "Show the definition with the given symbol id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "symbol", func(q *semindex.QueryBuilder) (any, int, error) {
			def, err := q.Symbol(args[0])
			if err != nil || def == nil {
				return nil, 0, err
			}
			return def, 1, nil
		})
	},
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols <file>",
	Short: "List the definitions of a project file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "symbols", func(q *semindex.QueryBuilder) (any, int, error) {
			defs, err := q.SymbolsInFile(args[0])
			return nonNil(defs), len(defs), err
		})
	},
}

var findCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Find definitions, project or external, by simple name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "find", func(q *semindex.QueryBuilder) (any, int, error) {
			defs, err := q.SymbolsByName(args[0])
			return nonNil(defs), len(defs), err
		})
	},
}

var definitionCmd = &cobra.Command{
	Use:   "definition <file> <line> <col>",
	Short: "Find the definition for a position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := parseIntArg(args[1], "line")
		if err != nil {
			return outputError(cmd, "definition", err)
		}
		col, err := parseIntArg(args[2], "col")
		if err != nil {
			return outputError(cmd, "definition", err)
		}
		return runQuery(cmd, "definition", func(q *semindex.QueryBuilder) (any, int, error) {
			def, err := q.DefinitionAt(args[0], line, col)
			if err != nil || def == nil {
				return nil, 0, err
			}
			return def, 1, nil
		})
	},
}

// --- Reference Commands ---

var refsCmd = &cobra.Command{
	Use:   "refs <id>",
	Short: "List references to a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "refs", func(q *semindex.QueryBuilder) (any, int, error) {
			refs, err := q.ReferencesTo(args[0])
			return referencesToWire(refs), len(refs), err
		})
	},
}

var refsFromCmd = &cobra.Command{
	Use:   "refs-from <id>",
	Short: "List references made inside a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "refs-from", func(q *semindex.QueryBuilder) (any, int, error) {
			refs, err := q.ReferencesFrom(args[0])
			return referencesToWire(refs), len(refs), err
		})
	},
}

var unresolvedCmd = &cobra.Command{
	Use:   "unresolved",
	Short: "List references whose target could not be determined",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "unresolved", func(q *semindex.QueryBuilder) (any, int, error) {
			refs, err := q.Unresolved()
			return referencesToWire(refs), len(refs), err
		})
	},
}

var externalsCmd = &cobra.Command{
	Use:   "externals",
	Short: "List the out-of-project symbols the project uses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "externals", func(q *semindex.QueryBuilder) (any, int, error) {
			defs, err := q.Externals()
			return nonNil(defs), len(defs), err
		})
	},
}

// --- Call Graph Commands ---

var callersCmd = &cobra.Command{
	Use:   "callers <id>",
	Short: "List the callers of a symbol",
	Long:  "Lists direct callers. With --depth greater than 1 the transitive caller graph is returned instead.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "callers", func(q *semindex.QueryBuilder) (any, int, error) {
			return callGraphQuery(args[0], q.Callers, q.TransitiveCallers)
		})
	},
}

var calleesCmd = &cobra.Command{
	Use:   "callees <id>",
	Short: "List the callees of a symbol",
	Long:  "Lists direct callees. With --depth greater than 1 the transitive callee graph is returned instead.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "callees", func(q *semindex.QueryBuilder) (any, int, error) {
			return callGraphQuery(args[0], q.Callees, q.TransitiveCallees)
		})
	},
}

func callGraphQuery(
	id string,
	direct func(string) ([]semindex.Edge, error),
	transitive func(string, int) (*semindex.CallGraph, error),
) (any, int, error) {
	if flagDepth < 1 {
		return nil, 0, fmt.Errorf("invalid depth %d: must be at least 1", flagDepth)
	}
	if flagDepth == 1 {
		edges, err := direct(id)
		return edgesToCLI(edges), len(edges), err
	}
	g, err := transitive(id, flagDepth)
	if err != nil || g == nil {
		return nil, 0, err
	}
	return graphToCLI(g), len(g.Nodes), nil
}

// --- Summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Describe the latest indexing run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "summary", func(q *semindex.QueryBuilder) (any, int, error) {
			sum, err := q.Summary()
			if err != nil || sum == nil {
				return nil, 0, err
			}
			return summaryToCLI(sum), 1, nil
		})
	},
}

// nonNil keeps empty result lists encoded as [] rather than null.
func nonNil(defs []*semindex.SymbolDefinition) []*semindex.SymbolDefinition {
	if defs == nil {
		return []*semindex.SymbolDefinition{}
	}
	return defs
}
