package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/jward/semindex"
	"github.com/jward/semindex/internal/model"
)

// formatSymbolsText formats definitions as aligned columns.
func formatSymbolsText(w io.Writer, defs []*semindex.SymbolDefinition) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tFILE\tLINE\tCOL")
	for _, d := range defs {
		file := d.Location.FilePath
		if d.IsExternal && file == "" {
			file = "(external)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", d.SymbolID, d.Kind, file, d.Location.Line, d.Location.Column)
	}
	tw.Flush()
}

// formatReferencesText formats references as "file:line:col role target" lines.
func formatReferencesText(w io.Writer, refs []semindex.SymbolReference) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tROLE\tTARGET\tENCLOSING")
	for _, r := range refs {
		target := r.Target()
		if target == "" {
			target = "?"
			if m := model.Deref(r.MethodName); m != "" {
				target = "?." + m
			}
		}
		fmt.Fprintf(tw, "%s:%d:%d\t%s\t%s\t%s\n",
			r.Location.FilePath, r.Location.Line, r.Location.Column, r.Role, target, r.EnclosingSymbol)
	}
	tw.Flush()
}

// formatEdgesText formats call edges as aligned columns.
func formatEdgesText(w io.Writer, edges []CLIEdge) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALLER\tCALLEE\tCOUNT")
	for _, e := range edges {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", e.Caller, e.Callee, e.Count)
	}
	tw.Flush()
}

// formatCallGraphText prints graph nodes indented by depth.
func formatCallGraphText(w io.Writer, g CLICallGraph) {
	for _, n := range g.Nodes {
		suffix := ""
		if n.External {
			suffix = " (external)"
		} else if n.Symbol == nil {
			suffix = " (unknown)"
		}
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("  ", n.Depth), n.ID, suffix)
	}
	fmt.Fprintf(w, "\n%d nodes, %d edges, depth %d\n", len(g.Nodes), len(g.Edges), g.Depth)
}

// formatSummaryText formats a run summary as readable text.
func formatSummaryText(w io.Writer, s CLISummary) {
	fmt.Fprintln(w, "Index Summary")
	fmt.Fprintln(w, "=============")
	fmt.Fprintf(w, "Run:         %s (%s)\n", s.RunID, s.StartedAt)
	fmt.Fprintf(w, "Root:        %s\n", s.ProjectRoot)
	fmt.Fprintf(w, "Files:       %d\n", s.Files)
	fmt.Fprintf(w, "Definitions: %d\n", s.Definitions)
	fmt.Fprintf(w, "References:  %d (%d unresolved)\n", s.References, s.Unresolved)
	fmt.Fprintf(w, "Externals:   %d\n", s.Externals)
	fmt.Fprintln(w)

	if len(s.ByKind) > 0 {
		fmt.Fprintln(w, "Definitions by kind:")
		kinds := make([]string, 0, len(s.ByKind))
		for k := range s.ByKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %s: %d\n", k, s.ByKind[model.SymbolKind(k)])
		}
		fmt.Fprintln(w)
	}

	if len(s.ByRole) > 0 {
		fmt.Fprintln(w, "References by role:")
		roles := make([]string, 0, len(s.ByRole))
		for r := range s.ByRole {
			roles = append(roles, string(r))
		}
		sort.Strings(roles)
		for _, r := range roles {
			fmt.Fprintf(w, "  %s: %d\n", r, s.ByRole[model.ReferenceRole(r)])
		}
		fmt.Fprintln(w)
	}

	if len(s.ParseFailed) > 0 {
		fmt.Fprintln(w, "Parse failures:")
		for _, p := range s.ParseFailed {
			fmt.Fprintf(w, "  %s\n", p)
		}
		fmt.Fprintln(w)
	}

	if len(s.TopCallees) > 0 {
		fmt.Fprintln(w, "Most called:")
		for _, e := range s.TopCallees {
			fmt.Fprintf(w, "  %s -> %s (%d)\n", e.Caller, e.Callee, e.Count)
		}
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []*semindex.SymbolDefinition:
		formatSymbolsText(w, v)
	case *semindex.SymbolDefinition:
		formatSymbolsText(w, []*semindex.SymbolDefinition{v})
	case []semindex.SymbolReference:
		formatReferencesText(w, v)
	case []CLIEdge:
		formatEdgesText(w, v)
	case CLICallGraph:
		formatCallGraphText(w, v)
	case CLISummary:
		formatSummaryText(w, v)
	case nil:
		// No output for nil results (e.g., an unknown symbol).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}
