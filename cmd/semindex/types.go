package main

import (
	"github.com/jward/semindex"
	"github.com/jward/semindex/internal/model"
)

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIEdge is a JSON-friendly aggregated call edge.
type CLIEdge struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
	Count  int    `json:"count"`
}

// CLIGraphNode is one node of a transitive call graph.
type CLIGraphNode struct {
	ID       string                     `json:"id"`
	Depth    int                        `json:"depth"`
	Symbol   *semindex.SymbolDefinition `json:"symbol,omitempty"`
	External bool                       `json:"is_external"`
}

// CLICallGraph is a JSON-friendly transitive call graph.
type CLICallGraph struct {
	Root  string         `json:"root"`
	Depth int            `json:"depth"`
	Nodes []CLIGraphNode `json:"nodes"`
	Edges []CLIEdge      `json:"edges"`
}

// CLISummary is a JSON-friendly description of the latest run.
type CLISummary struct {
	RunID       string                      `json:"run_id"`
	ProjectRoot string                      `json:"project_root"`
	StartedAt   string                      `json:"started_at"`
	Files       int                         `json:"files"`
	Definitions int                         `json:"definitions"`
	References  int                         `json:"references"`
	Unresolved  int                         `json:"unresolved"`
	Externals   int                         `json:"externals"`
	ParseFailed []string                    `json:"parse_failed"`
	ByKind      map[model.SymbolKind]int    `json:"by_kind"`
	ByRole      map[model.ReferenceRole]int `json:"by_role"`
	TopCallees  []CLIEdge                   `json:"top_callees"`
}

func edgesToCLI(edges []semindex.Edge) []CLIEdge {
	out := make([]CLIEdge, len(edges))
	for i, e := range edges {
		out[i] = CLIEdge{Caller: e.Caller, Callee: e.Callee, Count: e.Count}
	}
	return out
}

func graphToCLI(g *semindex.CallGraph) CLICallGraph {
	out := CLICallGraph{
		Root:  g.Root,
		Depth: g.Depth,
		Nodes: make([]CLIGraphNode, len(g.Nodes)),
		Edges: edgesToCLI(g.Edges),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = CLIGraphNode{ID: n.ID, Depth: n.Depth, Symbol: n.Symbol}
		if n.Symbol != nil {
			out.Nodes[i].External = n.Symbol.IsExternal
		}
	}
	return out
}

func summaryToCLI(s *semindex.Summary) CLISummary {
	parseFailed := s.ParseFailed
	if parseFailed == nil {
		parseFailed = []string{}
	}
	return CLISummary{
		RunID:       s.Run.ID,
		ProjectRoot: s.Run.ProjectRoot,
		StartedAt:   s.Run.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Files:       s.Run.Files,
		Definitions: s.Run.Definitions,
		References:  s.Run.References,
		Unresolved:  s.Run.Unresolved,
		Externals:   s.Run.Externals,
		ParseFailed: parseFailed,
		ByKind:      s.ByKind,
		ByRole:      s.ByRole,
		TopCallees:  edgesToCLI(s.TopCallees),
	}
}

// referencesToWire strips store row ids.
func referencesToWire(refs []*semindex.Reference) []semindex.SymbolReference {
	out := make([]semindex.SymbolReference, len(refs))
	for i, r := range refs {
		out[i] = r.SymbolReference
	}
	return out
}
