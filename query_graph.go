package semindex

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"
)

// maxGraphDepth caps transitive traversals.
const maxGraphDepth = 100

// CallGraph is the part of the call graph reachable from Root within Depth
// hops.
type CallGraph struct {
	Root  string
	Nodes []CallGraphNode // Root first, then by depth and id
	Edges []Edge
	Depth int // deepest level actually reached
}

// CallGraphNode is one symbol in a CallGraph. Symbol is nil when the id is
// not a stored definition.
type CallGraphNode struct {
	ID     string
	Symbol *SymbolDefinition
	Depth  int
}

// buildCallGraph loads every resolved call edge into a directed graph
// weighted by call-site count.
func (q *QueryBuilder) buildCallGraph() (graph.Graph[string, string], error) {
	edges, err := q.store.CallEdges()
	if err != nil {
		return nil, err
	}
	g := graph.New(graph.StringHash, graph.Directed())
	for _, e := range edges {
		for _, v := range []string{e.Caller, e.Callee} {
			if err := g.AddVertex(v); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
				return nil, fmt.Errorf("add vertex %s: %w", v, err)
			}
		}
		if err := g.AddEdge(e.Caller, e.Callee, graph.EdgeWeight(e.Count)); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return nil, fmt.Errorf("add edge %s -> %s: %w", e.Caller, e.Callee, err)
		}
	}
	return g, nil
}

// TransitiveCallers returns every symbol that reaches id through at most
// maxDepth calls. maxDepth 0 returns only the root; negative is an error;
// values above 100 are capped. Returns nil, nil when id is unknown.
func (q *QueryBuilder) TransitiveCallers(id string, maxDepth int) (*CallGraph, error) {
	cg, err := q.transitive(id, maxDepth, true)
	if err != nil {
		return nil, fmt.Errorf("transitive callers: %w", err)
	}
	return cg, nil
}

// TransitiveCallees returns every symbol id reaches through at most maxDepth
// calls, with the same depth rules as TransitiveCallers.
func (q *QueryBuilder) TransitiveCallees(id string, maxDepth int) (*CallGraph, error) {
	cg, err := q.transitive(id, maxDepth, false)
	if err != nil {
		return nil, fmt.Errorf("transitive callees: %w", err)
	}
	return cg, nil
}

func (q *QueryBuilder) transitive(id string, maxDepth int, reverse bool) (*CallGraph, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("maxDepth must be non-negative, got %d", maxDepth)
	}
	maxDepth = min(maxDepth, maxGraphDepth)

	g, err := q.buildCallGraph()
	if err != nil {
		return nil, err
	}
	rootSym, err := q.store.Symbol(id)
	if err != nil {
		return nil, err
	}
	if _, vErr := g.Vertex(id); rootSym == nil && vErr != nil {
		return nil, nil
	}

	result := &CallGraph{
		Root:  id,
		Nodes: []CallGraphNode{{ID: id, Symbol: rootSym}},
		Edges: []Edge{},
	}
	if maxDepth == 0 {
		return result, nil
	}

	adjacency, err := g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	if reverse {
		if adjacency, err = g.PredecessorMap(); err != nil {
			return nil, err
		}
	}

	// BFS over the adjacency map, recording the depth each id is first seen.
	visited := map[string]int{id: 0}
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		depth := visited[current]
		if depth >= maxDepth {
			continue
		}
		for next := range adjacency[current] {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = depth + 1
			result.Depth = max(result.Depth, depth+1)
			queue = append(queue, next)
		}
	}

	var ids []string
	for v := range visited {
		if v != id {
			ids = append(ids, v)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if visited[ids[i]] != visited[ids[j]] {
			return visited[ids[i]] < visited[ids[j]]
		}
		return ids[i] < ids[j]
	})
	for _, v := range ids {
		sym, err := q.store.Symbol(v)
		if err != nil {
			return nil, err
		}
		result.Nodes = append(result.Nodes, CallGraphNode{ID: v, Symbol: sym, Depth: visited[v]})
	}

	// Edges between visited nodes, in the traversal direction.
	for v := range visited {
		for next, e := range adjacency[v] {
			if _, ok := visited[next]; !ok {
				continue
			}
			caller, callee := e.Source, e.Target
			result.Edges = append(result.Edges, Edge{Caller: caller, Callee: callee, Count: e.Properties.Weight})
		}
	}
	sort.Slice(result.Edges, func(i, j int) bool {
		if result.Edges[i].Caller != result.Edges[j].Caller {
			return result.Edges[i].Caller < result.Edges[j].Caller
		}
		return result.Edges[i].Callee < result.Edges[j].Callee
	})
	return result, nil
}
