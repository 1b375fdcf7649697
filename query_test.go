package semindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/semindex/internal/model"
)

const pipelineSource = `import os


def load():
    return os.getcwd()


def transform():
    return load()


def run():
    transform()
    transform()
    return load()


class Worker:
    def work(self):
        return run()


def orphan():
    return missing.thing()
`

func newTestQueryBuilder(t *testing.T) *QueryBuilder {
	t.Helper()
	s := newTestStore(t)
	e := New(WithStore(s))
	_, err := e.Run(context.Background(), t.TempDir(), []SourceFile{
		{Path: "pipeline.py", Content: []byte(pipelineSource)},
	})
	require.NoError(t, err)
	return e.Query()
}

func nodeIDs(g *CallGraph) map[string]int {
	out := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		out[n.ID] = n.Depth
	}
	return out
}

// =============================================================================
// Symbols
// =============================================================================

func TestQuery_Symbols(t *testing.T) {
	t.Parallel()
	q := newTestQueryBuilder(t)

	run, err := q.Symbol("pipeline.run")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.KindFunction, run.Kind)
	assert.Equal(t, 11, run.Location.Line)

	missing, err := q.Symbol("pipeline.nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	defs, err := q.SymbolsInFile("pipeline.py")
	require.NoError(t, err)
	var ids []string
	for _, d := range defs {
		ids = append(ids, d.SymbolID)
	}
	assert.ElementsMatch(t, []string{
		"pipeline.load",
		"pipeline.transform",
		"pipeline.run",
		"pipeline.Worker",
		"pipeline.Worker.work",
		"pipeline.orphan",
	}, ids)

	byName, err := q.SymbolsByName("getcwd")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.True(t, byName[0].IsExternal)
}

func TestQuery_DefinitionAt(t *testing.T) {
	t.Parallel()
	q := newTestQueryBuilder(t)

	tests := []struct {
		name      string
		line, col int
		want      string
	}{
		{"call site resolves to callee", 8, 11, "pipeline.load"},
		{"call site inside identifier", 8, 13, "pipeline.load"},
		{"external call", 4, 14, "os.getcwd"},
		{"before call falls back to enclosing", 8, 4, "pipeline.transform"},
		{"method header", 18, 8, "pipeline.Worker.work"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := q.DefinitionAt("pipeline.py", tt.line, tt.col)
			require.NoError(t, err)
			require.NotNil(t, def)
			assert.Equal(t, tt.want, def.SymbolID)
		})
	}

	none, err := q.DefinitionAt("pipeline.py", 1, 0)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSpanContains(t *testing.T) {
	t.Parallel()
	span := model.SourceSpan{StartLine: 3, StartColumn: 4, EndLine: 5, EndColumn: 10}
	assert.True(t, spanContains(span, 3, 4))
	assert.False(t, spanContains(span, 3, 2))
	assert.True(t, spanContains(span, 4, 0))
	assert.False(t, spanContains(span, 5, 0))
	assert.False(t, spanContains(span, 2, 8))
}

// =============================================================================
// References and call edges
// =============================================================================

func TestQuery_References(t *testing.T) {
	t.Parallel()
	q := newTestQueryBuilder(t)

	to, err := q.ReferencesTo("pipeline.transform")
	require.NoError(t, err)
	require.Len(t, to, 2)
	for _, r := range to {
		assert.Equal(t, "pipeline.run", r.EnclosingSymbol)
		assert.Equal(t, model.RoleCall, r.Role)
	}

	from, err := q.ReferencesFrom("pipeline.run")
	require.NoError(t, err)
	assert.Len(t, from, 3)

	unresolved, err := q.Unresolved()
	require.NoError(t, err)
	var methods []string
	for _, r := range unresolved {
		methods = append(methods, model.Deref(r.MethodName))
	}
	assert.Contains(t, methods, "thing")

	externals, err := q.Externals()
	require.NoError(t, err)
	require.NotEmpty(t, externals)
	assert.Equal(t, "os.getcwd", externals[0].SymbolID)
}

func TestQuery_CallersAndCallees(t *testing.T) {
	t.Parallel()
	q := newTestQueryBuilder(t)

	callers, err := q.Callers("pipeline.load")
	require.NoError(t, err)
	assert.Equal(t, []Edge{
		{Caller: "pipeline.run", Callee: "pipeline.load", Count: 1},
		{Caller: "pipeline.transform", Callee: "pipeline.load", Count: 1},
	}, callers)

	callees, err := q.Callees("pipeline.run")
	require.NoError(t, err)
	assert.Equal(t, []Edge{
		{Caller: "pipeline.run", Callee: "pipeline.load", Count: 1},
		{Caller: "pipeline.run", Callee: "pipeline.transform", Count: 2},
	}, callees)

	none, err := q.Callers("pipeline.orphan")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// Transitive call graph
// =============================================================================

func TestTransitiveCallers_Depth2(t *testing.T) {
	t.Parallel()
	q := newTestQueryBuilder(t)

	g, err := q.TransitiveCallers("os.getcwd", 2)
	require.NoError(t, err)
	require.NotNil(t, g)

	assert.Equal(t, "os.getcwd", g.Root)
	assert.Equal(t, 2, g.Depth)
	assert.Equal(t, map[string]int{
		"os.getcwd":          0,
		"pipeline.load":      1,
		"pipeline.run":       2,
		"pipeline.transform": 2,
	}, nodeIDs(g))
	require.NotNil(t, g.Nodes[0].Symbol)
	assert.True(t, g.Nodes[0].Symbol.IsExternal)

	assert.Equal(t, []Edge{
		{Caller: "pipeline.load", Callee: "os.getcwd", Count: 1},
		{Caller: "pipeline.run", Callee: "pipeline.load", Count: 1},
		{Caller: "pipeline.run", Callee: "pipeline.transform", Count: 2},
		{Caller: "pipeline.transform", Callee: "pipeline.load", Count: 1},
	}, g.Edges)
}

func TestTransitiveCallers_StopsAtGraphBoundary(t *testing.T) {
	t.Parallel()
	q := newTestQueryBuilder(t)

	g, err := q.TransitiveCallers("os.getcwd", 50)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Depth)
	assert.Equal(t, 3, nodeIDs(g)["pipeline.Worker.work"])
	assert.Len(t, g.Nodes, 5)
}

func TestTransitiveCallees(t *testing.T) {
	t.Parallel()
	q := newTestQueryBuilder(t)

	g, err := q.TransitiveCallees("pipeline.Worker.work", 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"pipeline.Worker.work": 0, "pipeline.run": 1}, nodeIDs(g))
	assert.Equal(t, []Edge{{Caller: "pipeline.Worker.work", Callee: "pipeline.run", Count: 1}}, g.Edges)

	full, err := q.TransitiveCallees("pipeline.Worker.work", 200)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"pipeline.Worker.work": 0,
		"pipeline.run":         1,
		"pipeline.load":        2,
		"pipeline.transform":   2,
		"os.getcwd":            3,
	}, nodeIDs(full))
	assert.Len(t, full.Edges, 5)
}

func TestTransitive_DepthRules(t *testing.T) {
	t.Parallel()
	q := newTestQueryBuilder(t)

	_, err := q.TransitiveCallers("pipeline.load", -1)
	require.Error(t, err)

	root, err := q.TransitiveCallees("pipeline.run", 0)
	require.NoError(t, err)
	require.Len(t, root.Nodes, 1)
	assert.Empty(t, root.Edges)
	assert.Equal(t, 0, root.Depth)

	isolated, err := q.TransitiveCallers("pipeline.orphan", 3)
	require.NoError(t, err)
	require.NotNil(t, isolated)
	require.Len(t, isolated.Nodes, 1)
	assert.NotNil(t, isolated.Nodes[0].Symbol)

	unknown, err := q.TransitiveCallees("pipeline.nope", 3)
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

// =============================================================================
// Summary
// =============================================================================

func TestQuery_Summary(t *testing.T) {
	t.Parallel()
	q := newTestQueryBuilder(t)

	sum, err := q.Summary()
	require.NoError(t, err)
	require.NotNil(t, sum)

	require.NotNil(t, sum.Run)
	assert.Equal(t, 1, sum.Run.Files)
	assert.Empty(t, sum.ParseFailed)
	assert.Equal(t, 5, sum.ByKind[model.KindFunction])
	assert.Equal(t, 1, sum.ByKind[model.KindType])
	assert.Equal(t, 7, sum.ByRole[model.RoleCall])
	require.NotEmpty(t, sum.TopCallees)
	assert.Equal(t, Edge{Caller: "pipeline.run", Callee: "pipeline.transform", Count: 2}, sum.TopCallees[0])
}

func TestQuery_SummaryWithoutRun(t *testing.T) {
	t.Parallel()
	q := NewQueryBuilder(newTestStore(t))
	sum, err := q.Summary()
	require.NoError(t, err)
	assert.Nil(t, sum)
}

func TestTopEdges(t *testing.T) {
	t.Parallel()
	edges := []Edge{
		{Caller: "a", Callee: "b", Count: 1},
		{Caller: "a", Callee: "c", Count: 3},
		{Caller: "b", Callee: "c", Count: 3},
		{Caller: "c", Callee: "d", Count: 2},
	}
	assert.Equal(t, []Edge{
		{Caller: "a", Callee: "c", Count: 3},
		{Caller: "b", Callee: "c", Count: 3},
	}, topEdges(edges, 2))
	assert.Len(t, topEdges(edges, 10), 4)
}
