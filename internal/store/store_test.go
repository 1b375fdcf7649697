package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/semindex/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleData() *model.SemanticData {
	router := model.SymbolDefinition{
		SymbolID:    "app.Router",
		Kind:        model.KindType,
		Name:        "Router",
		DisplayName: "Router",
		Location:    model.SourceLocation{FilePath: "app.py", Line: 2},
		Span:        model.SourceSpan{StartLine: 2, EndLine: 4, EndColumn: 20},
		Details:     model.TypeOf(model.TypeDetails{Kind: model.TypeClass, Visibility: model.Public}),
	}
	add := model.SymbolDefinition{
		SymbolID:        "app.Router.add",
		Kind:            model.KindFunction,
		Name:            "add",
		DisplayName:     "add",
		Location:        model.SourceLocation{FilePath: "app.py", Line: 4, Column: 4},
		Span:            model.SourceSpan{StartLine: 4, StartColumn: 4, EndLine: 7, EndColumn: 19},
		EnclosingSymbol: model.Ptr("app.Router"),
		Documentation:   []string{"Add a route."},
		Details: model.FunctionOf(model.FunctionDetails{
			Parameters: []model.Parameter{{Name: "path", ParamType: model.Ptr("str")}},
			Modifiers:  model.FunctionModifiers{Visibility: model.Public},
		}),
	}
	run := model.SymbolDefinition{
		SymbolID:    "app.run",
		Kind:        model.KindFunction,
		Name:        "run",
		DisplayName: "run",
		Location:    model.SourceLocation{FilePath: "app.py", Line: 9},
		Span:        model.SourceSpan{StartLine: 9, EndLine: 12, EndColumn: 14},
		Details:     model.FunctionOf(model.FunctionDetails{}),
	}
	getcwd := model.SymbolDefinition{
		SymbolID:    "os.getcwd",
		Kind:        model.KindFunction,
		Name:        "getcwd",
		DisplayName: "os.getcwd",
		Location:    model.SourceLocation{FilePath: "/usr/lib/python3/os.py", Line: 40},
		IsExternal:  true,
		Details:     model.FunctionOf(model.FunctionDetails{ReturnTypes: []string{"str"}}),
	}
	data := &model.SemanticData{
		ProjectRoot: "/project",
		Documents: []model.DocumentSemantics{
			{
				RelativePath: "app.py",
				Language:     model.LanguagePython,
				Definitions:  []model.SymbolDefinition{router, add, run},
				References: []model.SymbolReference{
					{
						TargetSymbol:    model.Ptr("app.Router.add"),
						Location:        model.SourceLocation{FilePath: "app.py", Line: 10, Column: 8},
						EnclosingSymbol: "app.run",
						Role:            model.RoleCall,
						MethodName:      model.Ptr("add"),
					},
					{
						TargetSymbol:    model.Ptr("os.getcwd"),
						Location:        model.SourceLocation{FilePath: "app.py", Line: 11, Column: 7},
						EnclosingSymbol: "app.run",
						Role:            model.RoleCall,
						AssignedTo:      model.Ptr("app.cwd"),
					},
					{
						Location:        model.SourceLocation{FilePath: "app.py", Line: 5, Column: 8},
						EnclosingSymbol: "app.Router.add",
						Role:            model.RoleCall,
						Receiver:        model.Ptr("app.registry"),
						MethodName:      model.Ptr("register"),
					},
				},
			},
			model.NewDocument("empty.py"),
		},
		ExternalSymbols: []model.SymbolDefinition{getcwd},
	}
	data.Normalize()
	return data
}

func saveSample(t *testing.T, s *Store) *Run {
	t.Helper()
	run := &Run{ID: "run-1", ProjectRoot: "/project", StartedAt: time.Now().Add(-time.Second).Truncate(time.Second)}
	files := []File{
		{Path: "app.py", Hash: ContentHash([]byte("x")), LineCount: 12},
		{Path: "empty.py", LineCount: 0, Status: StatusParseFailed},
	}
	require.NoError(t, s.Save(context.Background(), run, files, sampleData()))
	return run
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"runs", "files", "symbols", "references_", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("k", "1"))
	require.NoError(t, s.SetMetadata("k", "2"))
	v, err = s.GetMetadata("k")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

// =============================================================================
// Save
// =============================================================================

func TestSave_RunAndFiles(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	saveSample(t, s)

	run, err := s.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 2, run.Files)
	assert.Equal(t, 3, run.Definitions)
	assert.Equal(t, 3, run.References)
	assert.Equal(t, 1, run.Unresolved)
	assert.Equal(t, 1, run.Externals)

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "app.py", files[0].Path)
	assert.Equal(t, StatusIndexed, files[0].Status)
	assert.Equal(t, 12, files[0].LineCount)
	assert.Equal(t, StatusParseFailed, files[1].Status)

	f, err := s.FileByPath("nope.py")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestSave_ReplacesPreviousRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	saveSample(t, s)

	data := &model.SemanticData{ProjectRoot: "/project", Documents: []model.DocumentSemantics{model.NewDocument("other.py")}}
	require.NoError(t, s.Save(context.Background(), &Run{ID: "run-2", ProjectRoot: "/project"}, nil, data))

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "other.py", files[0].Path)

	sym, err := s.Symbol("app.Router")
	require.NoError(t, err)
	assert.Nil(t, sym)

	runs, err := s.Runs()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	latest, err := s.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.ID)
}

func TestSave_DuplicateSymbolFirstWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	data := sampleData()
	dup := data.Documents[0].Definitions[0]
	dup.DisplayName = "Shadow"
	data.Documents[1].Definitions = append(data.Documents[1].Definitions, dup)

	require.NoError(t, s.Save(context.Background(), &Run{ID: "r"}, nil, data))
	sym, err := s.Symbol("app.Router")
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, "Router", sym.DisplayName)
}

// =============================================================================
// Reads
// =============================================================================

func TestSymbol_FullDefinition(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	saveSample(t, s)

	sym, err := s.Symbol("app.Router.add")
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, "app.Router", model.Deref(sym.EnclosingSymbol))
	assert.Equal(t, []string{"Add a route."}, sym.Documentation)
	assert.Equal(t, 4, sym.Location.Line)
	assert.Equal(t, "app.py", sym.Location.FilePath)
	fn, ok := sym.Details.Function()
	require.True(t, ok)
	require.Len(t, fn.Parameters, 1)
	assert.Equal(t, "str", model.Deref(fn.Parameters[0].ParamType))

	top, err := s.Symbol("app.run")
	require.NoError(t, err)
	assert.Nil(t, top.EnclosingSymbol)
}

func TestSymbolQueries(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	saveSample(t, s)

	inFile, err := s.SymbolsByFile("app.py")
	require.NoError(t, err)
	require.Len(t, inFile, 3)
	assert.Equal(t, "app.Router", inFile[0].SymbolID)

	byName, err := s.SymbolsByName("getcwd")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.True(t, byName[0].IsExternal)
	assert.Equal(t, "/usr/lib/python3/os.py", byName[0].Location.FilePath)

	children, err := s.SymbolChildren("app.Router")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "app.Router.add", children[0].SymbolID)

	containing, err := s.SymbolsContaining("app.py", 5)
	require.NoError(t, err)
	require.Len(t, containing, 1)
	assert.Equal(t, "app.Router.add", containing[0].SymbolID)

	none, err := s.SymbolsContaining("app.py", 8)
	require.NoError(t, err)
	assert.Empty(t, none)

	externals, err := s.Externals()
	require.NoError(t, err)
	require.Len(t, externals, 1)
	assert.Equal(t, "os.getcwd", externals[0].SymbolID)
}

func TestReferenceQueries(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	saveSample(t, s)

	to, err := s.ReferencesTo("os.getcwd")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "app.cwd", model.Deref(to[0].AssignedTo))
	assert.Equal(t, "app.py", to[0].Location.FilePath)

	from, err := s.ReferencesFrom("app.run")
	require.NoError(t, err)
	assert.Len(t, from, 2)

	unresolved, err := s.Unresolved()
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "app.registry", model.Deref(unresolved[0].Receiver))
	assert.Equal(t, "register", model.Deref(unresolved[0].MethodName))
	assert.Nil(t, unresolved[0].TargetSymbol)

	calls, err := s.ReferencesByRole(model.RoleCall)
	require.NoError(t, err)
	assert.Len(t, calls, 3)
	none, err := s.ReferencesByRole(model.RoleDecorate)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCallEdges(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	saveSample(t, s)

	edges, err := s.CallEdges()
	require.NoError(t, err)
	assert.Equal(t, []Edge{
		{Caller: "app.run", Callee: "app.Router.add", Count: 1},
		{Caller: "app.run", Callee: "os.getcwd", Count: 1},
	}, edges)
}

func TestLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	saveSample(t, s)

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleData(), got)
}

func TestSignatureHash_IgnoresLocation(t *testing.T) {
	t.Parallel()
	a := sampleData().Documents[0].Definitions[1]
	b := a
	b.Location.Line = 40
	b.Span.StartLine = 40
	b.Documentation = []string{"changed"}
	assert.Equal(t, SignatureHash(&a), SignatureHash(&b))

	c := a
	c.Details = model.FunctionOf(model.FunctionDetails{ReturnTypes: []string{"int"}})
	assert.NotEqual(t, SignatureHash(&a), SignatureHash(&c))
}

func TestContentHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContentHash([]byte("abc")), ContentHash([]byte("abc")))
	assert.NotEqual(t, ContentHash([]byte("abc")), ContentHash([]byte("abd")))
	assert.Len(t, ContentHash(nil), 16)
}
