package semindex

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/oracle"
	"github.com/jward/semindex/internal/store"
)

// fixtureFiles loads files from testdata/python/<dir> as SourceFiles keyed
// by their base name.
func fixtureFiles(t *testing.T, dir string, names ...string) []SourceFile {
	t.Helper()
	files := make([]SourceFile, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join("testdata", "python", dir, name))
		require.NoError(t, err)
		files = append(files, SourceFile{Path: name, Content: data})
	}
	return files
}

func allFixtures(t *testing.T) []SourceFile {
	t.Helper()
	files := fixtureFiles(t, "fixtures",
		"test_self_call.py",
		"test_nested_call.py",
		"test_decorators.py",
		"test_externals.py",
		"test_locals.py",
		"test_annotated_doc.py",
	)
	return append(files, fixtureFiles(t, "sample", "main.py")...)
}

func runFiles(t *testing.T, files []SourceFile, opts ...Option) *Result {
	t.Helper()
	res, err := New(opts...).Run(context.Background(), t.TempDir(), files)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotNil(t, res.Data)
	return res
}

func refsIn(t *testing.T, res *Result, path string) []model.SymbolReference {
	t.Helper()
	doc, ok := res.Data.Document(path)
	require.True(t, ok, path)
	return doc.References
}

func filterRefs(refs []model.SymbolReference, keep func(model.SymbolReference) bool) []model.SymbolReference {
	var out []model.SymbolReference
	for _, r := range refs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// =============================================================================
// Run: pipeline properties
// =============================================================================

func TestRun_EnclosingAlwaysKnown(t *testing.T) {
	t.Parallel()
	res := runFiles(t, allFixtures(t))

	known := make(map[string]bool)
	for _, d := range res.Data.Definitions() {
		known[d.SymbolID] = true
	}
	for _, doc := range res.Data.Documents {
		module := model.ModuleID(doc.RelativePath)
		for _, r := range doc.References {
			require.NotEmpty(t, r.EnclosingSymbol, "%+v", r)
			assert.True(t, known[r.EnclosingSymbol] || r.EnclosingSymbol == module,
				"%s: enclosing %q is neither a definition nor the module", doc.RelativePath, r.EnclosingSymbol)
		}
	}
}

func TestRun_FunctionLocalsNeverAppear(t *testing.T) {
	t.Parallel()
	res := runFiles(t, fixtureFiles(t, "fixtures", "test_locals.py"))

	doc, ok := res.Data.Document("test_locals.py")
	require.True(t, ok)
	for _, d := range doc.Definitions {
		if d.Kind == model.KindVariable {
			assert.NotContains(t, []string{"total", "scratch", "v", "x"}, d.Name)
		}
	}
	for _, r := range doc.References {
		if r.Role == model.RoleRead || r.Role == model.RoleWrite {
			assert.Equal(t, "test_locals.LIMIT", r.Target())
		}
	}
}

func TestRun_SelfMethodCall(t *testing.T) {
	t.Parallel()
	res := runFiles(t, fixtureFiles(t, "fixtures", "test_self_call.py"))

	calls := filterRefs(refsIn(t, res, "test_self_call.py"), func(r model.SymbolReference) bool {
		return r.Role == model.RoleCall && model.Deref(r.MethodName) == "api_route"
	})
	require.Len(t, calls, 1)
	assert.Equal(t, "test_self_call.APIRouter.api_route", calls[0].Target())
	assert.Equal(t, "test_self_call.APIRouter.put", calls[0].EnclosingSymbol)
}

func TestRun_DecoratorFactoryCallUsesOuterFunction(t *testing.T) {
	t.Parallel()
	res := runFiles(t, fixtureFiles(t, "fixtures", "test_nested_call.py"))

	calls := filterRefs(refsIn(t, res, "test_nested_call.py"), func(r model.SymbolReference) bool {
		return r.Role == model.RoleCall && model.Deref(r.MethodName) == "add_api_route"
	})
	require.Len(t, calls, 1)
	assert.Equal(t, "test_nested_call.APIRouter.api_route", calls[0].EnclosingSymbol)
}

func TestRun_TwoDecoratorsTwoReferences(t *testing.T) {
	t.Parallel()
	res := runFiles(t, fixtureFiles(t, "fixtures", "test_decorators.py"))

	decorates := filterRefs(refsIn(t, res, "test_decorators.py"), func(r model.SymbolReference) bool {
		return r.Role == model.RoleDecorate && r.EnclosingSymbol == "test_decorators.fetch"
	})
	assert.Len(t, decorates, 2)
}

func TestRun_ExternalRecordedOncePerTarget(t *testing.T) {
	t.Parallel()
	res := runFiles(t, fixtureFiles(t, "fixtures", "test_externals.py"))

	var getcwd []SymbolDefinition
	for _, d := range res.Data.ExternalSymbols {
		assert.True(t, d.IsExternal)
		if d.SymbolID == "os.getcwd" {
			getcwd = append(getcwd, d)
		}
	}
	assert.Len(t, getcwd, 1)

	refs := filterRefs(refsIn(t, res, "test_externals.py"), func(r model.SymbolReference) bool {
		return r.Target() == "os.getcwd"
	})
	assert.Len(t, refs, 3)
	assert.Equal(t, 1, countDefinitions(res.Data, "os.getcwd"))
}

func countDefinitions(data *SemanticData, id string) int {
	n := 0
	for _, d := range data.ExternalSymbols {
		if d.SymbolID == id {
			n++
		}
	}
	for _, d := range data.Definitions() {
		if d.SymbolID == id {
			n++
		}
	}
	return n
}

func TestRun_EncodeDecodeLossless(t *testing.T) {
	t.Parallel()
	res := runFiles(t, allFixtures(t))

	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var first bytes.Buffer
			require.NoError(t, Encode(&first, res.Data, format))

			decoded, err := Decode(bytes.NewReader(first.Bytes()), format)
			require.NoError(t, err)

			var second bytes.Buffer
			require.NoError(t, Encode(&second, decoded, format))
			assert.Equal(t, first.String(), second.String())
			assert.Equal(t, res.Data.Stats(), decoded.Stats())
		})
	}
}

// =============================================================================
// Run: file handling
// =============================================================================

func TestRun_ParseFailureYieldsEmptyDocument(t *testing.T) {
	t.Parallel()
	files := []SourceFile{
		{Path: "broken.py", Content: []byte("def broken(:\n    pass\n")},
		{Path: "ok.py", Content: []byte("def fine():\n    return 1\n")},
	}
	res := runFiles(t, files)

	require.Len(t, res.Files, 2)
	assert.Equal(t, store.StatusParseFailed, res.Files[0].Status)
	assert.Equal(t, store.StatusIndexed, res.Files[1].Status)

	broken, ok := res.Data.Document("broken.py")
	require.True(t, ok)
	assert.Empty(t, broken.Definitions)
	assert.Empty(t, broken.References)
	assert.Equal(t, model.LanguagePython, broken.Language)

	okDoc, ok := res.Data.Document("ok.py")
	require.True(t, ok)
	require.Len(t, okDoc.Definitions, 1)
	assert.Equal(t, "ok.fine", okDoc.Definitions[0].SymbolID)
}

func TestRun_FileStats(t *testing.T) {
	t.Parallel()
	content := []byte("X = 1\nY = 2\n")
	res := runFiles(t, []SourceFile{{Path: "consts.py", Content: content}})

	require.Len(t, res.Files, 1)
	assert.Equal(t, FileStat{
		Path:   "consts.py",
		Hash:   store.ContentHash(content),
		Lines:  2,
		Status: store.StatusIndexed,
	}, res.Files[0])
	assert.NotEmpty(t, res.RunID)
}

func TestRun_PreservesInputOrder(t *testing.T) {
	t.Parallel()
	files := allFixtures(t)
	res := runFiles(t, files, WithWorkers(4))

	require.Len(t, res.Data.Documents, len(files))
	for i, f := range files {
		assert.Equal(t, f.Path, res.Data.Documents[i].RelativePath)
		assert.Equal(t, f.Path, res.Files[i].Path)
	}
}

func TestRun_SequentialMatchesParallel(t *testing.T) {
	t.Parallel()
	files := allFixtures(t)
	root := t.TempDir()

	seq, err := New(WithParallel(false)).Run(context.Background(), root, files)
	require.NoError(t, err)
	par, err := New(WithWorkers(8)).Run(context.Background(), root, files)
	require.NoError(t, err)

	var a, b bytes.Buffer
	require.NoError(t, Encode(&a, seq.Data, FormatJSON))
	require.NoError(t, Encode(&b, par.Data, FormatJSON))
	assert.JSONEq(t, a.String(), b.String())
	assert.NotEqual(t, seq.RunID, par.RunID)
}

func TestRun_EmptyInput(t *testing.T) {
	t.Parallel()
	res := runFiles(t, nil)
	assert.Empty(t, res.Data.Documents)
	assert.NotNil(t, res.Data.Documents)
	assert.NotNil(t, res.Data.ExternalSymbols)
	assert.Empty(t, res.Files)
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Run(ctx, t.TempDir(), allFixtures(t))
	require.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Options
// =============================================================================

func TestRun_ProgressReportsBothPasses(t *testing.T) {
	t.Parallel()
	files := allFixtures(t)

	var (
		mu   sync.Mutex
		last = map[string]int{}
	)
	progress := func(pass string, done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, len(files), total)
		assert.Greater(t, done, last[pass])
		last[pass] = done
	}
	runFiles(t, files, WithProgress(progress))

	assert.Equal(t, len(files), last[PassDefinitions])
	assert.Equal(t, len(files), last[PassReferences])
}

// countingOracle wraps an Oracle, counting calls and recording Close.
type countingOracle struct {
	next   oracle.Oracle
	mu     sync.Mutex
	calls  int
	closed bool
}

func (c *countingOracle) Resolve(ctx context.Context, file string, line, column int) ([]Declaration, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.next.Resolve(ctx, file, line, column)
}

func (c *countingOracle) Close() error {
	c.closed = true
	return nil
}

func TestRun_UserOracleIsUsedAndNotClosed(t *testing.T) {
	t.Parallel()
	files := fixtureFiles(t, "fixtures", "test_self_call.py")
	sources := []oracle.Source{{Path: files[0].Path, Content: files[0].Content}}
	static, err := oracle.NewStatic(context.Background(), "", sources)
	require.NoError(t, err)
	t.Cleanup(func() { _ = static.Close() })

	o := &countingOracle{next: static}
	res := runFiles(t, files, WithOracle(o), WithOracleCache(64))

	assert.Positive(t, o.calls)
	assert.False(t, o.closed)
	assert.Positive(t, res.OracleQueries)

	calls := filterRefs(refsIn(t, res, "test_self_call.py"), func(r model.SymbolReference) bool {
		return model.Deref(r.MethodName) == "api_route"
	})
	require.Len(t, calls, 1)
	assert.Equal(t, "test_self_call.APIRouter.api_route", calls[0].Target())
}

const externalReadSource = `import sys


class Box:
    def bump(self):
        argv = sys.argv
        return argv
`

func TestRun_ExternalVariableRead(t *testing.T) {
	t.Parallel()
	o := oracle.Func(func(_ context.Context, file string, line, column int) ([]Declaration, error) {
		if line == 5 && column == 19 {
			return []Declaration{{SimpleName: "argv", FullyQualifiedName: "sys.argv", Kind: oracle.KindStatement}}, nil
		}
		return nil, nil
	})
	res := runFiles(t, []SourceFile{{Path: "box.py", Content: []byte(externalReadSource)}}, WithOracle(o))

	require.Len(t, res.Data.ExternalSymbols, 1)
	argv := res.Data.ExternalSymbols[0]
	assert.Equal(t, "sys.argv", argv.SymbolID)
	assert.Equal(t, model.KindVariable, argv.Kind)
	assert.True(t, argv.IsExternal)

	refs := refsIn(t, res, "box.py")
	require.Len(t, refs, 1)
	assert.Equal(t, "sys.argv", refs[0].Target())
	assert.Equal(t, model.RoleRead, refs[0].Role)
	assert.Equal(t, "box.Box.bump", refs[0].EnclosingSymbol)
	assert.Equal(t, model.SourceLocation{FilePath: "box.py", Line: 5, Column: 19}, refs[0].Location)
}

func TestRun_MissingOracleCommandFallsBackToStatic(t *testing.T) {
	t.Parallel()
	res := runFiles(t, fixtureFiles(t, "fixtures", "test_self_call.py"),
		WithOracleCommand([]string{filepath.Join(t.TempDir(), "no-such-oracle")}, 0))

	calls := filterRefs(refsIn(t, res, "test_self_call.py"), func(r model.SymbolReference) bool {
		return model.Deref(r.MethodName) == "api_route"
	})
	require.Len(t, calls, 1)
	assert.Equal(t, "test_self_call.APIRouter.api_route", calls[0].Target())
}

func TestNumWorkers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, New(WithParallel(false), WithWorkers(8)).numWorkers(10))
	assert.Equal(t, 3, New(WithWorkers(3)).numWorkers(10))
	assert.Equal(t, 2, New(WithWorkers(8)).numWorkers(2))
	assert.GreaterOrEqual(t, New().numWorkers(10), 1)
}

// =============================================================================
// Persistence
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "nested", "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRun_PersistsToStore(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	e := New(WithStore(s))
	res, err := e.Run(context.Background(), t.TempDir(), allFixtures(t))
	require.NoError(t, err)

	run, err := s.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, res.RunID, run.ID)

	st := res.Data.Stats()
	assert.Equal(t, len(res.Files), run.Files)
	assert.Equal(t, st.Definitions, run.Definitions)
	assert.Equal(t, st.References, run.References)
	assert.Equal(t, st.Externals, run.Externals)

	q := e.Query()
	require.NotNil(t, q)
	put, err := q.Symbol("test_self_call.APIRouter.put")
	require.NoError(t, err)
	require.NotNil(t, put)
	assert.Equal(t, model.KindFunction, put.Kind)
	assert.Equal(t, "test_self_call.APIRouter", model.Deref(put.EnclosingSymbol))
}

func TestRun_SecondRunReplacesFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	e := New(WithStore(s))
	root := t.TempDir()

	_, err := e.Run(context.Background(), root, allFixtures(t))
	require.NoError(t, err)
	second, err := e.Run(context.Background(), root, fixtureFiles(t, "fixtures", "test_self_call.py"))
	require.NoError(t, err)

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "test_self_call.py", files[0].Path)

	gone, err := e.Query().Symbol("main.make_box")
	require.NoError(t, err)
	assert.Nil(t, gone)

	run, err := s.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, second.RunID, run.ID)
}

func TestEngine_QueryWithoutStore(t *testing.T) {
	t.Parallel()
	e := New()
	assert.Nil(t, e.Query())
	assert.Nil(t, e.Store())
}

// =============================================================================
// IndexDirectory
// =============================================================================

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestIndexDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app/__init__.py":          "",
		"app/core.py":              "def run():\n    return helper()\n\n\ndef helper():\n    return 1\n",
		"app/test_core.py":         "from app.core import run\n\n\ndef test_run():\n    run()\n",
		".venv/lib/site.py":        "def installed():\n    pass\n",
		"__pycache__/core.cpython": "junk",
		"README.md":                "# app\n",
	})

	res, err := New().IndexDirectory(context.Background(), root, DiscoverOptions{NoGit: true})
	require.NoError(t, err)

	var paths []string
	for _, f := range res.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"app/__init__.py", "app/core.py"}, paths)

	calls := filterRefs(refsIn(t, res, "app/core.py"), func(r model.SymbolReference) bool {
		return r.Role == model.RoleCall
	})
	require.Len(t, calls, 1)
	assert.Equal(t, "app.core.helper", calls[0].Target())
	assert.Equal(t, "app.core.run", calls[0].EnclosingSymbol)

	withTests, err := New().IndexDirectory(context.Background(), root, DiscoverOptions{NoGit: true, IncludeTests: true})
	require.NoError(t, err)
	assert.Len(t, withTests.Files, 3)
}

func TestIndexDirectory_MissingRoot(t *testing.T) {
	t.Parallel()
	_, err := New().IndexDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), DiscoverOptions{})
	require.Error(t, err)
}

func TestOpenStore_CreatesParentDirectories(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "a", "b", "index.db")
	s, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	assert.FileExists(t, path)
}
