package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/pyast"
)

func testdataPath(parts ...string) string {
	return filepath.Join(append([]string{"..", "..", "testdata", "python"}, parts...)...)
}

func extractSource(t *testing.T, relPath, src string) model.DocumentSemantics {
	t.Helper()
	f, err := pyast.Parse(context.Background(), relPath, []byte(src))
	if f == nil {
		require.NoError(t, err)
	}
	t.Cleanup(f.Close)
	return Definitions(f)
}

func extractFixture(t *testing.T, relPath string, parts ...string) model.DocumentSemantics {
	t.Helper()
	src, err := os.ReadFile(testdataPath(parts...))
	require.NoError(t, err)
	return extractSource(t, relPath, string(src))
}

func byID(t *testing.T, doc model.DocumentSemantics, id string) model.SymbolDefinition {
	t.Helper()
	for _, d := range doc.Definitions {
		if d.SymbolID == id {
			return d
		}
	}
	require.Failf(t, "definition not found", "%s", id)
	return model.SymbolDefinition{}
}

func ids(doc model.DocumentSemantics) []string {
	var out []string
	for _, d := range doc.Definitions {
		out = append(out, d.SymbolID)
	}
	return out
}

func TestDefinitions_Sample(t *testing.T) {
	t.Parallel()
	doc := extractFixture(t, "main.py", "sample", "main.py")

	assert.Equal(t, "main.py", doc.RelativePath)
	assert.Equal(t, "python", doc.Language)
	assert.Equal(t, []string{
		"main.T", "main.MAX_SIZE", "main._debug_mode",
		"main.Color", "main.Color.RED", "main.Color.GREEN",
		"main.Reader", "main.Reader.read",
		"main.Shape", "main.Shape.sides", "main.Shape.area",
		"main.Box", "main.Box.label", "main.Box.__init__", "main.Box.value", "main.Box._hits",
		"main.Box.empty", "main.Box.fetch", "main.Box.items", "main.Box._bump", "main.Box.__repr__",
		"main.make_box", "main.ENABLED", "main.HAVE_JSON", "main.box",
	}, ids(doc))
}

func TestDefinitions_FunctionLocalsNeverRecorded(t *testing.T) {
	t.Parallel()
	doc := extractFixture(t, "main.py", "sample", "main.py")
	for _, d := range doc.Definitions {
		assert.NotContains(t, []string{"helper", "inner", "nested_local", "Local", "shadow"}, d.Name, d.SymbolID)
	}

	locals := extractFixture(t, "test_locals.py", "fixtures", "test_locals.py")
	assert.Equal(t, []string{"test_locals.LIMIT", "test_locals.compute", "test_locals.bump"}, ids(locals))
}

func TestDefinitions_TypeClassification(t *testing.T) {
	t.Parallel()
	doc := extractFixture(t, "main.py", "sample", "main.py")

	tests := []struct {
		id       string
		kind     model.TypeKind
		abstract bool
		inherits []string
	}{
		{"main.Color", model.TypeEnum, false, []string{"Enum"}},
		{"main.Reader", model.TypeInterface, true, []string{"Protocol"}},
		{"main.Shape", model.TypeInterface, true, []string{"ABC"}},
		{"main.Box", model.TypeClass, false, []string{"Generic[T]"}},
	}
	for _, tt := range tests {
		def := byID(t, doc, tt.id)
		assert.Equal(t, model.KindType, def.Kind)
		td, ok := def.Details.Type()
		require.True(t, ok, tt.id)
		assert.Equal(t, tt.kind, td.Kind, tt.id)
		assert.Equal(t, tt.abstract, td.IsAbstract, tt.id)
		assert.Equal(t, tt.inherits, td.Inherits, tt.id)
		assert.Nil(t, def.EnclosingSymbol, tt.id)
	}

	box, _ := byID(t, doc, "main.Box").Details.Type()
	require.Len(t, box.TypeParams, 1)
	assert.Equal(t, "T", box.TypeParams[0].Name)
	assert.Equal(t, []string{"Holds one value."}, byID(t, doc, "main.Box").Documentation)
}

func TestDefinitions_Fields(t *testing.T) {
	t.Parallel()
	doc := extractFixture(t, "main.py", "sample", "main.py")

	box, _ := byID(t, doc, "main.Box").Details.Type()
	var names []string
	for _, f := range box.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"label", "value", "_hits"}, names)
	assert.Equal(t, "int", model.Deref(box.Fields[2].FieldType))
	assert.Equal(t, model.Private, box.Fields[2].Visibility)
	assert.Equal(t, "main.Box._hits", box.Fields[2].SymbolID)

	value := byID(t, doc, "main.Box.value")
	assert.Equal(t, model.KindVariable, value.Kind)
	assert.Equal(t, 35, value.Location.Line, "first assignment wins")
	assert.Equal(t, "main.Box", model.Deref(value.EnclosingSymbol))
	vd, ok := value.Details.Variable()
	require.True(t, ok)
	assert.Equal(t, model.ScopeField, vd.Scope)
}

func TestDefinitions_Globals(t *testing.T) {
	t.Parallel()
	doc := extractFixture(t, "main.py", "sample", "main.py")

	maxSize := byID(t, doc, "main.MAX_SIZE")
	vd, _ := maxSize.Details.Variable()
	assert.Equal(t, model.Const, vd.Mutability)
	assert.Equal(t, model.ScopeGlobal, vd.Scope)
	assert.Equal(t, "Final[int]", model.Deref(vd.VarType))
	assert.Equal(t, model.SourceLocation{FilePath: "main.py", Line: 7}, maxSize.Location)

	debug, _ := byID(t, doc, "main._debug_mode").Details.Variable()
	assert.Equal(t, model.Private, debug.Visibility)
	assert.Equal(t, model.Mutable, debug.Mutability)
	assert.Nil(t, debug.VarType)
}

func TestDefinitions_FunctionModifiers(t *testing.T) {
	t.Parallel()
	doc := extractFixture(t, "main.py", "sample", "main.py")

	fn := func(id string) *model.FunctionDetails {
		d, ok := byID(t, doc, id).Details.Function()
		require.True(t, ok, id)
		return d
	}

	ctor := fn("main.Box.__init__")
	assert.True(t, ctor.Modifiers.IsConstructor)
	assert.Equal(t, []string{"None"}, ctor.ReturnTypes)
	require.Len(t, ctor.Parameters, 1, "self is excluded")
	assert.Equal(t, "value", ctor.Parameters[0].Name)
	assert.Equal(t, "T", model.Deref(ctor.Parameters[0].ParamType))

	assert.True(t, fn("main.Box.empty").Modifiers.IsStatic)
	assert.Equal(t, []string{`"Box"`}, fn("main.Box.empty").ReturnTypes)
	assert.True(t, fn("main.Box.fetch").Modifiers.IsAsync)
	assert.True(t, fn("main.Shape.area").Modifiers.IsAbstract)
	assert.Equal(t, model.Private, fn("main.Box._bump").Modifiers.Visibility)
	assert.Equal(t, model.Public, fn("main.Box.__repr__").Modifiers.Visibility)

	items := fn("main.Box.items")
	assert.True(t, items.Modifiers.IsGenerator)
	require.Len(t, items.Parameters, 2)
	assert.True(t, items.Parameters[0].IsVariadic)
	assert.Equal(t, "args", items.Parameters[0].Name)
	assert.True(t, items.Parameters[1].IsVariadic)
	assert.Equal(t, "kwargs", items.Parameters[1].Name)

	mk := fn("main.make_box")
	require.Len(t, mk.Parameters, 1)
	assert.True(t, mk.Parameters[0].HasDefault)
	assert.False(t, mk.Modifiers.IsGenerator)
	assert.False(t, mk.Modifiers.UseSignatureOnlyForSize)
}

func TestDefinitions_Spans(t *testing.T) {
	t.Parallel()
	doc := extractFixture(t, "main.py", "sample", "main.py")

	shape := byID(t, doc, "main.Shape")
	assert.Equal(t, model.SourceSpan{StartLine: 21, EndLine: 25, EndColumn: len("    @abstractmethod")}, shape.Span,
		"type span stops before the first member")

	color := byID(t, doc, "main.Color")
	assert.Equal(t, model.SourceSpan{StartLine: 11, EndLine: 14, EndColumn: len("    GREEN = 2")}, color.Span,
		"a type without members keeps its full extent")

	area := byID(t, doc, "main.Shape.area")
	assert.Equal(t, 25, area.Location.Line, "decorated definitions are located at their def line")
	assert.Equal(t, 4, area.Location.Column)
	assert.Equal(t, 27, area.Span.EndLine)

	for _, d := range doc.Definitions {
		assert.Less(t, d.Span.StartLine, d.Span.EndLine, d.SymbolID)
	}
}

func TestDefinitions_AnnotatedDoc(t *testing.T) {
	t.Parallel()
	doc := extractFixture(t, "test_annotated_doc.py", "fixtures", "test_annotated_doc.py")

	body := byID(t, doc, "test_annotated_doc.Body")
	require.Len(t, body.Documentation, 2)
	assert.Contains(t, body.Documentation[0], "Default value if the parameter field is not set.")
	assert.Contains(t, body.Documentation[1], "The media type.")

	fd, ok := body.Details.Function()
	require.True(t, ok)
	assert.True(t, fd.Modifiers.UseSignatureOnlyForSize)
	require.Len(t, fd.Parameters, 2)
	assert.Equal(t, "default", fd.Parameters[0].Name)
	assert.True(t, fd.Parameters[0].HasDefault)
	assert.Equal(t, "media_type", fd.Parameters[1].Name)
	assert.Equal(t, []string{"typing.Any"}, fd.ReturnTypes)
}

func TestDefinitions_DocstringThenAnnotationDocs(t *testing.T) {
	t.Parallel()
	src := `def Query(
    alias: Annotated[str, Doc("An alias.")] = None,
) -> Annotated[int, Doc("The result.")]:
    """Build a query."""
    return 1
`
	doc := extractSource(t, "q.py", src)
	q := byID(t, doc, "q.Query")
	assert.Equal(t, []string{"Build a query.", "An alias.", "The result."}, q.Documentation)
	fd, _ := q.Details.Function()
	assert.False(t, fd.Modifiers.UseSignatureOnlyForSize, "a docstring makes the body non-trivial")
}

func TestDefinitions_DuplicateFirstWins(t *testing.T) {
	t.Parallel()
	src := `class C:
    @property
    def x(self):
        return self._x

    @x.setter
    def x(self, value):
        self._x = value


def f():
    pass


def f(a):
    pass
`
	doc := extractSource(t, "dup.py", src)
	assert.Equal(t, []string{"dup.C", "dup.C.x", "dup.C._x", "dup.f"}, ids(doc))
	f, _ := byID(t, doc, "dup.f").Details.Function()
	assert.Empty(t, f.Parameters)
}

func TestDefinitions_NestedClass(t *testing.T) {
	t.Parallel()
	src := `class Outer:
    class Inner:
        flag = True

    def run(self):
        pass
`
	doc := extractSource(t, "n.py", src)
	assert.Equal(t, []string{"n.Outer", "n.Outer.Inner", "n.Outer.Inner.flag", "n.Outer.run"}, ids(doc))
	inner := byID(t, doc, "n.Outer.Inner")
	assert.Equal(t, "n.Outer", model.Deref(inner.EnclosingSymbol))
	outer := byID(t, doc, "n.Outer")
	assert.Equal(t, 1, outer.Span.EndLine)
}

func TestDefinitions_ParseFailureYieldsEmptyDocument(t *testing.T) {
	t.Parallel()
	doc := extractSource(t, "broken.py", "def broken(:\n    pass\n")
	assert.Equal(t, "broken.py", doc.RelativePath)
	assert.NotNil(t, doc.Definitions)
	assert.Empty(t, doc.Definitions)
	assert.NotNil(t, doc.References)
}

func TestDefinitions_UniqueIDs(t *testing.T) {
	t.Parallel()
	for _, parts := range [][]string{
		{"sample", "main.py"},
		{"service", "service.py"},
		{"fixtures", "test_decorators.py"},
	} {
		doc := extractFixture(t, parts[len(parts)-1], parts...)
		seen := map[string]bool{}
		for _, d := range doc.Definitions {
			assert.False(t, seen[d.SymbolID], "duplicate %s", d.SymbolID)
			seen[d.SymbolID] = true
			assert.False(t, d.IsExternal)
			assert.False(t, d.Details.IsZero())
			assert.Equal(t, d.Kind, d.Details.Kind())
		}
	}
}
