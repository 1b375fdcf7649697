package oracle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureSources(t *testing.T, dir string, names ...string) []Source {
	t.Helper()
	var out []Source
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "python", dir, name))
		require.NoError(t, err)
		out = append(out, Source{Path: name, Content: data})
	}
	return out
}

func newStatic(t *testing.T, sources []Source) *Static {
	t.Helper()
	s, err := NewStatic(context.Background(), "/project", sources)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func resolveOne(t *testing.T, o Oracle, file string, line, col int) Declaration {
	t.Helper()
	decls, err := o.Resolve(context.Background(), file, line, col)
	require.NoError(t, err)
	require.Len(t, decls, 1, "%s:%d:%d", file, line, col)
	return decls[0]
}

func TestStatic_SelfMethodCall(t *testing.T) {
	t.Parallel()
	s := newStatic(t, fixtureSources(t, "fixtures", "test_self_call.py"))

	d := resolveOne(t, s, "test_self_call.py", 8, 20)
	assert.Equal(t, "test_self_call.APIRouter.api_route", d.FullyQualifiedName)
	assert.Equal(t, "test_self_call.py", d.DefiningFile)
	assert.Equal(t, 4, d.DefiningLine)
	assert.Equal(t, 8, d.DefiningColumn)
	assert.Equal(t, KindFunction, d.Kind)
	assert.Equal(t, "api_route(self, path: str, methods: list)", d.Signature)

	param := resolveOne(t, s, "test_self_call.py", 8, 35)
	assert.Equal(t, KindParam, param.Kind)
	assert.Equal(t, 7, param.DefiningLine)
	assert.Equal(t, 18, param.DefiningColumn)
}

func TestStatic_KeywordArgumentNameIsNotResolved(t *testing.T) {
	t.Parallel()
	s := newStatic(t, fixtureSources(t, "fixtures", "test_self_call.py"))
	decls, err := s.Resolve(context.Background(), "test_self_call.py", 8, 30)
	require.NoError(t, err)
	assert.Empty(t, decls)
}

func TestStatic_AnnotatedParameterAttributes(t *testing.T) {
	t.Parallel()
	s := newStatic(t, fixtureSources(t, "service", "ports.py", "service.py"))

	info := resolveOne(t, s, "service.py", 12, 20)
	assert.Equal(t, "ports.LoggerPort.info", info.FullyQualifiedName)
	assert.Equal(t, "ports.py", info.DefiningFile)
	assert.Equal(t, 17, info.DefiningLine)

	save := resolveOne(t, s, "service.py", 13, 30)
	assert.Equal(t, "ports.StoragePort.save", save.FullyQualifiedName)
	assert.Equal(t, 8, save.DefiningLine)

	field := resolveOne(t, s, "service.py", 13, 22)
	assert.Equal(t, "service.DataService.storage", field.FullyQualifiedName)
	assert.Equal(t, KindStatement, field.Kind)
	assert.Equal(t, 7, field.DefiningLine)
	assert.Equal(t, 13, field.DefiningColumn)

	imported := resolveOne(t, s, "service.py", 2, 18)
	assert.Equal(t, "ports.StoragePort", imported.FullyQualifiedName)
	assert.Equal(t, KindClass, imported.Kind)
	assert.Equal(t, 5, imported.DefiningLine)
}

func TestStatic_ExternalsAndBuiltins(t *testing.T) {
	t.Parallel()
	s := newStatic(t, fixtureSources(t, "fixtures", "test_externals.py"))

	call := resolveOne(t, s, "test_externals.py", 4, 14)
	assert.Equal(t, "os.getcwd", call.FullyQualifiedName)
	assert.Equal(t, "getcwd", call.SimpleName)
	assert.Empty(t, call.DefiningFile)

	mod := resolveOne(t, s, "test_externals.py", 4, 11)
	assert.Equal(t, "os", mod.FullyQualifiedName)
	assert.Equal(t, KindModule, mod.Kind)

	printDecl := resolveOne(t, s, "test_externals.py", 12, 4)
	assert.Equal(t, "builtins.print", printDecl.FullyQualifiedName)
	assert.Equal(t, KindFunction, printDecl.Kind)
	assert.NotEmpty(t, printDecl.Signature)
}

const externalValuesSource = `import sys
from os import sep


def run():
    argv = sys.argv
    sys.exit(len(argv))
    return sep
`

func TestStatic_ExternalValueReadsAreStatements(t *testing.T) {
	t.Parallel()
	s := newStatic(t, []Source{{Path: "app.py", Content: []byte(externalValuesSource)}})

	argv := resolveOne(t, s, "app.py", 5, 15)
	assert.Equal(t, "sys.argv", argv.FullyQualifiedName)
	assert.Equal(t, KindStatement, argv.Kind)

	exit := resolveOne(t, s, "app.py", 6, 8)
	assert.Equal(t, "sys.exit", exit.FullyQualifiedName)
	assert.Empty(t, exit.Kind, "called names keep an unknown kind")

	sep := resolveOne(t, s, "app.py", 7, 11)
	assert.Equal(t, "os.sep", sep.FullyQualifiedName)
	assert.Equal(t, KindStatement, sep.Kind)
}

func TestStatic_LocalsGlobalsAndComprehensions(t *testing.T) {
	t.Parallel()
	s := newStatic(t, fixtureSources(t, "fixtures", "test_locals.py"))

	local := resolveOne(t, s, "test_locals.py", 8, 11)
	assert.Equal(t, "test_locals.compute.total", local.FullyQualifiedName)
	assert.Equal(t, 4, local.DefiningLine)

	global := resolveOne(t, s, "test_locals.py", 8, 34)
	assert.Equal(t, "test_locals.LIMIT", global.FullyQualifiedName)
	assert.Equal(t, 0, global.DefiningLine)

	declared := resolveOne(t, s, "test_locals.py", 13, 4)
	assert.Equal(t, "test_locals.LIMIT", declared.FullyQualifiedName)

	compVar := resolveOne(t, s, "test_locals.py", 7, 15)
	assert.Equal(t, 7, compVar.DefiningLine)
	assert.Equal(t, 25, compVar.DefiningColumn)
}

func TestStatic_ModuleLevelCall(t *testing.T) {
	t.Parallel()
	s := newStatic(t, fixtureSources(t, "sample", "main.py"))

	d := resolveOne(t, s, "main.py", 80, 6)
	assert.Equal(t, "main.make_box", d.FullyQualifiedName)
	assert.Equal(t, 56, d.DefiningLine)
	assert.Equal(t, 4, d.DefiningColumn)
	assert.Equal(t, "make_box(value: int = 0) -> Box", d.Signature)
}

const childSource = `from .base import Base
from typing import Optional


class Child(Base):
    @property
    def peer(self) -> "Child":
        return self

    @classmethod
    def build(cls) -> Optional["Child"]:
        return cls()

    def run(self, other: Optional[Base] = None):
        self.hello()
        self.peer.hello()
        Child.build().run()
        other.hello()
`

const baseSource = `class Base:
    def hello(self):
        return 1
`

const workerSource = `import threading


class Worker(threading.Thread):
    def go(self):
        self.start()
`

func packageSources() []Source {
	return []Source{
		{Path: "pkg/__init__.py", Content: []byte("")},
		{Path: "pkg/base.py", Content: []byte(baseSource)},
		{Path: "pkg/child.py", Content: []byte(childSource)},
		{Path: "pkg/worker.py", Content: []byte(workerSource)},
	}
}

func TestStatic_InheritanceAndAnnotations(t *testing.T) {
	t.Parallel()
	s := newStatic(t, packageSources())

	tests := []struct {
		name      string
		line, col int
		fqn       string
		file      string
		defLine   int
	}{
		{"self method from base", 14, 13, "pkg.base.Base.hello", "pkg/base.py", 1},
		{"property return annotation", 15, 18, "pkg.base.Base.hello", "pkg/base.py", 1},
		{"classmethod optional return", 16, 22, "pkg.child.Child.run", "pkg/child.py", 13},
		{"optional parameter annotation", 17, 14, "pkg.base.Base.hello", "pkg/base.py", 1},
		{"relative import", 0, 18, "pkg.base.Base", "pkg/base.py", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := resolveOne(t, s, "pkg/child.py", tt.line, tt.col)
			assert.Equal(t, tt.fqn, d.FullyQualifiedName)
			assert.Equal(t, tt.file, d.DefiningFile)
			assert.Equal(t, tt.defLine, d.DefiningLine)
		})
	}
}

func TestStatic_ExternalBaseMember(t *testing.T) {
	t.Parallel()
	s := newStatic(t, packageSources())
	d := resolveOne(t, s, "pkg/worker.py", 5, 13)
	assert.Equal(t, "threading.Thread.start", d.FullyQualifiedName)
	assert.Empty(t, d.DefiningFile)
}

func TestStatic_AbsolutePathAndUnknownFile(t *testing.T) {
	t.Parallel()
	s := newStatic(t, packageSources())

	d := resolveOne(t, s, "/project/pkg/child.py", 14, 13)
	assert.Equal(t, "pkg.base.Base.hello", d.FullyQualifiedName)

	decls, err := s.Resolve(context.Background(), "missing.py", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, decls)
}

func TestStatic_NonIdentifierPosition(t *testing.T) {
	t.Parallel()
	s := newStatic(t, fixtureSources(t, "fixtures", "test_self_call.py"))
	decls, err := s.Resolve(context.Background(), "test_self_call.py", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, decls)
}

func TestStatic_CanceledContext(t *testing.T) {
	t.Parallel()
	s := newStatic(t, fixtureSources(t, "fixtures", "test_self_call.py"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Resolve(ctx, "test_self_call.py", 8, 20)
	assert.ErrorIs(t, err, context.Canceled)
}
