package oracle

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/pyast"
)

// maxDepth bounds import chains and inference recursion.
const maxDepth = 12

type module struct {
	id      string // dotted path of the file, "pkg.__init__" for packages
	name    string // importable name, "pkg" for packages
	pkg     string // package relative imports are resolved against
	file    *pyast.File
	scope   *scope
	scopes  map[nodeKey]*scope
	classes []*class
	build   *builder
}

// Static is an Oracle that resolves names by walking the project's own syntax
// trees. It understands scopes, imports, class members, receiver parameters,
// annotations and simple constructor assignments. It performs no type
// inference beyond that.
//
// Static is safe for concurrent use; calls are serialized.
type Static struct {
	mu      sync.Mutex
	root    string
	modules map[string]*module // by id and by importable name
	files   map[string]*module // by relative path
	suffix  map[string]*module
}

// NewStatic parses sources and builds their scopes. Files with syntax errors
// are kept for best-effort resolution.
func NewStatic(ctx context.Context, root string, sources []Source) (*Static, error) {
	s := &Static{
		root:    root,
		modules: make(map[string]*module),
		files:   make(map[string]*module),
		suffix:  make(map[string]*module),
	}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			s.Close()
			return nil, err
		}
		rel := NormalizePath(src.Path)
		f, err := pyast.Parse(ctx, rel, src.Content)
		if err != nil && !errors.Is(err, pyast.ErrSyntax) {
			continue
		}
		id := model.ModuleID(rel)
		m := &module{id: id, name: id, file: f, scopes: make(map[nodeKey]*scope)}
		if pkg, ok := strings.CutSuffix(id, ".__init__"); ok {
			m.name, m.pkg = pkg, pkg
		} else if id == "__init__" {
			m.name = ""
		} else if i := strings.LastIndexByte(id, '.'); i >= 0 {
			m.pkg = id[:i]
		}
		s.files[rel] = m
		s.modules[id] = m
		if m.name != "" {
			s.modules[m.name] = m
		}
	}

	// Directories without __init__.py still import as namespace packages.
	for _, m := range s.sortedFiles() {
		parts := strings.Split(m.name, ".")
		for i := 1; i < len(parts); i++ {
			name := strings.Join(parts[:i], ".")
			if _, ok := s.modules[name]; ok {
				continue
			}
			ns := &module{id: name, name: name, pkg: name, scopes: make(map[nodeKey]*scope)}
			ns.scope = newScope(moduleScope, nil, ns, nil, name)
			ns.build = &builder{mod: ns}
			s.modules[name] = ns
		}
	}

	for _, m := range s.sortedFiles() {
		m.build = &builder{mod: m, src: m.file.Source}
		m.scope = newScope(moduleScope, m.file.Root(), m, nil, m.name)
		m.build.block(m.scope, m.file.Root())
	}
	return s, nil
}

func (s *Static) sortedFiles() []*module {
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]*module, len(paths))
	for i, p := range paths {
		out[i] = s.files[p]
	}
	return out
}

// Close releases the parsed trees.
func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.files {
		m.file.Close()
	}
	s.files = map[string]*module{}
	s.modules = map[string]*module{}
	return nil
}

// Resolve returns the declaration the identifier at (line, column) refers to.
func (s *Static) Resolve(ctx context.Context, file string, line, column int) ([]Declaration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.files[s.relative(file)]
	if m == nil || m.file.Root() == nil {
		return nil, nil
	}
	n := pyast.NodeAt(m.file.Root(), line, column)
	if n == nil || n.Type() != "identifier" {
		return nil, nil
	}
	name := m.build.text(n)
	sc := s.scopeAt(m, n)

	var t *target
	parent := n.Parent()
	switch {
	case parent != nil && parent.Type() == "attribute" && pyast.Same(parent.ChildByFieldName("attribute"), n):
		obj := s.infer(sc, parent.ChildByFieldName("object"), 0)
		t = s.member(obj, name, 0)
	case parent != nil && parent.Type() == "keyword_argument" && pyast.Same(parent.ChildByFieldName("name"), n):
		return nil, nil
	default:
		t = s.lookup(sc, name, 0)
	}
	if t == nil {
		return nil, nil
	}
	if t.ext != "" && t.extKind == "" && valueUse(n, name) {
		t = external(t.ext, KindStatement)
	}
	return []Declaration{t.declaration()}, nil
}

// valueUse reports whether an external name of unknown kind is used as a
// plain value spelled like a variable. Callees, attribute receivers and
// decorators are not values.
func valueUse(n *sitter.Node, name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	if r != '_' && !unicode.IsLower(r) {
		return false
	}
	use := n
	if p := n.Parent(); p != nil && p.Type() == "attribute" && pyast.Same(p.ChildByFieldName("attribute"), n) {
		use = p
	}
	p := use.Parent()
	if p == nil {
		return true
	}
	switch p.Type() {
	case "call":
		return !pyast.Same(p.ChildByFieldName("function"), use)
	case "attribute":
		return !pyast.Same(p.ChildByFieldName("object"), use)
	case "decorator":
		return false
	}
	return true
}

func (s *Static) relative(file string) string {
	if filepath.IsAbs(file) && s.root != "" {
		if rel, err := filepath.Rel(s.root, file); err == nil {
			file = rel
		}
	}
	return NormalizePath(file)
}

// findModule looks a dotted module name up by exact name, then by a unique
// suffix match so "pkg.mod" finds "src/pkg/mod.py".
func (s *Static) findModule(name string) *module {
	if name == "" {
		return nil
	}
	if m, ok := s.modules[name]; ok {
		return m
	}
	if m, ok := s.suffix[name]; ok {
		return m
	}
	var found *module
	for _, m := range s.modules {
		if m.name == name || !strings.HasSuffix(m.name, "."+name) {
			continue
		}
		if found != nil && found != m {
			found = nil
			break
		}
		found = m
	}
	s.suffix[name] = found
	return found
}

// scopeAt returns the innermost scope visible from n. A function or class
// scope only applies inside its body, so decorators, defaults and
// annotations are evaluated in the enclosing scope.
func (s *Static) scopeAt(m *module, n *sitter.Node) *scope {
	var chain []*sitter.Node
	for p := n.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
	}
	cur := m.scope
	for i := len(chain) - 1; i >= 0; i-- {
		a := chain[i]
		switch a.Type() {
		case "function_definition", "class_definition":
			if !pyast.Within(n, a.ChildByFieldName("body")) {
				continue
			}
			if sc, ok := m.scopes[keyOf(a)]; ok {
				cur = sc
			}
		case "lambda":
			if pyast.Within(n, a.ChildByFieldName("body")) {
				cur = m.build.tempScope(cur, a)
			}
		case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
			cur = m.build.tempScope(cur, a)
		}
	}
	return cur
}

// target is what a name resolves to: a binding, a project module or an
// external fully qualified name.
type target struct {
	b       *binding
	mod     *module
	ext     string
	extKind string
	sig     string
}

func external(fqn, kind string) *target {
	return &target{ext: fqn, extKind: kind}
}

func (t *target) declaration() Declaration {
	switch {
	case t.b != nil:
		b := t.b
		d := Declaration{
			DefiningFile:       b.mod.file.RelPath,
			DefiningLine:       pyast.Row(b.node),
			DefiningColumn:     pyast.Col(b.node),
			SimpleName:         b.name,
			FullyQualifiedName: b.fqn,
			Kind:               b.kind,
		}
		if b.fn != nil {
			d.Signature = signature(b.name, b.fn, b.mod.file.Source)
		}
		return d
	case t.mod != nil:
		d := Declaration{
			SimpleName:         lastPart(t.mod.name),
			FullyQualifiedName: t.mod.name,
			Kind:               KindModule,
		}
		if t.mod.file != nil {
			d.DefiningFile = t.mod.file.RelPath
		}
		return d
	default:
		return Declaration{
			SimpleName:         lastPart(t.ext),
			FullyQualifiedName: t.ext,
			Kind:               t.extKind,
			Signature:          t.sig,
		}
	}
}

func signature(name string, fn *sitter.Node, src []byte) string {
	sig := name + pyast.CollapseSpace(pyast.Text(fn.ChildByFieldName("parameters"), src))
	if ret := fn.ChildByFieldName("return_type"); ret != nil {
		sig += " -> " + pyast.CollapseSpace(pyast.Text(ret, src))
	}
	return sig
}

func lastPart(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// lookup resolves a plain name from sc outward. Class scopes are only
// visible when they are the innermost scope.
func (s *Static) lookup(sc *scope, name string, depth int) *target {
	if depth > maxDepth || sc == nil {
		return nil
	}
	for cur := sc; cur != nil; cur = cur.parent {
		if cur.kind == classScope && cur != sc {
			continue
		}
		if cur.declared[name] == "global" {
			cur = cur.mod.scope
		}
		if t := s.lookupIn(cur, name, depth); t != nil {
			return t
		}
	}
	if bi, ok := builtins[name]; ok {
		return &target{ext: "builtins." + name, extKind: bi.kind, sig: bi.signature}
	}
	return nil
}

// lookupIn checks one scope's own bindings and its star imports.
func (s *Static) lookupIn(sc *scope, name string, depth int) *target {
	if b, ok := sc.names[name]; ok {
		return s.follow(b, depth)
	}
	for _, star := range sc.stars {
		m := s.importedModule(star)
		if m == nil || m.scope == nil || m.scope == sc {
			continue
		}
		if t := s.lookupIn(m.scope, name, depth+1); t != nil && depth < maxDepth {
			return t
		}
	}
	return nil
}

// follow resolves import bindings to what they import.
func (s *Static) follow(b *binding, depth int) *target {
	if b.imp == nil {
		return &target{b: b}
	}
	if depth > maxDepth {
		return nil
	}
	return s.resolveImport(b.imp, depth+1)
}

// importBase returns the absolute dotted module an import refers to, or false
// when a relative import climbs above the project root.
func importBase(imp *importRef) (string, bool) {
	if imp.level == 0 {
		return imp.module, true
	}
	pkg := imp.from.pkg
	for i := 1; i < imp.level; i++ {
		if pkg == "" {
			return "", false
		}
		if j := strings.LastIndexByte(pkg, '.'); j >= 0 {
			pkg = pkg[:j]
		} else {
			pkg = ""
		}
	}
	switch {
	case pkg == "":
		return imp.module, true
	case imp.module == "":
		return pkg, true
	default:
		return pkg + "." + imp.module, true
	}
}

func (s *Static) importedModule(imp *importRef) *module {
	base, ok := importBase(imp)
	if !ok {
		return nil
	}
	return s.findModule(base)
}

func (s *Static) resolveImport(imp *importRef, depth int) *target {
	base, ok := importBase(imp)
	if !ok {
		return nil
	}
	m := s.findModule(base)
	if imp.member == "" {
		if m != nil {
			return &target{mod: m}
		}
		return external(base, KindModule)
	}
	if m == nil && base == "" {
		if sub := s.findModule(imp.member); sub != nil {
			return &target{mod: sub}
		}
	}
	if m == nil {
		if imp.level > 0 || base == "" {
			return nil
		}
		return external(base+"."+imp.member, "")
	}
	if m.scope != nil {
		if t := s.lookupIn(m.scope, imp.member, depth); t != nil {
			return t
		}
	}
	if sub := s.findModule(m.name + "." + imp.member); sub != nil {
		return &target{mod: sub}
	}
	return nil
}
