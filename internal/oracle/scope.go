package oracle

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/semindex/internal/pyast"
)

type scopeKind int

const (
	moduleScope scopeKind = iota
	classScope
	functionScope
	lambdaScope // lambdas and comprehensions
)

// receiverKind says how a method's first parameter is bound.
type receiverKind int

const (
	noReceiver receiverKind = iota
	instanceReceiver
	classReceiver
)

type nodeKey struct {
	start, end uint32
}

func keyOf(n *sitter.Node) nodeKey {
	return nodeKey{start: n.StartByte(), end: n.EndByte()}
}

type scope struct {
	kind     scopeKind
	node     *sitter.Node
	mod      *module
	parent   *scope
	fqn      string
	names    map[string]*binding
	declared map[string]string // name -> "global" or "nonlocal"
	stars    []*importRef      // from x import *
	cls      *class            // class scope: the class; method scope: its owner
	receiver receiverKind
	self     string // first parameter name of a method
}

func newScope(kind scopeKind, node *sitter.Node, mod *module, parent *scope, fqn string) *scope {
	return &scope{
		kind:     kind,
		node:     node,
		mod:      mod,
		parent:   parent,
		fqn:      fqn,
		names:    make(map[string]*binding),
		declared: make(map[string]string),
	}
}

// bind records b unless the name is already bound here or declared
// global/nonlocal. The first binding wins.
func (sc *scope) bind(b *binding) {
	if b == nil || b.name == "" {
		return
	}
	if _, ok := sc.declared[b.name]; ok && sc.kind != moduleScope {
		return
	}
	if _, ok := sc.names[b.name]; ok {
		return
	}
	sc.names[b.name] = b
}

// binding is one name bound in a scope.
type binding struct {
	name     string
	kind     string
	fqn      string
	mod      *module
	node     *sitter.Node // the name node, giving the declaration position
	scope    *scope       // where value and annotation are evaluated
	value    *sitter.Node
	ann      *sitter.Node
	fn       *sitter.Node // function_definition for functions and properties
	cls      *class
	imp      *importRef
	receiver receiverKind
}

// importRef is the target of an import binding.
type importRef struct {
	from   *module
	module string // dotted, relative to from when level > 0
	level  int
	member string // empty for "import a.b"
}

type class struct {
	name    string
	fqn     string
	mod     *module
	node    *sitter.Node
	body    *scope
	outer   *scope
	methods []*scope
	fields  map[string]*binding
}

// builder populates the scopes of one module.
type builder struct {
	mod *module
	src []byte
}

func (b *builder) text(n *sitter.Node) string { return pyast.Text(n, b.src) }

func (b *builder) newBinding(sc *scope, name *sitter.Node, kind string) *binding {
	text := b.text(name)
	return &binding{
		name:  text,
		kind:  kind,
		fqn:   sc.fqn + "." + text,
		mod:   b.mod,
		node:  name,
		scope: sc,
	}
}

func (b *builder) block(sc *scope, n *sitter.Node) {
	for _, stmt := range pyast.Statements(n) {
		b.statement(sc, stmt)
	}
}

func (b *builder) statement(sc *scope, stmt *sitter.Node) {
	switch stmt.Type() {
	case "decorated_definition":
		def, decorators := pyast.Unwrap(stmt)
		if def != nil {
			b.definition(sc, def, decorators)
		}
	case "function_definition", "class_definition":
		b.definition(sc, stmt, nil)
	case "expression_statement":
		for _, child := range pyast.NamedChildren(stmt) {
			switch child.Type() {
			case "assignment":
				b.assignment(sc, child)
			case "augmented_assignment":
				b.targets(sc, child.ChildByFieldName("left"), nil, nil)
			}
		}
	case "import_statement":
		b.importStatement(sc, stmt)
	case "import_from_statement":
		b.importFrom(sc, stmt)
	case "for_statement":
		b.targets(sc, stmt.ChildByFieldName("left"), nil, nil)
		b.compound(sc, stmt)
	case "with_statement", "try_statement":
		b.asTargets(sc, stmt)
		b.compound(sc, stmt)
	case "if_statement", "while_statement", "match_statement":
		b.compound(sc, stmt)
	}
}

func (b *builder) compound(sc *scope, n *sitter.Node) {
	for _, child := range pyast.NamedChildren(n) {
		switch child.Type() {
		case "block":
			b.block(sc, child)
		case "elif_clause", "else_clause", "except_clause", "except_group_clause",
			"finally_clause", "case_clause":
			b.compound(sc, child)
		}
	}
}

// asTargets binds the names introduced by "with x as y" and "except E as e".
func (b *builder) asTargets(sc *scope, n *sitter.Node) {
	pyast.Walk(n, func(c *sitter.Node) bool {
		switch c.Type() {
		case "block":
			return false
		case "as_pattern":
			b.targets(sc, c.ChildByFieldName("alias"), nil, nil)
			return false
		case "except_clause", "except_group_clause":
			children := pyast.Children(c)
			for i, child := range children {
				if child.Type() == "as" && i+1 < len(children) {
					b.targets(sc, children[i+1], nil, nil)
				}
			}
		}
		return true
	})
}

// targets binds the identifiers of an assignment target. Only a plain name
// keeps the assigned value and annotation for later inference.
func (b *builder) targets(sc *scope, t, value, ann *sitter.Node) {
	if t == nil {
		return
	}
	switch t.Type() {
	case "identifier":
		bd := b.newBinding(sc, t, KindStatement)
		bd.value = value
		bd.ann = ann
		sc.bind(bd)
	case "as_pattern_target":
		for _, c := range pyast.NamedChildren(t) {
			b.targets(sc, c, value, ann)
		}
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "expression_list",
		"parenthesized_expression", "list_splat_pattern", "list_splat":
		for _, c := range pyast.NamedChildren(t) {
			b.targets(sc, c, nil, nil)
		}
	}
}

func (b *builder) assignment(sc *scope, n *sitter.Node) {
	value := n
	for value != nil && value.Type() == "assignment" {
		value = value.ChildByFieldName("right")
	}
	for a := n; a != nil && a.Type() == "assignment"; a = a.ChildByFieldName("right") {
		b.targets(sc, a.ChildByFieldName("left"), value, a.ChildByFieldName("type"))
	}
}

func (b *builder) definition(sc *scope, def *sitter.Node, decorators []*sitter.Node) {
	name := def.ChildByFieldName("name")
	if name == nil {
		return
	}
	switch def.Type() {
	case "function_definition":
		b.function(sc, def, name, decorators)
	case "class_definition":
		b.class(sc, def, name)
	}
}

func (b *builder) function(sc *scope, def, name *sitter.Node, decorators []*sitter.Node) {
	bd := b.newBinding(sc, name, KindFunction)
	bd.fn = def
	receiver := noReceiver
	if sc.kind == classScope {
		receiver = instanceReceiver
	}
	for _, dec := range decorators {
		switch n := pyast.DecoratorName(dec, b.src); {
		case n == "staticmethod":
			receiver = noReceiver
		case n == "classmethod":
			if sc.kind == classScope {
				receiver = classReceiver
			}
		case n == "property" || n == "cached_property" || strings.HasSuffix(n, ".cached_property") ||
			strings.HasSuffix(n, ".setter") || strings.HasSuffix(n, ".getter") || strings.HasSuffix(n, ".deleter"):
			bd.kind = KindProperty
		}
	}
	sc.bind(bd)

	fs := newScope(functionScope, def, b.mod, sc, bd.fqn)
	fs.receiver = receiver
	if sc.kind == classScope {
		fs.cls = sc.cls
		sc.cls.methods = append(sc.cls.methods, fs)
	}
	b.mod.scopes[keyOf(def)] = fs

	b.parameters(fs, def.ChildByFieldName("parameters"))
	body := def.ChildByFieldName("body")
	b.declarations(fs, body)
	b.block(fs, body)
}

// declarations records global and nonlocal statements before any binding so
// the declared names are never bound locally.
func (b *builder) declarations(sc *scope, body *sitter.Node) {
	pyast.Walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_definition", "class_definition", "lambda":
			return false
		case "global_statement", "nonlocal_statement":
			kind := "global"
			if n.Type() == "nonlocal_statement" {
				kind = "nonlocal"
			}
			for _, id := range pyast.NamedChildren(n) {
				if id.Type() == "identifier" {
					sc.declared[b.text(id)] = kind
				}
			}
			return false
		}
		return true
	})
}

// parameters binds a function's or lambda's parameters. The first parameter
// of a method is its receiver.
func (b *builder) parameters(fs *scope, params *sitter.Node) {
	first := true
	for _, p := range pyast.NamedChildren(params) {
		var name, ann *sitter.Node
		switch p.Type() {
		case "identifier":
			name = p
		case "typed_parameter":
			ann = p.ChildByFieldName("type")
			for _, c := range pyast.NamedChildren(p) {
				if c.Type() != "type" {
					name = c
					break
				}
			}
		case "default_parameter", "typed_default_parameter":
			name = p.ChildByFieldName("name")
			ann = p.ChildByFieldName("type")
		case "list_splat_pattern", "dictionary_splat_pattern":
			name = p
		default:
			continue
		}
		if name == nil {
			continue
		}
		if name.Type() == "list_splat_pattern" || name.Type() == "dictionary_splat_pattern" {
			inner := pyast.NamedChildren(name)
			if len(inner) == 0 {
				continue
			}
			name = inner[0]
			first = false
		}
		if name.Type() != "identifier" {
			continue
		}
		bd := b.newBinding(fs, name, KindParam)
		bd.ann = ann
		if first && fs.receiver != noReceiver {
			bd.receiver = fs.receiver
			fs.self = bd.name
		}
		first = false
		fs.bind(bd)
	}
}

func (b *builder) class(sc *scope, def, name *sitter.Node) {
	bd := b.newBinding(sc, name, KindClass)
	c := &class{
		name:   bd.name,
		fqn:    bd.fqn,
		mod:    b.mod,
		node:   def,
		outer:  sc,
		fields: make(map[string]*binding),
	}
	bd.cls = c
	sc.bind(bd)

	c.body = newScope(classScope, def, b.mod, sc, c.fqn)
	c.body.cls = c
	b.mod.scopes[keyOf(def)] = c.body
	b.mod.classes = append(b.mod.classes, c)
	b.block(c.body, def.ChildByFieldName("body"))
	b.fields(c)
}

// fields collects receiver attribute assignments from every method of c.
func (b *builder) fields(c *class) {
	for _, m := range c.methods {
		if m.self == "" {
			continue
		}
		receiver := m.self
		pyast.Walk(m.node.ChildByFieldName("body"), func(n *sitter.Node) bool {
			switch n.Type() {
			case "class_definition":
				return false
			case "assignment", "augmented_assignment":
				for a := n; a != nil && (a.Type() == "assignment" || a.Type() == "augmented_assignment"); a = a.ChildByFieldName("right") {
					left := a.ChildByFieldName("left")
					if left == nil || left.Type() != "attribute" {
						continue
					}
					if b.text(left.ChildByFieldName("object")) != receiver {
						continue
					}
					attr := left.ChildByFieldName("attribute")
					name := b.text(attr)
					if _, ok := c.fields[name]; ok || name == "" {
						continue
					}
					if a.Type() == "augmented_assignment" {
						continue
					}
					value := a.ChildByFieldName("right")
					for value != nil && value.Type() == "assignment" {
						value = value.ChildByFieldName("right")
					}
					c.fields[name] = &binding{
						name:  name,
						kind:  KindStatement,
						fqn:   c.fqn + "." + name,
						mod:   b.mod,
						node:  attr,
						scope: m,
						value: value,
						ann:   a.ChildByFieldName("type"),
					}
				}
			}
			return true
		})
	}
}

func (b *builder) importStatement(sc *scope, stmt *sitter.Node) {
	for _, n := range pyast.NamedChildren(stmt) {
		switch n.Type() {
		case "dotted_name":
			full := b.text(n)
			head, _, _ := strings.Cut(full, ".")
			first := pyast.NamedChildren(n)
			if len(first) == 0 {
				continue
			}
			bd := b.newBinding(sc, first[0], KindModule)
			bd.fqn = head
			bd.imp = &importRef{from: b.mod, module: head}
			sc.bind(bd)
		case "aliased_import":
			alias := n.ChildByFieldName("alias")
			if alias == nil {
				continue
			}
			bd := b.newBinding(sc, alias, KindModule)
			bd.fqn = b.text(n.ChildByFieldName("name"))
			bd.imp = &importRef{from: b.mod, module: bd.fqn}
			sc.bind(bd)
		}
	}
}

func (b *builder) importFrom(sc *scope, stmt *sitter.Node) {
	modNode := stmt.ChildByFieldName("module_name")
	if modNode == nil {
		return
	}
	module, level := b.text(modNode), 0
	if modNode.Type() == "relative_import" {
		raw := b.text(modNode)
		trimmed := strings.TrimLeft(raw, ".")
		level = len(raw) - len(trimmed)
		module = strings.TrimSpace(trimmed)
	}

	for _, n := range pyast.NamedChildren(stmt) {
		if pyast.Same(n, modNode) {
			continue
		}
		switch n.Type() {
		case "wildcard_import":
			sc.stars = append(sc.stars, &importRef{from: b.mod, module: module, level: level})
		case "dotted_name":
			bd := b.newBinding(sc, n, "")
			bd.imp = &importRef{from: b.mod, module: module, level: level, member: bd.name}
			sc.bind(bd)
		case "aliased_import":
			alias := n.ChildByFieldName("alias")
			if alias == nil {
				continue
			}
			bd := b.newBinding(sc, alias, "")
			bd.imp = &importRef{from: b.mod, module: module, level: level, member: b.text(n.ChildByFieldName("name"))}
			sc.bind(bd)
		}
	}
}

// tempScope builds the scope of a lambda or comprehension on demand.
func (b *builder) tempScope(parent *scope, n *sitter.Node) *scope {
	sc := newScope(lambdaScope, n, b.mod, parent, parent.fqn+".<lambda>")
	if n.Type() == "lambda" {
		b.parameters(sc, n.ChildByFieldName("parameters"))
		return sc
	}
	for _, c := range pyast.NamedChildren(n) {
		if c.Type() == "for_in_clause" {
			b.targets(sc, c.ChildByFieldName("left"), nil, nil)
		}
	}
	return sc
}
