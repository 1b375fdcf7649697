package oracle

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/semindex/internal/pyast"
)

type valueKind int

const (
	instanceValue valueKind = iota
	classValue
	moduleValue
	functionValue
	externalValue
)

// value is the little the static oracle knows about an expression.
type value struct {
	kind valueKind
	cls  *class
	mod  *module
	fn   *binding
	fqn  string
}

// annotationWrappers are typing constructs whose first argument is the type
// that matters for attribute lookup.
var annotationWrappers = map[string]bool{
	"Optional":    true,
	"Annotated":   true,
	"Final":       true,
	"ClassVar":    true,
	"Required":    true,
	"NotRequired": true,
	"ReadOnly":    true,
}

func (s *Static) infer(sc *scope, expr *sitter.Node, depth int) *value {
	if expr == nil || sc == nil || depth > maxDepth {
		return nil
	}
	src := sc.mod.build.src
	switch expr.Type() {
	case "identifier":
		return s.valueOf(s.lookup(sc, pyast.Text(expr, src), depth+1), depth+1)
	case "attribute":
		obj := s.infer(sc, expr.ChildByFieldName("object"), depth+1)
		name := pyast.Text(expr.ChildByFieldName("attribute"), src)
		return s.valueOf(s.member(obj, name, depth+1), depth+1)
	case "call":
		callee := expr.ChildByFieldName("function")
		if callee != nil && callee.Type() == "identifier" && pyast.Text(callee, src) == "super" {
			return s.superValue(sc, depth+1)
		}
		fv := s.infer(sc, callee, depth+1)
		if fv == nil {
			return nil
		}
		switch fv.kind {
		case classValue:
			return &value{kind: instanceValue, cls: fv.cls}
		case functionValue:
			ret := fv.fn.fn.ChildByFieldName("return_type")
			return s.annotation(fv.fn.scope, ret, depth+1)
		}
		return nil
	case "parenthesized_expression", "await":
		for _, c := range pyast.NamedChildren(expr) {
			if c.Type() != "comment" {
				return s.infer(sc, c, depth+1)
			}
		}
	case "subscript":
		v := s.infer(sc, expr.ChildByFieldName("value"), depth+1)
		if v != nil && (v.kind == classValue || v.kind == externalValue) {
			return v
		}
	}
	return nil
}

// superValue treats super() inside a method as the first base class.
func (s *Static) superValue(sc *scope, depth int) *value {
	for cur := sc; cur != nil; cur = cur.parent {
		if cur.kind != functionScope || cur.cls == nil {
			continue
		}
		for _, base := range bases(cur.cls) {
			if v := s.infer(cur.cls.outer, base, depth+1); v != nil && v.kind == classValue {
				return &value{kind: instanceValue, cls: v.cls}
			}
		}
		return nil
	}
	return nil
}

// valueOf turns a resolved target into a value.
func (s *Static) valueOf(t *target, depth int) *value {
	if t == nil || depth > maxDepth {
		return nil
	}
	switch {
	case t.mod != nil:
		return &value{kind: moduleValue, mod: t.mod}
	case t.ext != "":
		return &value{kind: externalValue, fqn: t.ext}
	}
	b := t.b
	switch b.kind {
	case KindClass:
		return &value{kind: classValue, cls: b.cls}
	case KindFunction:
		return &value{kind: functionValue, fn: b}
	case KindProperty:
		return s.annotation(b.scope, b.fn.ChildByFieldName("return_type"), depth+1)
	case KindParam:
		switch b.receiver {
		case instanceReceiver:
			if b.scope.cls != nil {
				return &value{kind: instanceValue, cls: b.scope.cls}
			}
		case classReceiver:
			if b.scope.cls != nil {
				return &value{kind: classValue, cls: b.scope.cls}
			}
		}
		return s.annotation(b.scope.parent, b.ann, depth+1)
	case KindStatement:
		if b.ann != nil {
			if v := s.annotation(b.scope, b.ann, depth+1); v != nil {
				return v
			}
		}
		return s.infer(b.scope, b.value, depth+1)
	}
	return nil
}

// annotation evaluates a type annotation node in sc.
func (s *Static) annotation(sc *scope, ann *sitter.Node, depth int) *value {
	if ann == nil || sc == nil {
		return nil
	}
	return s.annotationText(sc, pyast.CollapseSpace(pyast.Text(ann, sc.mod.build.src)), depth)
}

func (s *Static) annotationText(sc *scope, text string, depth int) *value {
	if depth > maxDepth {
		return nil
	}
	text = strings.Trim(strings.TrimSpace(text), `"'`)
	if text == "" || text == "None" {
		return nil
	}
	if parts := pyast.SplitTopLevel(text, '|'); len(parts) > 1 {
		return s.annotationText(sc, firstNotNone(parts), depth+1)
	}
	head, args, generic := strings.Cut(text, "[")
	if generic {
		args = strings.TrimSuffix(strings.TrimSpace(args), "]")
		argList := pyast.SplitTopLevel(args, ',')
		if len(argList) == 0 {
			return nil
		}
		switch short := lastPart(head); {
		case annotationWrappers[short]:
			return s.annotationText(sc, argList[0], depth+1)
		case short == "Union":
			return s.annotationText(sc, firstNotNone(argList), depth+1)
		case short == "Type" || short == "type":
			if v := s.annotationText(sc, argList[0], depth+1); v != nil && v.kind == instanceValue {
				return &value{kind: classValue, cls: v.cls}
			}
			return nil
		}
	}
	v := s.dotted(sc, strings.TrimSpace(head), depth+1)
	if v != nil && v.kind == classValue {
		return &value{kind: instanceValue, cls: v.cls}
	}
	return v
}

func firstNotNone(parts []string) string {
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "None" && p != "" {
			return p
		}
	}
	return ""
}

// dotted resolves "a.b.C" as a name followed by member lookups.
func (s *Static) dotted(sc *scope, name string, depth int) *value {
	parts := strings.Split(name, ".")
	v := s.valueOf(s.lookup(sc, parts[0], depth), depth)
	for _, p := range parts[1:] {
		v = s.valueOf(s.member(v, p, depth), depth)
	}
	return v
}

// member resolves name as an attribute of v.
func (s *Static) member(v *value, name string, depth int) *target {
	if v == nil || depth > maxDepth {
		return nil
	}
	switch v.kind {
	case moduleValue:
		if v.mod.scope != nil {
			if t := s.lookupIn(v.mod.scope, name, depth+1); t != nil {
				return t
			}
		}
		if sub := s.findModule(v.mod.name + "." + name); sub != nil {
			return &target{mod: sub}
		}
	case classValue, instanceValue:
		return s.classMember(v.cls, name, map[*class]bool{}, depth+1)
	case externalValue:
		return external(v.fqn+"."+name, "")
	}
	return nil
}

// classMember searches the class body, receiver-assigned fields and then
// the bases in declaration order.
func (s *Static) classMember(c *class, name string, visited map[*class]bool, depth int) *target {
	if c == nil || visited[c] || depth > maxDepth {
		return nil
	}
	visited[c] = true
	if b, ok := c.body.names[name]; ok {
		return s.follow(b, depth)
	}
	if b, ok := c.fields[name]; ok {
		return &target{b: b}
	}
	for _, base := range bases(c) {
		bv := s.infer(c.outer, base, depth+1)
		if bv == nil {
			continue
		}
		switch bv.kind {
		case classValue:
			if t := s.classMember(bv.cls, name, visited, depth+1); t != nil {
				return t
			}
		case externalValue:
			if markerBases[bv.fqn] {
				continue
			}
			return external(bv.fqn+"."+name, "")
		}
	}
	return nil
}

// bases returns the positional superclass expressions of a class.
func bases(c *class) []*sitter.Node {
	var out []*sitter.Node
	for _, arg := range pyast.NamedChildren(c.node.ChildByFieldName("superclasses")) {
		switch arg.Type() {
		case "keyword_argument", "comment", "list_splat", "dictionary_splat":
			continue
		}
		out = append(out, arg)
	}
	return out
}
