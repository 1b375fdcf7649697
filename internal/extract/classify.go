package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/pyast"
)

var enumBases = map[string]bool{
	"Enum":    true,
	"IntEnum": true,
	"StrEnum": true,
	"Flag":    true,
	"IntFlag": true,
}

type classInfo struct {
	kind       model.TypeKind
	abstract   bool
	final      bool
	bases      []string
	typeParams []model.TypeParam
}

// classifyClass derives a class's kind and flags from its bases, decorators
// and source.
func classifyClass(node *sitter.Node, decorators []*sitter.Node, src []byte) classInfo {
	var info classInfo
	for _, arg := range pyast.NamedChildren(node.ChildByFieldName("superclasses")) {
		switch arg.Type() {
		case "keyword_argument", "list_splat", "dictionary_splat", "comment":
			continue
		}
		info.bases = append(info.bases, pyast.CollapseSpace(pyast.Text(arg, src)))
	}

	protocol := false
	for _, b := range info.bases {
		if baseName(b) == "Protocol" {
			protocol = true
		}
	}

	for _, dec := range decorators {
		switch baseName(pyast.DecoratorName(dec, src)) {
		case "abstractmethod":
			info.abstract = true
		case "final":
			info.final = true
		}
	}
	if hasAbstractMethod(node.ChildByFieldName("body"), src) ||
		strings.Contains(pyast.Text(node, src), "ABC") || protocol {
		info.abstract = true
	}

	info.kind = model.TypeClass
	for _, b := range info.bases {
		if enumBases[baseName(b)] {
			info.kind = model.TypeEnum
			break
		}
	}
	if info.kind != model.TypeEnum {
		for _, b := range info.bases {
			if n := baseName(b); n == "Protocol" || n == "ABC" {
				info.kind = model.TypeInterface
			}
		}
		if info.abstract {
			info.kind = model.TypeInterface
		}
	}

	seen := make(map[string]bool)
	add := func(tps []model.TypeParam) {
		for _, tp := range tps {
			if !seen[tp.Name] {
				seen[tp.Name] = true
				info.typeParams = append(info.typeParams, tp)
			}
		}
	}
	add(typeParameters(node.ChildByFieldName("type_parameters"), src))
	for _, b := range info.bases {
		if n := baseName(b); n == "Generic" || n == "Protocol" {
			if open := strings.IndexByte(b, '['); open >= 0 && strings.HasSuffix(b, "]") {
				var tps []model.TypeParam
				for _, arg := range pyast.SplitTopLevel(b[open+1:len(b)-1], ',') {
					tps = append(tps, parseTypeParam(arg))
				}
				add(tps)
			}
		}
	}
	return info
}

// hasAbstractMethod reports whether any method directly in a class body is
// decorated with abstractmethod.
func hasAbstractMethod(body *sitter.Node, src []byte) bool {
	for _, stmt := range pyast.Statements(body) {
		_, decorators := pyast.Unwrap(stmt)
		for _, dec := range decorators {
			if baseName(pyast.DecoratorName(dec, src)) == "abstractmethod" {
				return true
			}
		}
	}
	return false
}

// baseName strips any subscript and module qualifier: "typing.Generic[T]"
// becomes "Generic".
func baseName(expr string) string {
	if i := strings.IndexByte(expr, '['); i >= 0 {
		expr = expr[:i]
	}
	if i := strings.LastIndexByte(expr, '.'); i >= 0 {
		expr = expr[i+1:]
	}
	return strings.TrimSpace(expr)
}

// parseTypeParam reads "T", "T: Bound" or "T: (A, B)".
func parseTypeParam(text string) model.TypeParam {
	text = strings.TrimLeft(strings.TrimSpace(text), "*")
	name, bound, ok := strings.Cut(text, ":")
	tp := model.TypeParam{Name: strings.TrimSpace(name), Bounds: []string{}}
	if !ok {
		if n, _, hasDefault := strings.Cut(tp.Name, "="); hasDefault {
			tp.Name = strings.TrimSpace(n)
		}
		return tp
	}
	bound, _, _ = strings.Cut(bound, "=")
	bound = strings.TrimSpace(bound)
	if strings.HasPrefix(bound, "(") && strings.HasSuffix(bound, ")") {
		tp.Bounds = append(tp.Bounds, pyast.SplitTopLevel(bound[1:len(bound)-1], ',')...)
	} else if bound != "" {
		tp.Bounds = append(tp.Bounds, bound)
	}
	return tp
}

// typeParameters reads a PEP 695 type parameter list such as [T: int, U].
func typeParameters(n *sitter.Node, src []byte) []model.TypeParam {
	if n == nil {
		return nil
	}
	text := strings.TrimSpace(pyast.Text(n, src))
	text = strings.TrimSuffix(strings.TrimPrefix(text, "["), "]")
	var out []model.TypeParam
	for _, part := range pyast.SplitTopLevel(text, ',') {
		out = append(out, parseTypeParam(part))
	}
	return out
}

// parameters returns a function's parameters in source order, skipping the
// implicit receiver, together with every annotation node for Doc() lookup.
func parameters(n *sitter.Node, src []byte) ([]model.Parameter, []*sitter.Node) {
	var (
		params      []model.Parameter
		annotations []*sitter.Node
	)
	for _, p := range pyast.NamedChildren(n) {
		var (
			nameNode   *sitter.Node
			typeNode   *sitter.Node
			hasDefault bool
		)
		switch p.Type() {
		case "identifier", "list_splat_pattern", "dictionary_splat_pattern":
			nameNode = p
		case "typed_parameter":
			typeNode = p.ChildByFieldName("type")
			for _, child := range pyast.NamedChildren(p) {
				if child.Type() != "type" {
					nameNode = child
					break
				}
			}
		case "default_parameter":
			nameNode = p.ChildByFieldName("name")
			hasDefault = true
		case "typed_default_parameter":
			nameNode = p.ChildByFieldName("name")
			typeNode = p.ChildByFieldName("type")
			hasDefault = true
		default:
			continue
		}
		if nameNode == nil {
			continue
		}

		variadic := false
		if nameNode.Type() == "list_splat_pattern" || nameNode.Type() == "dictionary_splat_pattern" {
			variadic = true
			inner := pyast.NamedChildren(nameNode)
			if len(inner) == 0 {
				continue // bare "*" separator
			}
			nameNode = inner[0]
		}
		name := pyast.Text(nameNode, src)
		if name == "self" || name == "cls" || name == "" {
			continue
		}

		param := model.Parameter{Name: name, HasDefault: hasDefault, IsVariadic: variadic}
		if typeNode != nil {
			param.ParamType = model.Ptr(pyast.CollapseSpace(pyast.Text(typeNode, src)))
			annotations = append(annotations, typeNode)
		}
		params = append(params, param)
	}
	return params, annotations
}

// docCalls returns the string arguments of every Doc("...") call embedded in
// an annotation, in source order.
func docCalls(ann *sitter.Node, src []byte) []string {
	var docs []string
	pyast.Walk(ann, func(n *sitter.Node) bool {
		if n.Type() != "call" {
			return true
		}
		fn := n.ChildByFieldName("function")
		name := pyast.Text(fn, src)
		if fn != nil && fn.Type() == "attribute" {
			name = pyast.Text(fn.ChildByFieldName("attribute"), src)
		}
		if name != "Doc" {
			return true
		}
		args := pyast.NamedChildren(n.ChildByFieldName("arguments"))
		for _, arg := range args {
			if arg.Type() == "comment" {
				continue
			}
			if s, ok := pyast.StringValue(arg, src); ok {
				docs = append(docs, s)
			}
			break
		}
		return false
	})
	return docs
}
