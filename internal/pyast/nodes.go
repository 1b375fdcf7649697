package pyast

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Text returns the source text covered by n, or "" for a nil node.
func Text(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}

// CollapseSpace trims s and folds every whitespace run into one space.
func CollapseSpace(s string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Children returns all children of n, named or not.
func Children(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.ChildCount())
	for i := 0; i < int(n.ChildCount()); i++ {
		out = append(out, n.Child(i))
	}
	return out
}

// NamedChildren returns the named children of n.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// HasChildType reports whether n has a direct child (named or anonymous) of
// type typ, e.g. the "async" keyword of a function_definition.
func HasChildType(n *sitter.Node, typ string) bool {
	for _, c := range Children(n) {
		if c.Type() == typ {
			return true
		}
	}
	return false
}

// Row and Col are the 0-based start position of n.
func Row(n *sitter.Node) int { return int(n.StartPoint().Row) }
func Col(n *sitter.Node) int { return int(n.StartPoint().Column) }

// EndRow and EndCol are the 0-based end position of n.
func EndRow(n *sitter.Node) int { return int(n.EndPoint().Row) }
func EndCol(n *sitter.Node) int { return int(n.EndPoint().Column) }

// Walk visits n and its descendants in pre-order. Children of a node are
// skipped when fn returns false.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		Walk(n.NamedChild(i), fn)
	}
}

// Contains reports whether any node in n's subtree has one of the given types.
func Contains(n *sitter.Node, types ...string) bool {
	found := false
	Walk(n, func(c *sitter.Node) bool {
		if found {
			return false
		}
		for _, t := range types {
			if c.Type() == t {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// Unwrap splits a decorated_definition into its inner definition and its
// decorator expressions. Other nodes are returned unchanged.
func Unwrap(n *sitter.Node) (def *sitter.Node, decorators []*sitter.Node) {
	if n == nil || n.Type() != "decorated_definition" {
		return n, nil
	}
	for _, c := range NamedChildren(n) {
		if c.Type() == "decorator" {
			decorators = append(decorators, c)
		}
	}
	return n.ChildByFieldName("definition"), decorators
}

// DecoratorExpr returns the expression following "@" in a decorator node.
func DecoratorExpr(dec *sitter.Node) *sitter.Node {
	if dec == nil {
		return nil
	}
	for _, c := range NamedChildren(dec) {
		if c.Type() != "comment" {
			return c
		}
	}
	return nil
}

// DecoratorName returns the decorator's callee text without arguments, e.g.
// "app.route" for @app.route("/x").
func DecoratorName(dec *sitter.Node, src []byte) string {
	expr := DecoratorExpr(dec)
	if expr != nil && expr.Type() == "call" {
		expr = expr.ChildByFieldName("function")
	}
	return Text(expr, src)
}

// Statements returns the statements of a block, skipping comments.
func Statements(block *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, c := range NamedChildren(block) {
		if c.Type() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

// Docstring returns the cleaned docstring of a module, class or function body.
func Docstring(body *sitter.Node, src []byte) (string, bool) {
	stmts := Statements(body)
	if len(stmts) == 0 || stmts[0].Type() != "expression_statement" {
		return "", false
	}
	expr := NamedChildren(stmts[0])
	if len(expr) != 1 {
		return "", false
	}
	s, ok := StringValue(expr[0], src)
	if !ok {
		return "", false
	}
	return CleanDoc(s), true
}

// StringValue decodes a string or implicitly concatenated string literal.
// f-strings and byte strings are rejected.
func StringValue(n *sitter.Node, src []byte) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string":
		return unquote(Text(n, src))
	case "concatenated_string":
		var b strings.Builder
		for _, part := range NamedChildren(n) {
			if part.Type() == "comment" {
				continue
			}
			s, ok := StringValue(part, src)
			if !ok {
				return "", false
			}
			b.WriteString(s)
		}
		return b.String(), true
	case "parenthesized_expression":
		inner := NamedChildren(n)
		if len(inner) == 1 {
			return StringValue(inner[0], src)
		}
	}
	return "", false
}

func unquote(raw string) (string, bool) {
	i := 0
	isRaw := false
	for i < len(raw) && raw[i] != '\'' && raw[i] != '"' {
		switch raw[i] {
		case 'r', 'R':
			isRaw = true
		case 'u', 'U':
		default:
			return "", false
		}
		i++
	}
	body := raw[i:]
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(body) >= 2*len(q) && strings.HasPrefix(body, q) && strings.HasSuffix(body, q) {
			body = body[len(q) : len(body)-len(q)]
			if isRaw {
				return body, true
			}
			return unescape(body), true
		}
	}
	return "", false
}

var escapes = map[byte]string{
	'n': "\n", 't': "\t", 'r': "\r", '\\': "\\", '\'': "'", '"': "\"",
	'a': "\a", 'b': "\b", 'f': "\f", 'v': "\v", '\n': "",
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			if rep, ok := escapes[s[i+1]]; ok {
				b.WriteString(rep)
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// CleanDoc removes the uniform indentation of a docstring the way Python's
// inspect.cleandoc does: the first line is left-stripped, the common margin of
// the remaining lines is removed, and leading and trailing blank lines are dropped.
func CleanDoc(doc string) string {
	lines := strings.Split(strings.ReplaceAll(doc, "\t", "        "), "\n")
	margin := -1
	for _, l := range lines[1:] {
		stripped := strings.TrimLeft(l, " ")
		if stripped == "" {
			continue
		}
		indent := len(l) - len(stripped)
		if margin < 0 || indent < margin {
			margin = indent
		}
	}
	lines[0] = strings.TrimLeft(lines[0], " ")
	if margin > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= margin {
				lines[i] = lines[i][margin:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " ")
			}
		}
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

// Identifier returns the name node of a function or class definition.
func Identifier(def *sitter.Node, src []byte) string {
	return Text(def.ChildByFieldName("name"), src)
}

// SplitTopLevel splits s on sep, ignoring separators nested in brackets or
// string literals. Parts are trimmed and empty parts dropped.
func SplitTopLevel(s string, sep byte) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(' || ch == '[' || ch == '{':
			depth++
		case ch == ')' || ch == ']' || ch == '}':
			depth--
		case ch == sep && depth == 0:
			if p := strings.TrimSpace(s[start:i]); p != "" {
				parts = append(parts, p)
			}
			start = i + 1
		}
	}
	if p := strings.TrimSpace(s[start:]); p != "" {
		parts = append(parts, p)
	}
	return parts
}

func pointBefore(a, b sitter.Point) bool {
	return a.Row < b.Row || (a.Row == b.Row && a.Column < b.Column)
}

func containsPoint(n *sitter.Node, p sitter.Point) bool {
	return !pointBefore(p, n.StartPoint()) && pointBefore(p, n.EndPoint())
}

// NodeAt returns the deepest named node whose range contains the 0-based
// position, or nil when the position is outside root.
func NodeAt(root *sitter.Node, row, col int) *sitter.Node {
	if root == nil || row < 0 || col < 0 {
		return nil
	}
	p := sitter.Point{Row: uint32(row), Column: uint32(col)}
	if !containsPoint(root, p) {
		return nil
	}
	n := root
	for {
		var next *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); containsPoint(c, p) {
				next = c
				break
			}
		}
		if next == nil {
			return n
		}
		n = next
	}
}

// Within reports whether n lies inside outer's byte range.
func Within(n, outer *sitter.Node) bool {
	if n == nil || outer == nil {
		return false
	}
	return n.StartByte() >= outer.StartByte() && n.EndByte() <= outer.EndByte()
}

// Same reports whether a and b cover the same bytes with the same type.
func Same(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}
