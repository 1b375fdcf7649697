// Package extract implements the first indexing pass: it walks one parsed
// file and records the module- and class-scope symbols it declares.
//
// Symbols declared inside function bodies are never recorded. The only thing
// a method body contributes is its self.x / cls.x assignments, which become
// fields of the enclosing class.
package extract

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/pyast"
)

// classScope is the class whose body is being walked.
type classScope struct {
	id      string
	details *model.TypeDetails
}

type collector struct {
	file   *pyast.File
	src    []byte
	module string
	defs   []model.SymbolDefinition
	index  map[string]int // symbol_id -> position in defs
}

// Definitions runs the definition pass over one parsed file. A tree with
// syntax errors yields an empty document.
func Definitions(f *pyast.File) model.DocumentSemantics {
	doc := model.NewDocument(f.RelPath)
	root := f.Root()
	if root == nil || root.HasError() {
		return doc
	}
	c := &collector{
		file:   f,
		src:    f.Source,
		module: model.ModuleID(f.RelPath),
		index:  make(map[string]int),
	}
	c.block(root, nil)
	doc.Definitions = append(doc.Definitions, c.defs...)
	return doc
}

func (c *collector) scopeID(cls *classScope) string {
	if cls == nil {
		return c.module
	}
	return cls.id
}

func (c *collector) enclosing(cls *classScope) *string {
	if cls == nil {
		return nil
	}
	return model.Ptr(cls.id)
}

// add records def unless its symbol_id was already seen. The first
// declaration wins.
func (c *collector) add(def model.SymbolDefinition) bool {
	if _, dup := c.index[def.SymbolID]; dup {
		return false
	}
	c.index[def.SymbolID] = len(c.defs)
	c.defs = append(c.defs, def)
	return true
}

// block walks the statements of a module, class body or compound statement
// that still belongs to module or class scope.
func (c *collector) block(n *sitter.Node, cls *classScope) {
	for _, stmt := range pyast.Statements(n) {
		c.statement(stmt, cls)
	}
}

func (c *collector) statement(stmt *sitter.Node, cls *classScope) {
	switch stmt.Type() {
	case "decorated_definition":
		def, decorators := pyast.Unwrap(stmt)
		if def == nil {
			return
		}
		switch def.Type() {
		case "function_definition":
			c.function(def, decorators, cls)
		case "class_definition":
			c.class(def, decorators, cls)
		}
	case "function_definition":
		c.function(stmt, nil, cls)
	case "class_definition":
		c.class(stmt, nil, cls)
	case "expression_statement":
		for _, child := range pyast.NamedChildren(stmt) {
			if child.Type() == "assignment" {
				c.assignment(child, cls)
			}
		}
	case "if_statement", "try_statement", "with_statement", "for_statement",
		"while_statement", "match_statement":
		c.compound(stmt, cls)
	}
}

// compound descends into the blocks and clauses of a compound statement.
func (c *collector) compound(n *sitter.Node, cls *classScope) {
	for _, child := range pyast.NamedChildren(n) {
		switch {
		case child.Type() == "block":
			c.block(child, cls)
		case isClause(child.Type()):
			c.compound(child, cls)
		}
	}
}

func isClause(typ string) bool {
	switch typ {
	case "elif_clause", "else_clause", "except_clause", "except_group_clause",
		"finally_clause", "case_clause":
		return true
	}
	return false
}

func (c *collector) location(n *sitter.Node) model.SourceLocation {
	return model.SourceLocation{
		FilePath: c.file.RelPath,
		Line:     pyast.Row(n),
		Column:   pyast.Col(n),
	}
}

// span covers n with end_line one past its last line.
func span(n *sitter.Node) model.SourceSpan {
	return model.SourceSpan{
		StartLine:   pyast.Row(n),
		StartColumn: pyast.Col(n),
		EndLine:     pyast.EndRow(n) + 1,
		EndColumn:   pyast.EndCol(n),
	}
}

func (c *collector) class(node *sitter.Node, decorators []*sitter.Node, cls *classScope) {
	name := pyast.Identifier(node, c.src)
	if name == "" {
		return
	}
	id := model.SymbolID(c.scopeID(cls), name)
	body := node.ChildByFieldName("body")

	if idx, dup := c.index[id]; dup {
		// A redefinition keeps the first declaration but its body still
		// contributes members.
		if td, ok := c.defs[idx].Details.Type(); ok {
			c.block(body, &classScope{id: id, details: td})
		}
		return
	}

	info := classifyClass(node, decorators, c.src)
	var docs []string
	if doc, ok := pyast.Docstring(body, c.src); ok {
		docs = append(docs, doc)
	}
	details := model.TypeOf(model.TypeDetails{
		Kind:       info.kind,
		IsAbstract: info.abstract,
		IsFinal:    info.final,
		Visibility: model.VisibilityFromName(name),
		TypeParams: info.typeParams,
		Inherits:   info.bases,
	})
	td, _ := details.Type()

	c.add(model.SymbolDefinition{
		SymbolID:        id,
		Kind:            model.KindType,
		Name:            name,
		DisplayName:     name,
		Location:        c.location(node),
		Span:            c.classSpan(node, body),
		EnclosingSymbol: c.enclosing(cls),
		Documentation:   docs,
		Details:         details,
	})
	c.block(body, &classScope{id: id, details: td})
}

// classSpan ends immediately before the first method or nested class so a
// type's span never covers its members' spans.
func (c *collector) classSpan(node, body *sitter.Node) model.SourceSpan {
	sp := span(node)
	for _, stmt := range pyast.Statements(body) {
		member, _ := pyast.Unwrap(stmt)
		if member == nil {
			continue
		}
		if member.Type() != "function_definition" && member.Type() != "class_definition" {
			continue
		}
		first := pyast.Row(member)
		sp.EndLine = first
		sp.EndColumn = 0
		if first > 0 {
			sp.EndColumn = len(c.file.Line(first - 1))
		}
		break
	}
	return sp
}

func (c *collector) function(node *sitter.Node, decorators []*sitter.Node, cls *classScope) {
	name := pyast.Identifier(node, c.src)
	if name == "" {
		return
	}
	id := model.SymbolID(c.scopeID(cls), name)
	body := node.ChildByFieldName("body")

	if _, dup := c.index[id]; !dup {
		c.add(c.functionDefinition(id, name, node, decorators, cls))
	}
	if cls != nil {
		c.receiverFields(body, cls)
	}
}

func (c *collector) functionDefinition(id, name string, node *sitter.Node, decorators []*sitter.Node, cls *classScope) model.SymbolDefinition {
	body := node.ChildByFieldName("body")
	params, annotations := parameters(node.ChildByFieldName("parameters"), c.src)

	var returnTypes []string
	returnAnn := node.ChildByFieldName("return_type")
	if returnAnn != nil {
		returnTypes = append(returnTypes, pyast.CollapseSpace(pyast.Text(returnAnn, c.src)))
	}
	isConstructor := name == "__init__"
	if isConstructor && len(returnTypes) == 0 {
		returnTypes = []string{"None"}
	}

	var docs []string
	if doc, ok := pyast.Docstring(body, c.src); ok {
		docs = append(docs, doc)
	}
	var annotationDocs []string
	for _, ann := range annotations {
		annotationDocs = append(annotationDocs, docCalls(ann, c.src)...)
	}
	if returnAnn != nil {
		annotationDocs = append(annotationDocs, docCalls(returnAnn, c.src)...)
	}
	docs = append(docs, annotationDocs...)

	var isAbstract, isStatic bool
	for _, dec := range decorators {
		switch baseName(pyast.DecoratorName(dec, c.src)) {
		case "abstractmethod":
			isAbstract = true
		case "staticmethod", "classmethod":
			isStatic = true
		}
	}

	return model.SymbolDefinition{
		SymbolID:        id,
		Kind:            model.KindFunction,
		Name:            name,
		DisplayName:     name,
		Location:        c.location(node),
		Span:            span(node),
		EnclosingSymbol: c.enclosing(cls),
		Documentation:   docs,
		Details: model.FunctionOf(model.FunctionDetails{
			Parameters:  params,
			ReturnTypes: returnTypes,
			TypeParams:  typeParameters(node.ChildByFieldName("type_parameters"), c.src),
			Modifiers: model.FunctionModifiers{
				IsAsync:                 pyast.HasChildType(node, "async"),
				IsGenerator:             pyast.Contains(body, "yield"),
				IsStatic:                isStatic,
				IsAbstract:              isAbstract,
				IsConstructor:           isConstructor,
				UseSignatureOnlyForSize: len(annotationDocs) > 0 && trivialBody(body),
				Visibility:              model.VisibilityFromName(name),
			},
		}),
	}
}

// trivialBody reports whether a function body is a lone pass or return.
func trivialBody(body *sitter.Node) bool {
	stmts := pyast.Statements(body)
	if len(stmts) != 1 {
		return false
	}
	switch stmts[0].Type() {
	case "pass_statement", "return_statement":
		return true
	}
	return false
}

// receiverFields records self.x and cls.x assignments anywhere in a method
// body as fields of cls. Classes nested in the method own their own
// receivers and are skipped.
func (c *collector) receiverFields(body *sitter.Node, cls *classScope) {
	pyast.Walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "class_definition":
			return false
		case "assignment":
			for a := n; a != nil && a.Type() == "assignment"; a = a.ChildByFieldName("right") {
				left := a.ChildByFieldName("left")
				if left == nil || left.Type() != "attribute" {
					continue
				}
				obj := pyast.Text(left.ChildByFieldName("object"), c.src)
				if obj != "self" && obj != "cls" {
					continue
				}
				attr := pyast.Text(left.ChildByFieldName("attribute"), c.src)
				c.field(attr, a.ChildByFieldName("type"), n, cls)
			}
			return false
		}
		return true
	})
}

// assignment records the plain-name targets of a module or class scope
// assignment, following chains like a = b = 1.
func (c *collector) assignment(stmt *sitter.Node, cls *classScope) {
	for a := stmt; a != nil && a.Type() == "assignment"; a = a.ChildByFieldName("right") {
		for _, name := range targetNames(a.ChildByFieldName("left"), c.src) {
			if cls != nil {
				c.field(name, a.ChildByFieldName("type"), stmt, cls)
				continue
			}
			c.global(name, a.ChildByFieldName("type"), stmt)
		}
	}
}

// targetNames returns the identifiers bound by an assignment target,
// recursing into tuple and list patterns. Attribute and subscript targets
// bind nothing at this scope.
func targetNames(target *sitter.Node, src []byte) []string {
	if target == nil {
		return nil
	}
	switch target.Type() {
	case "identifier":
		return []string{pyast.Text(target, src)}
	case "pattern_list", "tuple_pattern", "list_pattern", "expression_list", "tuple", "list":
		var names []string
		for _, child := range pyast.NamedChildren(target) {
			names = append(names, targetNames(child, src)...)
		}
		return names
	case "parenthesized_expression":
		var names []string
		for _, child := range pyast.NamedChildren(target) {
			names = append(names, targetNames(child, src)...)
		}
		return names
	}
	return nil
}

func (c *collector) variable(name string, typ *sitter.Node, stmt *sitter.Node, scope model.VariableScope, cls *classScope) model.SymbolDefinition {
	var varType *string
	mutability := model.Mutable
	if typ != nil {
		text := pyast.CollapseSpace(pyast.Text(typ, c.src))
		varType = &text
		if baseName(text) == "Final" {
			mutability = model.Const
		}
	}
	return model.SymbolDefinition{
		SymbolID:        model.SymbolID(c.scopeID(cls), name),
		Kind:            model.KindVariable,
		Name:            name,
		DisplayName:     name,
		Location:        c.location(stmt),
		Span:            span(stmt),
		EnclosingSymbol: c.enclosing(cls),
		Details: model.VariableOf(model.VariableDetails{
			VarType:    varType,
			Mutability: mutability,
			Scope:      scope,
			Visibility: model.VisibilityFromName(name),
		}),
	}
}

func (c *collector) global(name string, typ, stmt *sitter.Node) {
	c.add(c.variable(name, typ, stmt, model.ScopeGlobal, nil))
}

// field records a class field once; later assignments to the same name are
// ignored.
func (c *collector) field(name string, typ, stmt *sitter.Node, cls *classScope) {
	if name == "" || cls.details.HasField(name) {
		return
	}
	def := c.variable(name, typ, stmt, model.ScopeField, cls)
	vd, _ := def.Details.Variable()
	cls.details.Fields = append(cls.details.Fields, model.TypeField{
		Name:       name,
		FieldType:  vd.VarType,
		Mutability: vd.Mutability,
		Visibility: vd.Visibility,
		SymbolID:   def.SymbolID,
	})
	c.add(def)
}
