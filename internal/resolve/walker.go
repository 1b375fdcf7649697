package resolve

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/pyast"
)

// frame is a named function whose body is being walked.
type frame struct {
	start, end int
	id         string
}

// state is threaded through the walk instead of looking at parents.
type state struct {
	// decorated overrides the enclosing symbol inside decorator expressions.
	decorated string
	// assignedTo is the variable receiving the value of the call being
	// walked, when that call is the whole right-hand side.
	assignedTo string
}

type walker struct {
	ctx    context.Context
	r      *Resolver
	src    []byte
	path   string
	module string
	frames []frame
	refs   []model.SymbolReference

	// classes names the class bodies being walked outside any function.
	classes []string
	// inFunction counts the function bodies being walked.
	inFunction int
}

// References walks a parsed file and returns its references. The file must
// be the one its definitions were indexed from.
func (r *Resolver) References(ctx context.Context, f *pyast.File) []model.SymbolReference {
	w := &walker{
		ctx:    ctx,
		r:      r,
		src:    f.Source,
		path:   f.RelPath,
		module: model.ModuleID(f.RelPath),
		refs:   []model.SymbolReference{},
	}
	if root := f.Root(); root != nil {
		w.walk(root, state{})
	}
	return w.refs
}

// enclosing returns the innermost named function containing line, or the
// module id.
func (w *walker) enclosing(line int, st state) string {
	if st.decorated != "" {
		return st.decorated
	}
	for i := len(w.frames) - 1; i >= 0; i-- {
		if f := w.frames[i]; line >= f.start && line <= f.end {
			return f.id
		}
	}
	return w.module
}

func (w *walker) text(n *sitter.Node) string { return pyast.Text(n, w.src) }

func (w *walker) walk(n *sitter.Node, st state) {
	if n == nil || w.ctx.Err() != nil {
		return
	}
	switch n.Type() {
	case "import_statement", "import_from_statement", "future_import_statement",
		"global_statement", "nonlocal_statement", "comment", "dotted_name":
		return
	case "decorated_definition":
		w.decoratedDefinition(n, st)
	case "function_definition":
		w.function(n, st)
	case "class_definition":
		w.class(n, st)
	case "call":
		w.call(n, st)
	case "attribute":
		w.attribute(n, model.RoleRead, st)
	case "identifier":
		w.name(n, model.RoleRead, st)
	case "assignment":
		w.assignment(n, st)
	case "augmented_assignment":
		w.store(n.ChildByFieldName("left"), st)
		w.walk(n.ChildByFieldName("right"), state{decorated: st.decorated})
	case "for_statement", "for_in_clause":
		left := n.ChildByFieldName("left")
		for _, c := range pyast.NamedChildren(n) {
			if pyast.Same(c, left) {
				w.store(c, st)
			} else {
				w.walk(c, st)
			}
		}
	case "named_expression":
		w.store(n.ChildByFieldName("name"), st)
		w.walk(n.ChildByFieldName("value"), st)
	case "as_pattern":
		alias := n.ChildByFieldName("alias")
		for _, c := range pyast.NamedChildren(n) {
			if pyast.Same(c, alias) {
				w.store(c, st)
			} else {
				w.walk(c, st)
			}
		}
	case "except_clause", "except_group_clause":
		storeNext := false
		for _, c := range pyast.Children(n) {
			switch {
			case c.Type() == "as":
				storeNext = true
			case !c.IsNamed():
			case storeNext:
				w.store(c, st)
				storeNext = false
			default:
				w.walk(c, st)
			}
		}
	case "keyword_argument":
		w.walk(n.ChildByFieldName("value"), st)
	case "parameters", "lambda_parameters":
		w.parameters(n, st)
	default:
		for _, c := range pyast.NamedChildren(n) {
			w.walk(c, st)
		}
	}
}

// parameters walks default values and annotations, never parameter names.
func (w *walker) parameters(n *sitter.Node, st state) {
	for _, p := range pyast.NamedChildren(n) {
		switch p.Type() {
		case "default_parameter":
			w.walk(p.ChildByFieldName("value"), st)
		case "typed_parameter":
			w.walk(p.ChildByFieldName("type"), st)
		case "typed_default_parameter":
			w.walk(p.ChildByFieldName("type"), st)
			w.walk(p.ChildByFieldName("value"), st)
		}
	}
}

// definitionID returns the symbol id of a function or class the definition
// pass recorded, or "" for local declarations. A redefinition at module or
// class scope maps to the first declaration of the same name.
func (w *walker) definitionID(def *sitter.Node, kind model.SymbolKind) string {
	name := def.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	d, ok := w.r.index.AtLine(w.path, pyast.Row(def), w.text(name))
	if !ok && w.inFunction == 0 {
		parts := append([]string{w.module}, w.classes...)
		d, ok = w.r.index.ByID(model.SymbolID(append(parts, w.text(name))...))
	}
	if !ok || d.Kind != kind {
		return ""
	}
	return d.SymbolID
}

func definitionKind(def *sitter.Node) model.SymbolKind {
	if def.Type() == "class_definition" {
		return model.KindType
	}
	return model.KindFunction
}

func (w *walker) decoratedDefinition(n *sitter.Node, st state) {
	def, decorators := pyast.Unwrap(n)
	if def == nil {
		return
	}
	target := w.definitionID(def, definitionKind(def))
	if target == "" {
		target = w.enclosing(pyast.Row(n), st)
	}
	for _, dec := range decorators {
		w.decorator(dec, target)
	}
	w.walk(def, st)
}

// decorator emits one Decorate reference for the decorator's callee and
// walks its receiver and arguments on behalf of the decorated symbol.
func (w *walker) decorator(dec *sitter.Node, target string) {
	expr := pyast.DecoratorExpr(dec)
	if expr == nil {
		return
	}
	st := state{decorated: target}
	callee, args := expr, (*sitter.Node)(nil)
	if expr.Type() == "call" {
		callee, args = expr.ChildByFieldName("function"), expr.ChildByFieldName("arguments")
	}
	if callee == nil {
		return
	}

	switch callee.Type() {
	case "identifier":
		site := w.site(callee, model.RoleDecorate)
		w.emit(callee, w.r.Resolve(w.ctx, site), model.RoleDecorate, st)
	case "attribute":
		w.walk(callee.ChildByFieldName("object"), st)
		attr := callee.ChildByFieldName("attribute")
		site := w.attributeSite(callee, attr, model.RoleDecorate)
		w.emit(attr, w.r.Resolve(w.ctx, site), model.RoleDecorate, st)
	default:
		w.walk(callee, st)
		w.emit(callee, Resolution{}, model.RoleDecorate, st)
	}
	w.walk(args, st)
}

func (w *walker) function(def *sitter.Node, st state) {
	w.walk(def.ChildByFieldName("type_parameters"), st)
	w.walk(def.ChildByFieldName("parameters"), st)
	w.walk(def.ChildByFieldName("return_type"), st)

	body := def.ChildByFieldName("body")
	id := w.definitionID(def, model.KindFunction)
	w.inFunction++
	defer func() { w.inFunction-- }()
	if id == "" {
		w.walk(body, state{})
		return
	}
	w.frames = append(w.frames, frame{start: pyast.Row(def), end: pyast.EndRow(def), id: id})
	w.walk(body, state{})
	w.frames = w.frames[:len(w.frames)-1]
}

func (w *walker) class(def *sitter.Node, st state) {
	w.walk(def.ChildByFieldName("superclasses"), st)
	name := def.ChildByFieldName("name")
	if name == nil || w.inFunction > 0 {
		w.walk(def.ChildByFieldName("body"), state{})
		return
	}
	w.classes = append(w.classes, w.text(name))
	w.walk(def.ChildByFieldName("body"), state{})
	w.classes = w.classes[:len(w.classes)-1]
}

func (w *walker) site(n *sitter.Node, role model.ReferenceRole) *Site {
	return &Site{
		File:   w.path,
		Line:   pyast.Row(n),
		Column: pyast.Col(n),
		Name:   w.text(n),
		Role:   role,
	}
}

func (w *walker) attributeSite(n, attr *sitter.Node, role model.ReferenceRole) *Site {
	site := w.site(attr, role)
	site.Attribute = true
	if obj := n.ChildByFieldName("object"); obj != nil && obj.Type() == "identifier" {
		site.Receiver = w.text(obj)
		site.ReceiverLine = pyast.Row(obj)
		site.ReceiverColumn = pyast.Col(obj)
	}
	return site
}

// emit appends a reference located at n.
func (w *walker) emit(n *sitter.Node, res Resolution, role model.ReferenceRole, st state) {
	line := pyast.Row(n)
	w.refs = append(w.refs, model.SymbolReference{
		TargetSymbol:    model.Ptr(res.Target),
		Location:        model.SourceLocation{FilePath: w.path, Line: line, Column: pyast.Col(n)},
		EnclosingSymbol: w.enclosing(line, st),
		Role:            role,
		Receiver:        model.Ptr(res.Receiver),
		MethodName:      model.Ptr(res.MethodName),
		AssignedTo:      model.Ptr(st.assignedTo),
	})
}

// call emits a Call reference for the callee and walks the receiver and
// arguments. The callee itself is never also reported as a Read.
func (w *walker) call(n *sitter.Node, st state) {
	inner := state{decorated: st.decorated}
	callee := n.ChildByFieldName("function")
	if callee == nil {
		return
	}
	switch callee.Type() {
	case "identifier":
		site := w.site(callee, model.RoleCall)
		w.emit(callee, w.r.Resolve(w.ctx, site), model.RoleCall, st)
	case "attribute":
		w.walk(callee.ChildByFieldName("object"), inner)
		attr := callee.ChildByFieldName("attribute")
		site := w.attributeSite(callee, attr, model.RoleCall)
		w.emit(attr, w.r.Resolve(w.ctx, site), model.RoleCall, st)
	default:
		w.walk(callee, inner)
		w.emit(n, Resolution{}, model.RoleCall, st)
	}
	w.walk(n.ChildByFieldName("arguments"), inner)
}

// attribute emits a Read or Write when the attribute names a variable.
func (w *walker) attribute(n *sitter.Node, role model.ReferenceRole, st state) {
	w.walk(n.ChildByFieldName("object"), state{decorated: st.decorated})
	attr := n.ChildByFieldName("attribute")
	if attr == nil {
		return
	}
	res := w.r.Resolve(w.ctx, w.attributeSite(n, attr, role))
	if res.Kind == model.KindVariable {
		w.emit(attr, res, role, state{decorated: st.decorated})
	}
}

// name emits a Read or Write when the identifier names a variable.
func (w *walker) name(n *sitter.Node, role model.ReferenceRole, st state) {
	res := w.r.Resolve(w.ctx, w.site(n, role))
	if res.Kind == model.KindVariable {
		w.emit(n, res, role, state{decorated: st.decorated})
	}
}

// store walks an assignment target.
func (w *walker) store(t *sitter.Node, st state) {
	if t == nil {
		return
	}
	switch t.Type() {
	case "identifier":
		w.name(t, model.RoleWrite, st)
	case "attribute":
		w.attribute(t, model.RoleWrite, st)
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "expression_list",
		"parenthesized_expression", "list_splat_pattern", "list_splat", "as_pattern_target":
		for _, c := range pyast.NamedChildren(t) {
			w.store(c, st)
		}
	default:
		w.walk(t, st)
	}
}

func (w *walker) assignment(n *sitter.Node, st state) {
	left := n.ChildByFieldName("left")
	w.store(left, st)
	w.walk(n.ChildByFieldName("type"), st)

	right := n.ChildByFieldName("right")
	if right == nil {
		return
	}
	switch right.Type() {
	case "call":
		w.walk(right, state{decorated: st.decorated, assignedTo: w.assignTarget(left, pyast.Row(n))})
	case "assignment":
		w.assignment(right, st)
	default:
		w.walk(right, st)
	}
}

// assignTarget returns the variable a call result is assigned to when the
// target is a name or receiver attribute recorded on the same line.
func (w *walker) assignTarget(left *sitter.Node, line int) string {
	if left == nil {
		return ""
	}
	var name string
	switch left.Type() {
	case "identifier":
		name = w.text(left)
	case "attribute":
		if obj := left.ChildByFieldName("object"); obj == nil || obj.Type() != "identifier" {
			return ""
		}
		name = w.text(left.ChildByFieldName("attribute"))
	default:
		return ""
	}
	d, ok := w.r.index.AtLine(w.path, line, name)
	if !ok || d.Kind != model.KindVariable {
		return ""
	}
	return d.SymbolID
}
