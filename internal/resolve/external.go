package resolve

import (
	"sort"
	"strings"
	"sync"

	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/oracle"
	"github.com/jward/semindex/internal/pyast"
)

// Recorder collects synthesized definitions for targets outside the project.
// The first recording of a symbol id wins; later ones reuse it unchanged.
type Recorder struct {
	mu   sync.Mutex
	defs map[string]model.SymbolDefinition
}

func NewRecorder() *Recorder {
	return &Recorder{defs: make(map[string]model.SymbolDefinition)}
}

// Record returns the external definition for decl, creating it on first
// use. It reports false when decl cannot stand for an external symbol at a
// site with the given role.
func (r *Recorder) Record(decl oracle.Declaration, role model.ReferenceRole) (model.SymbolDefinition, bool) {
	id := decl.FullyQualifiedName
	if id == "" {
		return model.SymbolDefinition{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.defs[id]; ok {
		return d, true
	}
	kind, ok := externalKind(decl.Kind, role)
	if !ok {
		return model.SymbolDefinition{}, false
	}
	d := synthesize(decl, kind)
	r.defs[id] = d
	return d, true
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.defs)
}

// Definitions returns the recorded definitions ordered by symbol id.
func (r *Recorder) Definitions() []model.SymbolDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SymbolDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SymbolID < out[j].SymbolID })
	return out
}

// externalKind maps an oracle declaration kind to a definition kind. Unknown
// kinds are only taken to be callables at call and decorator sites, and
// read and write sites only ever record variables.
func externalKind(kind string, role model.ReferenceRole) (model.SymbolKind, bool) {
	var k model.SymbolKind
	switch kind {
	case oracle.KindClass:
		k = model.KindType
	case oracle.KindFunction, "method", oracle.KindProperty:
		k = model.KindFunction
	case oracle.KindStatement, oracle.KindInstance, "variable":
		k = model.KindVariable
	case oracle.KindModule, oracle.KindParam, oracle.KindKeyword:
		return "", false
	default:
		if role != model.RoleCall && role != model.RoleDecorate {
			return "", false
		}
		k = model.KindFunction
	}
	if (role == model.RoleRead || role == model.RoleWrite) && k != model.KindVariable {
		return "", false
	}
	return k, true
}

func synthesize(decl oracle.Declaration, kind model.SymbolKind) model.SymbolDefinition {
	name := decl.SimpleName
	if name == "" {
		name = decl.FullyQualifiedName[strings.LastIndexByte(decl.FullyQualifiedName, '.')+1:]
	}
	vis := model.VisibilityFromName(name)
	d := model.SymbolDefinition{
		SymbolID:      decl.FullyQualifiedName,
		Kind:          kind,
		Name:          name,
		DisplayName:   decl.FullyQualifiedName,
		IsExternal:    true,
		Documentation: []string{},
	}
	if decl.DefiningFile != "" {
		d.Location = model.SourceLocation{
			FilePath: decl.DefiningFile,
			Line:     decl.DefiningLine,
			Column:   decl.DefiningColumn,
		}
	}
	switch kind {
	case model.KindType:
		d.Details = model.TypeOf(model.TypeDetails{Kind: model.TypeClass, Visibility: vis})
	case model.KindVariable:
		d.Details = model.VariableOf(model.VariableDetails{
			Mutability: model.Mutable,
			Scope:      model.ScopeGlobal,
			Visibility: vis,
		})
	default:
		params, returns := ParseSignature(decl.Signature)
		d.Details = model.FunctionOf(model.FunctionDetails{
			Parameters:  params,
			ReturnTypes: returns,
			Modifiers:   model.FunctionModifiers{Visibility: vis, IsConstructor: name == "__init__"},
		})
	}
	return d
}

// ParseSignature reads parameters and the return type from signature text
// such as "name(a: int, b=1, *args) -> str". Receiver parameters and the
// "/" and "*" markers are skipped. Unparseable text yields nothing.
func ParseSignature(sig string) ([]model.Parameter, []string) {
	open := strings.IndexByte(sig, '(')
	if open < 0 {
		return nil, nil
	}
	depth, end := 0, -1
	for i := open; i < len(sig) && end < 0; i++ {
		switch sig[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
	}
	if end < 0 {
		return nil, nil
	}

	var params []model.Parameter
	for _, raw := range pyast.SplitTopLevel(sig[open+1:end], ',') {
		if raw == "/" || raw == "*" {
			continue
		}
		parts := pyast.SplitTopLevel(raw, '=')
		p := model.Parameter{HasDefault: len(parts) > 1}
		name, typ, _ := strings.Cut(parts[0], ":")
		name = strings.TrimSpace(name)
		if strings.HasPrefix(name, "*") {
			p.IsVariadic = true
			name = strings.TrimLeft(name, "*")
		}
		if name == "" || name == "self" || name == "cls" {
			continue
		}
		p.Name = name
		p.ParamType = model.Ptr(strings.TrimSpace(typ))
		params = append(params, p)
	}

	var returns []string
	if _, ret, ok := strings.Cut(sig[end+1:], "->"); ok {
		if ret = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(ret), ":")); ret != "" {
			returns = []string{ret}
		}
	}
	return params, returns
}
