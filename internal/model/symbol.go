// Package model defines the symbol table and reference graph produced by the
// two indexing passes, along with their wire format.
//
// Field names and enum spellings are part of the contract with downstream
// consumers and must not change silently.
package model

import (
	"path"
	"strings"
)

// SymbolKind is the coarse kind of a definition.
type SymbolKind string

const (
	KindFunction SymbolKind = "Function"
	KindVariable SymbolKind = "Variable"
	KindType     SymbolKind = "Type"
)

// Visibility is inferred from naming convention.
type Visibility string

const (
	Public    Visibility = "Public"
	Private   Visibility = "Private"
	Protected Visibility = "Protected"
	Internal  Visibility = "Internal"
)

// Mutability of a variable or field.
type Mutability string

const (
	Const     Mutability = "Const"
	Immutable Mutability = "Immutable"
	Mutable   Mutability = "Mutable"
)

// VariableScope distinguishes module globals from class fields.
type VariableScope string

const (
	ScopeGlobal VariableScope = "Global"
	ScopeField  VariableScope = "Field"
)

// ReferenceRole is how a reference uses its target.
type ReferenceRole string

const (
	RoleCall     ReferenceRole = "Call"
	RoleRead     ReferenceRole = "Read"
	RoleWrite    ReferenceRole = "Write"
	RoleDecorate ReferenceRole = "Decorate"
)

// TypeKind classifies a type declaration.
type TypeKind string

const (
	TypeClass        TypeKind = "Class"
	TypeInterface    TypeKind = "Interface"
	TypeStruct       TypeKind = "Struct"
	TypeEnum         TypeKind = "Enum"
	TypeAlias        TypeKind = "TypeAlias"
	TypeUnion        TypeKind = "Union"
	TypeIntersection TypeKind = "Intersection"
	TypeVar          TypeKind = "TypeVar"
)

// SourceLocation is a 0-based position in a file. Column is a byte offset.
type SourceLocation struct {
	FilePath string `json:"file_path" yaml:"file_path"`
	Line     int    `json:"line" yaml:"line"`
	Column   int    `json:"column" yaml:"column"`
}

// SourceSpan is a half-open range. EndLine is one past the last line of the
// declaration; EndColumn is the exclusive end column on that last line.
type SourceSpan struct {
	StartLine   int `json:"start_line" yaml:"start_line"`
	StartColumn int `json:"start_column" yaml:"start_column"`
	EndLine     int `json:"end_line" yaml:"end_line"`
	EndColumn   int `json:"end_column" yaml:"end_column"`
}

// ContainsLine reports whether line falls in [StartLine, EndLine).
func (s SourceSpan) ContainsLine(line int) bool {
	return line >= s.StartLine && line < s.EndLine
}

// Lines is the number of lines the span covers.
func (s SourceSpan) Lines() int {
	return s.EndLine - s.StartLine
}

// SymbolDefinition is one declared entity.
type SymbolDefinition struct {
	SymbolID        string         `json:"symbol_id" yaml:"symbol_id"`
	Kind            SymbolKind     `json:"kind" yaml:"kind"`
	Name            string         `json:"name" yaml:"name"`
	DisplayName     string         `json:"display_name" yaml:"display_name"`
	Location        SourceLocation `json:"location" yaml:"location"`
	Span            SourceSpan     `json:"span" yaml:"span"`
	EnclosingSymbol *string        `json:"enclosing_symbol" yaml:"enclosing_symbol"`
	IsExternal      bool           `json:"is_external" yaml:"is_external"`
	Documentation   []string       `json:"documentation" yaml:"documentation"`
	Details         Details        `json:"details" yaml:"details"`
}

// SymbolReference is one occurrence of a symbol being used.
type SymbolReference struct {
	TargetSymbol    *string        `json:"target_symbol" yaml:"target_symbol"`
	Location        SourceLocation `json:"location" yaml:"location"`
	EnclosingSymbol string         `json:"enclosing_symbol" yaml:"enclosing_symbol"`
	Role            ReferenceRole  `json:"role" yaml:"role"`
	Receiver        *string        `json:"receiver" yaml:"receiver"`
	MethodName      *string        `json:"method_name" yaml:"method_name"`
	AssignedTo      *string        `json:"assigned_to" yaml:"assigned_to"`
}

// Resolved reports whether the reference has a target.
func (r *SymbolReference) Resolved() bool {
	return r.TargetSymbol != nil && *r.TargetSymbol != ""
}

// Target returns the target symbol id, or "" when unresolved.
func (r *SymbolReference) Target() string {
	if r.TargetSymbol == nil {
		return ""
	}
	return *r.TargetSymbol
}

// Ptr returns a pointer to s, or nil for the empty string.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ModuleID converts a project-relative path to its dotted module id:
// "pkg/mod.py" becomes "pkg.mod". The empty module is "__main__".
func ModuleID(relPath string) string {
	p := strings.ReplaceAll(relPath, "\\", "/")
	p = strings.TrimSuffix(p, path.Ext(p))
	p = strings.Trim(p, "/")
	if p == "" || p == "." {
		return "__main__"
	}
	return strings.ReplaceAll(p, "/", ".")
}

// SymbolID joins scope parts with the symbol id delimiter.
func SymbolID(parts ...string) string {
	return strings.Join(parts, ".")
}

// VisibilityFromName applies the Python naming convention.
func VisibilityFromName(name string) Visibility {
	if strings.HasPrefix(name, "__") && !strings.HasSuffix(name, "__") {
		return Private
	}
	if strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "__") {
		return Private
	}
	return Public
}
