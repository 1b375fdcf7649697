// Package oracle answers "what does the name at this position refer to" for
// the reference pass.
//
// Three implementations are provided: Static walks the project's own syntax
// trees, Command delegates to a long-lived subprocess speaking JSON lines, and
// Cached memoizes any Oracle.
package oracle

import (
	"context"
	"path/filepath"
	"strings"
)

// Declaration kinds reported by oracles. An empty kind means unknown.
const (
	KindModule    = "module"
	KindClass     = "class"
	KindFunction  = "function"
	KindStatement = "statement"
	KindInstance  = "instance"
	KindParam     = "param"
	KindProperty  = "property"
	KindKeyword   = "keyword"
)

// Declaration is one candidate a use site may refer to. Lines and columns are
// 0-based. DefiningFile is project-relative for project declarations and empty
// or absolute for everything else.
type Declaration struct {
	DefiningFile       string `json:"defining_file"`
	DefiningLine       int    `json:"defining_line"`
	DefiningColumn     int    `json:"defining_column"`
	SimpleName         string `json:"simple_name"`
	FullyQualifiedName string `json:"fully_qualified_name"`
	Kind               string `json:"kind"`
	Signature          string `json:"signature,omitempty"`
}

// Oracle resolves a source position to candidate declarations. Zero results
// is a valid outcome, not an error.
type Oracle interface {
	Resolve(ctx context.Context, file string, line, column int) ([]Declaration, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, file string, line, column int) ([]Declaration, error)

func (f Func) Resolve(ctx context.Context, file string, line, column int) ([]Declaration, error) {
	return f(ctx, file, line, column)
}

// Source is one project file handed to an oracle at construction time.
type Source struct {
	Path    string // project-relative, slash separated
	Content []byte
}

// NormalizePath makes a path slash separated and strips a leading "./".
func NormalizePath(p string) string {
	p = filepath.ToSlash(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}

// Close releases an oracle's resources when it holds any.
func Close(o Oracle) error {
	if c, ok := o.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
