// Package resolve implements the reference pass: it walks each file a second
// time, asks an oracle what every use site refers to, and binds the answer to
// a project definition or a synthesized external symbol.
package resolve

import (
	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/oracle"
)

type lineKey struct {
	file string
	line int
}

// Index is the project-wide definition table built once after the
// definition pass. It is read-only and safe for concurrent use.
type Index struct {
	defs   []model.SymbolDefinition
	byID   map[string]int
	byLine map[lineKey][]int
	byFile map[string][]int
	files  map[string]bool
}

// NewIndex indexes the definitions of docs. Every document's path counts as
// part of the project, including documents with no definitions.
func NewIndex(docs []model.DocumentSemantics) *Index {
	x := &Index{
		byID:   make(map[string]int),
		byLine: make(map[lineKey][]int),
		byFile: make(map[string][]int),
		files:  make(map[string]bool, len(docs)),
	}
	for _, doc := range docs {
		x.files[oracle.NormalizePath(doc.RelativePath)] = true
		for _, d := range doc.Definitions {
			if _, dup := x.byID[d.SymbolID]; dup {
				continue
			}
			i := len(x.defs)
			x.defs = append(x.defs, d)
			file := oracle.NormalizePath(d.Location.FilePath)
			x.byID[d.SymbolID] = i
			key := lineKey{file: file, line: d.Location.Line}
			x.byLine[key] = append(x.byLine[key], i)
			x.byFile[file] = append(x.byFile[file], i)
		}
	}
	return x
}

// Len returns the number of indexed definitions.
func (x *Index) Len() int { return len(x.defs) }

// HasFile reports whether file belongs to the project.
func (x *Index) HasFile(file string) bool {
	return x.files[oracle.NormalizePath(file)]
}

// ByID returns the definition with the given symbol id.
func (x *Index) ByID(id string) (*model.SymbolDefinition, bool) {
	i, ok := x.byID[id]
	if !ok {
		return nil, false
	}
	return &x.defs[i], true
}

// AtLine returns the definition named name whose location is on line.
func (x *Index) AtLine(file string, line int, name string) (*model.SymbolDefinition, bool) {
	for _, i := range x.byLine[lineKey{file: oracle.NormalizePath(file), line: line}] {
		if x.defs[i].Name == name {
			return &x.defs[i], true
		}
	}
	return nil, false
}

// InSpan returns the innermost definition named name whose span contains
// line.
func (x *Index) InSpan(file string, line int, name string) (*model.SymbolDefinition, bool) {
	var best *model.SymbolDefinition
	for _, i := range x.byFile[oracle.NormalizePath(file)] {
		d := &x.defs[i]
		if d.Name != name || !d.Span.ContainsLine(line) {
			continue
		}
		if best == nil || d.Span.Lines() < best.Span.Lines() {
			best = d
		}
	}
	return best, best != nil
}
