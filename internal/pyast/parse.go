// Package pyast parses Python source with tree-sitter and provides the small
// set of node helpers both indexing passes share.
package pyast

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrSyntax is returned by Parse when the tree contains error or missing nodes.
// The returned File is still usable for best-effort inspection.
var ErrSyntax = errors.New("pyast: syntax error")

// File is one parsed source file.
type File struct {
	RelPath string
	Source  []byte
	Tree    *sitter.Tree
}

// Root returns the module node.
func (f *File) Root() *sitter.Node {
	if f == nil || f.Tree == nil {
		return nil
	}
	return f.Tree.RootNode()
}

// Lines returns the number of source lines.
func (f *File) Lines() int {
	if len(f.Source) == 0 {
		return 0
	}
	n := bytes.Count(f.Source, []byte{'\n'})
	if f.Source[len(f.Source)-1] != '\n' {
		n++
	}
	return n
}

// Line returns the text of the 0-based line i without its terminator.
func (f *File) Line(i int) string {
	if i < 0 {
		return ""
	}
	src := f.Source
	for ; i > 0; i-- {
		idx := bytes.IndexByte(src, '\n')
		if idx < 0 {
			return ""
		}
		src = src[idx+1:]
	}
	if idx := bytes.IndexByte(src, '\n'); idx >= 0 {
		src = src[:idx]
	}
	return string(bytes.TrimSuffix(src, []byte{'\r'}))
}

// Text returns the source text of n.
func (f *File) Text(n *sitter.Node) string {
	return Text(n, f.Source)
}

// Close releases the tree.
func (f *File) Close() {
	if f != nil && f.Tree != nil {
		f.Tree.Close()
		f.Tree = nil
	}
}

// Parse builds a syntax tree for src. Parsers are not goroutine-safe, so each
// call creates its own.
func Parse(ctx context.Context, relPath string, src []byte) (*File, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(Language())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("pyast: parse %s: %w", relPath, err)
	}
	f := &File{RelPath: relPath, Source: src, Tree: tree}
	if tree.RootNode().HasError() {
		return f, fmt.Errorf("%w in %s", ErrSyntax, relPath)
	}
	return f, nil
}
