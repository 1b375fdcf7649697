// Package semindex builds a project-wide semantic index of Python source:
// a symbol table of module- and class-level definitions plus a reference
// graph connecting every call, read, write and decoration site to the
// definition it uses.
//
// # Pipeline
//
// An index is built in two strictly sequential passes:
//
//  1. Definitions: every file is parsed with tree-sitter and its module- and
//     class-scope symbols are recorded under dotted symbol ids
//     (pkg.module.Class.method). Symbols local to function bodies are never
//     recorded.
//
//  2. References: with the complete definition table in hand, every use
//     site is resolved through an [Oracle] and matched back to a project
//     definition, or recorded as an external symbol when it lives outside
//     the project. Unresolvable sites are kept with an unset target.
//
// Within a pass files are processed concurrently. One oracle is built per
// run and shared by every file.
//
// # Usage
//
//	s, err := semindex.OpenStore(".semindex/index.db")
//	if err != nil { ... }
//	defer s.Close()
//
//	e := semindex.New(semindex.WithStore(s))
//	res, err := e.IndexDirectory(ctx, "path/to/project", semindex.DiscoverOptions{})
//	if err != nil { ... }
//	err = semindex.Encode(os.Stdout, res.Data, semindex.FormatJSON)
//
//	q := e.Query()
//	callers, err := q.TransitiveCallers("app.routes.Router.add", 3)
//
// # Oracles
//
// By default references resolve through a static oracle built from the
// project's own syntax trees. [WithOracleCommand] instead starts an external
// resolver (for example a Jedi wrapper) speaking JSON lines over stdio, and
// [WithOracleCache] memoizes either one by position.
//
// # Output
//
// [Result.Data] is the project record. Each definition's kind-specific
// details encode as a single-key object ({"Function": {...}}) so typed
// consumers can decode them straight into a tagged union.
package semindex
