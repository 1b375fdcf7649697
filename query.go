package semindex

import (
	"fmt"
	"sort"

	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/store"
)

// Edge is an aggregated caller → callee relationship.
type Edge = store.Edge

// QueryBuilder answers questions about the latest persisted run.
type QueryBuilder struct {
	store *store.Store
}

// NewQueryBuilder returns a QueryBuilder over s.
func NewQueryBuilder(s *Store) *QueryBuilder {
	return &QueryBuilder{store: s}
}

// Symbol returns the definition with the given id, or nil.
func (q *QueryBuilder) Symbol(id string) (*SymbolDefinition, error) {
	def, err := q.store.Symbol(id)
	if err != nil {
		return nil, fmt.Errorf("symbol: %w", err)
	}
	return def, nil
}

// SymbolsInFile returns the definitions of one project file.
func (q *QueryBuilder) SymbolsInFile(path string) ([]*SymbolDefinition, error) {
	defs, err := q.store.SymbolsByFile(path)
	if err != nil {
		return nil, fmt.Errorf("symbols in file: %w", err)
	}
	return defs, nil
}

// SymbolsByName returns every definition, project or external, with the
// given simple name.
func (q *QueryBuilder) SymbolsByName(name string) ([]*SymbolDefinition, error) {
	defs, err := q.store.SymbolsByName(name)
	if err != nil {
		return nil, fmt.Errorf("symbols by name: %w", err)
	}
	return defs, nil
}

// DefinitionAt finds the definition for a position (0-based line and
// column). A resolved reference on that line starting at or before col wins;
// otherwise the innermost definition whose span contains the position is
// returned. Nil when nothing matches.
func (q *QueryBuilder) DefinitionAt(path string, line, col int) (*SymbolDefinition, error) {
	refs, err := q.store.ReferencesByFile(path)
	if err != nil {
		return nil, fmt.Errorf("definition at: %w", err)
	}
	var best *Reference
	for _, r := range refs {
		if r.Location.Line != line || r.Location.Column > col || !r.Resolved() {
			continue
		}
		if best == nil || r.Location.Column > best.Location.Column {
			best = r
		}
	}
	if best != nil {
		def, err := q.store.Symbol(best.Target())
		if err != nil {
			return nil, fmt.Errorf("definition at: %w", err)
		}
		if def != nil {
			return def, nil
		}
	}

	containing, err := q.store.SymbolsContaining(path, line)
	if err != nil {
		return nil, fmt.Errorf("definition at: %w", err)
	}
	for _, def := range containing {
		if spanContains(def.Span, line, col) {
			return def, nil
		}
	}
	return nil, nil
}

func spanContains(s model.SourceSpan, line, col int) bool {
	if !s.ContainsLine(line) {
		return false
	}
	return line != s.StartLine || col >= s.StartColumn
}

// ReferencesTo returns every reference whose target is id.
func (q *QueryBuilder) ReferencesTo(id string) ([]*Reference, error) {
	refs, err := q.store.ReferencesTo(id)
	if err != nil {
		return nil, fmt.Errorf("references to: %w", err)
	}
	return refs, nil
}

// ReferencesFrom returns every reference made inside id.
func (q *QueryBuilder) ReferencesFrom(id string) ([]*Reference, error) {
	refs, err := q.store.ReferencesFrom(id)
	if err != nil {
		return nil, fmt.Errorf("references from: %w", err)
	}
	return refs, nil
}

// Callers returns the direct call edges into id.
func (q *QueryBuilder) Callers(id string) ([]Edge, error) {
	edges, err := q.store.CallEdges()
	if err != nil {
		return nil, fmt.Errorf("callers: %w", err)
	}
	var out []Edge
	for _, e := range edges {
		if e.Callee == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// Callees returns the direct call edges out of id.
func (q *QueryBuilder) Callees(id string) ([]Edge, error) {
	edges, err := q.store.CallEdges()
	if err != nil {
		return nil, fmt.Errorf("callees: %w", err)
	}
	var out []Edge
	for _, e := range edges {
		if e.Caller == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// Unresolved returns the references whose target could not be determined.
func (q *QueryBuilder) Unresolved() ([]*Reference, error) {
	refs, err := q.store.Unresolved()
	if err != nil {
		return nil, fmt.Errorf("unresolved: %w", err)
	}
	return refs, nil
}

// Externals returns the synthesized out-of-project definitions.
func (q *QueryBuilder) Externals() ([]*SymbolDefinition, error) {
	defs, err := q.store.Externals()
	if err != nil {
		return nil, fmt.Errorf("externals: %w", err)
	}
	return defs, nil
}

// Summary describes the latest persisted run.
type Summary struct {
	Run         *Run
	ParseFailed []string
	ByKind      map[model.SymbolKind]int
	ByRole      map[model.ReferenceRole]int
	TopCallees  []Edge
}

// Summary returns the latest run's counters, or nil when nothing has been
// indexed. TopCallees holds up to ten edges with the most call sites.
func (q *QueryBuilder) Summary() (*Summary, error) {
	run, err := q.store.LatestRun()
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	if run == nil {
		return nil, nil
	}
	sum := &Summary{
		Run:    run,
		ByKind: make(map[model.SymbolKind]int),
		ByRole: make(map[model.ReferenceRole]int),
	}

	files, err := q.store.Files()
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	for _, f := range files {
		if f.Status == store.StatusParseFailed {
			sum.ParseFailed = append(sum.ParseFailed, f.Path)
		}
	}

	if err := q.countInto("SELECT kind, COUNT(*) FROM symbols WHERE is_external = 0 GROUP BY kind", func(k string, n int) {
		sum.ByKind[model.SymbolKind(k)] = n
	}); err != nil {
		return nil, fmt.Errorf("summary: kinds: %w", err)
	}
	if err := q.countInto("SELECT role, COUNT(*) FROM references_ GROUP BY role", func(k string, n int) {
		sum.ByRole[model.ReferenceRole(k)] = n
	}); err != nil {
		return nil, fmt.Errorf("summary: roles: %w", err)
	}

	edges, err := q.store.CallEdges()
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	sum.TopCallees = topEdges(edges, 10)
	return sum, nil
}

func (q *QueryBuilder) countInto(query string, fn func(key string, n int)) error {
	rows, err := q.store.DB().Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key, n)
	}
	return rows.Err()
}

// topEdges returns the n edges with the highest counts. Ties keep the
// store's caller/callee order.
func topEdges(edges []Edge, n int) []Edge {
	sorted := make([]Edge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Count > sorted[j].Count })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
