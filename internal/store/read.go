package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jward/semindex/internal/model"
)

// --- Run and file operations ---

const runCols = `id, project_root, started_at, finished_at, files, definitions, refs, unresolved, externals`

func scanRun(scanner interface{ Scan(...any) error }) (*Run, error) {
	r := &Run{}
	err := scanner.Scan(&r.ID, &r.ProjectRoot, &r.StartedAt, &r.FinishedAt,
		&r.Files, &r.Definitions, &r.References, &r.Unresolved, &r.Externals)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// LatestRun returns the most recently saved run, or nil when nothing has
// been saved yet.
func (s *Store) LatestRun() (*Run, error) {
	id, err := s.GetMetadata("latest_run")
	if err != nil || id == "" {
		return nil, err
	}
	r, err := scanRun(s.db.QueryRow("SELECT "+runCols+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest run: %w", err)
	}
	return r, nil
}

// Runs returns every saved run, newest first.
func (s *Store) Runs() ([]*Run, error) {
	rows, err := s.db.Query("SELECT " + runCols + " FROM runs ORDER BY finished_at DESC")
	if err != nil {
		return nil, fmt.Errorf("store: runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

const fileCols = `id, path, language, hash, line_count, status, last_indexed`

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash sql.NullString
	if err := scanner.Scan(&f.ID, &f.Path, &f.Language, &hash, &f.LineCount, &f.Status, &f.LastIndexed); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	return f, nil
}

// Files returns every stored file ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + fileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("store: files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FileByPath returns the stored file, or nil when absent.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: file by path: %w", err)
	}
	return f, nil
}

// --- Symbol operations ---

// SymbolCols is the column list for symbol queries.
const SymbolCols = `symbol_id, file_path, name, display_name, kind, line, col,
	start_line, start_col, end_line, end_col, enclosing_symbol, is_external,
	documentation, details`

// ScanSymbolRow scans a single row selected with SymbolCols.
func ScanSymbolRow(scanner interface{ Scan(...any) error }) (*model.SymbolDefinition, error) {
	def := &model.SymbolDefinition{}
	var (
		filePath  sql.NullString
		kind      string
		enclosing sql.NullString
		doc       sql.NullString
		details   string
	)
	err := scanner.Scan(
		&def.SymbolID, &filePath, &def.Name, &def.DisplayName, &kind,
		&def.Location.Line, &def.Location.Column,
		&def.Span.StartLine, &def.Span.StartColumn, &def.Span.EndLine, &def.Span.EndColumn,
		&enclosing, &def.IsExternal, &doc, &details,
	)
	if err != nil {
		return nil, err
	}
	def.Kind = model.SymbolKind(kind)
	def.Location.FilePath = filePath.String
	def.EnclosingSymbol = stringPtr(enclosing)
	def.Documentation = unmarshalDocumentation(doc.String)
	if err := json.Unmarshal([]byte(details), &def.Details); err != nil {
		return nil, fmt.Errorf("symbol %q: %w", def.SymbolID, err)
	}
	return def, nil
}

func (s *Store) querySymbols(query string, args ...any) ([]*model.SymbolDefinition, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query symbols: %w", err)
	}
	defer rows.Close()
	var symbols []*model.SymbolDefinition
	for rows.Next() {
		def, err := ScanSymbolRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan symbol: %w", err)
		}
		symbols = append(symbols, def)
	}
	return symbols, rows.Err()
}

// Symbol returns the definition with the given id, or nil when absent.
func (s *Store) Symbol(id string) (*model.SymbolDefinition, error) {
	syms, err := s.querySymbols("SELECT "+SymbolCols+" FROM symbols WHERE symbol_id = ?", id)
	if err != nil || len(syms) == 0 {
		return nil, err
	}
	return syms[0], nil
}

// SymbolsByFile returns a file's definitions in insertion order.
func (s *Store) SymbolsByFile(path string) ([]*model.SymbolDefinition, error) {
	return s.querySymbols(
		"SELECT "+SymbolCols+" FROM symbols WHERE file_id = (SELECT id FROM files WHERE path = ?) ORDER BY id", path)
}

// SymbolsByName returns project and external definitions with the simple name.
func (s *Store) SymbolsByName(name string) ([]*model.SymbolDefinition, error) {
	return s.querySymbols("SELECT "+SymbolCols+" FROM symbols WHERE name = ? ORDER BY id", name)
}

// SymbolChildren returns the definitions enclosed by id.
func (s *Store) SymbolChildren(id string) ([]*model.SymbolDefinition, error) {
	return s.querySymbols("SELECT "+SymbolCols+" FROM symbols WHERE enclosing_symbol = ? ORDER BY id", id)
}

// SymbolsContaining returns the file's definitions whose span contains
// line, innermost first.
func (s *Store) SymbolsContaining(path string, line int) ([]*model.SymbolDefinition, error) {
	return s.querySymbols(
		`SELECT `+SymbolCols+` FROM symbols
		 WHERE file_id = (SELECT id FROM files WHERE path = ?) AND start_line <= ? AND end_line > ?
		 ORDER BY (end_line - start_line) ASC, start_line DESC, id`,
		path, line, line)
}

// Externals returns every external definition ordered by id.
func (s *Store) Externals() ([]*model.SymbolDefinition, error) {
	return s.querySymbols("SELECT " + SymbolCols + " FROM symbols WHERE is_external = 1 ORDER BY symbol_id")
}

// --- Reference operations ---

const refCols = `r.id, f.path, r.target_symbol, r.enclosing_symbol, r.role, r.line, r.col,
	r.receiver, r.method_name, r.assigned_to`

const refFrom = ` FROM references_ r JOIN files f ON f.id = r.file_id`

func scanReference(scanner interface{ Scan(...any) error }) (*Reference, error) {
	ref := &Reference{}
	var (
		target, receiver, method, assigned sql.NullString
		role                               string
	)
	err := scanner.Scan(&ref.ID, &ref.Location.FilePath, &target, &ref.EnclosingSymbol, &role,
		&ref.Location.Line, &ref.Location.Column, &receiver, &method, &assigned)
	if err != nil {
		return nil, err
	}
	ref.Role = model.ReferenceRole(role)
	ref.TargetSymbol = stringPtr(target)
	ref.Receiver = stringPtr(receiver)
	ref.MethodName = stringPtr(method)
	ref.AssignedTo = stringPtr(assigned)
	return ref, nil
}

func (s *Store) queryReferences(where string, args ...any) ([]*Reference, error) {
	rows, err := s.db.Query("SELECT "+refCols+refFrom+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query references: %w", err)
	}
	defer rows.Close()
	var refs []*Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan reference: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ReferencesTo returns every reference whose target is id.
func (s *Store) ReferencesTo(id string) ([]*Reference, error) {
	return s.queryReferences("WHERE r.target_symbol = ? ORDER BY r.id", id)
}

// ReferencesFrom returns every reference made inside id.
func (s *Store) ReferencesFrom(id string) ([]*Reference, error) {
	return s.queryReferences("WHERE r.enclosing_symbol = ? ORDER BY r.id", id)
}

// ReferencesByFile returns a file's references in insertion order.
func (s *Store) ReferencesByFile(path string) ([]*Reference, error) {
	return s.queryReferences("WHERE f.path = ? ORDER BY r.id", path)
}

// ReferencesByRole returns references with any of the given roles.
func (s *Store) ReferencesByRole(roles ...model.ReferenceRole) ([]*Reference, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return s.queryReferences("WHERE r.role IN ("+placeholderList(len(names))+") ORDER BY r.id", stringsToArgs(names)...)
}

// Unresolved returns references without a target.
func (s *Store) Unresolved() ([]*Reference, error) {
	return s.queryReferences("WHERE r.target_symbol IS NULL ORDER BY r.id")
}

// CallEdges aggregates resolved Call references into caller/callee edges.
func (s *Store) CallEdges() ([]Edge, error) {
	rows, err := s.db.Query(
		`SELECT enclosing_symbol, target_symbol, COUNT(*) FROM references_
		 WHERE role = ? AND target_symbol IS NOT NULL
		 GROUP BY enclosing_symbol, target_symbol
		 ORDER BY enclosing_symbol, target_symbol`, string(model.RoleCall))
	if err != nil {
		return nil, fmt.Errorf("store: call edges: %w", err)
	}
	defer rows.Close()
	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.Caller, &e.Callee, &e.Count); err != nil {
			return nil, fmt.Errorf("store: scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Load rebuilds the project record of the latest run.
func (s *Store) Load(ctx context.Context) (*model.SemanticData, error) {
	data := &model.SemanticData{}
	run, err := s.LatestRun()
	if err != nil {
		return nil, err
	}
	if run != nil {
		data.ProjectRoot = run.ProjectRoot
	}
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc := model.NewDocument(f.Path)
		doc.Language = f.Language
		defs, err := s.SymbolsByFile(f.Path)
		if err != nil {
			return nil, err
		}
		for _, d := range defs {
			doc.Definitions = append(doc.Definitions, *d)
		}
		refs, err := s.ReferencesByFile(f.Path)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			doc.References = append(doc.References, r.SymbolReference)
		}
		data.Documents = append(data.Documents, doc)
	}
	externals, err := s.Externals()
	if err != nil {
		return nil, err
	}
	for _, d := range externals {
		data.ExternalSymbols = append(data.ExternalSymbols, *d)
	}
	data.Normalize()
	return data, nil
}
