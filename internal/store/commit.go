package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jward/semindex/internal/model"
)

// Save replaces the stored index with data within a single transaction.
// The runs table keeps history; files, symbols and references only ever
// hold the latest run.
//
// Insert order respects FK dependencies:
//  1. Files (one per entry in files, plus any document missing from it)
//  2. Project symbols (depend on file_id)
//  3. External symbols (no file)
//  4. References (depend on file_id)
//
// Duplicate symbol ids keep the first row.
func (s *Store) Save(ctx context.Context, run *Run, files []File, data *model.SemanticData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save: begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM references_",
		"DELETE FROM symbols",
		"DELETE FROM files",
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("store: save: clear: %w", err)
		}
	}

	st := data.Stats()
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	run.Files = st.Documents
	run.Definitions = st.Definitions
	run.References = st.References
	run.Unresolved = st.Unresolved
	run.Externals = st.Externals
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, project_root, started_at, finished_at, files, definitions, refs, unresolved, externals)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectRoot, run.StartedAt, run.FinishedAt,
		run.Files, run.Definitions, run.References, run.Unresolved, run.Externals,
	); err != nil {
		return fmt.Errorf("store: save: run %s: %w", run.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES ('latest_run', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		run.ID,
	); err != nil {
		return fmt.Errorf("store: save: latest run: %w", err)
	}

	// 1. Files
	fileIDs := make(map[string]int64, len(data.Documents))
	insertFile := func(f File) error {
		if _, ok := fileIDs[f.Path]; ok {
			return nil
		}
		if f.Language == "" {
			f.Language = model.LanguagePython
		}
		if f.Status == "" {
			f.Status = StatusIndexed
		}
		if f.LastIndexed.IsZero() {
			f.LastIndexed = run.FinishedAt
		}
		id, err := insertFileTx(ctx, tx, &f)
		if err != nil {
			return fmt.Errorf("store: save: file %q: %w", f.Path, err)
		}
		fileIDs[f.Path] = id
		return nil
	}
	for _, f := range files {
		if err := insertFile(f); err != nil {
			return err
		}
	}
	for _, doc := range data.Documents {
		if err := insertFile(File{Path: doc.RelativePath, Language: doc.Language}); err != nil {
			return err
		}
	}

	symStmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO symbols (symbol_id, file_id, file_path, name, display_name, kind, line, col,
			start_line, start_col, end_line, end_col, enclosing_symbol, is_external,
			documentation, details, signature_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: save: prepare symbols: %w", err)
	}
	defer symStmt.Close()

	// 2. Project symbols
	for _, doc := range data.Documents {
		fileID := fileIDs[doc.RelativePath]
		for i := range doc.Definitions {
			if err := insertSymbolStmt(ctx, symStmt, &doc.Definitions[i], sql.NullInt64{Int64: fileID, Valid: true}); err != nil {
				return err
			}
		}
	}

	// 3. External symbols
	for i := range data.ExternalSymbols {
		if err := insertSymbolStmt(ctx, symStmt, &data.ExternalSymbols[i], sql.NullInt64{}); err != nil {
			return err
		}
	}

	// 4. References
	refStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO references_ (file_id, target_symbol, enclosing_symbol, role, line, col,
			receiver, method_name, assigned_to)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: save: prepare references: %w", err)
	}
	defer refStmt.Close()
	for _, doc := range data.Documents {
		fileID := fileIDs[doc.RelativePath]
		for _, ref := range doc.References {
			if _, err := refStmt.ExecContext(ctx,
				fileID, nullString(ref.TargetSymbol), ref.EnclosingSymbol, string(ref.Role),
				ref.Location.Line, ref.Location.Column,
				nullString(ref.Receiver), nullString(ref.MethodName), nullString(ref.AssignedTo),
			); err != nil {
				return fmt.Errorf("store: save: reference in %s:%d: %w", doc.RelativePath, ref.Location.Line, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: save: commit: %w", err)
	}
	return nil
}

func insertFileTx(ctx context.Context, tx *sql.Tx, f *File) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO files (path, language, hash, line_count, status, last_indexed) VALUES (?, ?, ?, ?, ?, ?)",
		f.Path, f.Language, f.Hash, f.LineCount, f.Status, f.LastIndexed,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

func insertSymbolStmt(ctx context.Context, stmt *sql.Stmt, def *model.SymbolDefinition, fileID sql.NullInt64) error {
	details, err := json.Marshal(def.Details)
	if err != nil {
		return fmt.Errorf("store: save: symbol %q details: %w", def.SymbolID, err)
	}
	_, err = stmt.ExecContext(ctx,
		def.SymbolID, fileID, def.Location.FilePath, def.Name, def.DisplayName, string(def.Kind),
		def.Location.Line, def.Location.Column,
		def.Span.StartLine, def.Span.StartColumn, def.Span.EndLine, def.Span.EndColumn,
		nullString(def.EnclosingSymbol), def.IsExternal,
		marshalDocumentation(def.Documentation), string(details), SignatureHash(def),
	)
	if err != nil {
		return fmt.Errorf("store: save: symbol %q: %w", def.SymbolID, err)
	}
	return nil
}
