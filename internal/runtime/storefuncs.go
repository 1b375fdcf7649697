package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/store"
)

// Index host functions hand scripts plain maps in the wire shape of the
// exported index (symbol_id, kind, location, details, ...). Risor cannot
// walk Go structs, so values go through JSON and toObject.

func makeSymbolFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("symbol", func(ctx context.Context, args ...object.Object) object.Object {
		id, errObj := stringArg("symbol", args)
		if errObj != nil {
			return errObj
		}
		def, err := s.Symbol(id)
		if err != nil {
			return object.Errorf("symbol: %v", err)
		}
		if def == nil {
			return object.Nil
		}
		return wireObject(def)
	})
}

func makeSymbolsInFileFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("symbols_in_file", func(ctx context.Context, args ...object.Object) object.Object {
		path, errObj := stringArg("symbols_in_file", args)
		if errObj != nil {
			return errObj
		}
		defs, err := s.SymbolsByFile(path)
		if err != nil {
			return object.Errorf("symbols_in_file: %v", err)
		}
		return wireObject(defs)
	})
}

func makeSymbolsByNameFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("symbols_by_name", func(ctx context.Context, args ...object.Object) object.Object {
		name, errObj := stringArg("symbols_by_name", args)
		if errObj != nil {
			return errObj
		}
		defs, err := s.SymbolsByName(name)
		if err != nil {
			return object.Errorf("symbols_by_name: %v", err)
		}
		return wireObject(defs)
	})
}

func makeReferencesToFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("references_to", func(ctx context.Context, args ...object.Object) object.Object {
		id, errObj := stringArg("references_to", args)
		if errObj != nil {
			return errObj
		}
		refs, err := s.ReferencesTo(id)
		if err != nil {
			return object.Errorf("references_to: %v", err)
		}
		return referencesObject(refs)
	})
}

func makeReferencesFromFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("references_from", func(ctx context.Context, args ...object.Object) object.Object {
		id, errObj := stringArg("references_from", args)
		if errObj != nil {
			return errObj
		}
		refs, err := s.ReferencesFrom(id)
		if err != nil {
			return object.Errorf("references_from: %v", err)
		}
		return referencesObject(refs)
	})
}

// makeCallersFn creates "callers".
//
// callers(symbol_id) → [{symbol, count}]
func makeCallersFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("callers", func(ctx context.Context, args ...object.Object) object.Object {
		id, errObj := stringArg("callers", args)
		if errObj != nil {
			return errObj
		}
		edges, err := s.CallEdges()
		if err != nil {
			return object.Errorf("callers: %v", err)
		}
		results := []object.Object{}
		for _, e := range edges {
			if e.Callee == id {
				results = append(results, edgeObject(e.Caller, e.Count))
			}
		}
		return object.NewList(results)
	})
}

// makeCalleesFn creates "callees".
//
// callees(symbol_id) → [{symbol, count}]
func makeCalleesFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("callees", func(ctx context.Context, args ...object.Object) object.Object {
		id, errObj := stringArg("callees", args)
		if errObj != nil {
			return errObj
		}
		edges, err := s.CallEdges()
		if err != nil {
			return object.Errorf("callees: %v", err)
		}
		results := []object.Object{}
		for _, e := range edges {
			if e.Caller == id {
				results = append(results, edgeObject(e.Callee, e.Count))
			}
		}
		return object.NewList(results)
	})
}

func makeExternalsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("externals", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("externals", 0, len(args))
		}
		defs, err := s.Externals()
		if err != nil {
			return object.Errorf("externals: %v", err)
		}
		return wireObject(defs)
	})
}

func makeUnresolvedFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("unresolved", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("unresolved", 0, len(args))
		}
		refs, err := s.Unresolved()
		if err != nil {
			return object.Errorf("unresolved: %v", err)
		}
		return referencesObject(refs)
	})
}

// makeFilesFn creates "files".
//
// files() → [{path, language, hash, line_count, status}]
func makeFilesFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("files", 0, len(args))
		}
		files, err := s.Files()
		if err != nil {
			return object.Errorf("files: %v", err)
		}
		results := make([]object.Object, 0, len(files))
		for _, f := range files {
			results = append(results, object.NewMap(map[string]object.Object{
				"path":       object.NewString(f.Path),
				"language":   object.NewString(f.Language),
				"hash":       object.NewString(f.Hash),
				"line_count": object.NewInt(int64(f.LineCount)),
				"status":     object.NewString(f.Status),
			}))
		}
		return object.NewList(results)
	})
}

// makeSummaryFn creates "summary", the counters of the latest run.
// Returns nil when nothing has been indexed.
func makeSummaryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("summary", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("summary", 0, len(args))
		}
		run, err := s.LatestRun()
		if err != nil {
			return object.Errorf("summary: %v", err)
		}
		if run == nil {
			return object.Nil
		}
		return object.NewMap(map[string]object.Object{
			"run_id":       object.NewString(run.ID),
			"project_root": object.NewString(run.ProjectRoot),
			"files":        object.NewInt(int64(run.Files)),
			"definitions":  object.NewInt(int64(run.Definitions)),
			"references":   object.NewInt(int64(run.References)),
			"unresolved":   object.NewInt(int64(run.Unresolved)),
			"externals":    object.NewInt(int64(run.Externals)),
		})
	})
}

// makeDBQueryFn creates "db_query" for ad-hoc read-only SQL.
//
// db_query(sql, args...) → [{column: value}]
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected at least 1 argument (sql), got %d", len(args))
		}
		sqlStr, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}

		// Only allow SELECT statements.
		trimmed := strings.TrimSpace(strings.ToUpper(sqlStr))
		if !strings.HasPrefix(trimmed, "SELECT") {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}

		var queryArgs []any
		for _, arg := range args[1:] {
			switch v := arg.(type) {
			case *object.Int:
				queryArgs = append(queryArgs, v.Value())
			case *object.Float:
				queryArgs = append(queryArgs, v.Value())
			case *object.String:
				queryArgs = append(queryArgs, v.Value())
			case *object.Bool:
				queryArgs = append(queryArgs, v.Value())
			case *object.NilType:
				queryArgs = append(queryArgs, nil)
			default:
				queryArgs = append(queryArgs, fmt.Sprintf("%v", arg))
			}
		}

		rows, queryErr := s.DB().QueryContext(ctx, sqlStr, queryArgs...)
		if queryErr != nil {
			return object.Errorf("db_query: %v", queryErr)
		}
		defer rows.Close()

		cols, colErr := rows.Columns()
		if colErr != nil {
			return object.Errorf("db_query: columns: %v", colErr)
		}

		results := []object.Object{}
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return object.Errorf("db_query: scan: %v", err)
			}
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				row[col] = sqlValueToObject(values[i])
			}
			results = append(results, object.NewMap(row))
		}
		if err := rows.Err(); err != nil {
			return object.Errorf("db_query: rows: %v", err)
		}
		return object.NewList(results)
	})
}

func stringArg(name string, args []object.Object) (string, object.Object) {
	if len(args) != 1 {
		return "", object.NewArgsError(name, 1, len(args))
	}
	s, err := toString(args[0])
	if err != nil {
		return "", object.Errorf("%s: %v", name, err)
	}
	return s, nil
}

func toString(obj object.Object) (string, error) {
	s, ok := obj.(*object.String)
	if !ok {
		return "", fmt.Errorf("expected string, got %s", obj.Type())
	}
	return s.Value(), nil
}

func edgeObject(symbol string, count int) object.Object {
	return object.NewMap(map[string]object.Object{
		"symbol": object.NewString(symbol),
		"count":  object.NewInt(int64(count)),
	})
}

func referencesObject(refs []*store.Reference) object.Object {
	out := make([]model.SymbolReference, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.SymbolReference)
	}
	return wireObject(out)
}

// wireObject converts a model value to Risor objects through its JSON form.
func wireObject(v any) object.Object {
	data, err := json.Marshal(v)
	if err != nil {
		return object.Errorf("runtime: encode: %v", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return object.Errorf("runtime: decode: %v", err)
	}
	return toObject(generic)
}

// toObject converts decoded JSON values to Risor objects. Whole numbers
// become ints so scripts can compare line numbers directly.
func toObject(v any) object.Object {
	switch val := v.(type) {
	case nil:
		return object.Nil
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case float64:
		if val == float64(int64(val)) {
			return object.NewInt(int64(val))
		}
		return object.NewFloat(val)
	case []any:
		items := make([]object.Object, 0, len(val))
		for _, item := range val {
			items = append(items, toObject(item))
		}
		return object.NewList(items)
	case map[string]any:
		m := make(map[string]object.Object, len(val))
		for k, item := range val {
			m[k] = toObject(item)
		}
		return object.NewMap(m)
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}

// sqlValueToObject converts a database value to a Risor object.
func sqlValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	switch val := v.(type) {
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case []byte:
		return object.NewString(string(val))
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}
