package semindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"time"

	"github.com/google/uuid"

	"github.com/jward/semindex/internal/discover"
	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/oracle"
	"github.com/jward/semindex/internal/pyast"
	"github.com/jward/semindex/internal/resolve"
	"github.com/jward/semindex/internal/store"
)

// Pass names reported to a ProgressFunc.
const (
	PassDefinitions = "definitions"
	PassReferences  = "references"
)

// ProgressFunc observes per-file progress of a pass. Calls are serialized.
type ProgressFunc func(pass string, done, total int)

// Engine drives the two indexing passes over a project.
type Engine struct {
	oracle        oracle.Oracle
	oracleArgs    []string
	oracleTimeout time.Duration
	cacheSize     int

	useParallel bool
	workers     int

	logger   *slog.Logger
	progress ProgressFunc
	store    *store.Store
}

// Option configures an Engine.
type Option func(*Engine)

// WithOracle resolves references through o instead of the built-in static
// oracle. The Engine never closes o.
func WithOracle(o Oracle) Option {
	return func(e *Engine) {
		e.oracle = o
	}
}

// WithOracleCommand starts args as a JSON-lines oracle subprocess for each
// run. A zero timeout uses the oracle package default. If the process cannot
// be started the run falls back to the static oracle.
func WithOracleCommand(args []string, timeout time.Duration) Option {
	return func(e *Engine) {
		e.oracleArgs = args
		e.oracleTimeout = timeout
	}
}

// WithOracleCache memoizes oracle answers by position in a cache of size
// entries. Zero disables the cache.
func WithOracleCache(size int) Option {
	return func(e *Engine) {
		e.cacheSize = size
	}
}

// WithParallel controls whether files within a pass are processed
// concurrently. Defaults to true.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithWorkers bounds the number of files processed at once. Zero or less
// uses the number of CPUs.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithLogger sets the Engine's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProgress reports per-file progress of each pass to fn.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithStore persists every run to s and enables Query. The caller keeps
// ownership of s.
func WithStore(s *Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		useParallel: true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenStore opens (creating and migrating if needed) the SQLite index at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("semindex: create %s: %w", dir, err)
		}
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("semindex: open store: %w", err)
	}
	return s, nil
}

// Store returns the configured Store, or nil.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a QueryBuilder over the configured Store, or nil when the
// Engine has none.
func (e *Engine) Query() *QueryBuilder {
	if e.store == nil {
		return nil
	}
	return NewQueryBuilder(e.store)
}

func (e *Engine) numWorkers(n int) int {
	if !e.useParallel {
		return 1
	}
	w := e.workers
	if w <= 0 {
		w = goruntime.NumCPU()
	}
	return max(1, min(w, n))
}

// SourceFile is one input file. Path is project-relative.
type SourceFile struct {
	Path    string
	Content []byte
}

// FileStat describes how one input file was indexed.
type FileStat struct {
	Path   string `json:"path"`
	Hash   string `json:"hash"`
	Lines  int    `json:"lines"`
	Status string `json:"status"`
}

// Result is the outcome of one run.
type Result struct {
	RunID string
	Data  *SemanticData
	Files []FileStat

	DefinitionsElapsed time.Duration
	ReferencesElapsed  time.Duration

	OracleQueries  int64
	OracleFailures int64
}

// parsedFile is one file carried from the definition pass to the reference pass.
type parsedFile struct {
	file   *pyast.File
	doc    model.DocumentSemantics
	stat   FileStat
	failed bool
}

// IndexDirectory discovers the Python files under root, reads them and runs
// both passes. Unreadable files are skipped with a warning. Failing to
// enumerate the file set is the only fatal error.
func (e *Engine) IndexDirectory(ctx context.Context, root string, opts discover.Options) (*Result, error) {
	paths, err := discover.Files(ctx, root, opts)
	if err != nil {
		return nil, fmt.Errorf("semindex: %w", err)
	}
	e.logger.Info("discover.done", "root", root, "files", len(paths))

	files := make([]SourceFile, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(p)))
		if err != nil {
			e.logger.Warn("read.file.err", "path", p, "err", err)
			continue
		}
		files = append(files, SourceFile{Path: p, Content: content})
	}
	return e.Run(ctx, root, files)
}

// Run indexes files, in order, as the project rooted at root.
//
// The definition pass completes for every file before the reference pass
// starts. A file that fails to parse yields an empty document. When a Store
// is configured the run replaces its contents; a persistence error is
// returned together with the complete Result.
func (e *Engine) Run(ctx context.Context, root string, files []SourceFile) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("semindex: resolve root: %w", err)
	}
	started := time.Now()
	res := &Result{RunID: uuid.NewString()}
	e.logger.Info("run.start", "run", res.RunID, "root", absRoot, "files", len(files))

	// Pass 1: definitions.
	parsed := e.definitionPass(ctx, files)
	defer func() {
		for _, p := range parsed {
			if p.file != nil {
				p.file.Close()
			}
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.DefinitionsElapsed = time.Since(started)

	docs := make([]model.DocumentSemantics, len(parsed))
	for i, p := range parsed {
		docs[i] = p.doc
	}
	index := resolve.NewIndex(docs)
	e.logger.Info("pass1.done", "files", len(files), "definitions", index.Len(), "elapsed", res.DefinitionsElapsed)

	// Pass 2: references, sharing one oracle across the run.
	pass2Start := time.Now()
	o, closeOracle := e.buildOracle(ctx, absRoot, files)
	defer closeOracle()

	rec := resolve.NewRecorder()
	resolver := resolve.New(index, o, rec, resolve.WithLogger(e.logger))
	e.referencePass(ctx, resolver, parsed)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.ReferencesElapsed = time.Since(pass2Start)
	res.OracleQueries = resolver.Queries()
	res.OracleFailures = resolver.Failures()

	data := &model.SemanticData{
		ProjectRoot:     absRoot,
		Documents:       make([]model.DocumentSemantics, len(parsed)),
		ExternalSymbols: rec.Definitions(),
	}
	res.Files = make([]FileStat, len(parsed))
	for i, p := range parsed {
		data.Documents[i] = p.doc
		res.Files[i] = p.stat
	}
	data.Normalize()
	res.Data = data

	st := data.Stats()
	e.logger.Info("pass2.done",
		"references", st.References,
		"unresolved", st.Unresolved,
		"externals", st.Externals,
		"oracle.queries", res.OracleQueries,
		"oracle.failures", res.OracleFailures,
		"elapsed", res.ReferencesElapsed,
	)

	if e.store != nil {
		if err := e.persist(ctx, absRoot, started, res); err != nil {
			return res, err
		}
	}
	e.logger.Info("run.done", "run", res.RunID, "elapsed", time.Since(started))
	return res, nil
}

// buildOracle returns the run's oracle and a func releasing it.
func (e *Engine) buildOracle(ctx context.Context, root string, files []SourceFile) (oracle.Oracle, func()) {
	var (
		o     oracle.Oracle
		owned bool
	)
	switch {
	case e.oracle != nil:
		// Hide the caller's Close from the cache wrapper.
		o = oracle.Func(e.oracle.Resolve)
	case len(e.oracleArgs) > 0:
		cmd, err := oracle.NewCommand(oracle.CommandOptions{
			Root:    root,
			Args:    e.oracleArgs,
			Timeout: e.oracleTimeout,
			Logger:  e.logger,
		})
		if err != nil {
			e.logger.Warn("oracle.command.err", "cmd", e.oracleArgs[0], "err", err)
		} else {
			o, owned = cmd, true
		}
	}
	if o == nil {
		sources := make([]oracle.Source, len(files))
		for i, f := range files {
			sources[i] = oracle.Source{Path: f.Path, Content: f.Content}
		}
		static, err := oracle.NewStatic(ctx, root, sources)
		if err != nil {
			e.logger.Warn("oracle.static.err", "err", err)
			o = oracle.Func(func(context.Context, string, int, int) ([]oracle.Declaration, error) {
				return nil, nil
			})
		} else {
			o, owned = static, true
		}
	}

	if e.cacheSize > 0 {
		cached, err := oracle.NewCached(o, e.cacheSize)
		if err != nil {
			e.logger.Warn("oracle.cache.err", "err", err)
		} else {
			o, owned = cached, true
		}
	}

	return o, func() {
		if c, ok := o.(*oracle.Cached); ok {
			e.logger.Debug("oracle.cache", "hits", c.Hits(), "misses", c.Misses())
		}
		if owned {
			if err := oracle.Close(o); err != nil && !errors.Is(err, oracle.ErrOracleClosed) {
				e.logger.Warn("oracle.close.err", "err", err)
			}
		}
	}
}

func (e *Engine) persist(ctx context.Context, root string, started time.Time, res *Result) error {
	files := make([]store.File, len(res.Files))
	for i, f := range res.Files {
		files[i] = store.File{
			Path:      f.Path,
			Language:  model.LanguagePython,
			Hash:      f.Hash,
			LineCount: f.Lines,
			Status:    f.Status,
		}
	}
	run := &store.Run{ID: res.RunID, ProjectRoot: root, StartedAt: started}
	if err := e.store.Save(ctx, run, files, res.Data); err != nil {
		return fmt.Errorf("semindex: persist run %s: %w", res.RunID, err)
	}
	e.logger.Info("store.saved", "run", res.RunID, "files", run.Files, "definitions", run.Definitions)
	return nil
}
