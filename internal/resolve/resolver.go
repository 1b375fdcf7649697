package resolve

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/oracle"
)

// Resolver binds use sites to symbol ids. One Resolver serves every file of
// a run and is safe for concurrent use when its oracle is.
type Resolver struct {
	index      *Index
	oracle     oracle.Oracle
	recorder   *Recorder
	strategies []Strategy
	logger     *slog.Logger

	queries  atomic.Int64
	failures atomic.Int64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for oracle failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithStrategies replaces the default strategy chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(r *Resolver) { r.strategies = strategies }
}

// New returns a Resolver over a completed definition index.
func New(index *Index, o oracle.Oracle, rec *Recorder, opts ...Option) *Resolver {
	r := &Resolver{
		index:    index,
		oracle:   o,
		recorder: rec,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.strategies == nil {
		r.strategies = DefaultStrategies(index, rec, o)
	}
	return r
}

// Resolve queries the oracle for site and runs the strategy chain. An
// oracle error counts as zero candidates.
func (r *Resolver) Resolve(ctx context.Context, site *Site) Resolution {
	var res Resolution
	if site.Attribute && site.Role == model.RoleCall {
		res.MethodName = site.Name
	}

	r.queries.Add(1)
	decls, err := r.oracle.Resolve(ctx, site.File, site.Line, site.Column)
	if err != nil {
		r.failures.Add(1)
		r.logger.Debug("pass2.oracle.err", "path", site.File, "line", site.Line, "column", site.Column, "err", err)
		decls = nil
	}
	site.Candidates = decls

	for _, s := range r.strategies {
		if !s.Apply(ctx, site, &res) {
			continue
		}
		if res.Target != "" {
			res.Strategy = s.Name()
		}
		break
	}
	return res
}

// Queries and Failures count oracle calls and failed oracle calls.
func (r *Resolver) Queries() int64  { return r.queries.Load() }
func (r *Resolver) Failures() int64 { return r.failures.Load() }

// Recorder returns the external symbol recorder.
func (r *Resolver) Recorder() *Recorder { return r.recorder }
