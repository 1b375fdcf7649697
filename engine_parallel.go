package semindex

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/semindex/internal/extract"
	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/pyast"
	"github.com/jward/semindex/internal/resolve"
	"github.com/jward/semindex/internal/store"
)

// forEach runs fn for every index in [0, n) on the Engine's worker pool and
// reports progress under pass. Results are written by index, so input order
// is preserved without further synchronization.
func (e *Engine) forEach(ctx context.Context, pass string, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.numWorkers(n))
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			if e.progress != nil {
				mu.Lock()
				done++
				e.progress(pass, done, n)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// definitionPass parses every file and collects its definitions.
func (e *Engine) definitionPass(ctx context.Context, files []SourceFile) []parsedFile {
	out := make([]parsedFile, len(files))
	e.forEach(ctx, PassDefinitions, len(files), func(i int) {
		out[i] = e.parseFile(ctx, files[i])
	})
	// Files skipped by cancellation still get a well-formed entry.
	for i := range out {
		if out[i].stat.Path == "" {
			out[i] = parsedFile{
				doc:    model.NewDocument(files[i].Path),
				stat:   FileStat{Path: files[i].Path, Status: store.StatusParseFailed},
				failed: true,
			}
		}
	}
	return out
}

func (e *Engine) parseFile(ctx context.Context, sf SourceFile) parsedFile {
	p := parsedFile{
		stat: FileStat{
			Path:   sf.Path,
			Hash:   store.ContentHash(sf.Content),
			Status: store.StatusIndexed,
		},
	}
	f, err := pyast.Parse(ctx, sf.Path, sf.Content)
	if f != nil {
		p.stat.Lines = f.Lines()
	}
	if err != nil {
		if errors.Is(err, pyast.ErrSyntax) {
			e.logger.Warn("pass1.file.syntax", "path", sf.Path)
		} else {
			e.logger.Warn("pass1.file.err", "path", sf.Path, "err", err)
		}
		p.file = f
		p.doc = model.NewDocument(sf.Path)
		p.stat.Status = store.StatusParseFailed
		p.failed = true
		return p
	}
	p.file = f
	p.doc = extract.Definitions(f)
	return p
}

// referencePass fills in the references of every parsed file. Files that
// failed to parse keep their empty document.
func (e *Engine) referencePass(ctx context.Context, r *resolve.Resolver, files []parsedFile) {
	e.forEach(ctx, PassReferences, len(files), func(i int) {
		p := &files[i]
		if p.failed || p.file == nil {
			return
		}
		p.doc.References = r.References(ctx, p.file)
		e.logger.Debug("pass2.file.done", "path", p.stat.Path, "references", len(p.doc.References))
	})
}
