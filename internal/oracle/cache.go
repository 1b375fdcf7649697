package oracle

import (
	"context"
	"fmt"

	"github.com/maypok86/otter"
)

// DefaultCacheSize is the number of positions Cached keeps.
const DefaultCacheSize = 100_000

type position struct {
	file         string
	line, column int
}

// Cached memoizes successful results of another Oracle by position. Errors
// are not cached.
type Cached struct {
	next  Oracle
	cache otter.Cache[position, []Declaration]
}

// NewCached wraps next with a bounded cache of size entries.
func NewCached(next Oracle, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := otter.MustBuilder[position, []Declaration](size).
		CollectStats().
		Build()
	if err != nil {
		return nil, fmt.Errorf("oracle: build cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Resolve(ctx context.Context, file string, line, column int) ([]Declaration, error) {
	key := position{file: NormalizePath(file), line: line, column: column}
	if decls, ok := c.cache.Get(key); ok {
		return decls, nil
	}
	decls, err := c.next.Resolve(ctx, file, line, column)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, decls)
	return decls, nil
}

// Hits and Misses report cache statistics.
func (c *Cached) Hits() int64   { return c.cache.Stats().Hits() }
func (c *Cached) Misses() int64 { return c.cache.Stats().Misses() }

// Close drops the cache and closes the wrapped oracle.
func (c *Cached) Close() error {
	c.cache.Close()
	return Close(c.next)
}
