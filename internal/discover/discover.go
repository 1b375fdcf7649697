// Package discover finds the Python source files of a project.
package discover

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// Options filters the discovered file set.
type Options struct {
	// Include keeps only paths matching at least one glob. Empty keeps all.
	Include []string
	// Exclude drops paths matching any glob.
	Exclude []string
	// IncludeTests keeps test directories and test_*.py / *_test.py files.
	IncludeTests bool
	// NoGit forces the filesystem walk even inside a git checkout.
	NoGit bool
}

// skipDirs are never descended into. Virtualenvs hold installed packages,
// not project code.
var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	".git":          {},
	".hg":           {},
	".svn":          {},
	"venv":          {},
	".venv":         {},
	"virtualenv":    {},
	".virtualenv":   {},
	"env":           {},
	".tox":          {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
	".semindex":     {},
}

var testDirs = map[string]struct{}{
	"test":      {},
	"tests":     {},
	"testing":   {},
	"__tests__": {},
	"spec":      {},
}

// compiledPattern holds both the pattern string and compiled glob. Patterns
// are compiled without a separator so "*" also matches "/", as fnmatch does:
// "src/*" covers the whole src tree.
type compiledPattern struct {
	pattern string
	glob    glob.Glob
	root    glob.Glob // pattern without its leading **/, nil otherwise
}

func compile(patterns []string) ([]compiledPattern, error) {
	var out []compiledPattern
	for _, p := range patterns {
		p = strings.TrimSpace(filepath.ToSlash(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("discover: bad pattern %q: %w", p, err)
		}
		cp := compiledPattern{pattern: p, glob: g}
		if rest, ok := strings.CutPrefix(p, "**/"); ok {
			if rg, err := glob.Compile(rest); err == nil {
				cp.root = rg
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

// matchesAny reports whether path matches a pattern. "**/x" also matches
// "x" at the project root.
func matchesAny(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
		if cp.root != nil && !strings.Contains(path, "/") && cp.root.Match(path) {
			return true
		}
	}
	return false
}

// IsTestPath reports whether a slash-separated relative path is test code:
// under a test directory, or named test_*.py or *_test.py.
func IsTestPath(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, part := range parts[:len(parts)-1] {
		if _, ok := testDirs[strings.ToLower(part)]; ok {
			return true
		}
	}
	name := parts[len(parts)-1]
	return (strings.HasPrefix(name, "test_") && strings.HasSuffix(name, ".py")) || strings.HasSuffix(name, "_test.py")
}

func skippedPath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if _, ok := skipDirs[part]; ok {
			return true
		}
	}
	return false
}

// Files returns the sorted, slash-separated relative paths of the .py files
// under root. Inside a git checkout the candidate set is git's tracked and
// untracked-but-not-ignored files; elsewhere the walk honors .gitignore.
func Files(ctx context.Context, root string, opts Options) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discover: %s is not a directory", root)
	}
	include, err := compile(opts.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compile(opts.Exclude)
	if err != nil {
		return nil, err
	}

	var gitFiles map[string]struct{}
	if !opts.NoGit {
		gitFiles = gitLsFiles(ctx, root)
	}
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || filepath.Ext(name) != ".py" {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if keep(rel, opts, include, exclude) {
			results = append(results, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover: walk %s: %w", root, err)
	}

	sort.Strings(results)
	return results, nil
}

func keep(rel string, opts Options, include, exclude []compiledPattern) bool {
	if skippedPath(rel) {
		return false
	}
	if !opts.IncludeTests && IsTestPath(rel) {
		return false
	}
	if len(include) > 0 && !matchesAny(rel, include) {
		return false
	}
	return !matchesAny(rel, exclude)
}

func gitLsFiles(ctx context.Context, root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// --cached: tracked files, --others: untracked files,
	// --exclude-standard: respect .gitignore, .git/info/exclude, global excludes.
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
