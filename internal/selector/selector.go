// Package selector resolves the source units a run processes, either from
// an explicit changed-file list or from a full scan of the source root.
package selector

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ErrRootNotFound is returned when the source root does not exist.
var ErrRootNotFound = errors.New("no such file or directory")

// DefaultExcludes drops Go test files.
var DefaultExcludes = []string{"**_test.go"}

// Selector picks source units under a root.
type Selector struct {
	root     string
	suffixes []string
	patterns []string
	excludes []glob.Glob
}

// Option configures a Selector.
type Option func(*Selector)

// WithSuffixes sets the suffixes considered by a full scan. A selector
// without suffixes scans nothing.
func WithSuffixes(suffixes ...string) Option {
	return func(s *Selector) {
		s.suffixes = suffixes
	}
}

// WithExcludes replaces the exclusion globs. Patterns are matched against
// the slash-separated path relative to the root.
func WithExcludes(patterns ...string) Option {
	return func(s *Selector) {
		s.patterns = patterns
	}
}

// New resolves root to an absolute path and compiles the exclusion globs.
func New(root string, opts ...Option) (*Selector, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: '%s'", ErrRootNotFound, abs)
		}
		return nil, fmt.Errorf("failed to stat root %s: %w", abs, err)
	}

	s := &Selector{
		root:     abs,
		patterns: DefaultExcludes,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, pattern := range s.patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("failed to compile exclude pattern %q: %w", pattern, err)
		}
		s.excludes = append(s.excludes, g)
	}
	return s, nil
}

// Root returns the absolute source root.
func (s *Selector) Root() string { return s.root }

// Select yields the units to process. With all set, the root is walked in
// lexical order and every file with a known suffix is yielded. Otherwise the
// explicit files nested under the root are yielded as given, in order;
// files outside the root are dropped silently.
func (s *Selector) Select(files []string, all bool) iter.Seq2[string, error] {
	if all {
		return s.walk
	}
	return func(yield func(string, error) bool) {
		for _, file := range files {
			abs, err := filepath.Abs(file)
			if err != nil {
				if !yield(file, err) {
					return
				}
				continue
			}
			if !s.contains(abs) || s.excluded(abs) {
				continue
			}
			if !yield(abs, nil) {
				return
			}
		}
	}
}

func (s *Selector) walk(yield func(string, error) bool) {
	_ = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if !yield(path, err) {
				return fs.SkipAll
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" && path != s.root {
				return fs.SkipDir
			}
			return nil
		}
		if !isRegular(path, d) || !s.hasSuffix(path) || s.excluded(path) {
			return nil
		}
		if !yield(path, nil) {
			return fs.SkipAll
		}
		return nil
	})
}

func isRegular(path string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(path)
		return err == nil && info.Mode().IsRegular()
	}
	return d.Type().IsRegular()
}

func (s *Selector) contains(abs string) bool {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *Selector) hasSuffix(path string) bool {
	return slices.Contains(s.suffixes, filepath.Ext(path))
}

func (s *Selector) excluded(abs string) bool {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." {
		rel = filepath.Base(abs)
	}
	rel = filepath.ToSlash(rel)
	for _, g := range s.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
