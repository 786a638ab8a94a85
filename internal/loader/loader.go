// Package loader turns source units into namespaces of named members that
// can be queried for model definitions and model instances.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

var (
	// ErrUnitNotFound is returned when a unit path does not exist.
	ErrUnitNotFound = errors.New("no such file or directory")
	// ErrUnsupportedUnit is returned for units no loader is registered for.
	ErrUnsupportedUnit = errors.New("unsupported source unit")
	// ErrMissingDependency is returned when an imported package a unit
	// needs cannot be found in any lookup root.
	ErrMissingDependency = errors.New("missing dependency")
)

// LoadError wraps any failure raised while loading a unit.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Member is a named binding of a loaded unit. Object is a
// model.Definition, a model.Instance or an Opaque value.
type Member struct {
	Name   string
	Object any
}

// Opaque stands for bindings that are neither model definitions nor model
// instances.
type Opaque struct {
	Kind string
}

// Namespace holds the members of one unit in declaration order.
type Namespace struct {
	Unit    string
	Package string
	Members []Member
}

// Loader loads a unit. Every call reads and evaluates the unit from scratch.
type Loader interface {
	Load(path string) (*Namespace, error)
}

// Registry dispatches units to loaders by file suffix.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry creates a registry with the Go and CUE loaders registered.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	r.Register(".go", NewGoLoader(opts...))
	r.Register(".cue", NewCUELoader())
	return r
}

// Register binds a loader to a file suffix, replacing any previous one.
func (r *Registry) Register(suffix string, l Loader) {
	r.loaders[suffix] = l
}

// Suffixes returns the registered suffixes in sorted order.
func (r *Registry) Suffixes() []string {
	suffixes := make([]string, 0, len(r.loaders))
	for s := range r.loaders {
		suffixes = append(suffixes, s)
	}
	sort.Strings(suffixes)
	return suffixes
}

// Load checks that path exists and hands it to the loader for its suffix.
func (r *Registry) Load(path string) (*Namespace, error) {
	if err := statUnit(path); err != nil {
		return nil, err
	}
	ext := filepath.Ext(path)
	l, ok := r.loaders[ext]
	if !ok {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("%w: %q", ErrUnsupportedUnit, ext)}
	}
	return l.Load(path)
}

func statUnit(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: '%s'", ErrUnitNotFound, path)
		}
		return &LoadError{Path: path, Err: err}
	}
	if info.IsDir() {
		return &LoadError{Path: path, Err: errors.New("is a directory")}
	}
	return nil
}

// Option configures the Go loader.
type Option func(*GoLoader)

// WithLookupRoots adds directories searched when resolving imported packages.
func WithLookupRoots(roots ...string) Option {
	return func(l *GoLoader) {
		for _, root := range roots {
			if root == "" {
				continue
			}
			if abs, err := filepath.Abs(root); err == nil {
				root = abs
			}
			l.lookupRoots = append(l.lookupRoots, root)
		}
	}
}
