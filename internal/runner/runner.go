// Package runner drives one export run: it resolves the source root, selects
// units, and loads, discovers and exports each of them in turn.
package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/example/modelexport/internal/discovery"
	"github.com/example/modelexport/internal/exporter"
	"github.com/example/modelexport/internal/loader"
	"github.com/example/modelexport/internal/model"
	"github.com/example/modelexport/internal/selector"
)

// ErrRootNotFound is returned when the source root does not exist.
var ErrRootNotFound = selector.ErrRootNotFound

// Config describes a run.
type Config struct {
	// Root is the source root. Units outside it are never processed.
	Root string
	// Files are the explicit units, ignored when All is set.
	Files []string
	// All scans every source file under Root.
	All bool
	// Output is the directory artifacts are written to.
	Output string
	Mode   discovery.Mode
	// SchemaVersion selects the dumper, see model.NewDumper.
	SchemaVersion string
	// Excludes replaces the default exclusion globs when non-nil.
	Excludes []string
	// LookupRoots are searched for imported packages after the source root
	// and the working directory.
	LookupRoots []string
	// Check compiles schema dumps before they are written.
	Check bool
}

// UnitResult is the outcome of one unit.
type UnitResult struct {
	Path     string
	Exported []string
	Err      error
}

// Result collects the unit outcomes of a run in processing order.
type Result struct {
	Units []UnitResult
}

// Failed returns the units that did not export cleanly.
func (r *Result) Failed() []UnitResult {
	var failed []UnitResult
	for _, u := range r.Units {
		if u.Err != nil {
			failed = append(failed, u)
		}
	}
	return failed
}

// ExitCode is 0 when every unit succeeded, including runs with no units.
func (r *Result) ExitCode() int {
	if r == nil || len(r.Failed()) > 0 {
		return 1
	}
	return 0
}

// Run executes cfg. Per-unit failures are logged and recorded in the result
// without stopping the run; only setup failures return an error, in which
// case nothing has been written.
func Run(cfg Config, logger *log.Logger) (*Result, error) {
	if logger == nil {
		logger = log.Default()
	}

	dumper, err := model.NewDumper(cfg.SchemaVersion)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", cfg.Root, err)
	}
	roots := []string{packageRoot(root)}
	if wd, err := os.Getwd(); err == nil {
		roots = append(roots, wd)
	}
	roots = append(roots, cfg.LookupRoots...)
	registry := loader.NewRegistry(loader.WithLookupRoots(roots...))

	// A full scan picks up exactly the units some loader can handle.
	selOpts := []selector.Option{selector.WithSuffixes(registry.Suffixes()...)}
	if cfg.Excludes != nil {
		selOpts = append(selOpts, selector.WithExcludes(cfg.Excludes...))
	}
	sel, err := selector.New(root, selOpts...)
	if err != nil {
		return nil, err
	}

	var expOpts []exporter.Option
	if cfg.Check {
		expOpts = append(expOpts, exporter.WithSchemaCheck())
	}
	exp := exporter.New(cfg.Output, cfg.Mode, dumper, logger, expOpts...)

	result := &Result{}
	for unit, err := range sel.Select(cfg.Files, cfg.All) {
		if err != nil {
			logger.Errorf("%s: Failed to export model (%v)", unit, err)
			result.Units = append(result.Units, UnitResult{Path: unit, Err: err})
			continue
		}
		logger.Debug("Selected unit", "path", unit)

		ur := exportUnit(unit, cfg.Mode, registry, exp, logger)
		if ur.Err != nil {
			logger.Errorf("%s: Failed to export model (%v)", unit, ur.Err)
		}
		result.Units = append(result.Units, ur)
	}
	return result, nil
}

func exportUnit(unit string, mode discovery.Mode, registry *loader.Registry, exp *exporter.Exporter, logger *log.Logger) UnitResult {
	ur := UnitResult{Path: unit}
	exp.Begin(unit)

	ns, err := registry.Load(unit)
	if err != nil {
		ur.Err = err
		return ur
	}

	members, err := discovery.Discover(ns, mode)
	if err != nil {
		ur.Err = err
		return ur
	}
	if skipped := len(ns.Members) - len(members); skipped > 0 {
		logger.Debug("Skipped non-model members", "unit", unit, "count", skipped)
	}

	var errs []error
	for _, m := range members {
		path, err := exp.Export(m)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
			continue
		}
		ur.Exported = append(ur.Exported, path)
	}
	if len(errs) > 0 {
		ur.Err = errors.Join(errs...)
		return ur
	}
	logger.Info("Exported all models!")
	return ur
}

// packageRoot is the directory imports of units under root resolve from.
func packageRoot(root string) string {
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return filepath.Dir(root)
	}
	return root
}
