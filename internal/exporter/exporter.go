// Package exporter serializes discovered models into per-member JSON files.
package exporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/example/modelexport/internal/discovery"
	"github.com/example/modelexport/internal/model"
)

// WriteError reports a failure to produce or write an artifact.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Option configures an Exporter.
type Option func(*Exporter)

// WithSchemaCheck compiles every schema dump before it is written. A dump
// that is not a valid JSON Schema document fails with a WriteError.
func WithSchemaCheck() Option {
	return func(e *Exporter) {
		e.check = true
	}
}

// Exporter writes one <dir>/<name>.json artifact per member. It is not safe
// for concurrent use.
type Exporter struct {
	dir    string
	mode   discovery.Mode
	dumper model.Dumper
	logger *log.Logger
	check  bool

	prepared bool
	advised  bool
	written  map[string]bool
}

// New creates an exporter writing into dir.
func New(dir string, mode discovery.Mode, dumper model.Dumper, logger *log.Logger, opts ...Option) *Exporter {
	if logger == nil {
		logger = log.Default()
	}
	e := &Exporter{
		dir:     dir,
		mode:    mode,
		dumper:  dumper,
		logger:  logger,
		written: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Begin announces the unit whose members are about to be exported. The
// first call warns when the output path carries a file suffix; the path is
// still used as a directory.
func (e *Exporter) Begin(unit string) {
	e.logger.Infof("Exporting %s model(s) to %s", unit, e.dir)
	if e.advised {
		return
	}
	e.advised = true
	if suffix := dirSuffix(e.dir); suffix != "" {
		e.logger.Warnf("Unexpected file suffix %s in output directory path %s", suffix, e.dir)
	}
}

// Export dumps m and writes it to <dir>/<name>.json, replacing any existing
// file. It returns the path written.
func (e *Exporter) Export(m discovery.Member) (string, error) {
	path := filepath.Join(e.dir, m.Name+".json")
	if m.Name == "" || strings.ContainsAny(m.Name, `/\`) || m.Name == "." || m.Name == ".." {
		return "", &WriteError{Path: path, Err: fmt.Errorf("invalid artifact name %q", m.Name)}
	}

	doc, label, err := e.dump(m)
	if err != nil {
		return "", err
	}
	if e.check && m.Definition != nil {
		if err := checkSchema(m.Name, doc); err != nil {
			return "", &WriteError{Path: path, Err: err}
		}
	}

	data, err := Encode(doc)
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if err := e.prepare(); err != nil {
		return "", &WriteError{Path: e.dir, Err: err}
	}

	if e.written[path] {
		e.logger.Debug("Overwriting artifact written earlier in this run", "path", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	e.written[path] = true

	e.logger.Infof("Exported %s model as %s %s", m.Name, m.Name, label)
	return path, nil
}

func (e *Exporter) dump(m discovery.Member) (any, string, error) {
	switch e.mode {
	case discovery.InstanceMode:
		if m.Instance == nil {
			return nil, "", fmt.Errorf("%s is not a model instance", m.Name)
		}
		doc, err := e.dumper.DumpInstance(m.Instance)
		return doc, "JSON file", err
	case discovery.DefinitionMode:
		if m.Definition == nil {
			return nil, "", fmt.Errorf("%s is not a model definition", m.Name)
		}
		doc, err := e.dumper.DumpSchema(m.Definition)
		return doc, "JSON Schema", err
	}
	return nil, "", fmt.Errorf("unknown export mode %s", e.mode)
}

// prepare creates the output directory before the first write.
func (e *Exporter) prepare() error {
	if e.prepared {
		return nil
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return err
	}
	e.prepared = true
	return nil
}

// Encode renders doc as UTF-8 JSON with a two-space indent and a trailing
// newline. HTML characters are not escaped.
func Encode(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func checkSchema(name string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	unmarshaled, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to unmarshal schema JSON: %w", err)
	}

	url := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, unmarshaled); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}
	if _, err := compiler.Compile(url); err != nil {
		return fmt.Errorf("invalid JSON Schema: %w", err)
	}
	return nil
}

// dirSuffix returns the file suffix of the last path element, ignoring
// leading dots so hidden directories have none.
func dirSuffix(dir string) string {
	name := strings.TrimLeft(filepath.Base(filepath.Clean(dir)), ".")
	return filepath.Ext(name)
}
