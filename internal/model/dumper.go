package model

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidVersion is returned for schema versions that are not semantic versions.
var ErrInvalidVersion = errors.New("invalid schema version")

// Dumper is the uniform serialization contract the exporter relies on. The
// implementation is chosen once, from the configured schema version.
type Dumper interface {
	// Version is the canonical version the dumper was selected for.
	Version() string
	// Dialect is the schema flavour produced by DumpSchema.
	Dialect() Dialect
	// DumpInstance returns the live data of a model instance.
	DumpInstance(inst Instance) (any, error)
	// DumpSchema returns the schema document of a model definition.
	DumpSchema(def Definition) (any, error)
}

// NewDumper selects the dumper for version. Versions below 2 use the legacy
// draft-04 rendering, everything else the 2020-12 rendering. A leading "v"
// is optional.
func NewDumper(version string) (Dumper, error) {
	v := strings.TrimSpace(version)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}

	d := &dumper{version: semver.Canonical(v), dialect: DialectModern}
	if semver.Compare(semver.Major(v), "v2") < 0 {
		d.dialect = DialectLegacy
	}
	return d, nil
}

type dumper struct {
	version string
	dialect Dialect
}

func (d *dumper) Version() string  { return d.version }
func (d *dumper) Dialect() Dialect { return d.dialect }

func (d *dumper) DumpInstance(inst Instance) (any, error) {
	if inst == nil {
		return nil, errors.New("nil model instance")
	}
	data, err := inst.Data()
	if err != nil {
		return nil, fmt.Errorf("dump %s instance: %w", inst.ModelName(), err)
	}
	return data, nil
}

func (d *dumper) DumpSchema(def Definition) (any, error) {
	if def == nil {
		return nil, errors.New("nil model definition")
	}
	schema, err := def.JSONSchema(d.dialect)
	if err != nil {
		return nil, fmt.Errorf("dump %s schema: %w", def.DefinitionName(), err)
	}
	schema.SchemaURI = d.dialect.SchemaURI()
	return schema, nil
}
