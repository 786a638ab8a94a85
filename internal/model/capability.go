// Package model implements the schema-model capability that modelexport
// exports: model type definitions that describe themselves as JSON Schema,
// model instances that dump their data, and the version adapter choosing
// how both are rendered.
package model

// Definition is implemented by model type definitions.
type Definition interface {
	// DefinitionName is the name the definition is bound to in its unit.
	DefinitionName() string
	// IsModel reports whether the definition implements the model capability.
	IsModel() bool
	// IsBase reports whether the definition is the abstract marker itself.
	IsBase() bool
	// JSONSchema describes the definition's structure in the given dialect.
	JSONSchema(d Dialect) (*Schema, error)
}

// Instance is implemented by runtime values of a model.
type Instance interface {
	// ModelName is the name of the model type the value belongs to.
	ModelName() string
	// Data returns the value's fields ready for JSON encoding.
	Data() (any, error)
}

// DefinitionName returns the declared type name.
func (t *Type) DefinitionName() string { return t.Name }

// IsModel reports whether the type embeds the model marker.
func (t *Type) IsModel() bool { return t.Model }

// IsBase reports whether the type is the model marker.
func (t *Type) IsBase() bool { return t.Base }

// JSONSchema builds a self-contained schema for the type. Struct types
// referenced from fields are placed in the dialect's definitions section.
func (t *Type) JSONSchema(d Dialect) (*Schema, error) {
	b := newSchemaBuilder(d, t.Scope)
	return b.build(t), nil
}

// Record is a model instance produced by evaluating a source literal. Err
// is set instead of Fields when the literal could not be evaluated; it
// surfaces only when the instance's data is requested.
type Record struct {
	TypeName string
	Fields   *Object
	Err      error
}

// ModelName returns the instance's model type name.
func (r *Record) ModelName() string { return r.TypeName }

// Data returns the ordered field values.
func (r *Record) Data() (any, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Fields == nil {
		return NewObject(), nil
	}
	return r.Fields, nil
}
