package model

import "encoding/json"

// Schema represents a JSON Schema document or sub-schema
type Schema struct {
	SchemaURI            string             `json:"$schema,omitempty"`
	Ref                  string             `json:"$ref,omitempty"`
	Title                string             `json:"title,omitempty"`
	Type                 string             `json:"type,omitempty"`
	Format               string             `json:"format,omitempty"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Enum                 []interface{}      `json:"enum,omitempty"`
	Default              interface{}        `json:"default,omitempty"`
	Example              interface{}        `json:"example,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty"`
	Maximum              *float64           `json:"maximum,omitempty"`
	ExclusiveMinimum     bool               `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum     bool               `json:"exclusiveMaximum,omitempty"`
	MinLength            *int               `json:"minLength,omitempty"`
	MaxLength            *int               `json:"maxLength,omitempty"`
	Pattern              string             `json:"pattern,omitempty"`
	MinItems             *int               `json:"minItems,omitempty"`
	MaxItems             *int               `json:"maxItems,omitempty"`
	UniqueItems          bool               `json:"uniqueItems,omitempty"`
	MinProperties        *int               `json:"minProperties,omitempty"`
	MaxProperties        *int               `json:"maxProperties,omitempty"`
	Nullable             bool               `json:"nullable,omitempty"`
	ReadOnly             bool               `json:"readOnly,omitempty"`
	WriteOnly            bool               `json:"writeOnly,omitempty"`
	Deprecated           bool               `json:"deprecated,omitempty"`
	AdditionalProperties interface{}        `json:"additionalProperties,omitempty"`
	AllOf                []*Schema          `json:"allOf,omitempty"`
	OneOf                []*Schema          `json:"oneOf,omitempty"`
	AnyOf                []*Schema          `json:"anyOf,omitempty"`
	Defs                 map[string]*Schema `json:"$defs,omitempty"`
	Definitions          map[string]*Schema `json:"definitions,omitempty"`

	// Numeric exclusive bounds used by 2020-12 documents. When set they are
	// rendered in place of the boolean draft-04 style flags above.
	ExclusiveMinimumValue *float64 `json:"-"`
	ExclusiveMaximumValue *float64 `json:"-"`
}

// Type represents a Go or CUE type extracted from a source unit
type Type struct {
	Name          string
	Package       string
	Description   string
	Fields        []Field
	EmbeddedTypes []string // Names of embedded types, as written in source
	IsTypeAlias   bool     // True for non-struct named types (type Status string)
	BaseType      string   // The underlying type for simple aliases
	EnumValues    []string // Possible enum values if constants are defined
	SourceFile    string   // Path to the source file containing this type

	// Model is set when the type embeds the BaseModel marker, directly or
	// through another model type.
	Model bool
	// Base is set on the marker type itself.
	Base bool

	// Scope resolves type names referenced by fields and embedded types.
	Scope Resolver
}

// Field represents a struct field
type Field struct {
	Name         string
	Type         string // type expression without a leading '*'
	JSONName     string // effective JSON property name
	OmitEmpty    bool
	ValidateTags string
	DefaultTag   string
	Description  string
	IsPointer    bool
}

// Resolver looks up named types visible from a definition.
type Resolver interface {
	ResolveType(name string) (*Type, bool)
}

// MarshalJSON customizes JSON marshaling to omit empty values properly
func (s *Schema) MarshalJSON() ([]byte, error) {
	type schemaAlias Schema

	// Create a temporary struct with proper omitempty handling
	temp := struct {
		schemaAlias
		ExclusiveMinimum interface{} `json:"exclusiveMinimum,omitempty"`
		ExclusiveMaximum interface{} `json:"exclusiveMaximum,omitempty"`
		UniqueItems      *bool       `json:"uniqueItems,omitempty"`
		Nullable         *bool       `json:"nullable,omitempty"`
		ReadOnly         *bool       `json:"readOnly,omitempty"`
		WriteOnly        *bool       `json:"writeOnly,omitempty"`
		Deprecated       *bool       `json:"deprecated,omitempty"`
	}{
		schemaAlias: schemaAlias(*s),
	}

	switch {
	case s.ExclusiveMinimumValue != nil:
		temp.ExclusiveMinimum = *s.ExclusiveMinimumValue
	case s.ExclusiveMinimum:
		temp.ExclusiveMinimum = true
	}
	switch {
	case s.ExclusiveMaximumValue != nil:
		temp.ExclusiveMaximum = *s.ExclusiveMaximumValue
	case s.ExclusiveMaximum:
		temp.ExclusiveMaximum = true
	}

	// Only set boolean fields if they're true
	if s.UniqueItems {
		b := true
		temp.UniqueItems = &b
	}
	if s.Nullable {
		b := true
		temp.Nullable = &b
	}
	if s.ReadOnly {
		b := true
		temp.ReadOnly = &b
	}
	if s.WriteOnly {
		b := true
		temp.WriteOnly = &b
	}
	if s.Deprecated {
		b := true
		temp.Deprecated = &b
	}

	return json.Marshal(temp)
}
