package model

// Dialect selects the JSON Schema flavour a schema dump is rendered in.
type Dialect int

const (
	// DialectLegacy renders draft-04 documents with a "definitions" section,
	// OpenAPI style "nullable" flags and boolean exclusive bounds.
	DialectLegacy Dialect = iota + 1
	// DialectModern renders 2020-12 documents with a "$defs" section,
	// anyOf-null for nullable values and numeric exclusive bounds.
	DialectModern
)

func (d Dialect) String() string {
	switch d {
	case DialectLegacy:
		return "draft-04"
	case DialectModern:
		return "2020-12"
	default:
		return "unknown"
	}
}

// SchemaURI returns the meta-schema identifier for the dialect.
func (d Dialect) SchemaURI() string {
	if d == DialectLegacy {
		return "http://json-schema.org/draft-04/schema#"
	}
	return "https://json-schema.org/draft/2020-12/schema"
}

// RefPrefix returns the JSON pointer prefix of the definitions section.
func (d Dialect) RefPrefix() string {
	if d == DialectLegacy {
		return "#/definitions/"
	}
	return "#/$defs/"
}

func (d Dialect) attachDefinitions(s *Schema, defs map[string]*Schema) {
	if len(defs) == 0 {
		return
	}
	if d == DialectLegacy {
		s.Definitions = defs
		return
	}
	s.Defs = defs
}

// Normalize rewrites dialect-specific keywords of s and all sub-schemas.
func (d Dialect) Normalize(s *Schema) {
	if s == nil {
		return
	}

	for _, p := range s.Properties {
		d.Normalize(p)
	}
	d.Normalize(s.Items)
	for _, group := range [][]*Schema{s.AnyOf, s.AllOf, s.OneOf} {
		for _, sub := range group {
			d.Normalize(sub)
		}
	}
	for _, def := range s.Defs {
		d.Normalize(def)
	}
	for _, def := range s.Definitions {
		d.Normalize(def)
	}
	if extra, ok := s.AdditionalProperties.(*Schema); ok {
		d.Normalize(extra)
	}

	if d != DialectModern {
		return
	}

	if s.ExclusiveMinimum && s.Minimum != nil {
		s.ExclusiveMinimumValue, s.Minimum, s.ExclusiveMinimum = s.Minimum, nil, false
	}
	if s.ExclusiveMaximum && s.Maximum != nil {
		s.ExclusiveMaximumValue, s.Maximum, s.ExclusiveMaximum = s.Maximum, nil, false
	}
	if s.Nullable {
		inner := *s
		inner.Nullable = false
		inner.Title, inner.Description, inner.Default = "", "", nil
		*s = Schema{
			Title:       s.Title,
			Description: s.Description,
			Default:     s.Default,
			AnyOf:       []*Schema{&inner, {Type: "null"}},
		}
	}
}
