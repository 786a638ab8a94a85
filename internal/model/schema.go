package model

import (
	"slices"
	"strconv"
	"strings"
)

// BaseModelName is the name of the marker type that makes a struct a model.
const BaseModelName = "BaseModel"

// IsBaseMarker reports whether a type expression names the model marker,
// either unqualified or through a package selector.
func IsBaseMarker(typeExpr string) bool {
	typeExpr = strings.TrimPrefix(typeExpr, "*")
	if i := strings.LastIndex(typeExpr, "."); i >= 0 {
		typeExpr = typeExpr[i+1:]
	}
	return typeExpr == BaseModelName
}

// schemaBuilder renders one definition and every struct type it reaches.
type schemaBuilder struct {
	dialect  Dialect
	scope    Resolver
	mapper   *ValidatorMapper
	root     *Type
	defs     map[string]*Schema
	defTypes map[string]*Type
	aliasing map[*Type]bool
}

func newSchemaBuilder(d Dialect, scope Resolver) *schemaBuilder {
	if d == 0 {
		d = DialectModern
	}
	return &schemaBuilder{
		dialect:  d,
		scope:    scope,
		mapper:   NewValidatorMapper(),
		defs:     make(map[string]*Schema),
		defTypes: make(map[string]*Type),
		aliasing: make(map[*Type]bool),
	}
}

func (b *schemaBuilder) build(t *Type) *Schema {
	b.root = t

	var s *Schema
	if t.IsTypeAlias {
		s = b.aliasSchema(t)
	} else {
		s = b.objectSchema(t)
	}
	s.Title = t.Name

	b.dialect.attachDefinitions(s, b.defs)
	b.dialect.Normalize(s)
	return s
}

// objectSchema renders a struct type. Fields promoted from embedded structs
// come first, then the type's own fields, mirroring encoding/json.
func (b *schemaBuilder) objectSchema(t *Type) *Schema {
	prev := b.scope
	if t.Scope != nil {
		b.scope = t.Scope
	}
	defer func() { b.scope = prev }()

	s := &Schema{
		Type:        "object",
		Description: t.Description,
		Properties:  make(map[string]*Schema),
	}

	var required []string
	b.collectProperties(t, s, &required, map[*Type]bool{})
	if len(required) > 0 {
		s.Required = required
	}
	return s
}

func (b *schemaBuilder) collectProperties(t *Type, s *Schema, required *[]string, seen map[*Type]bool) {
	seen[t] = true

	for _, embedded := range t.EmbeddedTypes {
		if IsBaseMarker(embedded) {
			continue
		}
		et, ok := b.resolve(embedded)
		if !ok || seen[et] || et.IsTypeAlias {
			continue
		}
		b.collectProperties(et, s, required, seen)
	}

	for _, field := range t.Fields {
		s.Properties[field.JSONName] = b.fieldSchema(field)
		if IsRequired(field.ValidateTags) && !slices.Contains(*required, field.JSONName) {
			*required = append(*required, field.JSONName)
		}
	}
}

// fieldSchema converts a field to a schema
func (b *schemaBuilder) fieldSchema(field Field) *Schema {
	schema := b.exprSchema(field.Type)
	if field.Description != "" {
		schema.Description = field.Description
	}

	if schema.Ref == "" {
		schema.Title = field.Name
		outer, inner := field.ValidateTags, ""
		if strings.Contains(outer, "dive") {
			outer, inner = SplitDive(outer)
		}
		b.mapper.MapValidatorTags(outer, schema, field.Type)
		if inner != "" {
			b.applyElementTags(schema, field.Type, inner)
		}
	}

	if field.DefaultTag != "" {
		schema.Default = parseDefault(schema.Type, field.DefaultTag)
	}
	if field.IsPointer {
		schema.Nullable = true
	}
	return schema
}

func (b *schemaBuilder) applyElementTags(schema *Schema, fieldType, tags string) {
	switch {
	case schema.Items != nil:
		b.mapper.MapValidatorTags(tags, schema.Items, strings.TrimPrefix(fieldType, "[]"))
	case schema.AdditionalProperties != nil:
		if extra, ok := schema.AdditionalProperties.(*Schema); ok {
			_, value := SplitMapType(fieldType)
			b.mapper.MapValidatorTags(tags, extra, value)
		}
	}
}

// exprSchema converts a Go type expression to a schema
func (b *schemaBuilder) exprSchema(typ string) *Schema {
	typ = strings.TrimPrefix(typ, "*")

	switch {
	case typ == "[]byte":
		return &Schema{Type: "string", Format: "byte"}
	case strings.HasPrefix(typ, "[]"):
		return &Schema{Type: "array", Items: b.exprSchema(strings.TrimPrefix(typ, "[]"))}
	case strings.HasPrefix(typ, "map["):
		_, value := SplitMapType(typ)
		return &Schema{Type: "object", AdditionalProperties: b.exprSchema(value)}
	}

	if s, ok := builtinSchema(typ); ok {
		return s
	}

	if t, ok := b.resolve(typ); ok {
		if t.IsTypeAlias {
			return b.aliasSchema(t)
		}
		return b.ref(t)
	}

	// Unknown type, default to object
	return &Schema{Type: "object"}
}

func builtinSchema(typ string) (*Schema, bool) {
	switch typ {
	case "string":
		return &Schema{Type: "string"}, true
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64", "byte", "rune", "time.Duration":
		return &Schema{Type: "integer"}, true
	case "float32", "float64":
		return &Schema{Type: "number"}, true
	case "bool":
		return &Schema{Type: "boolean"}, true
	case "time.Time":
		return &Schema{Type: "string", Format: "date-time"}, true
	case "interface{}", "any", "json.RawMessage":
		return &Schema{}, true
	}
	return nil, false
}

// ref returns a reference to t, rendering t into the definitions section
// the first time it is reached.
func (b *schemaBuilder) ref(t *Type) *Schema {
	if t == b.root {
		return &Schema{Ref: "#"}
	}

	key := t.Name
	if existing, ok := b.defTypes[key]; ok && existing != t {
		key = t.Package + "." + t.Name
	}
	if _, ok := b.defs[key]; !ok {
		placeholder := &Schema{}
		b.defs[key] = placeholder
		b.defTypes[key] = t
		*placeholder = *b.objectSchema(t)
		placeholder.Title = t.Name
	}
	return &Schema{Ref: b.dialect.RefPrefix() + key}
}

// aliasSchema generates a schema for a named non-struct type
func (b *schemaBuilder) aliasSchema(t *Type) *Schema {
	if b.aliasing[t] {
		return &Schema{}
	}
	b.aliasing[t] = true
	defer delete(b.aliasing, t)

	prev := b.scope
	if t.Scope != nil {
		b.scope = t.Scope
	}
	defer func() { b.scope = prev }()

	schema := b.exprSchema(t.BaseType)
	if t.Description != "" && schema.Ref == "" {
		schema.Description = t.Description
	}

	if len(t.EnumValues) > 0 {
		schema.Enum = make([]interface{}, len(t.EnumValues))
		for i, v := range t.EnumValues {
			schema.Enum[i] = enumValue(schema.Type, v)
		}
	}
	return schema
}

func (b *schemaBuilder) resolve(name string) (*Type, bool) {
	if b.scope == nil {
		return nil, false
	}
	return b.scope.ResolveType(name)
}

// SplitMapType splits "map[K]V" into K and V, honouring nested brackets.
func SplitMapType(typ string) (key, value string) {
	rest := strings.TrimPrefix(typ, "map[")
	depth := 1
	for i, ch := range rest {
		switch ch {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return rest[:i], rest[i+1:]
			}
		}
	}
	return rest, ""
}

func parseDefault(schemaType, raw string) interface{} {
	switch schemaType {
	case "integer":
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case "number":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case "boolean":
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	}
	return raw
}
