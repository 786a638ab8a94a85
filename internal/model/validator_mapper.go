package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidatorMapper maps go-playground/validator tags to JSON Schema constraints
type ValidatorMapper struct {
	customValidators map[string]string // Maps custom validator names to descriptions
}

// NewValidatorMapper creates a new validator mapper
func NewValidatorMapper() *ValidatorMapper {
	return &ValidatorMapper{
		customValidators: make(map[string]string),
	}
}

// RegisterCustomValidator registers a custom validator with a description
func (vm *ValidatorMapper) RegisterCustomValidator(name, description string) {
	vm.customValidators[name] = description
}

var tagFormats = map[string]string{
	"email":     "email",
	"url":       "uri",
	"uri":       "uri",
	"uuid":      "uuid",
	"uuid3":     "uuid",
	"uuid4":     "uuid",
	"uuid5":     "uuid",
	"datetime":  "date-time",
	"date":      "date",
	"time":      "time",
	"duration":  "duration",
	"ip":        "ipv4",
	"ipv4":      "ipv4",
	"ipv6":      "ipv6",
	"cidr":      "cidr",
	"hostname":  "hostname",
	"base64":    "byte",
	"base64url": "byte",
}

var tagPatterns = map[string]string{
	"mac":              `^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`,
	"fqdn":             `^([a-zA-Z0-9]+(-[a-zA-Z0-9]+)*\.)+[a-zA-Z]{2,}$`,
	"e164":             `^\+[1-9]\d{1,14}$`,
	"alpha":            `^[a-zA-Z]+$`,
	"alphanum":         `^[a-zA-Z0-9]+$`,
	"numeric":          `^[0-9]+$`,
	"hexadecimal":      `^[0-9a-fA-F]+$`,
	"hexcolor":         `^#[0-9a-fA-F]{6}$`,
	"rgb":              `^rgb\((\d{1,3},\s*){2}\d{1,3}\)$`,
	"rgba":             `^rgba\((\d{1,3},\s*){3}(0|1|0?\.\d+)\)$`,
	"iso3166_1_alpha2": `^[A-Z]{2}$`,
	"iso3166_1_alpha3": `^[A-Z]{3}$`,
}

var tagDescriptions = map[string]string{
	"base64url":        "Base64 URL-safe encoded",
	"e164":             "E.164 phone number format",
	"iso3166_1_alpha2": "ISO 3166-1 alpha-2 country code",
	"iso3166_1_alpha3": "ISO 3166-1 alpha-3 country code",
}

// MapValidatorTags maps validator tags onto schema. fieldType is the Go type
// expression of the field the tags belong to.
func (vm *ValidatorMapper) MapValidatorTags(validateTag string, schema *Schema, fieldType string) {
	if validateTag == "" {
		return
	}

	for _, tag := range vm.splitValidatorTags(validateTag) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}

		// OR conditions become anyOf alternatives
		if strings.Contains(tag, "|") {
			vm.processOrConditions(strings.Split(tag, "|"), schema, fieldType)
			continue
		}

		name, value := vm.parseTag(tag)
		if format, ok := tagFormats[name]; ok {
			schema.Format = format
		}
		if pattern, ok := tagPatterns[name]; ok {
			schema.Pattern = pattern
		}
		if desc, ok := tagDescriptions[name]; ok && schema.Description == "" {
			schema.Description = desc
		}
		vm.applyConstraint(name, value, schema, fieldType)
	}
}

func (vm *ValidatorMapper) applyConstraint(name, value string, schema *Schema, fieldType string) {
	switch name {
	case "fqdn":
		schema.Format = "hostname"
	case "latitude":
		vm.setRange(schema, -90, 90)
	case "longitude":
		vm.setRange(schema, -180, 180)
	case "min", "gte":
		vm.setLowerBound(schema, fieldType, value)
	case "max", "lte":
		vm.setUpperBound(schema, fieldType, value)
	case "gt":
		if val, err := strconv.ParseFloat(value, 64); err == nil {
			schema.Minimum = &val
			schema.ExclusiveMinimum = true
		}
	case "lt":
		if val, err := strconv.ParseFloat(value, 64); err == nil {
			schema.Maximum = &val
			schema.ExclusiveMaximum = true
		}
	case "len":
		if val, err := strconv.Atoi(value); err == nil {
			switch {
			case fieldType == "string":
				schema.MinLength, schema.MaxLength = &val, &val
			case schema.Type == "array":
				schema.MinItems, schema.MaxItems = &val, &val
			case schema.Type == "object":
				schema.MinProperties, schema.MaxProperties = &val, &val
			}
		}
	case "oneof":
		if value != "" {
			values := strings.Fields(value)
			schema.Enum = make([]interface{}, len(values))
			for i, v := range values {
				schema.Enum[i] = enumValue(schema.Type, v)
			}
		}
	case "contains":
		if value != "" {
			schema.Pattern = fmt.Sprintf(".*%s.*", escapeRegex(value))
		}
	case "excludes":
		if value != "" {
			schema.Pattern = fmt.Sprintf("^((?!%s).)*$", escapeRegex(value))
		}
	case "startswith":
		if value != "" {
			schema.Pattern = "^" + escapeRegex(value)
		}
	case "endswith":
		if value != "" {
			schema.Pattern = escapeRegex(value) + "$"
		}
	case "unique":
		schema.UniqueItems = true

	// Cross-field validation (add to description)
	case "eqfield", "nefield", "gtfield", "gtefield", "ltfield", "ltefield",
		"eqcsfield", "necsfield", "gtcsfield", "gtecsfield", "ltcsfield", "ltecsfield":
		appendDescription(schema, fmt.Sprintf("Must be %s field '%s'", strings.TrimSuffix(name, "field"), value))

	// Conditional validation
	case "required_if", "required_unless", "required_with", "required_with_all",
		"required_without", "required_without_all", "excluded_with", "excluded_without":
		appendDescription(schema, fmt.Sprintf("Conditional validation: %s %s", name, value))

	default:
		if desc, ok := vm.customValidators[name]; ok {
			appendDescription(schema, desc)
		}
	}
}

func (vm *ValidatorMapper) setRange(schema *Schema, min, max float64) {
	if schema.Type == "number" || schema.Type == "integer" {
		schema.Minimum = &min
		schema.Maximum = &max
	}
}

func (vm *ValidatorMapper) setLowerBound(schema *Schema, fieldType, value string) {
	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return
	}
	n := int(val)
	switch {
	case fieldType == "string":
		schema.MinLength = &n
	case schema.Type == "array":
		schema.MinItems = &n
	case schema.Type == "object":
		schema.MinProperties = &n
	default:
		schema.Minimum = &val
	}
}

func (vm *ValidatorMapper) setUpperBound(schema *Schema, fieldType, value string) {
	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return
	}
	n := int(val)
	switch {
	case fieldType == "string":
		schema.MaxLength = &n
	case schema.Type == "array":
		schema.MaxItems = &n
	case schema.Type == "object":
		schema.MaxProperties = &n
	default:
		schema.Maximum = &val
	}
}

// processOrConditions handles OR validation conditions using anyOf
func (vm *ValidatorMapper) processOrConditions(conditions []string, schema *Schema, fieldType string) {
	if len(conditions) <= 1 {
		return
	}

	anyOf := make([]*Schema, 0, len(conditions))
	for _, condition := range conditions {
		sub := &Schema{Type: schema.Type}
		vm.MapValidatorTags(strings.TrimSpace(condition), sub, fieldType)
		anyOf = append(anyOf, sub)
	}
	schema.AnyOf = anyOf
}

// splitValidatorTags splits validation tags while respecting nested structures
func (vm *ValidatorMapper) splitValidatorTags(tag string) []string {
	var tags []string
	var current strings.Builder
	depth := 0

	for _, ch := range tag {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				tags = append(tags, current.String())
				current.Reset()
				continue
			}
		}
		current.WriteRune(ch)
	}

	if current.Len() > 0 {
		tags = append(tags, current.String())
	}
	return tags
}

// parseTag parses a validation tag into name and value
func (vm *ValidatorMapper) parseTag(tag string) (name, value string) {
	parts := strings.SplitN(tag, "=", 2)
	name = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		value = strings.TrimSpace(parts[1])
	}
	return
}

// SplitDive separates the tags that apply to a collection from the tags
// that apply to its elements.
func SplitDive(validateTag string) (outer, inner string) {
	parts := strings.SplitN(validateTag, "dive", 2)
	outer = strings.Trim(parts[0], ", ")
	if len(parts) == 2 {
		inner = strings.Trim(parts[1], ", ")
	}
	return outer, inner
}

// IsRequired checks if a field is required based on validate tags
func IsRequired(validateTag string) bool {
	hasRequired := false
	for _, tag := range strings.Split(validateTag, ",") {
		switch strings.TrimSpace(tag) {
		case "required":
			hasRequired = true
		case "omitempty":
			return false
		case "dive":
			return hasRequired
		}
	}
	return hasRequired
}

func appendDescription(schema *Schema, desc string) {
	if schema.Description != "" {
		schema.Description += ". " + desc
		return
	}
	schema.Description = desc
}

func enumValue(schemaType, raw string) interface{} {
	switch schemaType {
	case "integer":
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case "number":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

// escapeRegex escapes special regex characters
func escapeRegex(s string) string {
	result := strings.ReplaceAll(s, "\\", "\\\\")
	for _, char := range []string{".", "+", "*", "?", "^", "$", "(", ")", "[", "]", "{", "}", "|"} {
		result = strings.ReplaceAll(result, char, "\\"+char)
	}
	return result
}
