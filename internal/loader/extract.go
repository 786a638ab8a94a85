package loader

import (
	"go/ast"
	"go/constant"
	"go/token"
	"reflect"
	"strconv"
	"strings"

	"github.com/example/modelexport/internal/model"
)

// extractTypes records every named type declared at package level in file.
func (p *packageScope) extractTypes(filePath string, file *ast.File) {
	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.TYPE {
			continue
		}

		for _, spec := range genDecl.Specs {
			typeSpec, ok := spec.(*ast.TypeSpec)
			if !ok || typeSpec.Name.Name == "_" || typeSpec.TypeParams != nil {
				continue
			}

			var t *model.Type
			if structType, ok := typeSpec.Type.(*ast.StructType); ok {
				t = p.extractStructType(typeSpec, structType, genDecl, filePath)
			} else {
				t = p.extractTypeAlias(typeSpec, genDecl, filePath)
				p.aliases[t.Name] = typeSpec.Assign.IsValid()
			}
			if t.Name == model.BaseModelName {
				t.Base = true
			}
			p.types[t.Name] = t
		}
	}
}

func typeComment(typeSpec *ast.TypeSpec, genDecl *ast.GenDecl) string {
	switch {
	case typeSpec.Doc != nil:
		return strings.TrimSpace(typeSpec.Doc.Text())
	case genDecl.Doc != nil && len(genDecl.Specs) == 1:
		return strings.TrimSpace(genDecl.Doc.Text())
	case typeSpec.Comment != nil:
		return strings.TrimSpace(typeSpec.Comment.Text())
	}
	return ""
}

func fieldComment(field *ast.Field) string {
	if field.Doc != nil {
		return strings.TrimSpace(field.Doc.Text())
	}
	if field.Comment != nil {
		return strings.TrimSpace(field.Comment.Text())
	}
	return ""
}

// extractStructType extracts struct type information
func (p *packageScope) extractStructType(typeSpec *ast.TypeSpec, structType *ast.StructType, genDecl *ast.GenDecl, filePath string) *model.Type {
	extracted := &model.Type{
		Name:        typeSpec.Name.Name,
		Package:     p.name,
		Description: typeComment(typeSpec, genDecl),
		SourceFile:  filePath,
		Scope:       p,
	}

	for _, field := range structType.Fields.List {
		var tag reflect.StructTag
		if field.Tag != nil {
			if raw, err := strconv.Unquote(field.Tag.Value); err == nil {
				tag = reflect.StructTag(raw)
			}
		}

		if field.Names == nil {
			embedded := typeString(field.Type)
			jsonName, _, skip := jsonTag(tag)
			switch {
			case skip:
			case jsonName == "":
				extracted.EmbeddedTypes = append(extracted.EmbeddedTypes, embedded)
			default:
				// A named tag turns the embedded struct into a regular field.
				extracted.Fields = append(extracted.Fields, newField(embeddedName(embedded), field, tag))
			}
			continue
		}

		for _, name := range field.Names {
			if !ast.IsExported(name.Name) {
				continue
			}
			if _, _, skip := jsonTag(tag); skip {
				continue
			}
			extracted.Fields = append(extracted.Fields, newField(name.Name, field, tag))
		}
	}
	return extracted
}

func newField(name string, field *ast.Field, tag reflect.StructTag) model.Field {
	_, isPointer := field.Type.(*ast.StarExpr)
	f := model.Field{
		Name:         name,
		Type:         typeString(field.Type),
		JSONName:     name,
		Description:  fieldComment(field),
		IsPointer:    isPointer,
		ValidateTags: tag.Get("validate"),
		DefaultTag:   tag.Get("default"),
	}

	jsonName, opts, _ := jsonTag(tag)
	if jsonName != "" {
		f.JSONName = jsonName
	}
	for _, opt := range strings.Split(opts, ",") {
		if opt == "omitempty" {
			f.OmitEmpty = true
		}
	}
	return f
}

// jsonTag splits the json struct tag into the name and its options. A tag
// of exactly "-" skips the field, while "-," names it "-".
func jsonTag(tag reflect.StructTag) (name, opts string, skip bool) {
	value, ok := tag.Lookup("json")
	if !ok {
		return "", "", false
	}
	if value == "-" {
		return "", "", true
	}
	name, opts, _ = strings.Cut(value, ",")
	return name, opts, false
}

func embeddedName(typ string) string {
	typ = strings.TrimPrefix(typ, "*")
	if i := strings.LastIndex(typ, "."); i >= 0 {
		return typ[i+1:]
	}
	return typ
}

// extractTypeAlias extracts a named non-struct type
func (p *packageScope) extractTypeAlias(typeSpec *ast.TypeSpec, genDecl *ast.GenDecl, filePath string) *model.Type {
	return &model.Type{
		Name:        typeSpec.Name.Name,
		Package:     p.name,
		Description: typeComment(typeSpec, genDecl),
		IsTypeAlias: true,
		BaseType:    typeString(typeSpec.Type),
		SourceFile:  filePath,
		Scope:       p,
	}
}

// resolveDefinedStructs replaces named types whose underlying type is a
// struct declared elsewhere. A Go alias shares the target type; a defined
// type gets a copy carrying its own name.
func (p *packageScope) resolveDefinedStructs() {
	for name, t := range p.types {
		if !t.IsTypeAlias || t.Base {
			continue
		}
		target, ok := p.structTarget(t, 0)
		if !ok {
			continue
		}
		if p.aliases[name] {
			p.types[name] = target
			continue
		}

		defined := *target
		defined.Name = name
		defined.Package = p.name
		defined.SourceFile = t.SourceFile
		defined.Model = false
		if t.Description != "" {
			defined.Description = t.Description
		}
		p.types[name] = &defined
	}
}

func (p *packageScope) structTarget(t *model.Type, depth int) (*model.Type, bool) {
	if depth > 8 {
		return nil, false
	}
	scope := scopeOf(t, p)
	target, ok := scope.ResolveType(t.BaseType)
	if !ok || target == t {
		return nil, false
	}
	if !target.IsTypeAlias {
		return target, true
	}
	return scope.structTarget(target, depth+1)
}

type constDecl struct {
	expr  ast.Expr
	typ   string
	iota  int
	value constant.Value
	err   error
	state int
}

const (
	constPending = iota
	constEvaluating
	constDone
)

// collectConsts records package-level constants. Specs without values
// repeat the previous expression list, as in a Go const group.
func (p *packageScope) collectConsts(file *ast.File) {
	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.CONST {
			continue
		}

		var lastValues []ast.Expr
		var lastType ast.Expr
		for i, spec := range genDecl.Specs {
			valueSpec, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			values, typ := valueSpec.Values, valueSpec.Type
			if len(values) == 0 {
				values, typ = lastValues, lastType
			} else {
				lastValues, lastType = values, typ
			}

			for j, name := range valueSpec.Names {
				if name.Name == "_" {
					continue
				}
				c := &constDecl{iota: i}
				if j < len(values) {
					c.expr = values[j]
				}
				if typ != nil {
					c.typ = typeString(typ)
				}
				p.consts[name.Name] = c
				p.constList = append(p.constList, name.Name)
			}
		}
	}
}

// extractEnumValues finds constant values for named non-struct types
func (p *packageScope) extractEnumValues() {
	for _, name := range p.constList {
		c := p.consts[name]
		if c.typ == "" || strings.Contains(c.typ, ".") {
			continue
		}
		t, ok := p.types[c.typ]
		if !ok || !t.IsTypeAlias {
			continue
		}
		v, err := p.constValue(name)
		if err != nil {
			continue
		}
		t.EnumValues = append(t.EnumValues, constString(v))
	}
}

func constString(v constant.Value) string {
	switch v.Kind() {
	case constant.String:
		return constant.StringVal(v)
	case constant.Float:
		f, _ := constant.Float64Val(v)
		return strconv.FormatFloat(f, 'g', -1, 64)
	default:
		return v.ExactString()
	}
}

// typeString renders a type expression the way fields refer to types.
// Pointer markers are dropped.
func typeString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return typeString(t.X)
	case *ast.ParenExpr:
		return typeString(t.X)
	case *ast.ArrayType:
		return "[]" + typeString(t.Elt)
	case *ast.SelectorExpr:
		return typeString(t.X) + "." + t.Sel.Name
	case *ast.MapType:
		return "map[" + typeString(t.Key) + "]" + typeString(t.Value)
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.IndexExpr:
		return typeString(t.X) + "[" + typeString(t.Index) + "]"
	case *ast.IndexListExpr:
		params := make([]string, 0, len(t.Indices))
		for _, idx := range t.Indices {
			params = append(params, typeString(idx))
		}
		return typeString(t.X) + "[" + strings.Join(params, ", ") + "]"
	case *ast.StructType:
		return "struct{}"
	default:
		return "unknown"
	}
}
