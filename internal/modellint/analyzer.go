// Package modellint provides a vet-style linter for model sources. It reports
// declarations that modelexport cannot evaluate or that export differently
// than their author expects.
package modellint

import (
	"go/ast"
	"go/token"
	"go/types"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/tools/go/analysis"

	"github.com/example/modelexport/internal/model"
)

// Analyzer is the modelexport model linter.
var Analyzer = &analysis.Analyzer{
	Name: "modellint",
	Doc:  "checks model types and model instances for problems that block JSON export",
	Run:  run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		for _, decl := range file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok {
				continue
			}
			switch gd.Tok {
			case token.TYPE:
				inspectTypes(gd, pass)
			case token.VAR:
				inspectInstances(gd, pass)
			}
		}
	}
	return nil, nil
}

func inspectTypes(gd *ast.GenDecl, pass *analysis.Pass) {
	for _, spec := range gd.Specs {
		ts := spec.(*ast.TypeSpec)
		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			continue
		}
		obj := pass.TypesInfo.Defs[ts.Name]
		if obj == nil || !isModel(obj.Type(), map[*types.Named]bool{}) {
			continue
		}
		checkFields(ts.Name.Name, st, pass)
	}
}

// checkFields reports JSON tags that have no effect and JSON property names
// claimed by more than one field.
func checkFields(typeName string, st *ast.StructType, pass *analysis.Pass) {
	seen := map[string]*ast.Field{}
	for _, fld := range st.Fields.List {
		tag := fieldTag(fld)
		name, skip := jsonName(tag)

		if len(fld.Names) == 0 {
			// Embedded fields are flattened unless a JSON name is given.
			if name == "" || skip {
				continue
			}
		}
		for _, ident := range fld.Names {
			if ast.IsExported(ident.Name) {
				continue
			}
			if _, ok := tag.Lookup("json"); ok {
				pass.Reportf(fld.Tag.Pos(), "json tag on unexported field %s of model %s has no effect", ident.Name, typeName)
			}
		}
		if skip {
			continue
		}

		for _, prop := range propertyNames(fld, name) {
			if prev, dup := seen[prop]; dup {
				pass.Reportf(fld.Pos(), "duplicate JSON property %q in model %s also used at %s", prop, typeName, pass.Fset.Position(prev.Pos()))
				continue
			}
			seen[prop] = fld
		}
	}
}

func fieldTag(fld *ast.Field) reflect.StructTag {
	if fld.Tag == nil {
		return ""
	}
	tagVal, err := strconv.Unquote(fld.Tag.Value)
	if err != nil {
		return ""
	}
	return reflect.StructTag(tagVal)
}

// jsonName returns the name given by the json tag, if any, and whether the
// tag hides the field.
func jsonName(tag reflect.StructTag) (string, bool) {
	value, ok := tag.Lookup("json")
	if !ok {
		return "", false
	}
	if value == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(value, ",")
	return name, false
}

func propertyNames(fld *ast.Field, tagName string) []string {
	if len(fld.Names) == 0 {
		return []string{tagName}
	}
	var names []string
	for _, ident := range fld.Names {
		if !ast.IsExported(ident.Name) {
			continue
		}
		if tagName != "" {
			names = append(names, tagName)
			continue
		}
		names = append(names, ident.Name)
	}
	return names
}

func inspectInstances(gd *ast.GenDecl, pass *analysis.Pass) {
	for _, spec := range gd.Specs {
		vs := spec.(*ast.ValueSpec)
		for i, ident := range vs.Names {
			if i >= len(vs.Values) || ident.Name == "_" {
				continue
			}
			obj := pass.TypesInfo.Defs[ident]
			if obj == nil || !isModel(obj.Type(), map[*types.Named]bool{}) {
				continue
			}
			checkInitializer(ident.Name, vs.Values[i], pass)
		}
	}
}

// checkInitializer reports the parts of a model instance initializer that
// static evaluation rejects: function calls and unkeyed struct literals.
func checkInitializer(name string, expr ast.Expr, pass *analysis.Pass) {
	ast.Inspect(expr, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.FuncLit:
			pass.Reportf(node.Pos(), "function literal in model instance %s cannot be evaluated statically", name)
			return false
		case *ast.CallExpr:
			tv := pass.TypesInfo.Types[node.Fun]
			if tv.IsType() || tv.IsBuiltin() {
				return true
			}
			pass.Reportf(node.Pos(), "call to %s in model instance %s cannot be evaluated statically", types.ExprString(node.Fun), name)
			return false
		case *ast.CompositeLit:
			if len(node.Elts) == 0 {
				return true
			}
			if _, keyed := node.Elts[0].(*ast.KeyValueExpr); keyed {
				return true
			}
			if t := pass.TypesInfo.TypeOf(node); t != nil && isStruct(t) {
				pass.Reportf(node.Pos(), "unkeyed struct literal in model instance %s cannot be exported", name)
				return false
			}
		}
		return true
	})
}

// isModel reports whether t, or the type t points to, is a struct that
// embeds the model marker directly or through another model.
func isModel(t types.Type, seen map[*types.Named]bool) bool {
	if ptr, ok := types.Unalias(t).(*types.Pointer); ok {
		t = ptr.Elem()
	}
	named, ok := types.Unalias(t).(*types.Named)
	if !ok || seen[named] {
		return false
	}
	seen[named] = true

	st, ok := named.Underlying().(*types.Struct)
	if !ok {
		return false
	}
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if !f.Embedded() {
			continue
		}
		ft := f.Type()
		if ptr, ok := ft.(*types.Pointer); ok {
			ft = ptr.Elem()
		}
		if en, ok := types.Unalias(ft).(*types.Named); ok && model.IsBaseMarker(en.Obj().Name()) {
			return true
		}
		if isModel(ft, seen) {
			return true
		}
	}
	return false
}

func isStruct(t types.Type) bool {
	_, ok := t.Underlying().(*types.Struct)
	return ok
}
