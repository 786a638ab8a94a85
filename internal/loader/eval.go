package loader

import (
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"strings"
	"time"

	"github.com/example/modelexport/internal/model"
)

const zeroTime = "0001-01-01T00:00:00Z"

// standardConsts are the standard library constants model literals commonly
// use.
var standardConsts = map[string]constant.Value{
	"time.Nanosecond":  constant.MakeInt64(int64(time.Nanosecond)),
	"time.Microsecond": constant.MakeInt64(int64(time.Microsecond)),
	"time.Millisecond": constant.MakeInt64(int64(time.Millisecond)),
	"time.Second":      constant.MakeInt64(int64(time.Second)),
	"time.Minute":      constant.MakeInt64(int64(time.Minute)),
	"time.Hour":        constant.MakeInt64(int64(time.Hour)),
}

var basicKinds = map[string]string{
	"string":        "string",
	"bool":          "bool",
	"int":           "int",
	"int8":          "int",
	"int16":         "int",
	"int32":         "int",
	"int64":         "int",
	"rune":          "int",
	"time.Duration": "int",
	"uint":          "uint",
	"uint8":         "uint",
	"uint16":        "uint",
	"uint32":        "uint",
	"uint64":        "uint",
	"uintptr":       "uint",
	"byte":          "uint",
	"float32":       "float32",
	"float64":       "float64",
	"interface{}":   "any",
	"any":           "any",
}

var errNotConstant = errors.New("not a constant expression")

// instance evaluates the i-th variable of a package-level var spec. It
// returns nil when the variable does not hold a model value. known maps
// earlier variables of the unit to their evaluated records. A model value
// that cannot be evaluated yields a record carrying the error; only
// failures to resolve the variable's type are returned.
func (p *packageScope) instance(spec *ast.ValueSpec, i int, known map[string]*model.Record) (*model.Record, error) {
	var value ast.Expr
	switch len(spec.Values) {
	case 0:
	case len(spec.Names):
		value = spec.Values[i]
	default:
		return nil, nil
	}

	if value == nil {
		if _, isPointer := spec.Type.(*ast.StarExpr); isPointer {
			return nil, nil
		}
		t, err := p.modelType(spec.Type)
		if t == nil || err != nil {
			return nil, err
		}
		obj := model.NewObject()
		if err := scopeOf(t, p).zeroFill(obj, t); err != nil {
			return failed(t, err), nil
		}
		return &model.Record{TypeName: t.Name, Fields: obj}, nil
	}

	if u, ok := value.(*ast.UnaryExpr); ok && u.Op == token.AND {
		value = u.X
	}
	if lit, ok := value.(*ast.CompositeLit); ok && lit.Type != nil {
		t, err := p.modelType(lit.Type)
		if t == nil || err != nil {
			return nil, err
		}
		obj, err := p.structValue(t, lit)
		if err != nil {
			return failed(t, err), nil
		}
		return &model.Record{TypeName: t.Name, Fields: obj}, nil
	}
	if id, ok := value.(*ast.Ident); ok {
		if rec, ok := known[id.Name]; ok {
			return rec, nil
		}
	}

	var t *model.Type
	var err error
	if spec.Type != nil {
		t, err = p.modelType(spec.Type)
	} else if call, ok := value.(*ast.CallExpr); ok {
		t, err = p.callResult(call)
	}
	if t == nil || err != nil {
		return nil, err
	}
	return failed(t, p.errorf(value, "cannot evaluate %s: %w", types.ExprString(value), errNotConstant)), nil
}

func failed(t *model.Type, err error) *model.Record {
	return &model.Record{TypeName: t.Name, Err: err}
}

// callResult returns the model type a call evaluates to, for calls of
// package-level functions with a single model result and for conversions
// to a model type. It returns nil for every other call.
func (p *packageScope) callResult(call *ast.CallExpr) (*model.Type, error) {
	scope, name := p, ""
	switch fun := call.Fun.(type) {
	case *ast.Ident:
		name = fun.Name
	case *ast.SelectorExpr:
		pkg, ok := fun.X.(*ast.Ident)
		if !ok {
			return nil, nil
		}
		dep, err := p.importScope(pkg.Name)
		if err != nil {
			return nil, nil
		}
		scope, name = dep, fun.Sel.Name
	default:
		return nil, nil
	}

	if t, ok := scope.types[name]; ok {
		if !t.Model || t.IsTypeAlias {
			return nil, nil
		}
		return t, nil
	}
	fn, ok := scope.funcs[name]
	if !ok || fn.TypeParams != nil || fn.Results == nil || fn.Results.NumFields() != 1 {
		return nil, nil
	}
	result := fn.Results.List[0].Type
	if star, ok := result.(*ast.StarExpr); ok {
		result = star.X
	}
	return scope.modelType(result)
}

// modelType resolves a type expression to a model type. It returns nil for
// types that are not models. Unresolvable names are errors, except for
// types of standard library packages.
func (p *packageScope) modelType(expr ast.Expr) (*model.Type, error) {
	if expr == nil {
		return nil, nil
	}
	t, err := p.namedType(expr, typeString(expr))
	if t == nil || err != nil {
		return nil, err
	}
	if !t.Model || t.IsTypeAlias {
		return nil, nil
	}
	return t, nil
}

func (p *packageScope) namedType(node ast.Node, typ string) (*model.Type, error) {
	// Function, channel and instantiated generic types never hold models.
	if isCollection(typ) || strings.Contains(typ, "[") {
		return nil, nil
	}
	switch typ {
	case "interface{}", "error", "struct{}", "unknown":
		return nil, nil
	}
	if _, ok := basicKinds[typ]; ok {
		return nil, nil
	}

	if pkgName, name, ok := strings.Cut(typ, "."); ok {
		dep, err := p.importScope(pkgName)
		if opaqueImport(err) {
			return nil, nil
		}
		if err != nil {
			return nil, p.errorf(node, "%w", err)
		}
		t, ok := dep.types[name]
		if !ok {
			return nil, p.errorf(node, "undefined: %s", typ)
		}
		return t, nil
	}

	t, ok := p.types[typ]
	if !ok {
		return nil, p.errorf(node, "undefined: %s", typ)
	}
	return t, nil
}

// structValue evaluates a keyed struct literal of type t.
func (p *packageScope) structValue(t *model.Type, lit *ast.CompositeLit) (*model.Object, error) {
	keyed, err := p.keyedElements(t, lit)
	if err != nil {
		return nil, err
	}
	obj := model.NewObject()
	if err := p.fill(obj, t, scopeOf(t, p), keyed); err != nil {
		return nil, err
	}
	return obj, nil
}

func (p *packageScope) keyedElements(t *model.Type, lit *ast.CompositeLit) (map[string]ast.Expr, error) {
	keyed := make(map[string]ast.Expr, len(lit.Elts))
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			return nil, p.errorf(elt, "unkeyed fields in %s literal are not supported", t.Name)
		}
		key, ok := kv.Key.(*ast.Ident)
		if !ok {
			return nil, p.errorf(kv.Key, "invalid field name %s in %s literal", types.ExprString(kv.Key), t.Name)
		}
		keyed[key.Name] = kv.Value
	}
	return keyed, nil
}

// fill sets the JSON fields of t on obj. Fields promoted from embedded
// structs come first; a field of t with the same JSON name replaces the
// promoted one. Value expressions are evaluated in p, field types in ts.
func (p *packageScope) fill(obj *model.Object, t *model.Type, ts *packageScope, keyed map[string]ast.Expr) error {
	for _, embedded := range t.EmbeddedTypes {
		if model.IsBaseMarker(embedded) {
			continue
		}
		et, ok := ts.ResolveType(embedded)
		if !ok || et.IsTypeAlias {
			continue
		}

		expr, ok := keyed[embeddedName(embedded)]
		if !ok {
			// encoding/json skips nil embedded pointers.
			if strings.HasPrefix(embedded, "*") {
				continue
			}
			if err := scopeOf(et, ts).zeroFill(obj, et); err != nil {
				return err
			}
			continue
		}
		lit, isNil, err := p.literalOf(expr)
		if err != nil {
			return err
		}
		if isNil {
			continue
		}
		nested, err := p.keyedElements(et, lit)
		if err != nil {
			return err
		}
		if err := p.fill(obj, et, scopeOf(et, ts), nested); err != nil {
			return err
		}
	}

	for _, field := range t.Fields {
		var v any
		var err error
		if expr, ok := keyed[field.Name]; ok {
			v, err = p.value(ts, field.Type, expr)
		} else {
			v, err = ts.zero(field.Type, field.IsPointer)
		}
		if err != nil {
			return err
		}
		if field.OmitEmpty && isEmpty(v) {
			continue
		}
		obj.Set(field.JSONName, v)
	}
	return nil
}

func (p *packageScope) literalOf(expr ast.Expr) (lit *ast.CompositeLit, isNil bool, err error) {
	if id, ok := expr.(*ast.Ident); ok && id.Name == "nil" {
		return nil, true, nil
	}
	if u, ok := expr.(*ast.UnaryExpr); ok && u.Op == token.AND {
		expr = u.X
	}
	if lit, ok := expr.(*ast.CompositeLit); ok {
		return lit, false, nil
	}
	return nil, false, p.errorf(expr, "cannot evaluate %s: %w", types.ExprString(expr), errNotConstant)
}

// value evaluates expr as a value of the field type typ, which is resolved
// in ts.
func (p *packageScope) value(ts *packageScope, typ string, expr ast.Expr) (any, error) {
	switch e := expr.(type) {
	case *ast.Ident:
		if e.Name == "nil" {
			return nil, nil
		}
	case *ast.ParenExpr:
		return p.value(ts, typ, e.X)
	case *ast.UnaryExpr:
		if lit, ok := e.X.(*ast.CompositeLit); ok && e.Op == token.AND {
			return p.compositeValue(ts, typ, lit)
		}
	case *ast.CompositeLit:
		return p.compositeValue(ts, typ, e)
	}

	v, err := p.constExpr(expr, 0)
	if err != nil {
		return nil, err
	}
	return ts.convert(expr, typ, v)
}

func (p *packageScope) compositeValue(ts *packageScope, typ string, lit *ast.CompositeLit) (any, error) {
	if lit.Type != nil {
		ts, typ = p, typeString(lit.Type)
	}
	return p.composite(ts, typ, lit, 0)
}

func (p *packageScope) composite(ts *packageScope, typ string, lit *ast.CompositeLit, depth int) (any, error) {
	switch {
	case strings.HasPrefix(typ, "[]"):
		elem := strings.TrimPrefix(typ, "[]")
		out := make([]any, 0, len(lit.Elts))
		for _, elt := range lit.Elts {
			if _, ok := elt.(*ast.KeyValueExpr); ok {
				return nil, p.errorf(elt, "indexed elements in %s literal are not supported", typ)
			}
			v, err := p.value(ts, elem, elt)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case strings.HasPrefix(typ, "map["):
		keyType, valueType := model.SplitMapType(typ)
		out := make(map[string]any, len(lit.Elts))
		for _, elt := range lit.Elts {
			kv, ok := elt.(*ast.KeyValueExpr)
			if !ok {
				return nil, p.errorf(elt, "missing key in %s literal", typ)
			}
			k, err := p.value(ts, keyType, kv.Key)
			if err != nil {
				return nil, err
			}
			v, err := p.value(ts, valueType, kv.Value)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = v
		}
		return out, nil

	case typ == "time.Time":
		if len(lit.Elts) == 0 {
			return zeroTime, nil
		}
		return nil, p.errorf(lit, "cannot evaluate %s: %w", types.ExprString(lit), errNotConstant)
	}

	t, err := ts.namedType(lit, typ)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, p.errorf(lit, "cannot evaluate %s literal", typ)
	}
	if t.IsTypeAlias {
		if depth > 8 {
			return nil, p.errorf(lit, "invalid recursive type %s", typ)
		}
		return p.composite(scopeOf(t, ts), t.BaseType, lit, depth+1)
	}
	return p.structValue(t, lit)
}

// constExpr evaluates a constant expression declared in p.
func (p *packageScope) constExpr(expr ast.Expr, iota int) (constant.Value, error) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		v := constant.MakeFromLiteral(e.Value, e.Kind, 0)
		if v.Kind() == constant.Unknown {
			return nil, p.errorf(e, "malformed literal %s", e.Value)
		}
		return v, nil

	case *ast.Ident:
		switch e.Name {
		case "true", "false":
			return constant.MakeBool(e.Name == "true"), nil
		case "iota":
			return constant.MakeInt64(int64(iota)), nil
		}
		if _, ok := p.consts[e.Name]; ok {
			return p.constValue(e.Name)
		}

	case *ast.SelectorExpr:
		pkgIdent, ok := e.X.(*ast.Ident)
		if !ok {
			break
		}
		if v, ok := standardConsts[pkgIdent.Name+"."+e.Sel.Name]; ok {
			return v, nil
		}
		dep, err := p.importScope(pkgIdent.Name)
		if err != nil {
			if opaqueImport(err) {
				break
			}
			return nil, p.errorf(e, "%w", err)
		}
		if _, ok := dep.consts[e.Sel.Name]; ok {
			return dep.constValue(e.Sel.Name)
		}

	case *ast.ParenExpr:
		return p.constExpr(e.X, iota)

	case *ast.UnaryExpr:
		x, err := p.constExpr(e.X, iota)
		if err != nil {
			return nil, err
		}
		return p.apply(e, func() constant.Value { return constant.UnaryOp(e.Op, x, 0) })

	case *ast.BinaryExpr:
		x, err := p.constExpr(e.X, iota)
		if err != nil {
			return nil, err
		}
		y, err := p.constExpr(e.Y, iota)
		if err != nil {
			return nil, err
		}
		return p.binary(e, x, y)

	case *ast.CallExpr:
		return p.conversion(e, iota)
	}

	return nil, p.errorf(expr, "cannot evaluate %s: %w", types.ExprString(expr), errNotConstant)
}

func (p *packageScope) binary(e *ast.BinaryExpr, x, y constant.Value) (constant.Value, error) {
	switch e.Op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		return p.apply(e, func() constant.Value { return constant.MakeBool(constant.Compare(x, e.Op, y)) })
	case token.SHL, token.SHR:
		s, ok := constant.Uint64Val(constant.ToInt(y))
		if !ok {
			return nil, p.errorf(e, "invalid shift count %s", y)
		}
		return p.apply(e, func() constant.Value { return constant.Shift(x, e.Op, uint(s)) })
	case token.QUO, token.REM:
		if (y.Kind() == constant.Int || y.Kind() == constant.Float) && constant.Sign(y) == 0 {
			return nil, p.errorf(e, "invalid operation: division by zero")
		}
		if e.Op == token.QUO && x.Kind() == constant.Int && y.Kind() == constant.Int {
			return p.apply(e, func() constant.Value { return constant.BinaryOp(x, token.QUO_ASSIGN, y) })
		}
	}
	return p.apply(e, func() constant.Value { return constant.BinaryOp(x, e.Op, y) })
}

// apply runs a go/constant operation, which panics on operands of
// mismatched kinds.
func (p *packageScope) apply(node ast.Node, op func() constant.Value) (v constant.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, p.errorf(node, "invalid operation %s", types.ExprString(node.(ast.Expr)))
		}
	}()
	v = op()
	if v.Kind() == constant.Unknown {
		return nil, p.errorf(node, "invalid operation %s", types.ExprString(node.(ast.Expr)))
	}
	return v, nil
}

// conversion evaluates T(x) for a constant x and the len builtin on
// constant strings.
func (p *packageScope) conversion(call *ast.CallExpr, iota int) (constant.Value, error) {
	if len(call.Args) != 1 {
		return nil, p.errorf(call, "cannot evaluate %s: %w", types.ExprString(call), errNotConstant)
	}
	x, err := p.constExpr(call.Args[0], iota)
	if err != nil {
		return nil, err
	}

	fun := typeString(call.Fun)
	if fun == "len" && x.Kind() == constant.String {
		return constant.MakeInt64(int64(len(constant.StringVal(x)))), nil
	}
	if p.basicOf(fun) == "" {
		return nil, p.errorf(call, "cannot evaluate %s: %w", types.ExprString(call), errNotConstant)
	}
	return p.convertConst(call, fun, x)
}

// constValue evaluates the named constant of p once.
func (p *packageScope) constValue(name string) (constant.Value, error) {
	c := p.consts[name]
	switch c.state {
	case constDone:
		return c.value, c.err
	case constEvaluating:
		return nil, fmt.Errorf("initialization cycle for %s", name)
	}

	c.state = constEvaluating
	if c.expr == nil {
		c.err = fmt.Errorf("missing init expr for %s", name)
	} else {
		c.value, c.err = p.constExpr(c.expr, c.iota)
		if c.err == nil && c.typ != "" && p.basicOf(c.typ) != "" {
			c.value, c.err = p.convertConst(c.expr, c.typ, c.value)
		}
	}
	c.state = constDone
	return c.value, c.err
}

// convertConst converts a constant to the representation of typ.
func (p *packageScope) convertConst(node ast.Node, typ string, v constant.Value) (constant.Value, error) {
	switch p.basicOf(typ) {
	case "int", "uint":
		iv := constant.ToInt(v)
		if iv.Kind() != constant.Int {
			return nil, p.errorf(node, "cannot use %s as %s value (truncated)", v, typ)
		}
		return iv, nil
	case "float32", "float64":
		fv := constant.ToFloat(v)
		if fv.Kind() != constant.Float && fv.Kind() != constant.Int {
			return nil, p.errorf(node, "cannot use %s as %s value", v, typ)
		}
		return fv, nil
	case "string":
		if v.Kind() != constant.String {
			return nil, p.errorf(node, "cannot use %s as %s value", v, typ)
		}
	case "bool":
		if v.Kind() != constant.Bool {
			return nil, p.errorf(node, "cannot use %s as %s value", v, typ)
		}
	}
	return v, nil
}

// convert turns a constant into the Go value encoding/json renders for a
// field of type typ.
func (p *packageScope) convert(node ast.Node, typ string, v constant.Value) (any, error) {
	basic := p.basicOf(typ)
	if basic == "" {
		return nil, p.errorf(node, "cannot use constant %s as %s value", v, typ)
	}
	v, err := p.convertConst(node, typ, v)
	if err != nil {
		return nil, err
	}

	switch basic {
	case "string":
		return constant.StringVal(v), nil
	case "bool":
		return constant.BoolVal(v), nil
	case "int":
		n, exact := constant.Int64Val(v)
		if !exact {
			return nil, p.errorf(node, "constant %s overflows %s", v, typ)
		}
		return n, nil
	case "uint":
		n, exact := constant.Uint64Val(v)
		if !exact {
			return nil, p.errorf(node, "constant %s overflows %s", v, typ)
		}
		return n, nil
	case "float32":
		f, _ := constant.Float32Val(v)
		return f, nil
	case "float64":
		f, _ := constant.Float64Val(v)
		return f, nil
	}

	switch v.Kind() {
	case constant.String:
		return constant.StringVal(v), nil
	case constant.Bool:
		return constant.BoolVal(v), nil
	case constant.Int:
		if n, exact := constant.Int64Val(v); exact {
			return n, nil
		}
	}
	f, _ := constant.Float64Val(constant.ToFloat(v))
	return f, nil
}

// basicOf follows named types to a basic kind. It returns "" for
// composite, struct and unknown types.
func (p *packageScope) basicOf(typ string) string {
	scope := p
	for range 8 {
		if kind, ok := basicKinds[typ]; ok {
			return kind
		}
		t, ok := scope.ResolveType(typ)
		if !ok || !t.IsTypeAlias {
			return ""
		}
		scope, typ = scopeOf(t, scope), t.BaseType
	}
	return ""
}

// zero returns the value encoding/json renders for the zero value of typ.
func (p *packageScope) zero(typ string, isPointer bool) (any, error) {
	if isPointer || isCollection(typ) {
		return nil, nil
	}
	if typ == "time.Time" {
		return zeroTime, nil
	}

	switch p.basicOf(typ) {
	case "string":
		return "", nil
	case "bool":
		return false, nil
	case "int":
		return int64(0), nil
	case "uint":
		return uint64(0), nil
	case "float32":
		return float32(0), nil
	case "float64":
		return float64(0), nil
	case "any":
		return nil, nil
	}

	t, ok := p.ResolveType(typ)
	if !ok {
		return nil, nil
	}
	if !t.IsTypeAlias {
		obj := model.NewObject()
		if err := scopeOf(t, p).zeroFill(obj, t); err != nil {
			return nil, err
		}
		return obj, nil
	}
	if isCollection(t.BaseType) {
		return nil, nil
	}
	leave, err := p.session.enter(t)
	if err != nil {
		return nil, err
	}
	defer leave()
	return scopeOf(t, p).zero(t.BaseType, false)
}

// zeroFill sets the zero values of the fields of the struct type t on obj.
func (p *packageScope) zeroFill(obj *model.Object, t *model.Type) error {
	leave, err := p.session.enter(t)
	if err != nil {
		return err
	}
	defer leave()
	return p.fill(obj, t, p, nil)
}

// enter marks t as being zeroed. A type reached again while it is marked
// contains itself, which the compiler rejects.
func (s *session) enter(t *model.Type) (func(), error) {
	if s.zeroing[t] {
		return nil, fmt.Errorf("invalid recursive type %s", t.Name)
	}
	s.zeroing[t] = true
	return func() { delete(s.zeroing, t) }, nil
}

// isEmpty mirrors the omitempty rule of encoding/json.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case int64:
		return x == 0
	case uint64:
		return x == 0
	case float32:
		return x == 0
	case float64:
		return x == 0
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func isCollection(typ string) bool {
	return strings.HasPrefix(typ, "[]") || strings.HasPrefix(typ, "map[")
}
