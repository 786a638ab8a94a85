package loader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/example/modelexport/internal/model"
)

const maxCUEDepth = 32

// CUELoader loads CUE files. Definitions whose value is a struct are model
// types; regular fields holding concrete structs are model instances.
type CUELoader struct{}

// NewCUELoader creates a CUE loader.
func NewCUELoader() *CUELoader {
	return &CUELoader{}
}

// Load compiles the unit at path and lists its top-level fields.
func (l *CUELoader) Load(path string) (*Namespace, error) {
	if err := statUnit(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	iter, err := v.Fields(cue.Definitions(true))
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	abs, _ := filepath.Abs(path)
	ns := &Namespace{Unit: abs}
	for iter.Next() {
		sel := iter.Selector()
		if sel.LabelType().IsHidden() {
			continue
		}
		val := iter.Value()

		if sel.IsDefinition() {
			name := strings.TrimPrefix(sel.String(), "#")
			ns.Members = append(ns.Members, Member{Name: name, Object: &cueDefinition{name: name, value: val}})
			continue
		}

		name := labelName(sel)
		if val.Kind() == cue.StructKind && val.Validate(cue.Concrete(true)) == nil {
			ns.Members = append(ns.Members, Member{Name: name, Object: &cueInstance{name: name, value: val}})
			continue
		}
		ns.Members = append(ns.Members, Member{Name: name, Object: &Opaque{Kind: val.IncompleteKind().String()}})
	}
	return ns, nil
}

func labelName(sel cue.Selector) string {
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return strings.TrimSuffix(strings.TrimPrefix(sel.String(), "#"), "?")
}

// cueDefinition is a CUE definition exposed as a model type.
type cueDefinition struct {
	name  string
	value cue.Value
}

func (d *cueDefinition) DefinitionName() string { return d.name }

func (d *cueDefinition) IsModel() bool { return d.value.IncompleteKind() == cue.StructKind }

func (d *cueDefinition) IsBase() bool { return d.name == model.BaseModelName }

func (d *cueDefinition) JSONSchema(dialect model.Dialect) (*model.Schema, error) {
	s, err := cueSchema(d.value, 0)
	if err != nil {
		return nil, err
	}
	s.Title = d.name
	dialect.Normalize(s)
	return s, nil
}

// cueInstance is a concrete CUE struct exposed as a model instance.
type cueInstance struct {
	name  string
	value cue.Value
}

func (i *cueInstance) ModelName() string { return i.name }

// Data returns the struct as JSON. Field order follows the CUE source.
func (i *cueInstance) Data() (any, error) {
	b, err := i.value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// cueSchema describes a CUE value. References are already resolved by
// evaluation, so nested definitions are inlined.
func cueSchema(v cue.Value, depth int) (*model.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, err
	}
	s := &model.Schema{Description: cueDoc(v)}
	if depth > maxCUEDepth {
		return s, nil
	}

	if dv, ok := v.Default(); ok && dv.IsConcrete() {
		var x any
		if err := dv.Decode(&x); err == nil {
			s.Default = x
		}
	}

	kind := v.IncompleteKind()
	if kind&cue.NullKind != 0 && kind != cue.NullKind {
		s.Nullable = true
		kind &^= cue.NullKind
	}

	switch kind {
	case cue.StructKind:
		s.Type = "object"
		s.Properties = make(map[string]*model.Schema)
		iter, err := v.Fields(cue.Optional(true))
		if err != nil {
			return nil, err
		}
		for iter.Next() {
			name := labelName(iter.Selector())
			sub, err := cueSchema(iter.Value(), depth+1)
			if err != nil {
				return nil, err
			}
			s.Properties[name] = sub
			if !iter.IsOptional() {
				s.Required = append(s.Required, name)
			}
		}
		if !v.Allows(cue.AnyString) {
			s.AdditionalProperties = false
		}
	case cue.ListKind:
		s.Type = "array"
		if elem := v.LookupPath(cue.MakePath(cue.AnyIndex)); elem.Exists() {
			items, err := cueSchema(elem, depth+1)
			if err != nil {
				return nil, err
			}
			s.Items = items
		}
	case cue.StringKind:
		s.Type = "string"
	case cue.BytesKind:
		s.Type, s.Format = "string", "byte"
	case cue.IntKind:
		s.Type = "integer"
	case cue.FloatKind, cue.NumberKind:
		s.Type = "number"
	case cue.BoolKind:
		s.Type = "boolean"
	case cue.NullKind:
		s.Type = "null"
	}

	s.Enum = cueEnum(v)
	applyCUEBounds(v, s)
	return s, nil
}

func cueDoc(v cue.Value) string {
	var parts []string
	for _, cg := range v.Doc() {
		if text := strings.TrimSpace(cg.Text()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// cueEnum lists the alternatives of a disjunction of concrete values.
func cueEnum(v cue.Value) []interface{} {
	op, args := v.Expr()
	if op != cue.OrOp || len(args) < 2 {
		return nil
	}
	values := make([]interface{}, 0, len(args))
	for _, arg := range args {
		if !arg.IsConcrete() || arg.IncompleteKind() == cue.StructKind || arg.IncompleteKind() == cue.ListKind {
			return nil
		}
		var x any
		if err := arg.Decode(&x); err != nil {
			return nil
		}
		values = append(values, x)
	}
	return values
}

// applyCUEBounds maps numeric bounds and regular expression constraints.
func applyCUEBounds(v cue.Value, s *model.Schema) {
	op, args := v.Expr()
	switch op {
	case cue.AndOp:
		for _, arg := range args {
			applyCUEBounds(arg, s)
		}
	case cue.GreaterThanOp, cue.GreaterThanEqualOp, cue.LessThanOp, cue.LessThanEqualOp:
		if len(args) != 1 || (s.Type != "integer" && s.Type != "number") {
			return
		}
		f, err := args[0].Float64()
		if err != nil {
			return
		}
		switch op {
		case cue.GreaterThanOp:
			s.Minimum, s.ExclusiveMinimum = &f, true
		case cue.GreaterThanEqualOp:
			s.Minimum = &f
		case cue.LessThanOp:
			s.Maximum, s.ExclusiveMaximum = &f, true
		case cue.LessThanEqualOp:
			s.Maximum = &f
		}
	case cue.RegexMatchOp:
		if len(args) != 1 {
			return
		}
		if pattern, err := args[0].String(); err == nil {
			s.Pattern = pattern
		}
	}
}
