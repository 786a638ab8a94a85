package loader

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"

	"github.com/example/modelexport/internal/model"
)

// GoLoader loads Go source files. Model types are the struct types that
// embed modelkit.BaseModel; model instances are package-level variables
// initialized with a constant literal of a model type.
//
// The files of the unit's package that sit next to it are parsed too, so
// the unit can use their types and constants. Imported packages are
// resolved against the lookup roots and the modules their go.mod requires.
// Packages of other modules that cannot be found are opaque: variables of
// their types are not model instances.
//
// A model instance whose initializer cannot be evaluated is still loaded;
// the evaluation error is returned when its data is requested.
type GoLoader struct {
	lookupRoots []string
}

// NewGoLoader creates a Go loader.
func NewGoLoader(opts ...Option) *GoLoader {
	l := &GoLoader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load parses and evaluates the unit at path.
func (l *GoLoader) Load(path string) (*Namespace, error) {
	if err := statUnit(path); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	s := newSession(l.lookupRoots)
	s.home = enclosingModule(filepath.Dir(abs))
	file, err := parser.ParseFile(s.fset, abs, nil, parser.ParseComments)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	pkg := s.newPackage(filepath.Dir(abs), "")
	pkg.addFile(abs, file)
	if err := pkg.parseDir(abs, false); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	pkg.index()

	ns := &Namespace{Unit: abs, Package: pkg.name}
	known := make(map[string]*model.Record)
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv != nil || d.Name.Name == "init" || d.Name.Name == "_" {
				continue
			}
			ns.Members = append(ns.Members, Member{Name: d.Name.Name, Object: &Opaque{Kind: "func"}})
		case *ast.GenDecl:
			if err := pkg.declare(ns, d, known); err != nil {
				return nil, &LoadError{Path: path, Err: err}
			}
		}
	}
	return ns, nil
}

// declare adds the names bound by a declaration to ns.
func (p *packageScope) declare(ns *Namespace, decl *ast.GenDecl, known map[string]*model.Record) error {
	switch decl.Tok {
	case token.TYPE:
		for _, spec := range decl.Specs {
			typeSpec := spec.(*ast.TypeSpec)
			name := typeSpec.Name.Name
			if name == "_" {
				continue
			}
			if t, ok := p.types[name]; ok {
				ns.Members = append(ns.Members, Member{Name: name, Object: t})
				continue
			}
			ns.Members = append(ns.Members, Member{Name: name, Object: &Opaque{Kind: "type"}})
		}

	case token.CONST:
		for _, spec := range decl.Specs {
			for _, name := range spec.(*ast.ValueSpec).Names {
				if name.Name != "_" {
					ns.Members = append(ns.Members, Member{Name: name.Name, Object: &Opaque{Kind: "const"}})
				}
			}
		}

	case token.VAR:
		for _, spec := range decl.Specs {
			valueSpec := spec.(*ast.ValueSpec)
			for i, name := range valueSpec.Names {
				if name.Name == "_" {
					continue
				}
				rec, err := p.instance(valueSpec, i, known)
				if err != nil {
					return err
				}
				if rec == nil {
					ns.Members = append(ns.Members, Member{Name: name.Name, Object: &Opaque{Kind: "var"}})
					continue
				}
				known[name.Name] = rec
				ns.Members = append(ns.Members, Member{Name: name.Name, Object: rec})
			}
		}
	}
	return nil
}
