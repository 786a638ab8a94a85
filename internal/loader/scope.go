package loader

import (
	"errors"
	"fmt"
	"go/ast"
	"go/build"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"

	"github.com/example/modelexport/internal/model"
)

var (
	// errStandardPackage marks imports that look like standard library paths
	// and are not found in any lookup root. Their types are treated as opaque.
	errStandardPackage = errors.New("standard library package")
	// errExternalPackage marks imports of other modules that cannot be found
	// in the lookup roots or the module cache. Their types are opaque too.
	errExternalPackage = errors.New("external package")
)

// opaqueImport reports whether err marks an import whose types are skipped
// instead of failing the unit.
func opaqueImport(err error) bool {
	return errors.Is(err, errStandardPackage) || errors.Is(err, errExternalPackage)
}

type importSpec struct {
	name string // explicit import name, empty when implicit
	path string
}

type pkgEntry struct {
	pkg *packageScope
	err error
}

// session holds every package parsed while loading one unit. Nothing is
// shared between loads.
type session struct {
	fset    *token.FileSet
	roots   []string
	home    string // module path of the unit, empty outside a module
	pkgs    map[string]pkgEntry
	modules map[string]*goMod
	zeroing map[*model.Type]bool
}

// goMod is the parsed go.mod of a lookup root. file is nil when the root has
// no go.mod or it does not parse.
type goMod struct {
	path string
	file *modfile.File
}

func newSession(roots []string) *session {
	return &session{
		fset:    token.NewFileSet(),
		roots:   roots,
		pkgs:    make(map[string]pkgEntry),
		modules: make(map[string]*goMod),
		zeroing: make(map[*model.Type]bool),
	}
}

// packageScope is the set of declarations visible to the files of one
// package. It implements model.Resolver.
type packageScope struct {
	session *session
	dir     string
	path    string
	name    string

	files     []*ast.File
	filePaths map[*ast.File]string
	imports   []importSpec
	types     map[string]*model.Type
	aliases   map[string]bool
	consts    map[string]*constDecl
	constList []string
	funcs     map[string]*ast.FuncType
}

func (s *session) newPackage(dir, path string) *packageScope {
	return &packageScope{
		session:   s,
		dir:       dir,
		path:      path,
		filePaths: make(map[*ast.File]string),
		types:     make(map[string]*model.Type),
		aliases:   make(map[string]bool),
		consts:    make(map[string]*constDecl),
		funcs:     make(map[string]*ast.FuncType),
	}
}

func (p *packageScope) addFile(path string, file *ast.File) {
	if p.name == "" {
		p.name = file.Name.Name
	}
	p.files = append(p.files, file)
	p.filePaths[file] = path

	for _, imp := range file.Imports {
		spec := importSpec{path: strings.Trim(imp.Path.Value, "\"`")}
		if imp.Name != nil {
			spec.name = imp.Name.Name
		}
		p.imports = append(p.imports, spec)
	}
}

// parseDir adds the non-test Go files of the package directory, skipping
// the file at skip. Files declaring a different package are ignored. With
// strict unset, files that fail to parse are ignored as well.
func (p *packageScope) parseDir(skip string, strict bool) error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		path := filepath.Join(p.dir, name)
		if path == skip {
			continue
		}

		file, err := parser.ParseFile(p.session.fset, path, nil, parser.ParseComments)
		if err != nil {
			if strict {
				return err
			}
			continue
		}
		if p.name != "" && file.Name.Name != p.name {
			continue
		}
		p.addFile(path, file)
	}

	if len(p.files) == 0 {
		return fmt.Errorf("no Go files in %s", p.dir)
	}
	return nil
}

// index extracts types and constants from every file of the package and
// marks the model types.
func (p *packageScope) index() {
	for _, file := range p.files {
		p.extractTypes(p.filePaths[file], file)
		p.collectConsts(file)
		p.collectFuncs(file)
	}
	p.resolveDefinedStructs()
	p.extractEnumValues()

	for _, t := range p.types {
		t.Model = p.isModel(t, map[*model.Type]bool{})
	}
}

// collectFuncs records the signatures of the package-level functions.
func (p *packageScope) collectFuncs(file *ast.File) {
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv == nil {
			p.funcs[fn.Name.Name] = fn.Type
		}
	}
}

// isModel reports whether t embeds the model marker, directly or through
// another model type.
func (p *packageScope) isModel(t *model.Type, visiting map[*model.Type]bool) bool {
	if t.Base || t.Model {
		return true
	}
	if t.IsTypeAlias || visiting[t] {
		return false
	}
	visiting[t] = true

	scope := scopeOf(t, p)
	for _, embedded := range t.EmbeddedTypes {
		if model.IsBaseMarker(embedded) {
			return true
		}
		if et, ok := scope.ResolveType(embedded); ok && scope.isModel(et, visiting) {
			return true
		}
	}
	return false
}

// ResolveType looks up a type name as written in this package's source.
func (p *packageScope) ResolveType(name string) (*model.Type, bool) {
	name = strings.TrimPrefix(name, "*")
	if i := strings.Index(name, "."); i >= 0 {
		dep, err := p.importScope(name[:i])
		if err != nil {
			return nil, false
		}
		t, ok := dep.types[name[i+1:]]
		return t, ok
	}
	t, ok := p.types[name]
	return t, ok
}

// importScope returns the package imported under alias.
func (p *packageScope) importScope(alias string) (*packageScope, error) {
	for _, imp := range p.imports {
		if imp.name == alias || (imp.name == "" && guessPackageName(imp.path) == alias) {
			return p.session.importPackage(imp.path)
		}
	}

	// The package name may differ from the last path element.
	for _, imp := range p.imports {
		if imp.name != "" {
			continue
		}
		if dep, err := p.session.importPackage(imp.path); err == nil && dep.name == alias {
			return dep, nil
		}
	}
	return nil, fmt.Errorf("undefined: %s", alias)
}

func (p *packageScope) errorf(node ast.Node, format string, args ...any) error {
	pos := p.session.fset.Position(node.Pos())
	return fmt.Errorf("%s: %w", pos, fmt.Errorf(format, args...))
}

func scopeOf(t *model.Type, fallback *packageScope) *packageScope {
	if s, ok := t.Scope.(*packageScope); ok {
		return s
	}
	return fallback
}

// importPackage parses and indexes the package at import path.
func (s *session) importPackage(path string) (*packageScope, error) {
	if entry, ok := s.pkgs[path]; ok {
		return entry.pkg, entry.err
	}

	dir, ok := s.locate(path)
	if !ok {
		dir, ok = s.locateRequired(path)
	}
	if !ok {
		var err error
		switch {
		case isStandardPath(path):
			err = errStandardPackage
		case s.isLocal(path):
			err = fmt.Errorf("%w: cannot find package %q in lookup roots", ErrMissingDependency, path)
		default:
			err = fmt.Errorf("%w: %s", errExternalPackage, path)
		}
		s.pkgs[path] = pkgEntry{err: err}
		return nil, err
	}

	pkg := s.newPackage(dir, path)
	s.pkgs[path] = pkgEntry{pkg: pkg}
	if err := pkg.parseDir("", true); err != nil {
		kind := ErrMissingDependency
		if !s.isLocal(path) {
			kind = errExternalPackage
		}
		err = fmt.Errorf("%w: import %q: %v", kind, path, err)
		s.pkgs[path] = pkgEntry{err: err}
		return nil, err
	}
	pkg.index()
	return pkg, nil
}

// locate maps an import path to a directory under one of the lookup roots.
// A root holding a go.mod resolves paths inside its module; otherwise the
// longest suffix of the import path that exists under the root wins.
func (s *session) locate(path string) (string, bool) {
	for _, root := range s.roots {
		if mod := s.modulePath(root); mod != "" {
			if rel, ok := strings.CutPrefix(path, mod); ok && (rel == "" || rel[0] == '/') {
				if dir := filepath.Join(root, filepath.FromSlash(rel)); hasGoFiles(dir) {
					return dir, true
				}
			}
		}

		if isStandardPath(path) {
			if dir := filepath.Join(root, filepath.FromSlash(path)); hasGoFiles(dir) {
				return dir, true
			}
			continue
		}

		elems := strings.Split(path, "/")
		for i := range elems {
			if dir := filepath.Join(root, filepath.Join(elems[i:]...)); hasGoFiles(dir) {
				return dir, true
			}
		}
	}
	return "", false
}

// locateRequired maps an import path to a module required by the go.mod of
// a lookup root. Replacements with a local directory resolve against the
// root; every other module resolves in the module cache.
func (s *session) locateRequired(path string) (string, bool) {
	for _, root := range s.roots {
		mf := s.goMod(root).file
		if mf == nil {
			continue
		}
		for _, req := range mf.Require {
			rel, ok := strings.CutPrefix(path, req.Mod.Path)
			if !ok || (rel != "" && rel[0] != '/') {
				continue
			}
			modDir, ok := moduleDir(root, mf, req.Mod)
			if !ok {
				continue
			}
			if dir := filepath.Join(modDir, filepath.FromSlash(rel)); hasGoFiles(dir) {
				return dir, true
			}
		}
	}
	return "", false
}

func moduleDir(root string, mf *modfile.File, mod module.Version) (string, bool) {
	for _, rep := range mf.Replace {
		if rep.Old.Path != mod.Path || (rep.Old.Version != "" && rep.Old.Version != mod.Version) {
			continue
		}
		if rep.New.Version == "" {
			dir := filepath.FromSlash(rep.New.Path)
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(root, dir)
			}
			return dir, true
		}
		mod = rep.New
		break
	}

	cache := moduleCache()
	if cache == "" {
		return "", false
	}
	escPath, err := module.EscapePath(mod.Path)
	if err != nil {
		return "", false
	}
	escVersion, err := module.EscapeVersion(mod.Version)
	if err != nil {
		return "", false
	}
	return filepath.Join(cache, filepath.FromSlash(escPath)+"@"+escVersion), true
}

// moduleCache returns the directory the go command downloads modules to.
func moduleCache() string {
	if dir := os.Getenv("GOMODCACHE"); dir != "" {
		return dir
	}
	gopath := filepath.SplitList(build.Default.GOPATH)
	if len(gopath) == 0 || gopath[0] == "" {
		return ""
	}
	return filepath.Join(gopath[0], "pkg", "mod")
}

// isLocal reports whether path belongs to the unit's module or to the
// module of a lookup root. Such imports must resolve.
func (s *session) isLocal(path string) bool {
	mods := []string{s.home}
	for _, root := range s.roots {
		mods = append(mods, s.modulePath(root))
	}
	for _, mod := range mods {
		if mod == "" {
			continue
		}
		if rel, ok := strings.CutPrefix(path, mod); ok && (rel == "" || rel[0] == '/') {
			return true
		}
	}
	return false
}

func (s *session) modulePath(root string) string {
	return s.goMod(root).path
}

func (s *session) goMod(root string) *goMod {
	if mod, ok := s.modules[root]; ok {
		return mod
	}
	mod := &goMod{}
	gomod := filepath.Join(root, "go.mod")
	if data, err := os.ReadFile(gomod); err == nil {
		mod.path = modfile.ModulePath(data)
		if f, err := modfile.Parse(gomod, data, nil); err == nil {
			mod.file = f
		}
	}
	s.modules[root] = mod
	return mod
}

// enclosingModule returns the module path of the nearest go.mod at or
// above dir.
func enclosingModule(dir string) string {
	for {
		if data, err := os.ReadFile(filepath.Join(dir, "go.mod")); err == nil {
			return modfile.ModulePath(data)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func hasGoFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go") {
			return true
		}
	}
	return false
}

// isStandardPath reports whether path looks like a standard library import,
// whose first element carries no dot.
func isStandardPath(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return !strings.Contains(first, ".")
}

// guessPackageName derives the conventional package name of an import path.
func guessPackageName(path string) string {
	elems := strings.Split(path, "/")
	name := elems[len(elems)-1]
	if len(elems) > 1 && isMajorVersion(name) {
		name = elems[len(elems)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 {
		name = name[:i]
	}
	return strings.TrimPrefix(name, "go-")
}

func isMajorVersion(elem string) bool {
	if len(elem) < 2 || elem[0] != 'v' {
		return false
	}
	for _, r := range elem[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
