package loader

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/modelexport/internal/model"
)

// goSource lets fixtures use ~ in place of backquotes around struct tags.
func goSource(src string) string {
	return strings.ReplaceAll(src, "~", "`")
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(goSource(content)), 0644))
	}
}

func instanceJSON(t *testing.T, obj any) string {
	t.Helper()
	inst, ok := obj.(model.Instance)
	require.True(t, ok, "member is not a model instance: %T", obj)
	data, err := inst.Data()
	require.NoError(t, err)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return string(b)
}

func lookup(ns *Namespace, name string) (Member, bool) {
	for _, m := range ns.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

func memberNames(ns *Namespace) []string {
	names := make([]string, 0, len(ns.Members))
	for _, m := range ns.Members {
		names = append(names, m.Name)
	}
	return names
}

const shopOrder = `package models

import (
	"time"

	"example.com/shop/modelkit"
)

// Order is a customer order.
type Order struct {
	modelkit.BaseModel
	ID        int            ~json:"id" validate:"required,min=1"~
	Status    Status         ~json:"status"~
	Level     Level          ~json:"level,omitempty"~
	Tags      []string       ~json:"tags,omitempty"~
	Attrs     map[string]int ~json:"attrs,omitempty"~
	Total     float64        ~json:"total"~
	Timeout   time.Duration  ~json:"timeout,omitempty"~
	Customer  *Customer      ~json:"customer,omitempty"~
	CreatedAt time.Time      ~json:"created_at"~
	internal  string
}

type Customer struct {
	Entity
	Name string ~json:"name"~
}

type Entity struct {
	modelkit.BaseModel
	ID int ~json:"id"~
}

type helper struct{ N int }

const pageSize = 20

var DefaultOrder = Order{
	ID:      7,
	Status:  StatusOpen,
	Level:   High,
	Tags:    []string{"a", "b"},
	Attrs:   map[string]int{"b": 2, "a": 1},
	Total:   2.5 * 2,
	Timeout: 5 * time.Second,
	Customer: &Customer{
		Entity: Entity{ID: 3},
		Name:   "Ann",
	},
}

var Empty Order

var nothing *Order

func NewOrder() Order { return Order{} }

func (o Order) Valid() bool { return o.ID > 0 }
`

const shopStatus = `package models

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

type Level int

const (
	Low Level = iota
	Mid
	High
)
`

func shopTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"go.mod":               "module example.com/shop\n\ngo 1.22\n",
		"modelkit/modelkit.go": "package modelkit\n\ntype BaseModel struct{}\n",
		"models/order.go":      shopOrder,
		"models/status.go":     shopStatus,
		"models/order_test.go": "package models\n\nthis is not go\n",
		"seed/seed.go": `package seed

import "example.com/shop/models"

var Sample = models.Order{ID: 1, Status: models.StatusClosed}
`,
	})
	return root
}

func TestGoLoaderMembersInDeclarationOrder(t *testing.T) {
	root := shopTree(t)

	ns, err := NewGoLoader().Load(filepath.Join(root, "models", "order.go"))
	require.NoError(t, err)

	assert.Equal(t, "models", ns.Package)
	assert.Equal(t, []string{
		"Order", "Customer", "Entity", "helper", "pageSize",
		"DefaultOrder", "Empty", "nothing", "NewOrder",
	}, memberNames(ns))
}

func TestGoLoaderModelDefinitions(t *testing.T) {
	root := shopTree(t)

	ns, err := NewGoLoader().Load(filepath.Join(root, "models", "order.go"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		model bool
	}{
		{"Order", true},
		{"Customer", true}, // through Entity
		{"Entity", true},
		{"helper", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := lookup(ns, tt.name)
			require.True(t, ok)
			def, ok := m.Object.(model.Definition)
			require.True(t, ok)
			assert.Equal(t, tt.model, def.IsModel())
			assert.False(t, def.IsBase())
		})
	}

	m, _ := lookup(ns, "Order")
	order := m.Object.(*model.Type)
	assert.Equal(t, "Order is a customer order.", order.Description)
	assert.Len(t, order.Fields, 9, "unexported fields are skipped")
	assert.Equal(t, []string{"modelkit.BaseModel"}, order.EmbeddedTypes)
}

func TestGoLoaderSiblingEnums(t *testing.T) {
	root := shopTree(t)

	ns, err := NewGoLoader().Load(filepath.Join(root, "models", "order.go"))
	require.NoError(t, err)

	m, _ := lookup(ns, "Order")
	order := m.Object.(*model.Type)

	status, ok := order.Scope.ResolveType("Status")
	require.True(t, ok)
	assert.Equal(t, []string{"open", "closed"}, status.EnumValues)

	level, ok := order.Scope.ResolveType("Level")
	require.True(t, ok)
	assert.Equal(t, []string{"0", "1", "2"}, level.EnumValues)
}

func TestGoLoaderInstances(t *testing.T) {
	root := shopTree(t)

	ns, err := NewGoLoader().Load(filepath.Join(root, "models", "order.go"))
	require.NoError(t, err)

	m, ok := lookup(ns, "DefaultOrder")
	require.True(t, ok)
	assert.Equal(t, "Order", m.Object.(model.Instance).ModelName())
	assert.Equal(t,
		`{"id":7,"status":"open","level":2,"tags":["a","b"],"attrs":{"a":1,"b":2},"total":5,"timeout":5000000000,`+
			`"customer":{"id":3,"name":"Ann"},"created_at":"0001-01-01T00:00:00Z"}`,
		instanceJSON(t, m.Object))

	m, ok = lookup(ns, "Empty")
	require.True(t, ok)
	assert.Equal(t, `{"id":0,"status":"","total":0,"created_at":"0001-01-01T00:00:00Z"}`, instanceJSON(t, m.Object))

	m, ok = lookup(ns, "nothing")
	require.True(t, ok)
	assert.IsType(t, &Opaque{}, m.Object)
}

func TestGoLoaderLookupRoots(t *testing.T) {
	root := shopTree(t)
	unit := filepath.Join(root, "seed", "seed.go")

	ns, err := NewGoLoader(WithLookupRoots(root)).Load(unit)
	require.NoError(t, err)
	m, ok := lookup(ns, "Sample")
	require.True(t, ok)
	assert.Equal(t, `{"id":1,"status":"closed","total":0,"created_at":"0001-01-01T00:00:00Z"}`, instanceJSON(t, m.Object))

	_, err = NewGoLoader().Load(unit)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDependency)
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, unit, loadErr.Path)
}

func TestGoLoaderLocalBase(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"user.go": `package users

import "sync"

type BaseModel struct{}

type User struct {
	BaseModel
	Name  string ~json:"name"~
	Email string
}

var mu sync.Mutex

var Admin = &User{Name: "root", Email: "root@" + domain}

const domain = "example.com"
`,
	})

	ns, err := NewGoLoader().Load(filepath.Join(dir, "user.go"))
	require.NoError(t, err)

	m, _ := lookup(ns, "BaseModel")
	base := m.Object.(model.Definition)
	assert.True(t, base.IsBase())

	m, _ = lookup(ns, "User")
	assert.True(t, m.Object.(model.Definition).IsModel())

	m, _ = lookup(ns, "mu")
	assert.IsType(t, &Opaque{}, m.Object)

	m, _ = lookup(ns, "Admin")
	assert.Equal(t, `{"name":"root","Email":"root@example.com"}`, instanceJSON(t, m.Object))
}

func TestGoLoaderFailures(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod": "module example.com/vendor\n\ngo 1.22\n",
		"undefined/undefined.go": `package undefined

var Admin = Missing{}
`,
		"vendor/vendor.go": `package vendor

import "example.com/vendor/billing"

var Invoice = billing.Invoice{Total: 1}
`,
		"syntax/syntax.go": "package syntax\n\nvar = 1\n",
	})

	tests := []struct {
		name    string
		unit    string
		wantErr error
		message string
	}{
		{"undefined type", "undefined/undefined.go", nil, "undefined: Missing"},
		{"missing import", "vendor/vendor.go", ErrMissingDependency, "example.com/vendor/billing"},
		{"syntax error", "syntax/syntax.go", nil, "expected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGoLoader(WithLookupRoots(dir)).Load(filepath.Join(dir, filepath.FromSlash(tt.unit)))
			require.Error(t, err)

			var loadErr *LoadError
			assert.True(t, errors.As(err, &loadErr))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestGoLoaderUnitNotFound(t *testing.T) {
	_, err := NewGoLoader().Load(filepath.Join(t.TempDir(), "gone.go"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnitNotFound)

	var loadErr *LoadError
	assert.False(t, errors.As(err, &loadErr))
}

func TestGoLoaderReloadsEveryCall(t *testing.T) {
	dir := t.TempDir()
	unit := filepath.Join(dir, "a.go")
	writeFiles(t, dir, map[string]string{
		"a.go": "package a\n\ntype BaseModel struct{}\n\ntype A struct {\n\tBaseModel\n\tN int\n}\n\nvar One = A{N: 1}\n",
	})

	l := NewGoLoader()
	ns, err := l.Load(unit)
	require.NoError(t, err)
	m, _ := lookup(ns, "One")
	assert.Equal(t, `{"N":1}`, instanceJSON(t, m.Object))

	require.NoError(t, os.WriteFile(unit, []byte("package a\n\ntype BaseModel struct{}\n\ntype A struct {\n\tBaseModel\n\tN int\n}\n\nvar One = A{N: 2}\n"), 0644))
	ns, err = l.Load(unit)
	require.NoError(t, err)
	m, _ = lookup(ns, "One")
	assert.Equal(t, `{"N":2}`, instanceJSON(t, m.Object))
}

func TestGoLoaderDefinedStructTypes(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"types.go": `package types

type BaseModel struct{}

type Account struct {
	BaseModel
	Owner string ~json:"owner"~
}

// Premium is a paid account.
type Premium Account

type Same = Account
`,
	})

	ns, err := NewGoLoader().Load(filepath.Join(dir, "types.go"))
	require.NoError(t, err)

	m, _ := lookup(ns, "Premium")
	premium := m.Object.(*model.Type)
	assert.Equal(t, "Premium", premium.Name)
	assert.True(t, premium.IsModel())
	assert.Equal(t, "Premium is a paid account.", premium.Description)

	m, _ = lookup(ns, "Same")
	assert.Equal(t, "Account", m.Object.(*model.Type).Name)
}

func TestGoLoaderUnevaluatedInstances(t *testing.T) {
	dir := t.TempDir()
	unit := filepath.Join(dir, "call.go")
	writeFiles(t, dir, map[string]string{
		"call.go": `package call

type BaseModel struct{}

type User struct {
	BaseModel
	Name string
}

func name() string { return "x" }

func NewUser() *User { return &User{Name: name()} }

var Admin = User{Name: name()}

var Fresh = NewUser()

var Typed User = *NewUser()

var Converted = User(Admin)

var Label = name()
`,
	})

	ns, err := NewGoLoader().Load(unit)
	require.NoError(t, err, "instances are evaluated only when their data is requested")

	m, ok := lookup(ns, "User")
	require.True(t, ok)
	assert.True(t, m.Object.(model.Definition).IsModel())

	tests := []struct {
		name    string
		message string
	}{
		{"Admin", "name()"},
		{"Fresh", "NewUser()"},
		{"Typed", "*NewUser()"},
		{"Converted", "User(Admin)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := lookup(ns, tt.name)
			require.True(t, ok)
			inst, ok := m.Object.(model.Instance)
			require.True(t, ok, "member is not a model instance: %T", m.Object)
			assert.Equal(t, "User", inst.ModelName())

			_, err := inst.Data()
			require.Error(t, err)
			assert.ErrorIs(t, err, errNotConstant)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	m, ok = lookup(ns, "Label")
	require.True(t, ok)
	assert.IsType(t, &Opaque{}, m.Object)
}

func TestGoLoaderRecursiveTypes(t *testing.T) {
	dir := t.TempDir()
	unit := filepath.Join(dir, "cycle.go")
	writeFiles(t, dir, map[string]string{
		"cycle.go": `package cycle

type BaseModel struct{}

type A struct {
	BaseModel
	B B
}

type B struct{ A A }

type X Y

type Y X

type M struct {
	BaseModel
	V X
}

type P struct {
	BaseModel
	Q
}

type Q struct{ P }

type Node struct {
	BaseModel
	Next *Node ~json:"next"~
}

var First A

var Second M

var Third P

var Fourth = A{}

var List = Node{Next: &Node{}}
`,
	})

	ns, err := NewGoLoader().Load(unit)
	require.NoError(t, err)

	for _, name := range []string{"First", "Second", "Third", "Fourth"} {
		t.Run(name, func(t *testing.T) {
			m, ok := lookup(ns, name)
			require.True(t, ok)
			inst, ok := m.Object.(model.Instance)
			require.True(t, ok, "member is not a model instance: %T", m.Object)
			_, err := inst.Data()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid recursive type")
		})
	}

	m, ok := lookup(ns, "List")
	require.True(t, ok)
	assert.Equal(t, `{"next":{"next":null}}`, instanceJSON(t, m.Object))
}

func TestGoLoaderExternalPackages(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "cache")
	t.Setenv("GOMODCACHE", cache)
	writeFiles(t, dir, map[string]string{
		"app/go.mod": `module example.com/app

go 1.22

require (
	example.com/kit v1.2.0
	example.com/shared v0.1.0
	github.com/spf13/cobra v1.8.0
)

replace example.com/shared => ../shared
`,
		"app/main.go": `package app

import (
	"example.com/kit"
	"example.com/shared"
	"github.com/spf13/cobra"
)

type BaseModel struct{}

type Config struct {
	BaseModel
	Name string ~json:"name"~
}

var rootCmd = &cobra.Command{Use: "app"}

var flags = cobra.PositionalArgs(nil)

var Default = Config{Name: "app"}

var Invoice = shared.Invoice{Total: 3}

var Tool = kit.Tool{Name: "hammer"}
`,
		"shared/go.mod":    "module example.com/shared\n",
		"shared/shared.go": "package shared\n\ntype BaseModel struct{}\n\ntype Invoice struct {\n\tBaseModel\n\tTotal int ~json:\"total\"~\n}\n",
		"cache/example.com/kit@v1.2.0/kit.go": "package kit\n\ntype BaseModel struct{}\n\ntype Tool struct {\n\tBaseModel\n\tName string ~json:\"name\"~\n}\n",
	})
	root := filepath.Join(dir, "app")

	ns, err := NewGoLoader(WithLookupRoots(root)).Load(filepath.Join(root, "main.go"))
	require.NoError(t, err, "types of unavailable third-party packages do not fail the unit")

	for _, name := range []string{"rootCmd", "flags"} {
		m, ok := lookup(ns, name)
		require.True(t, ok)
		assert.IsType(t, &Opaque{}, m.Object, name)
	}

	m, ok := lookup(ns, "Config")
	require.True(t, ok)
	assert.True(t, m.Object.(model.Definition).IsModel())

	m, _ = lookup(ns, "Default")
	assert.Equal(t, `{"name":"app"}`, instanceJSON(t, m.Object))

	m, _ = lookup(ns, "Invoice")
	assert.Equal(t, `{"total":3}`, instanceJSON(t, m.Object), "local replacement")

	m, _ = lookup(ns, "Tool")
	assert.Equal(t, `{"name":"hammer"}`, instanceJSON(t, m.Object), "module cache")
}
