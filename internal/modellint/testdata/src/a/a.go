package a

import (
	"strings"
	"time"
)

type BaseModel struct{}

type Status string

type Account struct {
	BaseModel
	ID       int           `json:"id"`
	Name     string        `json:"name" validate:"required"`
	Alias    string        `json:"name,omitempty"` // want `duplicate JSON property "name" in model Account`
	Hidden   string        `json:"-"`
	Ignored  string        `json:"-"`
	secret   string        `json:"secret"` // want "json tag on unexported field secret of model Account has no effect"
	internal string
	Status   Status        `json:"status"`
	Timeout  time.Duration `json:"timeout,omitempty"`
	Label    string
	Other    string `json:"Label"` // want `duplicate JSON property "Label"`
}

type Meta struct {
	Version int `json:"version"`
}

// Admin is a model through Account.
type Admin struct {
	Account
	Meta  `json:"meta"`
	Level int `json:"level"`
	Root  bool `json:"meta"` // want `duplicate JSON property "meta" in model Admin`
}

// Plain structs are not models and are not checked.
type Plain struct {
	A string `json:"a"`
	B string `json:"a"`
	c string `json:"c"`
}

const prefix = "acct-"

var Valid = Account{
	ID:      1,
	Name:    prefix + "one",
	Status:  Status("open"),
	Timeout: 5 * time.Second,
}

var ValidAdmin = &Admin{Account: Account{ID: len(prefix)}, Level: 2}

var Computed = Account{Name: strings.ToUpper("x")} // want "call to strings.ToUpper in model instance Computed cannot be evaluated statically"

var Unkeyed = Meta{1}

var Positional = Admin{Meta: Meta{3}, Level: 1} // want "unkeyed struct literal in model instance Positional cannot be exported"

var Nested = Admin{
	Account: Account{}, Meta: Meta{Version: 1},
	Level: newLevel(), // want "call to newLevel in model instance Nested cannot be evaluated statically"
}

var Built = build() // want "call to build in model instance Built cannot be evaluated statically"

var Literal = Admin{Account{}, Meta{}, 1, false} // want "unkeyed struct literal in model instance Literal cannot be exported"

var Zero Account

var plain = Plain{"a", "b", "c"}

var nothing = func() int { return 1 }()

func newLevel() int { return 1 }

func build() Account { return Account{} }
