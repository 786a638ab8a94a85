// Package discovery finds the members of a loaded unit that satisfy the
// model capability.
package discovery

import (
	"errors"
	"fmt"

	"github.com/example/modelexport/internal/loader"
	"github.com/example/modelexport/internal/model"
)

// Mode selects the capability predicate.
type Mode int

const (
	// InstanceMode matches model instances.
	InstanceMode Mode = iota
	// DefinitionMode matches model types, excluding the base marker.
	DefinitionMode
)

func (m Mode) String() string {
	switch m {
	case InstanceMode:
		return "instance"
	case DefinitionMode:
		return "definition"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ErrNoNamespace is returned when there is no namespace to enumerate.
var ErrNoNamespace = errors.New("namespace is nil")

// Member is a namespace member that satisfies the active predicate.
// Exactly one of Definition and Instance is set.
type Member struct {
	Name       string
	Definition model.Definition
	Instance   model.Instance
}

// Discover returns the matching members of ns in declaration order. No
// match is an empty result, not an error.
func Discover(ns *loader.Namespace, mode Mode) ([]Member, error) {
	if ns == nil {
		return nil, ErrNoNamespace
	}

	var members []Member
	for _, m := range ns.Members {
		if match, ok := Match(m, mode); ok {
			members = append(members, match)
		}
	}
	return members, nil
}

// Match applies the predicate of mode to one namespace member.
func Match(m loader.Member, mode Mode) (Member, bool) {
	switch mode {
	case InstanceMode:
		if inst, ok := m.Object.(model.Instance); ok {
			return Member{Name: m.Name, Instance: inst}, true
		}
	case DefinitionMode:
		if def, ok := m.Object.(model.Definition); ok && def.IsModel() && !def.IsBase() {
			return Member{Name: m.Name, Definition: def}, true
		}
	}
	return Member{}, false
}
