// Package embedded declares the read-only view of a built model shared by
// the runtime and the exporters.
package embedded

import (
	"context"
)

type Element interface {
	Kind() uint64
	Id() string
}

type NamedElement interface {
	Element
	Owner() string
	QualifiedName() string
	Name() string
}

type Model interface {
	NamedElement
	Namespace() map[string]NamedElement
	Tops() []State
	Initial() State
	Transitions() []Transition
}

type State interface {
	NamedElement
	Substates() []State
	InitialSubstate() State
	Entry() string
	Exit() string
	Internal() []Transition
}

type Transition interface {
	NamedElement
	Source() string
	// Target is empty for internal transitions.
	Target() string
	Guard() string
	Effect() string
	// Event identifies the event source the transition is bound to.
	Event() any
}

type Active interface {
	context.Context
	NamedElement
	State() string
	Configuration() []string
	Terminate()
}
