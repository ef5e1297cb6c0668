// Package export describes the structure of a model as YAML. Callbacks are
// not serialisable; the description names them so it can be reviewed or
// diffed alongside the code that defines the model.
package export

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/stateforward/go-rxhsm/embedded"
	"github.com/stateforward/go-rxhsm/kinds"
)

type Machine struct {
	ID          string       `yaml:"id"`
	Initial     string       `yaml:"initial"`
	States      []State      `yaml:"states"`
	Transitions []Transition `yaml:"transitions,omitempty"`
}

type State struct {
	Name      string       `yaml:"name"`
	Entry     string       `yaml:"entry,omitempty"`
	Exit      string       `yaml:"exit,omitempty"`
	Initial   string       `yaml:"initial,omitempty"`
	Internal  []Transition `yaml:"internal,omitempty"`
	Substates []State      `yaml:"substates,omitempty"`
}

type Transition struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Source string `yaml:"source"`
	Target string `yaml:"target,omitempty"`
	Guard  string `yaml:"guard,omitempty"`
	Effect string `yaml:"effect,omitempty"`
}

// Describe builds the description of model.
func Describe(model embedded.Model) Machine {
	machine := Machine{ID: model.Id()}
	if initial := model.Initial(); initial != nil {
		machine.Initial = initial.QualifiedName()
	}
	for _, top := range model.Tops() {
		machine.States = append(machine.States, describeState(top))
	}
	for _, transition := range model.Transitions() {
		machine.Transitions = append(machine.Transitions, describeTransition(transition))
	}
	return machine
}

func describeState(state embedded.State) State {
	description := State{
		Name:  state.QualifiedName(),
		Entry: state.Entry(),
		Exit:  state.Exit(),
	}
	if initial := state.InitialSubstate(); initial != nil {
		description.Initial = initial.QualifiedName()
	}
	for _, internal := range state.Internal() {
		description.Internal = append(description.Internal, describeTransition(internal))
	}
	for _, substate := range state.Substates() {
		description.Substates = append(description.Substates, describeState(substate))
	}
	return description
}

func describeTransition(transition embedded.Transition) Transition {
	kind := "external"
	switch {
	case kinds.IsKind(transition.Kind(), kinds.Internal):
		kind = "internal"
	case kinds.IsKind(transition.Kind(), kinds.Self):
		kind = "self"
	}
	return Transition{
		Name:   transition.QualifiedName(),
		Kind:   kind,
		Source: transition.Source(),
		Target: transition.Target(),
		Guard:  transition.Guard(),
		Effect: transition.Effect(),
	}
}

// YAML writes the description of model to writer.
func YAML(writer io.Writer, model embedded.Model) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(Describe(model)); err != nil {
		return fmt.Errorf("encode model %s: %w", model.Id(), err)
	}
	return encoder.Close()
}
