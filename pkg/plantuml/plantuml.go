// Package plantuml renders a model as a PlantUML state diagram.
package plantuml

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/stateforward/go-rxhsm/embedded"
	"github.com/stateforward/go-rxhsm/kinds"
)

func idFromQualifiedName(qualifiedName string) string {
	return strings.ReplaceAll(strings.ReplaceAll(strings.TrimPrefix(qualifiedName, "/"), "-", "_"), "/", ".")
}

func label(transition embedded.Transition) string {
	label := transition.Name()
	if guard := transition.Guard(); guard != "" {
		label = fmt.Sprintf("%s [%s]", label, strings.TrimPrefix(path.Base(guard), "."))
	}
	if effect := transition.Effect(); effect != "" {
		label = fmt.Sprintf("%s / %s", label, strings.TrimPrefix(path.Base(effect), "."))
	}
	return label
}

func generateState(builder *strings.Builder, depth int, state embedded.State) {
	id := idFromQualifiedName(state.QualifiedName())
	indent := strings.Repeat(" ", depth*2)
	substates := state.Substates()
	if len(substates) > 0 {
		fmt.Fprintf(builder, "%sstate %s {\n", indent, id)
		if initial := state.InitialSubstate(); initial != nil {
			fmt.Fprintf(builder, "%s  [*] --> %s\n", indent, idFromQualifiedName(initial.QualifiedName()))
		}
		for _, substate := range substates {
			generateState(builder, depth+1, substate)
		}
		fmt.Fprintf(builder, "%s}\n", indent)
	} else {
		fmt.Fprintf(builder, "%sstate %s\n", indent, id)
	}
	if entry := state.Entry(); entry != "" {
		fmt.Fprintf(builder, "%sstate %s : entry / %s\n", indent, id, strings.TrimPrefix(path.Base(entry), "."))
	}
	if exit := state.Exit(); exit != "" {
		fmt.Fprintf(builder, "%sstate %s : exit / %s\n", indent, id, strings.TrimPrefix(path.Base(exit), "."))
	}
	for _, internal := range state.Internal() {
		fmt.Fprintf(builder, "%sstate %s : %s\n", indent, id, label(internal))
	}
}

func generateTransition(builder *strings.Builder, transition embedded.Transition) {
	source := idFromQualifiedName(transition.Source())
	target := idFromQualifiedName(transition.Target())
	arrow := "---->"
	if kinds.IsKind(transition.Kind(), kinds.Self) {
		arrow = "-->"
	}
	fmt.Fprintf(builder, "%s %s %s : %s\n", source, arrow, target, label(transition))
}

// Generate writes the diagram of model to writer. Top states and
// transitions keep their declaration order.
func Generate(writer io.Writer, model embedded.Model) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "@startuml %s\n", model.Id())
	for _, top := range model.Tops() {
		generateState(&builder, 0, top)
	}
	if initial := model.Initial(); initial != nil {
		fmt.Fprintf(&builder, "[*] --> %s\n", idFromQualifiedName(initial.QualifiedName()))
	}
	for _, transition := range model.Transitions() {
		generateTransition(&builder, transition)
	}
	fmt.Fprintln(&builder, "@enduml")
	_, err := io.WriteString(writer, builder.String())
	return err
}
