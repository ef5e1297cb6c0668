package hsm

import (
	"slices"
)

// ancestors maps every state of the forest to the chain of states strictly
// containing it, outermost first. Built once, read-only afterwards.
type ancestors map[*state][]*state

func buildAncestors(tops []*state) (ancestors, error) {
	if len(tops) == 0 {
		return nil, &ConfigurationError{Err: ErrNoTopStates}
	}
	index := ancestors{}
	var walk func(state *state, chain []*state)
	walk = func(state *state, chain []*state) {
		index[state] = chain
		nested := append(slices.Clone(chain), state)
		for _, substate := range state.substates {
			walk(substate, nested)
		}
	}
	for _, top := range tops {
		walk(top, []*state{})
	}
	return index, nil
}

// configuration returns the root-to-leaf chain ending at state.
func (index ancestors) configuration(state *state) []*state {
	return append(slices.Clone(index[state]), state)
}
