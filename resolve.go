package hsm

import (
	"github.com/stateforward/go-rxhsm/pkg/set"
)

// Resolve returns the transitions live while leaf is active. Candidates are
// visited from leaf outwards through ancestors (given outermost first) and,
// per event key, only the first one met is kept: a handler registered by an
// inner state shadows handlers of its ancestors for the same event.
func Resolve[S comparable, T any](leaf S, ancestors []S, registry map[S][]T, key func(T) any) []T {
	seen := set.New[any]()
	live := []T{}
	visit := func(source S) {
		for _, candidate := range registry[source] {
			if seen.Add(key(candidate)) {
				live = append(live, candidate)
			}
		}
	}
	visit(leaf)
	for i := len(ancestors) - 1; i >= 0; i-- {
		visit(ancestors[i])
	}
	return live
}
