package hsm

import (
	"slices"
)

// Path is the set of states to exit and to enter when moving between two
// configurations. Exit is ordered innermost first, Enter outermost first;
// neither contains the common ancestors.
type Path[T comparable] struct {
	Exit  []T
	Enter []T
}

// CalculatePath compares two root-first chains. Their longest common prefix is
// kept; the rest of source is exited in reverse and the rest of target entered
// in order. Identical chains yield an empty path, chains with different roots
// exit all of source and enter all of target.
//
// For example, with source [s1 s1_1] and target [s2 s2_2] the path exits
// [s1_1 s1] and enters [s2 s2_2].
func CalculatePath[T comparable](source, target []T) Path[T] {
	common := 0
	for common < len(source) && common < len(target) && source[common] == target[common] {
		common++
	}
	exit := slices.Clone(source[common:])
	slices.Reverse(exit)
	return Path[T]{
		Exit:  exit,
		Enter: slices.Clone(target[common:]),
	}
}
