// Package set is a small generic set used to keep the first element seen per key.
package set

type Set[T comparable] map[T]struct{}

func New[T comparable](members ...T) Set[T] {
	s := make(Set[T], len(members))
	for _, member := range members {
		s.Add(member)
	}
	return s
}

// Add inserts member and reports whether it was absent before.
func (s Set[T]) Add(member T) bool {
	if s.Contains(member) {
		return false
	}
	s[member] = struct{}{}
	return true
}

func (s Set[T]) Contains(member T) bool {
	_, ok := s[member]
	return ok
}

func (s Set[T]) Size() int {
	return len(s)
}
