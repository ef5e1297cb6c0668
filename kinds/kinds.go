// Package kinds packs an element's kind and the kinds it derives from into
// a single uint64, one byte per level.
package kinds

const (
	width    = 64
	idBits   = 8
	maxDepth = width / idBits
	idMask   = (1 << idBits) - 1
)

// Kind builds a kind from a local id and the kinds it specializes.
// Each distinct base id is stored once, in declaration order, above the local id.
func Kind(id uint64, bases ...uint64) uint64 {
	kind := id & idMask
	seen := map[uint64]bool{}
	slot := 1
	for _, base := range bases {
		for level := 0; level < maxDepth && slot < maxDepth; level++ {
			baseId := (base >> (idBits * level)) & idMask
			if baseId == 0 {
				break
			}
			if seen[baseId] {
				continue
			}
			seen[baseId] = true
			kind |= baseId << (idBits * slot)
			slot++
		}
	}
	return kind
}

// IsKind reports whether kind is, or derives from, any of the given kinds.
func IsKind(kind uint64, maybeKinds ...uint64) bool {
	for _, other := range maybeKinds {
		id := other & idMask
		if id == 0 {
			if kind == 0 {
				return true
			}
			continue
		}
		for level := 0; level < maxDepth; level++ {
			if (kind>>(idBits*level))&idMask == id {
				return true
			}
		}
	}
	return false
}

var (
	Null       = Kind(0)
	Element    = Kind(1)
	Vertex     = Kind(2, Element)
	Model      = Kind(3, Element)
	State      = Kind(4, Vertex)
	Transition = Kind(5, Element)
	External   = Kind(6, Transition)
	Internal   = Kind(7, Transition)
	Self       = Kind(8, External)
	Behavior   = Kind(9, Element)
	Constraint = Kind(10, Element)
	Event      = Kind(11, Element)
)
