package pairs

import (
	"errors"
	"fmt"
)

var (
	// ErrItemNotInPool is returned when a requested item id is not custodied
	// by the pair.
	ErrItemNotInPool = errors.New("item not in pool inventory")
	// errDuplicateItem is returned when the same id is added twice.
	errDuplicateItem = errors.New("duplicate item id")
)

// inventory tracks the item ids a pair custodies. Ids live in a slice for
// cheap enumeration with a map index for O(1) membership, the same layout the
// rest of the engine uses for registries. Removal is swap-remove, so the
// enumeration order is deterministic for a given mutation history but not
// sorted.
type inventory struct {
	ids   []uint64
	index map[uint64]int
}

func newInventory() *inventory {
	return &inventory{
		index: make(map[uint64]int),
	}
}

func (inv *inventory) len() uint64 {
	return uint64(len(inv.ids))
}

func (inv *inventory) has(id uint64) bool {
	_, ok := inv.index[id]
	return ok
}

func (inv *inventory) add(id uint64) error {
	if inv.has(id) {
		return fmt.Errorf("%w: %d", errDuplicateItem, id)
	}
	inv.index[id] = len(inv.ids)
	inv.ids = append(inv.ids, id)
	return nil
}

func (inv *inventory) remove(id uint64) error {
	i, ok := inv.index[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrItemNotInPool, id)
	}

	last := len(inv.ids) - 1
	moved := inv.ids[last]
	inv.ids[i] = moved
	inv.index[moved] = i

	inv.ids = inv.ids[:last]
	delete(inv.index, id)
	return nil
}

// first returns the first n ids in the current enumeration order.
// Callers must ensure n <= len().
func (inv *inventory) first(n uint64) []uint64 {
	out := make([]uint64, n)
	copy(out, inv.ids[:n])
	return out
}

// all returns a copy of every custodied id.
func (inv *inventory) all() []uint64 {
	out := make([]uint64, len(inv.ids))
	copy(out, inv.ids)
	return out
}
