package assets

import (
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemCollection is an in-memory ItemCollection with operator approvals.
// It is safe for concurrent use.
type MemCollection struct {
	mu        sync.RWMutex
	address   common.Address
	owners    map[uint64]common.Address
	approvals map[common.Address]map[common.Address]bool
	nextID    uint64
}

// NewMemCollection creates an empty collection identified by addr.
func NewMemCollection(addr common.Address) *MemCollection {
	return &MemCollection{
		address:   addr,
		owners:    make(map[uint64]common.Address),
		approvals: make(map[common.Address]map[common.Address]bool),
	}
}

// Address returns the collection's identity.
func (c *MemCollection) Address() common.Address {
	return c.address
}

// Mint creates count fresh items owned by owner and returns their ids.
func (c *MemCollection) Mint(owner common.Address, count uint64) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		id := c.nextID
		c.nextID++
		c.owners[id] = owner
		ids = append(ids, id)
	}
	return ids
}

// SetApprovalForAll lets operator move every item owner holds, now and later.
func (c *MemCollection) SetApprovalForAll(owner, operator common.Address, approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ops, ok := c.approvals[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		c.approvals[owner] = ops
	}
	ops[operator] = approved
}

// BalanceOf returns how many items owner holds.
func (c *MemCollection) BalanceOf(owner common.Address) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n uint64
	for _, o := range c.owners {
		if o == owner {
			n++
		}
	}
	return n
}

// OwnedBy lists the ids owner holds, in ascending id order.
func (c *MemCollection) OwnedBy(owner common.Address) []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []uint64
	for id, o := range c.owners {
		if o == owner {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// OwnerOf returns the current owner of an item.
func (c *MemCollection) OwnerOf(id uint64) (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	owner, ok := c.owners[id]
	if !ok {
		return common.Address{}, ErrUnknownItem
	}
	return owner, nil
}

// TransferFrom moves one item from its owner to another address. operator
// must be the owner or approved for all of the owner's items.
func (c *MemCollection) TransferFrom(operator, from, to common.Address, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, ok := c.owners[id]
	if !ok {
		return ErrUnknownItem
	}
	if owner != from {
		return ErrNotItemOwner
	}
	if operator != from && !c.approvals[from][operator] {
		return ErrNotApproved
	}

	c.owners[id] = to
	return nil
}
