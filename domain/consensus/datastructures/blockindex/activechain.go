package blockindex

import "sync"

// ActiveChain is the sequence of entries from genesis to the current tip,
// indexed by height. It is the only chain whose effects are reflected in the
// ledger.
//
// ActiveChain is safe for concurrent access.
type ActiveChain struct {
	mtx     sync.RWMutex
	index   *BlockIndex
	entries []*Entry
}

// NewActiveChain returns an empty chain over the given index.
func NewActiveChain(index *BlockIndex) *ActiveChain {
	return &ActiveChain{index: index}
}

// SetTip makes tip the head of the chain, replacing every entry from the
// fork with the previous chain upwards.
func (c *ActiveChain) SetTip(tip *Entry) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if tip == nil {
		c.entries = nil
		return
	}

	length := int(tip.height) + 1
	if length <= len(c.entries) {
		c.entries = c.entries[:length]
	} else {
		c.entries = append(c.entries, make([]*Entry, length-len(c.entries))...)
	}
	for walk := tip; walk != nil && c.entries[walk.height] != walk; walk = c.index.Parent(walk) {
		c.entries[walk.height] = walk
	}
}

// Tip returns the chain head, or nil if the chain is empty.
func (c *ActiveChain) Tip() *Entry {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[len(c.entries)-1]
}

// Height returns the height of the tip.
func (c *ActiveChain) Height() uint64 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	if len(c.entries) == 0 {
		return 0
	}
	return uint64(len(c.entries) - 1)
}

// AtHeight returns the chain entry at the given height, or nil if the chain
// is shorter.
func (c *ActiveChain) AtHeight(height uint64) *Entry {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	if height >= uint64(len(c.entries)) {
		return nil
	}
	return c.entries[height]
}

// Contains returns whether entry is on the chain.
func (c *ActiveChain) Contains(entry *Entry) bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	return entry.height < uint64(len(c.entries)) && c.entries[entry.height] == entry
}

// Next returns the chain entry following entry, or nil if entry is the tip
// or is not on the chain.
func (c *ActiveChain) Next(entry *Entry) *Entry {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	if entry.height+1 >= uint64(len(c.entries)) || c.entries[entry.height] != entry {
		return nil
	}
	return c.entries[entry.height+1]
}
