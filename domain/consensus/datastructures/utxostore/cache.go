package utxostore

import (
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
)

// cacheEntry is the committed state of one outpoint. A nil coin is a spent
// coin whose deletion has not reached the database yet.
type cacheEntry struct {
	coin *externalapi.UTXOEntry

	// dirty entries differ from the database and cannot be evicted.
	dirty bool

	// fresh entries are absent from the database, so spending them needs
	// no database deletion.
	fresh bool
}

// coinCache holds committed coins indexed by outpoint. It evicts random
// clean entries once over capacity.
type coinCache struct {
	entries    map[externalapi.DomainOutpoint]*cacheEntry
	capacity   int
	dirtyCount int
}

func newCoinCache(capacity int) *coinCache {
	return &coinCache{
		entries:  make(map[externalapi.DomainOutpoint]*cacheEntry, capacity+1),
		capacity: capacity,
	}
}

// get returns the entry for the given outpoint, or (nil, false) otherwise
func (c *coinCache) get(outpoint *externalapi.DomainOutpoint) (*cacheEntry, bool) {
	entry, ok := c.entries[*outpoint]
	return entry, ok
}

// addClean caches a coin read from the database.
func (c *coinCache) addClean(outpoint *externalapi.DomainOutpoint, coin *externalapi.UTXOEntry) {
	if _, ok := c.entries[*outpoint]; ok {
		return
	}
	c.entries[*outpoint] = &cacheEntry{coin: coin}
	if len(c.entries) > c.capacity {
		c.evictRandom()
	}
}

// set records a committed change of an outpoint. A nil coin spends it.
func (c *coinCache) set(outpoint *externalapi.DomainOutpoint, coin *externalapi.UTXOEntry) {
	old, ok := c.entries[*outpoint]
	if ok && old.dirty {
		c.dirtyCount--
	}

	if coin == nil {
		if ok && old.fresh {
			delete(c.entries, *outpoint)
			return
		}
		c.entries[*outpoint] = &cacheEntry{dirty: true}
		c.dirtyCount++
		return
	}

	// Coins are only ever added where none exists, so an outpoint the
	// cache does not know is absent from the database too.
	c.entries[*outpoint] = &cacheEntry{coin: coin, dirty: true, fresh: !ok}
	c.dirtyCount++
}

// markFlushed makes every entry clean, dropping the spent ones.
func (c *coinCache) markFlushed() {
	for outpoint, entry := range c.entries {
		if entry.coin == nil {
			delete(c.entries, outpoint)
			continue
		}
		entry.dirty = false
		entry.fresh = false
	}
	c.dirtyCount = 0
}

// evictToCapacity removes random clean entries until the cache is within
// capacity or only dirty entries are left.
func (c *coinCache) evictToCapacity() {
	for outpoint, entry := range c.entries {
		if len(c.entries) <= c.capacity {
			return
		}
		if !entry.dirty {
			delete(c.entries, outpoint)
		}
	}
}

func (c *coinCache) evictRandom() {
	for outpoint, entry := range c.entries {
		if !entry.dirty {
			delete(c.entries, outpoint)
			return
		}
	}
}

func (c *coinCache) len() int {
	return len(c.entries)
}

func (c *coinCache) overCapacity() bool {
	return len(c.entries) > c.capacity
}
