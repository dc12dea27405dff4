package blockindex

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
	"github.com/utxonode/chaind/domain/consensus/utils/pow"
)

// BlockIndex is the in-memory tree of every known block header. Entries
// live in an arena and reference each other by index. Entries are never
// removed.
//
// BlockIndex is safe for concurrent access.
type BlockIndex struct {
	mtx sync.RWMutex

	entries        []*Entry
	byHash         map[externalapi.DomainHash]int32
	nextSequenceID uint64

	// bestHeader is the non-failed entry of at least tree-valid level with
	// the most cumulative work.
	bestHeader *Entry

	// candidates holds the non-failed entries whose whole chain has its
	// block data available, and that may therefore become the chain tip.
	candidates map[int32]struct{}

	// dirty holds the entries modified since the last flush.
	dirty map[int32]struct{}
}

// New returns an empty BlockIndex. The genesis header has to be inserted
// with InsertGenesis, or loaded with LoadEntry, before anything else.
func New() *BlockIndex {
	return &BlockIndex{
		byHash:     make(map[externalapi.DomainHash]int32),
		candidates: make(map[int32]struct{}),
		dirty:      make(map[int32]struct{}),
	}
}

// skipHeight returns the height of the ancestor an entry at the given
// height points its skip link to. It is always lower than height.
func skipHeight(height uint64) uint64 {
	if height < 2 {
		return 0
	}
	// Odd heights jump one further than even ones, which keeps the worst
	// case of Ancestor logarithmic.
	if height&1 != 0 {
		return invertLowestOne(invertLowestOne(height-1)) + 1
	}
	return invertLowestOne(height)
}

func invertLowestOne(n uint64) uint64 {
	return n & (n - 1)
}

// InsertGenesis inserts the root of the index. The genesis block is valid by
// definition and has its chain data available.
func (bi *BlockIndex) InsertGenesis(header *externalapi.DomainBlockHeader) (*Entry, error) {
	bi.mtx.Lock()
	defer bi.mtx.Unlock()

	if len(bi.entries) != 0 {
		return nil, errors.Errorf("genesis was already inserted")
	}
	entry := bi.newEntry(header, nil, bi.nextSequenceID)
	entry.status.Store(uint32(StatusScriptsValid))
	entry.haveChainData = true
	bi.candidates[entry.index] = struct{}{}
	bi.bestHeader = entry
	return entry, nil
}

// InsertHeader adds a header whose parent is already indexed. The new entry
// has height parent+1, its cumulative work is the parent's plus the work
// implied by its own bits, and its status is header-valid. A header built
// on a failed parent is inserted already failed.
func (bi *BlockIndex) InsertHeader(header *externalapi.DomainBlockHeader) (*Entry, error) {
	bi.mtx.Lock()
	defer bi.mtx.Unlock()

	hash := consensushashing.HeaderHash(header)
	if _, ok := bi.byHash[*hash]; ok {
		return nil, errors.Wrapf(ruleerrors.ErrDuplicateHeader, "block %s", hash)
	}
	parentIndex, ok := bi.byHash[header.ParentHash]
	if !ok {
		return nil, errors.Wrapf(ruleerrors.ErrOrphanHeader, "parent %s of block %s is unknown",
			header.ParentHash, hash)
	}
	parent := bi.entries[parentIndex]

	entry := bi.newEntry(header, parent, bi.nextSequenceID)
	status := StatusHeaderValid
	if parent.Status().IsFailed() {
		status |= StatusFailedAncestor
	}
	entry.status.Store(uint32(status))
	log.Tracef("Inserted header %s with status %s", entry, status)
	return entry, nil
}

// newEntry must be called with the lock held for writes.
func (bi *BlockIndex) newEntry(header *externalapi.DomainBlockHeader, parent *Entry,
	sequenceID uint64) *Entry {

	entry := &Entry{
		hash:       *consensushashing.HeaderHash(header),
		header:     header.Clone(),
		work:       pow.CalculateWork(header.Bits),
		sequenceID: sequenceID,
		index:      int32(len(bi.entries)),
		parent:     noIndex,
		skip:       noIndex,
	}
	if parent != nil {
		entry.parent = parent.index
		entry.height = parent.height + 1
		entry.work.Add(entry.work, parent.work)
		entry.skip = bi.ancestor(parent, skipHeight(entry.height)).index
		parent.children = append(parent.children, entry.index)
	}
	if sequenceID >= bi.nextSequenceID {
		bi.nextSequenceID = sequenceID + 1
	}

	bi.entries = append(bi.entries, entry)
	bi.byHash[entry.hash] = entry.index
	bi.dirty[entry.index] = struct{}{}
	return entry
}

// LoadEntry re-inserts a persisted entry on restart. Parents must be loaded
// before their children. Loaded entries are not marked dirty.
func (bi *BlockIndex) LoadEntry(header *externalapi.DomainBlockHeader, status Status,
	sequenceID uint64) (*Entry, error) {

	bi.mtx.Lock()
	defer bi.mtx.Unlock()

	hash := consensushashing.HeaderHash(header)
	if _, ok := bi.byHash[*hash]; ok {
		return nil, errors.Wrapf(ruleerrors.ErrDuplicateHeader, "block %s", hash)
	}
	var parent *Entry
	if len(bi.entries) != 0 {
		parentIndex, ok := bi.byHash[header.ParentHash]
		if !ok {
			return nil, errors.Wrapf(ruleerrors.ErrOrphanHeader, "parent %s of loaded block %s is unknown",
				header.ParentHash, hash)
		}
		parent = bi.entries[parentIndex]
		if parent.Status().IsFailed() {
			status |= StatusFailedAncestor
		}
	}

	entry := bi.newEntry(header, parent, sequenceID)
	delete(bi.dirty, entry.index)
	entry.status.Store(uint32(status))

	if status.IsValid(StatusTreeValid) {
		bi.maybeUpdateBestHeader(entry)
	}
	if status.Level() >= StatusTransactionsValid && (parent == nil || parent.haveChainData) {
		bi.linkChainData(entry)
	}
	return entry, nil
}

// Lookup returns the entry with the given hash.
func (bi *BlockIndex) Lookup(hash *externalapi.DomainHash) (*Entry, bool) {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	return bi.lookup(hash)
}

func (bi *BlockIndex) lookup(hash *externalapi.DomainHash) (*Entry, bool) {
	index, ok := bi.byHash[*hash]
	if !ok {
		return nil, false
	}
	return bi.entries[index], true
}

// Genesis returns the root entry, or nil if the index is empty.
func (bi *BlockIndex) Genesis() *Entry {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	if len(bi.entries) == 0 {
		return nil
	}
	return bi.entries[0]
}

// Count returns the number of indexed entries.
func (bi *BlockIndex) Count() int {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	return len(bi.entries)
}

// Parent returns the parent of entry, or nil for genesis.
func (bi *BlockIndex) Parent(entry *Entry) *Entry {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	return bi.parent(entry)
}

func (bi *BlockIndex) parent(entry *Entry) *Entry {
	if entry.parent == noIndex {
		return nil
	}
	return bi.entries[entry.parent]
}

// Children returns the entries built directly on entry, in insertion order.
func (bi *BlockIndex) Children(entry *Entry) []*Entry {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	children := make([]*Entry, len(entry.children))
	for i, childIndex := range entry.children {
		children[i] = bi.entries[childIndex]
	}
	return children
}

// Ancestor returns the ancestor of entry at the given height, following
// skip links. It returns nil if height is above the entry's.
func (bi *BlockIndex) Ancestor(entry *Entry, height uint64) *Entry {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	return bi.ancestor(entry, height)
}

func (bi *BlockIndex) ancestor(entry *Entry, height uint64) *Entry {
	if height > entry.height {
		return nil
	}

	walk := entry
	for walk.height > height {
		heightSkip := int64(skipHeight(walk.height))
		heightSkipPrev := int64(skipHeight(walk.height - 1))
		target := int64(height)
		// Only follow the skip link if it does not overshoot, and if the
		// parent's link would not get closer to the target.
		if walk.skip != noIndex && (heightSkip == target ||
			(heightSkip > target && !(heightSkipPrev < heightSkip-2 && heightSkipPrev >= target))) {
			walk = bi.entries[walk.skip]
			continue
		}
		walk = bi.entries[walk.parent]
	}
	return walk
}

// IsInChainOf returns whether ancestor is entry itself or one of its
// ancestors.
func (bi *BlockIndex) IsInChainOf(ancestor, entry *Entry) bool {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	return bi.ancestor(entry, ancestor.height) == ancestor
}

// FindFork returns the lowest common ancestor of a and b.
func (bi *BlockIndex) FindFork(a, b *Entry) *Entry {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	if a.height > b.height {
		a = bi.ancestor(a, b.height)
	} else if b.height > a.height {
		b = bi.ancestor(b, a.height)
	}
	for a != b {
		a = bi.parent(a)
		b = bi.parent(b)
	}
	return a
}

// PastMedianTime returns the median timestamp of the entry and the up to
// ten blocks before it.
func (bi *BlockIndex) PastMedianTime(entry *Entry) int64 {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	timestamps := make([]int64, 0, constants.MedianTimeBlocks)
	for walk := entry; walk != nil && len(timestamps) < constants.MedianTimeBlocks; walk = bi.parent(walk) {
		timestamps = append(timestamps, walk.TimeInSeconds())
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[len(timestamps)/2]
}

// MarkStatus advances the validity level of the entry with the given hash by
// exactly one step. Skipping a level, regressing, or advancing a failed
// entry fails with ErrInvalidTransition.
func (bi *BlockIndex) MarkStatus(hash *externalapi.DomainHash, level Status) error {
	bi.mtx.Lock()
	defer bi.mtx.Unlock()

	entry, ok := bi.lookup(hash)
	if !ok {
		return errors.Wrapf(ruleerrors.ErrUnknownBlock, "block %s", hash)
	}
	status := entry.Status()
	if status.IsFailed() || level != status.Level()+1 {
		return errors.Wrapf(ruleerrors.ErrInvalidTransition, "block %s cannot move from %s to %s",
			hash, status, level)
	}
	entry.status.Store(uint32(level))
	bi.dirty[entry.index] = struct{}{}

	switch level {
	case StatusTreeValid:
		bi.maybeUpdateBestHeader(entry)
	case StatusTransactionsValid:
		parent := bi.parent(entry)
		if parent == nil || parent.haveChainData {
			bi.linkChainData(entry)
		}
	}
	return nil
}

// MarkFailed marks the entry with the given hash as failed, and every
// descendant of it as having a failed ancestor.
func (bi *BlockIndex) MarkFailed(hash *externalapi.DomainHash) error {
	bi.mtx.Lock()
	defer bi.mtx.Unlock()

	entry, ok := bi.lookup(hash)
	if !ok {
		return errors.Wrapf(ruleerrors.ErrUnknownBlock, "block %s", hash)
	}
	bi.setStatusFlags(entry, StatusFailedValidation)

	queue := append([]int32(nil), entry.children...)
	failedDescendants := 0
	for len(queue) > 0 {
		descendant := bi.entries[queue[0]]
		queue = queue[1:]
		// Entries already carrying the flag had their subtree marked then,
		// and later children inherit it on insertion.
		if descendant.Status()&StatusFailedAncestor != 0 {
			continue
		}
		bi.setStatusFlags(descendant, StatusFailedAncestor)
		failedDescendants++
		queue = append(queue, descendant.children...)
	}
	log.Debugf("Marked block %s as failed along with %d descendants", entry, failedDescendants)

	if bi.bestHeader.Status().IsFailed() {
		bi.recalculateBestHeader()
	}
	return nil
}

// setStatusFlags must be called with the lock held for writes.
func (bi *BlockIndex) setStatusFlags(entry *Entry, flags Status) {
	entry.status.Store(uint32(entry.Status() | flags))
	delete(bi.candidates, entry.index)
	bi.dirty[entry.index] = struct{}{}
}

// linkChainData flags entry, which just became transactions-valid with a
// parent that has chain data, and then every descendant that was only
// waiting for it. Must be called with the lock held for writes.
func (bi *BlockIndex) linkChainData(entry *Entry) {
	queue := []*Entry{entry}
	for len(queue) > 0 {
		linked := queue[0]
		queue = queue[1:]

		linked.haveChainData = true
		if !linked.Status().IsFailed() {
			bi.candidates[linked.index] = struct{}{}
		}
		for _, childIndex := range linked.children {
			child := bi.entries[childIndex]
			if !child.haveChainData && child.Status().Level() >= StatusTransactionsValid {
				queue = append(queue, child)
			}
		}
	}
}

// maybeUpdateBestHeader must be called with the lock held for writes.
func (bi *BlockIndex) maybeUpdateBestHeader(entry *Entry) {
	if !entry.Status().IsValid(StatusTreeValid) {
		return
	}
	if bi.bestHeader == nil || WorkSorterLess(bi.bestHeader, entry) {
		bi.bestHeader = entry
	}
}

func (bi *BlockIndex) recalculateBestHeader() {
	bi.bestHeader = nil
	for _, entry := range bi.entries {
		bi.maybeUpdateBestHeader(entry)
	}
}

// BestHeader returns the non-failed, tree-valid entry with the most
// cumulative work, whether or not its block data is available.
func (bi *BlockIndex) BestHeader() *Entry {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	return bi.bestHeader
}

// HasChainData returns whether the entry and all of its ancestors have their
// block data stored and checked.
func (bi *BlockIndex) HasChainData(entry *Entry) bool {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	return entry.haveChainData
}

// Candidates returns the entries that may become the chain tip: not failed,
// with chain data available.
func (bi *BlockIndex) Candidates() []*Entry {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	candidates := make([]*Entry, 0, len(bi.candidates))
	for index := range bi.candidates {
		candidates = append(candidates, bi.entries[index])
	}
	return candidates
}

// PruneCandidates drops the candidates with less work than tip, which is
// typically the newly connected chain tip.
func (bi *BlockIndex) PruneCandidates(tip *Entry) {
	bi.mtx.Lock()
	defer bi.mtx.Unlock()

	for index := range bi.candidates {
		if bi.entries[index].work.Cmp(tip.work) < 0 {
			delete(bi.candidates, index)
		}
	}
}

// RebuildCandidates recomputes the candidate set from scratch. It is needed
// after a block on the active chain is invalidated, since lower-work
// candidates may have been pruned.
func (bi *BlockIndex) RebuildCandidates() {
	bi.mtx.Lock()
	defer bi.mtx.Unlock()

	bi.candidates = make(map[int32]struct{})
	for _, entry := range bi.entries {
		if entry.haveChainData && !entry.Status().IsFailed() {
			bi.candidates[entry.index] = struct{}{}
		}
	}
}

// DirtyEntries returns the entries modified since the last ClearDirty.
func (bi *BlockIndex) DirtyEntries() []*Entry {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()

	dirty := make([]*Entry, 0, len(bi.dirty))
	for index := range bi.dirty {
		dirty = append(dirty, bi.entries[index])
	}
	return dirty
}

// ClearDirty marks the given entries as persisted.
func (bi *BlockIndex) ClearDirty(entries []*Entry) {
	bi.mtx.Lock()
	defer bi.mtx.Unlock()

	for _, entry := range entries {
		delete(bi.dirty, entry.index)
	}
}
