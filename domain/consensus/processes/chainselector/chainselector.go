package chainselector

import (
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
)

// ChainSelector picks the chain tip the node should be on.
type ChainSelector struct {
	blockIndex *blockindex.BlockIndex
}

// New instantiates a new ChainSelector
func New(blockIndex *blockindex.BlockIndex) *ChainSelector {
	return &ChainSelector{blockIndex: blockIndex}
}

// SelectBestTip returns the connectable, non-failed entry with the most
// cumulative work. Entries with equal work are ranked by the order in which
// they were first seen, earliest first.
//
// changed is false when current already holds the title, in which case
// best is current. current may be nil before the chain has a tip.
func (cs *ChainSelector) SelectBestTip(current *blockindex.Entry) (best *blockindex.Entry, changed bool) {
	if current != nil && !current.Status().IsFailed() {
		best = current
	}
	for _, candidate := range cs.blockIndex.Candidates() {
		if !isSelectable(candidate) {
			continue
		}
		if best == nil || blockindex.WorkSorterLess(best, candidate) {
			best = candidate
		}
	}

	if best == nil || best == current {
		return current, false
	}
	log.Debugf("Selected %s over %s", best, current)
	return best, true
}

func isSelectable(entry *blockindex.Entry) bool {
	status := entry.Status()
	return !status.IsFailed() && status.IsValid(blockindex.StatusTreeValid)
}
