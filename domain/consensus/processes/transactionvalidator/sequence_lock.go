package transactionvalidator

import (
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
)

// sequenceLock represents the converted relative lock-time in seconds, and
// absolute block-height for a transaction input's relative lock-times.
// According to sequenceLock, after the referenced input has been confirmed
// within a block, a transaction spending that input can be included into a
// block either after 'Seconds' (according to past median time), or once the
// 'BlockHeight' has been reached.
type sequenceLock struct {
	Seconds     int64
	BlockHeight int64
}

// calcTxSequenceLock computes the relative lock-times of tx from the coins
// it spends.
func (v *TransactionValidator) calcTxSequenceLock(tx *externalapi.DomainTransaction,
	spentCoins []*externalapi.UTXOEntry, blockContext *BlockContext) *sequenceLock {

	// A value of -1 for each relative lock type represents a relative time
	// lock value that will allow a transaction to be included in a block
	// at any given height or time.
	lock := &sequenceLock{Seconds: -1, BlockHeight: -1}

	for i, input := range tx.Inputs {
		coinHeight := spentCoins[i].BlockHeight

		// Given a sequence number, we apply the relative time lock
		// mask in order to obtain the time lock delta required before
		// this input can be spent.
		sequenceNum := input.Sequence
		relativeLock := int64(sequenceNum & constants.SequenceLockTimeMask)

		switch {
		// Relative time locks are disabled for this input, so we can
		// skip any further calculation.
		case sequenceNum&constants.SequenceLockTimeDisabled == constants.SequenceLockTimeDisabled:
			continue
		case sequenceNum&constants.SequenceLockTimeIsSeconds == constants.SequenceLockTimeIsSeconds:
			// This input requires a relative time lock expressed
			// in seconds before it can be spent. Therefore, we
			// need to query for the block prior to the one in
			// which this input was included within so we can
			// compute the past median time for the block prior to
			// the one which included this referenced output.
			prevInputHeight := uint64(0)
			if coinHeight > 0 {
				prevInputHeight = coinHeight - 1
			}
			if prevInputHeight > blockContext.Parent.Height() {
				prevInputHeight = blockContext.Parent.Height()
			}
			ancestor := v.blockIndex.Ancestor(blockContext.Parent, prevInputHeight)
			medianTime := v.blockIndex.PastMedianTime(ancestor)

			// Time based relative time-locks have a time granularity of
			// constants.SequenceLockTimeGranularity, so we shift left by this
			// amount to convert to the proper relative time-lock. We also
			// subtract one from the relative lock to maintain the original
			// lockTime semantics.
			timeLockSeconds := (relativeLock << constants.SequenceLockTimeGranularity) - 1
			timeLock := medianTime + timeLockSeconds
			if timeLock > lock.Seconds {
				lock.Seconds = timeLock
			}
		default:
			// The relative lock-time for this input is expressed
			// in blocks so we calculate the relative offset from
			// the input's height as its converted absolute
			// lock-time. We subtract one from the relative lock in
			// order to maintain the original lockTime semantics.
			blockHeight := int64(coinHeight) + relativeLock - 1
			if blockHeight > lock.BlockHeight {
				lock.BlockHeight = blockHeight
			}
		}
	}
	return lock
}

// sequenceLockActive determines if a transaction's sequence locks have been
// met, meaning that all the inputs of a given transaction have reached a
// height or time sufficient for their relative lock-time maturity.
func sequenceLockActive(lock *sequenceLock, blockHeight uint64, medianTimePast int64) bool {
	// If either the seconds, or height relative-lock time has not yet
	// reached, then the transaction is not yet mature according to its
	// sequence locks.
	if lock.Seconds >= medianTimePast || lock.BlockHeight >= int64(blockHeight) {
		return false
	}
	return true
}
