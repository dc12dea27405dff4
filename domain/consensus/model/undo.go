package model

import "github.com/utxonode/chaind/domain/consensus/model/externalapi"

// UndoRecord holds what is needed to reverse the effect of one connected
// block on the ledger.
type UndoRecord struct {
	BlockHash externalapi.DomainHash

	// ParentHash is the ledger tip once the block is undone.
	ParentHash externalapi.DomainHash

	// SpentCoins are the coins that existed before the block and that the
	// block spent, in spend order.
	SpentCoins []*externalapi.OutpointAndUTXOEntryPair

	// CreatedOutpoints are the outputs the block added that are still
	// unspent after it. Unspendable outputs and outputs spent later in the
	// same block are not listed.
	CreatedOutpoints []*externalapi.DomainOutpoint
}

// BlockAtHeight couples a block with its height on the chain being replayed.
type BlockAtHeight struct {
	Block  *externalapi.DomainBlock
	Height uint64
}

// ReconcilePlan lists the blocks that take the ledger from the tip it was
// flushing from to the tip it was flushing to: the blocks to roll back,
// newest first, and then the blocks to replay, oldest first.
type ReconcilePlan struct {
	Rollback []*UndoRecord
	Replay   []*BlockAtHeight
}
