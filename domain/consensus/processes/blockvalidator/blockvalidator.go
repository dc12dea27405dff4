package blockvalidator

import (
	"github.com/lightningnetwork/lnd/clock"
	"github.com/utxonode/chaind/domain/chainparams"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/processes/transactionvalidator"
)

// BlockValidator exposes a set of validation classes, after which
// it's possible to determine whether either a block is valid
type BlockValidator struct {
	params               *chainparams.Params
	blockIndex           *blockindex.BlockIndex
	transactionValidator *transactionvalidator.TransactionValidator

	// clock is the adjusted network time that block timestamps may not run
	// too far ahead of.
	clock clock.Clock
}

// New instantiates a new BlockValidator
func New(params *chainparams.Params,
	blockIndex *blockindex.BlockIndex,
	transactionValidator *transactionvalidator.TransactionValidator,
	clock clock.Clock) *BlockValidator {

	return &BlockValidator{
		params:               params,
		blockIndex:           blockIndex,
		transactionValidator: transactionValidator,
		clock:                clock,
	}
}
