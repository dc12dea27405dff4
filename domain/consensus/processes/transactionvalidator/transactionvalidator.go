package transactionvalidator

import (
	"github.com/utxonode/chaind/domain/chainparams"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
)

// TransactionValidator exposes a set of validation classes, after which
// it's possible to determine whether a transaction is valid
type TransactionValidator struct {
	params     *chainparams.Params
	blockIndex *blockindex.BlockIndex
}

// New instantiates a new TransactionValidator
func New(params *chainparams.Params, blockIndex *blockindex.BlockIndex) *TransactionValidator {
	return &TransactionValidator{
		params:     params,
		blockIndex: blockIndex,
	}
}

// BlockContext is the position of a block on a chain, as needed by the
// contextual transaction rules.
type BlockContext struct {
	// Parent is the entry the block builds on.
	Parent *blockindex.Entry

	Height uint64

	// Time is the block header timestamp.
	Time int64

	// PastMedianTime is the past median time of Parent.
	PastMedianTime int64
}

// NewBlockContext returns the context of a block with the given header
// building on parent.
func (v *TransactionValidator) NewBlockContext(parent *blockindex.Entry,
	header *externalapi.DomainBlockHeader) *BlockContext {

	return &BlockContext{
		Parent:         parent,
		Height:         parent.Height() + 1,
		Time:           header.TimeInSeconds,
		PastMedianTime: v.blockIndex.PastMedianTime(parent),
	}
}

// isCSVActive returns whether relative lock times and median-time-past
// lock time evaluation apply to the block.
func (v *TransactionValidator) isCSVActive(blockContext *BlockContext) bool {
	return blockContext.Height >= v.params.CSVHeight
}
