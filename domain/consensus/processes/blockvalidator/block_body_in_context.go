package blockvalidator

import (
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
	"github.com/utxonode/chaind/domain/consensus/utils/transactionhelper"
	"github.com/utxonode/chaind/domain/consensus/utils/txscript"
	"github.com/utxonode/chaind/infrastructure/logger"
)

// CoinView resolves the coins spent by a block about to be connected.
type CoinView interface {
	StagedCoin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error)
}

// ValidateBodyInContext validates the body of the block with the given
// entry against the coins of the chain it is connected to, which view must
// reflect up to the block's parent. It returns the coins spent by every
// transaction, indexed like the block's transactions; the coinbase spends
// none.
func (v *BlockValidator) ValidateBodyInContext(block *externalapi.DomainBlock, entry *blockindex.Entry,
	view CoinView) ([][]*externalapi.UTXOEntry, error) {

	onEnd := logger.LogAndMeasureExecutionTime(log, "ValidateBodyInContext")
	defer onEnd()

	parent := v.blockIndex.Parent(entry)
	if parent == nil {
		return nil, errors.Errorf("the body of genesis block %s is not validated", entry)
	}
	blockContext := v.transactionValidator.NewBlockContext(parent, block.Header)

	for _, tx := range block.Transactions {
		err := v.transactionValidator.ValidateTransactionFinality(tx, blockContext)
		if err != nil {
			return nil, err
		}
	}

	spentCoins, err := v.resolveSpentCoins(block, blockContext.Height, view)
	if err != nil {
		return nil, err
	}

	var totalFees uint64
	for i, tx := range block.Transactions {
		if i == transactionhelper.CoinbaseTransactionIndex {
			continue
		}
		fee, err := v.transactionValidator.ValidateTransactionInContext(tx, spentCoins[i], blockContext)
		if err != nil {
			return nil, errors.Wrapf(err, "transaction %s failed contextual check",
				consensushashing.TransactionID(tx))
		}

		// Sum the total fees and ensure we don't overflow the
		// accumulator.
		lastTotalFees := totalFees
		totalFees += fee
		if totalFees < lastTotalFees || totalFees > constants.MaxSatoshi {
			return nil, errors.Wrapf(ruleerrors.ErrBadTxOutValue, "total fees for block "+
				"overflows accumulator")
		}
	}

	coinbase := block.Transactions[transactionhelper.CoinbaseTransactionIndex]
	err = v.transactionValidator.ValidateCoinbaseInContext(coinbase, blockContext, totalFees)
	if err != nil {
		return nil, err
	}
	return spentCoins, nil
}

// resolveSpentCoins looks up the coin spent by every input, either created
// earlier in the same block or found in view. Inputs spending unknown or
// already spent outputs fail the block with ErrMissingTxOut.
func (v *BlockValidator) resolveSpentCoins(block *externalapi.DomainBlock, height uint64,
	view CoinView) ([][]*externalapi.UTXOEntry, error) {

	createdInBlock := make(map[externalapi.DomainOutpoint]*externalapi.UTXOEntry)
	spentCoins := make([][]*externalapi.UTXOEntry, len(block.Transactions))
	var missingOutpoints []*externalapi.DomainOutpoint

	for i, tx := range block.Transactions {
		isCoinbase := i == transactionhelper.CoinbaseTransactionIndex
		if !isCoinbase {
			coins := make([]*externalapi.UTXOEntry, len(tx.Inputs))
			for j, input := range tx.Inputs {
				outpoint := input.PreviousOutpoint
				if coin, ok := createdInBlock[outpoint]; ok {
					coins[j] = coin
					delete(createdInBlock, outpoint)
					continue
				}
				coin, found, err := view.StagedCoin(&outpoint)
				if err != nil {
					return nil, err
				}
				if !found {
					missingOutpoints = append(missingOutpoints, &outpoint)
					continue
				}
				coins[j] = coin
			}
			spentCoins[i] = coins
		}

		txID := consensushashing.TransactionID(tx)
		for index, output := range tx.Outputs {
			if txscript.IsUnspendable(output.ScriptPublicKey) {
				continue
			}
			outpoint := externalapi.NewDomainOutpoint(txID, uint32(index))
			createdInBlock[*outpoint] = externalapi.NewUTXOEntry(output.Value, output.ScriptPublicKey,
				isCoinbase, height)
		}
	}

	if len(missingOutpoints) > 0 {
		return nil, ruleerrors.NewErrMissingTxOut(missingOutpoints)
	}
	return spentCoins, nil
}
