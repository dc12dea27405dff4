package transactionvalidator

import (
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
	"github.com/utxonode/chaind/domain/consensus/utils/transactionhelper"
	"github.com/utxonode/chaind/domain/consensus/utils/txscript"
)

// IsFinalizedTransaction determines whether or not a transaction is finalized.
func IsFinalizedTransaction(tx *externalapi.DomainTransaction, blockHeight uint64, blockTime int64) bool {
	// Lock time of zero means the transaction is finalized.
	lockTime := uint64(tx.LockTime)
	if lockTime == 0 {
		return true
	}

	// The lock time field of a transaction is either a block height at
	// which the transaction is finalized or a timestamp depending on if the
	// value is before the constants.LockTimeThreshold. When it is under the
	// threshold it is a block height.
	var blockTimeOrHeight uint64
	if lockTime < constants.LockTimeThreshold {
		blockTimeOrHeight = blockHeight
	} else {
		blockTimeOrHeight = uint64(blockTime)
	}
	if lockTime < blockTimeOrHeight {
		return true
	}

	// At this point, the transaction's lock time hasn't occurred yet, but
	// the transaction might still be finalized if the sequence number
	// for all transaction inputs is maxed out.
	for _, input := range tx.Inputs {
		if input.Sequence != constants.MaxTxInSequenceNum {
			return false
		}
	}
	return true
}

// ValidateTransactionFinality checks that tx may be included in a block
// with the given context. Once CSV is active, lock times are compared with
// the past median time instead of the block timestamp.
func (v *TransactionValidator) ValidateTransactionFinality(tx *externalapi.DomainTransaction,
	blockContext *BlockContext) error {

	blockTime := blockContext.Time
	if v.isCSVActive(blockContext) {
		blockTime = blockContext.PastMedianTime
	}
	if !IsFinalizedTransaction(tx, blockContext.Height, blockTime) {
		return errors.Wrapf(ruleerrors.ErrUnfinalizedTx, "block contains unfinalized "+
			"transaction %s", consensushashing.TransactionID(tx))
	}
	return nil
}

// ValidateCoinbaseInContext checks the coinbase height commitment and that
// the coinbase claims no more than the block subsidy plus totalFees.
func (v *TransactionValidator) ValidateCoinbaseInContext(coinbase *externalapi.DomainTransaction,
	blockContext *BlockContext, totalFees uint64) error {

	if blockContext.Height >= v.params.BIP0034Height {
		err := checkSerializedHeight(coinbase, blockContext.Height)
		if err != nil {
			return err
		}
	}

	var totalSatoshiOut uint64
	for _, output := range coinbase.Outputs {
		totalSatoshiOut += output.Value
	}
	expectedSatoshiOut := v.params.CalcBlockSubsidy(blockContext.Height) + totalFees
	if totalSatoshiOut > expectedSatoshiOut {
		return errors.Wrapf(ruleerrors.ErrBadCoinbaseValue, "coinbase transaction for block pays %d "+
			"which is more than expected value of %d", totalSatoshiOut, expectedSatoshiOut)
	}
	return nil
}

// checkSerializedHeight checks that the coinbase signature script starts
// with a push of the block height.
func checkSerializedHeight(coinbase *externalapi.DomainTransaction, wantHeight uint64) error {
	serializedHeight, err := txscript.FirstPushedNumber(coinbase.Inputs[0].SignatureScript)
	if err != nil {
		return errors.Wrapf(ruleerrors.ErrBadCoinbaseHeight, "the coinbase signature script "+
			"must start with the serialized block height: %s", err)
	}
	if serializedHeight != int64(wantHeight) {
		return errors.Wrapf(ruleerrors.ErrBadCoinbaseHeight, "the coinbase signature script "+
			"serialized block height is %d when %d was expected", serializedHeight, wantHeight)
	}
	return nil
}

// ValidateTransactionInContext validates a non-coinbase transaction against
// the coins its inputs spend, given in input order, and returns its fee.
func (v *TransactionValidator) ValidateTransactionInContext(tx *externalapi.DomainTransaction,
	spentCoins []*externalapi.UTXOEntry, blockContext *BlockContext) (uint64, error) {

	if transactionhelper.IsCoinBase(tx) {
		return 0, errors.Errorf("ValidateTransactionInContext called with a coinbase transaction")
	}
	if len(spentCoins) != len(tx.Inputs) {
		return 0, errors.Errorf("transaction %s has %d inputs but %d spent coins were given",
			consensushashing.TransactionID(tx), len(tx.Inputs), len(spentCoins))
	}

	err := v.checkTransactionCoinbaseMaturity(tx, spentCoins, blockContext)
	if err != nil {
		return 0, err
	}

	totalSatoshiIn, err := checkTransactionInputAmounts(spentCoins)
	if err != nil {
		return 0, err
	}

	totalSatoshiOut, err := checkTransactionOutputAmounts(tx, totalSatoshiIn)
	if err != nil {
		return 0, err
	}

	if v.isCSVActive(blockContext) && tx.Version >= 2 {
		err = v.checkTransactionSequenceLock(tx, spentCoins, blockContext)
		if err != nil {
			return 0, err
		}
	}

	return totalSatoshiIn - totalSatoshiOut, nil
}

func (v *TransactionValidator) checkTransactionCoinbaseMaturity(tx *externalapi.DomainTransaction,
	spentCoins []*externalapi.UTXOEntry, blockContext *BlockContext) error {

	for i, coin := range spentCoins {
		if !coin.IsCoinbase {
			continue
		}
		originHeight := coin.BlockHeight
		blocksSincePrev := blockContext.Height - originHeight
		if blocksSincePrev < v.params.CoinbaseMaturity {
			return errors.Wrapf(ruleerrors.ErrImmatureSpend, "tried to spend coinbase "+
				"transaction output %s from height %d "+
				"at height %d before required maturity "+
				"of %d blocks", tx.Inputs[i].PreviousOutpoint,
				originHeight, blockContext.Height,
				v.params.CoinbaseMaturity)
		}
	}
	return nil
}

func checkTransactionInputAmounts(spentCoins []*externalapi.UTXOEntry) (totalSatoshiIn uint64, err error) {
	for _, coin := range spentCoins {
		// The total of all inputs must not be more than the max
		// allowed per transaction. Also, we could potentially overflow
		// the accumulator so check for overflow.
		originTxSatoshi := coin.Amount
		newTotal := totalSatoshiIn + originTxSatoshi
		if newTotal < totalSatoshiIn || newTotal > constants.MaxSatoshi {
			return 0, errors.Wrapf(ruleerrors.ErrBadTxOutValue, "total value of all transaction "+
				"inputs is higher than max allowed value of %d", uint64(constants.MaxSatoshi))
		}
		totalSatoshiIn = newTotal
	}
	return totalSatoshiIn, nil
}

func checkTransactionOutputAmounts(tx *externalapi.DomainTransaction, totalSatoshiIn uint64) (uint64, error) {
	totalSatoshiOut := uint64(0)
	// Calculate the total output amount for this transaction. It is safe
	// to ignore overflow and out of range errors here because those error
	// conditions would have already been caught by checkTransactionAmountRanges.
	for _, output := range tx.Outputs {
		totalSatoshiOut += output.Value
	}

	// Ensure the transaction does not spend more than its inputs.
	if totalSatoshiIn < totalSatoshiOut {
		return 0, errors.Wrapf(ruleerrors.ErrSpendTooHigh, "total value of all transaction inputs for "+
			"the transaction is %d which is less than the amount "+
			"spent of %d", totalSatoshiIn, totalSatoshiOut)
	}
	return totalSatoshiOut, nil
}

func (v *TransactionValidator) checkTransactionSequenceLock(tx *externalapi.DomainTransaction,
	spentCoins []*externalapi.UTXOEntry, blockContext *BlockContext) error {

	// A transaction can only be included within a block
	// once the sequence locks of *all* its inputs are
	// active.
	sequenceLock := v.calcTxSequenceLock(tx, spentCoins, blockContext)
	if !sequenceLockActive(sequenceLock, blockContext.Height, blockContext.PastMedianTime) {
		return errors.Wrapf(ruleerrors.ErrSequenceLocksNotMet, "block contains "+
			"transaction %s whose input sequence locks are not met",
			consensushashing.TransactionID(tx))
	}
	return nil
}
