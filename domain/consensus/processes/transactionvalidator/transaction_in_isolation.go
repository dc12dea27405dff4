package transactionvalidator

import (
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
	"github.com/utxonode/chaind/domain/consensus/utils/transactionhelper"
)

// ValidateTransactionInIsolation validates the parts of a transaction that
// don't depend on the chain it's included in
func (v *TransactionValidator) ValidateTransactionInIsolation(tx *externalapi.DomainTransaction) error {
	err := checkTransactionVersion(tx)
	if err != nil {
		return err
	}
	err = checkTransactionInputCount(tx)
	if err != nil {
		return err
	}
	err = checkTransactionOutputCount(tx)
	if err != nil {
		return err
	}
	err = checkTransactionAmountRanges(tx)
	if err != nil {
		return err
	}
	err = checkDuplicateTransactionInputs(tx)
	if err != nil {
		return err
	}
	err = checkCoinbaseLength(tx)
	if err != nil {
		return err
	}
	return checkNoNullInputs(tx)
}

func checkTransactionVersion(tx *externalapi.DomainTransaction) error {
	if tx.Version < constants.TransactionVersion || tx.Version > constants.MaxTransactionVersion {
		return errors.Wrapf(ruleerrors.ErrTransactionVersionIsUnknown, "transaction version %d "+
			"is not in the range [%d, %d]", tx.Version, constants.TransactionVersion,
			constants.MaxTransactionVersion)
	}
	return nil
}

func checkTransactionInputCount(tx *externalapi.DomainTransaction) error {
	// A non-coinbase transaction must have at least one input.
	if len(tx.Inputs) == 0 {
		return errors.Wrapf(ruleerrors.ErrNoTxInputs, "transaction has no inputs")
	}
	return nil
}

func checkTransactionOutputCount(tx *externalapi.DomainTransaction) error {
	if len(tx.Outputs) == 0 {
		return errors.Wrapf(ruleerrors.ErrNoTxOutputs, "transaction has no outputs")
	}
	return nil
}

func checkTransactionAmountRanges(tx *externalapi.DomainTransaction) error {
	// Ensure the transaction amounts are in range. Each transaction
	// output must not be more than the max allowed per transaction. Also,
	// the total of all outputs must abide by the same restrictions. All
	// amounts in a transaction are in a unit value known as a satoshi.
	var totalSatoshi uint64
	for _, txOut := range tx.Outputs {
		satoshi := txOut.Value
		if satoshi > constants.MaxSatoshi {
			return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "transaction output value of %d is "+
				"higher than max allowed value of %d", satoshi, uint64(constants.MaxSatoshi))
		}

		// Binary arithmetic guarantees that any overflow is detected and reported.
		newTotalSatoshi := totalSatoshi + satoshi
		if newTotalSatoshi < totalSatoshi {
			return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "total value of all transaction "+
				"outputs exceeds max allowed value of %d", uint64(constants.MaxSatoshi))
		}
		totalSatoshi = newTotalSatoshi
		if totalSatoshi > constants.MaxSatoshi {
			return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "total value of all transaction "+
				"outputs is %d which is higher than max "+
				"allowed value of %d", totalSatoshi, uint64(constants.MaxSatoshi))
		}
	}

	return nil
}

func checkDuplicateTransactionInputs(tx *externalapi.DomainTransaction) error {
	existingTxOut := make(map[externalapi.DomainOutpoint]struct{})
	for _, txIn := range tx.Inputs {
		if _, exists := existingTxOut[txIn.PreviousOutpoint]; exists {
			return errors.Wrapf(ruleerrors.ErrDuplicateTxInputs, "transaction "+
				"contains duplicate inputs")
		}
		existingTxOut[txIn.PreviousOutpoint] = struct{}{}
	}
	return nil
}

func checkCoinbaseLength(tx *externalapi.DomainTransaction) error {
	if !transactionhelper.IsCoinBase(tx) {
		return nil
	}

	// Coinbase signature script length must be between min and max length.
	scriptLength := len(tx.Inputs[0].SignatureScript)
	if scriptLength < constants.MinCoinbaseScriptLen || scriptLength > constants.MaxCoinbaseScriptLen {
		return errors.Wrapf(ruleerrors.ErrBadCoinbaseScriptLen, "coinbase transaction script "+
			"length of %d is out of range (min: %d, max: %d)",
			scriptLength, constants.MinCoinbaseScriptLen, constants.MaxCoinbaseScriptLen)
	}
	return nil
}

func checkNoNullInputs(tx *externalapi.DomainTransaction) error {
	if transactionhelper.IsCoinBase(tx) {
		return nil
	}

	// Previous transaction outputs referenced by the inputs to this
	// transaction must not be null.
	for _, txIn := range tx.Inputs {
		if txIn.PreviousOutpoint.IsNull() {
			return errors.Wrapf(ruleerrors.ErrBadTxInput, "transaction "+
				"input refers to previous output that "+
				"is null")
		}
	}
	return nil
}
