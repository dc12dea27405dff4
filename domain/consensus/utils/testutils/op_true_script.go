package testutils

import (
	btcscript "github.com/btcsuite/btcd/txscript"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
	"github.com/utxonode/chaind/domain/consensus/utils/transactionhelper"
)

// OpTrueScript returns a script public key that an empty signature script
// satisfies.
func OpTrueScript() []byte {
	return []byte{btcscript.OP_TRUE}
}

// SpendTransaction returns a version 1 transaction that spends outpoint,
// which must be locked by OpTrueScript, into one OpTrueScript output per
// given value.
func SpendTransaction(outpoint *externalapi.DomainOutpoint, values ...uint64) *externalapi.DomainTransaction {
	input := &externalapi.DomainTransactionInput{
		PreviousOutpoint: *outpoint,
		SignatureScript:  []byte{},
		Sequence:         constants.MaxTxInSequenceNum,
	}
	outputs := make([]*externalapi.DomainTransactionOutput, len(values))
	for i, value := range values {
		outputs[i] = &externalapi.DomainTransactionOutput{Value: value, ScriptPublicKey: OpTrueScript()}
	}
	return transactionhelper.NewNativeTransaction(constants.TransactionVersion,
		[]*externalapi.DomainTransactionInput{input}, outputs)
}
