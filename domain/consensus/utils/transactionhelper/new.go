package transactionhelper

import (
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
	"github.com/utxonode/chaind/domain/consensus/utils/txscript"
)

// CoinbaseTransactionIndex is the index of the coinbase transaction in every block
const CoinbaseTransactionIndex = 0

// IsCoinBase determines whether or not a transaction is a coinbase transaction. A coinbase
// transaction is a special transaction created by miners that distributes fees and block subsidy
// to the miner. It has exactly one input, which spends the null outpoint.
func IsCoinBase(tx *externalapi.DomainTransaction) bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PreviousOutpoint.IsNull()
}

// NewNativeTransaction returns a new transaction with the given inputs and outputs
func NewNativeTransaction(version int32, inputs []*externalapi.DomainTransactionInput,
	outputs []*externalapi.DomainTransactionOutput) *externalapi.DomainTransaction {

	return &externalapi.DomainTransaction{
		Version:  version,
		Inputs:   inputs,
		Outputs:  outputs,
		LockTime: 0,
	}
}

// NewCoinbaseTransaction returns the coinbase of a block at the given height.
// Its signature script pushes the height followed by extraData, as required
// once coinbase heights are enforced.
func NewCoinbaseTransaction(height uint64, extraData []byte,
	outputs []*externalapi.DomainTransactionOutput) (*externalapi.DomainTransaction, error) {

	builder := txscript.NewScriptBuilder().AddInt64(int64(height))
	if len(extraData) > 0 {
		builder.AddData(extraData)
	}
	signatureScript, err := builder.Script()
	if err != nil {
		return nil, err
	}
	// Scripts shorter than the minimum are padded with OP_0.
	for len(signatureScript) < constants.MinCoinbaseScriptLen {
		signatureScript = append(signatureScript, 0)
	}

	input := &externalapi.DomainTransactionInput{
		PreviousOutpoint: externalapi.NullOutpoint,
		SignatureScript:  signatureScript,
		Sequence:         constants.MaxTxInSequenceNum,
	}
	return NewNativeTransaction(constants.TransactionVersion,
		[]*externalapi.DomainTransactionInput{input}, outputs), nil
}
