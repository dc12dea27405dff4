package testutils

import (
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/transactionhelper"
)

// NewCoinbase returns the coinbase of a block at height paying value to
// OpTrueScript.
func NewCoinbase(height uint64, extraData []byte, value uint64) (*externalapi.DomainTransaction, error) {
	return transactionhelper.NewCoinbaseTransaction(height, extraData, []*externalapi.DomainTransactionOutput{
		{Value: value, ScriptPublicKey: OpTrueScript()},
	})
}
