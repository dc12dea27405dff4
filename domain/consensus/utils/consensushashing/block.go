package consensushashing

import (
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/hashes"
	"github.com/utxonode/chaind/domain/consensus/utils/serialization"
)

// BlockHash returns the given block's hash
func BlockHash(block *externalapi.DomainBlock) *externalapi.DomainHash {
	return HeaderHash(block.Header)
}

// HeaderHash returns the given header's hash
func HeaderHash(header *externalapi.DomainBlockHeader) *externalapi.DomainHash {
	writer := hashes.NewDoubleHashWriter()
	err := serialization.SerializeHeader(writer, header)
	if err != nil {
		// It seems like this could only happen if the writer returned an error.
		// and this writer should never return an error (no allocations or possible failures)
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}

	return writer.Finalize()
}

// TransactionID returns the given transaction's ID
func TransactionID(tx *externalapi.DomainTransaction) *externalapi.DomainHash {
	writer := hashes.NewDoubleHashWriter()
	err := serialization.SerializeTransaction(writer, tx)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}

	return writer.Finalize()
}

// TransactionIDs returns the IDs of the given transactions, in order.
func TransactionIDs(txs []*externalapi.DomainTransaction) []*externalapi.DomainHash {
	ids := make([]*externalapi.DomainHash, len(txs))
	for i, tx := range txs {
		ids[i] = TransactionID(tx)
	}
	return ids
}
