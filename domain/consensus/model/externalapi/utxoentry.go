package externalapi

import "bytes"

// UTXOEntry houses details about an individual transaction output in a utxo
// set such as whether or not it was contained in a coinbase tx, the height of
// the block that contains the tx, its public key script, and how
// much it pays.
type UTXOEntry struct {
	Amount          uint64
	ScriptPublicKey []byte
	BlockHeight     uint64
	IsCoinbase      bool
}

// NewUTXOEntry creates a new utxoEntry representing the given txOut
func NewUTXOEntry(amount uint64, scriptPubKey []byte, isCoinbase bool, blockHeight uint64) *UTXOEntry {
	return &UTXOEntry{
		Amount:          amount,
		ScriptPublicKey: scriptPubKey,
		BlockHeight:     blockHeight,
		IsCoinbase:      isCoinbase,
	}
}

// Equal returns whether entry equals to other
func (entry *UTXOEntry) Equal(other *UTXOEntry) bool {
	if entry == nil || other == nil {
		return entry == other
	}
	return entry.Amount == other.Amount &&
		entry.BlockHeight == other.BlockHeight &&
		entry.IsCoinbase == other.IsCoinbase &&
		bytes.Equal(entry.ScriptPublicKey, other.ScriptPublicKey)
}

// OutpointAndUTXOEntryPair is an outpoint along with its
// respective UTXO entry
type OutpointAndUTXOEntryPair struct {
	Outpoint  *DomainOutpoint
	UTXOEntry *UTXOEntry
}
