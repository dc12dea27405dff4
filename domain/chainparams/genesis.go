// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainparams

import (
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
	"github.com/utxonode/chaind/domain/consensus/utils/merkle"
)

// genesisCoinbaseTx is the coinbase transaction for the genesis blocks of
// all networks. Its output is never added to the ledger.
var genesisCoinbaseTx = externalapi.DomainTransaction{
	Version: 1,
	Inputs: []*externalapi.DomainTransactionInput{
		{
			PreviousOutpoint: externalapi.NullOutpoint,
			SignatureScript: []byte{
				0x04, 0xff, 0xff, 0x00, 0x1d, 0x01, 0x04, 0x45, /* |.......E| */
				0x54, 0x68, 0x65, 0x20, 0x54, 0x69, 0x6d, 0x65, /* |The Time| */
				0x73, 0x20, 0x30, 0x33, 0x2f, 0x4a, 0x61, 0x6e, /* |s 03/Jan| */
				0x2f, 0x32, 0x30, 0x30, 0x39, 0x20, 0x43, 0x68, /* |/2009 Ch| */
				0x61, 0x6e, 0x63, 0x65, 0x6c, 0x6c, 0x6f, 0x72, /* |ancellor| */
				0x20, 0x6f, 0x6e, 0x20, 0x62, 0x72, 0x69, 0x6e, /* | on brin| */
				0x6b, 0x20, 0x6f, 0x66, 0x20, 0x73, 0x65, 0x63, /* |k of sec|*/
				0x6f, 0x6e, 0x64, 0x20, 0x62, 0x61, 0x69, 0x6c, /* |ond bail| */
				0x6f, 0x75, 0x74, 0x20, 0x66, 0x6f, 0x72, 0x20, /* |out for |*/
				0x62, 0x61, 0x6e, 0x6b, 0x73, /* |banks| */
			},
			Sequence: constants.MaxTxInSequenceNum,
		},
	},
	Outputs: []*externalapi.DomainTransactionOutput{
		{
			Value:           baseSubsidy,
			ScriptPublicKey: []byte{0x6a}, // OP_RETURN
		},
	},
	LockTime: 0,
}

func newGenesisBlock(timeInSeconds int64, bits uint32, nonce uint64) externalapi.DomainBlock {
	transactions := []*externalapi.DomainTransaction{&genesisCoinbaseTx}
	return externalapi.DomainBlock{
		Header: &externalapi.DomainBlockHeader{
			Version:       1,
			ParentHash:    externalapi.DomainHash{},
			MerkleRoot:    *merkle.CalculateHashMerkleRoot(transactions),
			TimeInSeconds: timeInSeconds,
			Bits:          bits,
			Nonce:         nonce,
		},
		Transactions: transactions,
	}
}

// genesisBlock defines the genesis block of the block chain which serves as the
// public transaction ledger for the main and test networks.
var genesisBlock = newGenesisBlock(1231006505, 0x1d00ffff, 2083236893)

// genesisHash is the hash of the first block in the block chain for the main
// network (genesis block).
var genesisHash = consensushashing.BlockHash(&genesisBlock)

// regtestGenesisBlock defines the genesis block of the block chain which serves
// as the public transaction ledger for the regression test network.
var regtestGenesisBlock = newGenesisBlock(1296688602, 0x207fffff, 2)

// regtestGenesisHash is the hash of the first block in the block chain for the
// regression test network (genesis block).
var regtestGenesisHash = consensushashing.BlockHash(&regtestGenesisBlock)

// simnetGenesisBlock defines the genesis block of the block chain which serves
// as the public transaction ledger for the simulation test network.
var simnetGenesisBlock = newGenesisBlock(1401292357, 0x207fffff, 2)

// simnetGenesisHash is the hash of the first block in the block chain for the
// simulation test network (genesis block).
var simnetGenesisHash = consensushashing.BlockHash(&simnetGenesisBlock)
