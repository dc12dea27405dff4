package testutils

import (
	"encoding/binary"

	"github.com/utxonode/chaind/domain/chainparams"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
	"github.com/utxonode/chaind/domain/consensus/utils/merkle"
	"github.com/utxonode/chaind/domain/consensus/utils/pow"
)

// BlockInterval is the time between the blocks built by ChainBuilder.
const BlockInterval = 600

// ChainBuilder builds solved blocks for a network whose proof-of-work limit
// makes mining trivial, such as regtest or simnet.
type ChainBuilder struct {
	params *chainparams.Params

	// heights of the blocks built so far, so that a block can be built on
	// any of them.
	heights map[externalapi.DomainHash]uint64
	headers map[externalapi.DomainHash]*externalapi.DomainBlockHeader
	nonce   uint64
}

// NewChainBuilder returns a builder starting from the network's genesis.
func NewChainBuilder(params *chainparams.Params) *ChainBuilder {
	genesisHeader := params.GenesisBlock.Header
	return &ChainBuilder{
		params:  params,
		heights: map[externalapi.DomainHash]uint64{*params.GenesisHash: 0},
		headers: map[externalapi.DomainHash]*externalapi.DomainBlockHeader{*params.GenesisHash: genesisHeader},
	}
}

// Genesis returns the hash of the network's genesis block.
func (b *ChainBuilder) Genesis() *externalapi.DomainHash {
	return b.params.GenesisHash
}

// Height returns the height of a block built by b.
func (b *ChainBuilder) Height(blockHash *externalapi.DomainHash) uint64 {
	return b.heights[*blockHash]
}

// BuildBlock returns a solved block on top of parentHash, which must be the
// genesis or a block built by b. Its coinbase pays the block subsidy plus
// fees to OpTrueScript, and every call produces a distinct coinbase so
// that sibling blocks never collide.
func (b *ChainBuilder) BuildBlock(parentHash *externalapi.DomainHash, fees uint64,
	transactions ...*externalapi.DomainTransaction) *externalapi.DomainBlock {

	parent, ok := b.headers[*parentHash]
	if !ok {
		panic("BuildBlock called with an unknown parent " + parentHash.String())
	}
	height := b.heights[*parentHash] + 1

	b.nonce++
	extraNonce := make([]byte, 8)
	binary.LittleEndian.PutUint64(extraNonce, b.nonce)
	coinbase, err := NewCoinbase(height, extraNonce, b.params.CalcBlockSubsidy(height)+fees)
	if err != nil {
		panic(err)
	}

	allTransactions := append([]*externalapi.DomainTransaction{coinbase}, transactions...)
	header := &externalapi.DomainBlockHeader{
		Version:       constants.BlockVersion,
		ParentHash:    *parentHash,
		MerkleRoot:    *merkle.CalculateHashMerkleRoot(allTransactions),
		TimeInSeconds: parent.TimeInSeconds + BlockInterval,
		Bits:          parent.Bits,
	}
	pow.SolveHeader(header)

	block := &externalapi.DomainBlock{Header: header, Transactions: allTransactions}
	blockHash := consensushashing.BlockHash(block)
	b.heights[*blockHash] = height
	b.headers[*blockHash] = header
	return block
}

// BuildChain builds length blocks, each on top of the previous one, starting
// on top of parentHash.
func (b *ChainBuilder) BuildChain(parentHash *externalapi.DomainHash, length int) []*externalapi.DomainBlock {
	blocks := make([]*externalapi.DomainBlock, 0, length)
	for i := 0; i < length; i++ {
		block := b.BuildBlock(parentHash, 0)
		blocks = append(blocks, block)
		parentHash = consensushashing.BlockHash(block)
	}
	return blocks
}

// Resolve recomputes the merkle root and proof of work of block after its
// transactions were modified, and registers it with b.
func (b *ChainBuilder) Resolve(block *externalapi.DomainBlock) {
	block.Header.MerkleRoot = *merkle.CalculateHashMerkleRoot(block.Transactions)
	pow.SolveHeader(block.Header)
	blockHash := consensushashing.BlockHash(block)
	b.heights[*blockHash] = b.heights[block.Header.ParentHash] + 1
	b.headers[*blockHash] = block.Header
}

// CoinbaseOutpoint returns the outpoint of the first coinbase output of
// block.
func CoinbaseOutpoint(block *externalapi.DomainBlock) *externalapi.DomainOutpoint {
	return externalapi.NewDomainOutpoint(consensushashing.TransactionID(block.Transactions[0]), 0)
}
