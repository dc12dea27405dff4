package consensus

import (
	"github.com/lightningnetwork/lnd/clock"
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/chainparams"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockstore"
	"github.com/utxonode/chaind/domain/consensus/datastructures/utxostore"
	"github.com/utxonode/chaind/domain/consensus/notifications"
	"github.com/utxonode/chaind/domain/consensus/processes/blockvalidator"
	"github.com/utxonode/chaind/domain/consensus/processes/chainconnector"
	"github.com/utxonode/chaind/domain/consensus/processes/chainselector"
	"github.com/utxonode/chaind/domain/consensus/processes/scriptvalidator"
	"github.com/utxonode/chaind/domain/consensus/processes/transactionvalidator"
	"github.com/utxonode/chaind/domain/consensus/utils/txscript"
	"github.com/utxonode/chaind/infrastructure/db/database"
)

const (
	// DefaultUTXOCacheSize is the default number of coins held by the
	// ledger cache before it is flushed.
	DefaultUTXOCacheSize = 1_000_000

	// DefaultBlockCacheSize is the default number of blocks kept in memory
	// by the block store.
	DefaultBlockCacheSize = 200

	// DefaultSigCacheSize is the default number of entries of the
	// signature cache.
	DefaultSigCacheSize = 100_000
)

// Config holds the settings of a Consensus.
type Config struct {
	Params *chainparams.Params

	UTXOCacheSize  int
	BlockCacheSize int

	// ScriptThreads is the number of goroutines verifying the scripts of
	// a block. A non-positive value uses one per CPU.
	ScriptThreads int

	SigCacheSize uint

	// Clock is the adjusted network time. Nil uses the system clock.
	Clock clock.Clock
}

// DefaultConfig returns the default config for the given network.
func DefaultConfig(params *chainparams.Params) *Config {
	return &Config{
		Params:         params,
		UTXOCacheSize:  DefaultUTXOCacheSize,
		BlockCacheSize: DefaultBlockCacheSize,
		SigCacheSize:   DefaultSigCacheSize,
	}
}

// Factory instantiates new Consensuses
type Factory interface {
	NewConsensus(config *Config, db database.Database) (Consensus, error)
}

type factory struct{}

// NewFactory creates a new Consensus factory
func NewFactory() Factory {
	return &factory{}
}

// NewConsensus instantiates a new Consensus over db. A database holding
// a previous run is loaded, and its ledger reconciled if a flush was
// interrupted. The returned Consensus is at the best valid chain tip it
// knows of.
func (f *factory) NewConsensus(config *Config, db database.Database) (Consensus, error) {
	params := config.Params
	adjustedClock := config.Clock
	if adjustedClock == nil {
		adjustedClock = clock.NewDefaultClock()
	}

	// Data Structures
	blockIndex := blockindex.New()
	activeChain := blockindex.NewActiveChain(blockIndex)
	blockStore, err := blockstore.New(db, config.BlockCacheSize)
	if err != nil {
		return nil, err
	}
	err = loadBlockIndex(params, blockIndex, blockStore)
	if err != nil {
		return nil, err
	}
	utxoStore, err := utxostore.New(db, config.UTXOCacheSize, params.GenesisHash)
	if err != nil {
		return nil, err
	}
	sigCache, err := txscript.NewSigCache(config.SigCacheSize)
	if err != nil {
		return nil, err
	}

	// Processes
	transactionValidator := transactionvalidator.New(params, blockIndex)
	blockValidator := blockvalidator.New(params, blockIndex, transactionValidator, adjustedClock)
	scriptValidator := scriptvalidator.New(params, blockIndex, sigCache, config.ScriptThreads)
	chainSelector := chainselector.New(blockIndex)
	dispatcher := notifications.NewDispatcher()
	chainConnector := chainconnector.New(blockIndex, activeChain, blockStore, utxoStore,
		blockValidator, scriptValidator, chainSelector, dispatcher)

	c := &consensus{
		params:          params,
		blockIndex:      blockIndex,
		activeChain:     activeChain,
		blockStore:      blockStore,
		utxoStore:       utxoStore,
		sigCache:        sigCache,
		blockValidator:  blockValidator,
		scriptValidator: scriptValidator,
		chainConnector:  chainConnector,
		dispatcher:      dispatcher,
	}

	err = c.reconcileLedger()
	if err != nil {
		sigCache.Close()
		return nil, err
	}
	dispatcher.Start()
	_, err = c.chainConnector.ActivateBestChain()
	if err == nil {
		err = c.storeDirtyIndexEntries()
	}
	if err != nil {
		dispatcher.Stop()
		sigCache.Close()
		return nil, err
	}
	log.Infof("Consensus is at tip %s, best header %s", activeChain.Tip(), blockIndex.BestHeader())
	return c, nil
}

// loadBlockIndex fills blockIndex from blockStore, or, on a new database,
// with the genesis block of params.
func loadBlockIndex(params *chainparams.Params, blockIndex *blockindex.BlockIndex,
	blockStore *blockstore.BlockStore) error {

	loaded, err := blockStore.LoadIndex(blockIndex)
	if err != nil {
		return err
	}
	if loaded > 0 {
		genesis := blockIndex.Genesis()
		if !genesis.Hash().Equal(params.GenesisHash) {
			return errors.Errorf("the database belongs to a network with genesis %s, not %s (%s)",
				genesis.Hash(), params.GenesisHash, params.Name)
		}
		log.Infof("Loaded %d block index entries", loaded)
		return nil
	}

	_, err = blockIndex.InsertGenesis(params.GenesisBlock.Header)
	if err != nil {
		return err
	}
	err = blockStore.StoreBlock(params.GenesisBlock)
	if err != nil {
		return err
	}
	dirty := blockIndex.DirtyEntries()
	err = blockStore.StoreIndexEntries(dirty)
	if err != nil {
		return err
	}
	blockIndex.ClearDirty(dirty)
	log.Infof("Initialized a new block index at genesis %s", params.GenesisHash)
	return nil
}
