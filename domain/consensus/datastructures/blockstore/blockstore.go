// Package blockstore persists block bodies, undo records and block index
// entries. Every write is durable once the call returns.
package blockstore

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/serialization"
	"github.com/utxonode/chaind/infrastructure/db/database"
)

var blocksBucket = database.MakeBucket([]byte("blocks"))
var countKey = database.MakeBucket(nil).Key([]byte("blocks-count"))

// BlockStore is a store of blocks, undo records and index entries, with a
// small in-memory cache of recently used blocks.
//
// BlockStore is safe for concurrent access.
type BlockStore struct {
	db database.Database

	mtx   sync.Mutex
	cache map[externalapi.DomainHash]*externalapi.DomainBlock
	// cacheSize is the maximal number of cached blocks
	cacheSize int
	count     uint64
}

// New instantiates a new BlockStore
func New(db database.Database, cacheSize int) (*BlockStore, error) {
	bs := &BlockStore{
		db:        db,
		cache:     make(map[externalapi.DomainHash]*externalapi.DomainBlock, cacheSize+1),
		cacheSize: cacheSize,
	}
	err := bs.initializeCount()
	if err != nil {
		return nil, err
	}
	return bs, nil
}

func (bs *BlockStore) initializeCount() error {
	countBytes, err := bs.db.Get(countKey)
	if database.IsNotFoundError(err) {
		bs.count = 0
		return nil
	}
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	if len(countBytes) != 8 {
		return errors.Errorf("block count is %d bytes, expected 8", len(countBytes))
	}
	bs.count = binary.LittleEndian.Uint64(countBytes)
	return nil
}

// StoreBlock durably stores block under its hash. Storing a block that is
// already present is a no-op.
func (bs *BlockStore) StoreBlock(block *externalapi.DomainBlock) error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	blockHash := consensushashing.BlockHash(block)
	key := blocksBucket.Key(blockHash.ByteSlice())
	exists, err := bs.db.Has(key)
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	if exists {
		return nil
	}

	dbTx, err := bs.db.Begin()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	defer dbTx.RollbackUnlessClosed()

	err = dbTx.Put(key, serialization.BlockToBytes(block))
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	countBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(countBytes, bs.count+1)
	err = dbTx.Put(countKey, countBytes)
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	err = dbTx.Commit()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}

	bs.count++
	bs.addToCache(blockHash, block.Clone())
	return nil
}

// Block returns the block with the given hash. It fails with
// database.ErrNotFound if the block body was never stored.
func (bs *BlockStore) Block(blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, error) {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	if block, ok := bs.cache[*blockHash]; ok {
		return block.Clone(), nil
	}

	blockBytes, err := bs.db.Get(blocksBucket.Key(blockHash.ByteSlice()))
	if database.IsNotFoundError(err) {
		return nil, errors.Wrapf(err, "block %s", blockHash)
	}
	if err != nil {
		return nil, ruleerrors.NewStoreIOError(err)
	}
	block, err := serialization.BlockFromBytes(blockBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "stored block %s is corrupt", blockHash)
	}
	bs.addToCache(blockHash, block)
	return block.Clone(), nil
}

// HasBlock returns whether a block with a given hash exists in the store.
func (bs *BlockStore) HasBlock(blockHash *externalapi.DomainHash) (bool, error) {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	if _, ok := bs.cache[*blockHash]; ok {
		return true, nil
	}
	exists, err := bs.db.Has(blocksBucket.Key(blockHash.ByteSlice()))
	if err != nil {
		return false, ruleerrors.NewStoreIOError(err)
	}
	return exists, nil
}

// Count returns the number of stored blocks.
func (bs *BlockStore) Count() uint64 {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	return bs.count
}

func (bs *BlockStore) addToCache(blockHash *externalapi.DomainHash, block *externalapi.DomainBlock) {
	bs.cache[*blockHash] = block
	if len(bs.cache) > bs.cacheSize {
		bs.evictRandom()
	}
}

func (bs *BlockStore) evictRandom() {
	for key := range bs.cache {
		delete(bs.cache, key)
		return
	}
}
