// Package utxostore implements the ledger: the set of coins left unspent by
// the active chain, together with the chain tip it reflects.
//
// Changes are made in a staging area that only the single writer sees, and
// become visible to readers on Commit. Committed changes live in a bounded
// write-back cache until they are flushed to the database.
package utxostore

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/multiset"
	"github.com/utxonode/chaind/domain/consensus/utils/utxo"
	"github.com/utxonode/chaind/infrastructure/db/database"
)

var (
	utxoBucket     = database.MakeBucket([]byte("utxo"))
	stateBucket    = database.MakeBucket([]byte("utxo-state"))
	tipKey         = stateBucket.Key([]byte("tip"))
	commitmentKey  = stateBucket.Key([]byte("multiset"))
	flushMarkerKey = stateBucket.Key([]byte("flush-marker"))
)

// UTXOStore is the ledger store.
//
// Reads of committed state are safe for concurrent access. Staging methods
// (ApplyBlock, UndoBlock, Commit, Discard) must be called by a single writer.
type UTXOStore struct {
	db      database.Database
	metrics *Metrics

	// mtx guards the committed state below.
	mtx        sync.RWMutex
	cache      *coinCache
	tip        externalapi.DomainHash
	commitment *multiset.Multiset
	flushedTip externalapi.DomainHash
	marker     *flushMarker

	staging *stagingArea
}

// New opens the ledger kept in db. A database without a ledger is
// initialized with an empty coin set at genesisHash.
func New(db database.Database, cacheCapacity int, genesisHash *externalapi.DomainHash) (*UTXOStore, error) {
	s := &UTXOStore{
		db:      db,
		metrics: newMetrics(),
		cache:   newCoinCache(cacheCapacity),
	}

	tipBytes, err := db.Get(tipKey)
	if database.IsNotFoundError(err) {
		err = s.initialize(genesisHash)
		if err != nil {
			return nil, err
		}
		s.staging = newStagingArea(&s.tip)
		return s, nil
	}
	if err != nil {
		return nil, ruleerrors.NewStoreIOError(err)
	}

	tip, err := externalapi.NewDomainHashFromByteSlice(tipBytes)
	if err != nil {
		return nil, errors.Wrap(err, "stored ledger tip is corrupt")
	}
	commitmentBytes, err := db.Get(commitmentKey)
	if err != nil {
		return nil, ruleerrors.NewStoreIOError(err)
	}
	commitment, err := multiset.FromBytes(commitmentBytes)
	if err != nil {
		return nil, errors.Wrap(err, "stored ledger commitment is corrupt")
	}
	s.tip = *tip
	s.flushedTip = *tip
	s.commitment = commitment

	s.marker, err = s.readFlushMarker()
	if err != nil {
		return nil, err
	}
	if s.marker != nil {
		log.Warnf("The ledger was interrupted while flushing from %s to %s and must be reconciled",
			s.marker.from, s.marker.to)
	}

	s.staging = newStagingArea(&s.tip)
	log.Infof("Loaded ledger at tip %s", s.tip)
	return s, nil
}

func (s *UTXOStore) initialize(genesisHash *externalapi.DomainHash) error {
	s.tip = *genesisHash
	s.flushedTip = *genesisHash
	s.commitment = multiset.New()

	dbTx, err := s.db.Begin()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	defer dbTx.RollbackUnlessClosed()

	err = s.writeState(dbTx)
	if err != nil {
		return err
	}
	err = dbTx.Commit()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	log.Infof("Initialized an empty ledger at genesis %s", genesisHash)
	return nil
}

// writeState writes the committed tip and commitment.
func (s *UTXOStore) writeState(dbTx database.Transaction) error {
	err := dbTx.Put(tipKey, s.tip.ByteSlice())
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	err = dbTx.Put(commitmentKey, s.commitment.Serialize())
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	return nil
}

// Metrics returns the prometheus collectors of this store.
func (s *UTXOStore) Metrics() *Metrics {
	return s.metrics
}

// Tip returns the hash of the block the committed coin set reflects.
func (s *UTXOStore) Tip() *externalapi.DomainHash {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	tip := s.tip
	return &tip
}

// Commitment returns the MuHash of the committed coin set.
func (s *UTXOStore) Commitment() *externalapi.DomainHash {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.commitment.Hash()
}

// GetCoin returns the committed coin at outpoint, if it is unspent.
func (s *UTXOStore) GetCoin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.committedCoin(outpoint)
}

// committedCoin must be called with the lock held. It does not populate
// the cache.
func (s *UTXOStore) committedCoin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error) {
	if entry, ok := s.cache.get(outpoint); ok {
		s.metrics.CacheHits.Inc()
		return entry.coin, entry.coin != nil, nil
	}
	s.metrics.CacheMisses.Inc()
	return s.dbCoin(outpoint)
}

func (s *UTXOStore) dbCoin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error) {
	coinBytes, err := s.db.Get(utxoBucket.Key(utxo.SerializeOutpoint(outpoint)))
	if database.IsNotFoundError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ruleerrors.NewStoreIOError(err)
	}
	coin, err := utxo.DeserializeUTXOEntry(coinBytes)
	if err != nil {
		return nil, false, errors.Wrapf(err, "stored coin %s is corrupt", outpoint)
	}
	return coin, true, nil
}

// fetchCommittedCoin is the writer's committed lookup: database reads are
// kept in the cache.
func (s *UTXOStore) fetchCommittedCoin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	coin, found, err := s.committedCoin(outpoint)
	if err != nil {
		return nil, false, err
	}
	if found {
		if _, cached := s.cache.get(outpoint); !cached {
			s.cache.addClean(outpoint, coin)
			s.metrics.CacheSize.Set(float64(s.cache.len()))
		}
	}
	return coin, found, nil
}
