package utxostore

import (
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/multiset"
	"github.com/utxonode/chaind/domain/consensus/utils/txscript"
	"github.com/utxonode/chaind/domain/consensus/utils/utxo"
	"github.com/utxonode/chaind/infrastructure/db/database"
	"github.com/utxonode/chaind/infrastructure/logger"
)

// flushBatchSize is the number of coin writes per database transaction
// during a flush.
const flushBatchSize = 10_000

// flushMarker is written before the first coin of a flush reaches the
// database and deleted together with the final tip. Its presence on startup
// means the coins in the database are a mix of the two tips.
type flushMarker struct {
	from externalapi.DomainHash
	to   externalapi.DomainHash
}

func (m *flushMarker) serialize() []byte {
	return append(m.from.ByteSlice(), m.to.ByteSlice()...)
}

func (s *UTXOStore) readFlushMarker() (*flushMarker, error) {
	markerBytes, err := s.db.Get(flushMarkerKey)
	if database.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ruleerrors.NewStoreIOError(err)
	}
	if len(markerBytes) != 2*externalapi.DomainHashSize {
		return nil, errors.Errorf("flush marker is %d bytes, expected %d",
			len(markerBytes), 2*externalapi.DomainHashSize)
	}
	from, err := externalapi.NewDomainHashFromByteSlice(markerBytes[:externalapi.DomainHashSize])
	if err != nil {
		return nil, err
	}
	to, err := externalapi.NewDomainHashFromByteSlice(markerBytes[externalapi.DomainHashSize:])
	if err != nil {
		return nil, err
	}
	return &flushMarker{from: *from, to: *to}, nil
}

// Flush writes every committed change to the database. The write order is:
// the flush marker, the coin batches, and finally the tip and commitment
// together with the marker's deletion.
func (s *UTXOStore) Flush() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.marker != nil {
		return errors.Errorf("cannot flush a ledger that was not reconciled")
	}
	if s.cache.dirtyCount == 0 && s.tip == s.flushedTip {
		return nil
	}
	defer logger.LogAndMeasureExecutionTime(log, "UTXOStore.Flush")()

	marker := &flushMarker{from: s.flushedTip, to: s.tip}
	err := s.db.Put(flushMarkerKey, marker.serialize())
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}

	written, err := s.writeDirtyCoins()
	if err != nil {
		return err
	}

	dbTx, err := s.db.Begin()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	defer dbTx.RollbackUnlessClosed()
	err = s.writeState(dbTx)
	if err != nil {
		return err
	}
	err = dbTx.Delete(flushMarkerKey)
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	err = dbTx.Commit()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}

	s.cache.markFlushed()
	s.cache.evictToCapacity()
	s.flushedTip = s.tip
	s.metrics.Flushes.Inc()
	s.metrics.CacheSize.Set(float64(s.cache.len()))
	log.Debugf("Flushed %d coin changes, the ledger is durable at %s", written, s.tip)
	return nil
}

func (s *UTXOStore) writeDirtyCoins() (int, error) {
	var dbTx database.Transaction
	pending := 0
	written := 0
	commitPending := func() error {
		if dbTx == nil {
			return nil
		}
		err := dbTx.Commit()
		dbTx = nil
		pending = 0
		return ruleerrors.NewStoreIOError(err)
	}

	for outpoint, entry := range s.cache.entries {
		if !entry.dirty {
			continue
		}
		if dbTx == nil {
			var err error
			dbTx, err = s.db.Begin()
			if err != nil {
				return 0, ruleerrors.NewStoreIOError(err)
			}
		}

		outpoint := outpoint
		key := utxoBucket.Key(utxo.SerializeOutpoint(&outpoint))
		var err error
		if entry.coin == nil {
			err = dbTx.Delete(key)
		} else {
			err = dbTx.Put(key, utxo.SerializeUTXOEntry(entry.coin))
		}
		if err != nil {
			_ = dbTx.RollbackUnlessClosed()
			return 0, ruleerrors.NewStoreIOError(err)
		}
		pending++
		written++

		if pending >= flushBatchSize {
			err := commitPending()
			if err != nil {
				return 0, err
			}
		}
	}
	err := commitPending()
	if err != nil {
		return 0, err
	}
	return written, nil
}

// NeedsReconcile returns whether a flush was interrupted.
func (s *UTXOStore) NeedsReconcile() bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.marker != nil
}

// Reconcile recovers from an interrupted flush. plan is asked for the
// blocks between the marker's tips; they are rolled back and replayed with
// idempotent writes, after which the commitment is recomputed from the
// database. It is a no-op when no flush was interrupted.
func (s *UTXOStore) Reconcile(plan func(from, to *externalapi.DomainHash) (*model.ReconcilePlan, error)) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.marker == nil {
		return nil
	}
	from, to := s.marker.from, s.marker.to
	reconcilePlan, err := plan(&from, &to)
	if err != nil {
		return err
	}
	log.Infof("Reconciling the ledger from %s to %s: rolling back %d blocks, replaying %d",
		from, to, len(reconcilePlan.Rollback), len(reconcilePlan.Replay))

	for _, undo := range reconcilePlan.Rollback {
		err := s.rollbackIdempotent(undo)
		if err != nil {
			return err
		}
	}
	for _, blockAtHeight := range reconcilePlan.Replay {
		err := s.replayIdempotent(blockAtHeight.Block, blockAtHeight.Height)
		if err != nil {
			return err
		}
	}

	commitment, err := s.recomputeCommitment()
	if err != nil {
		return err
	}

	dbTx, err := s.db.Begin()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	defer dbTx.RollbackUnlessClosed()
	s.tip = to
	s.commitment = commitment
	err = s.writeState(dbTx)
	if err != nil {
		return err
	}
	err = dbTx.Delete(flushMarkerKey)
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	err = dbTx.Commit()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}

	s.flushedTip = to
	s.marker = nil
	s.cache = newCoinCache(s.cache.capacity)
	s.staging = newStagingArea(&to)
	log.Infof("The ledger is reconciled at %s", to)
	return nil
}

func (s *UTXOStore) rollbackIdempotent(undo *model.UndoRecord) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	defer dbTx.RollbackUnlessClosed()

	for _, outpoint := range undo.CreatedOutpoints {
		err := dbTx.Delete(utxoBucket.Key(utxo.SerializeOutpoint(outpoint)))
		if err != nil {
			return ruleerrors.NewStoreIOError(err)
		}
	}
	for _, spent := range undo.SpentCoins {
		err := dbTx.Put(utxoBucket.Key(utxo.SerializeOutpoint(spent.Outpoint)),
			utxo.SerializeUTXOEntry(spent.UTXOEntry))
		if err != nil {
			return ruleerrors.NewStoreIOError(err)
		}
	}
	return ruleerrors.NewStoreIOError(dbTx.Commit())
}

func (s *UTXOStore) replayIdempotent(block *externalapi.DomainBlock, height uint64) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	defer dbTx.RollbackUnlessClosed()

	for i, tx := range block.Transactions {
		isCoinbase := i == 0
		if !isCoinbase {
			for _, input := range tx.Inputs {
				err := dbTx.Delete(utxoBucket.Key(utxo.SerializeOutpoint(&input.PreviousOutpoint)))
				if err != nil {
					return ruleerrors.NewStoreIOError(err)
				}
			}
		}
		txID := consensushashing.TransactionID(tx)
		for index, output := range tx.Outputs {
			if txscript.IsUnspendable(output.ScriptPublicKey) {
				continue
			}
			coin := externalapi.NewUTXOEntry(output.Value, output.ScriptPublicKey, isCoinbase, height)
			err := dbTx.Put(utxoBucket.Key(utxo.SerializeOutpoint(externalapi.NewDomainOutpoint(txID, uint32(index)))),
				utxo.SerializeUTXOEntry(coin))
			if err != nil {
				return ruleerrors.NewStoreIOError(err)
			}
		}
	}
	return ruleerrors.NewStoreIOError(dbTx.Commit())
}

func (s *UTXOStore) recomputeCommitment() (*multiset.Multiset, error) {
	commitment := multiset.New()
	err := s.forEachDBCoin(func(outpoint *externalapi.DomainOutpoint, coin *externalapi.UTXOEntry) error {
		commitment.Add(utxo.SerializeUTXO(outpoint, coin))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commitment, nil
}

func (s *UTXOStore) forEachDBCoin(f func(outpoint *externalapi.DomainOutpoint, coin *externalapi.UTXOEntry) error) error {
	cursor, err := s.db.Cursor(utxoBucket)
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	defer cursor.Close()

	for cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return ruleerrors.NewStoreIOError(err)
		}
		outpoint, err := utxo.DeserializeOutpoint(key.Suffix())
		if err != nil {
			return errors.Wrap(err, "stored outpoint is corrupt")
		}
		value, err := cursor.Value()
		if err != nil {
			return ruleerrors.NewStoreIOError(err)
		}
		coin, err := utxo.DeserializeUTXOEntry(value)
		if err != nil {
			return errors.Wrapf(err, "stored coin %s is corrupt", outpoint)
		}
		err = f(outpoint, coin)
		if err != nil {
			return err
		}
	}
	return nil
}
