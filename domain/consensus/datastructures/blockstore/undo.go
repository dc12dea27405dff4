package blockstore

import (
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/utxo"
	"github.com/utxonode/chaind/infrastructure/db/database"
)

var undoBucket = database.MakeBucket([]byte("undo"))

// StoreUndo durably stores the undo record of a connected block,
// overwriting any earlier record of the same block.
func (bs *BlockStore) StoreUndo(undo *model.UndoRecord) error {
	err := bs.db.Put(undoBucket.Key(undo.BlockHash.ByteSlice()), utxo.SerializeUndoRecord(undo))
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	return nil
}

// Undo returns the undo record of the block with the given hash. It fails
// with database.ErrNotFound if the block was never connected.
func (bs *BlockStore) Undo(blockHash *externalapi.DomainHash) (*model.UndoRecord, error) {
	undoBytes, err := bs.db.Get(undoBucket.Key(blockHash.ByteSlice()))
	if database.IsNotFoundError(err) {
		return nil, errors.Wrapf(err, "undo record of block %s", blockHash)
	}
	if err != nil {
		return nil, ruleerrors.NewStoreIOError(err)
	}
	undo, err := utxo.DeserializeUndoRecord(undoBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "stored undo record of block %s is corrupt", blockHash)
	}
	return undo, nil
}
