package blockstore

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/infrastructure/db/database"
)

var indexBucket = database.MakeBucket([]byte("block-index"))

// StoreIndexEntries durably writes the given block index entries in a
// single database transaction.
func (bs *BlockStore) StoreIndexEntries(entries []*blockindex.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dbTx, err := bs.db.Begin()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	defer dbTx.RollbackUnlessClosed()

	for _, entry := range entries {
		err := dbTx.Put(indexBucket.Key(entry.Hash().ByteSlice()), blockindex.SerializeEntry(entry))
		if err != nil {
			return ruleerrors.NewStoreIOError(err)
		}
	}
	err = dbTx.Commit()
	if err != nil {
		return ruleerrors.NewStoreIOError(err)
	}
	return nil
}

type storedEntry struct {
	header     *externalapi.DomainBlockHeader
	status     blockindex.Status
	sequenceID uint64
}

// LoadIndex loads every persisted entry into bi, which must be empty. It
// returns the number of loaded entries.
func (bs *BlockStore) LoadIndex(bi *blockindex.BlockIndex) (int, error) {
	cursor, err := bs.db.Cursor(indexBucket)
	if err != nil {
		return 0, ruleerrors.NewStoreIOError(err)
	}
	defer cursor.Close()

	var stored []*storedEntry
	for cursor.Next() {
		entryBytes, err := cursor.Value()
		if err != nil {
			return 0, ruleerrors.NewStoreIOError(err)
		}
		header, status, sequenceID, err := blockindex.DeserializeEntry(entryBytes)
		if err != nil {
			return 0, errors.Wrap(err, "stored block index entry is corrupt")
		}
		stored = append(stored, &storedEntry{header: header, status: status, sequenceID: sequenceID})
	}

	// A header is always seen after its parent, so sequence order is a
	// topological order.
	sort.Slice(stored, func(i, j int) bool { return stored[i].sequenceID < stored[j].sequenceID })
	for _, entry := range stored {
		_, err := bi.LoadEntry(entry.header, entry.status, entry.sequenceID)
		if err != nil {
			return 0, err
		}
	}
	return len(stored), nil
}
