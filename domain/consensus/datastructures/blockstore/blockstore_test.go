package blockstore

import (
	"errors"
	"testing"

	"github.com/utxonode/chaind/domain/chainparams"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/model"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/infrastructure/db/database"
	"github.com/utxonode/chaind/infrastructure/db/database/badgerdb"
)

func newTestStore(t *testing.T) (*BlockStore, database.Database) {
	db, err := badgerdb.NewBadgerDB("", 8)
	if err != nil {
		t.Fatalf("NewBadgerDB: %s", err)
	}
	t.Cleanup(func() { db.Close() })

	bs, err := New(db, 2)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	return bs, db
}

func TestStoreBlock(t *testing.T) {
	bs, db := newTestStore(t)
	genesis := chainparams.RegressionNetParams.GenesisBlock
	genesisHash := chainparams.RegressionNetParams.GenesisHash

	exists, err := bs.HasBlock(genesisHash)
	if err != nil {
		t.Fatalf("TestStoreBlock: HasBlock: %s", err)
	}
	if exists {
		t.Fatalf("TestStoreBlock: an empty store has the genesis block")
	}
	_, err = bs.Block(genesisHash)
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestStoreBlock: expected a not found error, got %v", err)
	}

	for i := 0; i < 2; i++ {
		err = bs.StoreBlock(genesis)
		if err != nil {
			t.Fatalf("TestStoreBlock: StoreBlock: %s", err)
		}
	}
	if bs.Count() != 1 {
		t.Fatalf("TestStoreBlock: storing a block twice counted %d blocks", bs.Count())
	}

	stored, err := bs.Block(genesisHash)
	if err != nil {
		t.Fatalf("TestStoreBlock: Block: %s", err)
	}
	if !consensushashing.BlockHash(stored).Equal(genesisHash) {
		t.Fatalf("TestStoreBlock: the stored block has hash %s", consensushashing.BlockHash(stored))
	}

	// The count survives reopening the store.
	reopened, err := New(db, 2)
	if err != nil {
		t.Fatalf("TestStoreBlock: New: %s", err)
	}
	if reopened.Count() != 1 {
		t.Fatalf("TestStoreBlock: expected 1 block after reopening, got %d", reopened.Count())
	}
	stored, err = reopened.Block(genesisHash)
	if err != nil {
		t.Fatalf("TestStoreBlock: Block after reopening: %s", err)
	}
	if !stored.Header.Equal(genesis.Header) {
		t.Fatalf("TestStoreBlock: the header changed after reopening")
	}
}

func TestStoreUndo(t *testing.T) {
	bs, _ := newTestStore(t)
	blockHash := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{5})

	_, err := bs.Undo(blockHash)
	if !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("TestStoreUndo: expected ErrNotFound, got %v", err)
	}

	undo := &model.UndoRecord{
		BlockHash: *blockHash,
		CreatedOutpoints: []*externalapi.DomainOutpoint{
			externalapi.NewDomainOutpoint(blockHash, 0),
		},
	}
	err = bs.StoreUndo(undo)
	if err != nil {
		t.Fatalf("TestStoreUndo: StoreUndo: %s", err)
	}

	stored, err := bs.Undo(blockHash)
	if err != nil {
		t.Fatalf("TestStoreUndo: Undo: %s", err)
	}
	if stored.BlockHash != undo.BlockHash {
		t.Fatalf("TestStoreUndo: expected block hash %s, got %s", undo.BlockHash, stored.BlockHash)
	}
	if len(stored.CreatedOutpoints) != 1 {
		t.Fatalf("TestStoreUndo: expected 1 created outpoint, got %d", len(stored.CreatedOutpoints))
	}
}

func TestIndexPersistence(t *testing.T) {
	bs, _ := newTestStore(t)
	params := chainparams.RegressionNetParams

	bi := blockindex.New()
	genesis, err := bi.InsertGenesis(params.GenesisBlock.Header)
	if err != nil {
		t.Fatalf("TestIndexPersistence: InsertGenesis: %s", err)
	}
	parent := genesis
	for i := 0; i < 5; i++ {
		header := params.GenesisBlock.Header.Clone()
		header.ParentHash = *parent.Hash()
		header.Nonce = uint64(i)
		parent, err = bi.InsertHeader(header)
		if err != nil {
			t.Fatalf("TestIndexPersistence: InsertHeader: %s", err)
		}
		err = bi.MarkStatus(parent.Hash(), blockindex.StatusTreeValid)
		if err != nil {
			t.Fatalf("TestIndexPersistence: MarkStatus: %s", err)
		}
	}

	err = bs.StoreIndexEntries(bi.DirtyEntries())
	if err != nil {
		t.Fatalf("TestIndexPersistence: StoreIndexEntries: %s", err)
	}

	loaded := blockindex.New()
	count, err := bs.LoadIndex(loaded)
	if err != nil {
		t.Fatalf("TestIndexPersistence: LoadIndex: %s", err)
	}
	if count != 6 {
		t.Fatalf("TestIndexPersistence: expected 6 entries, got %d", count)
	}
	if !loaded.Genesis().Hash().Equal(params.GenesisHash) {
		t.Fatalf("TestIndexPersistence: unexpected genesis %s", loaded.Genesis())
	}
	bestHeader := loaded.BestHeader()
	if !bestHeader.Hash().Equal(parent.Hash()) || bestHeader.Height() != 5 {
		t.Fatalf("TestIndexPersistence: expected best header %s, got %s", parent, bestHeader)
	}
}
