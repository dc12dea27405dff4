package badgerdb

import (
	badger "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/infrastructure/db/database"
)

const defaultCacheSizeMiB = 64

// BadgerDB defines a thin wrapper around badger.
type BadgerDB struct {
	db *badger.DB
}

// NewBadgerDB opens a badger instance defined by the given path.
// An empty path opens an in-memory instance.
func NewBadgerDB(path string, cacheSizeMiB int) (*BadgerDB, error) {
	if cacheSizeMiB <= 0 {
		cacheSizeMiB = defaultCacheSizeMiB
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(path == "").
		WithLogger(badgerLogger{})
	opts.BlockCacheSize = int64(cacheSizeMiB) << 20
	opts.IndexCacheSize = int64(cacheSizeMiB) << 20
	opts.NumMemtables = 2
	opts.ValueLogFileSize = 512 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening badger at %s", path)
	}
	return &BadgerDB{db: db}, nil
}

// Compact runs a value log garbage collection round.
func (db *BadgerDB) Compact() error {
	err := db.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
		return errors.WithStack(err)
	}
	return nil
}

// Close closes the badger instance.
func (db *BadgerDB) Close() error {
	return errors.WithStack(db.db.Close())
}

// Put sets the value for the given key. It overwrites
// any previous value for that key.
// This method is part of the DataAccessor interface.
func (db *BadgerDB) Put(key *database.Key, value []byte) error {
	err := db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.Bytes(), value)
	})
	return errors.WithStack(err)
}

// Get gets the value for the given key. It returns
// ErrNotFound if the given key does not exist.
// This method is part of the DataAccessor interface.
func (db *BadgerDB) Get(key *database.Key) ([]byte, error) {
	var value []byte
	err := db.db.View(func(txn *badger.Txn) error {
		var err error
		value, err = get(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Has returns true if the database does contains the
// given key.
// This method is part of the DataAccessor interface.
func (db *BadgerDB) Has(key *database.Key) (bool, error) {
	var exists bool
	err := db.db.View(func(txn *badger.Txn) error {
		var err error
		exists, err = has(txn, key)
		return err
	})
	return exists, err
}

// Delete deletes the value for the given key. Will not
// return an error if the key doesn't exist.
// This method is part of the DataAccessor interface.
func (db *BadgerDB) Delete(key *database.Key) error {
	err := db.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key.Bytes())
	})
	return errors.WithStack(err)
}

// Cursor begins a new cursor over the given bucket. The cursor
// reads from its own read-only badger transaction, which is
// discarded when the cursor is closed.
func (db *BadgerDB) Cursor(bucket *database.Bucket) (database.Cursor, error) {
	txn := db.db.NewTransaction(false)
	return newCursor(txn, true, bucket), nil
}

func get(txn *badger.Txn, key *database.Key) ([]byte, error) {
	item, err := txn.Get(key.Bytes())
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, errors.Wrapf(database.ErrNotFound,
				"key %s not found", key)
		}
		return nil, errors.WithStack(err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return value, nil
}

func has(txn *badger.Txn, key *database.Key) (bool, error) {
	_, err := txn.Get(key.Bytes())
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, errors.WithStack(err)
	}
	return true, nil
}
