package badgerdb

import (
	"bytes"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/infrastructure/db/database"
)

// BadgerCursor is a thin wrapper around a prefixed badger iterator.
type BadgerCursor struct {
	txn       *badger.Txn
	ownsTxn   bool
	iterator  *badger.Iterator
	bucket    *database.Bucket
	prefix    []byte
	isStarted bool
	isClosed  bool
}

func newCursor(txn *badger.Txn, ownsTxn bool, bucket *database.Bucket) *BadgerCursor {
	prefix := bucket.Path()
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	return &BadgerCursor{
		txn:      txn,
		ownsTxn:  ownsTxn,
		iterator: txn.NewIterator(opts),
		bucket:   bucket,
		prefix:   prefix,
	}
}

// Next moves the iterator to the next key/value pair. It returns whether the
// iterator is exhausted. Panics if the cursor is closed.
func (c *BadgerCursor) Next() bool {
	if c.isClosed {
		panic("cannot call next on a closed cursor")
	}
	if !c.isStarted {
		c.isStarted = true
		c.iterator.Rewind()
	} else if c.iterator.ValidForPrefix(c.prefix) {
		c.iterator.Next()
	}
	return c.iterator.ValidForPrefix(c.prefix)
}

// First moves the iterator to the first key/value pair. It returns false if
// such a pair does not exist. Panics if the cursor is closed.
func (c *BadgerCursor) First() bool {
	if c.isClosed {
		panic("cannot call first on a closed cursor")
	}
	c.isStarted = true
	c.iterator.Rewind()
	return c.iterator.ValidForPrefix(c.prefix)
}

// Seek moves the iterator to the key/value pair with the given key.
// It returns ErrNotFound if such pair does not exist.
func (c *BadgerCursor) Seek(key *database.Key) error {
	if c.isClosed {
		return errors.New("cannot seek a closed cursor")
	}
	c.isStarted = true

	notFoundErr := errors.Wrapf(database.ErrNotFound, "key %s not found", key)
	keyBytes := key.Bytes()
	if !bytes.HasPrefix(keyBytes, c.prefix) {
		return notFoundErr
	}
	c.iterator.Seek(keyBytes)
	if !c.iterator.ValidForPrefix(c.prefix) {
		return notFoundErr
	}
	if !bytes.Equal(c.iterator.Item().Key(), keyBytes) {
		return notFoundErr
	}
	return nil
}

// Key returns the key of the current key/value pair, or ErrNotFound if done.
func (c *BadgerCursor) Key() (*database.Key, error) {
	if c.isClosed {
		return nil, errors.New("cannot get the key of a closed cursor")
	}
	if !c.isStarted || !c.iterator.ValidForPrefix(c.prefix) {
		return nil, errors.Wrapf(database.ErrNotFound, "cannot get the "+
			"key of an exhausted cursor")
	}
	fullKeyPath := c.iterator.Item().KeyCopy(nil)
	return c.bucket.Key(fullKeyPath[len(c.prefix):]), nil
}

// Value returns the value of the current key/value pair, or ErrNotFound if done.
func (c *BadgerCursor) Value() ([]byte, error) {
	if c.isClosed {
		return nil, errors.New("cannot get the value of a closed cursor")
	}
	if !c.isStarted || !c.iterator.ValidForPrefix(c.prefix) {
		return nil, errors.Wrapf(database.ErrNotFound, "cannot get the "+
			"value of an exhausted cursor")
	}
	value, err := c.iterator.Item().ValueCopy(nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return value, nil
}

// Close releases associated resources.
func (c *BadgerCursor) Close() error {
	if c.isClosed {
		return errors.New("cannot close an already closed cursor")
	}
	c.isClosed = true
	c.iterator.Close()
	if c.ownsTxn {
		c.txn.Discard()
	}
	c.iterator = nil
	c.bucket = nil
	return nil
}
