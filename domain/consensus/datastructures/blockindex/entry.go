package blockindex

import (
	"bytes"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/serialization"
)

const noIndex int32 = -1

// Entry is a node of the block index. Everything except the status and the
// child list is immutable once the entry is created.
type Entry struct {
	hash       externalapi.DomainHash
	header     *externalapi.DomainBlockHeader
	height     uint64
	work       *big.Int
	sequenceID uint64
	status     atomic.Uint32

	// Arena indices into BlockIndex.entries.
	index    int32
	parent   int32
	skip     int32
	children []int32

	// haveChainData is set once this block and all of its ancestors have
	// their bodies stored and checked. Guarded by the index lock.
	haveChainData bool
}

// Hash returns the block hash.
func (e *Entry) Hash() *externalapi.DomainHash {
	hash := e.hash
	return &hash
}

// Header returns the block header. Callers must not modify it.
func (e *Entry) Header() *externalapi.DomainBlockHeader {
	return e.header
}

// Height returns the number of ancestors of the block.
func (e *Entry) Height() uint64 {
	return e.height
}

// Work returns the cumulative work from genesis up to and including this
// block.
func (e *Entry) Work() *big.Int {
	return new(big.Int).Set(e.work)
}

// SequenceID is the order in which the header was first seen.
func (e *Entry) SequenceID() uint64 {
	return e.sequenceID
}

// Status returns the current validation status.
func (e *Entry) Status() Status {
	return Status(e.status.Load())
}

// TimeInSeconds returns the header timestamp.
func (e *Entry) TimeInSeconds() int64 {
	return e.header.TimeInSeconds
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s (height %d)", e.hash, e.height)
}

// WorkSorterLess returns whether a is a worse chain tip than b: it has less
// cumulative work or, on equal work, was seen later.
func WorkSorterLess(a, b *Entry) bool {
	if cmp := a.work.Cmp(b.work); cmp != 0 {
		return cmp < 0
	}
	return a.sequenceID > b.sequenceID
}

// SerializeEntry encodes what is needed to rebuild the entry on restart:
// its header, status and sequence number.
func SerializeEntry(e *Entry) []byte {
	w := &bytes.Buffer{}
	w.Write(serialization.HeaderToBytes(e.header))
	err := serialization.WriteElements(w, uint32(e.Status()), e.sequenceID)
	if err != nil {
		panic(errors.Wrap(err, "writing to a bytes.Buffer cannot fail"))
	}
	return w.Bytes()
}

// DeserializeEntry decodes the output of SerializeEntry.
func DeserializeEntry(entryBytes []byte) (
	header *externalapi.DomainBlockHeader, status Status, sequenceID uint64, err error) {

	r := bytes.NewReader(entryBytes)
	header, err = serialization.DeserializeHeader(r)
	if err != nil {
		return nil, 0, 0, errors.Wrap(ruleerrors.ErrMalformedInput, err.Error())
	}
	var rawStatus uint32
	err = serialization.ReadElements(r, &rawStatus, &sequenceID)
	if err != nil {
		return nil, 0, 0, errors.Wrap(ruleerrors.ErrMalformedInput, err.Error())
	}
	if r.Len() != 0 {
		return nil, 0, 0, errors.Wrapf(ruleerrors.ErrMalformedInput,
			"%d trailing bytes after block index entry", r.Len())
	}
	return header, Status(rawStatus), sequenceID, nil
}
