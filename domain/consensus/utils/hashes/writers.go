package hashes

import (
	"crypto/sha256"
	"hash"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
)

// HashWriter is used to incrementally hash data without concatenating all of the data to a single buffer
// it exposes an io.Writer api and a Finalize function to get the resulting hash.
// The used hash function is double sha256.
type HashWriter struct {
	hash.Hash
}

// NewDoubleHashWriter returns a new HashWriter whose Finalize
// returns sha256(sha256(data)).
func NewDoubleHashWriter() HashWriter {
	return HashWriter{sha256.New()}
}

// InfallibleWrite is just like write but doesn't return anything
func (h HashWriter) InfallibleWrite(p []byte) {
	// This write can never return an error, this is part of the hash.Hash interface contract.
	_, err := h.Write(p)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. hash.Hash interface promises to not return errors."))
	}
}

// Finalize returns the resulting hash
func (h HashWriter) Finalize() *externalapi.DomainHash {
	secondPass := chainhash.HashH(h.Sum(nil))
	return externalapi.NewDomainHashFromByteArray((*[externalapi.DomainHashSize]byte)(&secondPass))
}

// DoubleHash returns sha256(sha256(data)) as a DomainHash.
func DoubleHash(data []byte) *externalapi.DomainHash {
	hash := chainhash.DoubleHashH(data)
	return externalapi.NewDomainHashFromByteArray((*[externalapi.DomainHashSize]byte)(&hash))
}
