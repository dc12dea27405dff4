// Package multiset wraps the MuHash rolling set hash used to commit to the
// contents of the ledger.
package multiset

import (
	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
)

// Multiset is a hash of a set of byte strings that supports adding and
// removing elements in any order.
type Multiset struct {
	ms *muhash.MuHash
}

// New returns the multiset of the empty set.
func New() *Multiset {
	return &Multiset{ms: muhash.NewMuHash()}
}

// Add adds data to the set.
func (m *Multiset) Add(data []byte) {
	m.ms.Add(data)
}

// Remove removes data from the set.
func (m *Multiset) Remove(data []byte) {
	m.ms.Remove(data)
}

// Combine adds all the elements of other to the set.
func (m *Multiset) Combine(other *Multiset) {
	m.ms.Combine(other.ms)
}

// Hash returns the finalized 32-byte commitment.
func (m *Multiset) Hash() *externalapi.DomainHash {
	finalizedHash := m.ms.Finalize()
	finalizedHashAsByteArray := (*[externalapi.DomainHashSize]byte)(&finalizedHash)
	return externalapi.NewDomainHashFromByteArray(finalizedHashAsByteArray)
}

// Serialize returns the full multiset state, which unlike Hash can be
// deserialized and updated further.
func (m *Multiset) Serialize() []byte {
	return m.ms.Serialize()[:]
}

// Clone returns an independent copy of the multiset.
func (m *Multiset) Clone() *Multiset {
	return &Multiset{ms: m.ms.Clone()}
}

// FromBytes deserializes the output of Serialize.
func FromBytes(multisetBytes []byte) (*Multiset, error) {
	serialized := &muhash.SerializedMuHash{}
	if len(serialized) != len(multisetBytes) {
		return nil, errors.Errorf("multiset bytes expected to be in length of %d but got %d",
			len(serialized), len(multisetBytes))
	}
	copy(serialized[:], multisetBytes)
	ms, err := muhash.DeserializeMuHash(serialized)
	if err != nil {
		return nil, err
	}

	return &Multiset{ms: ms}, nil
}
