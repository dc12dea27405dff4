package utxostore

import (
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
)

// View is a consistent read-only view of the committed ledger. It is only
// valid inside the function passed to Snapshot.
type View struct {
	store *UTXOStore
}

// Snapshot calls f with a view of the committed ledger. Commits wait until
// f returns, so every read through the view observes the same tip.
func (s *UTXOStore) Snapshot(f func(view *View) error) error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return f(&View{store: s})
}

// Tip returns the block the viewed coin set reflects.
func (v *View) Tip() *externalapi.DomainHash {
	tip := v.store.tip
	return &tip
}

// Commitment returns the MuHash of the viewed coin set.
func (v *View) Commitment() *externalapi.DomainHash {
	return v.store.commitment.Hash()
}

// GetCoin returns the coin at outpoint, if it is unspent.
func (v *View) GetCoin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error) {
	return v.store.committedCoin(outpoint)
}

// ForEachCoin calls f for every coin in the viewed set, in no particular
// order, stopping at the first error.
func (v *View) ForEachCoin(f func(outpoint *externalapi.DomainOutpoint, coin *externalapi.UTXOEntry) error) error {
	s := v.store
	err := s.forEachDBCoin(func(outpoint *externalapi.DomainOutpoint, coin *externalapi.UTXOEntry) error {
		if _, ok := s.cache.get(outpoint); ok {
			return nil
		}
		return f(outpoint, coin)
	})
	if err != nil {
		return err
	}

	for outpoint, entry := range s.cache.entries {
		if entry.coin == nil {
			continue
		}
		outpoint := outpoint
		err := f(&outpoint, entry.coin)
		if err != nil {
			return err
		}
	}
	return nil
}
