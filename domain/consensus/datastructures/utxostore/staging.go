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
)

// stagingArea accumulates uncommitted ledger changes. A nil coin marks a
// spent outpoint.
type stagingArea struct {
	coins map[externalapi.DomainOutpoint]*externalapi.UTXOEntry
	tip   externalapi.DomainHash
	delta *multiset.Multiset
}

func newStagingArea(tip *externalapi.DomainHash) *stagingArea {
	return &stagingArea{
		coins: make(map[externalapi.DomainOutpoint]*externalapi.UTXOEntry),
		tip:   *tip,
		delta: multiset.New(),
	}
}

// blockChanges collects the changes of a single block before they are merged
// into the staging area, so that a failing block leaves no trace.
type blockChanges struct {
	store *UTXOStore
	coins map[externalapi.DomainOutpoint]*externalapi.UTXOEntry
	delta *multiset.Multiset
}

func (s *UTXOStore) newBlockChanges() *blockChanges {
	return &blockChanges{
		store: s,
		coins: make(map[externalapi.DomainOutpoint]*externalapi.UTXOEntry),
		delta: multiset.New(),
	}
}

func (bc *blockChanges) coin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, error) {
	if coin, ok := bc.coins[*outpoint]; ok {
		return coin, nil
	}
	coin, _, err := bc.store.stagedCoin(outpoint)
	return coin, err
}

func (bc *blockChanges) add(outpoint *externalapi.DomainOutpoint, coin *externalapi.UTXOEntry) {
	bc.coins[*outpoint] = coin
	bc.delta.Add(utxo.SerializeUTXO(outpoint, coin))
}

func (bc *blockChanges) spend(outpoint *externalapi.DomainOutpoint, coin *externalapi.UTXOEntry) {
	bc.coins[*outpoint] = nil
	bc.delta.Remove(utxo.SerializeUTXO(outpoint, coin))
}

func (bc *blockChanges) mergeInto(staging *stagingArea, tip *externalapi.DomainHash) {
	for outpoint, coin := range bc.coins {
		staging.coins[outpoint] = coin
	}
	staging.delta.Combine(bc.delta)
	staging.tip = *tip
}

// StagedTip returns the tip the staged coin set reflects.
func (s *UTXOStore) StagedTip() *externalapi.DomainHash {
	tip := s.staging.tip
	return &tip
}

// IsStaged returns whether there are uncommitted changes.
func (s *UTXOStore) IsStaged() bool {
	return len(s.staging.coins) != 0 || s.staging.tip != *s.Tip()
}

// StagedCoin returns the coin at outpoint as seen by the writer, including
// uncommitted changes.
func (s *UTXOStore) StagedCoin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error) {
	return s.stagedCoin(outpoint)
}

func (s *UTXOStore) stagedCoin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error) {
	if coin, ok := s.staging.coins[*outpoint]; ok {
		return coin, coin != nil, nil
	}
	return s.fetchCommittedCoin(outpoint)
}

// ApplyBlock stages the effect of block, connected at the given height on
// top of the staged tip, and returns the record needed to undo it. Every
// input must spend an existing coin, or the whole block fails with
// ErrMissingTxOut and nothing is staged. Unspendable outputs never enter the
// ledger.
func (s *UTXOStore) ApplyBlock(block *externalapi.DomainBlock, height uint64) (*model.UndoRecord, error) {
	blockHash := consensushashing.BlockHash(block)
	if block.Header.ParentHash != s.staging.tip {
		return nil, errors.Wrapf(ruleerrors.ErrTipMismatch, "block %s builds on %s but the ledger is at %s",
			blockHash, block.Header.ParentHash, s.staging.tip)
	}

	changes := s.newBlockChanges()
	undo := &model.UndoRecord{
		BlockHash:  *blockHash,
		ParentHash: block.Header.ParentHash,
	}
	createdInBlock := make(map[externalapi.DomainOutpoint]struct{})
	var created []*externalapi.DomainOutpoint
	var missing []*externalapi.DomainOutpoint

	for i, tx := range block.Transactions {
		isCoinbase := i == 0
		if !isCoinbase {
			for _, input := range tx.Inputs {
				outpoint := input.PreviousOutpoint
				coin, err := changes.coin(&outpoint)
				if err != nil {
					return nil, err
				}
				if coin == nil {
					missing = append(missing, &outpoint)
					continue
				}
				changes.spend(&outpoint, coin)
				if _, ok := createdInBlock[outpoint]; ok {
					delete(createdInBlock, outpoint)
					continue
				}
				undo.SpentCoins = append(undo.SpentCoins,
					&externalapi.OutpointAndUTXOEntryPair{Outpoint: &outpoint, UTXOEntry: coin})
			}
		}

		txID := consensushashing.TransactionID(tx)
		for index, output := range tx.Outputs {
			if txscript.IsUnspendable(output.ScriptPublicKey) {
				continue
			}
			outpoint := externalapi.NewDomainOutpoint(txID, uint32(index))
			existing, err := changes.coin(outpoint)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return nil, errors.Wrapf(ruleerrors.ErrOverwriteTx, "transaction %s in block %s "+
					"overwrites the unspent output %s", txID, blockHash, outpoint)
			}
			coin := externalapi.NewUTXOEntry(output.Value, output.ScriptPublicKey, isCoinbase, height)
			changes.add(outpoint, coin)
			createdInBlock[*outpoint] = struct{}{}
			created = append(created, outpoint)
		}
	}
	if len(missing) > 0 {
		return nil, ruleerrors.NewErrMissingTxOut(missing)
	}

	for _, outpoint := range created {
		if _, ok := createdInBlock[*outpoint]; ok {
			undo.CreatedOutpoints = append(undo.CreatedOutpoints, outpoint)
		}
	}
	changes.mergeInto(s.staging, blockHash)
	log.Tracef("Staged block %s: %d coins spent, %d created", blockHash,
		len(undo.SpentCoins), len(undo.CreatedOutpoints))
	return undo, nil
}

// UndoBlock stages the exact reversal of the block undo was recorded for,
// which must be the staged tip. An undo record that does not match the
// ledger fails with ErrUndoMismatch and nothing is staged.
func (s *UTXOStore) UndoBlock(undo *model.UndoRecord) error {
	if undo.BlockHash != s.staging.tip {
		return errors.Wrapf(ruleerrors.ErrTipMismatch, "cannot undo block %s while the ledger is at %s",
			undo.BlockHash, s.staging.tip)
	}

	changes := s.newBlockChanges()
	for _, outpoint := range undo.CreatedOutpoints {
		coin, err := changes.coin(outpoint)
		if err != nil {
			return err
		}
		if coin == nil {
			return errors.Wrapf(ruleerrors.ErrUndoMismatch, "output %s created by block %s is already spent",
				outpoint, undo.BlockHash)
		}
		changes.spend(outpoint, coin)
	}
	for i := len(undo.SpentCoins) - 1; i >= 0; i-- {
		spent := undo.SpentCoins[i]
		existing, err := changes.coin(spent.Outpoint)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.Wrapf(ruleerrors.ErrUndoMismatch, "coin %s spent by block %s is present",
				spent.Outpoint, undo.BlockHash)
		}
		changes.add(spent.Outpoint, spent.UTXOEntry)
	}

	changes.mergeInto(s.staging, &undo.ParentHash)
	log.Tracef("Staged the undo of block %s", undo.BlockHash)
	return nil
}

// Discard drops all uncommitted changes.
func (s *UTXOStore) Discard() {
	s.staging = newStagingArea(s.Tip())
}

// Commit makes the staged changes visible to readers, and calls onCommit
// while readers are still excluded, so that state kept outside the ledger
// can switch tips together with it. The cache is flushed if it outgrew its
// capacity.
func (s *UTXOStore) Commit(onCommit func()) error {
	s.mtx.Lock()
	for outpoint, coin := range s.staging.coins {
		outpoint := outpoint
		s.cache.set(&outpoint, coin)
	}
	s.commitment.Combine(s.staging.delta)
	s.tip = s.staging.tip
	if onCommit != nil {
		onCommit()
	}
	needsFlush := s.cache.overCapacity()
	s.metrics.CacheSize.Set(float64(s.cache.len()))
	s.mtx.Unlock()

	s.staging = newStagingArea(&s.staging.tip)
	if needsFlush {
		return s.Flush()
	}
	return nil
}
