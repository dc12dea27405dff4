package consensus

import (
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
)

// reconcileLedger finishes an interrupted ledger flush and points the
// active chain at the ledger tip.
func (s *consensus) reconcileLedger() error {
	if s.utxoStore.NeedsReconcile() {
		err := s.utxoStore.Reconcile(s.reconcilePlan)
		if err != nil {
			return err
		}
	}

	ledgerTip := s.utxoStore.Tip()
	tip, ok := s.blockIndex.Lookup(ledgerTip)
	if !ok {
		return errors.Wrapf(ruleerrors.ErrUnknownBlock, "the ledger is at block %s, "+
			"which is missing from the block index", ledgerTip)
	}
	s.activeChain.SetTip(tip)
	return nil
}

// reconcilePlan lists the blocks leading the ledger from one tip to the
// other: the undo records of the blocks of from's chain above the fork,
// newest first, and the blocks of to's chain above it, oldest first.
func (s *consensus) reconcilePlan(from, to *externalapi.DomainHash) (*model.ReconcilePlan, error) {
	fromEntry, ok := s.blockIndex.Lookup(from)
	if !ok {
		return nil, errors.Wrapf(ruleerrors.ErrUnknownBlock, "flush origin %s", from)
	}
	toEntry, ok := s.blockIndex.Lookup(to)
	if !ok {
		return nil, errors.Wrapf(ruleerrors.ErrUnknownBlock, "flush target %s", to)
	}
	fork := s.blockIndex.FindFork(fromEntry, toEntry)

	plan := &model.ReconcilePlan{}
	for walk := fromEntry; walk != fork; walk = s.blockIndex.Parent(walk) {
		undo, err := s.blockStore.Undo(walk.Hash())
		if err != nil {
			return nil, err
		}
		plan.Rollback = append(plan.Rollback, undo)
	}
	for walk := toEntry; walk != fork; walk = s.blockIndex.Parent(walk) {
		block, err := s.blockStore.Block(walk.Hash())
		if err != nil {
			return nil, err
		}
		plan.Replay = append(plan.Replay, &model.BlockAtHeight{Block: block, Height: walk.Height()})
	}
	for i, j := 0, len(plan.Replay)-1; i < j; i, j = i+1, j-1 {
		plan.Replay[i], plan.Replay[j] = plan.Replay[j], plan.Replay[i]
	}
	return plan, nil
}
