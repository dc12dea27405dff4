package consensus

import (
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/processes/chainconnector"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/serialization"
	"github.com/utxonode/chaind/infrastructure/logger"
)

// SubmitHeader decodes and processes a serialized header.
func (s *consensus) SubmitHeader(headerBytes []byte) (externalapi.SubmitResult, error) {
	header, err := serialization.HeaderFromBytes(headerBytes)
	if err != nil {
		return externalapi.ResultInvalid, err
	}
	return s.ProcessHeader(header)
}

// SubmitBlock decodes and processes a serialized block.
func (s *consensus) SubmitBlock(blockBytes []byte) (externalapi.SubmitResult, error) {
	block, err := serialization.BlockFromBytes(blockBytes)
	if err != nil {
		return externalapi.ResultInvalid, err
	}
	return s.ProcessBlock(block)
}

// ProcessHeader validates header and adds it to the block index. Headers
// failing their contextual checks are indexed as failed, so that they and
// their descendants are known to be invalid.
func (s *consensus) ProcessHeader(header *externalapi.DomainBlockHeader) (externalapi.SubmitResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, result, err := s.processHeader(header)
	if err != nil {
		return result, err
	}
	return result, s.storeDirtyIndexEntries()
}

func (s *consensus) processHeader(header *externalapi.DomainBlockHeader) (
	*blockindex.Entry, externalapi.SubmitResult, error) {

	blockHash := consensushashing.HeaderHash(header)
	if entry, ok := s.blockIndex.Lookup(blockHash); ok {
		if entry.Status().IsFailed() {
			return entry, externalapi.ResultInvalid, errors.Wrapf(ruleerrors.ErrKnownInvalid, "block %s", entry)
		}
		return entry, externalapi.ResultDuplicateOrKnown, nil
	}

	err := s.blockValidator.ValidateHeaderInIsolation(header)
	if err != nil {
		return nil, resultOf(err), err
	}
	parent, ok := s.blockIndex.Lookup(&header.ParentHash)
	if !ok {
		return nil, externalapi.ResultOrphanMissingParent, errors.Wrapf(ruleerrors.ErrOrphanHeader,
			"parent %s of block %s is unknown", header.ParentHash, blockHash)
	}
	var contextErr error
	if !parent.Status().IsFailed() {
		contextErr = s.blockValidator.ValidateHeaderInContext(header, parent)
		if contextErr != nil && (!ruleerrors.IsRuleError(contextErr) ||
			errors.Is(contextErr, ruleerrors.ErrTimeTooMuchInTheFuture)) {
			// A header from the future may become valid later, so it is
			// not recorded.
			return nil, resultOf(contextErr), contextErr
		}
	}

	entry, err := s.blockIndex.InsertHeader(header)
	if err != nil {
		return nil, resultOf(err), err
	}
	if parent.Status().IsFailed() {
		return entry, externalapi.ResultInvalid, errors.Wrapf(ruleerrors.ErrInvalidAncestorBlock,
			"block %s builds on failed block %s", entry, parent)
	}
	if contextErr != nil {
		log.Infof("Rejected header %s: %s", entry, contextErr)
		err := s.blockIndex.MarkFailed(entry.Hash())
		if err != nil {
			return entry, externalapi.ResultInvalid, err
		}
		return entry, externalapi.ResultInvalid, contextErr
	}
	err = s.blockIndex.MarkStatus(entry.Hash(), blockindex.StatusTreeValid)
	if err != nil {
		return entry, externalapi.ResultInvalid, err
	}
	log.Debugf("Accepted header %s", entry)
	return entry, externalapi.ResultAccepted, nil
}

// ProcessBlock validates block, stores it, and moves the active chain to
// the best valid tip.
func (s *consensus) ProcessBlock(block *externalapi.DomainBlock) (externalapi.SubmitResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	onEnd := logger.LogAndMeasureExecutionTime(log, "ProcessBlock")
	defer onEnd()

	result, err := s.processBlock(block)
	storeErr := s.storeDirtyIndexEntries()
	if err != nil {
		return result, err
	}
	return result, storeErr
}

func (s *consensus) processBlock(block *externalapi.DomainBlock) (externalapi.SubmitResult, error) {
	entry, result, err := s.processHeader(block.Header)
	switch {
	case result == externalapi.ResultDuplicateOrKnown:
		if entry.Status().Level() >= blockindex.StatusTransactionsValid {
			return result, nil
		}
	case err != nil:
		return result, err
	}

	err = s.checkMinimumChainWork(entry)
	if err != nil {
		return externalapi.ResultInvalid, err
	}

	err = s.blockValidator.ValidateBodyInIsolation(block)
	if err != nil {
		if ruleerrors.IsRuleError(err) && !isMutation(err) {
			log.Infof("Rejected block %s: %s", entry, err)
			markErr := s.blockIndex.MarkFailed(entry.Hash())
			if markErr != nil {
				return externalapi.ResultInvalid, markErr
			}
		}
		return resultOf(err), err
	}

	err = s.blockStore.StoreBlock(block)
	if err != nil {
		return externalapi.ResultInvalid, err
	}
	err = s.blockIndex.MarkStatus(entry.Hash(), blockindex.StatusTransactionsValid)
	if err != nil {
		return externalapi.ResultInvalid, err
	}
	// The index must know the block before the ledger can be flushed on
	// top of it.
	err = s.storeDirtyIndexEntries()
	if err != nil {
		return externalapi.ResultInvalid, err
	}

	invalidBlocks, err := s.chainConnector.ActivateBestChain()
	if err != nil {
		return externalapi.ResultInvalid, err
	}
	if entry.Status().IsFailed() {
		return externalapi.ResultInvalid, validationError(entry, invalidBlocks)
	}
	return externalapi.ResultAccepted, nil
}

// checkMinimumChainWork rejects blocks that are not on a chain with at
// least the configured minimum work. Such a chain is either the entry's
// own, or the best header chain when entry is part of it.
func (s *consensus) checkMinimumChainWork(entry *blockindex.Entry) error {
	minimumChainWork := s.params.MinimumChainWork
	if minimumChainWork == nil || minimumChainWork.Sign() == 0 {
		return nil
	}
	if entry.Work().Cmp(minimumChainWork) >= 0 {
		return nil
	}
	bestHeader := s.blockIndex.BestHeader()
	if bestHeader.Work().Cmp(minimumChainWork) >= 0 && s.blockIndex.IsInChainOf(entry, bestHeader) {
		return nil
	}
	return errors.Wrapf(ruleerrors.ErrBelowMinimumChainWork, "block %s has chain work %s, "+
		"the best header chain %s, the minimum is %s",
		entry, entry.Work(), bestHeader.Work(), minimumChainWork)
}

// isMutation returns whether a body check failed in a way a relaying peer
// could cause without the header committing to it. The block is then
// rejected without marking its header as failed.
func isMutation(err error) bool {
	return errors.Is(err, ruleerrors.ErrBadMerkleRoot) || errors.Is(err, ruleerrors.ErrDuplicateTx)
}

func validationError(entry *blockindex.Entry, invalidBlocks []*chainconnector.InvalidBlock) error {
	for _, invalidBlock := range invalidBlocks {
		if invalidBlock.Entry == entry {
			return invalidBlock.Err
		}
	}
	if entry.Status()&blockindex.StatusFailedAncestor != 0 {
		return errors.Wrapf(ruleerrors.ErrInvalidAncestorBlock, "block %s", entry)
	}
	return errors.Wrapf(ruleerrors.ErrKnownInvalid, "block %s", entry)
}

// InvalidateBlock marks the block with the given hash and its descendants
// as failed, regardless of their validity, and moves the active chain off
// them.
func (s *consensus) InvalidateBlock(blockHash *externalapi.DomainHash) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	entry, ok := s.blockIndex.Lookup(blockHash)
	if !ok {
		return errors.Wrapf(ruleerrors.ErrUnknownBlock, "block %s", blockHash)
	}
	if entry.Height() == 0 {
		return errors.Errorf("cannot invalidate genesis block %s", blockHash)
	}
	err := s.blockIndex.MarkFailed(blockHash)
	if err != nil {
		return err
	}
	s.blockIndex.RebuildCandidates()
	log.Infof("Invalidated block %s", entry)

	_, err = s.chainConnector.ActivateBestChain()
	storeErr := s.storeDirtyIndexEntries()
	if err != nil {
		return err
	}
	return storeErr
}

// resultOf maps a processing error to the result reported to the caller.
func resultOf(err error) externalapi.SubmitResult {
	if errors.Is(err, ruleerrors.ErrOrphanHeader) {
		return externalapi.ResultOrphanMissingParent
	}
	if errors.Is(err, ruleerrors.ErrDuplicateHeader) {
		return externalapi.ResultDuplicateOrKnown
	}
	return externalapi.ResultInvalid
}
