package blockvalidator

import (
	"time"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
)

// ValidateHeaderInContext validates block headers in the context of the
// chain they extend. parent must be the entry of the header's parent.
func (v *BlockValidator) ValidateHeaderInContext(header *externalapi.DomainBlockHeader, parent *blockindex.Entry) error {
	if header.ParentHash != *parent.Hash() {
		return errors.Errorf("header builds on %s but was validated against %s",
			header.ParentHash, parent.Hash())
	}

	err := v.checkMedianTime(header, parent)
	if err != nil {
		return err
	}

	err = v.checkBlockTimeNotTooFarInTheFuture(header)
	if err != nil {
		return err
	}

	return v.checkDifficulty(header, parent)
}

func (v *BlockValidator) checkMedianTime(header *externalapi.DomainBlockHeader, parent *blockindex.Entry) error {
	// Ensure the timestamp for the block header is after the
	// median time of the last several blocks (medianTimeBlocks).
	pastMedianTime := v.blockIndex.PastMedianTime(parent)
	if header.TimeInSeconds <= pastMedianTime {
		return errors.Wrapf(ruleerrors.ErrTimeTooOld, "block timestamp of %d is not after "+
			"expected %d", header.TimeInSeconds, pastMedianTime)
	}
	return nil
}

func (v *BlockValidator) checkBlockTimeNotTooFarInTheFuture(header *externalapi.DomainBlockHeader) error {
	maxTimestamp := v.clock.Now().Add(constants.MaxTimeOffsetSeconds * time.Second).Unix()
	if header.TimeInSeconds > maxTimestamp {
		return errors.Wrapf(ruleerrors.ErrTimeTooMuchInTheFuture, "block timestamp of %d is too far in the "+
			"future, max is %d", header.TimeInSeconds, maxTimestamp)
	}
	return nil
}

func (v *BlockValidator) checkDifficulty(header *externalapi.DomainBlockHeader, parent *blockindex.Entry) error {
	// Ensure the difficulty specified in the block header matches
	// the calculated difficulty based on the previous block and
	// difficulty retarget rules.
	expectedBits := v.RequiredDifficulty(parent)
	if header.Bits != expectedBits {
		return errors.Wrapf(ruleerrors.ErrUnexpectedDifficulty, "block difficulty of %d "+
			"is not the expected value of %d", header.Bits, expectedBits)
	}
	return nil
}
