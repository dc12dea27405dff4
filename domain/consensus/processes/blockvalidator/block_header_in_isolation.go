package blockvalidator

import (
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
	"github.com/utxonode/chaind/domain/consensus/utils/pow"
)

// ValidateHeaderInIsolation validates block headers in isolation from the current
// consensus state
func (v *BlockValidator) ValidateHeaderInIsolation(header *externalapi.DomainBlockHeader) error {
	err := checkBlockVersion(header)
	if err != nil {
		return err
	}

	return v.checkProofOfWork(header)
}

func checkBlockVersion(header *externalapi.DomainBlockHeader) error {
	if header.Version != constants.BlockVersion {
		return errors.Wrapf(
			ruleerrors.ErrBlockVersionIsUnknown, "block version %d is unknown", header.Version)
	}
	return nil
}

func (v *BlockValidator) checkProofOfWork(header *externalapi.DomainBlockHeader) error {
	// The target difficulty must be larger than zero and not above the
	// network's limit, and the block hash must be less than the target.
	return pow.CheckProofOfWork(header, v.params.PowLimit)
}
