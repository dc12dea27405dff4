// Package pow holds the proof-of-work arithmetic: compact target
// encoding, per-block work and the proof-of-work check.
package pow

import (
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
)

// CompactToBig converts a compact representation of a whole number N to an
// unsigned 32-bit number.
func CompactToBig(compact uint32) *big.Int {
	return blockchain.CompactToBig(compact)
}

// BigToCompact converts a whole number N to a compact representation using
// an unsigned 32-bit number.
func BigToCompact(n *big.Int) uint32 {
	return blockchain.BigToCompact(n)
}

// CalculateWork calculates a work value from difficulty bits. The work is
// 2^256 / (target+1), i.e. the expected number of hashes needed to find
// a block at that target.
func CalculateWork(bits uint32) *big.Int {
	return blockchain.CalcWork(bits)
}

// HashToBig converts a DomainHash into a big.Int that can be used to
// perform math comparisons.
func HashToBig(hash *externalapi.DomainHash) *big.Int {
	chainHash := chainhash.Hash(*hash.ByteArray())
	return blockchain.HashToBig(&chainHash)
}

// CheckProofOfWork ensures the header's bits are in the valid range
// and that the header hash is less than the target they encode.
func CheckProofOfWork(header *externalapi.DomainBlockHeader, powLimit *big.Int) error {
	target := CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		return errors.Wrapf(ruleerrors.ErrNegativeTarget, "block target difficulty of %064x "+
			"is too low", target)
	}
	if target.Cmp(powLimit) > 0 {
		return errors.Wrapf(ruleerrors.ErrTargetTooHigh, "block target difficulty of %064x is "+
			"higher than max of %064x", target, powLimit)
	}

	hash := consensushashing.HeaderHash(header)
	hashNum := HashToBig(hash)
	if hashNum.Cmp(target) > 0 {
		return errors.Wrapf(ruleerrors.ErrInvalidPoW, "block hash of %064x is higher than "+
			"expected max of %064x", hashNum, target)
	}
	return nil
}

// SolveHeader increments the header nonce until its hash satisfies
// its own bits. It is meant for tests and low-difficulty networks.
func SolveHeader(header *externalapi.DomainBlockHeader) {
	target := CompactToBig(header.Bits)
	for {
		if HashToBig(consensushashing.HeaderHash(header)).Cmp(target) <= 0 {
			return
		}
		header.Nonce++
	}
}
