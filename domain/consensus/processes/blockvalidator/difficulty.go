// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockvalidator

import (
	"math/big"
	"time"

	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/utils/pow"
)

// RequiredDifficulty calculates the required difficulty for the block
// after parent based on the difficulty retarget rules.
func (v *BlockValidator) RequiredDifficulty(parent *blockindex.Entry) uint32 {
	if v.params.PowNoRetargeting {
		return parent.Header().Bits
	}

	// Return the previous block's difficulty requirements if this block
	// is not at a difficulty retarget interval.
	blocksPerRetarget := v.params.BlocksPerRetarget()
	if (parent.Height()+1)%blocksPerRetarget != 0 {
		return parent.Header().Bits
	}

	// Get the block node at the previous retarget (targetTimespan days
	// worth of blocks).
	firstNode := v.blockIndex.Ancestor(parent, parent.Height()+1-blocksPerRetarget)

	// Limit the amount of adjustment that can occur to the previous
	// difficulty.
	targetTimespan := int64(v.params.TargetTimespan / time.Second)
	minRetargetTimespan := targetTimespan / v.params.RetargetAdjustmentFactor
	maxRetargetTimespan := targetTimespan * v.params.RetargetAdjustmentFactor

	actualTimespan := parent.TimeInSeconds() - firstNode.TimeInSeconds()
	adjustedTimespan := actualTimespan
	if actualTimespan < minRetargetTimespan {
		adjustedTimespan = minRetargetTimespan
	} else if actualTimespan > maxRetargetTimespan {
		adjustedTimespan = maxRetargetTimespan
	}

	// Calculate new target difficulty as:
	//  currentDifficulty * (adjustedTimespan / targetTimespan)
	// The result uses integer division which means it will be slightly
	// rounded down.
	oldTarget := pow.CompactToBig(parent.Header().Bits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(adjustedTimespan))
	newTarget.Div(newTarget, big.NewInt(targetTimespan))

	// Limit new value to the proof of work limit.
	if newTarget.Cmp(v.params.PowLimit) > 0 {
		newTarget.Set(v.params.PowLimit)
	}

	// Log new target difficulty and return it. The new target logging is
	// intentionally converting the bits back to a number instead of using
	// newTarget since conversion to the compact representation loses
	// precision.
	newTargetBits := pow.BigToCompact(newTarget)
	log.Debugf("Difficulty retarget at block height %d", parent.Height()+1)
	log.Debugf("Old target %08x (%064x)", parent.Header().Bits, oldTarget)
	log.Debugf("New target %08x (%064x)", newTargetBits, pow.CompactToBig(newTargetBits))
	log.Debugf("Actual timespan %s, adjusted timespan %s, target timespan %s",
		time.Duration(actualTimespan)*time.Second,
		time.Duration(adjustedTimespan)*time.Second,
		v.params.TargetTimespan)

	return newTargetBits
}
