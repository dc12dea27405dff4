package merkle

import (
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/hashes"
)

// hashMerkleBranches takes two hashes, treated as the left and right tree
// nodes, and returns the hash of their concatenation.
func hashMerkleBranches(left, right *externalapi.DomainHash) *externalapi.DomainHash {
	w := hashes.NewDoubleHashWriter()
	w.InfallibleWrite(left.ByteSlice())
	w.InfallibleWrite(right.ByteSlice())
	return w.Finalize()
}

// CalculateHashMerkleRoot calculates the merkle root of a tree consisted of the
// given transaction IDs. When a level has an odd number of nodes, the last
// node is paired with itself.
func CalculateHashMerkleRoot(transactions []*externalapi.DomainTransaction) *externalapi.DomainHash {
	if len(transactions) == 0 {
		return &externalapi.DomainHash{}
	}
	return CalculateMerkleRootFromHashes(consensushashing.TransactionIDs(transactions))
}

// CalculateMerkleRootFromHashes calculates the merkle root of the given
// leaf hashes.
func CalculateMerkleRootFromHashes(leaves []*externalapi.DomainHash) *externalapi.DomainHash {
	if len(leaves) == 0 {
		return &externalapi.DomainHash{}
	}
	level := make([]*externalapi.DomainHash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]*externalapi.DomainHash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashMerkleBranches(level[i], right))
		}
		level = next
	}
	return level[0]
}
