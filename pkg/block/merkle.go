package block

import (
	"github.com/Klingon-tech/klingnet-chainstate/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// ComputeMerkleRoot folds leaves pairwise into a single root. A level with
// an odd node count pairs its last node with itself. No leaves give the
// zero hash and one leaf is its own root.
//
// Because of the self-pairing, [a b c] and [a b c c] share a root; Validate
// requires strictly increasing non-coinbase hashes, which excludes the latter.
func ComputeMerkleRoot(leaves []types.Hash) types.Hash {
	switch len(leaves) {
	case 0:
		return types.Hash{}
	case 1:
		return leaves[0]
	}

	level := append([]types.Hash(nil), leaves...)
	for n := len(level); n > 1; n = (n + 1) / 2 {
		for i := 0; i < n; i += 2 {
			right := level[i]
			if i+1 < n {
				right = level[i+1]
			}
			// i/2 <= i, so the slot written was already consumed.
			level[i/2] = crypto.HashConcat(level[i], right)
		}
	}
	return level[0]
}

// TxHashes returns the hashes of txs in order.
func TxHashes(txs []*tx.Transaction) []types.Hash {
	hashes := make([]types.Hash, len(txs))
	for i, t := range txs {
		hashes[i] = t.Hash()
	}
	return hashes
}
