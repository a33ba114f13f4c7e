// Package block defines block types, validation and proof-of-work arithmetic.
package block

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// Block represents a block in the chain.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock creates a new block with the given header and transactions.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Assemble builds a block on top of prev. The first transaction must be the
// coinbase; the rest are put in canonical order and the merkle root is filled in.
func Assemble(prev types.Hash, height, timestamp uint64, bits uint32, txs []*tx.Transaction) *Block {
	ordered := make([]*tx.Transaction, len(txs))
	copy(ordered, txs)
	if len(ordered) > 1 {
		SortTransactions(ordered[1:])
	}

	return NewBlock(&Header{
		Version:    CurrentVersion,
		PrevHash:   prev,
		MerkleRoot: ComputeMerkleRoot(TxHashes(ordered)),
		Timestamp:  timestamp,
		Height:     height,
		Bits:       bits,
	}, ordered)
}

// SortTransactions sorts transactions by hash ascending, in place.
func SortTransactions(txs []*tx.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		hi, hj := txs[i].Hash(), txs[j].Hash()
		return bytes.Compare(hi[:], hj[:]) < 0
	})
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}

// Work returns the proof-of-work represented by this block alone.
func (b *Block) Work() *big.Int {
	if b.Header == nil {
		return new(big.Int)
	}
	return CalcWork(b.Header.Bits)
}
