package block

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-chainstate/config"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
)

// Validation errors.
var (
	ErrNilHeader         = errors.New("block has nil header")
	ErrNoTransactions    = errors.New("block has no transactions")
	ErrBadMerkleRoot     = errors.New("merkle root mismatch")
	ErrBadVersion        = errors.New("unsupported block version")
	ErrZeroTimestamp     = errors.New("block timestamp is zero")
	ErrZeroHeight        = errors.New("block height is zero")
	ErrBadTarget         = errors.New("block target is not positive")
	ErrBadTxOrder        = errors.New("transactions not in canonical order")
	ErrNoCoinbase        = errors.New("first transaction must be coinbase")
	ErrTooManyTxs        = errors.New("too many transactions in block")
	ErrBlockTooLarge     = errors.New("block too large")
	ErrMultipleCoinbase  = errors.New("multiple coinbase transactions in block")
	ErrBadCoinbaseHeight = errors.New("coinbase does not commit to block height")
)

// Block version constants.
const (
	CurrentVersion = 1 // The current block version produced by this software.
	MaxVersion     = 1 // Bump when a fork introduces a new block version.
)

// Validate checks block structure and internal consistency.
// It does not look at the UTXO set or at proof-of-work; see the chain and
// consensus packages for those.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}

	if b.Header.Version < 1 || b.Header.Version > MaxVersion {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrBadVersion, b.Header.Version, MaxVersion)
	}
	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}
	// Height 0 is the empty chain; the first real block sits at height 1.
	if b.Header.Height == 0 {
		return ErrZeroHeight
	}
	if CompactToBig(b.Header.Bits).Sign() <= 0 {
		return fmt.Errorf("%w: bits %08x", ErrBadTarget, b.Header.Bits)
	}

	if len(b.Transactions) == 0 {
		return ErrNoTransactions
	}
	if len(b.Transactions) > config.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), config.MaxBlockTxs)
	}

	blockSize := len(b.Header.SigningBytes())
	for _, t := range b.Transactions {
		blockSize += len(t.SigningBytes())
	}
	if blockSize > config.MaxBlockSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, blockSize, config.MaxBlockSize)
	}

	if !b.Transactions[0].IsCoinbase() {
		return ErrNoCoinbase
	}
	// The coinbase witness opens with the little-endian block height, which
	// keeps coinbase hashes distinct along any branch.
	if h, ok := CoinbaseHeight(b.Transactions[0]); !ok || h != b.Header.Height {
		return fmt.Errorf("%w: want %d", ErrBadCoinbaseHeight, b.Header.Height)
	}
	for i, t := range b.Transactions[1:] {
		for _, in := range t.Inputs {
			if in.PrevOut.IsZero() {
				return fmt.Errorf("tx %d: %w", i+1, ErrMultipleCoinbase)
			}
		}
	}

	txHashes := TxHashes(b.Transactions)
	expectedRoot := ComputeMerkleRoot(txHashes)
	if b.Header.MerkleRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadMerkleRoot, b.Header.MerkleRoot, expectedRoot)
	}

	// Canonical tx ordering: coinbase first, remaining sorted by hash ascending.
	for i := 2; i < len(txHashes); i++ {
		if bytes.Compare(txHashes[i-1][:], txHashes[i][:]) >= 0 {
			return fmt.Errorf("%w: tx %d hash >= tx %d hash", ErrBadTxOrder, i-1, i)
		}
	}

	for i, t := range b.Transactions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	return nil
}

// CoinbaseHeight decodes the height prefix of a coinbase witness.
func CoinbaseHeight(coinbase *tx.Transaction) (uint64, bool) {
	if !coinbase.IsCoinbase() || len(coinbase.Inputs[0].Witness) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(coinbase.Inputs[0].Witness[:8]), true
}
